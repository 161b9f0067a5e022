package session

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-moqt/config"
	"github.com/dep2p/go-moqt/pkg/types"
)

func TestOptionsFromUnified(t *testing.T) {
	assert.Nil(t, OptionsFromUnified(nil))

	cfg := config.NewConfig()
	cfg.Session.Version = types.VersionDraft05
	cfg.Session.SupportedVersions = []types.Version{types.VersionDraft04, types.VersionDraft05}
	cfg.Session.MaxMessageSize = 4096
	cfg.Session.SubscriptionExpires = config.Duration(2 * time.Second)
	cfg.Session.MaxQueuedObjects = 16

	c := DefaultConfig()
	for _, opt := range OptionsFromUnified(cfg) {
		opt(c)
	}
	assert.Equal(t, types.VersionDraft05, c.Version)
	assert.Equal(t, cfg.Session.SupportedVersions, c.Versions())
	assert.Equal(t, uint64(4096), c.Limits.MaxMessageSize)
	assert.Equal(t, 2*time.Second, c.SubscriptionExpires)
	assert.Equal(t, 16, c.MaxQueuedObjects)
}

func TestModule(t *testing.T) {
	reg := prometheus.NewRegistry()

	var d *Dispatcher
	var m *Metrics
	app := fxtest.New(t,
		fx.Supply(config.NewConfig()),
		fx.Provide(func() prometheus.Registerer { return reg }),
		fx.Provide(func() SubscriptionRegistry { return &mockRegistry{} }),
		Module(),
		fx.Populate(&d, &m),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, d)
	assert.Same(t, m, d.Config().Metrics)
	assert.Equal(t, types.DefaultVersion, d.Config().Version)

	families, err := reg.Gather()
	require.NoError(t, err)
	// 尚未产生样本的 CounterVec 不出现在结果中
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "moqt_sessions_active")
}
