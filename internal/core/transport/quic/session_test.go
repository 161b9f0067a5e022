package quic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-moqt/internal/protocol/session"
	"github.com/dep2p/go-moqt/internal/protocol/session/registry"
	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/types"
)

// 在真实 QUIC 连接上完成协商、订阅与对象传输
func TestSessionOverQUIC(t *testing.T) {
	server, client := newLoopback(t)

	reg := registry.New()
	d, err := session.NewDispatcher(reg)
	require.NoError(t, err)

	ss := session.NewServerSession(server, d)
	cs := session.NewClientSession(client, d, "/live", types.RoleSubscriber)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverErr := make(chan error, 1)
	clientErr := make(chan error, 1)
	go func() { serverErr <- ss.Serve(ctx) }()
	go func() { clientErr <- cs.Serve(ctx) }()

	require.NoError(t, cs.WaitEstablished(ctx))
	require.NoError(t, ss.WaitEstablished(ctx))
	assert.Equal(t, "/live", ss.State().Path())

	role, ok := cs.State().PeerRole()
	require.True(t, ok)
	assert.Equal(t, types.RolePublisher, role)

	require.NoError(t, cs.Subscribe(&wire.Subscribe{
		SubscribeID:    1,
		TrackNamespace: "live",
		TrackName:      "video",
		Filter:         types.FilterLatestGroup,
	}))

	require.Eventually(t, func() bool {
		o, ok := cs.State().SubscriptionOutcome(1)
		return ok && o.Accepted
	}, 5*time.Second, 10*time.Millisecond)
	require.Len(t, reg.Lookup("live", "video"), 1)

	require.NoError(t, ss.SendObject(ctx, &wire.ObjectStream{
		SubscribeID: 1,
		GroupID:     3,
		ObjectID:    0,
		Payload:     []byte("frame"),
	}))

	objs, err := cs.NextObjects(ctx)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, uint64(3), objs[0].GroupID)
	assert.Equal(t, []byte("frame"), objs[0].Payload)

	require.NoError(t, cs.Close())
	select {
	case err := <-serverErr:
		// 控制流结束与连接关闭可能先后到达
		if err != nil {
			assert.ErrorIs(t, err, session.ErrControlStreamClosed)
		}
	case <-ctx.Done():
		t.Fatal("服务端会话未结束")
	}
	<-clientErr
	assert.Equal(t, 0, reg.Len())
}
