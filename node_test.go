package moqt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-moqt/config"
	"github.com/dep2p/go-moqt/internal/protocol/session"
	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/types"
)

func startRelay(t *testing.T, opts ...Option) *Node {
	t.Helper()
	opts = append([]Option{WithListenAddr("127.0.0.1:0")}, opts...)
	n, err := Start(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func startClient(t *testing.T, opts ...Option) *Node {
	t.Helper()
	opts = append([]Option{WithNoListen()}, opts...)
	n, err := Start(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestNew_Options(t *testing.T) {
	t.Run("无效选项", func(t *testing.T) {
		_, err := New(WithVersion(0))
		assert.ErrorIs(t, err, types.ErrInvalidVersion)

		_, err = New(WithTLSFiles("cert.pem", ""))
		assert.Error(t, err)

		_, err = New(WithConfig(nil))
		assert.Error(t, err)

		_, err = New(WithMaxQueuedObjects(-1))
		assert.Error(t, err)
	})

	t.Run("配置验证失败", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Session.MaxMessageSize = 0
		_, err := New(WithConfig(cfg))
		assert.Error(t, err)
	})

	t.Run("WithConfig 不修改原配置", func(t *testing.T) {
		cfg := config.NewConfig()
		n, err := New(WithConfig(cfg), WithMaxSubscriptions(3))
		require.NoError(t, err)
		defer n.Close()
		assert.Equal(t, 256, cfg.Registry.MaxSubscriptionsPerConn)
		assert.Equal(t, 3, n.opts.config.Registry.MaxSubscriptionsPerConn)
	})
}

func TestNode_Lifecycle(t *testing.T) {
	n, err := New(WithListenAddr("127.0.0.1:0"))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, n.State())

	ctx := context.Background()
	assert.ErrorIs(t, n.Stop(ctx), ErrNotStarted)
	_, err = n.Publish(ctx, "ns", "name", 0, 0, nil)
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, n.Start(ctx))
	assert.Equal(t, StateRunning, n.State())
	assert.NotNil(t, n.Addr())
	assert.NotNil(t, n.Registry())
	assert.ErrorIs(t, n.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, n.Stop(ctx))
	assert.Equal(t, StateStopped, n.State())
	assert.ErrorIs(t, n.Start(ctx), ErrNodeClosed)
	assert.NoError(t, n.Close())

	_, err = n.Dial(ctx, "127.0.0.1:1", "/", types.RoleSubscriber)
	assert.ErrorIs(t, err, ErrNodeClosed)
}

func TestNode_DialSubscribePublish(t *testing.T) {
	reg := prometheus.NewRegistry()
	relay := startRelay(t, WithRegisterer(reg), WithSubscriptionExpires(5*time.Second))
	client := startClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := client.Dial(ctx, relay.Addr().String(), "/live", types.RoleSubscriber)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseEstablished, s.State().Phase())

	role, ok := s.State().PeerRole()
	require.True(t, ok)
	assert.Equal(t, types.RolePublisher, role)

	require.NoError(t, s.Subscribe(&wire.Subscribe{
		SubscribeID:    7,
		TrackAlias:     2,
		TrackNamespace: "live",
		TrackName:      "audio",
		Filter:         types.FilterLatestObject,
	}))

	require.Eventually(t, func() bool {
		o, ok := s.State().SubscriptionOutcome(7)
		return ok && o.Accepted
	}, 5*time.Second, 10*time.Millisecond)
	o, _ := s.State().SubscriptionOutcome(7)
	assert.Equal(t, uint64(5000), o.Expires)

	sent, err := relay.Publish(ctx, "live", "audio", 1, 4, []byte("opus"))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	objs, err := s.NextObjects(ctx)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, objectRef{7, 1, 4}, objectRef{objs[0].SubscribeID, objs[0].GroupID, objs[0].ObjectID})
	assert.Equal(t, []byte("opus"), objs[0].Payload)

	// 没有订阅者的 Track
	sent, err = relay.Publish(ctx, "live", "video", 0, 0, nil)
	require.NoError(t, err)
	assert.Zero(t, sent)

	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP moqt_sessions_active Sessions currently being served.
# TYPE moqt_sessions_active gauge
moqt_sessions_active 1
`), "moqt_sessions_active"))

	// 客户端断开后服务端释放订阅
	require.NoError(t, s.Close())
	require.Eventually(t, func() bool {
		return relay.Registry().Len() == 0 && len(relay.Sessions()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNode_InboundObjects(t *testing.T) {
	t.Run("交给处理函数", func(t *testing.T) {
		got := make(chan session.ObjectPayload, 32)
		relay := startRelay(t, WithObjectHandler(func(_ string, objs []session.ObjectPayload) {
			for _, o := range objs {
				got <- o
			}
		}))
		client := startClient(t)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s, err := client.Dial(ctx, relay.Addr().String(), "/live", types.RolePublisher)
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			require.NoError(t, s.SendObject(ctx, &wire.ObjectStream{SubscribeID: 99, ObjectID: uint64(i), Payload: []byte("x")}))
		}

		seen := make(map[uint64]bool)
		for len(seen) < 20 {
			select {
			case o := <-got:
				assert.Equal(t, uint64(99), o.SubscribeID)
				seen[o.ObjectID] = true
			case <-ctx.Done():
				t.Fatalf("received %d of 20 objects", len(seen))
			}
		}
	})

	t.Run("未设置处理函数时丢弃", func(t *testing.T) {
		relay := startRelay(t, WithMaxQueuedObjects(8))
		client := startClient(t)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		s, err := client.Dial(ctx, relay.Addr().String(), "/live", types.RolePublisher)
		require.NoError(t, err)
		payload := make([]byte, 4096)
		for i := 0; i < 200; i++ {
			require.NoError(t, s.SendObject(ctx, &wire.ObjectStream{SubscribeID: 99, ObjectID: uint64(i), Payload: payload}))
		}

		sessions := relay.Sessions()
		require.Len(t, sessions, 1)
		assert.LessOrEqual(t, sessions[0].State().QueuedPayloads(), 8)
		require.Eventually(t, func() bool {
			return sessions[0].State().QueuedPayloads() == 0
		}, 5*time.Second, 10*time.Millisecond)
	})
}

func TestNode_DialVersionMismatch(t *testing.T) {
	relay := startRelay(t, WithVersion(types.VersionDraft05))
	client := startClient(t, WithVersion(types.VersionDraft04))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := client.Dial(ctx, relay.Addr().String(), "/live", types.RoleSubscriber)
	require.Error(t, err)
	require.Eventually(t, func() bool {
		return len(client.Sessions()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNode_DialInvalidRole(t *testing.T) {
	client := startClient(t)
	_, err := client.Dial(context.Background(), "127.0.0.1:1", "/", types.RoleUnknown)
	assert.ErrorIs(t, err, types.ErrInvalidRole)
}

// objectRef 便于整体比较对象坐标
type objectRef struct {
	SubscribeID, Group, Object uint64
}
