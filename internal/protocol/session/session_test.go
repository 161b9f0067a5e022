package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/types"
)

// ============================================================================
//                              内存连接
// ============================================================================

var errPipeClosed = errors.New("pipe connection closed")

// pipeNet 一对内存连接共享的流集合
type pipeNet struct {
	mu      sync.Mutex
	streams []io.Closer
}

func (n *pipeNet) track(c io.Closer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.streams = append(n.streams, c)
}

func (n *pipeNet) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.streams {
		_ = c.Close()
	}
}

type pipeConn struct {
	net    *pipeNet
	peer   *pipeConn
	ctx    context.Context
	cancel context.CancelCauseFunc
	bidi   chan Stream
	uni    chan ReceiveStream

	once      sync.Once
	mu        sync.Mutex
	closeCode *uint64
}

func newPipeConns() (*pipeConn, *pipeConn) {
	n := &pipeNet{}
	mk := func() *pipeConn {
		ctx, cancel := context.WithCancelCause(context.Background())
		return &pipeConn{
			net:    n,
			ctx:    ctx,
			cancel: cancel,
			bidi:   make(chan Stream, 4),
			uni:    make(chan ReceiveStream, 64),
		}
	}
	a, b := mk(), mk()
	a.peer, b.peer = b, a
	return a, b
}

func (c *pipeConn) AcceptStream(ctx context.Context) (Stream, error) {
	select {
	case s := <-c.bidi:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, errPipeClosed
	}
}

func (c *pipeConn) OpenStreamSync(context.Context) (Stream, error) {
	if c.ctx.Err() != nil {
		return nil, errPipeClosed
	}
	local, remote := net.Pipe()
	c.net.track(local)
	c.peer.bidi <- remote
	return local, nil
}

func (c *pipeConn) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	select {
	case s := <-c.uni:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, errPipeClosed
	}
}

func (c *pipeConn) OpenUniStreamSync(context.Context) (SendStream, error) {
	if c.ctx.Err() != nil {
		return nil, errPipeClosed
	}
	r, w := io.Pipe()
	c.net.track(r)
	c.peer.uni <- r
	return w, nil
}

func (c *pipeConn) CloseWithError(code uint64, msg string) error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeCode = &code
		c.mu.Unlock()

		c.peer.cancel(errPipeClosed)
		c.cancel(errPipeClosed)
		c.net.closeAll()
	})
	return nil
}

func (c *pipeConn) Context() context.Context {
	return c.ctx
}

func (c *pipeConn) code() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeCode == nil {
		return 0, false
	}
	return *c.closeCode, true
}

type registryFunc func(ConnInfo, *wire.Subscribe) (SubscriptionHandle, error)

func (f registryFunc) TryRegisterSubscription(c ConnInfo, r *wire.Subscribe) (SubscriptionHandle, error) {
	return f(c, r)
}

func acceptAll(c ConnInfo, r *wire.Subscribe) (SubscriptionHandle, error) {
	return SubscriptionHandle{ConnID: c.ID, SubscribeID: r.SubscribeID}, nil
}

func serve(ctx context.Context, s *Session) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- s.Serve(ctx) }()
	return ch
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("等待 Serve 返回超时")
		return nil
	}
}

// ============================================================================
//                              测试
// ============================================================================

func TestSession_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverConn, clientConn := newPipeConns()
	serverDisp := newTestDispatcher(t, registryFunc(acceptAll))
	clientDisp := newTestDispatcher(t, registryFunc(acceptAll))

	server := NewServerSession(serverConn, serverDisp)
	client := NewClientSession(clientConn, clientDisp, "/live", types.RoleSubscriber)

	// 协商完成前不能订阅
	assert.ErrorIs(t, client.Subscribe(&wire.Subscribe{SubscribeID: 1}), ErrProtocolOrdering)

	serverDone := serve(ctx, server)
	clientDone := serve(ctx, client)

	require.NoError(t, client.WaitEstablished(ctx))
	require.NoError(t, server.WaitEstablished(ctx))

	assert.Equal(t, "/live", server.State().Path())
	role, _ := server.State().PeerRole()
	assert.Equal(t, types.RoleSubscriber, role)
	role, _ = client.State().PeerRole()
	assert.Equal(t, types.RolePublisher, role)
	assert.True(t, client.State().ExpectControlStreamShutdown())

	require.NoError(t, client.Subscribe(&wire.Subscribe{SubscribeID: 1, TrackNamespace: "live", TrackName: "video"}))
	require.Eventually(t, func() bool {
		o, ok := client.State().SubscriptionOutcome(1)
		return ok && o.Accepted
	}, 5*time.Second, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, server.SendObject(ctx, &wire.ObjectStream{
			SubscribeID: 1,
			ObjectID:    uint64(i),
			Payload:     []byte{byte(i)},
		}))
	}

	var got []ObjectPayload
	for len(got) < 3 {
		objs, err := client.NextObjects(ctx)
		require.NoError(t, err)
		got = append(got, objs...)
	}
	for _, o := range got {
		assert.Equal(t, uint64(1), o.SubscribeID)
		assert.Equal(t, []byte{byte(o.ObjectID)}, o.Payload)
	}

	require.NoError(t, client.Close())
	assert.NoError(t, waitErr(t, clientDone))
	assert.NoError(t, waitErr(t, serverDone))

	_, err := client.NextObjects(ctx)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, client.SendObject(ctx, &wire.ObjectStream{}), ErrConnectionClosed)
}

func TestSession_VersionMismatchClosesConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverConn, clientConn := newPipeConns()
	server := NewServerSession(serverConn, newTestDispatcher(t, registryFunc(acceptAll), WithVersion(2)))
	client := NewClientSession(clientConn,
		newTestDispatcher(t, registryFunc(acceptAll), WithSupportedVersions(1, 3)),
		"/live", types.RoleSubscriber)

	serverDone := serve(ctx, server)
	clientDone := serve(ctx, client)

	err := waitErr(t, serverDone)
	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.ErrorIs(t, server.Err(), ErrVersionMismatch)

	code, ok := serverConn.code()
	require.True(t, ok)
	assert.Equal(t, CloseCodeVersionMismatch, code)

	assert.NoError(t, waitErr(t, clientDone))
	assert.Error(t, client.WaitEstablished(ctx))
	assert.Empty(t, server.State().Path())
}

func TestSession_UnexpectedControlStreamClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serverConn, rawConn := newPipeConns()
	d := newTestDispatcher(t, registryFunc(acceptAll))
	server := NewServerSession(serverConn, d)
	serverDone := serve(ctx, server)

	control, err := rawConn.OpenStreamSync(ctx)
	require.NoError(t, err)
	require.NoError(t, wire.WriteMessage(control, d.BuildClientSetup("/raw", types.RolePubSub)))

	reply, err := wire.ReadMessage(control, wire.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, wire.TypeServerSetup, reply.Type())

	// 服务端不期望控制流关闭
	require.NoError(t, control.Close())
	assert.ErrorIs(t, waitErr(t, serverDone), ErrControlStreamClosed)

	code, _ := serverConn.code()
	assert.Equal(t, CloseCodeProtocolViolation, code)
}

func TestSession_ExpectedControlStreamClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rawConn, clientConn := newPipeConns()
	client := NewClientSession(clientConn, newTestDispatcher(t, registryFunc(acceptAll)), "/live", types.RoleSubscriber)
	clientDone := serve(ctx, client)

	control, err := rawConn.AcceptStream(ctx)
	require.NoError(t, err)
	setup, err := wire.ReadMessage(control, wire.DefaultLimits())
	require.NoError(t, err)

	cs := setup.(*wire.ClientSetup)
	p, err := cs.Offer(cs.IndexOf(types.DefaultVersion))
	require.NoError(t, err)
	assert.Equal(t, "/live", p.Path)

	require.NoError(t, wire.WriteMessage(control, &wire.ServerSetup{
		SelectedVersion: types.DefaultVersion,
		Parameters:      []wire.ServerSetupParameters{{Role: types.RolePublisher}},
	}))
	require.NoError(t, client.WaitEstablished(ctx))

	require.NoError(t, control.Close())
	assert.NoError(t, waitErr(t, clientDone))

	code, _ := clientConn.code()
	assert.Equal(t, CloseCodeNoError, code)
}

func TestSession_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	serverConn, clientConn := newPipeConns()
	server := NewServerSession(serverConn, newTestDispatcher(t, registryFunc(acceptAll)))
	serverDone := serve(ctx, server)

	control, err := clientConn.OpenStreamSync(context.Background())
	require.NoError(t, err)
	require.NoError(t, wire.WriteMessage(control,
		newTestDispatcher(t, registryFunc(acceptAll)).BuildClientSetup("/c", types.RoleSubscriber)))
	_, err = wire.ReadMessage(control, wire.DefaultLimits())
	require.NoError(t, err)

	cancel()
	assert.NoError(t, waitErr(t, serverDone))
	assert.True(t, server.State().Closed())

	assert.Error(t, server.Serve(context.Background()))
}
