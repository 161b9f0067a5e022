package moqt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-moqt/internal/core/transport/quic"
	"github.com/dep2p/go-moqt/internal/protocol/session"
	"github.com/dep2p/go-moqt/internal/protocol/session/registry"
	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/lib/log"
	"github.com/dep2p/go-moqt/pkg/types"
)

var logger = log.Logger("moqt")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 空闲状态（已创建，未启动）
	StateIdle NodeState = iota

	// StateRunning 运行中
	StateRunning

	// StateStopped 已停止（不可重新启动）
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// initializeTimeout 初始化超时（Fx App Start）
	initializeTimeout = 30 * time.Second

	// stopTimeout 停止超时（Fx App Stop）
	stopTimeout = 10 * time.Second
)

// Node MoQT 节点
//
// 服务端节点监听 QUIC 连接，为每个入站连接运行一个会话；
// 同一个节点也可以拨号作为客户端。
type Node struct {
	// ────────────────────────────────────────────────────────────────────────
	// 配置和状态
	// ────────────────────────────────────────────────────────────────────────

	opts *options
	app  *fx.App

	// ────────────────────────────────────────────────────────────────────────
	// 核心组件（由 Fx 注入）
	// ────────────────────────────────────────────────────────────────────────

	transport  *quic.Transport
	dispatcher *session.Dispatcher
	registry   *registry.Registry
	metrics    *session.Metrics

	listener *quic.Listener

	// ────────────────────────────────────────────────────────────────────────
	// 会话
	// ────────────────────────────────────────────────────────────────────────

	sessionsMu sync.RWMutex
	sessions   map[string]*session.Session
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	state NodeState
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造函数
// ════════════════════════════════════════════════════════════════════════════

// New 创建新节点
//
// 创建节点但不启动，需要调用 Start() 启动。
//
// 示例：
//
//	node, err := moqt.New(
//	    moqt.WithListenAddr("0.0.0.0:4443"),
//	    moqt.WithMaxSubscriptions(64),
//	)
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	node := &Node{
		opts:     o,
		sessions: make(map[string]*session.Session),
	}

	var err error
	node.app, err = buildFxApp(o, node)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return node, nil
}

// Start 快捷启动函数
//
// 等价于 New() + Start()。
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	node, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		return nil, fmt.Errorf("start node: %w", err)
	}
	return node, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点
//
// 启动 Fx 应用，然后在配置的地址上监听并开始接受连接。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrNodeClosed
	}

	initCtx, initCancel := context.WithTimeout(ctx, initializeTimeout)
	defer initCancel()

	if err := n.app.Start(initCtx); err != nil {
		logger.Error("节点初始化失败", "error", err)
		return fmt.Errorf("initialize failed: %w", err)
	}

	n.ctx, n.cancel = context.WithCancel(context.Background())

	addr := n.opts.config.Transport.ListenAddr
	if !n.opts.noListen && addr != "" {
		l, err := n.transport.Listen(addr)
		if err != nil {
			n.cancel()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			_ = n.app.Stop(stopCtx)
			n.state = StateStopped
			logger.Error("监听地址失败", "addr", addr, "error", err)
			return fmt.Errorf("listen failed: %w", err)
		}
		n.listener = l

		n.wg.Add(1)
		go n.acceptLoop(l)
	}

	n.state = StateRunning
	logger.Info("节点启动成功", "addr", n.addrLocked(), "version", n.opts.config.Session.Version)
	return nil
}

// Stop 停止节点
//
// 关闭监听器与全部会话，然后停止 Fx 应用。停止后不可重新启动。
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateIdle:
		return ErrNotStarted
	case StateStopped:
		return ErrNodeClosed
	}
	n.state = StateStopped
	logger.Info("正在停止节点")

	n.cancel()

	var err error
	if n.listener != nil {
		err = multierr.Append(err, n.listener.Close())
	}
	for _, s := range n.Sessions() {
		err = multierr.Append(err, s.Close())
	}
	n.wg.Wait()

	if serr := n.app.Stop(ctx); serr != nil {
		err = multierr.Append(err, fmt.Errorf("stop fx app: %w", serr))
	}
	if err != nil {
		logger.Warn("停止节点时出现错误", "error", err)
		return err
	}
	logger.Info("节点已停止")
	return nil
}

// Close 关闭节点并释放所有资源，可重复调用
func (n *Node) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	err := n.Stop(ctx)
	if errors.Is(err, ErrNodeClosed) {
		return nil
	}
	if errors.Is(err, ErrNotStarted) {
		n.mu.Lock()
		n.state = StateStopped
		n.mu.Unlock()
		return nil
	}
	return err
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本信息
// ════════════════════════════════════════════════════════════════════════════

// Addr 返回监听地址，未监听时返回 nil
func (n *Node) Addr() net.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.addrLocked()
}

func (n *Node) addrLocked() net.Addr {
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Registry 返回订阅注册表
func (n *Node) Registry() *registry.Registry {
	return n.registry
}

// Metrics 返回会话指标
func (n *Node) Metrics() *session.Metrics {
	return n.metrics
}

// Sessions 返回当前全部会话
func (n *Node) Sessions() []*session.Session {
	n.sessionsMu.RLock()
	defer n.sessionsMu.RUnlock()
	out := make([]*session.Session, 0, len(n.sessions))
	for _, s := range n.sessions {
		out = append(out, s)
	}
	return out
}

// Session 按连接 ID 查找会话
func (n *Node) Session(id string) (*session.Session, bool) {
	n.sessionsMu.RLock()
	defer n.sessionsMu.RUnlock()
	s, ok := n.sessions[id]
	return s, ok
}

// ════════════════════════════════════════════════════════════════════════════
//                              客户端
// ════════════════════════════════════════════════════════════════════════════

// Dial 连接 addr 并完成 SETUP 协商
//
// path 与 role 随每个提供的版本一起发送。返回的会话已进入 Established 阶段。
func (n *Node) Dial(ctx context.Context, addr, path string, role types.Role) (*session.Session, error) {
	runCtx, err := n.runContext()
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidRole, role)
	}

	conn, err := n.transport.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	s := session.NewClientSession(conn, n.dispatcher, path, role)
	n.serve(runCtx, s)

	if err := s.WaitEstablished(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("setup with %s: %w", addr, err)
	}
	logger.Debug("客户端会话已建立", "conn", log.TruncateID(s.ID(), 8), "remote", addr, "path", path)
	return s, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              发布
// ════════════════════════════════════════════════════════════════════════════

// Publish 向订阅了 namespace/name 的全部会话发送一个对象
//
// 返回成功发送的会话数量，发送失败的错误合并返回。
func (n *Node) Publish(ctx context.Context, namespace, name string, group, object uint64, payload []byte) (int, error) {
	if _, err := n.runContext(); err != nil {
		return 0, err
	}

	var (
		sent int
		errs error
	)
	for _, h := range n.registry.Lookup(namespace, name) {
		s, ok := n.Session(h.ConnID)
		if !ok {
			continue
		}
		err := s.SendObject(ctx, &wire.ObjectStream{
			SubscribeID: h.SubscribeID,
			TrackAlias:  h.TrackAlias,
			GroupID:     group,
			ObjectID:    object,
			Payload:     payload,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("conn %s: %w", log.TruncateID(h.ConnID, 8), err))
			continue
		}
		sent++
	}
	return sent, errs
}

// ════════════════════════════════════════════════════════════════════════════
//                              内部
// ════════════════════════════════════════════════════════════════════════════

func (n *Node) runContext() (context.Context, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	switch n.state {
	case StateIdle:
		return nil, ErrNotStarted
	case StateStopped:
		return nil, ErrNodeClosed
	}
	return n.ctx, nil
}

// acceptLoop 接受入站连接，每个连接运行一个服务端会话
func (n *Node) acceptLoop(l *quic.Listener) {
	defer n.wg.Done()
	for {
		conn, err := l.Accept(n.ctx)
		if err != nil {
			if n.ctx.Err() == nil && !errors.Is(err, quic.ErrListenerClosed) {
				logger.Warn("接受连接失败", "error", err)
			}
			return
		}
		logger.Debug("接受入站连接", "remote", conn.RemoteAddr().String())
		s := session.NewServerSession(conn, n.dispatcher)
		n.serve(n.ctx, s)

		n.wg.Add(1)
		go n.consumeObjects(s)
	}
}

// consumeObjects 取出入站会话的对象队列，交给处理函数或丢弃
func (n *Node) consumeObjects(s *session.Session) {
	defer n.wg.Done()
	for {
		objs, err := s.NextObjects(n.ctx)
		if err != nil {
			return
		}
		if n.opts.objectHandler != nil {
			n.opts.objectHandler(s.ID(), objs)
			continue
		}
		logger.Debug("丢弃入站对象", "conn", log.TruncateID(s.ID(), 8), "count", len(objs))
	}
}

// serve 登记会话并在后台运行，会话结束后移除
func (n *Node) serve(ctx context.Context, s *session.Session) {
	n.sessionsMu.Lock()
	n.sessions[s.ID()] = s
	n.sessionsMu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := s.Serve(ctx); err != nil {
			logger.Debug("会话异常结束", "conn", log.TruncateID(s.ID(), 8), "error", err)
		}
		n.sessionsMu.Lock()
		delete(n.sessions, s.ID())
		n.sessionsMu.Unlock()
	}()
}
