package session

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/lib/log"
)

var logger = log.Logger("protocol/session")

// SubscriptionHandle 注册表接受订阅后返回的句柄
type SubscriptionHandle struct {
	ID             string
	ConnID         string
	SubscribeID    uint64
	TrackAlias     uint64
	TrackNamespace string
	TrackName      string
	Expires        time.Duration
}

// SubscriptionRegistry 订阅准入能力
//
// 调用时连接状态的锁处于持有状态，实现不得回调 ConnectionState。
type SubscriptionRegistry interface {
	TryRegisterSubscription(conn ConnInfo, req *wire.Subscribe) (SubscriptionHandle, error)
}

// ConnectionReleaser 可选接口：连接拆除时释放该连接的全部订阅
type ConnectionReleaser interface {
	Unregister(connID string) int
}

// ErrorCoder 可选接口：注册表错误携带 SUBSCRIBE_ERROR 错误码
type ErrorCoder interface {
	SubscribeErrorCode() uint64
}

// Dispatcher 消息分发器
//
// 本身不持有任何连接状态，只保存不可变配置，可被所有连接共享。
type Dispatcher struct {
	registry SubscriptionRegistry
	config   *Config
}

// NewDispatcher 创建分发器
func NewDispatcher(registry SubscriptionRegistry, opts ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	return &Dispatcher{
		registry: registry,
		config:   config,
	}, nil
}

// Config 返回分发器配置
func (d *Dispatcher) Config() *Config {
	return d.config
}

// Dispatch 从 r 读取一帧并交给对应处理器
//
// accept 限定该流上允许的消息类型，为空时不限制。
// 在帧边界处流结束时返回 io.EOF。
func (d *Dispatcher) Dispatch(state *ConnectionState, r io.Reader, accept ...wire.MessageType) error {
	f, err := wire.ReadFrame(r, d.config.Limits)
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	state.beginNegotiation()
	if err != nil {
		return fmt.Errorf("%w: %w: %w", ErrDecode, ErrFraming, err)
	}

	if !f.Type.Known() {
		d.config.Metrics.observeMessage(f.Type, ErrUnknownMessage)
		return fmt.Errorf("%w: %s", ErrUnknownMessage, f.Type)
	}
	if len(accept) > 0 && !slices.Contains(accept, f.Type) {
		err := fmt.Errorf("%w: %s not expected on this stream", ErrProtocolOrdering, f.Type)
		d.config.Metrics.observeMessage(f.Type, err)
		return err
	}

	msg, err := wire.Decode(f)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrDecode, err)
		d.config.Metrics.observeMessage(f.Type, err)
		return err
	}

	return d.HandleMessage(state, msg)
}

// HandleMessage 按消息类型路由到处理器
//
// 整个处理过程持有连接状态的锁。
func (d *Dispatcher) HandleMessage(state *ConnectionState, msg wire.Message) (err error) {
	if isNilMessage(msg) {
		return fmt.Errorf("%w: nil message", ErrUnknownMessage)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	defer func() {
		d.config.Metrics.observeMessage(msg.Type(), err)
	}()

	if state.closed {
		return ErrConnectionClosed
	}
	if state.phase == PhaseUninitialized {
		state.phase = PhaseNegotiating
	}
	if err := checkPhaseLocked(state, msg); err != nil {
		logger.Debug("消息顺序错误", "conn", log.TruncateID(state.id, 8), "type", msg.Type(), "phase", state.phase)
		return err
	}

	switch m := msg.(type) {
	case *wire.ClientSetup:
		return d.handleClientSetupLocked(state, m)
	case *wire.ServerSetup:
		return d.handleServerSetupLocked(state, m)
	case *wire.Subscribe:
		return d.handleSubscribeLocked(state, m)
	case *wire.SubscribeOk:
		return d.handleSubscribeOkLocked(state, m)
	case *wire.SubscribeError:
		return d.handleSubscribeErrorLocked(state, m)
	case *wire.ObjectStream:
		return d.handleObjectLocked(state, m)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type())
	}
}

// Release 拆除连接并释放其订阅
func (d *Dispatcher) Release(state *ConnectionState) {
	state.Close()
	if r, ok := d.registry.(ConnectionReleaser); ok {
		if n := r.Unregister(state.ID()); n > 0 {
			logger.Debug("释放连接订阅", "conn", log.TruncateID(state.ID(), 8), "count", n)
		}
	}
}

// isNilMessage 同时识别 nil 接口与值为 nil 的消息指针
func isNilMessage(msg wire.Message) bool {
	switch m := msg.(type) {
	case nil:
		return true
	case *wire.ClientSetup:
		return m == nil
	case *wire.ServerSetup:
		return m == nil
	case *wire.Subscribe:
		return m == nil
	case *wire.SubscribeOk:
		return m == nil
	case *wire.SubscribeError:
		return m == nil
	case *wire.ObjectStream:
		return m == nil
	default:
		return false
	}
}

// checkPhaseLocked 检查消息是否允许出现在当前阶段
func checkPhaseLocked(state *ConnectionState, msg wire.Message) error {
	if state.phase == PhaseFailed {
		return fmt.Errorf("%w: connection failed, %s dropped", ErrProtocolOrdering, msg.Type())
	}

	switch msg.Type() {
	case wire.TypeClientSetup, wire.TypeServerSetup:
		want := wire.TypeClientSetup
		if state.perspective == PerspectiveClient {
			want = wire.TypeServerSetup
		}
		if msg.Type() != want {
			return fmt.Errorf("%w: %s received by %s", ErrProtocolOrdering, msg.Type(), state.perspective)
		}
		if state.phase != PhaseNegotiating {
			return fmt.Errorf("%w: duplicate %s", ErrProtocolOrdering, msg.Type())
		}
	default:
		if state.phase != PhaseEstablished {
			return fmt.Errorf("%w: %s before setup completed", ErrProtocolOrdering, msg.Type())
		}
	}
	return nil
}

// beginNegotiation 首次读取字节后进入协商阶段
func (s *ConnectionState) beginNegotiation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUninitialized {
		s.phase = PhaseNegotiating
	}
}
