package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/lib/log"
	"github.com/dep2p/go-moqt/pkg/types"
)

// errControlDone 控制流按预期结束
var errControlDone = errors.New("control stream done")

// Session 一个连接上的会话
//
// 服务端接受对端打开的控制流；客户端打开控制流并发送 CLIENT_SETUP。
// Serve 运行控制流读写循环和对象流接收循环，任一循环以连接级错误退出时
// 整个会话结束，连接以对应的关闭码关闭。
type Session struct {
	conn       Conn
	dispatcher *Dispatcher
	state      *ConnectionState

	// 仅客户端使用
	path string
	role types.Role

	mu      sync.Mutex
	control Stream
	cancel  context.CancelFunc
	started bool

	closeOnce sync.Once
	connOnce  sync.Once
	done      chan struct{}
	err       error
}

// NewServerSession 创建服务端会话
func NewServerSession(conn Conn, d *Dispatcher) *Session {
	return newSession(conn, d, PerspectiveServer)
}

// NewClientSession 创建客户端会话，path 与 role 随每个版本一起提供
func NewClientSession(conn Conn, d *Dispatcher, path string, role types.Role) *Session {
	s := newSession(conn, d, PerspectiveClient)
	s.path = path
	s.role = role
	return s
}

func newSession(conn Conn, d *Dispatcher, p Perspective) *Session {
	return &Session{
		conn:       conn,
		dispatcher: d,
		state:      NewConnectionState(p),
		done:       make(chan struct{}),
	}
}

// State 返回连接状态
func (s *Session) State() *ConnectionState {
	return s.state
}

// ID 返回连接 ID
func (s *Session) ID() string {
	return s.state.ID()
}

// Done Serve 返回后关闭
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err 返回会话结束原因，会话未结束时返回 nil
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Serve 运行会话直到连接关闭或出现连接级错误
//
// 控制流按预期关闭时返回 nil。
func (s *Session) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("session: already serving")
	}
	s.started = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	metrics := s.dispatcher.config.Metrics
	metrics.sessionStarted()
	defer metrics.sessionEnded()

	logger.Debug("会话开始",
		"conn", log.TruncateID(s.ID(), 8),
		"perspective", s.state.Perspective())

	control, err := s.openControl(ctx)
	if err != nil {
		s.finish(err)
		return err
	}

	var peerClosed bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readControl(control) })
	g.Go(func() error { return s.writeControl(gctx, control) })
	g.Go(func() error { return s.acceptObjects(gctx, g) })
	g.Go(func() error {
		// 任一循环退出后关闭连接，解除其余循环的阻塞读
		<-gctx.Done()
		peerClosed = s.conn.Context().Err() != nil
		cause := context.Cause(gctx)
		if errors.Is(cause, errControlDone) || ctx.Err() != nil {
			cause = nil
		}
		s.closeConn(cause)
		return nil
	})

	err = g.Wait()
	switch {
	case errors.Is(err, errControlDone):
		err = nil
	case err != nil && peerClosed:
		logger.Debug("对端关闭连接", "conn", log.TruncateID(s.ID(), 8), "cause", context.Cause(s.conn.Context()))
		err = nil
	case err != nil && ctx.Err() != nil:
		err = nil
	}

	s.finish(err)
	return err
}

// WaitEstablished 阻塞直到协商完成
func (s *Session) WaitEstablished(ctx context.Context) error {
	select {
	case <-s.state.Established():
		return nil
	case <-s.done:
		if s.err != nil {
			return s.err
		}
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe 在控制流上发送订阅请求
func (s *Session) Subscribe(req *wire.Subscribe) error {
	if s.state.Phase() != PhaseEstablished {
		return fmt.Errorf("%w: subscribe before setup completed", ErrProtocolOrdering)
	}
	b, err := wire.Marshal(req)
	if err != nil {
		return err
	}
	return s.state.EnqueueControlBuffer(b)
}

// SendObject 在新的单向流上发送一个对象
func (s *Session) SendObject(ctx context.Context, obj *wire.ObjectStream) error {
	if s.state.Closed() {
		return ErrConnectionClosed
	}
	if s.state.Phase() != PhaseEstablished {
		return fmt.Errorf("%w: object before setup completed", ErrProtocolOrdering)
	}

	str, err := s.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open object stream: %w", err)
	}
	if err := wire.WriteMessage(str, obj); err != nil {
		return multierr.Append(fmt.Errorf("write object: %w", err), str.Close())
	}
	return str.Close()
}

// NextObjects 阻塞直到有入站对象，返回全部已到达的对象
func (s *Session) NextObjects(ctx context.Context) ([]ObjectPayload, error) {
	for {
		if objs := s.state.DrainPayloads(); len(objs) > 0 {
			return objs, nil
		}
		select {
		case _, ok := <-s.state.PayloadNotify():
			if !ok {
				return nil, ErrConnectionClosed
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close 关闭会话与底层连接，可重复调用
func (s *Session) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	control := s.control
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if control != nil {
		err = multierr.Append(err, control.Close())
	}
	s.dispatcher.Release(s.state)
	return multierr.Append(err, s.closeConn(nil))
}

// ============================================================================
//                              内部循环
// ============================================================================

func (s *Session) openControl(ctx context.Context) (Stream, error) {
	var (
		control Stream
		err     error
	)
	if s.state.Perspective() == PerspectiveServer {
		control, err = s.conn.AcceptStream(ctx)
		if err != nil {
			return nil, fmt.Errorf("accept control stream: %w", err)
		}
	} else {
		control, err = s.conn.OpenStreamSync(ctx)
		if err != nil {
			return nil, fmt.Errorf("open control stream: %w", err)
		}
		b, err := wire.Marshal(s.dispatcher.BuildClientSetup(s.path, s.role))
		if err != nil {
			return nil, err
		}
		if err := s.state.EnqueueControlBuffer(b); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.control = control
	s.mu.Unlock()
	return control, nil
}

// readControl 读取控制流直到结束
func (s *Session) readControl(control Stream) error {
	for {
		err := s.dispatcher.Dispatch(s.state, control, wire.ControlTypes...)
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			if s.state.ExpectControlStreamShutdown() {
				logger.Debug("控制流按预期关闭", "conn", log.TruncateID(s.ID(), 8))
				return errControlDone
			}
			return ErrControlStreamClosed
		case errors.Is(err, ErrFraming):
			return err
		}

		switch SeverityOf(err) {
		case SeverityRequest, SeverityMessage:
			logger.Debug("丢弃控制消息", "conn", log.TruncateID(s.ID(), 8), "error", err)
		default:
			logger.Warn("控制流错误", "conn", log.TruncateID(s.ID(), 8), "error", err)
			return err
		}
	}
}

// writeControl 将控制队列写入控制流
func (s *Session) writeControl(ctx context.Context, control Stream) error {
	notify := s.state.ControlNotify()
	for {
		for _, b := range s.state.DrainControl() {
			if _, err := control.Write(b); err != nil {
				return fmt.Errorf("write control stream: %w", err)
			}
		}
		select {
		case _, ok := <-notify:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// acceptObjects 接受对象流，每个流由独立的 goroutine 读取
func (s *Session) acceptObjects(ctx context.Context, g *errgroup.Group) error {
	for {
		str, err := s.conn.AcceptUniStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept object stream: %w", err)
		}
		g.Go(func() error {
			s.readObjects(str)
			return nil
		})
	}
}

// readObjects 读取一个对象流
//
// 对象流上的错误只结束该流，不影响会话。
func (s *Session) readObjects(str ReceiveStream) {
	for {
		err := s.dispatcher.Dispatch(s.state, str, wire.TypeObjectStream)
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			return
		case SeverityOf(err) == SeverityMessage && !errors.Is(err, ErrFraming):
			logger.Debug("丢弃对象消息", "conn", log.TruncateID(s.ID(), 8), "error", err)
			continue
		default:
			logger.Debug("对象流结束", "conn", log.TruncateID(s.ID(), 8), "error", err)
			return
		}
	}
}

// finish 释放连接状态并关闭连接
func (s *Session) finish(err error) {
	s.closeOnce.Do(func() {
		s.err = err
		s.dispatcher.Release(s.state)
		if cerr := s.closeConn(err); cerr != nil {
			logger.Debug("关闭连接失败", "conn", log.TruncateID(s.ID(), 8), "error", cerr)
		}
		if err != nil {
			logger.Info("会话结束", "conn", log.TruncateID(s.ID(), 8), "error", err)
		} else {
			logger.Debug("会话结束", "conn", log.TruncateID(s.ID(), 8))
		}
		close(s.done)
	})
}

// closeConn 以 err 对应的关闭码关闭连接，只生效一次
func (s *Session) closeConn(err error) error {
	var cerr error
	s.connOnce.Do(func() {
		cerr = s.conn.CloseWithError(closeCodeOf(err), errString(err))
	})
	return cerr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func isVersionMismatch(err error) bool {
	return errors.Is(err, ErrVersionMismatch)
}
