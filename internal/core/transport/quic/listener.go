package quic

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-moqt/pkg/types"
)

// Listener QUIC 监听器
type Listener struct {
	quicListener *quic.Listener
	addr         net.Addr
	transport    *Transport
	closed       atomic.Bool
}

// Accept 接受连接
//
// 监听器关闭后返回 ErrListenerClosed。
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	if l.closed.Load() {
		return nil, ErrListenerClosed
	}

	qc, err := l.quicListener.Accept(ctx)
	if err != nil {
		if l.closed.Load() {
			return nil, ErrListenerClosed
		}
		return nil, fmt.Errorf("accept: %w", err)
	}

	logger.Debug("接受 QUIC 连接", "remote", qc.RemoteAddr().String())
	return newConn(qc, types.DirInbound), nil
}

// Addr 返回实际监听地址
func (l *Listener) Addr() net.Addr {
	return l.addr
}

// Close 关闭监听器
func (l *Listener) Close() error {
	if l.closed.Load() {
		return nil
	}
	l.transport.removeListener(l)
	return l.close()
}

// close 由 Transport 在持有锁时调用
func (l *Listener) close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.quicListener.Close()
}

// IsClosed 检查监听器是否已关闭
func (l *Listener) IsClosed() bool {
	return l.closed.Load()
}
