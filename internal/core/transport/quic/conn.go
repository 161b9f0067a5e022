package quic

import (
	"context"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-moqt/internal/protocol/session"
	"github.com/dep2p/go-moqt/pkg/types"
)

// 确保实现了接口
var _ session.Conn = (*Conn)(nil)

// Conn QUIC 连接
//
// 双向流返回 *Stream，单向流直接返回 quic-go 的流类型。
type Conn struct {
	quicConn  *quic.Conn
	direction types.Direction
	opened    time.Time
}

func newConn(qc *quic.Conn, dir types.Direction) *Conn {
	return &Conn{
		quicConn:  qc,
		direction: dir,
		opened:    time.Now(),
	}
}

// AcceptStream 接受对端打开的双向流
func (c *Conn) AcceptStream(ctx context.Context) (session.Stream, error) {
	qs, err := c.quicConn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return newStream(qs), nil
}

// OpenStreamSync 打开双向流，流数量达到上限时阻塞
func (c *Conn) OpenStreamSync(ctx context.Context) (session.Stream, error) {
	qs, err := c.quicConn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return newStream(qs), nil
}

// AcceptUniStream 接受对端打开的单向流
func (c *Conn) AcceptUniStream(ctx context.Context) (session.ReceiveStream, error) {
	rs, err := c.quicConn.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// OpenUniStreamSync 打开单向流，流数量达到上限时阻塞
func (c *Conn) OpenUniStreamSync(ctx context.Context) (session.SendStream, error) {
	ss, err := c.quicConn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return ss, nil
}

// CloseWithError 以应用错误码关闭连接
func (c *Conn) CloseWithError(code uint64, msg string) error {
	return c.quicConn.CloseWithError(quic.ApplicationErrorCode(code), msg)
}

// Context 连接关闭时被取消
func (c *Conn) Context() context.Context {
	return c.quicConn.Context()
}

// LocalAddr 返回本地地址
func (c *Conn) LocalAddr() net.Addr {
	return c.quicConn.LocalAddr()
}

// RemoteAddr 返回远端地址
func (c *Conn) RemoteAddr() net.Addr {
	return c.quicConn.RemoteAddr()
}

// Direction 返回连接方向
func (c *Conn) Direction() types.Direction {
	return c.direction
}

// Opened 返回连接建立时间
func (c *Conn) Opened() time.Time {
	return c.opened
}

// NegotiatedProtocol 返回 ALPN 协商结果
func (c *Conn) NegotiatedProtocol() string {
	return c.quicConn.ConnectionState().TLS.NegotiatedProtocol
}
