package session

import (
	"context"
	"io"
)

// Conn 会话所需的传输连接能力
//
// QUIC 传输层的连接实现该接口；测试中可以用内存管道替代。
type Conn interface {
	// AcceptStream 接受对端打开的双向流（控制流）
	AcceptStream(ctx context.Context) (Stream, error)

	// OpenStreamSync 打开双向流
	OpenStreamSync(ctx context.Context) (Stream, error)

	// AcceptUniStream 接受对端打开的单向流（对象流）
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)

	// OpenUniStreamSync 打开单向流
	OpenUniStreamSync(ctx context.Context) (SendStream, error)

	// CloseWithError 以应用错误码关闭连接
	CloseWithError(code uint64, msg string) error

	// Context 连接关闭时被取消
	Context() context.Context
}

// Stream 双向流
type Stream interface {
	io.ReadWriteCloser
}

// ReceiveStream 单向接收流
type ReceiveStream interface {
	io.Reader
}

// SendStream 单向发送流
type SendStream interface {
	io.WriteCloser
}

// 应用层关闭码
const (
	// CloseCodeNoError 正常关闭
	CloseCodeNoError uint64 = 0x0
	// CloseCodeProtocolViolation 对端违反协议
	CloseCodeProtocolViolation uint64 = 0x3
	// CloseCodeVersionMismatch 没有共同版本
	CloseCodeVersionMismatch uint64 = 0x10
)

// closeCodeOf 将会话错误映射为关闭码
func closeCodeOf(err error) uint64 {
	switch {
	case err == nil:
		return CloseCodeNoError
	case isVersionMismatch(err):
		return CloseCodeVersionMismatch
	default:
		return CloseCodeProtocolViolation
	}
}
