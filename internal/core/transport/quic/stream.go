package quic

import (
	"time"

	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-moqt/internal/protocol/session"
)

// 确保实现了接口
var _ session.Stream = (*Stream)(nil)

// Stream QUIC 双向流封装
type Stream struct {
	quicStream *quic.Stream
}

func newStream(qs *quic.Stream) *Stream {
	return &Stream{quicStream: qs}
}

// Read 从流中读取数据
func (s *Stream) Read(p []byte) (int, error) {
	return s.quicStream.Read(p)
}

// Write 向流写入数据
func (s *Stream) Write(p []byte) (int, error) {
	return s.quicStream.Write(p)
}

// Close 关闭写端并停止读取
func (s *Stream) Close() error {
	s.quicStream.CancelRead(0)
	return s.quicStream.Close()
}

// CloseWrite 只关闭写端，对端读到 EOF
func (s *Stream) CloseWrite() error {
	return s.quicStream.Close()
}

// ID 返回流 ID
func (s *Stream) ID() uint64 {
	return uint64(s.quicStream.StreamID())
}

// SetDeadline 设置读写超时
func (s *Stream) SetDeadline(t time.Time) error {
	return s.quicStream.SetDeadline(t)
}
