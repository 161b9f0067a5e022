package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// Frame 一个完整的线上帧
type Frame struct {
	Type MessageType
	Body []byte
}

// Limits 约束解码时的内存使用
type Limits struct {
	MaxMessageSize uint64
}

// DefaultLimits 返回默认限制
func DefaultLimits() Limits {
	return Limits{
		MaxMessageSize: 1 << 20,
	}
}

// Marshal 将消息编码为完整帧
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	body := m.appendBody(nil)

	out := make([]byte, 0, quicvarint.Len(uint64(m.Type()))+quicvarint.Len(uint64(len(body)))+len(body))
	out = quicvarint.Append(out, uint64(m.Type()))
	out = quicvarint.Append(out, uint64(len(body)))
	return append(out, body...), nil
}

// WriteMessage 编码消息并写入 w
func WriteMessage(w io.Writer, m Message) error {
	b, err := Marshal(m)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadFrame 从 r 读取一个帧
//
// 在帧边界处遇到流结束时返回 io.EOF；帧中途结束返回 io.ErrUnexpectedEOF。
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	br := quicvarint.NewReader(r)

	t, err := quicvarint.Read(br)
	if err != nil {
		return Frame{}, err
	}

	length, err := quicvarint.Read(br)
	if err != nil {
		return Frame{}, unexpectedEOF(err)
	}
	if limits.MaxMessageSize > 0 && length > limits.MaxMessageSize {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, limits.MaxMessageSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(br, body); err != nil {
		return Frame{}, unexpectedEOF(err)
	}

	return Frame{Type: MessageType(t), Body: body}, nil
}

// Decode 将帧解析为消息
func Decode(f Frame) (Message, error) {
	m, err := newMessage(f.Type)
	if err != nil {
		return nil, err
	}
	if err := m.decodeBody(f.Body); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return m, nil
}

// ReadMessage 读取并解析一个消息
func ReadMessage(r io.Reader, limits Limits) (Message, error) {
	f, err := ReadFrame(r, limits)
	if err != nil {
		return nil, err
	}
	return Decode(f)
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
