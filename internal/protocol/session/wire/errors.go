package wire

import "errors"

var (
	// ErrMalformed 消息字节无法解析
	ErrMalformed = errors.New("wire: malformed message")

	// ErrUnknownType 未知的消息类型
	ErrUnknownType = errors.New("wire: unknown message type")

	// ErrMessageTooLarge 消息超过大小限制
	ErrMessageTooLarge = errors.New("wire: message too large")

	// ErrParameterIndex 版本与参数列表位置不对应
	ErrParameterIndex = errors.New("wire: parameter index out of range")
)
