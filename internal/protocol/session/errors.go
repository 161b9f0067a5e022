package session

import (
	"errors"
	"fmt"
)

// 错误定义
var (
	// ErrVersionMismatch 双方没有共同的协议版本
	ErrVersionMismatch = errors.New("session: no common protocol version")

	// ErrMalformedSetup SETUP 参数越界或违反路径/角色约束
	ErrMalformedSetup = errors.New("session: malformed setup")

	// ErrProtocolOrdering 消息在当前阶段不被允许
	ErrProtocolOrdering = errors.New("session: message not allowed in current phase")

	// ErrAdmission 订阅被注册表拒绝
	ErrAdmission = errors.New("session: subscription rejected")

	// ErrConnectionClosed 连接已拆除
	ErrConnectionClosed = errors.New("session: connection closed")

	// ErrDecode 消息字节无法解码
	ErrDecode = errors.New("session: decode failed")

	// ErrFraming 帧边界丢失，该流无法继续读取
	ErrFraming = errors.New("session: stream framing lost")

	// ErrUnknownMessage 未知消息类型
	ErrUnknownMessage = errors.New("session: unknown message")

	// ErrQueueFull 入站对象队列已满，对象被丢弃
	ErrQueueFull = errors.New("session: inbound object queue full")

	// ErrControlStreamClosed 控制流在不期望的时候关闭
	ErrControlStreamClosed = errors.New("session: control stream closed unexpectedly")

	// ErrNilRegistry 订阅注册表为 nil
	ErrNilRegistry = errors.New("session: subscription registry is nil")
)

// AdmissionError 订阅准入失败
//
// 同时匹配 ErrAdmission 与注册表返回的原始错误。
type AdmissionError struct {
	SubscribeID uint64
	Code        uint64
	Err         error
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("session: subscription %d rejected (code %d): %v", e.SubscribeID, e.Code, e.Err)
}

// Unwrap 返回 ErrAdmission 和原始错误
func (e *AdmissionError) Unwrap() []error {
	return []error{ErrAdmission, e.Err}
}

// ============================================================================
//                              Severity
// ============================================================================

// Severity 错误的影响范围
type Severity int

const (
	// SeverityNone 无错误
	SeverityNone Severity = iota
	// SeverityRequest 仅影响单个请求（订阅被拒）
	SeverityRequest
	// SeverityMessage 丢弃当前消息，连接继续
	SeverityMessage
	// SeverityConnection 连接级错误，是否断开由调用方决定
	SeverityConnection
	// SeverityClosed 连接已关闭，操作为空操作
	SeverityClosed
)

// String 返回严重级别名称
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityRequest:
		return "request"
	case SeverityMessage:
		return "message"
	case SeverityConnection:
		return "connection"
	case SeverityClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SeverityOf 对处理器返回的错误分级
func SeverityOf(err error) Severity {
	switch {
	case err == nil:
		return SeverityNone
	case errors.Is(err, ErrConnectionClosed):
		return SeverityClosed
	case errors.Is(err, ErrAdmission):
		return SeverityRequest
	case errors.Is(err, ErrDecode), errors.Is(err, ErrUnknownMessage), errors.Is(err, ErrQueueFull):
		return SeverityMessage
	default:
		return SeverityConnection
	}
}
