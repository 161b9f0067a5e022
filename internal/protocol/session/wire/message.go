package wire

import (
	"fmt"

	"github.com/dep2p/go-moqt/pkg/types"
)

// MessageType 消息类型（帧头中的 Type 字段）
type MessageType uint64

const (
	// TypeObjectStream OBJECT_STREAM
	TypeObjectStream MessageType = 0x00
	// TypeSubscribe SUBSCRIBE
	TypeSubscribe MessageType = 0x03
	// TypeSubscribeOk SUBSCRIBE_OK
	TypeSubscribeOk MessageType = 0x04
	// TypeSubscribeError SUBSCRIBE_ERROR
	TypeSubscribeError MessageType = 0x05
	// TypeClientSetup CLIENT_SETUP
	TypeClientSetup MessageType = 0x40
	// TypeServerSetup SERVER_SETUP
	TypeServerSetup MessageType = 0x41
)

// ControlTypes 控制流上允许出现的消息类型
var ControlTypes = []MessageType{
	TypeClientSetup,
	TypeServerSetup,
	TypeSubscribe,
	TypeSubscribeOk,
	TypeSubscribeError,
}

// Known 是否为已定义的消息类型
func (t MessageType) Known() bool {
	switch t {
	case TypeObjectStream, TypeSubscribe, TypeSubscribeOk, TypeSubscribeError, TypeClientSetup, TypeServerSetup:
		return true
	}
	return false
}

// String 返回消息类型名称
func (t MessageType) String() string {
	switch t {
	case TypeObjectStream:
		return "OBJECT_STREAM"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeSubscribeOk:
		return "SUBSCRIBE_OK"
	case TypeSubscribeError:
		return "SUBSCRIBE_ERROR"
	case TypeClientSetup:
		return "CLIENT_SETUP"
	case TypeServerSetup:
		return "SERVER_SETUP"
	default:
		return fmt.Sprintf("UNKNOWN(0x%x)", uint64(t))
	}
}

// Message 协议消息
//
// 未导出的方法使其成为封闭集合，只有本包内的类型可以实现。
type Message interface {
	Type() MessageType

	appendBody(b []byte) []byte
	decodeBody(b []byte) error
}

// newMessage 按类型创建空消息
func newMessage(t MessageType) (Message, error) {
	switch t {
	case TypeClientSetup:
		return &ClientSetup{}, nil
	case TypeServerSetup:
		return &ServerSetup{}, nil
	case TypeSubscribe:
		return &Subscribe{}, nil
	case TypeSubscribeOk:
		return &SubscribeOk{}, nil
	case TypeSubscribeError:
		return &SubscribeError{}, nil
	case TypeObjectStream:
		return &ObjectStream{}, nil
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownType, uint64(t))
	}
}

// ============================================================================
//                              SETUP
// ============================================================================

// ClientSetupParameters CLIENT_SETUP 中与某个版本对应的参数
type ClientSetupParameters struct {
	Path string
	Role types.Role
}

// ClientSetup 客户端（发起方）的 SETUP 消息
//
// Parameters[i] 与 SupportedVersions[i] 按位置一一对应。
type ClientSetup struct {
	SupportedVersions []types.Version
	Parameters        []ClientSetupParameters
}

// Type 实现 Message
func (*ClientSetup) Type() MessageType { return TypeClientSetup }

// IndexOf 返回 v 在 SupportedVersions 中第一次出现的位置，不存在时返回 -1
func (m *ClientSetup) IndexOf(v types.Version) int {
	for i, sv := range m.SupportedVersions {
		if sv == v {
			return i
		}
	}
	return -1
}

// Offer 返回与第 k 个版本对应的参数
func (m *ClientSetup) Offer(k int) (ClientSetupParameters, error) {
	if k < 0 || k >= len(m.Parameters) {
		return ClientSetupParameters{}, fmt.Errorf("%w: index %d, %d parameter bundles",
			ErrParameterIndex, k, len(m.Parameters))
	}
	return m.Parameters[k], nil
}

// ServerSetupParameters SERVER_SETUP 参数
type ServerSetupParameters struct {
	Role types.Role
}

// ServerSetup 服务端（响应方）的 SETUP 消息
type ServerSetup struct {
	// SelectedVersion 选中的版本，0 表示未携带
	SelectedVersion types.Version
	Parameters      []ServerSetupParameters
}

// Type 实现 Message
func (*ServerSetup) Type() MessageType { return TypeServerSetup }

// ============================================================================
//                              SUBSCRIBE
// ============================================================================

// Location Group/Object 坐标
type Location struct {
	Group  uint64
	Object uint64
}

// Less 判断 l 是否位于 o 之前
func (l Location) Less(o Location) bool {
	if l.Group != o.Group {
		return l.Group < o.Group
	}
	return l.Object < o.Object
}

// Subscribe 订阅请求
type Subscribe struct {
	SubscribeID    uint64
	TrackAlias     uint64
	TrackNamespace string
	TrackName      string
	Filter         types.FilterType

	// Start/End 仅在绝对过滤类型下出现
	Start *Location
	End   *Location
}

// Type 实现 Message
func (*Subscribe) Type() MessageType { return TypeSubscribe }

// SubscribeOk 订阅成功应答
type SubscribeOk struct {
	SubscribeID uint64
	Expires     uint64
}

// Type 实现 Message
func (*SubscribeOk) Type() MessageType { return TypeSubscribeOk }

// SUBSCRIBE_ERROR 错误码
const (
	SubscribeErrorInternal          uint64 = 0x0
	SubscribeErrorInvalidRange      uint64 = 0x1
	SubscribeErrorRetryTrackAlias   uint64 = 0x2
	SubscribeErrorTrackDoesNotExist uint64 = 0x3
	SubscribeErrorUnauthorized      uint64 = 0x4
)

// SubscribeError 订阅失败应答
type SubscribeError struct {
	SubscribeID uint64
	Code        uint64
	Reason      string
}

// Type 实现 Message
func (*SubscribeError) Type() MessageType { return TypeSubscribeError }

// ============================================================================
//                              OBJECT
// ============================================================================

// ObjectStream 携带载荷的对象消息
type ObjectStream struct {
	SubscribeID       uint64
	TrackAlias        uint64
	GroupID           uint64
	ObjectID          uint64
	PublisherPriority uint8
	Payload           []byte
}

// Type 实现 Message
func (*ObjectStream) Type() MessageType { return TypeObjectStream }
