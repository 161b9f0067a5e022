package types

import "fmt"

// ============================================================================
//                              Role - 端点角色
// ============================================================================

// Role 端点在 SETUP 中声明的角色
//
// 取值与 MoQT ROLE 参数一致。
type Role uint64

const (
	// RoleUnknown 未声明
	RoleUnknown Role = iota
	// RolePublisher 仅发布
	RolePublisher
	// RoleSubscriber 仅订阅
	RoleSubscriber
	// RolePubSub 同时发布和订阅
	RolePubSub
)

// String 返回角色的字符串表示
func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	case RolePubSub:
		return "pubsub"
	default:
		return "unknown"
	}
}

// Valid 检查角色是否为已定义的取值
func (r Role) Valid() bool {
	return r >= RolePublisher && r <= RolePubSub
}

// CanSubscribe 该角色是否可以发起订阅
func (r Role) CanSubscribe() bool {
	return r == RoleSubscriber || r == RolePubSub
}

// CanPublish 该角色是否可以发布对象
func (r Role) CanPublish() bool {
	return r == RolePublisher || r == RolePubSub
}

// ParseRole 解析角色名称
func ParseRole(s string) (Role, error) {
	switch s {
	case "publisher", "pub":
		return RolePublisher, nil
	case "subscriber", "sub":
		return RoleSubscriber, nil
	case "pubsub", "both":
		return RolePubSub, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// ============================================================================
//                              FilterType - 订阅过滤类型
// ============================================================================

// FilterType SUBSCRIBE 的过滤类型
type FilterType uint64

const (
	// FilterUnknown 未指定
	FilterUnknown FilterType = iota
	// FilterLatestGroup 从最新 Group 开始
	FilterLatestGroup
	// FilterLatestObject 从最新 Object 开始
	FilterLatestObject
	// FilterAbsoluteStart 从指定位置开始，无结束
	FilterAbsoluteStart
	// FilterAbsoluteRange 指定起止范围
	FilterAbsoluteRange
)

// String 返回过滤类型的字符串表示
func (f FilterType) String() string {
	switch f {
	case FilterLatestGroup:
		return "latest-group"
	case FilterLatestObject:
		return "latest-object"
	case FilterAbsoluteStart:
		return "absolute-start"
	case FilterAbsoluteRange:
		return "absolute-range"
	default:
		return "unknown"
	}
}

// ParseFilterType 解析过滤类型名称
func ParseFilterType(s string) (FilterType, error) {
	for f := FilterLatestGroup; f <= FilterAbsoluteRange; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return FilterUnknown, fmt.Errorf("%w: %q", ErrInvalidFilter, s)
}

// ============================================================================
//                              Direction - 连接方向
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 入站连接
	DirInbound
	// DirOutbound 出站连接
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}
