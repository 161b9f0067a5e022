package registry

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
)

// 错误定义
var (
	// ErrRoleNotPermitted 对端角色不允许订阅
	ErrRoleNotPermitted = errors.New("registry: role not permitted to subscribe")

	// ErrInvalidTrack Track 名称为空
	ErrInvalidTrack = errors.New("registry: invalid track")

	// ErrInvalidFilter 过滤类型与起止位置不匹配
	ErrInvalidFilter = errors.New("registry: invalid filter")

	// ErrDuplicateSubscription Subscribe ID 已被使用
	ErrDuplicateSubscription = errors.New("registry: duplicate subscribe id")

	// ErrTooManySubscriptions 超过每连接订阅上限
	ErrTooManySubscriptions = errors.New("registry: too many subscriptions")
)

// Rejection 订阅拒绝原因，携带 SUBSCRIBE_ERROR 错误码
type Rejection struct {
	Code uint64
	Err  error
}

func (r *Rejection) Error() string {
	return r.Err.Error()
}

// Unwrap 返回原始错误
func (r *Rejection) Unwrap() error {
	return r.Err
}

// SubscribeErrorCode 返回 SUBSCRIBE_ERROR 错误码
func (r *Rejection) SubscribeErrorCode() uint64 {
	return r.Code
}

// reject 包装错误并附加错误码
func reject(sentinel error, format string, args ...any) error {
	return &Rejection{
		Code: ErrorCode(sentinel),
		Err:  fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// ErrorCode 将注册表错误映射为 SUBSCRIBE_ERROR 错误码
func ErrorCode(err error) uint64 {
	var r *Rejection
	switch {
	case errors.As(err, &r):
		return r.Code
	case errors.Is(err, ErrRoleNotPermitted):
		return wire.SubscribeErrorUnauthorized
	case errors.Is(err, ErrInvalidTrack):
		return wire.SubscribeErrorTrackDoesNotExist
	case errors.Is(err, ErrInvalidFilter):
		return wire.SubscribeErrorInvalidRange
	case errors.Is(err, ErrDuplicateSubscription):
		return wire.SubscribeErrorRetryTrackAlias
	default:
		return wire.SubscribeErrorInternal
	}
}
