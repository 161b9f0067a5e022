package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-moqt/internal/protocol/session"
	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/lib/log"
	"github.com/dep2p/go-moqt/pkg/types"
)

var logger = log.Logger("protocol/session/registry")

// 确保实现了接口
var (
	_ session.SubscriptionRegistry = (*Registry)(nil)
	_ session.ConnectionReleaser   = (*Registry)(nil)
)

// Config 注册表配置
type Config struct {
	// MaxSubscriptions 每个连接的订阅上限，0 表示不限制
	MaxSubscriptions int

	// Expires 写入句柄的过期时间，0 表示使用会话默认值
	Expires time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxSubscriptions: 256,
	}
}

// Option 定义配置选项函数
type Option func(*Config)

// WithMaxSubscriptions 设置每连接订阅上限
func WithMaxSubscriptions(n int) Option {
	return func(c *Config) {
		c.MaxSubscriptions = n
	}
}

// WithExpires 设置句柄过期时间
func WithExpires(d time.Duration) Option {
	return func(c *Config) {
		c.Expires = d
	}
}

// Registry 内存订阅注册表
//
// 会话层在持有连接状态锁时调用 TryRegisterSubscription，
// 注册表使用自己的锁，不回调连接状态。
type Registry struct {
	config Config

	mu     sync.RWMutex
	byConn map[string]map[uint64]session.SubscriptionHandle
	// byTrack namespace/name -> handle ID -> handle
	byTrack map[trackKey]map[string]session.SubscriptionHandle
}

type trackKey struct {
	namespace string
	name      string
}

// New 创建注册表
func New(opts ...Option) *Registry {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Registry{
		config:  cfg,
		byConn:  make(map[string]map[uint64]session.SubscriptionHandle),
		byTrack: make(map[trackKey]map[string]session.SubscriptionHandle),
	}
}

// TryRegisterSubscription 校验并登记订阅
func (r *Registry) TryRegisterSubscription(conn session.ConnInfo, req *wire.Subscribe) (session.SubscriptionHandle, error) {
	if err := validate(conn, req); err != nil {
		return session.SubscriptionHandle{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.byConn[conn.ID]
	if _, ok := subs[req.SubscribeID]; ok {
		return session.SubscriptionHandle{}, reject(ErrDuplicateSubscription, "subscribe id %d", req.SubscribeID)
	}
	if r.config.MaxSubscriptions > 0 && len(subs) >= r.config.MaxSubscriptions {
		return session.SubscriptionHandle{}, reject(ErrTooManySubscriptions, "limit %d", r.config.MaxSubscriptions)
	}

	h := session.SubscriptionHandle{
		ID:             uuid.New().String(),
		ConnID:         conn.ID,
		SubscribeID:    req.SubscribeID,
		TrackAlias:     req.TrackAlias,
		TrackNamespace: req.TrackNamespace,
		TrackName:      req.TrackName,
		Expires:        r.config.Expires,
	}

	if subs == nil {
		subs = make(map[uint64]session.SubscriptionHandle)
		r.byConn[conn.ID] = subs
	}
	subs[req.SubscribeID] = h

	key := trackKey{req.TrackNamespace, req.TrackName}
	if r.byTrack[key] == nil {
		r.byTrack[key] = make(map[string]session.SubscriptionHandle)
	}
	r.byTrack[key][h.ID] = h

	logger.Debug("订阅已登记",
		"conn", log.TruncateID(conn.ID, 8),
		"subscribeID", req.SubscribeID,
		"track", req.TrackNamespace+"/"+req.TrackName,
		"filter", req.Filter)
	return h, nil
}

// Unregister 移除连接的全部订阅，返回移除数量
func (r *Registry) Unregister(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.byConn[connID]
	for _, h := range subs {
		key := trackKey{h.TrackNamespace, h.TrackName}
		delete(r.byTrack[key], h.ID)
		if len(r.byTrack[key]) == 0 {
			delete(r.byTrack, key)
		}
	}
	delete(r.byConn, connID)
	return len(subs)
}

// Remove 移除单个订阅
func (r *Registry) Remove(connID string, subscribeID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byConn[connID][subscribeID]
	if !ok {
		return false
	}
	delete(r.byConn[connID], subscribeID)
	if len(r.byConn[connID]) == 0 {
		delete(r.byConn, connID)
	}
	key := trackKey{h.TrackNamespace, h.TrackName}
	delete(r.byTrack[key], h.ID)
	if len(r.byTrack[key]) == 0 {
		delete(r.byTrack, key)
	}
	return true
}

// Lookup 返回订阅了指定 Track 的全部句柄
func (r *Registry) Lookup(namespace, name string) []session.SubscriptionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.byTrack[trackKey{namespace, name}]
	out := make([]session.SubscriptionHandle, 0, len(subs))
	for _, h := range subs {
		out = append(out, h)
	}
	return out
}

// Len 返回订阅总数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, subs := range r.byConn {
		n += len(subs)
	}
	return n
}

// validate 检查请求本身，不涉及注册表状态
func validate(conn session.ConnInfo, req *wire.Subscribe) error {
	if !conn.PeerRole.CanSubscribe() {
		return reject(ErrRoleNotPermitted, "peer role %s", conn.PeerRole)
	}
	if req.TrackNamespace == "" || req.TrackName == "" {
		return reject(ErrInvalidTrack, "namespace %q name %q", req.TrackNamespace, req.TrackName)
	}

	switch req.Filter {
	case types.FilterLatestGroup, types.FilterLatestObject:
		if req.Start != nil || req.End != nil {
			return reject(ErrInvalidFilter, "%s carries no locations", req.Filter)
		}
	case types.FilterAbsoluteStart:
		if req.Start == nil || req.End != nil {
			return reject(ErrInvalidFilter, "%s requires start only", req.Filter)
		}
	case types.FilterAbsoluteRange:
		if req.Start == nil || req.End == nil {
			return reject(ErrInvalidFilter, "%s requires start and end", req.Filter)
		}
		if req.End.Less(*req.Start) {
			return reject(ErrInvalidFilter, "end %d/%d before start %d/%d",
				req.End.Group, req.End.Object, req.Start.Group, req.Start.Object)
		}
	default:
		return reject(ErrInvalidFilter, "filter type %d", uint64(req.Filter))
	}
	return nil
}
