package session

import (
	"time"

	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/types"
)

// Config 分发器配置
type Config struct {
	// Version 服务端协商时选择的版本
	Version types.Version

	// SupportedVersions 客户端在 CLIENT_SETUP 中提供的版本列表，
	// 为空时只提供 Version
	SupportedVersions []types.Version

	// Limits 帧解码限制
	Limits wire.Limits

	// SubscriptionExpires SUBSCRIBE_OK 中宣告的过期时间，0 表示不过期
	SubscriptionExpires time.Duration

	// MaxQueuedObjects 每个连接入站对象队列的上限，0 表示不限制
	MaxQueuedObjects int

	// Metrics 指标，可为 nil
	Metrics *Metrics
}

// DefaultMaxQueuedObjects 默认入站对象队列上限
const DefaultMaxQueuedObjects = 1024

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Version:          types.DefaultVersion,
		Limits:           wire.DefaultLimits(),
		MaxQueuedObjects: DefaultMaxQueuedObjects,
	}
}

// Versions 返回客户端提供的版本列表
func (c *Config) Versions() []types.Version {
	if len(c.SupportedVersions) == 0 {
		return []types.Version{c.Version}
	}
	return c.SupportedVersions
}

// Option 定义配置选项函数
type Option func(*Config)

// WithVersion 设置协商版本
func WithVersion(v types.Version) Option {
	return func(c *Config) {
		c.Version = v
	}
}

// WithSupportedVersions 设置客户端提供的版本列表
func WithSupportedVersions(vs ...types.Version) Option {
	return func(c *Config) {
		c.SupportedVersions = append([]types.Version(nil), vs...)
	}
}

// WithMaxMessageSize 设置单帧最大字节数
func WithMaxMessageSize(n uint64) Option {
	return func(c *Config) {
		c.Limits.MaxMessageSize = n
	}
}

// WithSubscriptionExpires 设置订阅过期时间
func WithSubscriptionExpires(d time.Duration) Option {
	return func(c *Config) {
		c.SubscriptionExpires = d
	}
}

// WithMaxQueuedObjects 设置入站对象队列上限，0 表示不限制
func WithMaxQueuedObjects(n int) Option {
	return func(c *Config) {
		c.MaxQueuedObjects = n
	}
}

// WithMetrics 设置指标
func WithMetrics(m *Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}
