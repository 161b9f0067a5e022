package config

import (
	"errors"
	"slices"

	"github.com/dep2p/go-moqt/pkg/types"
)

// SessionConfig 会话配置
type SessionConfig struct {
	// Version 服务端协商选择的版本
	Version types.Version `json:"version"`

	// SupportedVersions 客户端提供的版本列表，为空时只提供 Version
	SupportedVersions []types.Version `json:"supported_versions,omitempty"`

	// MaxMessageSize 单帧最大字节数
	MaxMessageSize uint64 `json:"max_message_size"`

	// SubscriptionExpires SUBSCRIBE_OK 中宣告的过期时间，0 表示不过期
	SubscriptionExpires Duration `json:"subscription_expires"`

	// MaxQueuedObjects 每个连接入站对象队列上限，0 表示不限制
	MaxQueuedObjects int `json:"max_queued_objects"`
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Version:          types.DefaultVersion,
		MaxMessageSize:   1 << 20,
		MaxQueuedObjects: 1024,
	}
}

// Validate 验证会话配置
func (c SessionConfig) Validate() error {
	if c.Version == 0 {
		return errors.New("session version must be set")
	}
	if c.MaxMessageSize == 0 {
		return errors.New("session max message size must be positive")
	}
	if c.SubscriptionExpires < 0 {
		return errors.New("session subscription expires must not be negative")
	}
	if c.MaxQueuedObjects < 0 {
		return errors.New("session max queued objects must not be negative")
	}
	if len(c.SupportedVersions) > 0 && !slices.Contains(c.SupportedVersions, c.Version) {
		return errors.New("session supported versions must include version")
	}
	return nil
}

// RegistryConfig 订阅注册表配置
type RegistryConfig struct {
	// MaxSubscriptionsPerConn 每个连接的订阅上限，0 表示不限制
	MaxSubscriptionsPerConn int `json:"max_subscriptions_per_conn"`
}

// DefaultRegistryConfig 返回默认注册表配置
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxSubscriptionsPerConn: 256,
	}
}

// Validate 验证注册表配置
func (c RegistryConfig) Validate() error {
	if c.MaxSubscriptionsPerConn < 0 {
		return errors.New("registry max subscriptions must not be negative")
	}
	return nil
}
