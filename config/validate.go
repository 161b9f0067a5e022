package config

import (
	"errors"
	"fmt"
	"slices"
)

// ValidateAll 验证整个配置的有效性
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - 版本列表缺少协商版本 -> 追加到末尾
//   - 超时为零 -> 使用默认值
//   - 空的日志设置 -> 使用默认值
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	defaults := NewConfig()

	// 会话：保证客户端提供的版本包含协商版本
	if c.Session.Version == 0 {
		c.Session.Version = defaults.Session.Version
	}
	if len(c.Session.SupportedVersions) > 0 && !slices.Contains(c.Session.SupportedVersions, c.Session.Version) {
		c.Session.SupportedVersions = append(c.Session.SupportedVersions, c.Session.Version)
	}
	if c.Session.MaxMessageSize == 0 {
		c.Session.MaxMessageSize = defaults.Session.MaxMessageSize
	}

	// 传输：零值超时使用默认值
	if c.Transport.DialTimeout <= 0 {
		c.Transport.DialTimeout = defaults.Transport.DialTimeout
	}
	if c.Transport.QUIC.MaxIdleTimeout <= 0 {
		c.Transport.QUIC.MaxIdleTimeout = defaults.Transport.QUIC.MaxIdleTimeout
	}
	if c.Transport.QUIC.HandshakeTimeout <= 0 {
		c.Transport.QUIC.HandshakeTimeout = defaults.Transport.QUIC.HandshakeTimeout
	}

	// 日志
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}
}
