package config

import (
	"errors"
	"net"
	"time"
)

// TransportConfig 传输层配置
type TransportConfig struct {
	// ListenAddr 服务端监听地址（host:port）
	ListenAddr string `json:"listen_addr"`

	// DialTimeout 拨号超时
	DialTimeout Duration `json:"dial_timeout"`

	// QUIC QUIC 参数
	QUIC QUICConfig `json:"quic"`

	// TLS 证书配置
	TLS TLSConfig `json:"tls"`
}

// QUICConfig QUIC 传输配置
type QUICConfig struct {
	// MaxIdleTimeout 最大空闲超时
	MaxIdleTimeout Duration `json:"max_idle_timeout"`

	// HandshakeTimeout 握手空闲超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// MaxIncomingStreams 对端可同时打开的双向流数量
	MaxIncomingStreams int64 `json:"max_incoming_streams"`

	// MaxIncomingUniStreams 对端可同时打开的单向流（对象流）数量
	MaxIncomingUniStreams int64 `json:"max_incoming_uni_streams"`

	// KeepAlivePeriod KeepAlive 周期，0 表示禁用
	KeepAlivePeriod Duration `json:"keep_alive_period"`
}

// TLSConfig 证书配置
//
// 未指定证书文件时生成自签名证书。
type TLSConfig struct {
	// CertFile PEM 证书
	CertFile string `json:"cert_file,omitempty"`

	// KeyFile PEM 私钥
	KeyFile string `json:"key_file,omitempty"`

	// InsecureSkipVerify 客户端跳过服务端证书校验
	InsecureSkipVerify bool `json:"insecure_skip_verify"`

	// ServerName 客户端校验时使用的服务端名称
	ServerName string `json:"server_name,omitempty"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddr:  "0.0.0.0:4443",
		DialTimeout: Duration(10 * time.Second),
		QUIC: QUICConfig{
			MaxIdleTimeout:        Duration(30 * time.Second), // 空闲 30 秒后关闭连接
			HandshakeTimeout:      Duration(10 * time.Second),
			MaxIncomingStreams:    16,   // 控制流只需要一个
			MaxIncomingUniStreams: 1024, // 每个对象一个单向流
			KeepAlivePeriod:       Duration(10 * time.Second),
		},
		TLS: TLSConfig{
			InsecureSkipVerify: true,
		},
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			return errors.New("transport listen address must be host:port")
		}
	}
	if c.DialTimeout <= 0 {
		return errors.New("transport dial timeout must be positive")
	}
	if c.QUIC.MaxIdleTimeout <= 0 {
		return errors.New("QUIC max idle timeout must be positive")
	}
	if c.QUIC.HandshakeTimeout <= 0 {
		return errors.New("QUIC handshake timeout must be positive")
	}
	if c.QUIC.MaxIncomingStreams <= 0 {
		return errors.New("QUIC max incoming streams must be positive")
	}
	if c.QUIC.MaxIncomingUniStreams <= 0 {
		return errors.New("QUIC max incoming uni streams must be positive")
	}
	if c.QUIC.KeepAlivePeriod < 0 {
		return errors.New("QUIC keep alive period must not be negative")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return errors.New("TLS cert file and key file must be set together")
	}
	return nil
}
