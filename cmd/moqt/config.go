package main

import (
	"os"
	"strconv"

	"github.com/dep2p/go-moqt/config"
	"github.com/dep2p/go-moqt/pkg/types"
)

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// 环境变量名（均使用 MOQT_ 前缀）
const (
	envPrefix           = "MOQT_"
	envListenAddr       = "LISTEN_ADDR"
	envVersion          = "VERSION"
	envMaxSubscriptions = "MAX_SUBSCRIPTIONS"
	envCertFile         = "CERT_FILE"
	envKeyFile          = "KEY_FILE"
	envLogLevel         = "LOG_LEVEL"
	envMetricsAddr      = "METRICS_ADDR"
)

// loadConfig 加载配置文件，path 为空时返回默认配置
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.NewConfig(), nil
	}
	return config.LoadFile(path)
}

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// 无法解析的值被忽略并记录警告。
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv(envPrefix + envListenAddr); v != "" {
		cfg.Transport.ListenAddr = v
	}

	if v := os.Getenv(envPrefix + envVersion); v != "" {
		if ver, err := types.ParseVersion(v); err == nil {
			cfg.Session.Version = ver
		} else {
			logger.Warn("忽略无效的环境变量", "name", envPrefix+envVersion, "error", err)
		}
	}

	if v := os.Getenv(envPrefix + envMaxSubscriptions); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Registry.MaxSubscriptionsPerConn = n
		} else {
			logger.Warn("忽略无效的环境变量", "name", envPrefix+envMaxSubscriptions, "error", err)
		}
	}

	if v := os.Getenv(envPrefix + envCertFile); v != "" {
		cfg.Transport.TLS.CertFile = v
	}
	if v := os.Getenv(envPrefix + envKeyFile); v != "" {
		cfg.Transport.TLS.KeyFile = v
	}

	if v := os.Getenv(envPrefix + envLogLevel); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv(envPrefix + envMetricsAddr); v != "" {
		cfg.Metrics.Enable = true
		cfg.Metrics.ListenAddr = v
	}
}
