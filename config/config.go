// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 支持从 JSON 加载和保存配置。
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Transport.ListenAddr = "0.0.0.0:4443"
//
//	// 从文件加载
//	cfg, err := config.LoadFile("moqt.json")
package config

// Config 是 go-moqt 的完整配置结构
//
// 配置按照功能模块组织：
//   - Transport: QUIC 传输
//   - Session: 会话协商与分发
//   - Registry: 订阅注册表
//   - Log: 日志输出
//   - Metrics: Prometheus 指标
type Config struct {
	// Transport 传输层配置
	Transport TransportConfig `json:"transport"`

	// Session 会话配置
	Session SessionConfig `json:"session"`

	// Registry 订阅注册表配置
	Registry RegistryConfig `json:"registry"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Transport: DefaultTransportConfig(),
		Session:   DefaultSessionConfig(),
		Registry:  DefaultRegistryConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Registry.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return nil
}
