package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-moqt/config"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("protocol/session",
		fx.Provide(ProvideDispatcher),
	)
}

// ModuleInput Fx 输入参数
type ModuleInput struct {
	fx.In

	Registry   SubscriptionRegistry
	UnifiedCfg *config.Config        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// ModuleOutput Fx 输出
type ModuleOutput struct {
	fx.Out

	Dispatcher *Dispatcher
	Metrics    *Metrics
}

// OptionsFromUnified 从统一配置创建分发器选项
func OptionsFromUnified(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithVersion(cfg.Session.Version),
		WithSupportedVersions(cfg.Session.SupportedVersions...),
		WithMaxMessageSize(cfg.Session.MaxMessageSize),
		WithSubscriptionExpires(cfg.Session.SubscriptionExpires.Duration()),
		WithMaxQueuedObjects(cfg.Session.MaxQueuedObjects),
	}
}

// ProvideDispatcher 提供分发器与指标
//
// 未注入 Registerer 时指标不注册到任何注册表。
func ProvideDispatcher(in ModuleInput) (ModuleOutput, error) {
	metrics, err := NewMetrics(in.Registerer)
	if err != nil {
		return ModuleOutput{}, err
	}

	opts := append(OptionsFromUnified(in.UnifiedCfg), WithMetrics(metrics))
	d, err := NewDispatcher(in.Registry, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}

	logger.Debug("分发器已创建", "version", d.config.Version, "offered", d.config.Versions())
	return ModuleOutput{Dispatcher: d, Metrics: metrics}, nil
}
