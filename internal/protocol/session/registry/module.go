package registry

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-moqt/config"
	"github.com/dep2p/go-moqt/internal/protocol/session"
)

// Module 返回 Fx 模块
//
// 同时以 session.SubscriptionRegistry 的形式提供，供分发器注入。
func Module() fx.Option {
	return fx.Module("protocol/session/registry",
		fx.Provide(
			ProvideRegistry,
			func(r *Registry) session.SubscriptionRegistry { return r },
		),
	)
}

// ModuleInput Fx 输入参数
type ModuleInput struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// ConfigFromUnified 从统一配置创建注册表配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.MaxSubscriptions = cfg.Registry.MaxSubscriptionsPerConn
	return c
}

// ProvideRegistry 提供注册表
func ProvideRegistry(in ModuleInput) *Registry {
	cfg := ConfigFromUnified(in.UnifiedCfg)
	return New(WithMaxSubscriptions(cfg.MaxSubscriptions), WithExpires(cfg.Expires))
}
