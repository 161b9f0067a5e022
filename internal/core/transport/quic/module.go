package quic

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-moqt/config"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("core/transport/quic",
		fx.Provide(ProvideTransport),
		fx.Invoke(registerLifecycle),
	)
}

// ModuleInput Fx 输入参数
type ModuleInput struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// ProvideTransport 提供 QUIC 传输
func ProvideTransport(in ModuleInput) (*Transport, error) {
	return New(ConfigFromUnified(in.UnifiedCfg))
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, t *Transport) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return t.Close()
		},
	})
}
