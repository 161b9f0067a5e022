package moqt

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-moqt/internal/core/transport/quic"
	"github.com/dep2p/go-moqt/internal/protocol/session"
	"github.com/dep2p/go-moqt/internal/protocol/session/registry"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置注入
//  2. Transport: QUIC 监听与拨号
//  3. Registry → Dispatcher: 订阅准入与消息分发
//  4. Node 组件注入
func buildFxApp(o *options, node *Node) (*fx.App, error) {
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(o.config),

		quic.Module(),
		registry.Module(),
		session.Module(),
	}

	// 指标注册表（可选）
	if o.registerer != nil {
		r := o.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return r }))
	}

	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	modules = append(modules,
		fx.Invoke(injectNodeComponents(node)),

		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	Transport  *quic.Transport
	Dispatcher *session.Dispatcher
	Registry   *registry.Registry
	Metrics    *session.Metrics
}

// injectNodeComponents 创建 Node 组件注入函数
func injectNodeComponents(node *Node) interface{} {
	return func(params nodeInjectParams) {
		node.transport = params.Transport
		node.dispatcher = params.Dispatcher
		node.registry = params.Registry
		node.metrics = params.Metrics
	}
}
