package moqt

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-moqt/config"
	"github.com/dep2p/go-moqt/internal/protocol/session"
	"github.com/dep2p/go-moqt/pkg/types"
)

// ObjectHandler 入站对象处理函数，connID 为会话的连接 ID
type ObjectHandler func(connID string, objs []session.ObjectPayload)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// config 统一配置，选项在其上覆盖
	config *config.Config

	// registerer 指标注册表，为空时不注册指标
	registerer prometheus.Registerer

	// noListen 只作为客户端，不监听
	noListen bool

	// objectHandler 接收入站会话上到达的对象，为空时丢弃
	objectHandler ObjectHandler

	// userFxOptions 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{
		config: config.NewConfig(),
	}
}

// ============================================================================
//                              配置选项
// ============================================================================

// WithConfig 使用完整配置作为基础
//
// 应放在其他选项之前，之后的选项在其副本上覆盖。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config must not be nil")
		}
		o.config = config.CloneConfig(cfg)
		return nil
	}
}

// WithListenAddr 设置服务端监听地址
//
// 示例：
//
//	moqt.WithListenAddr("0.0.0.0:4443")
func WithListenAddr(addr string) Option {
	return func(o *options) error {
		if addr == "" {
			return errors.New("listen address must not be empty")
		}
		o.config.Transport.ListenAddr = addr
		return nil
	}
}

// WithNoListen 节点只拨号，不接受入站连接
func WithNoListen() Option {
	return func(o *options) error {
		o.noListen = true
		return nil
	}
}

// WithVersion 设置服务端选择的版本
func WithVersion(v types.Version) Option {
	return func(o *options) error {
		if v == 0 {
			return types.ErrInvalidVersion
		}
		o.config.Session.Version = v
		return nil
	}
}

// WithSupportedVersions 设置客户端提供的版本列表
func WithSupportedVersions(versions ...types.Version) Option {
	return func(o *options) error {
		for _, v := range versions {
			if v == 0 {
				return types.ErrInvalidVersion
			}
		}
		o.config.Session.SupportedVersions = versions
		return nil
	}
}

// WithMaxSubscriptions 设置每个连接的订阅上限，0 表示不限制
func WithMaxSubscriptions(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return fmt.Errorf("max subscriptions must not be negative: %d", n)
		}
		o.config.Registry.MaxSubscriptionsPerConn = n
		return nil
	}
}

// WithSubscriptionExpires 设置 SUBSCRIBE_OK 中宣告的过期时间
func WithSubscriptionExpires(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("subscription expires must not be negative: %s", d)
		}
		o.config.Session.SubscriptionExpires = config.Duration(d)
		return nil
	}
}

// WithMaxQueuedObjects 设置每个连接入站对象队列上限，0 表示不限制
func WithMaxQueuedObjects(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return fmt.Errorf("max queued objects must not be negative: %d", n)
		}
		o.config.Session.MaxQueuedObjects = n
		return nil
	}
}

// WithObjectHandler 处理入站会话上收到的对象
//
// 每次调用传入一批按到达顺序排列的对象。未设置时节点取出并丢弃这些对象。
func WithObjectHandler(h ObjectHandler) Option {
	return func(o *options) error {
		o.objectHandler = h
		return nil
	}
}

// WithTLSFiles 使用 PEM 证书与私钥，不设置时生成自签名证书
func WithTLSFiles(certFile, keyFile string) Option {
	return func(o *options) error {
		if (certFile == "") != (keyFile == "") {
			return errors.New("cert file and key file must be set together")
		}
		o.config.Transport.TLS.CertFile = certFile
		o.config.Transport.TLS.KeyFile = keyFile
		return nil
	}
}

// WithInsecureSkipVerify 客户端是否跳过服务端证书校验
func WithInsecureSkipVerify(skip bool) Option {
	return func(o *options) error {
		o.config.Transport.TLS.InsecureSkipVerify = skip
		return nil
	}
}

// WithRegisterer 将会话指标注册到 r
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = r
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
