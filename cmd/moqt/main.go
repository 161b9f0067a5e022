// Package main 提供 moqt 命令行入口
//
// 子命令：
//
//	moqt serve      运行中继节点，接受订阅并按 Track 推送对象
//	moqt subscribe  连接中继，订阅一个 Track 并打印收到的对象
//	moqt version    显示版本信息
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/dep2p/go-moqt"
	"github.com/dep2p/go-moqt/config"
	"github.com/dep2p/go-moqt/internal/protocol/session"
	"github.com/dep2p/go-moqt/internal/protocol/session/wire"
	"github.com/dep2p/go-moqt/pkg/lib/log"
	"github.com/dep2p/go-moqt/pkg/types"
)

var logger = log.Logger("moqt/cmd")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("missing subcommand")
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "subscribe":
		return runSubscribe(args[1:])
	case "version":
		fmt.Println(moqt.VersionInfo())
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `用法: moqt <serve|subscribe|version> [参数]

  serve      运行中继节点
  subscribe  订阅一个 Track 并打印对象
  version    显示版本信息

使用 "moqt <子命令> --help" 查看参数`)
}

// ═══════════════════════════════════════════════════════════════════════════
//                              公共参数
// ═══════════════════════════════════════════════════════════════════════════

// commonFlags 两个子命令共享的参数
type commonFlags struct {
	configFile string
	logLevel   string
	logFormat  string
	version    string
	insecure   bool
}

func (c *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&c.configFile, "config", "c", "", "配置文件路径（JSON）")
	fs.StringVar(&c.logLevel, "log-level", "", "日志级别 (debug/info/warn/error)")
	fs.StringVar(&c.logFormat, "log-format", "", "日志格式 (text/json)")
	fs.StringVar(&c.version, "moqt-version", "", "协商版本，如 draft-04 或 0xff000004")
	fs.BoolVar(&c.insecure, "insecure", true, "客户端跳过证书校验")
}

// load 按 配置文件 → 环境变量 → 命令行 的顺序构建配置
func (c *commonFlags) load(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := loadConfig(c.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyEnvOverrides(cfg)

	if fs.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = c.logFormat
	}
	if fs.Changed("moqt-version") {
		v, err := types.ParseVersion(c.version)
		if err != nil {
			return nil, err
		}
		cfg.Session.Version = v
	}
	if fs.Changed("insecure") {
		cfg.Transport.TLS.InsecureSkipVerify = c.insecure
	}

	if err := log.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ═══════════════════════════════════════════════════════════════════════════
//                              serve
// ═══════════════════════════════════════════════════════════════════════════

func runServe(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)

	var (
		common      commonFlags
		listen      string
		maxSubs     int
		maxQueued   int
		expires     config.Duration
		certFile    string
		keyFile     string
		metricsAddr string
		track       string
		interval    time.Duration
	)
	common.register(fs)
	fs.StringVarP(&listen, "listen", "l", "", "监听地址 (host:port)")
	fs.IntVar(&maxSubs, "max-subscriptions", 0, "每个连接的订阅上限")
	fs.IntVar(&maxQueued, "max-queued-objects", 0, "每个连接入站对象队列上限，0 表示不限制")
	fs.Var(&expires, "expires", "SUBSCRIBE_OK 中宣告的过期时间，如 30s")
	fs.StringVar(&certFile, "cert", "", "PEM 证书文件，不指定时使用自签名证书")
	fs.StringVar(&keyFile, "key", "", "PEM 私钥文件")
	fs.StringVar(&metricsAddr, "metrics", "", "Prometheus 指标监听地址，如 127.0.0.1:9464")
	fs.StringVar(&track, "track", "", "周期性发布测试对象的 Track（namespace/name）")
	fs.DurationVar(&interval, "interval", time.Second, "测试对象发布间隔")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	if fs.Changed("listen") {
		cfg.Transport.ListenAddr = listen
	}
	if fs.Changed("max-subscriptions") {
		cfg.Registry.MaxSubscriptionsPerConn = maxSubs
	}
	if fs.Changed("max-queued-objects") {
		cfg.Session.MaxQueuedObjects = maxQueued
	}
	if fs.Changed("expires") {
		cfg.Session.SubscriptionExpires = expires
	}
	if fs.Changed("cert") || fs.Changed("key") {
		cfg.Transport.TLS.CertFile = certFile
		cfg.Transport.TLS.KeyFile = keyFile
	}
	if fs.Changed("metrics") {
		cfg.Metrics.Enable = true
		cfg.Metrics.ListenAddr = metricsAddr
	}

	opts := []moqt.Option{moqt.WithConfig(cfg)}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enable {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, moqt.WithRegisterer(reg))

		srv := serveMetrics(cfg.Metrics, reg)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("启动 moqt 节点", "version", moqt.Version, "commit", moqt.GitCommit)
	node, err := moqt.Start(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = node.Close() }()

	fmt.Printf("📦 %s\n", moqt.VersionInfo())
	fmt.Printf("监听地址: %s\n", node.Addr())
	fmt.Println("节点已启动，按 Ctrl+C 退出")

	if track != "" {
		ns, name, err := splitTrack(track)
		if err != nil {
			return err
		}
		go publishLoop(ctx, node, ns, name, interval)
	}

	<-ctx.Done()
	fmt.Println("\n正在关闭节点...")
	return nil
}

// serveMetrics 启动指标 HTTP 服务
func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("指标服务退出", "error", err)
		}
	}()
	logger.Info("指标服务已启动", "addr", cfg.ListenAddr, "path", cfg.Path)
	return srv
}

// publishLoop 按间隔向 Track 发布递增的对象，每个 group 含一个 object
func publishLoop(ctx context.Context, node *moqt.Node, ns, name string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var group uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			payload := []byte(now.UTC().Format(time.RFC3339Nano))
			n, err := node.Publish(ctx, ns, name, group, 0, payload)
			if err != nil {
				logger.Warn("发布对象失败", "track", ns+"/"+name, "group", group, "error", err)
			} else if n > 0 {
				logger.Debug("发布对象", "track", ns+"/"+name, "group", group, "subscribers", n)
			}
			group++
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
//                              subscribe
// ═══════════════════════════════════════════════════════════════════════════

func runSubscribe(args []string) error {
	fs := pflag.NewFlagSet("subscribe", pflag.ContinueOnError)

	var (
		common   commonFlags
		addr     string
		path     string
		roleName string
		track    string
		filter   string
		versions []string
	)
	common.register(fs)
	fs.StringVarP(&addr, "addr", "a", "127.0.0.1:4443", "中继地址 (host:port)")
	fs.StringVar(&path, "path", "/", "SETUP 中携带的路径")
	fs.StringVar(&roleName, "role", "subscriber", "本端角色 (publisher/subscriber/pubsub)")
	fs.StringVarP(&track, "track", "t", "", "订阅的 Track（namespace/name）")
	fs.StringVar(&filter, "filter", "latest-group", "订阅过滤类型")
	fs.StringSliceVar(&versions, "offer", nil, "客户端提供的版本列表，逗号分隔")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	for _, s := range versions {
		v, err := types.ParseVersion(s)
		if err != nil {
			return err
		}
		cfg.Session.SupportedVersions = append(cfg.Session.SupportedVersions, v)
	}

	role, err := types.ParseRole(roleName)
	if err != nil {
		return err
	}
	ft, err := types.ParseFilterType(filter)
	if err != nil {
		return err
	}
	ns, name, err := splitTrack(track)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	node, err := moqt.Start(ctx, moqt.WithConfig(cfg), moqt.WithNoListen())
	if err != nil {
		return err
	}
	defer func() { _ = node.Close() }()

	s, err := node.Dial(ctx, addr, path, role)
	if err != nil {
		return err
	}
	fmt.Printf("已连接 %s，会话 %s\n", addr, log.TruncateID(s.ID(), 8))

	if err := s.Subscribe(&wire.Subscribe{
		SubscribeID:    1,
		TrackNamespace: ns,
		TrackName:      name,
		Filter:         ft,
	}); err != nil {
		return err
	}

	outcome, err := waitOutcome(ctx, s, 1)
	if err != nil {
		return err
	}
	if !outcome.Accepted {
		return fmt.Errorf("subscribe rejected: code %d: %s", outcome.Code, outcome.Reason)
	}
	fmt.Printf("订阅成功 %s/%s，expires=%dms\n", ns, name, outcome.Expires)

	for {
		objs, err := s.NextObjects(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, o := range objs {
			fmt.Printf("group=%d object=%d %d bytes: %s\n", o.GroupID, o.ObjectID, len(o.Payload), o.Payload)
		}
	}
}

// waitOutcome 等待订阅应答
func waitOutcome(ctx context.Context, s *session.Session, subscribeID uint64) (session.SubscriptionOutcome, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if o, ok := s.State().SubscriptionOutcome(subscribeID); ok {
			return o, nil
		}
		select {
		case <-ticker.C:
		case <-s.Done():
			return session.SubscriptionOutcome{}, session.ErrConnectionClosed
		case <-ctx.Done():
			return session.SubscriptionOutcome{}, ctx.Err()
		}
	}
}

// splitTrack 将 namespace/name 拆分，name 中不含 '/'
func splitTrack(s string) (string, string, error) {
	i := strings.LastIndexByte(s, '/')
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("track must be namespace/name: %q", s)
	}
	return s[:i], s[i+1:], nil
}
