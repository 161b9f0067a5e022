package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/multierr"

	"github.com/dep2p/go-moqt/config"
	"github.com/dep2p/go-moqt/pkg/lib/log"
	"github.com/dep2p/go-moqt/pkg/types"
)

var logger = log.Logger("core/transport/quic")

// Config QUIC 传输配置
type Config struct {
	MaxIdleTimeout        time.Duration
	HandshakeIdleTimeout  time.Duration
	KeepAlivePeriod       time.Duration
	MaxIncomingStreams    int64
	MaxIncomingUniStreams int64

	DialTimeout time.Duration

	// 证书文件为空时生成自签名证书
	CertFile string
	KeyFile  string

	InsecureSkipVerify bool
	ServerName         string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建传输配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	t := cfg.Transport
	return Config{
		MaxIdleTimeout:        t.QUIC.MaxIdleTimeout.Duration(),
		HandshakeIdleTimeout:  t.QUIC.HandshakeTimeout.Duration(),
		KeepAlivePeriod:       t.QUIC.KeepAlivePeriod.Duration(),
		MaxIncomingStreams:    t.QUIC.MaxIncomingStreams,
		MaxIncomingUniStreams: t.QUIC.MaxIncomingUniStreams,
		DialTimeout:           t.DialTimeout.Duration(),
		CertFile:              t.TLS.CertFile,
		KeyFile:               t.TLS.KeyFile,
		InsecureSkipVerify:    t.TLS.InsecureSkipVerify,
		ServerName:            t.TLS.ServerName,
	}
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:        c.MaxIdleTimeout,
		HandshakeIdleTimeout:  c.HandshakeIdleTimeout,
		KeepAlivePeriod:       c.KeepAlivePeriod,
		MaxIncomingStreams:    c.MaxIncomingStreams,
		MaxIncomingUniStreams: c.MaxIncomingUniStreams,
	}
}

// Transport QUIC 传输
//
// 监听与拨号共享同一个 UDP socket，先 Listen 再 Dial 时出站连接
// 使用监听端口。
type Transport struct {
	mu sync.Mutex

	config        Config
	serverTLSConf *tls.Config
	clientTLSConf *tls.Config
	quicConf      *quic.Config

	quicTransport *quic.Transport
	udpConn       *net.UDPConn

	listeners map[*Listener]struct{}
	closed    bool
}

// New 创建 QUIC 传输
func New(cfg Config) (*Transport, error) {
	serverTLS, err := ServerTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &Transport{
		config:        cfg,
		serverTLSConf: serverTLS,
		clientTLSConf: ClientTLSConfig(cfg),
		quicConf:      cfg.quicConfig(),
		listeners:     make(map[*Listener]struct{}),
	}, nil
}

// Listen 在 addr（host:port）上监听
func (t *Transport) Listen(addr string) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAddress, addr, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}

	// 首次监听时创建共享 UDP socket
	if t.udpConn == nil {
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return nil, fmt.Errorf("listen udp: %w", err)
		}
		t.udpConn = conn
		t.quicTransport = &quic.Transport{Conn: conn}
	}

	ql, err := t.quicTransport.Listen(t.serverTLSConf, t.quicConf)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	l := &Listener{
		quicListener: ql,
		addr:         t.udpConn.LocalAddr(),
		transport:    t,
	}
	t.listeners[l] = struct{}{}

	logger.Info("QUIC 监听已启动", "addr", l.addr.String(), "alpn", ALPN)
	return l, nil
}

// Dial 拨号连接 addr（host:port）
func (t *Transport) Dial(ctx context.Context, addr string) (*Conn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidAddress, addr, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}

	// 没有先 Listen 时使用随机端口
	if t.quicTransport == nil {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
		if err != nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("listen udp for dial: %w", err)
		}
		t.udpConn = conn
		t.quicTransport = &quic.Transport{Conn: conn}
	}
	quicTransport := t.quicTransport
	t.mu.Unlock()

	if t.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.DialTimeout)
		defer cancel()
	}

	tlsConf := t.clientTLSConf.Clone()
	if tlsConf.ServerName == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			tlsConf.ServerName = host
		}
	}

	qc, err := quicTransport.Dial(ctx, udpAddr, tlsConf, t.quicConf)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	logger.Debug("QUIC 连接已建立", "remote", qc.RemoteAddr().String())
	return newConn(qc, types.DirOutbound), nil
}

// LocalAddr 返回共享 socket 的本地地址，尚未创建时返回 nil
func (t *Transport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.udpConn == nil {
		return nil
	}
	return t.udpConn.LocalAddr()
}

// Close 关闭传输及其全部监听器和连接
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var err error
	for l := range t.listeners {
		err = multierr.Append(err, l.close())
	}
	t.listeners = nil

	// 关闭共享的 quicTransport（会关闭所有连接）
	if t.quicTransport != nil {
		err = multierr.Append(err, t.quicTransport.Close())
		t.quicTransport = nil
	}
	if t.udpConn != nil {
		err = multierr.Append(err, ignoreClosed(t.udpConn.Close()))
		t.udpConn = nil
	}
	return err
}

func (t *Transport) removeListener(l *Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listeners, l)
}

// ignoreClosed 底层 socket 可能已被关闭
func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
