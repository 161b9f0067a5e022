// Package quic 实现 MoQT 的 QUIC 传输层
//
// quic 使用 QUIC 协议提供可靠、安全、多路复用的传输层，
// QUIC 内置 TLS 1.3，无需额外的安全层。
//
// # 流的用途
//
//   - 双向流：控制流，承载 SETUP 与订阅消息
//   - 单向流：对象流，每个流携带一个或多个 OBJECT_STREAM 消息
//
// # ALPN
//
// 握手时协商 "moq-00"，不支持该协议的对端在握手阶段即被拒绝。
//
// # 使用示例
//
//	t, err := quic.New(quic.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	// 监听
//	l, err := t.Listen("0.0.0.0:4443")
//
//	// 拨号
//	conn, err := t.Dial(ctx, "127.0.0.1:4443")
package quic
