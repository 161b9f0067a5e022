// Package moqt 提供 MoQT 会话协商与消息分发的节点实现
//
// Node 是用户交互的主入口，组装以下内部模块：
//
//   - QUIC 传输：监听与拨号，控制流为双向流，对象为单向流
//   - 会话分发器：SETUP 版本协商、SUBSCRIBE 准入、OBJECT 入队
//   - 订阅注册表：按连接与 Track 索引已接受的订阅
//
// # 快速开始
//
//	import "github.com/dep2p/go-moqt"
//
//	// 服务端
//	relay, err := moqt.Start(ctx, moqt.WithListenAddr("0.0.0.0:4443"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer relay.Close()
//
//	// 客户端
//	sub, err := client.Dial(ctx, "relay.example:4443", "/live", types.RoleSubscriber)
//	sub.Subscribe(&wire.Subscribe{SubscribeID: 1, TrackNamespace: "live", TrackName: "video"})
//
//	// 服务端向订阅者推送对象
//	n, err := relay.Publish(ctx, "live", "video", 0, 0, frame)
//
// # 文件组织
//
//   - node.go: Node 结构与会话管理
//   - options.go: 用户配置选项
//   - fx.go: Fx 模块组装
//   - errors.go: 公共错误
package moqt
