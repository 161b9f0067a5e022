// Package session 实现 MoQT 会话协商与消息分发
//
// # 组成
//
//   - ConnectionState - 每连接可变状态（路径、对端角色、队列、阶段）
//   - Dispatcher      - 读取一帧、解码并路由到对应处理器
//   - 协商处理器      - CLIENT_SETUP（服务端）/ SERVER_SETUP（客户端）
//   - 订阅准入网关    - 将 SUBSCRIBE 交给 SubscriptionRegistry
//   - 载荷路由        - 将 OBJECT_STREAM 追加到入站队列
//   - Session         - 把 QUIC 连接、状态与分发器绑定在一起
//
// # 状态机（仅控制流）
//
//	Uninitialized --首次读取--> Negotiating --SETUP 成功--> Established
//	                                  \
//	                                   `--Fail()--> Failed
//
// 只有 Established 阶段接受 SUBSCRIBE 与 OBJECT_STREAM。
//
// # 并发
//
// 同一连接上的所有处理器在 ConnectionState 的互斥锁内串行执行，
// 控制流与多个数据流可以在不同 goroutine 上并发投递消息。
//
// # 错误
//
// 处理器返回的错误按 Severity 分级，由调用方决定是否断开连接：
//   - SeverityConnection: ErrVersionMismatch, ErrMalformedSetup, ErrProtocolOrdering
//   - SeverityMessage:    ErrDecode, ErrUnknownMessage（丢弃该消息）
//   - SeverityRequest:    ErrAdmission（仅影响该订阅）
//   - SeverityClosed:     ErrConnectionClosed
package session
