// Package wire 定义 MoQT 控制消息与对象消息的线上格式
//
// # 帧格式
//
//	+----------------+------------------+-----------------+
//	| Type (varint)  | Length (varint)  | Body (Length B) |
//	+----------------+------------------+-----------------+
//
// Type 与 Length 使用 QUIC 变长整数（RFC 9000 §16）。
// Body 使用 Protobuf 线上格式逐字段编码（protowire）。
//
// # 消息
//
// Message 是封闭的和类型，只有本包内定义的消息实现它：
//   - ClientSetup / ServerSetup   - 版本与角色协商
//   - Subscribe                   - 订阅请求
//   - SubscribeOk / SubscribeError - 订阅应答
//   - ObjectStream                - 携带载荷的对象
package wire
