// Package registry 实现内存订阅注册表
//
// Registry 是会话准入网关背后的策略层，负责：
//   - 校验请求方角色（只有 subscriber/pubsub 可以订阅）
//   - 校验 Track 名称与过滤参数的组合
//   - 保证同一连接上的 Subscribe ID 唯一
//   - 限制每个连接的订阅数量
//
// 拒绝原因通过 Rejection 携带 SUBSCRIBE_ERROR 错误码返回给会话层。
package registry
