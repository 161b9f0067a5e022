// Package lib 包含基础设施工具库
//
// 本目录包含与协议组件无关的通用工具库：
//
//   - log: 基于 log/slog 的组件日志封装
package lib
