// Package types 定义 go-moqt 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - enums.go   - Role, FilterType, Direction
//   - version.go - Version 及协议版本常量
//   - errors.go  - 公共错误定义
package types
