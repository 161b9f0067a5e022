// Package types 定义 go-moqt 的基础类型
//
// 本文件定义所有公共错误类型。
package types

import "errors"

var (
	// ErrInvalidRole 无效的角色
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidVersion 无效的版本号
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidFilter 无效的过滤类型
	ErrInvalidFilter = errors.New("invalid filter type")
)
