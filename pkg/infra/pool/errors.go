// Package pool provides an ants-backed worker pool with task statistics.
package pool

import "errors"

// 池相关错误定义
var (
	// ErrPoolClosed 池已关闭
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPoolOverload 池已满（非阻塞模式）
	ErrPoolOverload = errors.New("worker pool is overloaded")

	// ErrInvalidPoolConfig 无效的池配置
	ErrInvalidPoolConfig = errors.New("invalid worker pool config")
)
