// Package storage 定义外部存储客户端的统一接口与管理器。
//
// redis、gorm 数据库与 milvus 客户端都实现 Client，由 Manager 统一做
// 健康检查与关闭。
package storage

import (
	"context"
	"time"
)

// Client 外部存储客户端。
type Client interface {
	// Name 返回存储类型名，如 "redis"、"sqlite"、"milvus"。
	Name() string
	// Ping 检查连通性。
	Ping(ctx context.Context) error
	// Close 释放连接。
	Close() error
}

// HealthStatus 单个客户端的健康状态。
type HealthStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// HealthCheck 对单个客户端执行一次 Ping。
func HealthCheck(ctx context.Context, name string, c Client) HealthStatus {
	start := time.Now()
	err := c.Ping(ctx)
	status := HealthStatus{
		Name:    name,
		Healthy: err == nil,
		Latency: time.Since(start),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}
