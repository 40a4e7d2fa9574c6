// Package store 保存异步查询任务的状态。
//
// 所有写操作都经过 CompareAndSwap：只有当前状态与期望一致且变更后的状态
// 是合法迁移时才会落盘，读者不会看到写了一半的记录。
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/kart-io/docquery/internal/model"
)

// 任务存储错误。
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrStatusConflict    = errors.New("job status changed concurrently")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// JobStore 任务存储。
type JobStore interface {
	// Create 保存新任务，ID 已存在时返回 ErrJobExists。
	Create(ctx context.Context, job *model.Job) error
	// Get 返回任务副本，不存在时返回 ErrJobNotFound。
	Get(ctx context.Context, jobID string) (*model.Job, error)
	// CompareAndSwap 在当前状态为 from 时对副本执行 mutate 并原子写回。
	CompareAndSwap(ctx context.Context, jobID string, from model.JobStatus, mutate func(*model.Job)) (*model.Job, error)
	// Close 释放资源。
	Close() error
}

// Named 可报告后端名称的存储，用于健康检查输出。
type Named interface {
	Backend() string
}

// applyTransition 校验并返回变更后的副本，current 不会被修改。
func applyTransition(current *model.Job, from model.JobStatus, mutate func(*model.Job)) (*model.Job, error) {
	if current.Status != from {
		return nil, fmt.Errorf("%w: job %s is %s, expected %s", ErrStatusConflict, current.JobID, current.Status, from)
	}

	next := current.Clone()
	mutate(next)
	next.JobID = current.JobID

	if err := next.Status.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if !from.CanTransitionTo(next.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next.Status)
	}
	return next, nil
}

func validateNew(job *model.Job) error {
	if job == nil || job.JobID == "" {
		return errors.New("job id is required")
	}
	return job.Status.Validate()
}
