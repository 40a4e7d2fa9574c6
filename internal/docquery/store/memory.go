package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/docquery/internal/model"
)

// MemoryStore 进程内任务存储，进程重启后丢失。
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

var _ JobStore = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.Job)}
}

// Backend implements Named.
func (s *MemoryStore) Backend() string {
	return "memory"
}

// Create implements JobStore.
func (s *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.JobID)
	}
	s.jobs[job.JobID] = job.Clone()
	return nil
}

// Get implements JobStore.
func (s *MemoryStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job.Clone(), nil
}

// CompareAndSwap implements JobStore.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, jobID string, from model.JobStatus, mutate func(*model.Job)) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	next, err := applyTransition(current, from, mutate)
	if err != nil {
		return nil, err
	}
	s.jobs[jobID] = next
	return next.Clone(), nil
}

// Len 当前保存的任务数。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Close implements JobStore.
func (s *MemoryStore) Close() error {
	return nil
}
