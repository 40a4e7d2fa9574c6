package model

import (
	"fmt"
	"time"
)

// JobStatus 任务状态。
type JobStatus string

// 任务状态取值。
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// IsTerminal 是否为终态。
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether s -> next is a legal transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Validate returns an error for values outside the closed set.
func (s JobStatus) Validate() error {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return nil
	default:
		return fmt.Errorf("unknown job status %q", s)
	}
}

// Job 一次异步查询任务。
type Job struct {
	JobID        string       `json:"job_id"`
	Status       JobStatus    `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	Query        string       `json:"query"`
	DocumentURLs []string     `json:"document_urls"`
	Validate     bool         `json:"validate"`
	Result       *QueryResult `json:"result,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.DocumentURLs != nil {
		cp.DocumentURLs = append([]string(nil), j.DocumentURLs...)
	}
	cp.Result = j.Result.Clone()
	return &cp
}

// ResultMetadata 成功结果的统计信息。
type ResultMetadata struct {
	ChunksUsed         int    `json:"chunks_used"`
	TotalChunks        int    `json:"total_chunks"`
	DocumentsProcessed int    `json:"documents_processed"`
	ModelUsed          string `json:"model_used"`
}

// QueryResult 流水线的统一返回结构，成功与失败共用。
type QueryResult struct {
	Answer         string            `json:"answer"`
	ConfidenceNote string            `json:"confidence_note,omitempty"`
	Metadata       *ResultMetadata   `json:"metadata,omitempty"`
	Error          string            `json:"error,omitempty"`
	DocumentErrors map[string]string `json:"document_errors,omitempty"`
	ChunksFound    *int              `json:"chunks_found,omitempty"`
}

// Failed reports whether the result describes a failure.
func (r *QueryResult) Failed() bool {
	return r != nil && r.Error != ""
}

// Clone returns a deep copy.
func (r *QueryResult) Clone() *QueryResult {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Metadata != nil {
		m := *r.Metadata
		cp.Metadata = &m
	}
	if r.DocumentErrors != nil {
		cp.DocumentErrors = make(map[string]string, len(r.DocumentErrors))
		for k, v := range r.DocumentErrors {
			cp.DocumentErrors[k] = v
		}
	}
	if r.ChunksFound != nil {
		n := *r.ChunksFound
		cp.ChunksFound = &n
	}
	return &cp
}
