package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/infra/pool"
	"github.com/kart-io/docquery/pkg/utils/id"
)

var fixedNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func okRunner(calls *atomic.Int32) funcRunner {
	return func(ctx context.Context, query string, urls []string, opts ...RunOption) *model.QueryResult {
		calls.Add(1)
		return &model.QueryResult{
			Answer:   "answer: " + query,
			Metadata: &model.ResultMetadata{ChunksUsed: 1, TotalChunks: 1, DocumentsProcessed: len(urls), ModelUsed: "m"},
		}
	}
}

func newTestOrchestrator(runner Runner, sub Submitter) (*Orchestrator, *store.MemoryStore) {
	jobs := store.NewMemoryStore()
	o := NewOrchestrator(jobs, runner, sub, OrchestratorConfig{
		JobTimeout: time.Second,
		Clock:      func() time.Time { return fixedNow },
	})
	return o, jobs
}

func waitTerminal(t *testing.T, o *Orchestrator, jobID string) *model.Job {
	t.Helper()
	var job *model.Job
	require.Eventually(t, func() bool {
		j, err := o.GetStatus(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestOrchestratorSubmitCompletes(t *testing.T) {
	var calls atomic.Int32
	o, _ := newTestOrchestrator(okRunner(&calls), &syncSubmitter{})

	job, err := o.Submit(context.Background(), QueryRequest{
		Query:        "what?",
		DocumentURLs: []string{"https://h/a.pdf"},
		Validate:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.True(t, id.IsValidULID(job.JobID))
	assert.Equal(t, fixedNow, job.CreatedAt)

	done := waitTerminal(t, o, job.JobID)
	assert.Equal(t, model.JobStatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, "answer: what?", done.Result.Answer)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, fixedNow, *done.CompletedAt)
	assert.Empty(t, done.Error)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOrchestratorFailedResult(t *testing.T) {
	runner := funcRunner(func(ctx context.Context, query string, urls []string, opts ...RunOption) *model.QueryResult {
		return &model.QueryResult{
			Answer:         AnswerAllDocumentsFailed,
			Error:          ErrorAllDocumentsFailed,
			DocumentErrors: map[string]string{
				urls[0]: "Error: HTTP 404",
				urls[1]: "Error: not a PDF",
			},
		}
	})
	o, _ := newTestOrchestrator(runner, &syncSubmitter{})

	job, err := o.Submit(context.Background(), QueryRequest{
		Query:        "q",
		DocumentURLs: []string{"https://h/y.pdf", "https://h/x.pdf"},
	})
	require.NoError(t, err)

	done := waitTerminal(t, o, job.JobID)
	assert.Equal(t, model.JobStatusFailed, done.Status)
	assert.Equal(t,
		ErrorAllDocumentsFailed+": https://h/x.pdf: Error: not a PDF; https://h/y.pdf: Error: HTTP 404",
		done.Error)
	assert.Nil(t, done.Result)
	assert.NotNil(t, done.CompletedAt)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "boom", failureMessage(&model.QueryResult{Error: "boom"}))
	assert.Equal(t, "boom: a: Error: x",
		failureMessage(&model.QueryResult{Error: "boom", DocumentErrors: map[string]string{"a": "Error: x"}}))
}

func TestOrchestratorPassesValidateFlag(t *testing.T) {
	seen := make(chan bool, 1)
	runner := funcRunner(func(ctx context.Context, query string, urls []string, opts ...RunOption) *model.QueryResult {
		o := runOptions{validate: true}
		for _, opt := range opts {
			opt(&o)
		}
		seen <- o.validate
		_, hasDeadline := ctx.Deadline()
		if !hasDeadline {
			return &model.QueryResult{Error: "missing job timeout"}
		}
		return &model.QueryResult{Answer: "ok"}
	})
	o, _ := newTestOrchestrator(runner, &syncSubmitter{})

	job, err := o.Submit(context.Background(), QueryRequest{Query: "q", DocumentURLs: []string{"u"}, Validate: false})
	require.NoError(t, err)
	assert.False(t, <-seen)
	assert.Equal(t, model.JobStatusCompleted, waitTerminal(t, o, job.JobID).Status)
}

func TestOrchestratorInvalidRequest(t *testing.T) {
	o, jobs := newTestOrchestrator(okRunner(new(atomic.Int32)), &syncSubmitter{})

	tests := []struct {
		name string
		req  QueryRequest
		want error
	}{
		{"empty query", QueryRequest{Query: "  ", DocumentURLs: []string{"u"}}, ErrEmptyQuery},
		{"no urls", QueryRequest{Query: "q"}, ErrNoDocuments},
		{"blank url", QueryRequest{Query: "q", DocumentURLs: []string{"u", " "}}, ErrNoDocuments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Submit(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)

			_, err = o.QuerySync(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, jobs.Len())
}

func TestOrchestratorSchedulingFailure(t *testing.T) {
	o, jobs := newTestOrchestrator(okRunner(new(atomic.Int32)), &syncSubmitter{reject: pool.ErrPoolOverload})
	o.ids = fixedIDs("job-1")

	_, err := o.Submit(context.Background(), QueryRequest{Query: "q", DocumentURLs: []string{"u"}})
	require.ErrorIs(t, err, pool.ErrPoolOverload)

	job, err := jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, "scheduling failed: "+pool.ErrPoolOverload.Error(), job.Error)
	assert.NoError(t, o.Shutdown(context.Background()))
}

type fixedIDs string

func (f fixedIDs) Generate() string { return string(f) }

func (f fixedIDs) GenerateN(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(f)
	}
	return out
}

func TestOrchestratorGetStatusUnknown(t *testing.T) {
	o, _ := newTestOrchestrator(okRunner(new(atomic.Int32)), &syncSubmitter{})

	_, err := o.GetStatus(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestOrchestratorGetStatusReturnsCopy(t *testing.T) {
	block := make(chan struct{})
	runner := funcRunner(func(ctx context.Context, query string, urls []string, opts ...RunOption) *model.QueryResult {
		<-block
		return &model.QueryResult{Answer: "ok"}
	})
	o, _ := newTestOrchestrator(runner, &syncSubmitter{})

	job, err := o.Submit(context.Background(), QueryRequest{Query: "q", DocumentURLs: []string{"u"}})
	require.NoError(t, err)

	got, err := o.GetStatus(context.Background(), job.JobID)
	require.NoError(t, err)
	got.Status = model.JobStatusFailed

	again, err := o.GetStatus(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.NotEqual(t, model.JobStatusFailed, again.Status)

	close(block)
	assert.Equal(t, model.JobStatusCompleted, waitTerminal(t, o, job.JobID).Status)
}

func TestOrchestratorQuerySync(t *testing.T) {
	var calls atomic.Int32
	o, jobs := newTestOrchestrator(okRunner(&calls), &syncSubmitter{reject: errors.New("pool must not be used")})

	res, err := o.QuerySync(context.Background(), QueryRequest{Query: "inline", DocumentURLs: []string{"u"}})
	require.NoError(t, err)
	assert.Equal(t, "answer: inline", res.Answer)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, jobs.Len(), "sync queries are not tracked")
}

func TestOrchestratorShutdown(t *testing.T) {
	t.Run("drains running jobs", func(t *testing.T) {
		var calls atomic.Int32
		runner := funcRunner(func(ctx context.Context, query string, urls []string, opts ...RunOption) *model.QueryResult {
			time.Sleep(30 * time.Millisecond)
			calls.Add(1)
			return &model.QueryResult{Answer: "ok"}
		})
		o, _ := newTestOrchestrator(runner, &syncSubmitter{})

		for i := 0; i < 3; i++ {
			_, err := o.Submit(context.Background(), QueryRequest{Query: "q", DocumentURLs: []string{"u"}})
			require.NoError(t, err)
		}
		require.NoError(t, o.Shutdown(context.Background()))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("deadline cancels running jobs", func(t *testing.T) {
		runner := funcRunner(func(ctx context.Context, query string, urls []string, opts ...RunOption) *model.QueryResult {
			<-ctx.Done()
			return &model.QueryResult{Error: ctx.Err().Error()}
		})
		o, jobs := newTestOrchestrator(runner, &syncSubmitter{})
		o.timeout = time.Minute

		job, err := o.Submit(context.Background(), QueryRequest{Query: "q", DocumentURLs: []string{"u"}})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, o.Shutdown(ctx), context.DeadlineExceeded)

		require.Eventually(t, func() bool {
			j, err := jobs.Get(context.Background(), job.JobID)
			return err == nil && j.Status == model.JobStatusFailed
		}, time.Second, 5*time.Millisecond)
	})
}

func TestOrchestratorWithWorkerPool(t *testing.T) {
	p, err := pool.NewPool("jobs-test", &pool.Config{Capacity: 2, ExpiryDuration: time.Second})
	require.NoError(t, err)
	defer p.Release()

	var calls atomic.Int32
	o, _ := newTestOrchestrator(okRunner(&calls), p)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		job, err := o.Submit(context.Background(), QueryRequest{Query: "q", DocumentURLs: []string{"u"}})
		require.NoError(t, err)
		ids = append(ids, job.JobID)
	}
	require.NoError(t, o.Shutdown(context.Background()))

	for _, jobID := range ids {
		got, err := o.GetStatus(context.Background(), jobID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, got.Status)
	}
	assert.Equal(t, int32(5), calls.Load())
	assert.Eventually(t, func() bool {
		return p.Stats().CompletedTasks == 5
	}, time.Second, 5*time.Millisecond)
}

type recordingMetrics struct {
	mu        sync.Mutex
	submitted int
	rejected  int
	finished  []string
	pipelines []string
}

func (m *recordingMetrics) RecordRequest(context.Context, string, string, int, time.Duration) {}

func (m *recordingMetrics) RecordJobSubmitted(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted++
}

func (m *recordingMetrics) RecordJobRejected(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func (m *recordingMetrics) RecordJobFinished(_ context.Context, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, status)
}

func (m *recordingMetrics) RecordPipeline(_ context.Context, mode string, failed bool, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines = append(m.pipelines, fmt.Sprintf("%s:%t", mode, failed))
}

func (m *recordingMetrics) snapshot() (int, int, []string, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitted, m.rejected, append([]string(nil), m.finished...), append([]string(nil), m.pipelines...)
}

func TestOrchestratorRecordsMetrics(t *testing.T) {
	rec := &recordingMetrics{}
	jobs := store.NewMemoryStore()
	o := NewOrchestrator(jobs, okRunner(new(atomic.Int32)), &syncSubmitter{}, OrchestratorConfig{Metrics: rec})

	job, err := o.Submit(context.Background(), QueryRequest{Query: "q", DocumentURLs: []string{"u"}})
	require.NoError(t, err)
	waitTerminal(t, o, job.JobID)

	_, err = o.QuerySync(context.Background(), QueryRequest{Query: "q", DocumentURLs: []string{"u"}})
	require.NoError(t, err)

	rejecting := NewOrchestrator(jobs, okRunner(new(atomic.Int32)), &syncSubmitter{reject: pool.ErrPoolOverload},
		OrchestratorConfig{Metrics: rec})
	_, err = rejecting.Submit(context.Background(), QueryRequest{Query: "q", DocumentURLs: []string{"u"}})
	require.Error(t, err)

	require.Eventually(t, func() bool {
		_, _, finished, _ := rec.snapshot()
		return len(finished) == 2
	}, time.Second, 5*time.Millisecond)

	submitted, rejected, finished, pipelines := rec.snapshot()
	assert.Equal(t, 1, submitted)
	assert.Equal(t, 1, rejected)
	assert.ElementsMatch(t, []string{"completed", "failed"}, finished)
	assert.ElementsMatch(t, []string{"async:false", "sync:false"}, pipelines)
}
