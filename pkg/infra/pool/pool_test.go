package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool(t *testing.T) {
	p, err := NewPool("test", nil)
	require.NoError(t, err)
	defer p.Release()

	assert.Equal(t, "test", p.Name())
	assert.Equal(t, DefaultConfig().Capacity, p.Cap())

	_, err = NewPool("bad", &Config{Capacity: 0})
	assert.ErrorIs(t, err, ErrInvalidPoolConfig)
}

func TestPoolSubmit(t *testing.T) {
	p, err := NewPool("test", &Config{Capacity: 4, ExpiryDuration: time.Second})
	require.NoError(t, err)
	defer p.Release()

	var counter atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(50), counter.Load())
	assert.Eventually(t, func() bool {
		return p.Stats().CompletedTasks == 50
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(50), p.Stats().SubmittedTasks)
}

func TestPoolSubmit_Overload(t *testing.T) {
	p, err := NewPool("test", &Config{Capacity: 1, ExpiryDuration: time.Second, Nonblocking: true})
	require.NoError(t, err)
	defer p.Release()

	block := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-block }))

	err = p.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolOverload)
	assert.Equal(t, int64(1), p.Stats().RejectedTasks)
	close(block)
}

func TestPoolSubmit_PanicRecovered(t *testing.T) {
	var handled atomic.Bool
	p, err := NewPool("test", &Config{
		Capacity:       1,
		ExpiryDuration: time.Second,
		PanicHandler:   func(any) { handled.Store(true) },
	})
	require.NoError(t, err)
	defer p.Release()

	require.NoError(t, p.Submit(func() { panic("boom") }))

	assert.Eventually(t, handled.Load, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), p.Stats().PanicRecovered)
}

func TestPoolSubmitWithContext(t *testing.T) {
	p, err := NewPool("test", &Config{Capacity: 2, ExpiryDuration: time.Second})
	require.NoError(t, err)
	defer p.Release()

	var executed atomic.Bool
	require.NoError(t, p.SubmitWithContext(context.Background(), func() { executed.Store(true) }))
	assert.Eventually(t, executed.Load, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.SubmitWithContext(ctx, func() {}), context.Canceled)
}

func TestPoolRelease(t *testing.T) {
	p, err := NewPool("test", nil)
	require.NoError(t, err)

	p.Release()
	p.Release()
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
	assert.NoError(t, p.ReleaseTimeout(time.Second))
}
