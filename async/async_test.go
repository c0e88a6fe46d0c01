package async_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speechflow/speechflow/async"
	"github.com/speechflow/speechflow/errs"
)

func TestSingleQueueFIFOReaderFirst(t *testing.T) {
	q := async.NewSingleQueue[int]()
	results := make(chan int, 3)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := q.Read()
			require.NoError(t, err)
			results <- v
		}()
	}
	time.Sleep(10 * time.Millisecond) // let readers enqueue as waiters

	q.Write(1)
	q.Write(2)
	q.Write(3)
	wg.Wait()
	close(results)

	var got []int
	for v := range results {
		got = append(got, v)
	}
	assert.ElementsMatch(t, []int{1, 2, 3}, got)
}

func TestSingleQueueWriterFirstBuffers(t *testing.T) {
	q := async.NewSingleQueue[string]()
	q.Write("a")
	q.Write("b")

	v1, err := q.Read()
	require.NoError(t, err)
	v2, err := q.Read()
	require.NoError(t, err)

	assert.Equal(t, "a", v1)
	assert.Equal(t, "b", v2)
}

func TestSingleQueueDestroyRejectsPendingReads(t *testing.T) {
	q := async.NewSingleQueue[int]()
	done := make(chan error, 1)
	go func() {
		_, err := q.Read()
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	q.Destroy()

	err := <-done
	assert.ErrorIs(t, err, errs.Destroyed)
}

func TestSingleQueueWriteAfterDestroyDropped(t *testing.T) {
	q := async.NewSingleQueue[int]()
	q.Destroy()
	q.Write(42) // must not panic or block

	_, err := q.Read()
	assert.ErrorIs(t, err, errs.Destroyed)
}

func TestSingleQueueDestroyIdempotent(t *testing.T) {
	q := async.NewSingleQueue[int]()
	q.Destroy()
	assert.NotPanics(t, func() { q.Destroy() })
}

func TestAsyncQueueEOFMarker(t *testing.T) {
	q := async.NewAsyncQueue[int]()
	v := 7
	q.Write(&v)
	q.Write(nil)

	got, err := q.Read()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, *got)

	eof, err := q.Read()
	require.NoError(t, err)
	assert.Nil(t, eof)
}

func TestPromiseSetAwaitAllSwallowsFailures(t *testing.T) {
	set := async.NewPromiseSet[int]()
	var completed int32
	var mu sync.Mutex

	for i := 0; i < 5; i++ {
		i := i
		set.Add(func() (int, error) {
			mu.Lock()
			completed++
			mu.Unlock()
			if i%2 == 0 {
				return 0, errors.New("boom")
			}
			return i, nil
		})
	}
	set.AwaitAll()

	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, 5, completed)
}

func TestRunTagsFailureWithDescription(t *testing.T) {
	err := async.Run("decode-frame", func() error {
		return errors.New("short read")
	}, nil, nil)

	require.Error(t, err)
	var wrapped *errs.Error
	require.ErrorAs(t, err, &wrapped)
	assert.Equal(t, "decode-frame", wrapped.Operation)
}

func TestRunRecoversPanic(t *testing.T) {
	finallyCalled := false
	err := async.Run("risky", func() error {
		panic("exploded")
	}, nil, func() { finallyCalled = true })

	require.Error(t, err)
	assert.True(t, finallyCalled)
}

func TestRunnerReusable(t *testing.T) {
	calls := 0
	bound := async.Runner("count", func() error {
		calls++
		return nil
	}, nil, nil)

	require.NoError(t, bound())
	require.NoError(t, bound())
	assert.Equal(t, 2, calls)
}

func TestSleepRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := async.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := async.RetryConfig{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 5}

	err := async.Retry(context.Background(), cfg, "call-provider", func() error {
		attempts++
		if attempts < 3 {
			return errs.New("provider", "call", errs.Transient, errors.New("rate limited"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsImmediatelyOnNonTransientKind(t *testing.T) {
	attempts := 0
	err := async.Retry(context.Background(), async.DefaultRetryConfig, "call-provider", func() error {
		attempts++
		return errs.New("provider", "call", errs.Configuration, errors.New("bad api key"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	attempts := 0
	cfg := async.RetryConfig{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 3}

	err := async.Retry(context.Background(), cfg, "call-provider", func() error {
		attempts++
		return errs.New("provider", "call", errs.Transient, errors.New("still failing"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryAbortsOnContextCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := async.RetryConfig{BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond, MaxAttempts: 5}

	attempts := 0
	err := async.Retry(ctx, cfg, "call-provider", func() error {
		attempts++
		if attempts == 1 {
			cancel()
		}
		return errs.New("provider", "call", errs.Transient, errors.New("rate limited"))
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
