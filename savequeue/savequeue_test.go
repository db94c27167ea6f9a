package savequeue_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bastion/savequeue"
)

type entity struct {
	mu    sync.Mutex
	dirty bool
	saves atomic.Int32
	err   error
	gate  chan struct{}
}

func newEntity() *entity { return &entity{dirty: true} }

func (e *entity) IsSaveNeeded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

func (e *entity) SaveImmediately(ctx context.Context) error {
	if e.gate != nil {
		<-e.gate
	}
	e.saves.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.dirty = false
	return nil
}

func (e *entity) touch() {
	e.mu.Lock()
	e.dirty = true
	e.mu.Unlock()
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

func TestFlushSavesPending(t *testing.T) {
	q := savequeue.New(savequeue.WithLogger(quietLogger()))
	a, b := newEntity(), newEntity()

	require.True(t, q.Add(a))
	require.True(t, q.Add(b))
	assert.Equal(t, 2, q.Len())

	require.NoError(t, q.Flush(context.Background()))
	assert.EqualValues(t, 1, a.saves.Load())
	assert.EqualValues(t, 1, b.saves.Load())
	assert.Equal(t, 0, q.Len())
	assert.EqualValues(t, 2, q.Stats().Saved)
}

func TestRepeatSubmissionsCoalesce(t *testing.T) {
	q := savequeue.New(savequeue.WithLogger(quietLogger()))
	e := newEntity()
	for i := 0; i < 5; i++ {
		require.True(t, q.Add(e))
	}
	assert.Equal(t, 1, q.Len())

	require.NoError(t, q.Flush(context.Background()))
	assert.EqualValues(t, 1, e.saves.Load())
	assert.EqualValues(t, 4, q.Stats().Coalesced)
}

func TestCleanEntitiesAreSkipped(t *testing.T) {
	q := savequeue.New(savequeue.WithLogger(quietLogger()))
	e := newEntity()
	e.dirty = false

	q.Add(e)
	require.NoError(t, q.Flush(context.Background()))
	assert.EqualValues(t, 0, e.saves.Load())
	assert.EqualValues(t, 1, q.Stats().Skipped)
}

func TestFailedSaveWaitsForExplicitFlush(t *testing.T) {
	var logs bytes.Buffer
	var mu sync.Mutex
	var reported []error
	q := savequeue.New(
		savequeue.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		savequeue.WithInterval(5*time.Millisecond),
		savequeue.WithFailureHandler(func(_ savequeue.Savable, err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		}),
	)
	boom := errors.New("disk full")
	e := newEntity()
	e.err = boom

	q.Start()
	defer q.Close(context.Background())

	q.Add(e)
	require.Eventually(t, func() bool { return q.Stats().Failed == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	assert.EqualValues(t, 1, e.saves.Load(), "worker does not retry")
	assert.True(t, e.IsSaveNeeded(), "entity stays dirty")
	assert.Equal(t, 1, q.Stats().Parked)
	assert.Contains(t, logs.String(), "save failed")

	require.NoError(t, q.Flush(context.Background()))
	assert.EqualValues(t, 2, e.saves.Load(), "flush retries")
	assert.Equal(t, 1, q.Stats().Parked)

	mu.Lock()
	require.Len(t, reported, 2)
	assert.ErrorIs(t, reported[0], boom)
	mu.Unlock()

	e.mu.Lock()
	e.err = nil
	e.mu.Unlock()
	require.NoError(t, q.Flush(context.Background()))
	assert.False(t, e.IsSaveNeeded())
	assert.Equal(t, 0, q.Stats().Parked)
	assert.EqualValues(t, 1, q.Stats().Saved)
}

func TestResubmissionUnparks(t *testing.T) {
	q := savequeue.New(savequeue.WithLogger(quietLogger()))
	e := newEntity()
	e.err = errors.New("locked")

	q.Add(e)
	require.NoError(t, q.Flush(context.Background()))
	require.Equal(t, 1, q.Stats().Parked)

	q.Add(e)
	assert.Equal(t, 0, q.Stats().Parked)
	assert.Equal(t, 1, q.Len())
}

func TestWorkerSavesInBackground(t *testing.T) {
	q := savequeue.New(savequeue.WithLogger(quietLogger()), savequeue.WithInterval(10*time.Millisecond))
	q.Start()
	q.Start()
	defer q.Close(context.Background())

	e := newEntity()
	q.Add(e)
	require.Eventually(t, func() bool { return !e.IsSaveNeeded() }, 2*time.Second, 5*time.Millisecond)
}

func TestSubmissionDuringSaveIsQueuedAgain(t *testing.T) {
	q := savequeue.New(savequeue.WithLogger(quietLogger()))
	e := newEntity()
	e.gate = make(chan struct{})
	q.Add(e)

	done := make(chan error, 1)
	go func() { done <- q.Flush(context.Background()) }()

	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
	e.touch()
	require.True(t, q.Add(e))
	assert.Equal(t, 1, q.Len())

	close(e.gate)
	require.NoError(t, <-done)
	// The in-flight save wrote the latest state, so the requeued entry is clean.
	assert.EqualValues(t, 1, e.saves.Load())
	assert.EqualValues(t, 1, q.Stats().Skipped)
	assert.Equal(t, 0, q.Len())
}

func TestCloseDrainsAndRejects(t *testing.T) {
	q := savequeue.New(savequeue.WithLogger(quietLogger()))
	q.Start()

	entities := make([]*entity, 50)
	var wg sync.WaitGroup
	for i := range entities {
		entities[i] = newEntity()
		wg.Add(1)
		go func(e *entity) {
			defer wg.Done()
			q.Add(e)
		}(entities[i])
	}
	wg.Wait()

	require.NoError(t, q.Close(context.Background()))
	require.NoError(t, q.Close(context.Background()))

	for _, e := range entities {
		assert.False(t, e.IsSaveNeeded())
		assert.EqualValues(t, 1, e.saves.Load())
	}
	assert.False(t, q.Add(newEntity()))
	assert.False(t, q.Add(nil))
}

func TestFlushHonoursContext(t *testing.T) {
	q := savequeue.New(savequeue.WithLogger(quietLogger()))
	a, b := newEntity(), newEntity()
	q.Add(a)
	q.Add(b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Flush(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, q.Len())

	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, 0, q.Len())
}
