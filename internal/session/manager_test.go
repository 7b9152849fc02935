package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-chat/internal/utils"
)

type fakeBackend struct {
	starts atomic.Int32
	ends   chan string

	gate     chan struct{}
	failNext atomic.Bool
	endDelay time.Duration
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{ends: make(chan string, 8)}
}

func (f *fakeBackend) StartSession(ctx context.Context) (string, error) {
	n := f.starts.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.failNext.CompareAndSwap(true, false) {
		return "", errors.New("backend unavailable")
	}
	return "sess-" + string(rune('0'+n)), nil
}

func (f *fakeBackend) EndSession(ctx context.Context, id string) error {
	if f.endDelay > 0 {
		select {
		case <-time.After(f.endDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.ends <- id
	return nil
}

func TestStartIsIdempotent(t *testing.T) {
	b := newFakeBackend()
	b.gate = make(chan struct{})
	m := NewManager(b, time.Second, time.Second, utils.Discard())

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.Start(context.Background())
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(b.gate)
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, "sess-1", id)
	}
	assert.Equal(t, int32(1), b.starts.Load())

	id, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)
	assert.Equal(t, int32(1), b.starts.Load())
}

func TestFailedStartIsRetryable(t *testing.T) {
	b := newFakeBackend()
	b.failNext.Store(true)
	m := NewManager(b, time.Second, time.Second, utils.Discard())

	_, err := m.Start(context.Background())
	require.Error(t, err)
	_, ok := m.ID()
	assert.False(t, ok)

	id, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-2", id)
}

func TestStartHonorsCallerContext(t *testing.T) {
	b := newFakeBackend()
	b.gate = make(chan struct{})
	defer close(b.gate)
	m := NewManager(b, time.Second, time.Second, utils.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseRunsOnce(t *testing.T) {
	b := newFakeBackend()
	m := NewManager(b, time.Second, time.Second, utils.Discard())
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	m.Release()
	m.Release()
	require.True(t, m.Wait(time.Second))

	assert.Equal(t, "sess-1", <-b.ends)
	assert.Len(t, b.ends, 0)
	_, ok := m.ID()
	assert.False(t, ok)

	_, err = m.Start(context.Background())
	assert.ErrorIs(t, err, ErrReleased)
}

func TestReleaseDoesNotBlock(t *testing.T) {
	b := newFakeBackend()
	b.endDelay = 200 * time.Millisecond
	m := NewManager(b, time.Second, 50*time.Millisecond, utils.Discard())
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	start := time.Now()
	m.Release()
	assert.Less(t, time.Since(start), 20*time.Millisecond)

	// the release timeout cuts the slow backend call short
	assert.True(t, m.Wait(time.Second))
	assert.Len(t, b.ends, 0)
}

func TestReleaseWithoutSession(t *testing.T) {
	b := newFakeBackend()
	m := NewManager(b, time.Second, time.Second, utils.Discard())
	m.Release()
	assert.True(t, m.Wait(10*time.Millisecond))
	assert.Len(t, b.ends, 0)
}
