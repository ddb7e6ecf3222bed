package prefetch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestScheduler_FetchesAfterDelay(t *testing.T) {
	var fetched int64
	s := New(func(ctx context.Context, folderID string) error {
		atomic.AddInt64(&fetched, 1)
		return nil
	}, 5*time.Millisecond)

	s.Schedule("d1")
	assert.True(t, s.Pending("d1"))

	waitFor(t, func() bool { return atomic.LoadInt64(&fetched) == 1 })
	waitFor(t, func() bool { return !s.Pending("d1") })
}

func TestScheduler_CancelBeforeDelay(t *testing.T) {
	var fetched int64
	s := New(func(ctx context.Context, folderID string) error {
		atomic.AddInt64(&fetched, 1)
		return nil
	}, 20*time.Millisecond)

	s.Schedule("d1")
	s.Cancel("d1")
	assert.False(t, s.Pending("d1"))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&fetched))
}

func TestScheduler_RescheduleRestartsDebounce(t *testing.T) {
	var fetched int64
	s := New(func(ctx context.Context, folderID string) error {
		atomic.AddInt64(&fetched, 1)
		return nil
	}, 15*time.Millisecond)

	// Rapid re-hovering the same folder collapses to one fetch.
	s.Schedule("d1")
	time.Sleep(5 * time.Millisecond)
	s.Schedule("d1")
	time.Sleep(5 * time.Millisecond)
	s.Schedule("d1")

	waitFor(t, func() bool { return atomic.LoadInt64(&fetched) == 1 })
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt64(&fetched))
}

func TestScheduler_IndependentFolders(t *testing.T) {
	var fetched int64
	s := New(func(ctx context.Context, folderID string) error {
		atomic.AddInt64(&fetched, 1)
		return nil
	}, 5*time.Millisecond)

	s.Schedule("d1")
	s.Schedule("d2")

	waitFor(t, func() bool { return atomic.LoadInt64(&fetched) == 2 })
}

func TestScheduler_CancelAll(t *testing.T) {
	var fetched int64
	s := New(func(ctx context.Context, folderID string) error {
		atomic.AddInt64(&fetched, 1)
		return nil
	}, 20*time.Millisecond)

	s.Schedule("d1")
	s.Schedule("d2")
	s.CancelAll()

	assert.False(t, s.Pending("d1"))
	assert.False(t, s.Pending("d2"))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&fetched))
}
