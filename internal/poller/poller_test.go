package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbpicker/internal/model"
	"kbpicker/internal/notify"
	"kbpicker/internal/store"
)

func fastOpts() Options {
	return Options{Interval: 5 * time.Millisecond, Ceiling: 2 * time.Second}
}

// scriptedList returns the listings in sequence, repeating the last one once
// the script is exhausted.
func scriptedList(script ...[]model.Resource) ListFunc {
	var n int64
	return func(ctx context.Context, kbID, resourcePath string) ([]model.Resource, error) {
		i := int(atomic.AddInt64(&n, 1)) - 1
		if i >= len(script) {
			i = len(script) - 1
		}
		return script[i], nil
	}
}

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

func TestPoller_StopsWhenScopeSettles(t *testing.T) {
	statuses := store.NewStatusCache()
	notifier := notify.New()

	list := scriptedList(
		[]model.Resource{
			{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusPending},
		},
		[]model.Resource{
			{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusIndexed},
		},
	)

	p := New(list, statuses, notifier, fastOpts())
	p.Start("kb-1", "")

	waitFor(t, func() bool { return !p.Polling("kb-1", "") })

	got, ok := statuses.RootStatus("kb-1", "f1")
	require.True(t, ok)
	assert.Equal(t, model.StatusIndexed, got)
}

func TestPoller_EmptyScopeSettlesImmediately(t *testing.T) {
	statuses := store.NewStatusCache()
	var calls int64
	list := func(ctx context.Context, kbID, resourcePath string) ([]model.Resource, error) {
		atomic.AddInt64(&calls, 1)
		return nil, nil
	}

	p := New(list, statuses, notify.New(), fastOpts())
	p.Start("kb-1", "")

	waitFor(t, func() bool { return !p.Polling("kb-1", "") })
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestPoller_DirectoriesDoNotBlockSettlement(t *testing.T) {
	statuses := store.NewStatusCache()
	list := scriptedList([]model.Resource{
		{ID: "d1", Path: "docs", Kind: model.KindDirectory, Status: model.StatusPending},
		{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusIndexed},
	})

	p := New(list, statuses, notify.New(), fastOpts())
	p.Start("kb-1", "")

	waitFor(t, func() bool { return !p.Polling("kb-1", "") })
}

func TestPoller_RefusesTemporaryKBID(t *testing.T) {
	statuses := store.NewStatusCache()
	var calls int64
	list := func(ctx context.Context, kbID, resourcePath string) ([]model.Resource, error) {
		atomic.AddInt64(&calls, 1)
		return nil, nil
	}

	p := New(list, statuses, notify.New(), fastOpts())
	p.Start(model.TempKBPrefix+"abc", "")

	assert.False(t, p.Polling(model.TempKBPrefix+"abc", ""))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&calls))
}

func TestPoller_DuplicateStartIsNoop(t *testing.T) {
	statuses := store.NewStatusCache()
	block := make(chan struct{})
	var calls int64
	list := func(ctx context.Context, kbID, resourcePath string) ([]model.Resource, error) {
		atomic.AddInt64(&calls, 1)
		<-block
		return nil, nil
	}

	p := New(list, statuses, notify.New(), fastOpts())
	p.Start("kb-1", "")
	p.Start("kb-1", "")

	waitFor(t, func() bool { return atomic.LoadInt64(&calls) == 1 })
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))

	close(block)
	waitFor(t, func() bool { return !p.Polling("kb-1", "") })
}

func TestPoller_CeilingStopsLoopKeepsOptimisticState(t *testing.T) {
	statuses := store.NewStatusCache()
	statuses.SeedRoot("kb-1", []string{"f1"}, model.StatusIndexed)

	// Backend never progresses past pending.
	list := scriptedList([]model.Resource{
		{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusPending},
	})

	p := New(list, statuses, notify.New(), Options{Interval: 2 * time.Millisecond, Ceiling: 30 * time.Millisecond})
	p.Start("kb-1", "")

	waitFor(t, func() bool { return !p.Polling("kb-1", "") })

	// The cache still carries the scope; pending keeps displaying as indexed.
	got, ok := statuses.RootStatus("kb-1", "f1")
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, got)
	assert.Equal(t, model.DisplayIndexed, store.DisplayFor(got))
}

func TestPoller_TransientErrorsRetryUntilSettled(t *testing.T) {
	statuses := store.NewStatusCache()
	var n int64
	list := func(ctx context.Context, kbID, resourcePath string) ([]model.Resource, error) {
		if atomic.AddInt64(&n, 1) < 3 {
			return nil, errors.New("temporarily unreachable")
		}
		return []model.Resource{
			{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusIndexed},
		}, nil
	}

	p := New(list, statuses, notify.New(), fastOpts())
	p.Start("kb-1", "")

	waitFor(t, func() bool { return !p.Polling("kb-1", "") })
	got, ok := statuses.RootStatus("kb-1", "f1")
	require.True(t, ok)
	assert.Equal(t, model.StatusIndexed, got)
}

func TestPoller_ErrorStatusNotifiesOncePerScope(t *testing.T) {
	statuses := store.NewStatusCache()
	notifier := notify.New()

	// Two polls both report an error file; the advisory fires once.
	list := scriptedList(
		[]model.Resource{
			{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusError},
			{ID: "f2", Path: "b.txt", Kind: model.KindFile, Status: model.StatusPending},
		},
		[]model.Resource{
			{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusError},
			{ID: "f2", Path: "b.txt", Kind: model.KindFile, Status: model.StatusIndexed},
		},
	)

	p := New(list, statuses, notifier, fastOpts())
	p.Start("kb-1", "")

	waitFor(t, func() bool { return !p.Polling("kb-1", "") })

	msgs := notifier.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.LevelError, msgs[0].Level)
}

func TestPoller_OnChangeOnlyWhenStatusesChange(t *testing.T) {
	statuses := store.NewStatusCache()
	var changes int64

	// Same listing twice then settled: the second identical write must not
	// fire OnChange.
	list := scriptedList(
		[]model.Resource{{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusPending}},
		[]model.Resource{{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusPending}},
		[]model.Resource{{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusIndexed}},
	)

	p := New(list, statuses, notify.New(), fastOpts())
	p.OnChange = func() { atomic.AddInt64(&changes, 1) }
	p.Start("kb-1", "")

	waitFor(t, func() bool { return !p.Polling("kb-1", "") })
	assert.EqualValues(t, 2, atomic.LoadInt64(&changes))
}

func TestPoller_FolderScopeWritesFolderCache(t *testing.T) {
	statuses := store.NewStatusCache()
	list := scriptedList([]model.Resource{
		{ID: "f2", Path: "docs/report.pdf", Kind: model.KindFile, Status: model.StatusIndexed},
	})

	p := New(list, statuses, notify.New(), fastOpts())
	p.Start("kb-1", "docs")

	waitFor(t, func() bool { return !p.Polling("kb-1", "docs") })

	got, ok := statuses.FolderStatus("kb-1", "docs", "f2")
	require.True(t, ok)
	assert.Equal(t, model.StatusIndexed, got)
	_, ok = statuses.RootStatus("kb-1", "f2")
	assert.False(t, ok)
}

func TestPoller_StopAndStopAll(t *testing.T) {
	statuses := store.NewStatusCache()
	var mu sync.Mutex
	stopped := false
	list := func(ctx context.Context, kbID, resourcePath string) ([]model.Resource, error) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			t.Error("poll after stop")
		}
		return []model.Resource{
			{ID: "f1", Path: "a.txt", Kind: model.KindFile, Status: model.StatusPending},
		}, nil
	}

	p := New(list, statuses, notify.New(), Options{Interval: 5 * time.Millisecond, Ceiling: time.Minute})
	p.Start("kb-1", "")
	p.Start("kb-1", "docs")
	assert.True(t, p.Polling("kb-1", ""))
	assert.True(t, p.Polling("kb-1", "docs"))

	p.Stop("kb-1", "docs")
	assert.False(t, p.Polling("kb-1", "docs"))
	assert.True(t, p.Polling("kb-1", ""))

	p.StopAll()
	assert.False(t, p.Polling("kb-1", ""))
	time.Sleep(15 * time.Millisecond)
	mu.Lock()
	stopped = true
	mu.Unlock()
	time.Sleep(15 * time.Millisecond)
}
