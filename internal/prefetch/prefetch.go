// Package prefetch speculatively warms folder listings on hover, with a
// debounce so quick cursor movement costs nothing and per-folder cancellation
// so a real expansion never races its own prefetch.
package prefetch

import (
	"context"
	"sync"
	"time"
)

// FetchFunc loads a folder's contents into the tree cache.
type FetchFunc func(ctx context.Context, folderID string) error

type task struct {
	cancel context.CancelFunc
	gen    uint64
}

// Scheduler debounces and cancels speculative folder loads.
type Scheduler struct {
	fetch FetchFunc
	delay time.Duration

	mu       sync.Mutex
	gen      uint64
	inflight map[string]task
}

// New creates a Scheduler with the given debounce delay.
func New(fetch FetchFunc, delay time.Duration) *Scheduler {
	return &Scheduler{
		fetch:    fetch,
		delay:    delay,
		inflight: make(map[string]task),
	}
}

// Schedule queues a speculative load of the folder after the debounce delay.
// Scheduling a folder that is already pending restarts its debounce.
func (s *Scheduler) Schedule(folderID string) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if prev, ok := s.inflight[folderID]; ok {
		prev.cancel()
	}
	s.gen++
	gen := s.gen
	s.inflight[folderID] = task{cancel: cancel, gen: gen}
	s.mu.Unlock()

	go func() {
		defer s.remove(folderID, gen)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.delay):
		}
		_ = s.fetch(ctx, folderID) // speculative, failures are ignored
	}()
}

// Cancel stops any pending or running prefetch for the folder. Called before
// a real fetch of the same cache key.
func (s *Scheduler) Cancel(folderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.inflight[folderID]; ok {
		t.cancel()
		delete(s.inflight, folderID)
	}
}

// CancelAll stops every outstanding prefetch.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.inflight {
		t.cancel()
		delete(s.inflight, id)
	}
}

// Pending reports whether the folder has an outstanding prefetch.
func (s *Scheduler) Pending(folderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[folderID]
	return ok
}

// remove drops our own registration; a newer schedule may have replaced it.
func (s *Scheduler) remove(folderID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.inflight[folderID]; ok && t.gen == gen {
		delete(s.inflight, folderID)
	}
}
