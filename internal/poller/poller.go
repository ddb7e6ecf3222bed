// Package poller reconciles cached resource status with server truth by
// polling each knowledge base scope until it settles.
package poller

import (
	"context"
	"sync"
	"time"

	"kbpicker/internal/logger"
	"kbpicker/internal/model"
	"kbpicker/internal/notify"
	"kbpicker/internal/store"
)

// ListFunc fetches the status-bearing listing for one scope: the knowledge
// base root when resourcePath is empty, otherwise a folder path.
type ListFunc func(ctx context.Context, kbID, resourcePath string) ([]model.Resource, error)

// Options bounds the polling loop. Both values are injected so tests can run
// with millisecond intervals.
type Options struct {
	Interval time.Duration
	Ceiling  time.Duration
}

// Poller runs one polling loop per scope. A scope settles when every
// file-type resource in it reports indexed or error; an empty scope settles
// immediately. A hard ceiling bounds total polling time against a stuck
// backend.
type Poller struct {
	list     ListFunc
	statuses *store.StatusCache
	notifier *notify.Notifier
	opts     Options

	// OnChange fires after a poll wrote at least one changed status.
	OnChange func()

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates a Poller writing into the given status cache.
func New(list ListFunc, statuses *store.StatusCache, notifier *notify.Notifier, opts Options) *Poller {
	return &Poller{
		list:     list,
		statuses: statuses,
		notifier: notifier,
		opts:     opts,
		cancels:  make(map[string]context.CancelFunc),
	}
}

func scopeKey(kbID, resourcePath string) string {
	return kbID + "|" + resourcePath
}

// Start begins polling a scope. Temporary knowledge base ids are not
// pollable and are refused; a scope that is already polling is left alone.
func (p *Poller) Start(kbID, resourcePath string) {
	if model.IsTempKBID(kbID) {
		logger.Warnf("refusing to poll temporary knowledge base id %s", kbID)
		return
	}

	key := scopeKey(kbID, resourcePath)
	p.mu.Lock()
	if _, ok := p.cancels[key]; ok {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancels[key] = cancel
	p.mu.Unlock()

	go p.run(ctx, kbID, resourcePath)
}

// Polling reports whether a scope currently has a loop running.
func (p *Poller) Polling(kbID, resourcePath string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.cancels[scopeKey(kbID, resourcePath)]
	return ok
}

// Stop cancels one scope's loop.
func (p *Poller) Stop(kbID, resourcePath string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := scopeKey(kbID, resourcePath)
	if cancel, ok := p.cancels[key]; ok {
		cancel()
		delete(p.cancels, key)
	}
}

// StopAll cancels every loop. Called on full reset.
func (p *Poller) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, cancel := range p.cancels {
		cancel()
		delete(p.cancels, key)
	}
}

func (p *Poller) finish(kbID, resourcePath string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := scopeKey(kbID, resourcePath)
	if cancel, ok := p.cancels[key]; ok {
		cancel()
		delete(p.cancels, key)
	}
}

func (p *Poller) run(ctx context.Context, kbID, resourcePath string) {
	defer p.finish(kbID, resourcePath)

	start := time.Now()
	for {
		if p.pollOnce(ctx, kbID, resourcePath) {
			return
		}
		if time.Since(start) >= p.opts.Ceiling {
			logger.Warnf("polling ceiling reached for kb %s scope %q, stopping", kbID, resourcePath)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.opts.Interval):
		}
	}
}

// pollOnce fetches the scope listing once and returns true when the scope has
// settled. Transient fetch errors are logged and swallowed; the next tick
// retries.
func (p *Poller) pollOnce(ctx context.Context, kbID, resourcePath string) bool {
	resources, err := p.list(ctx, kbID, resourcePath)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		logger.Warnf("poll kb %s scope %q: %v", kbID, resourcePath, err)
		return false
	}

	entries := make(map[string]model.IndexStatus, len(resources))
	settled := true
	failed := false
	for _, r := range resources {
		entries[r.ID] = r.Status
		if !r.IsDir() {
			if r.Status.Transient() {
				settled = false
			}
			if r.Status == model.StatusError {
				failed = true
			}
		}
	}

	var changed bool
	if resourcePath == "" {
		changed = p.statuses.WriteRoot(kbID, entries)
	} else {
		changed = p.statuses.WriteFolder(kbID, resourcePath, entries)
	}
	if changed && p.OnChange != nil {
		p.OnChange()
	}

	// Advisory, once per scope: indexing failures may mean the knowledge
	// base is unusable, but other resources keep processing.
	if failed {
		p.notifier.Notify("index-error:"+scopeKey(kbID, resourcePath), notify.LevelError,
			"some files failed to index; the knowledge base may be corrupted, consider creating a new one")
	}

	return settled
}
