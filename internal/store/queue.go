package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DeleteRequest is a queued intent to remove one resource from a knowledge
// base, recorded while a sync is still in flight.
type DeleteRequest struct {
	ID           string
	ResourceID   string
	ResourcePath string
	KBID         string
	EnqueuedAt   time.Time
}

// DeleteFunc executes one delete against the backend.
type DeleteFunc func(ctx context.Context, kbID, resourcePath string) error

// DeleteQueue buffers delete requests issued while the knowledge base sync
// state is pending and replays them in FIFO order once it becomes synced.
type DeleteQueue struct {
	mu         sync.Mutex
	requests   []DeleteRequest
	processing bool
}

// NewDeleteQueue creates an empty queue.
func NewDeleteQueue() *DeleteQueue {
	return &DeleteQueue{}
}

// Enqueue appends a request. The request id derives from the resource id and
// the enqueue timestamp.
func (q *DeleteQueue) Enqueue(resourceID, resourcePath, kbID string) DeleteRequest {
	now := time.Now()
	req := DeleteRequest{
		ID:           fmt.Sprintf("%s:%d", resourceID, now.UnixNano()),
		ResourceID:   resourceID,
		ResourcePath: resourcePath,
		KBID:         kbID,
		EnqueuedAt:   now,
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, req)
	return req
}

// Dequeue removes the request with the given id.
func (q *DeleteQueue) Dequeue(requestID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, r := range q.requests {
		if r.ID == requestID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// Rekey rewrites the knowledge base id on all queued requests. Required when
// the active knowledge base id migrates from temporary to real mid-flight.
func (q *DeleteQueue) Rekey(oldKBID, newKBID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.requests {
		if q.requests[i].KBID == oldKBID {
			q.requests[i].KBID = newKBID
		}
	}
}

// Requests returns a copy of the queued requests in FIFO order.
func (q *DeleteQueue) Requests() []DeleteRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeleteRequest(nil), q.requests...)
}

// Len returns the number of queued requests.
func (q *DeleteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// PurgeKB drops every queued request for the given knowledge base id. Used
// when a failed create discards the temporary id the requests were keyed to.
func (q *DeleteQueue) PurgeKB(kbID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.requests[:0]
	for _, r := range q.requests {
		if r.KBID != kbID {
			kept = append(kept, r)
		}
	}
	q.requests = kept
}

// Clear drops every queued request. Invoked only on full reset.
func (q *DeleteQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = nil
}

// Drain executes queued requests targeting kbID sequentially with the given
// spacing between calls. Requests for a different knowledge base id are
// skipped and stay queued. Each executed request is dequeued whether it
// succeeded or not; failures go to onError and are not retried. At most one
// drain runs at a time; a second call returns immediately.
func (q *DeleteQueue) Drain(ctx context.Context, kbID string, spacing time.Duration, del DeleteFunc, onError func(DeleteRequest, error)) {
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return
	}
	q.processing = true
	snapshot := append([]DeleteRequest(nil), q.requests...)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	first := true
	for _, req := range snapshot {
		if req.KBID != kbID {
			continue
		}
		if !first {
			select {
			case <-ctx.Done():
				return
			case <-time.After(spacing):
			}
		}
		first = false

		err := del(ctx, req.KBID, req.ResourcePath)
		q.Dequeue(req.ID)
		if err != nil && onError != nil {
			onError(req, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Processing reports whether a drain is currently running.
func (q *DeleteQueue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processing
}
