// Package notify collects user-visible notifications, deduplicated by key so
// a repeated failure cause fires at most once.
package notify

import (
	"sync"
)

// Level classifies a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// Notification is a single user-visible message.
type Notification struct {
	Level   Level
	Message string
}

// Notifier deduplicates notifications by key and buffers them for the UI.
type Notifier struct {
	mu      sync.Mutex
	seen    map[string]bool
	pending []Notification
}

// New creates a Notifier.
func New() *Notifier {
	return &Notifier{seen: make(map[string]bool)}
}

// Notify records a notification. A key that has fired before is dropped.
// An empty key is never deduplicated.
func (n *Notifier) Notify(key string, level Level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if key != "" {
		if n.seen[key] {
			return
		}
		n.seen[key] = true
	}
	n.pending = append(n.pending, Notification{Level: level, Message: message})
}

// Drain returns and clears the pending notifications.
func (n *Notifier) Drain() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := n.pending
	n.pending = nil
	return out
}

// Reset clears pending notifications and the dedup memory. Called on full
// knowledge base reset.
func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seen = make(map[string]bool)
	n.pending = nil
}
