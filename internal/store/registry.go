package store

import (
	"sync"
	"time"
)

// RegistryEntry records one resource the user asked to delete.
type RegistryEntry struct {
	ResourceID   string
	ResourceName string
	KBID         string
	MarkedAt     time.Time
}

// DeleteRegistry holds the set of resources that must display as removed no
// matter what the poller reports, since the server may keep returning a
// resource for a while after its deletion was requested. Entries are never
// removed on a successful delete; once the server truly drops the resource
// from listings the override becomes moot. Only a full knowledge base reset
// clears the registry.
type DeleteRegistry struct {
	mu      sync.RWMutex
	entries map[string]RegistryEntry
}

// NewDeleteRegistry creates an empty registry.
func NewDeleteRegistry() *DeleteRegistry {
	return &DeleteRegistry{entries: make(map[string]RegistryEntry)}
}

// MarkDeleted inserts or overwrites the entry for a resource. Idempotent.
func (d *DeleteRegistry) MarkDeleted(resourceID, resourceName, kbID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[resourceID] = RegistryEntry{
		ResourceID:   resourceID,
		ResourceName: resourceName,
		KBID:         kbID,
		MarkedAt:     time.Now(),
	}
}

// Removed reports whether the resource has a pending delete lock.
func (d *DeleteRegistry) Removed(resourceID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entries[resourceID]
	return ok
}

// Entries returns a copy of all registry entries.
func (d *DeleteRegistry) Entries() []RegistryEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]RegistryEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	return out
}

// Len returns the number of locked resources.
func (d *DeleteRegistry) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Clear empties the registry. Invoked only on full knowledge base reset.
func (d *DeleteRegistry) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[string]RegistryEntry)
}
