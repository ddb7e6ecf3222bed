package store

import (
	"sync"

	"kbpicker/internal/model"
)

// StatusCache holds the last-known server status per resource, in two
// independently keyed scopes: a root scope per knowledge base id and a folder
// scope per (knowledge base id, folder path). The poller writes fresh entries,
// the orchestrator pre-seeds optimistic ones; both scopes migrate wholesale
// when a knowledge base id changes from temporary to real.
type StatusCache struct {
	mu     sync.RWMutex
	root   map[string]map[string]model.IndexStatus
	folder map[string]map[string]map[string]model.IndexStatus
}

// NewStatusCache creates an empty StatusCache.
func NewStatusCache() *StatusCache {
	return &StatusCache{
		root:   make(map[string]map[string]model.IndexStatus),
		folder: make(map[string]map[string]map[string]model.IndexStatus),
	}
}

// RootStatus returns the root-scope status of a resource.
func (s *StatusCache) RootStatus(kbID, resourceID string) (model.IndexStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.root[kbID][resourceID]
	return st, ok
}

// FolderStatus returns the folder-scope status of a resource.
func (s *StatusCache) FolderStatus(kbID, folderPath, resourceID string) (model.IndexStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.folder[kbID][folderPath][resourceID]
	return st, ok
}

// SeedRoot writes the same status for every given resource id in the root
// scope. Used for optimistic pre-seeding.
func (s *StatusCache) SeedRoot(kbID string, resourceIDs []string, status model.IndexStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.root[kbID]
	if m == nil {
		m = make(map[string]model.IndexStatus)
		s.root[kbID] = m
	}
	for _, id := range resourceIDs {
		m[id] = status
	}
}

// SeedFolder writes the same status for every given resource id in a folder
// scope.
func (s *StatusCache) SeedFolder(kbID, folderPath string, resourceIDs []string, status model.IndexStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb := s.folder[kbID]
	if kb == nil {
		kb = make(map[string]map[string]model.IndexStatus)
		s.folder[kbID] = kb
	}
	m := kb[folderPath]
	if m == nil {
		m = make(map[string]model.IndexStatus)
		kb[folderPath] = m
	}
	for _, id := range resourceIDs {
		m[id] = status
	}
}

// WriteRoot merges a fresh server listing into the root scope and reports
// whether anything actually changed, so callers can skip redundant re-renders.
func (s *StatusCache) WriteRoot(kbID string, entries map[string]model.IndexStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.root[kbID]
	if m == nil {
		m = make(map[string]model.IndexStatus)
		s.root[kbID] = m
	}
	return merge(m, entries)
}

// WriteFolder merges a fresh server listing into a folder scope and reports
// whether anything changed.
func (s *StatusCache) WriteFolder(kbID, folderPath string, entries map[string]model.IndexStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb := s.folder[kbID]
	if kb == nil {
		kb = make(map[string]map[string]model.IndexStatus)
		s.folder[kbID] = kb
	}
	m := kb[folderPath]
	if m == nil {
		m = make(map[string]model.IndexStatus)
		kb[folderPath] = m
	}
	return merge(m, entries)
}

func merge(dst map[string]model.IndexStatus, src map[string]model.IndexStatus) bool {
	changed := false
	for id, st := range src {
		if cur, ok := dst[id]; !ok || cur != st {
			dst[id] = st
			changed = true
		}
	}
	return changed
}

// RemoveRoot strips resource ids from the root scope, so a root-level table
// reflects a delete without a network round trip.
func (s *StatusCache) RemoveRoot(kbID string, resourceIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.root[kbID]
	for _, id := range resourceIDs {
		delete(m, id)
	}
}

// Migrate moves every entry keyed by oldKB to newKB and discards the old key.
func (s *StatusCache) Migrate(oldKB, newKB string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.root[oldKB]; ok {
		dst := s.root[newKB]
		if dst == nil {
			s.root[newKB] = m
		} else {
			merge(dst, m)
		}
		delete(s.root, oldKB)
	}
	if kb, ok := s.folder[oldKB]; ok {
		dst := s.folder[newKB]
		if dst == nil {
			s.folder[newKB] = kb
		} else {
			for path, m := range kb {
				if dst[path] == nil {
					dst[path] = m
				} else {
					merge(dst[path], m)
				}
			}
		}
		delete(s.folder, oldKB)
	}
}

// DropKB discards every entry for the given knowledge base id. Used to revert
// optimistic seeding when a create fails.
func (s *StatusCache) DropKB(kbID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.root, kbID)
	delete(s.folder, kbID)
}

// Clear discards everything.
func (s *StatusCache) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = make(map[string]map[string]model.IndexStatus)
	s.folder = make(map[string]map[string]map[string]model.IndexStatus)
}

// StatusEntry is one row of a snapshot dump. An empty FolderPath marks a
// root-scope entry.
type StatusEntry struct {
	KBID       string
	FolderPath string
	ResourceID string
	Status     model.IndexStatus
}

// Snapshot dumps every entry for persistence.
func (s *StatusCache) Snapshot() []StatusEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StatusEntry
	for kbID, m := range s.root {
		for id, st := range m {
			out = append(out, StatusEntry{KBID: kbID, ResourceID: id, Status: st})
		}
	}
	for kbID, kb := range s.folder {
		for path, m := range kb {
			for id, st := range m {
				out = append(out, StatusEntry{KBID: kbID, FolderPath: path, ResourceID: id, Status: st})
			}
		}
	}
	return out
}

// Restore loads a snapshot dump on top of the current contents.
func (s *StatusCache) Restore(entries []StatusEntry) {
	for _, e := range entries {
		if e.FolderPath == "" {
			s.SeedRoot(e.KBID, []string{e.ResourceID}, e.Status)
			continue
		}
		s.SeedFolder(e.KBID, e.FolderPath, []string{e.ResourceID}, e.Status)
	}
}
