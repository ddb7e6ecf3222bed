package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"kbpicker/internal/model"
)

// ListFunc fetches the direct contents of a drive folder. An empty folderID
// means the drive root.
type ListFunc func(ctx context.Context, folderID string) ([]model.Resource, error)

type folderEntry struct {
	resources []model.Resource
	fetchedAt time.Time
}

// TreeCache caches per-folder drive listings with a freshness window and
// exposes the expanded tree as a flat, depth-annotated slice. Collapsing a
// folder only hides its subtree, cached listings are kept until they go stale
// or the cache is cleared.
type TreeCache struct {
	list ListFunc
	ttl  time.Duration

	mu       sync.Mutex
	entries  map[string]*folderEntry
	inflight map[string]chan struct{}
	expanded map[string]bool
}

// NewTreeCache creates a TreeCache around the given lister.
func NewTreeCache(list ListFunc, ttl time.Duration) *TreeCache {
	return &TreeCache{
		list:     list,
		ttl:      ttl,
		entries:  make(map[string]*folderEntry),
		inflight: make(map[string]chan struct{}),
		expanded: make(map[string]bool),
	}
}

// ListRoot returns the root listing, fetching it if stale or absent.
func (t *TreeCache) ListRoot(ctx context.Context) ([]model.Resource, error) {
	return t.fetch(ctx, "")
}

// ListFolder returns a folder's listing, fetching it if stale or absent.
func (t *TreeCache) ListFolder(ctx context.Context, folderID string) ([]model.Resource, error) {
	return t.fetch(ctx, folderID)
}

// fetch returns a cached listing when fresh, coalesces concurrent fetches for
// the same key into a single network call, and caches the result.
func (t *TreeCache) fetch(ctx context.Context, key string) ([]model.Resource, error) {
	for {
		t.mu.Lock()
		if e, ok := t.entries[key]; ok && time.Since(e.fetchedAt) < t.ttl {
			out := append([]model.Resource(nil), e.resources...)
			t.mu.Unlock()
			return out, nil
		}
		if ch, ok := t.inflight[key]; ok {
			t.mu.Unlock()
			select {
			case <-ch:
				continue // re-check the cache
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		ch := make(chan struct{})
		t.inflight[key] = ch
		t.mu.Unlock()

		resources, err := t.list(ctx, key)

		t.mu.Lock()
		delete(t.inflight, key)
		close(ch)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		t.entries[key] = &folderEntry{resources: resources, fetchedAt: time.Now()}
		out := append([]model.Resource(nil), resources...)
		t.mu.Unlock()
		return out, nil
	}
}

// Toggle expands a collapsed folder (fetching its contents) or collapses an
// expanded one. A fetch failure is non-fatal: the folder expands with no
// children so navigation keeps working.
func (t *TreeCache) Toggle(ctx context.Context, folderID string) (expanded bool, err error) {
	t.mu.Lock()
	if t.expanded[folderID] {
		delete(t.expanded, folderID)
		t.mu.Unlock()
		return false, nil
	}
	t.mu.Unlock()

	_, err = t.fetch(ctx, folderID)

	t.mu.Lock()
	t.expanded[folderID] = true
	t.mu.Unlock()
	return true, err
}

// IsExpanded reports whether the folder is currently expanded.
func (t *TreeCache) IsExpanded(folderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expanded[folderID]
}

// Cached returns a folder's listing without fetching.
func (t *TreeCache) Cached(folderID string) ([]model.Resource, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[folderID]
	if !ok {
		return nil, false
	}
	return append([]model.Resource(nil), e.resources...), true
}

// Node is one row of the flattened tree. Level is the depth used for
// indentation, starting at 0 for root-level resources.
type Node struct {
	model.Resource
	Level int
}

// Flatten walks the cached tree depth-first: each expanded directory is
// immediately followed by its children. Nothing is fetched and nothing in the
// cache is mutated.
func (t *TreeCache) Flatten() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	root, ok := t.entries[""]
	if !ok {
		return nil
	}
	var out []Node
	t.flattenInto(root.resources, 0, &out)
	return out
}

func (t *TreeCache) flattenInto(resources []model.Resource, level int, out *[]Node) {
	for _, r := range resources {
		*out = append(*out, Node{Resource: r, Level: level})
		if r.IsDir() && t.expanded[r.ID] {
			if e, ok := t.entries[r.ID]; ok {
				t.flattenInto(e.resources, level+1, out)
			}
		}
	}
}

// CachedDescendants returns every cached resource whose path lives below
// dirPath, across all cached listings. Used for deletion eligibility, where a
// directory qualifies through any descendant file.
func (t *TreeCache) CachedDescendants(dirPath string) []model.Resource {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]bool)
	var out []model.Resource
	for _, e := range t.entries {
		for _, r := range e.resources {
			if model.IsDescendant(dirPath, r.Path) && !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// DescendantFiles fetches dir's contents recursively and returns every file
// below it. Used by the optimistic seed on knowledge base creation.
func (t *TreeCache) DescendantFiles(ctx context.Context, dir model.Resource) ([]model.Resource, error) {
	contents, err := t.fetch(ctx, dir.ID)
	if err != nil {
		return nil, err
	}
	var files []model.Resource
	for _, r := range contents {
		if r.IsDir() {
			sub, err := t.DescendantFiles(ctx, r)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
			continue
		}
		files = append(files, r)
	}
	return files, nil
}

// Clear evicts every cached listing and collapses all folders.
func (t *TreeCache) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*folderEntry)
	t.expanded = make(map[string]bool)
}
