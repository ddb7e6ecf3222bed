package model

import (
	"path"
	"strings"
	"time"
)

// Kind distinguishes files from directories in a drive listing.
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// IndexStatus is the server-reported indexing status of a resource.
// The empty value means the resource is not known to be in any knowledge base.
type IndexStatus string

const (
	StatusNone          IndexStatus = ""
	StatusAbsent        IndexStatus = "absent"
	StatusPending       IndexStatus = "pending"
	StatusIndexed       IndexStatus = "indexed"
	StatusPendingDelete IndexStatus = "pending_delete"
	StatusError         IndexStatus = "error"
)

// Transient reports whether the status still needs polling to settle.
func (s IndexStatus) Transient() bool {
	return s == StatusPending || s == StatusPendingDelete
}

// DisplayStatus is what the UI renders for a resource. It is computed by the
// resolver and never stored: "removed" in particular is a display-only
// sentinel, not a server status.
type DisplayStatus string

const (
	DisplayNone    DisplayStatus = ""
	DisplayIndexed DisplayStatus = "indexed"
	DisplayError   DisplayStatus = "error"
	DisplayRemoved DisplayStatus = "removed"
)

// Resource is a file or directory from the drive listing. Parent/child
// relationships are derived from the slash-delimited path, there is no parent
// pointer.
type Resource struct {
	ID     string      `json:"id"`
	Path   string      `json:"path"`
	Kind   Kind        `json:"kind"`
	Size   int64       `json:"size,omitempty"`
	Status IndexStatus `json:"status,omitempty"`
}

// Name returns the last path segment.
func (r Resource) Name() string {
	return path.Base(r.Path)
}

// IsDir reports whether the resource is a directory.
func (r Resource) IsDir() bool {
	return r.Kind == KindDirectory
}

// ParentPath returns the path of the containing folder, or "" for root-level
// resources.
func (r Resource) ParentPath() string {
	idx := strings.LastIndex(r.Path, "/")
	if idx < 0 {
		return ""
	}
	return r.Path[:idx]
}

// IsDirectChild reports whether childPath is exactly one segment below
// parentPath. Used for selection dedup, where only direct children are
// subsumed by a selected directory.
func IsDirectChild(parentPath, childPath string) bool {
	if !strings.HasPrefix(childPath, parentPath+"/") {
		return false
	}
	rest := childPath[len(parentPath)+1:]
	return rest != "" && !strings.Contains(rest, "/")
}

// IsDescendant reports whether childPath lives anywhere below parentPath.
func IsDescendant(parentPath, childPath string) bool {
	return strings.HasPrefix(childPath, parentPath+"/")
}

// TempKBPrefix marks client-generated knowledge base ids used before the
// create call returns. Temp ids are never pollable.
const TempKBPrefix = "tmp-kb-"

// IsTempKBID reports whether id is a client-generated optimistic id.
func IsTempKBID(id string) bool {
	return strings.HasPrefix(id, TempKBPrefix)
}

// KnowledgeBase is the server-side aggregate being built. At most one is
// active in the UI at a time.
type KnowledgeBase struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	IsEmpty   bool      `json:"is_empty"`
}

// SyncState is the tri-state machine attached to the active knowledge base.
// Synced means the sync call returned; individual files may still be indexing
// and are tracked per-resource by the poller.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncPending
	SyncSynced
)

func (s SyncState) String() string {
	switch s {
	case SyncPending:
		return "pending"
	case SyncSynced:
		return "synced"
	default:
		return "idle"
	}
}
