package store

import (
	"kbpicker/internal/model"
)

// Resolve computes the single displayed status for a resource from the four
// state sources, in fixed precedence:
//
//  1. delete registry entry     -> removed (even for directories)
//  2. root status cache hit     -> server status, pending shown as indexed;
//     consulted for top-level resources only
//  3. folder status cache hit   -> same mapping, keyed by the parent folder
//  4. otherwise                 -> none
//
// Resolve is pure: all mutation happens in the stores it reads. It runs per
// resource on every flatten pass, so every lookup is a map access.
func Resolve(registry *DeleteRegistry, statuses *StatusCache, kbID string, r model.Resource) model.DisplayStatus {
	if registry.Removed(r.ID) {
		return model.DisplayRemoved
	}
	if kbID == "" {
		return model.DisplayNone
	}
	if r.ParentPath() == "" {
		if st, ok := statuses.RootStatus(kbID, r.ID); ok {
			return DisplayFor(st)
		}
	}
	if st, ok := statuses.FolderStatus(kbID, r.ParentPath(), r.ID); ok {
		return DisplayFor(st)
	}
	return model.DisplayNone
}

// DisplayFor maps a cached server status to its displayed form. Pending is
// always shown as indexed until it settles; the mapping is presentation only
// and never written back to the cache.
func DisplayFor(st model.IndexStatus) model.DisplayStatus {
	switch st {
	case model.StatusPending, model.StatusIndexed:
		return model.DisplayIndexed
	case model.StatusPendingDelete:
		return model.DisplayRemoved
	case model.StatusError:
		return model.DisplayError
	default:
		return model.DisplayNone
	}
}
