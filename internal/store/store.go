// Package store holds the four client-side state stores: the resource tree
// cache, the resource status caches, the optimistic delete registry, and the
// delete queue. Each store has exactly one writing component; everything else
// reads displayed status through Resolve.
package store

import (
	"time"

	"kbpicker/internal/model"
)

// App is the application state object, constructed once at startup and torn
// down on full reset.
type App struct {
	Tree     *TreeCache
	Status   *StatusCache
	Registry *DeleteRegistry
	Queue    *DeleteQueue
}

// NewApp builds the state stores around the given drive lister.
func NewApp(list ListFunc, treeTTL time.Duration) *App {
	return &App{
		Tree:     NewTreeCache(list, treeTTL),
		Status:   NewStatusCache(),
		Registry: NewDeleteRegistry(),
		Queue:    NewDeleteQueue(),
	}
}

// Resolve returns the displayed status of a resource for the active knowledge
// base.
func (a *App) Resolve(kbID string, r model.Resource) model.DisplayStatus {
	return Resolve(a.Registry, a.Status, kbID, r)
}

// Reset empties every store. Hard boundary: there is no partial-reset path.
func (a *App) Reset() {
	a.Tree.Clear()
	a.Status.Clear()
	a.Registry.Clear()
	a.Queue.Clear()
}
