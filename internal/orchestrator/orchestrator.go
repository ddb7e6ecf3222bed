// Package orchestrator drives the knowledge base lifecycle: optimistic
// creation with reconciliation, resource deletion, and full reset. It is the
// only layer that decides user-visible success or failure messaging.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"kbpicker/internal/logger"
	"kbpicker/internal/model"
	"kbpicker/internal/notify"
	"kbpicker/internal/poller"
	"kbpicker/internal/store"
)

// API is the slice of the backend client the orchestrator needs.
type API interface {
	CreateKnowledgeBase(ctx context.Context, name, description string, resourceIDs []string) (*model.KnowledgeBase, error)
	SyncKnowledgeBase(ctx context.Context, kbID string) error
	DeleteKBResource(ctx context.Context, kbID, resourcePath string) error
}

// Snapshotter persists the client-side state across restarts.
type Snapshotter interface {
	Save(kb model.KnowledgeBase, statuses []store.StatusEntry, registry []store.RegistryEntry) error
	Clear() error
}

// ErrNoActiveKB is returned when a mutation needs an active knowledge base
// and none exists.
var ErrNoActiveKB = errors.New("no active knowledge base")

// Orchestrator owns the knowledge base identity and the sync state; every
// other store keeps its single writer as before.
type Orchestrator struct {
	api          API
	app          *store.App
	poller       *poller.Poller
	notifier     *notify.Notifier
	snapshots    Snapshotter // optional
	drainSpacing time.Duration

	mu        sync.Mutex
	syncState model.SyncState
	syncKBID  string
	active    *model.KnowledgeBase
	previous  *model.KnowledgeBase
}

// New creates an Orchestrator. snapshots may be nil when persistence is off.
func New(api API, app *store.App, p *poller.Poller, n *notify.Notifier, snapshots Snapshotter, drainSpacing time.Duration) *Orchestrator {
	return &Orchestrator{
		api:          api,
		app:          app,
		poller:       p,
		notifier:     n,
		snapshots:    snapshots,
		drainSpacing: drainSpacing,
	}
}

// SyncState returns the current sync state and the knowledge base id it is
// bound to.
func (o *Orchestrator) SyncState() (model.SyncState, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.syncState, o.syncKBID
}

// ActiveKB returns a copy of the active knowledge base, or nil.
func (o *Orchestrator) ActiveKB() *model.KnowledgeBase {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return nil
	}
	kb := *o.active
	return &kb
}

// Restore installs a previously persisted knowledge base as active with a
// synced state, and resumes root polling. Used at startup.
func (o *Orchestrator) Restore(kb model.KnowledgeBase) {
	o.mu.Lock()
	o.active = &kb
	o.syncState = model.SyncSynced
	o.syncKBID = kb.ID
	o.mu.Unlock()

	o.poller.Start(kb.ID, "")
}

// DedupSelection drops files that are direct children of a selected
// directory: the directory's selection subsumes them. Files nested deeper
// stay, because the backend indexes folders non-recursively and needs every
// directory id explicit. Runs only when more than one id is selected.
func DedupSelection(selectedIDs []string, all []model.Resource) []string {
	if len(selectedIDs) <= 1 {
		return selectedIDs
	}

	byID := make(map[string]model.Resource, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}

	var dirPaths []string
	for _, id := range selectedIDs {
		if r, ok := byID[id]; ok && r.IsDir() {
			dirPaths = append(dirPaths, r.Path)
		}
	}

	out := make([]string, 0, len(selectedIDs))
	for _, id := range selectedIDs {
		r, ok := byID[id]
		if !ok {
			out = append(out, id)
			continue
		}
		subsumed := false
		if !r.IsDir() {
			for _, dp := range dirPaths {
				if model.IsDirectChild(dp, r.Path) {
					subsumed = true
					break
				}
			}
		}
		if !subsumed {
			out = append(out, id)
		}
	}
	return out
}

// CreateKB builds a knowledge base from the selection: the UI unblocks on an
// optimistic record bound to a temporary id, every selected file (and every
// descendant file of a selected directory) is pre-seeded as indexed, and the
// real create and sync calls run afterwards. On success all state keyed by
// the temporary id migrates to the real id; on failure every optimistic
// mutation is reverted.
func (o *Orchestrator) CreateKB(ctx context.Context, name string, selectedIDs []string, all []model.Resource) (*model.KnowledgeBase, error) {
	ids := DedupSelection(selectedIDs, all)
	if len(ids) == 0 {
		return nil, errors.New("empty selection")
	}

	tempID := model.TempKBPrefix + uuid.NewString()

	o.mu.Lock()
	o.previous = o.active
	o.active = &model.KnowledgeBase{ID: tempID, Name: name, CreatedAt: time.Now()}
	o.syncState = model.SyncPending
	o.syncKBID = tempID
	o.mu.Unlock()

	o.seedOptimistic(ctx, tempID, ids, all)

	kb, err := o.api.CreateKnowledgeBase(ctx, name, "", ids)
	if err == nil {
		err = o.api.SyncKnowledgeBase(ctx, kb.ID)
	}
	if err != nil {
		o.rollbackCreate(tempID)
		o.notifier.Notify("create-kb:"+tempID, notify.LevelError,
			fmt.Sprintf("knowledge base creation failed: %v", err))
		return nil, err
	}

	// The synced transition and the drain trigger share the critical section
	// with DeleteResources' enqueue path: any request enqueued while the state
	// still read pending is in the queue before maybeDrain runs.
	o.mu.Lock()
	o.app.Status.Migrate(tempID, kb.ID)
	o.app.Queue.Rekey(tempID, kb.ID)
	o.active = kb
	o.previous = nil
	o.syncState = model.SyncSynced
	o.syncKBID = kb.ID
	o.maybeDrain(kb.ID)
	o.mu.Unlock()

	o.saveSnapshot()
	o.poller.Start(kb.ID, "")
	return kb, nil
}

// seedOptimistic marks the selection as indexed before any server work
// happens: root-level selections in the root scope, everything else in the
// folder scope of its parent path. Selected directories contribute their full
// descendant file set; a listing failure there only costs optimism, not the
// create.
func (o *Orchestrator) seedOptimistic(ctx context.Context, kbID string, ids []string, all []model.Resource) {
	byID := make(map[string]model.Resource, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}

	var rootIDs []string
	byFolder := make(map[string][]string)

	add := func(r model.Resource) {
		if r.ParentPath() == "" {
			rootIDs = append(rootIDs, r.ID)
			return
		}
		byFolder[r.ParentPath()] = append(byFolder[r.ParentPath()], r.ID)
	}

	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			continue
		}
		add(r)
		if !r.IsDir() {
			continue
		}
		files, err := o.app.Tree.DescendantFiles(ctx, r)
		if err != nil {
			logger.Warnf("optimistic seed: cannot list %s: %v", r.Path, err)
			continue
		}
		for _, f := range files {
			add(f)
		}
	}

	if len(rootIDs) > 0 {
		o.app.Status.SeedRoot(kbID, rootIDs, model.StatusIndexed)
	}
	for folder, fids := range byFolder {
		o.app.Status.SeedFolder(kbID, folder, fids, model.StatusIndexed)
	}
}

// rollbackCreate reverts everything the optimistic phase touched: sync state,
// active knowledge base, and all cache and queue entries keyed by the
// temporary id.
func (o *Orchestrator) rollbackCreate(tempID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.app.Status.DropKB(tempID)
	o.app.Queue.PurgeKB(tempID)
	o.active = o.previous
	o.previous = nil
	o.syncState = model.SyncIdle
	o.syncKBID = ""
}

// maybeDrain starts the queue drain exactly once per pending to synced
// transition with a non-empty queue. Callers hold o.mu.
func (o *Orchestrator) maybeDrain(kbID string) {
	if o.app.Queue.Len() == 0 || o.app.Queue.Processing() {
		return
	}
	go o.app.Queue.Drain(context.Background(), kbID, o.drainSpacing, o.api.DeleteKBResource,
		func(req store.DeleteRequest, err error) {
			o.notifier.Notify("drain:"+req.ID, notify.LevelError,
				fmt.Sprintf("failed to delete %s: %v", req.ResourcePath, err))
		})
}

// DeleteResources removes the given file resources from the active knowledge
// base. Display updates are immediate (registry lock plus root cache strip);
// the API calls either queue behind a pending sync or run in parallel right
// away.
func (o *Orchestrator) DeleteResources(ctx context.Context, resourceIDs []string, all []model.Resource) error {
	byID := make(map[string]model.Resource, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}

	o.mu.Lock()
	if o.active == nil {
		o.mu.Unlock()
		logger.Warn("delete requested with no active knowledge base")
		return ErrNoActiveKB
	}
	kbID := o.active.ID
	pending := o.syncState == model.SyncPending

	var targets []model.Resource
	for _, id := range resourceIDs {
		r, ok := byID[id]
		if !ok {
			continue
		}
		o.app.Registry.MarkDeleted(r.ID, r.Name(), kbID)
		o.app.Status.RemoveRoot(kbID, r.ID)
		targets = append(targets, r)
	}
	if len(targets) == 0 {
		o.mu.Unlock()
		return nil
	}

	// The state check and the enqueues stay under o.mu: a request enqueued
	// against a pending state always lands before the synced transition, so
	// the drain that transition triggers will see it.
	if pending {
		for _, r := range targets {
			o.app.Queue.Enqueue(r.ID, r.Path, kbID)
		}
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	p := pool.New().WithErrors()
	for _, r := range targets {
		r := r
		p.Go(func() error {
			if err := o.api.DeleteKBResource(ctx, kbID, r.Path); err != nil {
				o.notifier.Notify("delete:"+r.ID, notify.LevelError,
					fmt.Sprintf("failed to delete %s: %v", r.Name(), err))
				return err
			}
			return nil
		})
	}
	err := p.Wait()

	// Registry marks and cache strips must survive a restart, so the snapshot
	// refreshes after every delete, not just on creation.
	o.saveSnapshot()
	return err
}

// Eligible reports whether a resource may be deleted: a file whose resolved
// display status is indexed, or a directory with at least one such cached
// descendant file.
func (o *Orchestrator) Eligible(r model.Resource) bool {
	o.mu.Lock()
	var kbID string
	if o.active != nil {
		kbID = o.active.ID
	}
	o.mu.Unlock()
	if kbID == "" {
		return false
	}

	if !r.IsDir() {
		return o.app.Resolve(kbID, r) == model.DisplayIndexed
	}
	for _, d := range o.app.Tree.CachedDescendants(r.Path) {
		if !d.IsDir() && o.app.Resolve(kbID, d) == model.DisplayIndexed {
			return true
		}
	}
	return false
}

// ExpandFolder toggles a folder in the tree cache and, when the active
// knowledge base is real, starts folder-scope polling so statuses inside the
// folder reconcile too.
func (o *Orchestrator) ExpandFolder(ctx context.Context, folder model.Resource) (bool, error) {
	expanded, err := o.app.Tree.Toggle(ctx, folder.ID)
	if !expanded {
		return false, err
	}

	o.mu.Lock()
	active := o.active
	o.mu.Unlock()
	if active != nil && !model.IsTempKBID(active.ID) {
		o.poller.Start(active.ID, folder.Path)
	}
	return true, err
}

// Reset discards the active knowledge base and every piece of client state:
// stores, queue, registry, pollers, notifications, and the persisted
// snapshot.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.active = nil
	o.previous = nil
	o.syncState = model.SyncIdle
	o.syncKBID = ""
	o.mu.Unlock()

	o.poller.StopAll()
	o.app.Reset()
	o.notifier.Reset()
	if o.snapshots != nil {
		if err := o.snapshots.Clear(); err != nil {
			logger.Warnf("clear snapshot: %v", err)
		}
	}
}

func (o *Orchestrator) saveSnapshot() {
	if o.snapshots == nil {
		return
	}
	kb := o.ActiveKB()
	if kb == nil || model.IsTempKBID(kb.ID) {
		return
	}
	if err := o.snapshots.Save(*kb, o.app.Status.Snapshot(), o.app.Registry.Entries()); err != nil {
		logger.Warnf("save snapshot: %v", err)
	}
}
