package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"kbpicker/cmd/picker/ui"
	"kbpicker/internal/api"
	"kbpicker/internal/config"
	"kbpicker/internal/logger"
	"kbpicker/internal/notify"
	"kbpicker/internal/orchestrator"
	"kbpicker/internal/persist"
	"kbpicker/internal/poller"
	"kbpicker/internal/prefetch"
	"kbpicker/internal/store"
)

func main() {
	cfg := config.Init()
	if err := logger.Init(cfg.LogPath); err != nil {
		fmt.Fprintf(os.Stderr, "cannot initialize logger: %v\n", err)
		os.Exit(1)
	}

	client := api.New(api.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.HTTPTimeout,
	})

	var snapshots *persist.Store
	if s, err := persist.Open(cfg.DBPath, cfg.SnapshotTTL); err != nil {
		logger.Warnf("cannot open local database, persistence disabled: %v", err)
	} else {
		snapshots = s
	}

	app := store.NewApp(client.ListResources, cfg.TreeTTL)
	notifier := notify.New()
	p := poller.New(client.ListKBResources, app.Status, notifier, poller.Options{
		Interval: cfg.PollInterval,
		Ceiling:  cfg.PollCeiling,
	})
	orc := orchestrator.New(client, app, p, notifier, snapshotter(snapshots), cfg.DrainSpacing)
	pf := prefetch.New(func(ctx context.Context, folderID string) error {
		_, err := app.Tree.ListFolder(ctx, folderID)
		return err
	}, 300*time.Millisecond)

	authenticated := restoreSession(client, snapshots)
	if authenticated {
		restoreSnapshot(orc, app, snapshots)
	}

	deps := ui.Deps{
		API:      client,
		App:      app,
		Orc:      orc,
		Prefetch: pf,
		Notifier: notifier,
		Persist:  snapshots,
	}

	prog := tea.NewProgram(ui.NewRootModel(deps, authenticated), tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		logger.Errorf("UI exited with error: %v", err)
		os.Exit(1)
	}

	pf.CancelAll()
	p.StopAll()
}

// snapshotter adapts a possibly-nil *persist.Store to the orchestrator's
// interface without handing it a typed nil.
func snapshotter(s *persist.Store) orchestrator.Snapshotter {
	if s == nil {
		return nil
	}
	return s
}

// restoreSession loads the persisted token and verifies it is still usable.
func restoreSession(client *api.Client, snapshots *persist.Store) bool {
	if snapshots == nil {
		return false
	}
	token, err := snapshots.LoadToken()
	if err != nil || token == "" {
		return false
	}
	if api.TokenExpired(token) {
		logger.Info("persisted session expired, login required")
		_ = snapshots.ClearToken()
		return false
	}
	client.SetToken(token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ok, err := client.AuthStatus(ctx)
	if err != nil {
		logger.Warnf("auth status check failed: %v", err)
		return false
	}
	if !ok {
		_ = snapshots.ClearToken()
	}
	return ok
}

// restoreSnapshot reinstalls the persisted knowledge base and cache state.
func restoreSnapshot(orc *orchestrator.Orchestrator, app *store.App, snapshots *persist.Store) {
	if snapshots == nil {
		return
	}
	snap, err := snapshots.Load()
	if err != nil {
		logger.Warnf("load snapshot: %v", err)
		return
	}
	if snap == nil {
		return
	}
	app.Status.Restore(snap.Statuses)
	for _, e := range snap.Registry {
		app.Registry.MarkDeleted(e.ResourceID, e.ResourceName, e.KBID)
	}
	orc.Restore(snap.KB)
	logger.Infof("restored knowledge base %s from snapshot", snap.KB.Name)
}
