// Package ui contains the bubbletea models for the picker: a login screen
// and the resource browser.
package ui

import (
	"kbpicker/internal/api"
	"kbpicker/internal/notify"
	"kbpicker/internal/orchestrator"
	"kbpicker/internal/persist"
	"kbpicker/internal/prefetch"
	"kbpicker/internal/store"
)

// Deps bundles the application services the UI talks to. Persist may be nil
// when local persistence is unavailable.
type Deps struct {
	API      *api.Client
	App      *store.App
	Orc      *orchestrator.Orchestrator
	Prefetch *prefetch.Scheduler
	Notifier *notify.Notifier
	Persist  *persist.Store
}

type errMsg error
