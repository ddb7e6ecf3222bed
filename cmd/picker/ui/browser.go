package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"kbpicker/internal/model"
	"kbpicker/internal/notify"
	"kbpicker/internal/store"
)

// BrowserModel is the main screen: the drive tree with per-resource resolved
// status, selection, and knowledge base actions.
type BrowserModel struct {
	Deps  Deps
	Table table.Model

	nodes    []store.Node
	selected map[string]bool
	lastMsg  string
	lastErr  bool
	loading  bool
	Err      error
}

type rootLoadedMsg struct{ err error }
type folderToggledMsg struct{ err error }
type kbCreatedMsg struct {
	kb  *model.KnowledgeBase
	err error
}
type deletedMsg struct{ err error }
type refreshTickMsg time.Time

func NewBrowserModel(deps Deps, width, height int) BrowserModel {
	columns := []table.Column{
		{Title: "Name", Width: 44},
		{Title: "Kind", Width: 10},
		{Title: "Size", Width: 10},
		{Title: "Status", Width: 10},
		{Title: "Sel", Width: 4},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(height-8),
	)

	sStyle := table.DefaultStyles()
	sStyle.Header = sStyle.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	sStyle.Selected = sStyle.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(sStyle)

	return BrowserModel{
		Deps:     deps,
		Table:    t,
		selected: make(map[string]bool),
		loading:  true,
	}
}

func (m BrowserModel) Init() tea.Cmd {
	return tea.Batch(m.loadRootCmd, refreshTick())
}

// refreshTick re-renders the table periodically so poller writes show up
// without an explicit user action.
func refreshTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

func (m BrowserModel) loadRootCmd() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := m.Deps.App.Tree.ListRoot(ctx)
	return rootLoadedMsg{err: err}
}

func (m BrowserModel) Update(msg tea.Msg) (BrowserModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if node, ok := m.cursorNode(); ok && node.IsDir() {
				return m, m.toggleCmd(node.Resource)
			}
		case " ":
			if node, ok := m.cursorNode(); ok {
				if m.selected[node.ID] {
					delete(m.selected, node.ID)
				} else {
					m.selected[node.ID] = true
				}
				m.refreshRows()
			}
		case "c":
			if len(m.selected) > 0 {
				return m, m.createKBCmd()
			}
			m.lastMsg, m.lastErr = "nothing selected", true
		case "d":
			return m, m.deleteCmd()
		case "n":
			m.Deps.Orc.Reset()
			m.Deps.Prefetch.CancelAll()
			m.selected = make(map[string]bool)
			m.loading = true
			m.lastMsg, m.lastErr = "knowledge base discarded", false
			return m, m.loadRootCmd
		case "r":
			m.loading = true
			return m, m.loadRootCmd
		case "q":
			return m, tea.Quit
		}

	case rootLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.Err = msg.err
		} else {
			m.Err = nil
		}
		m.refreshRows()

	case folderToggledMsg:
		if msg.err != nil {
			// Expansion survives fetch failure; just surface the cause.
			m.lastMsg, m.lastErr = msg.err.Error(), true
		}
		m.refreshRows()

	case kbCreatedMsg:
		if msg.err != nil {
			m.lastMsg, m.lastErr = fmt.Sprintf("create failed: %v", msg.err), true
		} else {
			m.lastMsg, m.lastErr = fmt.Sprintf("knowledge base %s ready", msg.kb.Name), false
			m.selected = make(map[string]bool)
		}
		m.refreshRows()

	case deletedMsg:
		if msg.err != nil {
			m.lastMsg, m.lastErr = fmt.Sprintf("delete failed: %v", msg.err), true
		}
		m.selected = make(map[string]bool)
		m.refreshRows()

	case refreshTickMsg:
		m.drainNotifications()
		m.refreshRows()
		return m, refreshTick()
	}

	prevCursor := m.Table.Cursor()
	m.Table, cmd = m.Table.Update(msg)
	if m.Table.Cursor() != prevCursor {
		m.hoverPrefetch()
	}
	return m, cmd
}

func (m *BrowserModel) cursorNode() (store.Node, bool) {
	i := m.Table.Cursor()
	if i < 0 || i >= len(m.nodes) {
		return store.Node{}, false
	}
	return m.nodes[i], true
}

// hoverPrefetch warms the folder under the cursor if it is still collapsed.
func (m *BrowserModel) hoverPrefetch() {
	node, ok := m.cursorNode()
	if !ok || !node.IsDir() || m.Deps.App.Tree.IsExpanded(node.ID) {
		return
	}
	m.Deps.Prefetch.Schedule(node.ID)
}

func (m BrowserModel) toggleCmd(folder model.Resource) tea.Cmd {
	return func() tea.Msg {
		// A real fetch supersedes any speculative one for the same key.
		m.Deps.Prefetch.Cancel(folder.ID)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, err := m.Deps.Orc.ExpandFolder(ctx, folder)
		return folderToggledMsg{err: err}
	}
}

func (m BrowserModel) createKBCmd() tea.Cmd {
	ids := make([]string, 0, len(m.selected))
	for id := range m.selected {
		ids = append(ids, id)
	}
	all := m.allResources()
	name := "Knowledge Base " + time.Now().Format("2006-01-02 15:04")

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		kb, err := m.Deps.Orc.CreateKB(ctx, name, ids, all)
		return kbCreatedMsg{kb: kb, err: err}
	}
}

func (m BrowserModel) deleteCmd() tea.Cmd {
	all := m.allResources()
	byID := make(map[string]model.Resource, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}

	// Only files whose resolved status is indexed are deletable; a selected
	// directory contributes its eligible descendant files.
	var ids []string
	for id := range m.selected {
		r, ok := byID[id]
		if !ok || !m.Deps.Orc.Eligible(r) {
			continue
		}
		if !r.IsDir() {
			ids = append(ids, r.ID)
			continue
		}
		for _, d := range m.Deps.App.Tree.CachedDescendants(r.Path) {
			if !d.IsDir() && m.Deps.Orc.Eligible(d) {
				ids = append(ids, d.ID)
			}
		}
	}
	if len(ids) == 0 {
		return func() tea.Msg { return deletedMsg{err: fmt.Errorf("no indexed files selected")} }
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		err := m.Deps.Orc.DeleteResources(ctx, ids, all)
		return deletedMsg{err: err}
	}
}

func (m *BrowserModel) allResources() []model.Resource {
	nodes := m.Deps.App.Tree.Flatten()
	out := make([]model.Resource, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Resource)
	}
	return out
}

func (m *BrowserModel) drainNotifications() {
	for _, n := range m.Deps.Notifier.Drain() {
		m.lastMsg = n.Message
		m.lastErr = n.Level == notify.LevelError
	}
}

// refreshRows rebuilds the table rows from the flattened tree and the
// resolver. Display status is computed here and nowhere else.
func (m *BrowserModel) refreshRows() {
	var kbID string
	if kb := m.Deps.Orc.ActiveKB(); kb != nil {
		kbID = kb.ID
	}

	m.nodes = m.Deps.App.Tree.Flatten()
	rows := make([]table.Row, 0, len(m.nodes))
	for _, n := range m.nodes {
		indent := strings.Repeat("  ", n.Level)
		name := indent + n.Name()
		if n.IsDir() {
			marker := "▸ "
			if m.Deps.App.Tree.IsExpanded(n.ID) {
				marker = "▾ "
			}
			name = indent + marker + n.Name()
		}

		size := ""
		if !n.IsDir() {
			size = humanize.Bytes(uint64(n.Size))
		}

		status := "-"
		switch m.Deps.App.Resolve(kbID, n.Resource) {
		case model.DisplayIndexed:
			status = "indexed"
		case model.DisplayError:
			status = "error"
		}
		// Removed and none both render as a dash, directories included.

		sel := ""
		if m.selected[n.ID] {
			sel = "✓"
		}

		rows = append(rows, table.Row{name, string(n.Kind), size, status, sel})
	}
	m.Table.SetRows(rows)
}

func (m BrowserModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("KB Picker - Drive Resources") + "\n\n")

	if m.loading {
		b.WriteString(blurredStyle.Render("Loading resources...") + "\n")
	}
	b.WriteString(m.Table.View())
	b.WriteString("\n")
	b.WriteString(m.statusBar())
	b.WriteString("\n")
	b.WriteString(blurredStyle.Render("space: select  enter: open folder  c: create KB  d: delete  n: new KB  r: reload  q: quit"))

	if m.lastMsg != "" {
		b.WriteString("\n")
		if m.lastErr {
			b.WriteString(errorMessageStyle(m.lastMsg))
		} else {
			b.WriteString(infoMessageStyle(m.lastMsg))
		}
	}
	if m.Err != nil {
		b.WriteString("\n" + errorMessageStyle(m.Err.Error()))
	}
	return b.String()
}

func (m BrowserModel) statusBar() string {
	state, _ := m.Deps.Orc.SyncState()
	kbName := "none"
	if kb := m.Deps.Orc.ActiveKB(); kb != nil {
		kbName = kb.Name
	}
	return statusBarStyle.Render(fmt.Sprintf(
		"KB: %s | sync: %s | queued deletes: %d | selected: %d",
		kbName, state, m.Deps.App.Queue.Len(), len(m.selected),
	))
}
