package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

type state int

const (
	stateLogin state = iota
	stateBrowser
)

type RootModel struct {
	State    state
	Deps     Deps
	Login    LoginModel
	Browser  BrowserModel
	Quitting bool
	width    int
	height   int
}

// NewRootModel builds the top-level model. When the persisted session is
// still valid the login screen is skipped.
func NewRootModel(deps Deps, authenticated bool) RootModel {
	m := RootModel{
		State: stateLogin,
		Deps:  deps,
		Login: NewLoginModel(deps),
	}
	if authenticated {
		m.State = stateBrowser
		m.Browser = NewBrowserModel(deps, 100, 30)
	}
	return m
}

func (m RootModel) Init() tea.Cmd {
	if m.State == stateBrowser {
		return m.Browser.Init()
	}
	return m.Login.Init()
}

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.Browser.Table.SetHeight(msg.Height - 8)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.Quitting = true
			m.Deps.Prefetch.CancelAll()
			return m, tea.Quit
		}
	}

	switch m.State {
	case stateLogin:
		if _, ok := msg.(loginSuccessMsg); ok {
			m.State = stateBrowser
			m.Browser = NewBrowserModel(m.Deps, m.width, m.height)
			return m, m.Browser.Init()
		}
		if err, ok := msg.(errMsg); ok {
			m.Login.Err = err
		}
		newLogin, cmd := m.Login.Update(msg)
		m.Login = newLogin
		cmds = append(cmds, cmd)

	case stateBrowser:
		newBrowser, cmd := m.Browser.Update(msg)
		m.Browser = newBrowser
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m RootModel) View() string {
	if m.Quitting {
		return "Bye!\n"
	}
	switch m.State {
	case stateLogin:
		return m.Login.View()
	case stateBrowser:
		return m.Browser.View()
	}
	return "Unknown state"
}
