// Package tui implements the terminal client on top of the sync engine.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/specterchat/specter/internal/engine"
)

// Options configure the chat UI.
type Options struct {
	Engine   *engine.Engine
	Codename string
}

// Run starts the chat UI and blocks until the user quits.
func Run(opts Options) error {
	model := NewModel(opts)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}

type mode int

const (
	modeCodename mode = iota
	modeChat
)

// Model implements the chat UI.
type Model struct {
	engine   *engine.Engine
	mode     mode
	input    textarea.Model
	viewport viewport.Model
	snapshot engine.Snapshot
	codename string
	status   string
	width    int
	height   int
	ready    bool
}

// NewModel builds the initial UI model.
func NewModel(opts Options) *Model {
	input := textarea.New()
	input.Placeholder = "codename"
	input.CharLimit = 512
	input.SetHeight(1)
	input.ShowLineNumbers = false
	input.Focus()
	if opts.Codename != "" {
		input.SetValue(opts.Codename)
	}

	return &Model{
		engine:   opts.Engine,
		mode:     modeCodename,
		input:    input,
		viewport: viewport.New(0, 0),
		codename: opts.Codename,
	}
}

type refreshMsg struct{}

type joinResultMsg struct{ err error }

type sendResultMsg struct{ err error }

type selectResultMsg struct{ err error }

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		<-m.engine.Updates()
		return refreshMsg{}
	}
}

func (m *Model) joinCmd(codename string) tea.Cmd {
	return func() tea.Msg {
		return joinResultMsg{err: m.engine.JoinWithCodename(context.Background(), codename)}
	}
}

func (m *Model) sendCmd(content string) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{err: m.engine.SendMessage(context.Background(), content)}
	}
}

func (m *Model) selectCmd(channelID string) tea.Cmd {
	return func() tea.Msg {
		return selectResultMsg{err: m.engine.SelectChannel(context.Background(), channelID)}
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.waitForUpdate()}
	if m.codename != "" {
		// A codename on the command line skips the prompt. If the join
		// fails the prompt stays up with the value prefilled.
		m.status = "joining..."
		cmds = append(cmds, m.joinCmd(m.codename))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case refreshMsg:
		m.refresh()
		return m, m.waitForUpdate()

	case joinResultMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.mode = modeChat
		m.status = ""
		m.input.Reset()
		m.input.Placeholder = "message"
		m.refresh()
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			// Keep the input so the user can retry the same text.
			m.status = msg.err.Error()
			return m, nil
		}
		m.input.Reset()
		return m, nil

	case selectResultMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		if m.mode == modeCodename {
			if value == "" {
				m.status = "codename cannot be empty"
				return m, nil
			}
			m.status = "joining..."
			return m, m.joinCmd(value)
		}
		if value == "" {
			return m, nil
		}
		m.status = ""
		return m, m.sendCmd(value)

	case tea.KeyTab:
		if m.mode == modeChat {
			return m, m.cycleChannel(1)
		}

	case tea.KeyShiftTab:
		if m.mode == modeChat {
			return m, m.cycleChannel(-1)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// cycleChannel moves the selection forward or backward through the directory.
func (m *Model) cycleChannel(step int) tea.Cmd {
	channels := m.snapshot.Channels
	if len(channels) < 2 {
		return nil
	}
	current := 0
	for i, ch := range channels {
		if ch.ID == m.snapshot.SelectedID {
			current = i
			break
		}
	}
	next := (current + step + len(channels)) % len(channels)
	return m.selectCmd(channels[next].ID)
}

func (m *Model) refresh() {
	m.snapshot = m.engine.State()
	if err := m.engine.Err(); err != nil {
		m.status = err.Error()
	}
	if m.mode == modeChat {
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
	}
}

func (m *Model) resize() {
	sidebar := sidebarWidth
	if m.width < 60 {
		sidebar = 0
	}
	m.viewport.Width = m.width - sidebar - 2
	m.viewport.Height = m.height - 5
	m.input.SetWidth(m.width - 4)
	if m.mode == modeChat {
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
	}
}
