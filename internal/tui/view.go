package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/specterchat/specter/internal/domain"
)

const sidebarWidth = 22

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	sidebarStyle  = lipgloss.NewStyle().Width(sidebarWidth).Foreground(lipgloss.Color("245"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	authorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	timeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	rosterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	staleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}
	if m.mode == modeCodename {
		return m.viewCodename()
	}
	return m.viewChat()
}

func (m *Model) viewCodename() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("specter"))
	b.WriteString("\n\nenter your codename:\n\n")
	b.WriteString(m.input.View())
	if m.status != "" {
		b.WriteString("\n\n" + statusStyle.Render(m.status))
	}
	return b.String()
}

func (m *Model) viewChat() string {
	header := headerStyle.Render("specter") + "  " + m.snapshot.Codename
	if m.snapshot.Stale {
		header += "  " + staleStyle.Render("[stale]")
	}

	body := m.viewport.View()
	if m.width >= 60 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), " ", body)
	}

	footer := m.status
	if footer == "" {
		footer = "encrypted · purged after 24h"
	}
	style := timeStyle
	if m.status != "" {
		style = statusStyle
	}

	lines := []string{header, body, m.renderRoster(), m.input.View(), style.Render(footer)}
	return strings.Join(lines, "\n")
}

func (m *Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString("channels\n")
	for _, ch := range m.snapshot.Channels {
		line := "  " + ch.Name
		if ch.ID == m.snapshot.SelectedID {
			line = selectedStyle.Render("> " + ch.Name)
		}
		b.WriteString(line + "\n")
	}
	return sidebarStyle.Render(b.String())
}

func (m *Model) renderMessages() string {
	if len(m.snapshot.Messages) == 0 {
		return timeStyle.Render("no messages yet")
	}
	lines := lo.Map(m.snapshot.Messages, func(msg domain.Message, _ int) string {
		stamp := timeStyle.Render(msg.CreatedAt.Format("15:04"))
		return fmt.Sprintf("%s %s %s", stamp, authorStyle.Render(msg.Author+":"), msg.Content)
	})
	return strings.Join(lines, "\n")
}

func (m *Model) renderRoster() string {
	names := lo.Map(m.snapshot.Roster, func(s domain.Session, _ int) string {
		return s.Codename
	})
	if len(names) == 0 {
		return rosterStyle.Render("online: nobody")
	}
	return rosterStyle.Render("online: " + strings.Join(names, ", "))
}
