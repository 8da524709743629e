// Package tui is the interactive watcher: it polls one game window and
// renders its lines live, with keys to pause, switch windows, and force
// a rescan.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zenchess/mudscan/internal/output"
	"github.com/zenchess/mudscan/pkg/scanner"
)

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

type tickMsg time.Time

type linesMsg []string

type versionMsg string

type tuiModel struct {
	scanner  *scanner.Scanner
	windows  []string
	current  int
	lines    []string
	maxLines int
	interval time.Duration
	viewport viewport.Model
	ready    bool
	paused   bool
	raw      bool
	version  string
	message  string
	msgTime  time.Time
	err      error
	width    int
	height   int
}

func initialModel(s *scanner.Scanner, window string, maxLines int, interval time.Duration) tuiModel {
	windows := s.Windows()
	current := 0
	for i, w := range windows {
		if w == window {
			current = i
			break
		}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return tuiModel{
		scanner:  s,
		windows:  windows,
		current:  current,
		maxLines: maxLines,
		interval: interval,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.refresh(), m.fetchVersion())
}

func (m tuiModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) refresh() tea.Cmd {
	if m.paused {
		return nil
	}
	name := m.windows[m.current]
	n := m.maxLines
	raw := m.raw
	s := m.scanner
	return func() tea.Msg {
		lines, err := s.ReadWindow(name, n, raw)
		if err != nil {
			return err
		}
		return linesMsg(lines)
	}
}

func (m tuiModel) fetchVersion() tea.Cmd {
	s := m.scanner
	return func() tea.Msg {
		v, err := s.Version()
		if err != nil {
			return versionMsg("")
		}
		return versionMsg(v)
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
			return m, m.refresh()
		case "r":
			m.raw = !m.raw
			return m, m.refresh()
		case "tab", "n":
			m.current = (m.current + 1) % len(m.windows)
			m.lines = nil
			return m, m.refresh()
		case "shift+tab":
			m.current = (m.current + len(m.windows) - 1) % len(m.windows)
			m.lines = nil
			return m, m.refresh()
		case "s":
			s := m.scanner
			m.message = "rescanning..."
			m.msgTime = time.Now()
			return m, func() tea.Msg {
				if err := s.Rescan(); err != nil {
					return err
				}
				return tickMsg(time.Now())
			}
		case "1", "2", "3", "4":
			idx := int(msg.String()[0] - '1')
			if idx < len(m.windows) {
				m.current = idx
				m.lines = nil
				return m, m.refresh()
			}
			return m, nil
		}
	case tickMsg:
		return m, tea.Batch(m.tick(), m.refresh())
	case linesMsg:
		m.err = nil
		m.lines = msg
		m.updateContent()
	case versionMsg:
		m.version = string(msg)
	case error:
		m.err = msg
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vh := m.height - 7
		if vh < 3 {
			vh = 3
		}
		if !m.ready {
			m.viewport = viewport.New(m.width-2, vh)
			m.ready = true
		} else {
			m.viewport.Width = m.width - 2
			m.viewport.Height = vh
		}
		m.updateContent()
	}

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m *tuiModel) updateContent() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	safe := make([]string, len(m.lines))
	for i, line := range m.lines {
		safe[i] = output.Sanitize(line)
	}
	m.viewport.SetContent(strings.Join(safe, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if !m.ready {
		return "\n  starting..."
	}

	var b strings.Builder

	title := "mudscan"
	if m.version != "" {
		title += " " + m.version
	}
	title += fmt.Sprintf("  pid %d", m.scanner.PID())
	if m.paused {
		title += " (PAUSED)"
	}
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("57")).Bold(true).Render(title) + "\n\n")

	for i, w := range m.windows {
		style := lipgloss.NewStyle().Padding(0, 1)
		if i == m.current {
			style = style.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).Bold(true)
		} else {
			style = style.Foreground(lipgloss.Color("240"))
		}
		b.WriteString(style.Render(fmt.Sprintf("[%d] %s", i+1, w)))
		b.WriteString(" ")
	}
	if m.raw {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("  raw markup"))
	}
	b.WriteString("\n")

	b.WriteString(baseStyle.Render(m.viewport.View()) + "\n")

	if m.err != nil {
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("160")).
			Padding(0, 1).
			Render(" "+output.Sanitize(m.err.Error())+" ") + "\n")
	} else if m.message != "" && time.Since(m.msgTime) < 3*time.Second {
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Padding(0, 1).
			Render(" "+m.message+" ") + "\n")
	}

	help := "\n  q: quit • tab/1-4: window • p: pause • r: raw • s: rescan • ↑/↓: scroll"
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(help) + "\n")

	return b.String()
}

// Run starts the watcher over an already connected scanner and blocks
// until the user quits.
func Run(s *scanner.Scanner, window string, maxLines int, interval time.Duration) error {
	p := tea.NewProgram(initialModel(s, window, maxLines, interval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
