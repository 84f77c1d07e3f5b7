package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cryguy/webbridge"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	callStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0C674"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	maxLines     = 200
	queryTimeout = 10 * time.Second
)

type lineKind int

const (
	lineInput lineKind = iota
	lineResult
	lineError
	lineCall
)

type line struct {
	kind lineKind
	text string
}

type queryMsg struct {
	result string
	err    error
}

type callMsg struct {
	method, detail string
}

// console is a line-oriented REPL over WebView.Query that also shows
// binding calls as they arrive.
type console struct {
	w       *webbridge.WebView
	program *tea.Program
}

func newConsole(w *webbridge.WebView) *console {
	c := &console{w: w}
	c.program = tea.NewProgram(newConsoleModel(w))
	return c
}

// event is safe from any goroutine.
func (c *console) event(method, detail string) {
	c.program.Send(callMsg{method: method, detail: detail})
}

func (c *console) run() error {
	_, err := c.program.Run()
	return err
}

type consoleModel struct {
	w       *webbridge.WebView
	input   textinput.Model
	lines   []line
	history []string
	histIdx int
	busy    bool
	height  int
}

func newConsoleModel(w *webbridge.WebView) *consoleModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "JavaScript expression"
	ti.Width = 72
	ti.Focus()
	return &consoleModel{w: w, input: ti, height: 24}
}

func (m *consoleModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = msg.Width - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "up":
			if m.histIdx > 0 {
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.histIdx < len(m.history)-1 {
				m.histIdx++
				m.input.SetValue(m.history[m.histIdx])
			} else {
				m.histIdx = len(m.history)
				m.input.SetValue("")
			}
			return m, nil

		case "enter":
			src := strings.TrimSpace(m.input.Value())
			if src == "" || m.busy {
				return m, nil
			}
			switch src {
			case ".exit":
				return m, tea.Quit
			case ".bindings":
				m.input.SetValue("")
				m.add(lineInput, src)
				m.add(lineResult, strings.Join(m.w.Bindings(), " "))
				return m, nil
			}
			m.history = append(m.history, src)
			m.histIdx = len(m.history)
			m.input.SetValue("")
			m.add(lineInput, src)
			m.busy = true
			return m, m.query(src)
		}

	case queryMsg:
		m.busy = false
		if msg.err != nil {
			m.add(lineError, msg.err.Error())
		} else {
			m.add(lineResult, msg.result)
		}
		return m, nil

	case callMsg:
		m.add(lineCall, fmt.Sprintf("%s %s", msg.method, msg.detail))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) query(src string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		v, err := m.w.Query(ctx, src)
		return queryMsg{result: v, err: err}
	}
}

func (m *consoleModel) add(kind lineKind, text string) {
	m.lines = append(m.lines, line{kind: kind, text: text})
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func (m *consoleModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("webbridge"))
	b.WriteString(" ")
	b.WriteString(m.w.ID())
	if t := m.w.DocumentTitle(); t != "" {
		b.WriteString(" ")
		b.WriteString(inputStyle.Render(t))
	}
	b.WriteString("\n\n")

	visible := m.lines
	if room := m.height - 6; room > 0 && len(visible) > room {
		visible = visible[len(visible)-room:]
	}
	for _, l := range visible {
		switch l.kind {
		case lineInput:
			b.WriteString(inputStyle.Render("> " + l.text))
		case lineResult:
			b.WriteString(resultStyle.Render(l.text))
		case lineError:
			b.WriteString(errorStyle.Render(l.text))
		case lineCall:
			b.WriteString(callStyle.Render("<- " + l.text))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	status := "enter evaluate • .bindings list • ↑/↓ history • ctrl+c quit"
	if m.busy {
		status = "evaluating…"
	}
	b.WriteString(helpStyle.Render(status))
	return b.String()
}
