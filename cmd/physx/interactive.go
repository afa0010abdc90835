package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/physx-runtime/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type initModel struct {
	ctx     context.Context
	err     error
	rt      *runtime.Runtime
	status  runtime.Status
	elapsed time.Duration
	spinner spinner.Model
	done    bool
}

type initDoneMsg struct {
	err     error
	status  runtime.Status
	elapsed time.Duration
}

func newInitModel(ctx context.Context, rt *runtime.Runtime) *initModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = labelStyle
	return &initModel{ctx: ctx, rt: rt, spinner: s}
}

func (m *initModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.initialize)
}

func (m *initModel) initialize() tea.Msg {
	start := time.Now()
	err := m.rt.Initialize(m.ctx)
	return initDoneMsg{err: err, status: m.rt.Status(), elapsed: time.Since(start)}
}

func (m *initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.err == nil && !m.done {
				m.err = context.Canceled
			}
			return m, tea.Quit
		}
	case initDoneMsg:
		m.done = true
		m.err = msg.err
		m.status = msg.status
		m.elapsed = msg.elapsed
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *initModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("physx runtime"))
	b.WriteString("\n\n")

	switch {
	case !m.done && m.err == nil:
		fmt.Fprintf(&b, "%s loading physics module (mode %s)\n", m.spinner.View(), m.rt.Mode())
		b.WriteString(helpStyle.Render("q: cancel"))
	case m.err != nil:
		b.WriteString(errorStyle.Render("initialization failed: " + m.err.Error()))
	default:
		b.WriteString(resultStyle.Render(fmt.Sprintf("ready in %s", m.elapsed.Round(time.Millisecond))))
		b.WriteString("\n")
		row := func(k, v string) {
			fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-10s", k)), v)
		}
		row("mode", m.status.ResolvedMode)
		row("version", fmt.Sprintf("%#x", m.status.Version))
		row("cycle", m.status.Cycle)
		row("resources", strings.Join(m.status.Stages, " -> "))
	}
	b.WriteString("\n")
	return b.String()
}

func runInteractive(ctx context.Context, rt *runtime.Runtime) error {
	final, err := tea.NewProgram(newInitModel(ctx, rt)).Run()
	if err != nil {
		return err
	}
	return final.(*initModel).err
}
