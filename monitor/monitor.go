// monitor.go - an interactive terminal debugger over a machine.Machine,
// modelled directly on _examples/hejops-gone/cpu/debugger.go's
// model/Init/Update/View shape (bubbletea + lipgloss), widened from a
// single-step 6502 monitor to this module's breakpoint/watchpoint/timer
// tools and event log.

package monitor

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"github.com/m68kcore/machine/machine"
)

var (
	paneStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
	pcStyle   = lipgloss.NewStyle().Reverse(true)
)

// Model is the bubbletea model wrapping a running Machine.
type Model struct {
	m         *machine.Machine
	cyclesRun uint32
	lastInfo  machine.RunInfo
	events    []machine.Event
	err       error
	quitting  bool
}

// New builds a Model over an already-constructed, already-reset Machine.
func New(m *machine.Machine) Model {
	return Model{m: m}
}

func (m Model) Init() tea.Cmd { return nil }

// Update handles the monitor's three keybindings: space/j steps one
// timeslice, b sets a breakpoint at the current PC in the lowest free slot
// (it never removes one), q quits.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q":
			m.quitting = true
			return m, tea.Quit

		case " ", "j":
			n, err := m.m.ExecuteToEvent(0)
			if err != nil {
				m.err = err
				return m, tea.Quit
			}
			info := m.m.CPU.RunInfo()
			m.lastInfo = info
			m.cyclesRun += info.DoneCycles
			if n > 0 {
				m.events = append(m.events, info.Events...)
			}

		case "b":
			pc := m.m.CPU.GetRegisters().PC
			if id := m.m.Tools.Breakpoints.NextFree(); id != -1 {
				m.m.Tools.Breakpoints.Setup(id, pc, machine.FCUserData|machine.FCUserProg|machine.FCSuperData|machine.FCSuperProg, nil)
			}
		}
	}
	return m, nil
}

func (m Model) registerPane() string {
	return paneStyle.Render(strings.TrimRight(m.m.CPU.RegistersString(), "\n"))
}

func (m Model) tracePane() string {
	trace := m.m.Tools.Trace.Snapshot()
	lines := make([]string, 0, len(trace))
	pc := m.m.CPU.GetRegisters().PC
	for _, addr := range trace {
		line := fmt.Sprintf("%08x", addr)
		if addr == pc {
			line = pcStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return paneStyle.Render("trace\n" + strings.Join(lines, "\n"))
}

func (m Model) eventLogPane() string {
	var b strings.Builder
	b.WriteString("events\n")
	start := 0
	if len(m.events) > 8 {
		start = len(m.events) - 8
	}
	for _, ev := range m.events[start:] {
		b.WriteString(spew.Sdump(ev))
	}
	return paneStyle.Render(b.String())
}

func (m Model) View() string {
	if m.quitting {
		if m.err != nil {
			return fmt.Sprintf("monitor stopped: %v\n", m.err)
		}
		return "monitor stopped\n"
	}
	top := lipgloss.JoinHorizontal(lipgloss.Top, m.registerPane(), m.tracePane())
	return lipgloss.JoinVertical(lipgloss.Left, top, m.eventLogPane())
}

// Run starts the interactive TUI and blocks until the user quits.
func Run(m *machine.Machine) error {
	_, err := tea.NewProgram(New(m)).Run()
	return err
}
