package tui

import (
	"context"
	"errors"
	"strconv"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/samaelod/netimp/engine"
)

func New(relay *engine.Relay, opts Options) Model {
	m := Model{
		screen:      screenControl,
		relay:       relay,
		opts:        opts,
		picker:      newProfilePicker(""),
		logViewport: viewport.New(10, 10),
		configCh:    relay.Store().Watch(),

		profileStatus: opts.ProfileStatus,
	}

	for i := range m.inputs {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = inputCharLimit
		ti.Width = inputCharLimit + 1
		ti.TextStyle = styleValue
		m.inputs[i] = ti
	}
	m.resetInputs()
	m.inputs[0].Focus()

	m.logContent = relay.Events().ReadAll()
	m.logViewport.SetContent(m.logContent)
	m.refresh()

	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick(), waitForLog(m.relay.Events()), waitForConfig(m.configCh))
}

// Run shows the control panel until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// resetInputs shows the live configuration in the form.
func (m *Model) resetInputs() {
	cfg := m.relay.Store().Get()
	for i := range m.inputs {
		m.inputs[i].SetValue(strconv.Itoa(fieldValue(cfg, field(i))))
	}
	m.shown = cfg
}

// refresh snapshots relay state for the next render.
func (m *Model) refresh() {
	m.status = m.relay.Store().Status()
	if client, ok := m.relay.Client(); ok {
		m.client = client.String()
	} else {
		m.client = ""
	}
	m.counts = m.relay.Metrics().Counts()
	m.inFlight = m.relay.InFlight()
}
