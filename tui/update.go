package tui

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/samaelod/netimp/engine"
	"github.com/samaelod/netimp/lua"
	"github.com/samaelod/netimp/types"
)

const refreshInterval = 250 * time.Millisecond

func openLogsInEditor(logContent string) tea.Cmd {
	// Create temp file first
	f, err := os.CreateTemp("", "netimp-logs-*.log")
	if err != nil {
		return func() tea.Msg { return errMsg{err} }
	}

	_, err = f.WriteString(logContent)
	if err != nil {
		f.Close()
		return func() tea.Msg { return errMsg{err} }
	}
	f.Close()
	tempPath := f.Name()

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "nano"
	}
	c := exec.Command(editor, tempPath)
	return tea.ExecProcess(c, func(err error) tea.Msg {
		// Clean up temp file after editor closes
		os.Remove(tempPath)
		return editorFinishedMsg{err}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case tickMsg:
		m.refresh()
		return m, tick()

	case logMsg:
		m.logContent = m.relay.Events().ReadAll()
		m.logViewport.SetContent(m.logContent)
		m.logViewport.GotoBottom()
		return m, waitForLog(m.relay.Events())

	case configMsg:
		// an update from outside the form, e.g. a profile reload on SIGHUP
		if !m.editing() {
			m.resetInputs()
		}
		m.refresh()
		return m, waitForConfig(m.configCh)

	case profileLoadedMsg:
		m.applyProfile(msg.path, msg.profile)
		return m, nil

	case profileSavedMsg:
		m.err = nil
		m.notice = "Profile saved to " + msg.path
		return m, nil

	case editorFinishedMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		m.notice = ""
		return m, nil
	}

	if m.screen == screenProfilePicker {
		return m.updatePicker(msg)
	}
	return m.updateControl(msg)
}

func (m Model) updateControl(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "q":
		return m, tea.Quit

	case "tab":
		return m, m.setFocus((m.focus + 1) % (focusLogs + 1))

	case "shift+tab":
		return m, m.setFocus((m.focus + focusLogs) % (focusLogs + 1))

	case "ctrl+o":
		m.picker.load()
		m.screen = screenProfilePicker
		return m, nil

	case "ctrl+r":
		if m.opts.ProfilePath == "" {
			m.err = fmt.Errorf("no profile loaded")
			return m, nil
		}
		return m, loadProfileCmd(m.opts.ProfilePath)

	case "ctrl+w":
		base := m.opts.ProfilePath
		if base == "" {
			base = m.opts.Session
		}
		return m, saveProfileCmd(m.opts.RecentDir, base, m.relay.Store().Get(), m.profileStatus)

	case "ctrl+y":
		if m.opts.Flags == nil {
			return m, nil
		}
		if err := clipboard.WriteAll(m.opts.Flags(m.relay.Store().Get())); err != nil {
			m.err = fmt.Errorf("copy to clipboard: %w", err)
			return m, nil
		}
		m.err = nil
		m.notice = "Command line copied to clipboard"
		return m, nil

	case "e":
		return m, openLogsInEditor(m.logContent)

	case "g":
		m.logViewport.GotoTop()
		return m, nil

	case "G":
		m.logViewport.GotoBottom()
		return m, nil
	}

	if m.focus == focusLogs {
		var cmd tea.Cmd
		m.logViewport, cmd = m.logViewport.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "enter":
		m.save()
		return m, nil
	case "esc":
		m.resetInputs()
		m.err = nil
		m.notice = ""
		return m, nil
	case "up":
		return m, m.setFocus((m.focus + focusLogs - 1) % focusLogs)
	case "down":
		return m, m.setFocus((m.focus + 1) % focusLogs)
	}

	// Digits only; anything else would fail to parse on save anyway.
	if key.Type == tea.KeyRunes && !allDigits(key.Runes) {
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && m.picker.list.FilterState() != list.Filtering {
		switch key.String() {
		case "esc":
			m.screen = screenControl
			return m, nil
		case "enter":
			if e, ok := m.picker.selected(); ok && !e.dir {
				m.screen = screenControl
				return m, loadProfileCmd(e.path)
			}
		}
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	return m, cmd
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.focus = i
	var cmd tea.Cmd
	for j := range m.inputs {
		if j == i {
			cmd = m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
	return cmd
}

// save applies the form to the Store. A rejected update leaves the relay
// running with its previous values.
func (m *Model) save() {
	u, err := m.formUpdate()
	if err != nil {
		m.err = err
		m.notice = ""
		return
	}
	if u.Empty() {
		m.notice = "Nothing to apply"
		return
	}
	if err := m.relay.Store().Set(u); err != nil {
		m.err = err
		m.notice = ""
		return
	}
	m.err = nil
	m.notice = "Settings applied"
	m.resetInputs()
}

// formUpdate parses the inputs. Empty inputs leave their parameter unchanged.
func (m *Model) formUpdate() (types.Update, error) {
	var u types.Update
	for i, in := range m.inputs {
		s := strings.TrimSpace(in.Value())
		if s == "" {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return types.Update{}, fmt.Errorf("%s: %q is not a whole number", fieldLabels[i], s)
		}
		setField(&u, field(i), v)
	}
	return u, nil
}

func (m *Model) applyProfile(path string, p lua.Profile) {
	if err := m.relay.Store().Set(p.Update()); err != nil {
		m.err = fmt.Errorf("profile %s: %w", filepath.Base(path), err)
		m.notice = ""
		return
	}
	if p.Status != "" {
		m.relay.Store().SetStatus(p.Status)
	}
	m.opts.ProfilePath = path
	m.profileStatus = p.Status
	m.relay.Events().Note("Profile loaded: " + path)
	m.resetInputs()
	m.refresh()
	m.err = nil
	m.notice = "Loaded profile " + filepath.Base(path)
}

func (m *Model) resize() {
	windowWidth := m.width - 4
	windowHeight := m.height - 4

	vpWidth := windowWidth - 5 // border, padding and scrollbar
	if vpWidth < 0 {
		vpWidth = 0
	}
	m.logViewport.Width = vpWidth
	m.logViewport.Height = logsContentHeight(windowHeight)

	m.picker.setSize(windowWidth/3-4, windowHeight-7)
}

// editing reports whether the user has changed any input since it was filled.
func (m *Model) editing() bool {
	for i, in := range m.inputs {
		if strings.TrimSpace(in.Value()) != strconv.Itoa(fieldValue(m.shown, field(i))) {
			return true
		}
	}
	return false
}

func allDigits(rs []rune) bool {
	for _, r := range rs {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func fieldValue(cfg types.ImpairmentConfig, f field) int {
	switch f {
	case fieldSenderDrop:
		return cfg.SenderDropPercent
	case fieldReceiverDrop:
		return cfg.ReceiverDropPercent
	case fieldDataDelay:
		return cfg.DataDelayMs
	default:
		return cfg.AckDelayMs
	}
}

func setField(u *types.Update, f field, v int) {
	switch f {
	case fieldSenderDrop:
		u.SenderDropPercent = &v
	case fieldReceiverDrop:
		u.ReceiverDropPercent = &v
	case fieldDataDelay:
		u.DataDelayMs = &v
	default:
		u.AckDelayMs = &v
	}
}

func loadProfileCmd(path string) tea.Cmd {
	return func() tea.Msg {
		p, err := lua.ReadProfile(path)
		if err != nil {
			return errMsg{err}
		}
		return profileLoadedMsg{path: path, profile: p}
	}
}

func saveProfileCmd(dir, base string, cfg types.ImpairmentConfig, status string) tea.Cmd {
	return func() tea.Msg {
		path, err := lua.SaveToRecent(dir, base, cfg, status)
		if err != nil {
			return errMsg{err}
		}
		return profileSavedMsg{path: path}
	}
}

type profileLoadedMsg struct {
	path    string
	profile lua.Profile
}

type profileSavedMsg struct{ path string }
type errMsg struct{ err error }
type editorFinishedMsg struct{ err error }
type tickMsg time.Time
type logMsg struct{}
type configMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForConfig(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return configMsg{}
	}
}

func waitForLog(logger *engine.Logger) tea.Cmd {
	ch := logger.Notify()
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return logMsg{}
	}
}
