package tui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/samaelod/netimp/lua"
)

const profileExt = ".lua"

// profilePicker browses one directory at a time, listing subdirectories
// and Lua profiles only, and previews the selected profile.
type profilePicker struct {
	list    list.Model
	dir     string
	err     error
	preview string
	shown   string // path the preview was built for
	valid   bool   // shown parsed as a profile
}

type entry struct {
	name string
	path string
	dir  bool
}

func (e entry) FilterValue() string { return e.name }

type entryDelegate struct{}

func (entryDelegate) Height() int                         { return 1 }
func (entryDelegate) Spacing() int                        { return 0 }
func (entryDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }
func (entryDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	e, ok := item.(entry)
	if !ok {
		return
	}

	name := e.name
	style := lipgloss.NewStyle().Foreground(colorPrimary)
	if e.dir {
		name += "/"
		style = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	}

	if index == m.Index() {
		fmt.Fprint(w, styleSelected.Render("> "+name))
		return
	}
	fmt.Fprint(w, style.Render("  "+name))
}

// newProfilePicker opens dir, or the working directory when dir is empty.
func newProfilePicker(dir string) profilePicker {
	if dir == "" {
		dir, _ = os.Getwd()
	}

	l := list.New(nil, entryDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	// esc and q belong to the control panel
	l.KeyMap.Quit.SetEnabled(false)

	p := profilePicker{list: l, dir: dir}
	p.load()
	return p
}

// load lists p.dir: parent link, directories, then profiles, hidden
// entries skipped.
func (p *profilePicker) load() {
	entries, err := os.ReadDir(p.dir)
	p.err = err

	var dirs, profiles []list.Item
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		it := entry{name: name, path: filepath.Join(p.dir, name), dir: e.IsDir()}
		switch {
		case it.dir:
			dirs = append(dirs, it)
		case strings.EqualFold(filepath.Ext(name), profileExt):
			profiles = append(profiles, it)
		}
	}
	byName := func(items []list.Item) {
		sort.Slice(items, func(i, j int) bool { return items[i].(entry).name < items[j].(entry).name })
	}
	byName(dirs)
	byName(profiles)

	var items []list.Item
	if parent := filepath.Dir(p.dir); parent != p.dir {
		items = append(items, entry{name: "..", path: parent, dir: true})
	}
	items = append(items, dirs...)
	items = append(items, profiles...)

	p.list.SetItems(items)
	p.list.ResetSelected()
	p.shown = ""
	p.refreshPreview()
}

func (p *profilePicker) selected() (entry, bool) {
	e, ok := p.list.SelectedItem().(entry)
	return e, ok
}

func (p *profilePicker) hasProfiles() bool {
	for _, it := range p.list.Items() {
		if !it.(entry).dir {
			return true
		}
	}
	return false
}

func (p *profilePicker) refreshPreview() {
	e, ok := p.selected()
	switch {
	case p.err != nil:
		p.preview, p.valid = "Cannot read "+p.dir+": "+p.err.Error(), false
		return
	case !ok:
		p.preview, p.valid = "No profiles here.", false
		return
	case e.dir:
		p.preview, p.valid, p.shown = "", false, ""
		return
	case e.path == p.shown:
		return
	}

	p.shown = e.path
	src, err := os.ReadFile(e.path)
	if err != nil {
		p.preview, p.valid = err.Error(), false
		return
	}

	var sb strings.Builder
	prof, err := lua.ReadProfile(e.path)
	p.valid = err == nil
	if err != nil {
		fmt.Fprintf(&sb, "Invalid profile: %v\n", err)
	} else {
		sb.WriteString(describeProfile(prof))
	}
	sb.WriteString("\n")
	sb.Write(src)
	p.preview = sb.String()
}

func describeProfile(p lua.Profile) string {
	show := func(v *int, unit string) string {
		if v == nil {
			return "unchanged"
		}
		return fmt.Sprintf("%d%s", *v, unit)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Sender drop:   %s\n", show(p.SenderDrop, "%"))
	fmt.Fprintf(&sb, "Receiver drop: %s\n", show(p.ReceiverDrop, "%"))
	fmt.Fprintf(&sb, "Data delay:    %s\n", show(p.DataDelay, " ms"))
	fmt.Fprintf(&sb, "Ack delay:     %s\n", show(p.AckDelay, " ms"))
	if p.Status != "" {
		fmt.Fprintf(&sb, "Status:        %s\n", p.Status)
	}
	return sb.String()
}

// Update moves the cursor and changes directory. Choosing a profile is
// left to the caller.
func (p profilePicker) Update(msg tea.Msg) (profilePicker, tea.Cmd) {
	var cmd tea.Cmd
	p.list, cmd = p.list.Update(msg)

	if key, ok := msg.(tea.KeyMsg); ok && p.list.FilterState() != list.Filtering {
		switch key.String() {
		case "enter":
			if e, ok := p.selected(); ok && e.dir {
				p.dir = e.path
				p.load()
			}
		case "backspace", "left":
			if parent := filepath.Dir(p.dir); parent != p.dir {
				p.dir = parent
				p.load()
			}
		}
	}

	p.refreshPreview()
	return p, cmd
}

func (p *profilePicker) setSize(width, height int) {
	p.list.SetSize(width, height)
}

func (p profilePicker) View() string {
	return p.list.View()
}
