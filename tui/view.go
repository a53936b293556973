package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/samaelod/netimp/types"
)

// topHeight is the total height of the form and relay panels.
const topHeight = 12

func logsHeight(windowHeight int) int {
	// title, message line and footer sit outside the panels
	h := windowHeight - 1 - 1 - footerHeight - topHeight
	if h < 5 {
		h = 5
	}
	return h
}

func logsContentHeight(windowHeight int) int {
	return logsHeight(windowHeight) - 4 // -2 border, -1 title, -1 margin
}

func renderScrollbar(vp viewport.Model, height int) string {
	total := vp.TotalLineCount()
	visible := vp.VisibleLineCount()

	if total <= visible {
		return ""
	}

	trackHeight := height
	if trackHeight < 1 {
		trackHeight = visible
	}

	scrollPercent := vp.ScrollPercent()

	thumbPos := int(float64(trackHeight-1) * scrollPercent)
	if thumbPos < 0 {
		thumbPos = 0
	}
	if thumbPos > trackHeight-1 {
		thumbPos = trackHeight - 1
	}

	var sb strings.Builder
	for i := 0; i < trackHeight; i++ {
		if i == thumbPos {
			sb.WriteString(scrollbarThumb.Render("█"))
		} else {
			sb.WriteString(scrollbarTrack.Render("│"))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

func (m Model) View() string {
	var content string

	windowWidth := m.width - 4
	windowHeight := m.height - 4

	if windowWidth < minWindowWidth || windowHeight < minWindowHeight {
		return styleScreenTooSmall.
			Width(m.width).
			Height(m.height).
			Render("Terminal window is too small.\nPlease resize.")
	}

	title := "NETIMP " + m.opts.Version
	if m.opts.Session != "" {
		title += " · " + m.opts.Session
	}
	appTitle := styleAppTitle.Width(windowWidth).Render(title)

	switch m.screen {

	case screenProfilePicker:
		content = lipgloss.JoinVertical(lipgloss.Top,
			appTitle,
			m.viewPicker(windowWidth, windowHeight-1),
		)

	case screenControl:
		formPanel := m.viewForm()
		relayPanel := m.viewRelay(windowWidth - formWidth)
		topArea := lipgloss.JoinHorizontal(lipgloss.Top, formPanel, relayPanel)

		content = lipgloss.JoinVertical(lipgloss.Top,
			appTitle,
			topArea,
			m.viewLogs(windowWidth, logsHeight(windowHeight)),
			m.viewMessage(windowWidth),
			m.viewFooter(windowWidth),
		)
	}

	// Apply global window style
	return styleWindow.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m Model) viewForm() string {
	var rows []string
	for i, in := range m.inputs {
		label := "  " + fieldLabels[i]
		style := styleFormLabel
		if m.focus == i {
			label = "> " + fieldLabels[i]
			style = styleSelected.Width(styleFormLabel.GetWidth())
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			style.Render(label),
			styleInput.Render(in.View()),
		))
	}

	body := styleTitle.MarginBottom(1).Render("Impairment") + "\n" +
		strings.Join(rows, "\n") + "\n\n" +
		styleSubtext.Render("enter apply • esc reset")

	border := colorSubtext
	if m.focus < focusLogs {
		border = colorSecondary
	}
	return stylePanelTitled.
		BorderForeground(border).
		Width(formWidth - 2).
		Height(topHeight - 2).
		Render(body)
}

func (m Model) viewRelay(width int) string {
	valueWidth := width - 4 - styleLabel.GetWidth()

	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Left,
			styleLabel.Render(label),
			styleValue.Render(truncate(value, valueWidth)),
		)
	}

	client := m.client
	if client == "" {
		client = "waiting for first marked datagram"
	}

	header := fmt.Sprintf("%-10s%10s%10s%10s%10s", "", "forwarded", "delayed", "dropped", "overflow")
	counts := func(dir types.Direction) string {
		return fmt.Sprintf("%-10s%10d%10d%10d%10d",
			dir.Label(),
			m.counts.Of(dir, types.OutcomeForwarded),
			m.counts.Of(dir, types.OutcomeDelayed),
			m.counts.Of(dir, types.OutcomeDropped),
			m.counts.Of(dir, types.OutcomeOverflow),
		)
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		styleTitle.MarginBottom(1).Render("Relay"),
		row("Bind:", m.relay.Local().String()),
		row("Server:", m.relay.Server().String()),
		row("Client:", client),
		row("Status:", m.status),
		row("Queued:", fmt.Sprintf("%d delayed in flight, %d unmarked discarded", m.inFlight, m.counts.Unmarked)),
		styleSubtext.Render(truncate(header, width-4)),
		truncate(counts(types.ClientToServer), width-4),
		truncate(counts(types.ServerToClient), width-4),
	)

	border := colorSubtext
	if m.client != "" {
		border = colorSuccess
	}
	return stylePanelTitled.
		BorderForeground(border).
		Width(width - 2).
		Height(topHeight - 2).
		Render(body)
}

func (m Model) viewLogs(width, height int) string {
	contentHeight := height - 4
	if contentHeight < 1 {
		contentHeight = 1
	}

	logsColor := colorSubtext
	if m.focus == focusLogs {
		logsColor = colorSecondary
	}

	logsTitle := styleTitle.MarginBottom(1).Render("Logs")

	// Render viewport and scrollbar side by side
	viewportContent := m.logViewport.View()
	scrollbar := renderScrollbar(m.logViewport, contentHeight)
	scrollbarCol := scrollbarTrack.Width(1).Render(scrollbar)
	logsContent := lipgloss.JoinHorizontal(lipgloss.Top, viewportContent, scrollbarCol)

	return stylePanelTitled.
		BorderForeground(logsColor).
		Width(width - 2).
		Height(height - 2).
		Render(logsTitle + "\n" + logsContent)
}

func (m Model) viewMessage(width int) string {
	switch {
	case m.err != nil:
		// joined validation errors come one per line
		msg := strings.ReplaceAll(m.err.Error(), "\n", "; ")
		return styleError.Render(truncate("Error: "+msg, width))
	case m.notice != "":
		return styleNotice.Render(truncate(m.notice, width))
	default:
		return ""
	}
}

func (m Model) viewFooter(width int) string {
	keyStyle := lipgloss.NewStyle().Foreground(colorSecondary).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(colorSubtext)
	sep := descStyle.Render(" • ")

	hint := func(k, d string) string {
		return keyStyle.Render(k) + descStyle.Render(" "+d)
	}

	var parts []string
	if m.focus == focusLogs {
		parts = []string{
			hint("<tab>", "focus"),
			hint("e", "editor"),
			hint("g", "top"),
			hint("G", "bottom"),
			hint("q", "quit"),
		}
	} else {
		parts = []string{
			hint("<tab>", "focus"),
			hint("^o", "open"),
			hint("^r", "reload"),
			hint("^w", "save"),
			hint("^y", "copy flags"),
			hint("q", "quit"),
		}
	}

	footerStyle := lipgloss.NewStyle().
		Border(lipgloss.ThickBorder()).
		BorderForeground(colorSubtext).
		Padding(0, 1)

	return footerStyle.
		Width(width - 2).
		Render(strings.Join(parts, sep))
}

func (m Model) viewPicker(windowWidth, panelHeight int) string {
	// profiles on the left third, preview on the rest
	listWidth := windowWidth / 3
	previewWidth := windowWidth - listWidth

	listColor := colorSecondary
	if m.picker.hasProfiles() {
		listColor = colorSuccess
	}

	previewColor := colorSecondary
	if e, ok := m.picker.selected(); ok && !e.dir {
		if m.picker.valid {
			previewColor = colorSuccess
		} else {
			previewColor = colorError
		}
	}

	listTitle := styleTitle.MarginBottom(1).Render("Select Profile")
	listView := stylePanelTitled.
		BorderForeground(listColor).
		Width(listWidth - 4).
		Height(panelHeight).
		Render(listTitle + "\n" + m.picker.View())

	previewTitle := styleTitle.MarginBottom(1).Render("Profile Preview")

	// Truncate content to fit panel
	contentHeight := panelHeight - 5 // -2 border, -1 title, -1 margin, -1 dots
	previewLines := strings.Split(m.picker.preview, "\n")
	if contentHeight > 1 && len(previewLines) > contentHeight {
		previewLines = previewLines[:contentHeight-1]
		previewLines = append(previewLines, "...")
	}

	previewView := stylePanelTitled.
		BorderForeground(previewColor).
		Width(previewWidth).
		Height(panelHeight).
		Render(previewTitle + "\n" + strings.Join(previewLines, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, listView, previewView)
}
