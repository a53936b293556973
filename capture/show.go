package capture

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	markerYes = lipgloss.NewStyle().Foreground(lipgloss.Color("#43BF6D")).Render("yes")
	markerNo  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Render("no")
)

// Flow aggregates the records sent from one endpoint to another.
type Flow struct {
	Src, Dst string
	Count    int
	Bytes    int
}

// Flows groups records by (src, dst), busiest first.
func Flows(records []Record) []Flow {
	index := make(map[[2]string]*Flow)
	for _, r := range records {
		key := [2]string{r.Src.String(), r.Dst.String()}
		f, ok := index[key]
		if !ok {
			f = &Flow{Src: key[0], Dst: key[1]}
			index[key] = f
		}
		f.Count++
		f.Bytes += r.Length
	}

	flows := make([]Flow, 0, len(index))
	for _, f := range index {
		flows = append(flows, *f)
	}
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].Count != flows[j].Count {
			return flows[i].Count > flows[j].Count
		}
		return flows[i].Src+flows[i].Dst < flows[j].Src+flows[j].Dst
	})
	return flows
}

// Show prints the last limit records (all when limit <= 0) followed by per-flow totals.
func Show(w io.Writer, records []Record, limit int) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No datagrams in capture.")
		return
	}

	shown := records
	if limit > 0 && len(shown) > limit {
		shown = shown[len(shown)-limit:]
	}

	fmt.Fprintf(w, "%s %s %s %s %s\n",
		headerStyle.Width(16).Render("TIME"),
		headerStyle.Width(24).Render("FROM"),
		headerStyle.Width(24).Render("TO"),
		headerStyle.Width(8).Render("BYTES"),
		headerStyle.Width(8).Render("MARKER"),
	)

	for _, r := range shown {
		marker := markerNo
		if r.Marker {
			marker = markerYes
		}
		fmt.Fprintf(w, "%s %s %s %s %s\n",
			rowStyle.Width(16).Render(r.Time.Format("15:04:05.000")),
			rowStyle.Width(24).Render(r.Src.String()),
			rowStyle.Width(24).Render(r.Dst.String()),
			rowStyle.Width(8).Render(fmt.Sprintf("%d", r.Length)),
			rowStyle.Width(8).Render(marker),
		)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s %s %s\n",
		headerStyle.Width(24).Render("FROM"),
		headerStyle.Width(24).Render("TO"),
		headerStyle.Width(10).Render("DATAGRAMS"),
		headerStyle.Width(10).Render("BYTES"),
	)
	for _, f := range Flows(records) {
		fmt.Fprintf(w, "%s %s %s %s\n",
			rowStyle.Width(24).Render(f.Src),
			rowStyle.Width(24).Render(f.Dst),
			rowStyle.Width(10).Render(fmt.Sprintf("%d", f.Count)),
			rowStyle.Width(10).Render(fmt.Sprintf("%d", f.Bytes)),
		)
	}

	span := records[len(records)-1].Time.Sub(records[0].Time)
	fmt.Fprintf(w, "\n%d datagrams over %s\n", len(records), span.Round(time.Millisecond))
}
