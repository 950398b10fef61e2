// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders CLI output, either as styled terminal text or
// as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

// Options selects the output mode.
type Options struct {
	JSON bool
}

var (
	bold   = lipgloss.NewStyle().Bold(true)
	dim    = lipgloss.NewStyle().Faint(true)
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	label  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	box    = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("6")).
		Padding(0, 1)
)

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Headers(headers...).
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return label
			}
			return lipgloss.NewStyle()
		})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusStyle(s types.OutcomeStatus) lipgloss.Style {
	switch s {
	case types.OutcomeSuccess:
		return green
	case types.OutcomeFailed:
		return red
	default:
		return yellow
	}
}

// Batch writes a batch summary.
func Batch(w io.Writer, s types.BatchSummary, opts Options) error {
	if opts.JSON {
		return writeJSON(w, s)
	}

	rows := make([][]string, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		detail := o.Reason
		if o.Status == types.OutcomeSuccess {
			detail = fmt.Sprintf("%d figures, %d entities", o.Figures, o.Entities)
			if o.Degraded > 0 {
				detail += fmt.Sprintf(", %d degraded", o.Degraded)
			}
			if o.Note != "" {
				detail += " (" + o.Note + ")"
			}
		}
		rows = append(rows, []string{
			cyan.Render(o.Identifier),
			statusStyle(o.Status).Render(string(o.Status)),
			o.Kind,
			truncate(detail, 60),
		})
	}
	fmt.Fprintln(w, newTable("Identifier", "Status", "Kind", "Detail").Rows(rows...).Render())

	line := fmt.Sprintf("%s succeeded  %s failed  %s skipped",
		green.Render(strconv.Itoa(s.Succeeded)),
		red.Render(strconv.Itoa(s.Failed)),
		yellow.Render(strconv.Itoa(s.Skipped)))
	if s.Stopped {
		line += "  " + yellow.Render("(stopped)")
	}
	if !s.StartedAt.IsZero() && !s.FinishedAt.IsZero() {
		line += "  " + dim.Render(s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String())
	}
	fmt.Fprintln(w, line)
	return nil
}

// Paper writes one stored record.
func Paper(w io.Writer, rec *types.PaperRecord, opts Options) error {
	if opts.JSON {
		return writeJSON(w, rec)
	}

	header := bold.Render(rec.Title) + "\n" +
		cyan.Render(rec.ID) + "  " + dim.Render("retrieved "+rec.RetrievedAt.Format(time.RFC3339))
	fmt.Fprintln(w, box.Render(header))
	if rec.Abstract != "" {
		fmt.Fprintln(w, truncate(rec.Abstract, 400))
	}
	fmt.Fprintln(w)

	for i, f := range rec.Figures {
		name := f.Label
		if name == "" {
			name = "Figure " + strconv.Itoa(i+1)
		}
		fmt.Fprintf(w, "%s  %s\n", label.Render(name), f.Caption)
		if len(f.Entities) == 0 {
			fmt.Fprintln(w, dim.Render("  no entities"))
			continue
		}
		rows := make([][]string, 0, len(f.Entities))
		for _, m := range f.Entities {
			rows = append(rows, []string{m.Text, m.Type, m.NormalizedID, fmt.Sprintf("%d-%d", m.Start, m.End)})
		}
		fmt.Fprintln(w, newTable("Text", "Type", "ID", "Span").Rows(rows...).Render())
	}
	return nil
}

// Papers writes the store listing.
func Papers(w io.Writer, list []types.PaperSummary, opts Options) error {
	if opts.JSON {
		return writeJSON(w, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "No papers stored.")
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{
			cyan.Render(p.ID),
			truncate(p.Title, 50),
			strconv.Itoa(p.Figures),
			strconv.Itoa(p.Entities),
			p.RetrievedAt.Format("2006-01-02"),
		})
	}
	fmt.Fprintln(w, newTable("ID", "Title", "Figures", "Entities", "Retrieved").Rows(rows...).Render())
	return nil
}

// Stats writes store statistics.
func Stats(w io.Writer, s types.StoreStats, opts Options) error {
	if opts.JSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "%s %s %s\n", label.Render("Backend:"), s.Backend, dim.Render(s.Location))
	fmt.Fprintf(w, "%s %d\n", label.Render("Papers:"), s.Papers)
	fmt.Fprintf(w, "%s %d\n", label.Render("Figures:"), s.Figures)
	fmt.Fprintf(w, "%s %d\n", label.Render("Entities:"), s.Entities)
	return nil
}

// Check is the result of one connectivity check.
type Check struct {
	Name    string        `json:"name"`
	Target  string        `json:"target"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ns"`
	Detail  string        `json:"detail,omitempty"`
}

// Checks writes diagnostic results.
func Checks(w io.Writer, checks []Check, opts Options) error {
	if opts.JSON {
		return writeJSON(w, checks)
	}
	rows := make([][]string, 0, len(checks))
	for _, c := range checks {
		status := green.Render("ok")
		if !c.OK {
			status = red.Render("fail")
		}
		rows = append(rows, []string{c.Name, c.Target, status, c.Latency.Round(time.Millisecond).String(), truncate(c.Detail, 50)})
	}
	fmt.Fprintln(w, newTable("Check", "Target", "Status", "Latency", "Detail").Rows(rows...).Render())
	return nil
}
