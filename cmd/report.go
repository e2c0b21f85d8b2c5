package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"carimages/internal/fetch"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

type coverageRow struct {
	Name    string
	Images  int
	Present int
	Missing []string
}

// renderSummary prints the success and failure counts of a batch, followed
// by the failed files.
func renderSummary(w io.Writer, res fetch.Result) {
	failed := strconv.Itoa(res.Failed)
	if res.Failed > 0 {
		failed = errorStyle.Render(failed)
	}
	_, _ = fmt.Fprintf(w, "%s %s succeeded (%d already present), %s failed, %d bytes written\n",
		titleStyle.Render("Done:"), okStyle.Render(strconv.Itoa(res.Succeeded)), res.Skipped, failed, res.Bytes)

	for _, o := range res.Outcomes {
		if o.State != fetch.StateFailed {
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s %s\n", filepath.Base(o.Target), mutedStyle.Render(o.Error))
	}
}

// renderCoverage prints one table row per catalog.
func renderCoverage(w io.Writer, rows []coverageRow, showMissing bool) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("CATALOG", "IMAGES", "PRESENT", "MISSING").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	totalImages, totalPresent := 0, 0
	for _, r := range rows {
		t.Row(r.Name, strconv.Itoa(r.Images), strconv.Itoa(r.Present), strconv.Itoa(len(r.Missing)))
		totalImages += r.Images
		totalPresent += r.Present
	}
	_, _ = fmt.Fprintln(w, t.Render())
	_, _ = fmt.Fprintf(w, "%s %d/%d images present\n", titleStyle.Render("Total:"), totalPresent, totalImages)

	if !showMissing {
		return
	}
	for _, r := range rows {
		if len(r.Missing) == 0 {
			continue
		}
		_, _ = fmt.Fprintln(w, titleStyle.Render(r.Name))
		for _, name := range r.Missing {
			_, _ = fmt.Fprintf(w, "  %s\n", name)
		}
	}
}
