// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/pipeline"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRanking outputs ranked values in rank order.
func (p *Printer) PrintRanking(ranked []catalog.RankedValue) {
	if len(ranked) == 0 {
		return
	}

	var sb strings.Builder
	for _, rv := range catalog.SortByRank(ranked) {
		sb.WriteString(fmt.Sprintf("%d. %s\n", rv.Rank, rv.Value.Text))
		if rv.Value.Description != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", rv.Value.Description))
		}
	}

	p.printBox("YOUR TOP VALUES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintValues outputs catalog values with their taxonomy tags. At most limit
// values are shown; limit <= 0 shows maxItemsToShow.
func (p *Printer) PrintValues(title string, items []catalog.ValueItem, limit int) {
	if len(items) == 0 {
		p.printBox(title, "No values found")
		return
	}
	if limit <= 0 {
		limit = maxItemsToShow
	}

	var sb strings.Builder
	count := min(len(items), limit)
	for i := 0; i < count; i++ {
		item := items[i]
		sb.WriteString(fmt.Sprintf("• %s (%s)\n", item.Text, item.ID))
		if item.SchwartzCategory != "" || item.GouveiaCategory != "" {
			sb.WriteString(fmt.Sprintf("  [%s / %s]\n", item.SchwartzCategory, item.GouveiaCategory))
		}
	}
	if len(items) > count {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(items)-count))
	}

	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintProgress outputs one pipeline progress event as a single line.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(event pipeline.ProgressEvent) {
	var marker string
	switch event.Status {
	case pipeline.StatusStarted:
		marker = "…"
	case pipeline.StatusCompleted:
		marker = "✓"
	case pipeline.StatusFailed:
		marker = "✗"
	case pipeline.StatusSkipped:
		marker = "-"
	default:
		marker = "?"
	}
	fmt.Fprintf(p.out, "%s [%s] %s\n", marker, event.Step, event.Message)
}

// PrintResult outputs the outcome of a pipeline run.
func (p *Printer) PrintResult(result *pipeline.Result) {
	if result == nil {
		return
	}

	var sb strings.Builder
	if result.Document != nil {
		sb.WriteString(fmt.Sprintf("Document: %s (%d bytes", result.Document.Filename, result.Document.Size()))
		if result.Document.Pages > 0 {
			sb.WriteString(fmt.Sprintf(", %d pages", result.Document.Pages))
		}
		sb.WriteString(")\n")
	}
	if result.EmailSent {
		sb.WriteString("Email:    sent\n")
	} else {
		sb.WriteString("Email:    not sent\n")
		if result.DeliveryError != "" {
			sb.WriteString(fmt.Sprintf("          %s\n", result.DeliveryError))
		}
	}
	sb.WriteString(fmt.Sprintf("Duration: %s\n", result.Duration.Round(1e6)))

	if len(result.SoftFailures) > 0 {
		sb.WriteString(fmt.Sprintf("\n⚠ %d step(s) failed without stopping the report:\n", len(result.SoftFailures)))
		for _, f := range result.SoftFailures {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", f.Step, f.Error))
		}
	}

	if result.Preview != "" {
		sb.WriteString("\nPreview:\n")
		sb.WriteString(result.Preview)
	}

	p.printBox("REPORT GENERATED", strings.TrimSuffix(sb.String(), "\n"))
}
