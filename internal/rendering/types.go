package rendering

import (
	"fmt"
	"time"

	"github.com/jonathan/values-report/internal/catalog"
)

// Document metadata and labels shared by every renderer.
const (
	ReportTitle    = "Your Personal Values Report"
	ReportAuthor   = "Values Report Application"
	ReportSubject  = "Personal Values Analysis"
	ReportKeywords = "values, personal development, self-awareness"
	ValuesHeading  = "Your Top 5 Values"

	// AttachmentName is the file name the report is delivered under.
	AttachmentName = "Your_Values_Report.pdf"
	// ContentType is the MIME type of rendered documents.
	ContentType = "application/pdf"
)

// Input is everything a renderer needs to lay out a report.
type Input struct {
	Recipient   string
	Ranked      []catalog.RankedValue
	Narrative   string // Markdown
	GeneratedAt time.Time
}

// Document is a rendered report.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
	Pages       int // 0 when the renderer does not report it
}

// Size returns the document size in bytes.
func (d *Document) Size() int {
	if d == nil {
		return 0
	}
	return len(d.Data)
}

// FormatDate renders a date the way the report prints it, e.g. "March 4, 2025".
func FormatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

// FooterText returns the footer line for page of total. Renderers pass their
// own page number placeholders.
func FooterText(page, total string, generated time.Time) string {
	return fmt.Sprintf("Page %s of %s | Values Report | Generated %s", page, total, FormatDate(generated))
}

func (in Input) validate() error {
	if in.Recipient == "" {
		return &RenderError{Message: "recipient is required"}
	}
	if len(in.Ranked) == 0 {
		return &RenderError{Message: "at least one ranked value is required"}
	}
	return nil
}

func (in Input) generatedAt() time.Time {
	if in.GeneratedAt.IsZero() {
		return time.Now()
	}
	return in.GeneratedAt
}
