package rendering

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/jonathan/values-report/internal/catalog"
)

// Page geometry in points.
const (
	pageMargin   = 50.0
	footerOffset = 35.0
	listIndent   = 20.0
	logoBox      = 150.0
)

// fontFamily is registered from the embedded DejaVu files so narrative and
// recipient text keep characters outside Latin-1.
const fontFamily = "DejaVu"

var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	fontRegular []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	fontBold []byte
)

type rgb struct{ r, g, b int }

var (
	colorText  = rgb{0x33, 0x33, 0x33}
	colorMuted = rgb{0x66, 0x66, 0x66}
)

// PDFRenderer lays out reports with fpdf. Output is deterministic for a given
// Input: document dates come from Input.GeneratedAt.
type PDFRenderer struct {
	// LogoPath is an optional PNG or JPEG shown on the cover page. A missing
	// file is skipped.
	LogoPath string
}

// NewPDFRenderer returns a renderer using the given cover logo.
func NewPDFRenderer(logoPath string) *PDFRenderer {
	return &PDFRenderer{LogoPath: logoPath}
}

// Render produces the cover page, the ranked values page and the narrative
// pages, with a page footer on every page.
func (r *PDFRenderer) Render(ctx context.Context, in Input) (*Document, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &RenderError{Message: "render cancelled", Cause: err}
	}

	blocks, err := ParseMarkdown(in.Narrative)
	if err != nil {
		return nil, &RenderError{Message: "failed to parse narrative", Cause: err}
	}

	generated := in.generatedAt()
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.AddUTF8FontFromBytes(fontFamily, "", fontRegular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", fontBold)
	l := &layout{pdf: pdf}

	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin+footerOffset)
	pdf.SetTitle(ReportTitle, true)
	pdf.SetAuthor(ReportAuthor, true)
	pdf.SetCreator(ReportAuthor, true)
	pdf.SetSubject(ReportSubject, true)
	pdf.SetKeywords(ReportKeywords, true)
	pdf.SetCreationDate(generated)
	pdf.SetModificationDate(generated)
	pdf.SetCatalogSort(true)
	pdf.AliasNbPages("{nb}")

	dateStr := FormatDate(generated)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-(pageMargin + footerOffset) + 10)
		l.font("", 10, colorMuted)
		footer := FooterText(strconv.Itoa(pdf.PageNo()), "{nb}", generated)
		pdf.CellFormat(0, 12, footer, "", 0, "C", false, 0, "")
	})

	r.coverPage(l, in.Recipient, dateStr)
	valuesPage(l, in.Ranked)
	contentPages(l, blocks)

	if pdf.Err() {
		return nil, &RenderError{Message: "failed to lay out report", Cause: pdf.Error()}
	}

	pages := pdf.PageNo()
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &RenderError{Message: "failed to write PDF", Cause: err}
	}

	return &Document{
		Filename:    AttachmentName,
		ContentType: ContentType,
		Data:        buf.Bytes(),
		Pages:       pages,
	}, nil
}

// layout wraps the fpdf handle with the report's text styles.
type layout struct {
	pdf *fpdf.Fpdf
}

func (l *layout) font(style string, size float64, c rgb) {
	l.pdf.SetFont(fontFamily, style, size)
	l.pdf.SetTextColor(c.r, c.g, c.b)
}

// text writes a wrapped paragraph at the current position, indented from the
// left margin, followed by gap points of space.
func (l *layout) text(s string, size float64, indent float64, align string, gap float64) {
	left, _, right, _ := l.pdf.GetMargins()
	width, _ := l.pdf.GetPageSize()
	l.pdf.SetX(left + indent)
	l.pdf.MultiCell(width-left-right-indent, size*1.3, s, "", align, false)
	l.pdf.Ln(gap)
}

func (r *PDFRenderer) coverPage(l *layout, recipient, dateStr string) {
	pdf := l.pdf
	pdf.AddPage()

	if r.LogoPath != "" {
		if _, err := os.Stat(r.LogoPath); err == nil {
			info := pdf.RegisterImageOptions(r.LogoPath, fpdf.ImageOptions{ReadDpi: true})
			if info != nil && !pdf.Err() {
				w, h := fitBox(info.Width(), info.Height(), logoBox)
				pageW, _ := pdf.GetPageSize()
				pdf.ImageOptions(r.LogoPath, (pageW-w)/2, pdf.GetY(), w, h, false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
				pdf.SetY(pdf.GetY() + h + 20)
			}
		}
	}

	l.font("", 24, colorText)
	l.text(ReportTitle, 24, 0, "C", 20)
	l.font("", 12, colorMuted)
	l.text("Created on "+dateStr, 12, 0, "C", 10)
	l.font("", 14, colorText)
	l.text("Prepared for: "+recipient, 14, 0, "C", 30)
}

func valuesPage(l *layout, ranked []catalog.RankedValue) {
	l.pdf.AddPage()
	l.font("", 18, colorText)
	l.text(ValuesHeading, 18, 0, "L", 15)

	for _, rv := range catalog.SortByRank(ranked) {
		l.font("B", 14, colorText)
		l.text(fmt.Sprintf("%d. %s", rv.Rank, rv.Value.Text), 14, 0, "L", 5)
		l.font("", 12, colorMuted)
		l.text(rv.Value.Description, 12, listIndent, "L", 15)
	}
}

func contentPages(l *layout, blocks []Block) {
	l.pdf.AddPage()
	for _, b := range blocks {
		switch b.Kind {
		case BlockHeading:
			size := float64(20 - b.Level*2)
			l.pdf.Ln(size / 2)
			l.font("B", size, colorText)
			l.text(b.Text, size, 0, "L", 10)
		case BlockParagraph:
			l.font("", 12, colorText)
			l.text(b.Text, 12, 0, "J", 10)
		case BlockListItem:
			l.font("", 12, colorText)
			l.text("• "+b.Text, 12, listIndent*float64(b.Level), "L", 5)
		case BlockCode:
			l.font("", 10, colorText)
			for _, line := range strings.Split(b.Text, "\n") {
				l.text(line, 10, listIndent, "L", 0)
			}
			l.pdf.Ln(10)
		}
	}
}

// fitBox scales w x h to fit inside a box x box square, keeping aspect ratio.
func fitBox(w, h, box float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return box, box
	}
	scale := box / w
	if h*scale > box {
		scale = box / h
	}
	return w * scale, h * scale
}
