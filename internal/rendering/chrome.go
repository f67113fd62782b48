package rendering

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/jonathan/values-report/internal/catalog"
)

// A4 in inches, with the same 50pt margins as the fpdf layout.
const (
	a4WidthIn  = 8.27
	a4HeightIn = 11.69
	marginIn   = 50.0 / 72.0
)

var reportPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; color: #333; font-size: 12pt; line-height: 1.5; }
  .page { page-break-after: always; }
  .cover { text-align: center; padding-top: 120pt; }
  .cover h1 { font-size: 24pt; font-weight: normal; margin-bottom: 20pt; }
  .cover .date { color: #666; }
  .cover .recipient { font-size: 14pt; }
  .cover img { max-width: 150pt; max-height: 150pt; }
  .values h2 { font-size: 18pt; font-weight: normal; }
  .values .name { font-size: 14pt; font-weight: bold; margin: 0 0 5pt 0; }
  .values .desc { color: #666; margin: 0 0 15pt 20pt; }
  .content p { text-align: justify; }
  .content h1 { font-size: 18pt; } .content h2 { font-size: 16pt; } .content h3 { font-size: 14pt; }
</style>
</head>
<body>
<section class="page cover">
  {{if .Logo}}<img src="{{.Logo}}" alt="">{{end}}
  <h1>{{.Title}}</h1>
  <p class="date">Created on {{.Date}}</p>
  <p class="recipient">Prepared for: {{.Recipient}}</p>
</section>
<section class="page values">
  <h2>{{.ValuesHeading}}</h2>
  {{range .Ranked}}<p class="name">{{.Rank}}. {{.Value.Text}}</p>
  <p class="desc">{{.Value.Description}}</p>
  {{end}}
</section>
<section class="content">
{{.Content}}
</section>
</body>
</html>
`))

type pageData struct {
	Title         string
	ValuesHeading string
	Date          string
	Recipient     string
	Logo          template.URL
	Ranked        []catalog.RankedValue
	Content       template.HTML
}

// ChromeRenderer prints the report through headless Chrome. It needs a Chrome
// or Chromium binary on the host.
type ChromeRenderer struct {
	LogoURL string // optional image URL or data URI for the cover
	Timeout time.Duration
}

// NewChromeRenderer returns a ChromeRenderer with the given print timeout.
func NewChromeRenderer(logoURL string, timeout time.Duration) *ChromeRenderer {
	return &ChromeRenderer{LogoURL: logoURL, Timeout: timeout}
}

// BuildHTML renders the full report page that Chrome prints.
func BuildHTML(in Input, logoURL string) (string, error) {
	content, err := MarkdownToHTML(in.Narrative)
	if err != nil {
		return "", err
	}

	data := pageData{
		Title:         ReportTitle,
		ValuesHeading: ValuesHeading,
		Date:          FormatDate(in.generatedAt()),
		Recipient:     in.Recipient,
		Logo:          template.URL(logoURL),
		Ranked:        catalog.SortByRank(in.Ranked),
		// goldmark escapes raw HTML in the narrative, so its output is trusted.
		Content: template.HTML(content),
	}

	var buf bytes.Buffer
	if err := reportPage.Execute(&buf, data); err != nil {
		return "", &RenderError{Message: "failed to execute report template", Cause: err}
	}
	return buf.String(), nil
}

// Render prints the report HTML to PDF with a page-numbered footer.
func (r *ChromeRenderer) Render(ctx context.Context, in Input) (*Document, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	html, err := BuildHTML(in, r.LogoURL)
	if err != nil {
		return nil, err
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	footer := chromeFooter(in.generatedAt())

	var pdfData []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPaperWidth(a4WidthIn).
				WithPaperHeight(a4HeightIn).
				WithMarginTop(marginIn).
				WithMarginBottom(marginIn + 0.3).
				WithMarginLeft(marginIn).
				WithMarginRight(marginIn).
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate("<span></span>").
				WithFooterTemplate(footer).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, &RenderError{Message: "browser PDF rendering failed", Cause: err}
	}

	return &Document{
		Filename:    AttachmentName,
		ContentType: ContentType,
		Data:        pdfData,
	}, nil
}

// chromeFooter is the print footer template; Chrome fills the page spans.
func chromeFooter(generated time.Time) string {
	return `<div style="font-size:10px;width:100%;text-align:center;color:#666;">` +
		FooterText(`<span class="pageNumber"></span>`, `<span class="totalPages"></span>`, generated) +
		`</div>`
}
