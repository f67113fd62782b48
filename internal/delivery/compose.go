// Package delivery emails finished reports to their recipients.
package delivery

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/rendering"
)

// Subject is the subject line of every report email.
const Subject = "Your Personal Values Report"

// Report is what gets delivered: the recipient, their ranked values, the
// summary for the email body and the rendered document to attach.
type Report struct {
	Recipient string
	Ranked    []catalog.RankedValue
	Summary   string
	Document  *rendering.Document
}

// Message is a fully composed email.
type Message struct {
	From       string
	FromName   string
	To         string
	Subject    string
	Text       string
	HTML       string
	Attachment *rendering.Document
}

type bodyData struct {
	Recipient    string
	Values       []catalog.RankedValue
	Summary      string
	SummaryLines []string
}

var textBody = template.Must(template.New("text").Parse(`Dear {{.Recipient}},

Thank you for completing the values assessment. We're pleased to provide your personal values report.

YOUR TOP 5 VALUES:
{{range .Values}}{{.Rank}}. {{.Value.Text}}
{{end}}
SUMMARY:
{{.Summary}}

The attached PDF contains your comprehensive personal values report. This report offers deeper insights into your core values and practical guidance for living in alignment with them.

If you have any questions or feedback about your report, please don't hesitate to contact us.

Best regards,
The Values Report Team
`))

var htmlBody = htmltemplate.Must(htmltemplate.New("html").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; }
    .header { background-color: #f5f5f5; padding: 20px; text-align: center; border-bottom: 3px solid #007bff; }
    .content { padding: 20px; }
    .values-list { background-color: #f9f9f9; padding: 15px; border-radius: 5px; margin: 20px 0; }
    .summary { background-color: #f0f7ff; padding: 15px; border-radius: 5px; margin: 20px 0; border-left: 3px solid #007bff; }
    .footer { font-size: 12px; text-align: center; margin-top: 30px; color: #666; border-top: 1px solid #eee; padding-top: 20px; }
  </style>
</head>
<body>
  <div class="header"><h1>Your Personal Values Report</h1></div>
  <div class="content">
    <p>Dear {{.Recipient}},</p>
    <p>Thank you for completing the values assessment. We're pleased to provide your personal values report.</p>
    <div class="values-list">
      <h2>YOUR TOP 5 VALUES:</h2>
      <ol>{{range .Values}}<li><strong>{{.Value.Text}}</strong></li>{{end}}</ol>
    </div>
    <div class="summary">
      <h2>SUMMARY:</h2>
      <p>{{range $i, $line := .SummaryLines}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>
    </div>
    <p>The attached PDF contains your comprehensive personal values report. This report offers deeper insights into your core values and practical guidance for living in alignment with them.</p>
    <p>If you have any questions or feedback about your report, please don't hesitate to contact us.</p>
    <p>Best regards,<br>The Values Report Team</p>
  </div>
  <div class="footer"><p>This email was sent to {{.Recipient}} as part of the Values Report service.</p></div>
</body>
</html>
`))

// Compose builds the email for a report. The text and HTML bodies list the
// values in rank order.
func Compose(r Report, from, fromName string) (*Message, error) {
	if r.Recipient == "" {
		return nil, &ComposeError{Message: "recipient is required"}
	}
	if r.Document == nil || len(r.Document.Data) == 0 {
		return nil, &ComposeError{Message: "report document is required"}
	}

	data := bodyData{
		Recipient:    r.Recipient,
		Values:       catalog.SortByRank(r.Ranked),
		Summary:      strings.TrimSpace(r.Summary),
		SummaryLines: strings.Split(strings.TrimSpace(r.Summary), "\n"),
	}

	var text, html bytes.Buffer
	if err := textBody.Execute(&text, data); err != nil {
		return nil, &ComposeError{Message: "failed to render text body", Cause: err}
	}
	if err := htmlBody.Execute(&html, data); err != nil {
		return nil, &ComposeError{Message: "failed to render HTML body", Cause: err}
	}

	return &Message{
		From:       from,
		FromName:   fromName,
		To:         r.Recipient,
		Subject:    Subject,
		Text:       text.String(),
		HTML:       html.String(),
		Attachment: r.Document,
	}, nil
}
