package rendering

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// BlockKind classifies a block of report content.
type BlockKind int

// Block kinds produced by ParseMarkdown.
const (
	BlockHeading BlockKind = iota + 1
	BlockParagraph
	BlockListItem
	BlockCode
)

// Block is one laid-out unit of the narrative. Level is the heading level for
// headings and the nesting depth (1 = top level) for list items.
type Block struct {
	Kind  BlockKind
	Level int
	Text  string
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownToHTML converts report Markdown to an HTML fragment. Raw HTML in the
// input is not passed through.
func MarkdownToHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", &MarkdownError{Message: "failed to convert markdown", Cause: err}
	}
	return buf.String(), nil
}

// ParseMarkdown flattens report Markdown into blocks in document order.
// Inline formatting is dropped; whitespace inside a block is collapsed.
func ParseMarkdown(src string) ([]Block, error) {
	html, err := MarkdownToHTML(src)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &MarkdownError{Message: "failed to parse converted markdown", Cause: err}
	}

	var blocks []Block
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre").Each(func(_ int, s *goquery.Selection) {
		node := goquery.NodeName(s)
		switch {
		case len(node) == 2 && node[0] == 'h':
			if text := collapse(s.Text()); text != "" {
				blocks = append(blocks, Block{Kind: BlockHeading, Level: int(node[1] - '0'), Text: text})
			}
		case node == "p":
			// Loose list items wrap their text in <p>; the <li> already covers it.
			if s.ParentsFiltered("li").Length() > 0 {
				return
			}
			if text := collapse(s.Text()); text != "" {
				blocks = append(blocks, Block{Kind: BlockParagraph, Text: text})
			}
		case node == "li":
			item := s.Clone()
			item.Find("ul, ol").Remove()
			if text := collapse(item.Text()); text != "" {
				blocks = append(blocks, Block{Kind: BlockListItem, Level: s.ParentsFiltered("li").Length() + 1, Text: text})
			}
		case node == "pre":
			if text := strings.TrimRight(s.Text(), "\n"); text != "" {
				blocks = append(blocks, Block{Kind: BlockCode, Text: text})
			}
		}
	})
	return blocks, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
