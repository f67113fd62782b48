package rendering

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/values-report/internal/catalog"
)

func testInput() Input {
	return Input{
		Recipient: "user@example.com",
		Ranked: []catalog.RankedValue{
			{Value: catalog.ValueItem{ID: "courage", Text: "Courage", Description: "Acting despite fear"}, Rank: 2},
			{Value: catalog.ValueItem{ID: "honesty", Text: "Honesty", Description: "Telling the truth"}, Rank: 1},
		},
		Narrative:   "# Introduction\n\nA paragraph about values.\n\n- A bullet\n",
		GeneratedAt: time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestPDFRenderer_Render(t *testing.T) {
	doc, err := NewPDFRenderer("").Render(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, AttachmentName, doc.Filename)
	assert.Equal(t, ContentType, doc.ContentType)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF-")))
	assert.Equal(t, 3, doc.Pages, "cover, values and content pages")
	assert.Equal(t, len(doc.Data), doc.Size())
}

func TestPDFRenderer_Deterministic(t *testing.T) {
	r := NewPDFRenderer("")
	first, err := r.Render(context.Background(), testInput())
	require.NoError(t, err)
	second, err := r.Render(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, first.Data, second.Data)
}

func TestPDFRenderer_LongNarrativeAddsPages(t *testing.T) {
	in := testInput()
	var sb bytes.Buffer
	for range 80 {
		sb.WriteString("This paragraph is long enough to wrap across several lines of the report body when it is justified on an A4 page.\n\n")
	}
	in.Narrative = sb.String()

	doc, err := NewPDFRenderer("").Render(context.Background(), in)
	require.NoError(t, err)
	assert.Greater(t, doc.Pages, 3)
}

func TestPDFRenderer_WithLogo(t *testing.T) {
	dir := t.TempDir()
	logo := filepath.Join(dir, "logo.png")
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	f, err := os.Create(logo)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	withLogo, err := NewPDFRenderer(logo).Render(context.Background(), testInput())
	require.NoError(t, err)
	without, err := NewPDFRenderer("").Render(context.Background(), testInput())
	require.NoError(t, err)

	assert.Greater(t, len(withLogo.Data), len(without.Data))
}

func TestPDFRenderer_MissingLogoSkipped(t *testing.T) {
	doc, err := NewPDFRenderer("/nonexistent/logo.png").Render(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Pages)
}

func TestPDFRenderer_InvalidInput(t *testing.T) {
	in := testInput()
	in.Recipient = ""
	_, err := NewPDFRenderer("").Render(context.Background(), in)
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)

	in = testInput()
	in.Ranked = nil
	_, err = NewPDFRenderer("").Render(context.Background(), in)
	require.ErrorAs(t, err, &renderErr)
}

func TestPDFRenderer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPDFRenderer("").Render(ctx, testInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitBox(t *testing.T) {
	w, h := fitBox(300, 150, 150)
	assert.InDelta(t, 150, w, 0.001)
	assert.InDelta(t, 75, h, 0.001)

	w, h = fitBox(50, 200, 150)
	assert.InDelta(t, 37.5, w, 0.001)
	assert.InDelta(t, 150, h, 0.001)
}

func TestFooterText(t *testing.T) {
	generated := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Page 2 of 5 | Values Report | Generated March 4, 2025", FooterText("2", "5", generated))
}

func TestPDFRenderer_RenderNonLatinText(t *testing.T) {
	in := testInput()
	in.Recipient = "zoë@exämple.com"
	in.Narrative = "# Growth → 成长\n\nEvery step counts ✓ keep going.\n\n- Привет\n\n```\nκώδικας\n```\n"

	doc, err := NewPDFRenderer("").Render(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Pages)

	// Text is written with the embedded Unicode font, not a single-byte core font.
	assert.Contains(t, string(doc.Data), "/Identity-H")
	assert.Contains(t, string(doc.Data), "/ToUnicode")
	assert.NotContains(t, string(doc.Data), "/Helvetica")
	assert.NotContains(t, string(doc.Data), "/Courier")
}
