// Package synthesis writes the report narrative and email summary for a
// ranked set of values using a language model.
package synthesis

import (
	"context"
	"strings"

	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/llm"
	"github.com/jonathan/values-report/internal/prompts"
)

const promptFile = "report.json"

// Section names, also used as prompt keys.
const (
	SectionNarrative = "narrative"
	SectionSummary   = "summary"
)

// Writer generates report content through an llm.Client. It is safe for
// concurrent use when the client is.
type Writer struct {
	client        llm.Client
	narrativeTier llm.ModelTier
	summaryTier   llm.ModelTier
}

// Option configures a Writer.
type Option func(*Writer)

// WithTiers overrides the model tiers used for each section.
func WithTiers(narrative, summary llm.ModelTier) Option {
	return func(w *Writer) {
		w.narrativeTier = narrative
		w.summaryTier = summary
	}
}

// NewWriter returns a Writer. The narrative uses the standard tier and the
// summary the lite tier unless overridden.
func NewWriter(client llm.Client, opts ...Option) *Writer {
	w := &Writer{
		client:        client,
		narrativeTier: llm.TierStandard,
		summaryTier:   llm.TierLite,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Narrative writes the long-form Markdown report addressed to recipient.
func (w *Writer) Narrative(ctx context.Context, ranked []catalog.RankedValue, recipient string) (string, error) {
	prompt, err := BuildNarrativePrompt(ranked, recipient)
	if err != nil {
		return "", &GenerationError{Section: SectionNarrative, Message: "failed to build prompt", Cause: err}
	}
	return w.generate(ctx, SectionNarrative, prompt, w.narrativeTier)
}

// Summary writes the short prose summary included in the email body.
func (w *Writer) Summary(ctx context.Context, ranked []catalog.RankedValue) (string, error) {
	prompt, err := BuildSummaryPrompt(ranked)
	if err != nil {
		return "", &GenerationError{Section: SectionSummary, Message: "failed to build prompt", Cause: err}
	}
	return w.generate(ctx, SectionSummary, prompt, w.summaryTier)
}

func (w *Writer) generate(ctx context.Context, section, prompt string, tier llm.ModelTier) (string, error) {
	text, err := w.client.GenerateContent(ctx, prompt, tier)
	if err != nil {
		return "", &GenerationError{Section: section, Message: "failed to generate content from LLM", Cause: err}
	}

	text = llm.StripCodeFence(text)
	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{Section: section, Message: "model returned empty content"}
	}
	return text, nil
}

// BuildNarrativePrompt fills the narrative template with the formatted
// ranking and the recipient's address.
func BuildNarrativePrompt(ranked []catalog.RankedValue, recipient string) (string, error) {
	return prompts.Render(promptFile, SectionNarrative, map[string]string{
		"Values":    catalog.Format(ranked),
		"Recipient": recipient,
	})
}

// BuildSummaryPrompt fills the summary template with the formatted ranking.
func BuildSummaryPrompt(ranked []catalog.RankedValue) (string, error) {
	return prompts.Render(promptFile, SectionSummary, map[string]string{
		"Values": catalog.Format(ranked),
	})
}
