// Package pipeline turns a finalized ranking into a delivered values report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/values-report/internal/assessment"
	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/delivery"
	"github.com/jonathan/values-report/internal/gate"
	"github.com/jonathan/values-report/internal/rendering"
)

// PreviewLength is the number of characters of narrative returned as a preview.
const PreviewLength = 200

// SelectionStore persists the ranked values of a session.
type SelectionStore interface {
	SaveSelections(ctx context.Context, sessionID string, selections []catalog.Selection) error
}

// CompletionMarker records that a session received its report.
type CompletionMarker interface {
	MarkCompleted(ctx context.Context, sessionID string) error
}

// Synthesizer writes report content.
type Synthesizer interface {
	Narrative(ctx context.Context, ranked []catalog.RankedValue, recipient string) (string, error)
	Summary(ctx context.Context, ranked []catalog.RankedValue) (string, error)
}

// Renderer turns report content into a document.
type Renderer interface {
	Render(ctx context.Context, in rendering.Input) (*rendering.Document, error)
}

// Deliverer sends a rendered report to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, r delivery.Report) error
}

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step      string `json:"step"`
	Category  string `json:"category"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Request is one report generation request.
type Request struct {
	SessionID  string              `json:"session_id" validate:"required"`
	Recipient  string              `json:"email" validate:"required"`
	Selections []catalog.Selection `json:"values" validate:"required,len=5,dive"`
}

// Result is the outcome of a run that passed content synthesis and rendering.
type Result struct {
	SessionID     string                `json:"session_id"`
	Ranked        []catalog.RankedValue `json:"ranked"`
	Narrative     string                `json:"-"`
	Summary       string                `json:"summary"`
	Preview       string                `json:"report_preview"`
	Document      *rendering.Document   `json:"-"`
	EmailSent     bool                  `json:"email_sent"`
	DeliveryError string                `json:"delivery_error,omitempty"`
	SoftFailures  []SoftFailure         `json:"soft_failures,omitempty"`
	GeneratedAt   time.Time             `json:"generated_at"`
	Duration      time.Duration         `json:"duration"`
}

// Deps are the collaborators of a Pipeline. Store and Completion may be nil,
// in which case their steps are skipped.
type Deps struct {
	Catalog     *catalog.Catalog
	Store       SelectionStore
	Completion  CompletionMarker
	Synthesizer Synthesizer
	Renderer    Renderer
	Deliverer   Deliverer
	Logger      *zap.Logger
}

// Pipeline runs report generation.
type Pipeline struct {
	deps     Deps
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Pipeline. A nil catalog uses catalog.Default.
func New(deps Deps) (*Pipeline, error) {
	if deps.Synthesizer == nil || deps.Renderer == nil || deps.Deliverer == nil {
		return nil, fmt.Errorf("pipeline requires a synthesizer, renderer and deliverer")
	}
	if deps.Catalog == nil {
		deps.Catalog = catalog.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		deps:     deps,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Validate checks a request and resolves its selections against the catalog.
// Every failure is a *ValidationError.
func (p *Pipeline) Validate(req Request) ([]catalog.RankedValue, error) {
	if err := p.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if !gate.ValidEmail(req.Recipient) {
		return nil, &ValidationError{Field: "email", Message: "please enter a valid email address"}
	}

	seenIDs := make(map[string]bool, len(req.Selections))
	seenRanks := make(map[int]bool, len(req.Selections))
	for _, sel := range req.Selections {
		if seenIDs[sel.ValueID] {
			return nil, &ValidationError{Field: "values", Message: fmt.Sprintf("value %q is selected more than once", sel.ValueID)}
		}
		if seenRanks[sel.Rank] {
			return nil, &ValidationError{Field: "values", Message: fmt.Sprintf("rank %d is used more than once", sel.Rank)}
		}
		seenIDs[sel.ValueID] = true
		seenRanks[sel.Rank] = true
	}

	ranked, err := p.deps.Catalog.Resolve(req.Selections)
	if err != nil {
		var nf *catalog.NotFoundError
		if errors.As(err, &nf) {
			return nil, &ValidationError{Field: "values", Message: fmt.Sprintf("value with ID %s not found", nf.ID)}
		}
		return nil, &ValidationError{Field: "values", Message: err.Error()}
	}
	return catalog.SortByRank(ranked), nil
}

func validationError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		switch {
		case fe.Field() == "Selections" || fe.StructField() == "Selections":
			return &ValidationError{Field: "values", Message: fmt.Sprintf("exactly %d ranked values are required", assessment.TopFiveSize)}
		case fe.StructField() == "ValueID":
			return &ValidationError{Field: "values", Message: "every value needs an id"}
		case fe.StructField() == "Rank":
			return &ValidationError{Field: "values", Message: fmt.Sprintf("ranks must be between 1 and %d", assessment.TopFiveSize)}
		case fe.StructField() == "SessionID":
			return &ValidationError{Field: "session_id", Message: "session id is required"}
		case fe.StructField() == "Recipient":
			return &ValidationError{Field: "email", Message: "email is required"}
		}
		return &ValidationError{Field: fe.Field(), Message: fe.Tag()}
	}
	return &ValidationError{Field: "request", Message: err.Error()}
}

// Run validates the request and executes every step. It returns an error only
// for invalid requests, cancellation before delivery and hard step failures;
// delivery failure is reported through Result.EmailSent.
func (p *Pipeline) Run(ctx context.Context, req Request, onProgress ProgressCallback) (*Result, error) {
	ranked, err := p.Validate(req)
	if err != nil {
		return nil, err
	}

	r := &run{
		sessionID:  req.SessionID,
		onProgress: onProgress,
		logger:     p.logger.With(zap.String("session_id", req.SessionID)),
	}
	start := p.now()
	result := &Result{
		SessionID:   req.SessionID,
		Ranked:      ranked,
		GeneratedAt: start,
	}

	// Step 1: persist selections
	if err := r.checkContext(ctx, StepPersistSelections); err != nil {
		return nil, err
	}
	if p.deps.Store == nil {
		r.emit(StepPersistSelections, StatusSkipped, "no selection store configured")
	} else {
		r.emit(StepPersistSelections, StatusStarted, "Saving ranked values")
		if err := p.deps.Store.SaveSelections(ctx, req.SessionID, catalog.Selections(ranked)); err != nil {
			_ = r.fail(result, StepPersistSelections, err)
		} else {
			r.emit(StepPersistSelections, StatusCompleted, fmt.Sprintf("Saved %d ranked values", len(ranked)))
		}
	}

	// Step 2: content synthesis
	if err := r.checkContext(ctx, StepSynthesizeContent); err != nil {
		return nil, err
	}
	r.emit(StepSynthesizeContent, StatusStarted, "Writing report content")
	narrative, summary, err := p.synthesize(ctx, ranked, req.Recipient)
	if err != nil {
		return nil, r.fail(result, StepSynthesizeContent, err)
	}
	result.Narrative = narrative
	result.Summary = summary
	result.Preview = Preview(narrative)
	r.emit(StepSynthesizeContent, StatusCompleted, fmt.Sprintf("Generated %d characters of report content", len(narrative)))

	// Step 3: document rendering
	if err := r.checkContext(ctx, StepRenderDocument); err != nil {
		return nil, err
	}
	r.emit(StepRenderDocument, StatusStarted, "Rendering report document")
	doc, err := p.deps.Renderer.Render(ctx, rendering.Input{
		Recipient:   req.Recipient,
		Ranked:      ranked,
		Narrative:   narrative,
		GeneratedAt: start,
	})
	if err != nil {
		return nil, r.fail(result, StepRenderDocument, err)
	}
	result.Document = doc
	r.emit(StepRenderDocument, StatusCompleted, fmt.Sprintf("Rendered %s (%d bytes)", doc.Filename, doc.Size()))

	// Step 4: delivery
	if err := r.checkContext(ctx, StepDeliverReport); err != nil {
		return nil, err
	}
	r.emit(StepDeliverReport, StatusStarted, "Emailing report to "+req.Recipient)
	err = p.deps.Deliverer.Deliver(ctx, delivery.Report{
		Recipient: req.Recipient,
		Ranked:    ranked,
		Summary:   summary,
		Document:  doc,
	})
	if err != nil {
		_ = r.fail(result, StepDeliverReport, err)
	} else {
		result.EmailSent = true
		r.emit(StepDeliverReport, StatusCompleted, "Report sent")
	}

	// Step 5: mark complete. The delivery outcome is already decided, so a
	// cancellation from here on only skips the step.
	switch {
	case ctx.Err() != nil:
		r.skip(result, StepMarkComplete, ctx.Err())
	case p.deps.Completion == nil:
		r.emit(StepMarkComplete, StatusSkipped, "no completion marker configured")
	default:
		r.emit(StepMarkComplete, StatusStarted, "Marking session complete")
		if err := p.deps.Completion.MarkCompleted(ctx, req.SessionID); err != nil {
			_ = r.fail(result, StepMarkComplete, err)
		} else {
			r.emit(StepMarkComplete, StatusCompleted, "Session complete")
		}
	}

	result.Duration = p.now().Sub(start)
	r.logger.Info("report pipeline finished",
		zap.Bool("email_sent", result.EmailSent),
		zap.Int("soft_failures", len(result.SoftFailures)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// synthesize writes the narrative and summary concurrently. Either failure
// cancels the other.
func (p *Pipeline) synthesize(ctx context.Context, ranked []catalog.RankedValue, recipient string) (string, string, error) {
	var narrative, summary string
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		narrative, err = p.deps.Synthesizer.Narrative(gCtx, ranked, recipient)
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = p.deps.Synthesizer.Summary(gCtx, ranked)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return narrative, summary, nil
}

// Preview returns the first PreviewLength characters of s followed by "...".
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s + "..."
	}
	return string([]rune(s)[:PreviewLength]) + "..."
}

// run carries per-invocation state.
type run struct {
	sessionID  string
	onProgress ProgressCallback
	logger     *zap.Logger
}

// emit calls the progress callback if configured
func (r *run) emit(step, status, message string) {
	if r.onProgress != nil {
		r.onProgress(ProgressEvent{
			Step:      step,
			Category:  category(step),
			Status:    status,
			Message:   message,
			SessionID: r.sessionID,
		})
	}
}

// fail applies the step's Criticality to err. Only hard steps return an error.
func (r *run) fail(result *Result, step string, err error) error {
	def, _ := Lookup(step)
	r.emit(step, StatusFailed, err.Error())
	switch def.Criticality {
	case Hard:
		r.logger.Error("step failed; aborting report", zap.String("step", step), zap.Error(err))
		return &StepError{Step: step, Kind: def.Kind, Cause: err}
	case Reported:
		r.logger.Warn("report delivery failed", zap.String("step", step), zap.Error(err))
		result.DeliveryError = err.Error()
	default:
		r.logger.Warn("soft step failed; continuing", zap.String("step", step), zap.Error(err))
		result.SoftFailures = append(result.SoftFailures, SoftFailure{Step: step, Error: err.Error()})
	}
	return nil
}

// skip records a step that never ran because the run was cancelled.
func (r *run) skip(result *Result, step string, err error) {
	r.logger.Warn("report cancelled; step skipped", zap.String("step", step), zap.Error(err))
	result.SoftFailures = append(result.SoftFailures, SoftFailure{Step: step, Error: err.Error()})
	r.emit(step, StatusSkipped, "cancelled")
}

func (r *run) checkContext(ctx context.Context, step string) error {
	if err := ctx.Err(); err != nil {
		r.logger.Warn("report cancelled", zap.String("step", step), zap.Error(err))
		r.emit(step, StatusSkipped, "cancelled")
		return &StepError{Step: step, Cause: err}
	}
	return nil
}
