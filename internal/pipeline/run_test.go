package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/values-report/internal/catalog"
	"github.com/jonathan/values-report/internal/delivery"
	"github.com/jonathan/values-report/internal/rendering"
)

// recorder collects collaborator calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeStore struct {
	rec   *recorder
	err   error
	saved []catalog.Selection
}

func (s *fakeStore) SaveSelections(_ context.Context, _ string, selections []catalog.Selection) error {
	s.rec.add("save")
	s.saved = selections
	return s.err
}

type fakeCompletion struct {
	rec *recorder
	err error
}

func (c *fakeCompletion) MarkCompleted(context.Context, string) error {
	c.rec.add("complete")
	return c.err
}

type fakeSynth struct {
	rec          *recorder
	narrative    string
	narrativeErr error
	summaryErr   error
	recipient    string
}

func (s *fakeSynth) Narrative(_ context.Context, _ []catalog.RankedValue, recipient string) (string, error) {
	s.rec.add("narrative")
	s.recipient = recipient
	return s.narrative, s.narrativeErr
}

func (s *fakeSynth) Summary(context.Context, []catalog.RankedValue) (string, error) {
	s.rec.add("summary")
	return "A short summary.", s.summaryErr
}

type fakeRenderer struct {
	rec   *recorder
	err   error
	input rendering.Input
}

func (r *fakeRenderer) Render(_ context.Context, in rendering.Input) (*rendering.Document, error) {
	r.rec.add("render")
	r.input = in
	if r.err != nil {
		return nil, r.err
	}
	return &rendering.Document{
		Filename:    rendering.AttachmentName,
		ContentType: rendering.ContentType,
		Data:        []byte("%PDF-1.3 fake"),
		Pages:       3,
	}, nil
}

type fakeDeliverer struct {
	rec    *recorder
	err    error
	report delivery.Report
}

func (d *fakeDeliverer) Deliver(_ context.Context, r delivery.Report) error {
	d.rec.add("deliver")
	d.report = r
	return d.err
}

type harness struct {
	rec        *recorder
	store      *fakeStore
	completion *fakeCompletion
	synth      *fakeSynth
	renderer   *fakeRenderer
	deliverer  *fakeDeliverer
	logs       *observer.ObservedLogs
	pipeline   *Pipeline
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.ValueItem{
		{ID: "courage", Text: "Courage", Description: "Acting despite fear"},
		{ID: "honesty", Text: "Honesty", Description: "Telling the truth"},
		{ID: "freedom", Text: "Freedom", Description: "Choosing your own path"},
		{ID: "family", Text: "Family", Description: "Caring for loved ones"},
		{ID: "growth", Text: "Growth", Description: "Becoming more than you were"},
		{ID: "humor", Text: "Humor", Description: "Finding the funny side"},
	})
	require.NoError(t, err)
	return c
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &recorder{}
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		rec:        rec,
		store:      &fakeStore{rec: rec},
		completion: &fakeCompletion{rec: rec},
		synth:      &fakeSynth{rec: rec, narrative: "# Introduction\n\nYour values shape you."},
		renderer:   &fakeRenderer{rec: rec},
		deliverer:  &fakeDeliverer{rec: rec},
		logs:       logs,
	}
	p, err := New(Deps{
		Catalog:     testCatalog(t),
		Store:       h.store,
		Completion:  h.completion,
		Synthesizer: h.synth,
		Renderer:    h.renderer,
		Deliverer:   h.deliverer,
		Logger:      zap.New(core),
	})
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func validRequest() Request {
	return Request{
		SessionID: "3f1c2e4a-0000-4000-8000-000000000001",
		Recipient: "ada@example.com",
		Selections: []catalog.Selection{
			{ValueID: "family", Rank: 4},
			{ValueID: "courage", Rank: 1},
			{ValueID: "growth", Rank: 5},
			{ValueID: "honesty", Rank: 2},
			{ValueID: "freedom", Rank: 3},
		},
	}
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t)

	var events []ProgressEvent
	result, err := h.pipeline.Run(context.Background(), validRequest(), func(e ProgressEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)

	assert.True(t, result.EmailSent)
	assert.Empty(t, result.DeliveryError)
	assert.Empty(t, result.SoftFailures)
	assert.NotEmpty(t, result.Preview)
	assert.True(t, strings.HasSuffix(result.Preview, "..."))
	assert.Equal(t, "A short summary.", result.Summary)
	require.NotNil(t, result.Document)
	assert.Equal(t, rendering.AttachmentName, result.Document.Filename)

	calls := h.rec.list()
	require.Len(t, calls, 6)
	assert.Equal(t, "save", calls[0])
	assert.ElementsMatch(t, []string{"narrative", "summary"}, calls[1:3])
	assert.Equal(t, []string{"render", "deliver", "complete"}, calls[3:])

	// Selections are persisted and rendered in rank order.
	require.Len(t, h.store.saved, 5)
	for i, sel := range h.store.saved {
		assert.Equal(t, i+1, sel.Rank)
	}
	assert.Equal(t, "courage", h.renderer.input.Ranked[0].Value.ID)
	assert.Equal(t, "ada@example.com", h.synth.recipient)
	assert.Equal(t, "ada@example.com", h.deliverer.report.Recipient)
	assert.Same(t, result.Document, h.deliverer.report.Document)

	var completed []string
	for _, e := range events {
		assert.Equal(t, validRequest().SessionID, e.SessionID)
		if e.Status == StatusCompleted {
			completed = append(completed, e.Step)
		}
	}
	assert.Equal(t, []string{
		StepPersistSelections, StepSynthesizeContent, StepRenderDocument, StepDeliverReport, StepMarkComplete,
	}, completed)
}

func TestRun_ValidationRejectsBeforeAnyCall(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"unknown value id", func(r *Request) { r.Selections[0].ValueID = "unknown-id" }, "values"},
		{"too few values", func(r *Request) { r.Selections = r.Selections[:4] }, "values"},
		{"too many values", func(r *Request) {
			r.Selections = append(r.Selections, catalog.Selection{ValueID: "humor", Rank: 5})
		}, "values"},
		{"duplicate value", func(r *Request) { r.Selections[1].ValueID = "family" }, "values"},
		{"duplicate rank", func(r *Request) { r.Selections[1].Rank = 4 }, "values"},
		{"rank out of range", func(r *Request) { r.Selections[2].Rank = 6 }, "values"},
		{"zero rank", func(r *Request) { r.Selections[2].Rank = 0 }, "values"},
		{"empty value id", func(r *Request) { r.Selections[0].ValueID = "" }, "values"},
		{"missing session", func(r *Request) { r.SessionID = "" }, "session_id"},
		{"missing email", func(r *Request) { r.Recipient = "" }, "email"},
		{"malformed email", func(r *Request) { r.Recipient = "ada@example" }, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := validRequest()
			tt.mutate(&req)

			result, err := h.pipeline.Run(context.Background(), req, nil)
			assert.Nil(t, result)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, h.rec.list(), "no collaborator may be called")
		})
	}
}

func TestRun_UnknownIDMessage(t *testing.T) {
	h := newHarness(t)
	req := validRequest()
	req.Selections[0].ValueID = "unknown-id"

	_, err := h.pipeline.Run(context.Background(), req, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown-id")
}

func TestRun_SynthesisFailureSkipsRenderAndDelivery(t *testing.T) {
	for _, which := range []string{"narrative", "summary"} {
		t.Run(which, func(t *testing.T) {
			h := newHarness(t)
			cause := errors.New("quota exceeded")
			if which == "narrative" {
				h.synth.narrativeErr = cause
			} else {
				h.synth.summaryErr = cause
			}

			result, err := h.pipeline.Run(context.Background(), validRequest(), nil)
			assert.Nil(t, result)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSynthesisFailed)
			assert.ErrorIs(t, err, cause)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, StepSynthesizeContent, stepErr.Step)

			calls := h.rec.list()
			assert.NotContains(t, calls, "render")
			assert.NotContains(t, calls, "deliver")
			assert.NotContains(t, calls, "complete")
		})
	}
}

func TestRun_RenderFailureSkipsDelivery(t *testing.T) {
	h := newHarness(t)
	h.renderer.err = &rendering.RenderError{Message: "font missing"}

	result, err := h.pipeline.Run(context.Background(), validRequest(), nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrRenderFailed)

	var renderErr *rendering.RenderError
	assert.ErrorAs(t, err, &renderErr)
	assert.NotContains(t, h.rec.list(), "deliver")
}

func TestRun_PersistFailureIsSoft(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("connection reset")

	result, err := h.pipeline.Run(context.Background(), validRequest(), nil)
	require.NoError(t, err)

	assert.True(t, result.EmailSent)
	require.Len(t, result.SoftFailures, 1)
	assert.Equal(t, StepPersistSelections, result.SoftFailures[0].Step)
	assert.Contains(t, result.SoftFailures[0].Error, "connection reset")

	warnings := h.logs.FilterMessage("soft step failed; continuing").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, StepPersistSelections, warnings[0].ContextMap()["step"])
}

func TestRun_CompletionFailureIsSoft(t *testing.T) {
	h := newHarness(t)
	h.completion.err = errors.New("session not found")

	result, err := h.pipeline.Run(context.Background(), validRequest(), nil)
	require.NoError(t, err)
	assert.True(t, result.EmailSent)
	require.Len(t, result.SoftFailures, 1)
	assert.Equal(t, StepMarkComplete, result.SoftFailures[0].Step)
}

func TestRun_DeliveryFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.deliverer.err = &delivery.SendError{Message: "smtp dial failed"}

	result, err := h.pipeline.Run(context.Background(), validRequest(), nil)
	require.NoError(t, err)

	assert.False(t, result.EmailSent)
	assert.Contains(t, result.DeliveryError, "smtp dial failed")
	assert.NotNil(t, result.Document, "earlier steps are not unwound")
	assert.Contains(t, h.rec.list(), "complete")
}

func TestRun_OptionalStoresSkipped(t *testing.T) {
	rec := &recorder{}
	p, err := New(Deps{
		Catalog:     testCatalog(t),
		Synthesizer: &fakeSynth{rec: rec, narrative: "text"},
		Renderer:    &fakeRenderer{rec: rec},
		Deliverer:   &fakeDeliverer{rec: rec},
	})
	require.NoError(t, err)

	var skipped []string
	result, err := p.Run(context.Background(), validRequest(), func(e ProgressEvent) {
		if e.Status == StatusSkipped {
			skipped = append(skipped, e.Step)
		}
	})
	require.NoError(t, err)
	assert.True(t, result.EmailSent)
	assert.Equal(t, []string{StepPersistSelections, StepMarkComplete}, skipped)
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.pipeline.Run(ctx, validRequest(), nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.rec.list())
}

func TestRun_CancelledDuringSynthesisNeverDelivers(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.synth.narrativeErr = nil
	p := h.pipeline
	p.deps.Synthesizer = cancellingSynth{fakeSynth: h.synth, cancel: cancel}

	result, err := p.Run(ctx, validRequest(), nil)
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, h.rec.list(), "deliver")
}

// cancellingSynth cancels the run's context after writing the narrative.
type cancellingSynth struct {
	*fakeSynth
	cancel context.CancelFunc
}

func (s cancellingSynth) Narrative(ctx context.Context, ranked []catalog.RankedValue, recipient string) (string, error) {
	out, err := s.fakeSynth.Narrative(ctx, ranked, recipient)
	s.cancel()
	return out, err
}

func TestRun_CancelledAfterDeliveryKeepsResult(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := h.pipeline
	p.deps.Deliverer = cancellingDeliverer{fakeDeliverer: h.deliverer, cancel: cancel}

	var events []ProgressEvent
	result, err := p.Run(ctx, validRequest(), func(e ProgressEvent) { events = append(events, e) })
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.EmailSent)
	assert.NotEmpty(t, result.Preview)
	require.Len(t, result.SoftFailures, 1)
	assert.Equal(t, StepMarkComplete, result.SoftFailures[0].Step)
	assert.Contains(t, result.SoftFailures[0].Error, context.Canceled.Error())
	assert.NotContains(t, h.rec.list(), "complete")

	last := events[len(events)-1]
	assert.Equal(t, StepMarkComplete, last.Step)
	assert.Equal(t, StatusSkipped, last.Status)
}

// cancellingDeliverer cancels the run's context after a successful send.
type cancellingDeliverer struct {
	*fakeDeliverer
	cancel context.CancelFunc
}

func (d cancellingDeliverer) Deliver(ctx context.Context, r delivery.Report) error {
	err := d.fakeDeliverer.Deliver(ctx, r)
	d.cancel()
	return err
}

func TestRunFail_DispatchesOnCriticality(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := &run{logger: zap.New(core)}
	result := &Result{}
	cause := errors.New("boom")

	err := r.fail(result, StepSynthesizeContent, cause)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.ErrorIs(t, err, cause)

	require.NoError(t, r.fail(result, StepDeliverReport, cause))
	assert.Equal(t, "boom", result.DeliveryError)
	assert.Empty(t, result.SoftFailures)

	require.NoError(t, r.fail(result, StepPersistSelections, cause))
	require.Len(t, result.SoftFailures, 1)
	assert.Equal(t, StepPersistSelections, result.SoftFailures[0].Step)

	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("é", PreviewLength+50)
	preview := Preview(long)
	assert.Equal(t, strings.Repeat("é", PreviewLength)+"...", preview)

	assert.Equal(t, "short...", Preview("short"))
}

func TestStepRegistry(t *testing.T) {
	expected := []string{
		StepPersistSelections, StepSynthesizeContent, StepRenderDocument, StepDeliverReport, StepMarkComplete,
	}
	require.Len(t, StepRegistry, len(expected))
	for i, name := range expected {
		assert.Equal(t, name, StepRegistry[i].Name)
		assert.NotEmpty(t, StepRegistry[i].Category)
	}

	def, ok := Lookup(StepRenderDocument)
	require.True(t, ok)
	assert.Equal(t, Hard, def.Criticality)
	assert.ErrorIs(t, def.Kind, ErrRenderFailed)

	def, ok = Lookup(StepPersistSelections)
	require.True(t, ok)
	assert.Equal(t, "soft", def.Criticality.String())

	_, ok = Lookup("unknown_step")
	assert.False(t, ok)
}

func TestRun_WithPDFRendererAndMailer(t *testing.T) {
	rec := &recorder{}
	transport := &capturingTransport{}
	p, err := New(Deps{
		Catalog:     testCatalog(t),
		Synthesizer: &fakeSynth{rec: rec, narrative: "# Introduction\n\nYour values.\n\n## Courage\n\n- Be brave\n"},
		Renderer:    rendering.NewPDFRenderer(""),
		Deliverer:   delivery.NewMailer(transport, "reports@example.com", "Values Report"),
	})
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC) }

	result, err := p.Run(context.Background(), validRequest(), nil)
	require.NoError(t, err)
	assert.True(t, result.EmailSent)
	assert.Equal(t, 3, result.Document.Pages)

	require.NotNil(t, transport.msg)
	assert.Equal(t, "ada@example.com", transport.msg.To)
	assert.Equal(t, delivery.Subject, transport.msg.Subject)
	assert.Contains(t, transport.msg.Text, "1. Courage")
	assert.Equal(t, result.Document.Data, transport.msg.Attachment.Data)
}

type capturingTransport struct {
	msg *delivery.Message
}

func (c *capturingTransport) Send(_ context.Context, msg *delivery.Message) error {
	c.msg = msg
	return nil
}
