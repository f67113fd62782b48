package pipeline

// Step names, in execution order.
const (
	StepPersistSelections = "persist_selections"
	StepSynthesizeContent = "synthesize_content"
	StepRenderDocument    = "render_document"
	StepDeliverReport     = "deliver_report"
	StepMarkComplete      = "mark_complete"
)

// Step categories.
const (
	CategoryStorage   = "storage"
	CategorySynthesis = "synthesis"
	CategoryRendering = "rendering"
	CategoryDelivery  = "delivery"
)

// Step statuses reported through ProgressEvent.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Criticality says what a step's failure does to the run.
type Criticality int

const (
	// Hard failures abort the run.
	Hard Criticality = iota
	// Soft failures are logged and recorded; the run continues.
	Soft
	// Reported failures are surfaced in the Result without failing the run.
	Reported
)

func (c Criticality) String() string {
	switch c {
	case Hard:
		return "hard"
	case Soft:
		return "soft"
	case Reported:
		return "reported"
	default:
		return "unknown"
	}
}

// StepDefinition describes one pipeline step. Kind is the sentinel a hard
// failure of the step wraps.
type StepDefinition struct {
	Name        string
	Category    string
	Criticality Criticality
	Kind        error
}

// StepRegistry lists every step in execution order. Run handles each step's
// failure according to its Criticality.
var StepRegistry = []StepDefinition{
	{Name: StepPersistSelections, Category: CategoryStorage, Criticality: Soft},
	{Name: StepSynthesizeContent, Category: CategorySynthesis, Criticality: Hard, Kind: ErrSynthesisFailed},
	{Name: StepRenderDocument, Category: CategoryRendering, Criticality: Hard, Kind: ErrRenderFailed},
	{Name: StepDeliverReport, Category: CategoryDelivery, Criticality: Reported},
	{Name: StepMarkComplete, Category: CategoryStorage, Criticality: Soft},
}

// Lookup returns the definition of a step.
func Lookup(name string) (StepDefinition, bool) {
	for _, def := range StepRegistry {
		if def.Name == name {
			return def, true
		}
	}
	return StepDefinition{}, false
}

func category(step string) string {
	def, _ := Lookup(step)
	return def.Category
}
