package analytics

import (
	"sync"
	"time"

	"github.com/tmajkow/coursepulse/internal/event"
)

// DashboardReport bundles every metric for one tenant's dashboard request.
// It is a plain value object suitable for direct JSON serialization.
type DashboardReport struct {
	GeneratedAt   time.Time           `json:"generated_at"`
	StudentCount  int                 `json:"student_count"`
	EventCount    int                 `json:"event_count"`
	DroppedEvents int                 `json:"dropped_events,omitempty"`
	Consistency   []ConsistencyReport `json:"consistency"`
	Breakthroughs BreakthroughReport  `json:"breakthroughs"`
	Pathways      PathwayReport       `json:"pathways"`
	Commitment    CommitmentOverview  `json:"commitment"`
}

// Engine runs the four analyzers over one normalized event set. Analyzers
// are pure and independent, so they run concurrently; the engine itself
// holds no mutable state and is safe for use from multiple goroutines.
type Engine struct {
	thresholds *Thresholds
}

// NewEngine creates an analytics engine. A nil thresholds uses the defaults.
func NewEngine(t *Thresholds) *Engine {
	if t == nil {
		t = DefaultThresholds()
	}
	return &Engine{thresholds: t}
}

// Thresholds returns the engine's threshold configuration.
func (e *Engine) Thresholds() *Thresholds {
	return e.thresholds
}

// Analyze builds journeys from the event set and runs every analyzer,
// returning a combined report. With zero events the report carries empty
// lists and zero counts rather than an error.
func (e *Engine) Analyze(events []event.InteractionEvent, now time.Time) *DashboardReport {
	journeys := event.BuildJourneys(events)

	report := &DashboardReport{
		GeneratedAt:  now,
		StudentCount: len(journeys),
		EventCount:   len(events),
	}

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		report.Consistency = AnalyzeConsistencyAll(journeys, now, e.thresholds)
	}()
	go func() {
		defer wg.Done()
		report.Breakthroughs = AnalyzeBreakthroughs(journeys, e.thresholds)
	}()
	go func() {
		defer wg.Done()
		report.Pathways = AnalyzePathways(journeys, e.thresholds)
	}()
	go func() {
		defer wg.Done()
		report.Commitment = AnalyzeCommitmentAll(journeys, e.thresholds)
	}()
	wg.Wait()

	if report.Consistency == nil {
		report.Consistency = []ConsistencyReport{}
	}
	return report
}

// AnalyzeRaw normalizes raw records first, dropping unparseable ones, then
// analyzes. The dropped count is surfaced on the report so callers can log
// data loss without failing the request.
func (e *Engine) AnalyzeRaw(raws []event.RawEvent, now time.Time) *DashboardReport {
	events, dropped := event.NormalizeAll(raws)
	report := e.Analyze(events, now)
	report.DroppedEvents = dropped
	return report
}
