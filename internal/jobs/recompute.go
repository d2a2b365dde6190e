package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tmajkow/coursepulse/internal/analytics"
	"github.com/tmajkow/coursepulse/internal/cache"
	"github.com/tmajkow/coursepulse/internal/event"
	"github.com/tmajkow/coursepulse/internal/stream"
	"github.com/tmajkow/coursepulse/internal/tracing"
)

// DirtyTracker tracks companies whose event sets changed since their
// reports were last computed.
type DirtyTracker struct {
	mu         sync.RWMutex
	dirtyFlags map[string]time.Time // companyID -> time marked dirty
}

// NewDirtyTracker creates a new DirtyTracker instance.
func NewDirtyTracker() *DirtyTracker {
	return &DirtyTracker{
		dirtyFlags: make(map[string]time.Time),
	}
}

// MarkDirty marks a company as needing report recomputation.
func (t *DirtyTracker) MarkDirty(companyID string) {
	t.mu.Lock()
	t.dirtyFlags[companyID] = time.Now()
	t.mu.Unlock()
}

// ClearDirty removes the dirty flag for a company after recomputation.
func (t *DirtyTracker) ClearDirty(companyID string) {
	t.mu.Lock()
	delete(t.dirtyFlags, companyID)
	t.mu.Unlock()
}

// DirtyCompanies returns the company IDs currently marked dirty.
// Returns a copy to avoid external modification.
func (t *DirtyTracker) DirtyCompanies() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	companies := make([]string, 0, len(t.dirtyFlags))
	for companyID := range t.dirtyFlags {
		companies = append(companies, companyID)
	}
	return companies
}

// IsDirty checks if a specific company is marked dirty.
func (t *DirtyTracker) IsDirty(companyID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.dirtyFlags[companyID]
	return ok
}

// RecomputeJobConfig configures the report recompute job.
type RecomputeJobConfig struct {
	// Interval is the duration between recompute cycles.
	Interval time.Duration
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for centralized background job tracking.
	Metrics *Metrics
	// Timeout for each recompute cycle.
	Timeout time.Duration
}

// DefaultRecomputeInterval is the default interval between recompute cycles.
const DefaultRecomputeInterval = 15 * time.Minute

// DefaultRecomputeTimeout is the default timeout for a single recompute cycle.
const DefaultRecomputeTimeout = time.Minute

// Notifier receives a refresh notice when a company's reports change.
// Satisfied by stream.Hub.
type Notifier interface {
	NotifyRefresh(event *stream.RefreshEvent)
}

// RecomputeJob periodically re-runs the analytics engine for dirty
// companies, refreshes the report cache, and notifies connected
// dashboards.
type RecomputeJob struct {
	config  RecomputeJobConfig
	tracker *DirtyTracker
	events  event.Repository
	engine  *analytics.Engine
	reports cache.ReportCache
	hub     Notifier

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRecomputeJob creates a new report recompute job. hub may be nil
// when no live dashboard notifications are wanted.
func NewRecomputeJob(
	config RecomputeJobConfig,
	tracker *DirtyTracker,
	events event.Repository,
	engine *analytics.Engine,
	reports cache.ReportCache,
	hub Notifier,
) *RecomputeJob {
	if config.Interval == 0 {
		config.Interval = DefaultRecomputeInterval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultRecomputeTimeout
	}

	return &RecomputeJob{
		config:  config,
		tracker: tracker,
		events:  events,
		engine:  engine,
		reports: reports,
		hub:     hub,
	}
}

// Start begins the periodic recompute job.
// Returns immediately; the job runs in a background goroutine.
func (j *RecomputeJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the recompute job to stop and waits for it to finish.
func (j *RecomputeJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *RecomputeJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// run is the main loop for the recompute job.
func (j *RecomputeJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("report recompute job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("report recompute job stopping due to stop signal")
			return
		case <-ticker.C:
			j.RecomputeDirtyCompanies(ctx)
		}
	}
}

// RecomputeDirtyCompanies processes all dirty companies and refreshes
// their cached reports. Exported so webhook handlers can trigger an
// out-of-band cycle after a burst of ingests.
func (j *RecomputeJob) RecomputeDirtyCompanies(parentCtx context.Context) {
	dirty := j.tracker.DirtyCompanies()
	if len(dirty) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	startTime := time.Now()
	var successCount int

	j.config.Logger.Info("recomputing reports", "dirty_count", len(dirty))

	for i, companyID := range dirty {
		select {
		case <-ctx.Done():
			j.config.Logger.Error("report recompute timeout exceeded",
				"processed", i,
				"total", len(dirty),
				"timeout", j.config.Timeout)
			j.finish(startTime, successCount, len(dirty))
			if j.config.Metrics != nil {
				j.config.Metrics.IncJobErrors(JobTypeReportRecompute, "timeout")
			}
			return
		default:
		}

		if err := j.recomputeCompany(ctx, companyID); err != nil {
			j.config.Logger.Error("failed to recompute reports",
				"company_id", companyID,
				"error", err)
			if j.config.Metrics != nil {
				j.config.Metrics.IncJobErrors(JobTypeReportRecompute, "recompute_error")
			}
			continue
		}

		j.tracker.ClearDirty(companyID)
		successCount++
	}

	j.finish(startTime, successCount, len(dirty))
}

// recomputeCompany rebuilds one company's report and publishes it.
func (j *RecomputeJob) recomputeCompany(ctx context.Context, companyID string) (err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "report_recompute")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx, attribute.String("company_id", companyID))

	events, err := j.events.ListByCompany(ctx, companyID)
	if err != nil {
		return err
	}

	report := j.engine.Analyze(events, time.Now().UTC())
	if err := j.reports.Set(ctx, companyID, report); err != nil {
		return err
	}

	if j.hub != nil {
		j.hub.NotifyRefresh(stream.NewRefreshEvent(
			companyID, report.GeneratedAt, report.StudentCount, report.EventCount))
	}
	return nil
}

// finish records cycle-level metrics and logs the outcome.
func (j *RecomputeJob) finish(startTime time.Time, successCount, total int) {
	duration := time.Since(startTime).Seconds()

	status := StatusSuccess
	if successCount < total {
		status = StatusFailure
	}
	if j.config.Metrics != nil {
		j.config.Metrics.IncJobsTotal(JobTypeReportRecompute, status)
		j.config.Metrics.ObserveJobDuration(JobTypeReportRecompute, duration)
	}

	j.config.Logger.Info("report recompute cycle finished",
		"recomputed", successCount,
		"total", total,
		"duration_seconds", duration)
}
