package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmajkow/coursepulse/internal/analytics"
	"github.com/tmajkow/coursepulse/internal/cache"
	"github.com/tmajkow/coursepulse/internal/event"
	"github.com/tmajkow/coursepulse/internal/export"
	"github.com/tmajkow/coursepulse/internal/insight"
	"github.com/tmajkow/coursepulse/internal/middleware"
	"github.com/tmajkow/coursepulse/internal/tier"
)

// Exporter publishes a report snapshot to object storage.
// Satisfied by export.Service.
type Exporter interface {
	Export(ctx context.Context, companyID string, report *analytics.DashboardReport) (*export.Result, error)
}

// AnalyticsHandlers serves the per-tenant analytics endpoints. Reports are
// read through the cache; a miss recomputes from the event store.
type AnalyticsHandlers struct {
	events   event.Repository
	engine   *analytics.Engine
	reports  cache.ReportCache
	insights insight.Generator
	exporter Exporter
	logger   *slog.Logger
}

// AnalyticsHandlersConfig configures the analytics handlers. Insights and
// Exporter are optional; the matching endpoints return a service-unavailable
// error when unset.
type AnalyticsHandlersConfig struct {
	Events   event.Repository
	Engine   *analytics.Engine
	Reports  cache.ReportCache
	Insights insight.Generator
	Exporter Exporter
	Logger   *slog.Logger
}

// NewAnalyticsHandlers creates analytics handlers.
func NewAnalyticsHandlers(config AnalyticsHandlersConfig) *AnalyticsHandlers {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsHandlers{
		events:   config.Events,
		engine:   config.Engine,
		reports:  config.Reports,
		insights: config.Insights,
		exporter: config.Exporter,
		logger:   logger,
	}
}

// DashboardResponse is the combined report with the sections the caller's
// plan unlocks. Gated sections are omitted rather than zeroed so clients can
// distinguish "locked" from "empty".
type DashboardResponse struct {
	GeneratedAt   time.Time                     `json:"generated_at"`
	StudentCount  int                           `json:"student_count"`
	EventCount    int                           `json:"event_count"`
	DroppedEvents int                           `json:"dropped_events,omitempty"`
	Features      []string                      `json:"features"`
	Consistency   []analytics.ConsistencyReport `json:"consistency"`
	Commitment    *analytics.CommitmentOverview `json:"commitment"`
	Breakthroughs *analytics.BreakthroughReport `json:"breakthroughs,omitempty"`
	Pathways      *analytics.PathwayReport      `json:"pathways,omitempty"`
}

// loadReport serves a tenant's report from the cache, recomputing from the
// event store on a miss. Cache failures degrade to recompute; a failed Set
// is logged and does not fail the request.
func (h *AnalyticsHandlers) loadReport(ctx context.Context, companyID string) (*analytics.DashboardReport, error) {
	if h.reports != nil {
		report, hit, err := h.reports.Get(ctx, companyID)
		if err != nil {
			h.logger.WarnContext(ctx, "report cache read failed", "company_id", companyID, "error", err)
		} else if hit {
			return report, nil
		}
	}

	events, err := h.events.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	report := h.engine.Analyze(events, time.Now().UTC())

	if h.reports != nil {
		if err := h.reports.Set(ctx, companyID, report); err != nil {
			h.logger.WarnContext(ctx, "report cache write failed", "company_id", companyID, "error", err)
		}
	}
	return report, nil
}

// requireTenant resolves the authenticated company id or writes a 401.
func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	companyID := middleware.GetCompanyID(r.Context())
	if companyID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return "", false
	}
	return companyID, true
}

// requireFeature checks the caller's plan against a gated feature,
// writing a 403 when the plan does not unlock it.
func requireFeature(w http.ResponseWriter, r *http.Request, feature string) bool {
	plan := middleware.GetPlan(r.Context())
	if !tier.Allows(plan, feature) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeUpgradeRequired)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeUpgradeRequired,
			"Your plan does not include "+feature+" analytics")
		return false
	}
	return true
}

// Dashboard handles GET /analytics/dashboard - the combined report, with
// sections the plan does not unlock omitted.
func (h *AnalyticsHandlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	companyID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	report, err := h.loadReport(r.Context(), companyID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build dashboard report", "company_id", companyID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to build report")
		return
	}

	plan := middleware.GetPlan(r.Context())
	resp := DashboardResponse{
		GeneratedAt:   report.GeneratedAt,
		StudentCount:  report.StudentCount,
		EventCount:    report.EventCount,
		DroppedEvents: report.DroppedEvents,
		Features:      tier.Features(plan),
		Consistency:   report.Consistency,
		Commitment:    &report.Commitment,
	}
	if tier.Allows(plan, tier.FeatureBreakthroughs) {
		resp.Breakthroughs = &report.Breakthroughs
	}
	if tier.Allows(plan, tier.FeaturePathways) {
		resp.Pathways = &report.Pathways
	}

	writeJSON(w, r.Context(), http.StatusOK, resp)
}

// Consistency handles GET /analytics/consistency.
func (h *AnalyticsHandlers) Consistency(w http.ResponseWriter, r *http.Request) {
	h.serveSection(w, r, tier.FeatureConsistency, func(report *analytics.DashboardReport) any {
		return struct {
			GeneratedAt time.Time                     `json:"generated_at"`
			Students    []analytics.ConsistencyReport `json:"students"`
		}{report.GeneratedAt, report.Consistency}
	})
}

// Breakthroughs handles GET /analytics/breakthroughs (pro and above).
func (h *AnalyticsHandlers) Breakthroughs(w http.ResponseWriter, r *http.Request) {
	h.serveSection(w, r, tier.FeatureBreakthroughs, func(report *analytics.DashboardReport) any {
		return report.Breakthroughs
	})
}

// Pathways handles GET /analytics/pathways (pro and above).
func (h *AnalyticsHandlers) Pathways(w http.ResponseWriter, r *http.Request) {
	h.serveSection(w, r, tier.FeaturePathways, func(report *analytics.DashboardReport) any {
		return report.Pathways
	})
}

// Commitment handles GET /analytics/commitment.
func (h *AnalyticsHandlers) Commitment(w http.ResponseWriter, r *http.Request) {
	h.serveSection(w, r, tier.FeatureCommitment, func(report *analytics.DashboardReport) any {
		return report.Commitment
	})
}

// serveSection is the shared flow of the per-metric endpoints: method check,
// tenant resolution, tier gate, report load, section projection.
func (h *AnalyticsHandlers) serveSection(w http.ResponseWriter, r *http.Request, feature string, project func(*analytics.DashboardReport) any) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	companyID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	if !requireFeature(w, r, feature) {
		return
	}

	report, err := h.loadReport(r.Context(), companyID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build report", "company_id", companyID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to build report")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, project(report))
}

// StudentResponse is the single-student drill-down. Breakthrough is present
// only when detected and the plan unlocks breakthrough analytics.
type StudentResponse struct {
	StudentID    string                         `json:"student_id"`
	EventCount   int                            `json:"event_count"`
	FirstSeen    time.Time                      `json:"first_seen"`
	LastSeen     time.Time                      `json:"last_seen"`
	Consistency  analytics.ConsistencyReport    `json:"consistency"`
	Commitment   analytics.CommitmentReport     `json:"commitment"`
	Breakthrough *analytics.StudentBreakthrough `json:"breakthrough,omitempty"`
}

// Student handles GET /analytics/students/{id} - one student's metrics.
func (h *AnalyticsHandlers) Student(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	companyID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	studentID := strings.TrimPrefix(r.URL.Path, "/analytics/students/")
	if studentID == "" || strings.Contains(studentID, "/") {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Student ID is required")
		return
	}

	events, err := h.events.ListByCompany(r.Context(), companyID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list events", "company_id", companyID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load events")
		return
	}

	journeys := event.BuildJourneys(events)
	journey, ok := journeys[studentID]
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeStudentNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeStudentNotFound, "Student not found")
		return
	}

	now := time.Now().UTC()
	thresholds := h.engine.Thresholds()
	resp := StudentResponse{
		StudentID:   studentID,
		EventCount:  len(journey),
		FirstSeen:   journey.Start(),
		LastSeen:    journey.End(),
		Consistency: analytics.AnalyzeConsistency(journey, now, thresholds),
		Commitment:  analytics.AnalyzeCommitment(journey, analytics.AccountStart(journey), thresholds),
	}
	if tier.Allows(middleware.GetPlan(r.Context()), tier.FeatureBreakthroughs) {
		if bt, found := analytics.DetectBreakthrough(journey, thresholds); found {
			resp.Breakthrough = &bt
		}
	}

	writeJSON(w, r.Context(), http.StatusOK, resp)
}

// InsightResponse carries the generated narrative summary.
type InsightResponse struct {
	GeneratedAt time.Time `json:"generated_at"`
	Insight     string    `json:"insight"`
}

// Insight handles GET /analytics/insight (pro and above) - turns the current
// report into a short prose summary via the configured completion backend.
func (h *AnalyticsHandlers) Insight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	companyID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	if !requireFeature(w, r, tier.FeatureInsight) {
		return
	}
	if h.insights == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInsightUnavailable)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodeInsightUnavailable, "Insight generation is not configured")
		return
	}

	report, err := h.loadReport(r.Context(), companyID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build report", "company_id", companyID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to build report")
		return
	}

	text, err := h.insights.Generate(r.Context(), report)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "insight generation failed", "company_id", companyID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInsightUnavailable)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodeInsightUnavailable, "Insight generation failed")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, InsightResponse{
		GeneratedAt: time.Now().UTC(),
		Insight:     text,
	})
}

// ExportResponse describes a published report snapshot.
type ExportResponse struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// Export handles POST /analytics/export (enterprise) - uploads the current
// report as a JSON snapshot to object storage and returns a presigned URL.
func (h *AnalyticsHandlers) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	companyID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	if !requireFeature(w, r, tier.FeatureExport) {
		return
	}
	if h.exporter == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeExportUnavailable)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodeExportUnavailable, "Export is not configured")
		return
	}

	report, err := h.loadReport(r.Context(), companyID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build report", "company_id", companyID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to build report")
		return
	}

	result, err := h.exporter.Export(r.Context(), companyID, report)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "report export failed", "company_id", companyID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeExportUnavailable)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodeExportUnavailable, "Report export failed")
		return
	}

	writeJSON(w, r.Context(), http.StatusCreated, ExportResponse{
		Key:       result.Key,
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt,
		SizeBytes: result.SizeBytes,
	})
}
