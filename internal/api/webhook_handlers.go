package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tmajkow/coursepulse/internal/event"
	"github.com/tmajkow/coursepulse/internal/jobs"
	"github.com/tmajkow/coursepulse/internal/middleware"
	"github.com/tmajkow/coursepulse/internal/webhook"
)

// maxWebhookBodyBytes caps a delivery body at 1 MiB.
const maxWebhookBodyBytes = 1 << 20

// WebhookHandlers ingests Whop webhook deliveries into the event store.
type WebhookHandlers struct {
	secret     string
	deliveries webhook.Repository
	events     event.Repository
	tracker    *jobs.DirtyTracker
	logger     *slog.Logger
}

// NewWebhookHandlers creates a new WebhookHandlers instance. The tracker is
// optional; when set, ingested events mark the tenant dirty so the recompute
// job refreshes its cached report.
func NewWebhookHandlers(
	secret string,
	deliveries webhook.Repository,
	events event.Repository,
	tracker *jobs.DirtyTracker,
	logger *slog.Logger,
) *WebhookHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandlers{
		secret:     secret,
		deliveries: deliveries,
		events:     events,
		tracker:    tracker,
		logger:     logger,
	}
}

// HandleWhopWebhook processes Whop webhook deliveries with signature
// verification. POST /webhooks/whop
//
// Deliveries are deduplicated by delivery id; replays and event types we do
// not ingest are acknowledged with 200 so Whop stops retrying them.
func (h *WebhookHandlers) HandleWhopWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body")
		return
	}

	signature := r.Header.Get(webhook.SignatureHeader)
	if signature == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidSignature)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSignature, "Missing "+webhook.SignatureHeader+" header")
		return
	}
	if !webhook.VerifySignature(body, signature, h.secret) {
		h.logger.WarnContext(ctx, "webhook signature verification failed")
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidSignature)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSignature, "Invalid signature")
		return
	}

	payload, raw, err := webhook.Parse(body)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrIgnoredEventType):
			h.logger.InfoContext(ctx, "ignoring webhook event type",
				"event_type", payload.Type, "delivery_id", payload.ID)
			w.WriteHeader(http.StatusOK)
			return
		case errors.Is(err, webhook.ErrMissingField):
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Webhook payload missing required field")
			return
		default:
			ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in webhook payload")
			return
		}
	}

	h.logger.InfoContext(ctx, "webhook delivery received",
		"event_type", payload.Type, "delivery_id", payload.ID, "company_id", payload.CompanyID)

	if err := h.deliveries.Record(ctx, payload.ID, payload.Type, payload.CompanyID); err != nil {
		if errors.Is(err, webhook.ErrAlreadyProcessed) {
			h.logger.InfoContext(ctx, "webhook delivery already processed, ignoring", "delivery_id", payload.ID)
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.ErrorContext(ctx, "failed to record webhook delivery", "delivery_id", payload.ID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to process webhook")
		return
	}

	normalized, err := event.Normalize(raw)
	if err != nil {
		// Delivery has no timestamp. It stays recorded so a replay with the
		// same id is not re-attempted; Whop gets a 200 either way.
		h.logger.WarnContext(ctx, "dropping unparseable webhook event",
			"delivery_id", payload.ID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.events.Insert(ctx, payload.CompanyID, normalized); err != nil {
		h.logger.ErrorContext(ctx, "failed to store interaction event",
			"delivery_id", payload.ID, "company_id", payload.CompanyID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to store event")
		return
	}

	if h.tracker != nil {
		h.tracker.MarkDirty(payload.CompanyID)
	}

	w.WriteHeader(http.StatusOK)
}
