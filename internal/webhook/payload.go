package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tmajkow/coursepulse/internal/event"
)

// Delivery event types we ingest. Anything else is acknowledged and ignored.
const (
	TypeActivity          = "course.activity"
	TypeEngagement        = "course.engagement"
	TypeMembershipValid   = "membership.went_valid"
	TypeMembershipRenewed = "membership.renewed"
	TypeMembershipInvalid = "membership.went_invalid"
)

// ErrIgnoredEventType marks a delivery whose type we do not ingest.
// Handlers should acknowledge the delivery without storing anything.
var ErrIgnoredEventType = errors.New("webhook event type not ingested")

// ErrMissingField is returned when a delivery lacks a required field.
var ErrMissingField = errors.New("webhook payload missing required field")

// Payload is the envelope Whop posts to our webhook endpoint.
type Payload struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	CompanyID string      `json:"company_id"`
	Data      PayloadData `json:"data"`
}

// PayloadData carries the event body. Fields beyond these are ignored.
type PayloadData struct {
	UserID    string     `json:"user_id"`
	ContentID string     `json:"content_id,omitempty"`
	Action    string     `json:"action,omitempty"`
	PlanID    string     `json:"plan_id,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Parse decodes a delivery body and maps it onto a RawEvent.
// The raw event keeps loose typing; defaulting is the normalizer's job.
// Membership lifecycle events become subscription events anchored on the
// plan id so commitment scoring can use the join date without counting
// billing churn as learning activity.
func Parse(body []byte) (*Payload, event.RawEvent, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, event.RawEvent{}, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	if p.ID == "" || p.CompanyID == "" {
		return &p, event.RawEvent{}, ErrMissingField
	}
	if p.Data.UserID == "" {
		return &p, event.RawEvent{}, ErrMissingField
	}

	raw := event.RawEvent{
		StudentID: p.Data.UserID,
		Timestamp: p.Data.Timestamp,
	}

	switch p.Type {
	case TypeActivity:
		raw.Kind = event.KindActivity
		raw.ContentID = p.Data.ContentID
		raw.Action = p.Data.Action
	case TypeEngagement:
		raw.Kind = event.KindEngagement
		raw.ContentID = p.Data.ContentID
		raw.Action = p.Data.Action
	case TypeMembershipValid, TypeMembershipRenewed:
		raw.Kind = event.KindSubscription
		raw.ContentID = p.Data.PlanID
	case TypeMembershipInvalid:
		// Cancellations carry no learning signal; acknowledge and drop.
		return &p, event.RawEvent{}, ErrIgnoredEventType
	default:
		return &p, event.RawEvent{}, ErrIgnoredEventType
	}

	return &p, raw, nil
}
