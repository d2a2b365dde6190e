// Package event provides the canonical interaction event model, normalization
// of raw event records, and journey construction for the analytics engine.
package event

import (
	"errors"
	"time"
)

// Kind classifies an interaction event.
const (
	// KindActivity represents a passive touch such as a page view or module open.
	KindActivity = "activity"

	// KindEngagement represents a deliberate high-intent action such as joining
	// a live session or completing a quiz checkpoint.
	KindEngagement = "engagement"

	// KindSubscription represents a billing lifecycle event (join, renewal).
	KindSubscription = "subscription"
)

// ContentUnknown is the sentinel content id used when a raw record carries no
// content or action identifier.
const ContentUnknown = "unknown"

// ErrUnparseable is returned when a raw record has no timestamp.
// Callers should drop the record and continue with the rest of the batch.
var ErrUnparseable = errors.New("event record has no timestamp")

// InteractionEvent is the canonical, normalized event shape consumed by all
// analyzers. Values are immutable after construction.
type InteractionEvent struct {
	StudentID string    `json:"student_id"`
	ContentID string    `json:"content_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// RawEvent is a loosely typed event record as delivered by the persistence
// layer or a webhook payload. All fields except Timestamp are optional;
// defaulting happens in Normalize, not in the analyzers.
type RawEvent struct {
	StudentID string     `json:"student_id"`
	ContentID string     `json:"content_id,omitempty"`
	Action    string     `json:"action,omitempty"`
	Kind      string     `json:"kind,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Journey is one student's content touches ordered ascending by timestamp.
// Equal timestamps preserve their relative input order.
type Journey []InteractionEvent

// Start returns the timestamp of the first event in the journey.
// The zero time is returned for an empty journey.
func (j Journey) Start() time.Time {
	if len(j) == 0 {
		return time.Time{}
	}
	return j[0].Timestamp
}

// End returns the timestamp of the last event in the journey.
// The zero time is returned for an empty journey.
func (j Journey) End() time.Time {
	if len(j) == 0 {
		return time.Time{}
	}
	return j[len(j)-1].Timestamp
}

// Span returns the duration between the first and last event.
func (j Journey) Span() time.Duration {
	if len(j) == 0 {
		return 0
	}
	return j.End().Sub(j.Start())
}
