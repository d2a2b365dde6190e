package event

// Normalize coerces a raw record into a canonical InteractionEvent.
// Timestamp is mandatory; ErrUnparseable is returned when it is absent.
// All other fields default: content id resolves from the explicit content
// field, then the action field, then ContentUnknown; kind defaults to
// KindActivity. Timestamps are converted to UTC so weekday and calendar-day
// bucketing downstream is timezone independent.
func Normalize(raw RawEvent) (InteractionEvent, error) {
	if raw.Timestamp == nil || raw.Timestamp.IsZero() {
		return InteractionEvent{}, ErrUnparseable
	}

	contentID := raw.ContentID
	if contentID == "" {
		contentID = raw.Action
	}
	if contentID == "" {
		contentID = ContentUnknown
	}

	kind := raw.Kind
	switch kind {
	case KindActivity, KindEngagement, KindSubscription:
	default:
		kind = KindActivity
	}

	return InteractionEvent{
		StudentID: raw.StudentID,
		ContentID: contentID,
		Kind:      kind,
		Timestamp: raw.Timestamp.UTC(),
	}, nil
}

// NormalizeAll normalizes a batch of raw records, dropping unparseable ones.
// It returns the normalized events and the number of dropped records so the
// caller can log the loss without failing the batch.
func NormalizeAll(raws []RawEvent) ([]InteractionEvent, int) {
	events := make([]InteractionEvent, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		ev, err := Normalize(raw)
		if err != nil {
			dropped++
			continue
		}
		events = append(events, ev)
	}
	return events, dropped
}
