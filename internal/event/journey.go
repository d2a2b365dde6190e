package event

import "sort"

// BuildJourneys groups normalized events by student and sorts each group
// chronologically. The sort is stable: events with equal timestamps keep
// their relative input order, so repeated calls over the same slice produce
// identical journeys. Students with zero events never appear in the result.
//
// Total cost is O(n log n) in the event count: one grouping pass plus a
// stable sort per group.
func BuildJourneys(events []InteractionEvent) map[string]Journey {
	journeys := make(map[string]Journey)
	for _, ev := range events {
		journeys[ev.StudentID] = append(journeys[ev.StudentID], ev)
	}

	for _, journey := range journeys {
		sort.SliceStable(journey, func(i, k int) bool {
			return journey[i].Timestamp.Before(journey[k].Timestamp)
		})
	}

	return journeys
}

// StudentIDs returns the student ids present in a journey map in sorted
// order, for deterministic iteration in reports and tests.
func StudentIDs(journeys map[string]Journey) []string {
	ids := make([]string, 0, len(journeys))
	for id := range journeys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
