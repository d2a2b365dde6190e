package analytics

import (
	"sort"
	"time"

	"github.com/tmajkow/coursepulse/internal/event"
)

// StudentBreakthrough describes one student's detected aha moment.
type StudentBreakthrough struct {
	StudentID          string        `json:"student_id"`
	ContentID          string        `json:"content_id"`
	ContentLabel       string        `json:"content_label"`
	TimeToBreakthrough time.Duration `json:"time_to_breakthrough_ns"`
	TimeToLabel        string        `json:"time_to_breakthrough"`
	EventsBefore       int           `json:"events_before"`
	EventsAfter        int           `json:"events_after"`
}

// BreakthroughTrigger counts how many students broke through at a content item.
type BreakthroughTrigger struct {
	ContentID    string `json:"content_id"`
	ContentLabel string `json:"content_label"`
	Students     int    `json:"students"`
}

// BreakthroughReport aggregates aha-moment detection across students.
type BreakthroughReport struct {
	EligibleStudents         int                   `json:"eligible_students"`
	StudentsWithBreakthrough int                   `json:"students_with_breakthrough"`
	BreakthroughRate         float64               `json:"breakthrough_rate"` // percentage, one decimal
	AverageTimeToLabel       string                `json:"average_time_to_breakthrough"`
	Triggers                 []BreakthroughTrigger `json:"triggers"`
	Students                 []StudentBreakthrough `json:"students"`
}

// DetectBreakthrough finds the earliest engagement event in a journey after
// which activity spikes relative to the window just before it. The candidate
// event itself counts toward the before baseline; the after window is
// half-open so the candidate is not double counted. Returns false when the
// journey has under the minimum history or no event qualifies.
func DetectBreakthrough(journey event.Journey, t *Thresholds) (StudentBreakthrough, bool) {
	minHistory := time.Duration(t.Breakthrough.MinHistoryDays) * 24 * time.Hour
	if len(journey) == 0 || journey.Span() < minHistory {
		return StudentBreakthrough{}, false
	}

	before := t.BeforeWindow()
	after := t.AfterWindow()
	start := journey.Start()

	for i, candidate := range journey {
		if candidate.Kind != event.KindEngagement {
			continue
		}

		var eventsBefore, eventsAfter int
		windowStart := candidate.Timestamp.Add(-before)
		windowEnd := candidate.Timestamp.Add(after)

		// The journey is sorted, but the windows are small relative to the
		// journey, so a scan around i is clearer than binary search here.
		for k := i; k >= 0; k-- {
			ts := journey[k].Timestamp
			if ts.Before(windowStart) {
				break
			}
			eventsBefore++
		}
		for k := i + 1; k < len(journey); k++ {
			ts := journey[k].Timestamp
			if ts.After(windowEnd) {
				break
			}
			eventsAfter++
		}

		spiked := false
		if eventsBefore == 0 {
			spiked = eventsAfter > 0
		} else {
			spiked = float64(eventsAfter) > float64(eventsBefore)*t.Breakthrough.SpikeRatio
		}
		if !spiked {
			continue
		}

		// First chronological qualifier wins.
		elapsed := candidate.Timestamp.Sub(start)
		return StudentBreakthrough{
			StudentID:          candidate.StudentID,
			ContentID:          candidate.ContentID,
			ContentLabel:       HumanizeContentID(candidate.ContentID),
			TimeToBreakthrough: elapsed,
			TimeToLabel:        FormatDuration(elapsed),
			EventsBefore:       eventsBefore,
			EventsAfter:        eventsAfter,
		}, true
	}

	return StudentBreakthrough{}, false
}

// AnalyzeBreakthroughs runs breakthrough detection across all journeys and
// aggregates the rate, trigger distribution, and time-to-breakthrough stats.
// Only students with at least the minimum history count as eligible.
func AnalyzeBreakthroughs(journeys map[string]event.Journey, t *Thresholds) BreakthroughReport {
	report := BreakthroughReport{
		Triggers: []BreakthroughTrigger{},
		Students: []StudentBreakthrough{},
	}

	minHistory := time.Duration(t.Breakthrough.MinHistoryDays) * 24 * time.Hour
	triggerCounts := make(map[string]int)
	var totalTime time.Duration

	for _, id := range event.StudentIDs(journeys) {
		journey := journeys[id]
		if journey.Span() < minHistory {
			continue
		}
		report.EligibleStudents++

		bt, ok := DetectBreakthrough(journey, t)
		if !ok {
			continue
		}
		report.StudentsWithBreakthrough++
		report.Students = append(report.Students, bt)
		triggerCounts[bt.ContentID]++
		totalTime += bt.TimeToBreakthrough
	}

	if report.EligibleStudents > 0 {
		report.BreakthroughRate = roundRate(float64(report.StudentsWithBreakthrough) / float64(report.EligibleStudents) * 100)
	}
	if report.StudentsWithBreakthrough > 0 {
		avg := totalTime / time.Duration(report.StudentsWithBreakthrough)
		report.AverageTimeToLabel = FormatDuration(avg)
	}

	for contentID, students := range triggerCounts {
		report.Triggers = append(report.Triggers, BreakthroughTrigger{
			ContentID:    contentID,
			ContentLabel: HumanizeContentID(contentID),
			Students:     students,
		})
	}
	sort.Slice(report.Triggers, func(i, k int) bool {
		if report.Triggers[i].Students != report.Triggers[k].Students {
			return report.Triggers[i].Students > report.Triggers[k].Students
		}
		return report.Triggers[i].ContentID < report.Triggers[k].ContentID
	})

	return report
}
