package analytics

import (
	"math"
	"time"

	"github.com/tmajkow/coursepulse/internal/event"
)

// Commitment score bands.
const (
	BandHigh   = "high"   // score 70-100
	BandMedium = "medium" // score 40-69
	BandLow    = "low"    // score 0-39, at risk
)

// Band boundaries.
const (
	bandHighFloor   = 70
	bandMediumFloor = 40
)

// CommitmentReport scores one student's first-week engagement velocity.
type CommitmentReport struct {
	StudentID    string        `json:"student_id"`
	Score        int           `json:"score"` // 0-100
	Band         string        `json:"band"`  // high, medium, low
	OnsetLatency time.Duration `json:"onset_latency_ns"`
	OnsetLabel   string        `json:"onset_latency"`
	ActiveDays   int           `json:"active_days"` // distinct UTC days with activity in the window
	Breadth      int           `json:"breadth"`     // distinct content ids touched in the window
}

// CommitmentOverview aggregates commitment scores across a cohort.
type CommitmentOverview struct {
	AverageScore float64            `json:"average_score"`
	HighCount    int                `json:"high_count"`
	MediumCount  int                `json:"medium_count"`
	AtRiskCount  int                `json:"at_risk_count"`
	Students     []CommitmentReport `json:"students"`
}

// AnalyzeCommitment scores a student's early-lifecycle engagement from the
// first 7 days after account start: how fast they started (onset latency),
// how many distinct days they showed up, and how many distinct content items
// they touched. Subscription events mark the account lifecycle and do not
// count as engagement here. A student with zero tracked events in the window
// scores 0.
func AnalyzeCommitment(journey event.Journey, joinedAt time.Time, t *Thresholds) CommitmentReport {
	report := CommitmentReport{Band: BandLow}
	if len(journey) > 0 {
		report.StudentID = journey[0].StudentID
	}

	window := t.CommitmentWindow()
	windowEnd := joinedAt.Add(window)

	days := make(map[string]struct{})
	contents := make(map[string]struct{})
	var firstInWindow *time.Time
	for _, ev := range journey {
		if ev.Kind == event.KindSubscription {
			continue
		}
		if ev.Timestamp.Before(joinedAt) || !ev.Timestamp.Before(windowEnd) {
			continue
		}
		if firstInWindow == nil {
			ts := ev.Timestamp
			firstInWindow = &ts
		}
		days[ev.Timestamp.UTC().Format("2006-01-02")] = struct{}{}
		contents[ev.ContentID] = struct{}{}
	}

	if firstInWindow == nil {
		return report
	}

	onset := firstInWindow.Sub(joinedAt)
	report.OnsetLatency = onset
	report.OnsetLabel = FormatDuration(onset)
	report.ActiveDays = len(days)
	report.Breadth = len(contents)

	onsetScore := clamp01(1 - onset.Hours()/t.Commitment.OnsetDecayHours)
	daysScore := clamp01(float64(report.ActiveDays) / float64(t.Windows.CommitmentDays))
	breadthScore := clamp01(float64(report.Breadth) / float64(t.Commitment.BreadthTarget))

	combined := t.Commitment.OnsetWeight*onsetScore +
		t.Commitment.ActiveDaysWeight*daysScore +
		t.Commitment.BreadthWeight*breadthScore
	report.Score = int(math.Round(100 * clamp01(combined)))

	switch {
	case report.Score >= bandHighFloor:
		report.Band = BandHigh
	case report.Score >= bandMediumFloor:
		report.Band = BandMedium
	default:
		report.Band = BandLow
	}
	return report
}

// AnalyzeCommitmentAll scores every journey and aggregates the cohort view.
// The account start per student is the earliest subscription event when one
// exists, otherwise the first event.
func AnalyzeCommitmentAll(journeys map[string]event.Journey, t *Thresholds) CommitmentOverview {
	overview := CommitmentOverview{Students: []CommitmentReport{}}

	var total int
	for _, id := range event.StudentIDs(journeys) {
		journey := journeys[id]
		report := AnalyzeCommitment(journey, AccountStart(journey), t)
		overview.Students = append(overview.Students, report)
		total += report.Score
		switch report.Band {
		case BandHigh:
			overview.HighCount++
		case BandMedium:
			overview.MediumCount++
		default:
			overview.AtRiskCount++
		}
	}

	if len(overview.Students) > 0 {
		overview.AverageScore = roundRate(float64(total) / float64(len(overview.Students)))
	}
	return overview
}

// AccountStart resolves a student's account start: the earliest subscription
// event if present, else the first event in the journey.
func AccountStart(journey event.Journey) time.Time {
	for _, ev := range journey {
		if ev.Kind == event.KindSubscription {
			return ev.Timestamp
		}
	}
	return journey.Start()
}
