package analytics

import (
	"math"
	"time"

	"github.com/tmajkow/coursepulse/internal/event"
)

// Engagement pattern tiers.
const (
	PatternHigh   = "high"
	PatternMedium = "medium"
	PatternLow    = "low"
)

// singleEventScoreCap bounds the score of a student with exactly one event,
// which must always land in the lowest band regardless of window math.
const singleEventScoreCap = 25

// ConsistencyReport scores how regularly one student engages, rewarding a
// repeated weekday cadence over equal-volume-but-scattered activity.
type ConsistencyReport struct {
	StudentID        string  `json:"student_id"`
	Score            int     `json:"score"`          // 0-100
	WeeksObserved    int     `json:"weeks_observed"` // 7-day windows from the first event to now
	WeeksActive      int     `json:"weeks_active"`   // windows with at least one event
	ActiveWeekRatio  float64 `json:"active_week_ratio"`
	DistinctWeekdays int     `json:"distinct_weekdays"` // UTC weekdays touched
	Pattern          string  `json:"pattern"`           // high, medium, low
	LowConfidence    bool    `json:"low_confidence"`    // under one full week of history
}

// AnalyzeConsistency scores a student's week-over-week regularity as of now.
// The journey is partitioned into fixed 7-day windows anchored at the first
// event; the active-window ratio forms the base score and a low count of
// distinct UTC weekdays earns a clustering bonus.
func AnalyzeConsistency(journey event.Journey, now time.Time, t *Thresholds) ConsistencyReport {
	if len(journey) == 0 {
		return ConsistencyReport{Pattern: PatternLow, LowConfidence: true}
	}

	first := journey.Start()
	span := now.Sub(first)
	if span < 0 {
		span = 0
	}
	week := t.WeekWindow()

	weeksObserved := int(math.Ceil(float64(span) / float64(week)))
	if weeksObserved < 1 {
		weeksObserved = 1
	}
	lowConfidence := span < week

	activeWindows := make(map[int]struct{})
	weekdays := make(map[time.Weekday]struct{})
	for _, ev := range journey {
		// Events timestamped after now would mark windows outside the
		// observed range and push the ratio past 1.
		if ev.Timestamp.After(now) {
			continue
		}
		idx := int(ev.Timestamp.Sub(first) / week)
		activeWindows[idx] = struct{}{}
		weekdays[ev.Timestamp.UTC().Weekday()] = struct{}{}
	}
	weeksActive := len(activeWindows)
	distinctWeekdays := len(weekdays)

	ratio := float64(weeksActive) / float64(weeksObserved)
	clustering := 1 - float64(distinctWeekdays-1)/6
	if distinctWeekdays == 0 {
		clustering = 0
	}
	score := t.Consistency.BaseWeight*ratio + t.Consistency.ClusterWeight*clustering

	report := ConsistencyReport{
		StudentID:        journey[0].StudentID,
		WeeksObserved:    weeksObserved,
		WeeksActive:      weeksActive,
		ActiveWeekRatio:  ratio,
		DistinctWeekdays: distinctWeekdays,
		LowConfidence:    lowConfidence,
	}

	switch {
	case len(journey) == 1:
		report.Pattern = PatternLow
		if score > singleEventScoreCap {
			score = singleEventScoreCap
		}
	case ratio >= t.Consistency.HighWeekRatio && distinctWeekdays <= t.Consistency.HighMaxWeekdays && !lowConfidence:
		report.Pattern = PatternHigh
	case ratio >= t.Consistency.MediumWeekRatio:
		report.Pattern = PatternMedium
	default:
		report.Pattern = PatternLow
	}

	report.Score = int(math.Round(math.Max(0, math.Min(100, score))))
	return report
}

// AnalyzeConsistencyAll runs the consistency analyzer for every journey and
// returns per-student reports keyed by the sorted student order.
func AnalyzeConsistencyAll(journeys map[string]event.Journey, now time.Time, t *Thresholds) []ConsistencyReport {
	reports := make([]ConsistencyReport, 0, len(journeys))
	for _, id := range event.StudentIDs(journeys) {
		reports = append(reports, AnalyzeConsistency(journeys[id], now, t))
	}
	return reports
}
