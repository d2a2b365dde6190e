package analytics

import (
	"sort"
	"strings"
	"time"

	"github.com/tmajkow/coursepulse/internal/event"
)

// Pathway is a recurring content sequence with its continuation outcome.
type Pathway struct {
	Sequence          []string `json:"sequence"` // raw content ids, the grouping key
	Label             string   `json:"label"`    // humanized, display only
	Attempts          int      `json:"attempts"`
	Completions       int      `json:"completions"`
	CompletionRate    float64  `json:"completion_rate"` // percentage, one decimal
	StudentCount      int      `json:"student_count"`   // distinct students exhibiting the sequence
	AvgTimeToContinue string   `json:"avg_time_to_continue,omitempty"`
}

// DeadEnd is a content item after which a large share of students never return.
type DeadEnd struct {
	ContentID        string  `json:"content_id"`
	Label            string  `json:"label"`
	DropOffRate      float64 `json:"drop_off_rate"` // percentage, one decimal
	StudentsAffected int     `json:"students_affected"`
	StudentsTouched  int     `json:"students_touched"`
}

// PowerCombo is a 3-step sequence with an unusually high continuation rate.
type PowerCombo struct {
	Sequence     []string `json:"sequence"`
	Label        string   `json:"label"`
	SuccessRate  float64  `json:"success_rate"` // percentage, one decimal
	Attempts     int      `json:"attempts"`
	StudentCount int      `json:"student_count"`
}

// PathwayReport holds the three ranked pathway lists.
type PathwayReport struct {
	TopPathways []Pathway    `json:"top_pathways"`
	DeadEnds    []DeadEnd    `json:"dead_ends"`
	PowerCombos []PowerCombo `json:"power_combos"`
}

// sequenceKeySep joins content ids into a map key. Unit separator avoids
// collisions with ids containing common punctuation.
const sequenceKeySep = "\x1f"

// sequenceStats accumulates occurrences of one distinct sequence.
type sequenceStats struct {
	sequence      []string
	attempts      int
	completions   int
	students      map[string]struct{}
	continueTotal time.Duration
}

// AnalyzePathways mines all journeys for contiguous content subsequences of
// length 2 through 5, ranks high-completion pathways and power combinations,
// and finds dead-end content items. With zero events it returns empty lists.
//
// Enumeration is O(students x journeyLength x 5). Journeys in the tens to
// low hundreds of events are cheap; journeys in the thousands would make
// this the hotspot and want a bounded or sliding-window miner instead.
func AnalyzePathways(journeys map[string]event.Journey, t *Thresholds) PathwayReport {
	report := PathwayReport{
		TopPathways: []Pathway{},
		DeadEnds:    []DeadEnd{},
		PowerCombos: []PowerCombo{},
	}

	stats := make(map[string]*sequenceStats)
	touched := make(map[string]map[string]struct{}) // contentID -> student set
	dropped := make(map[string]map[string]struct{}) // contentID -> students whose last event is their last touch

	for studentID, journey := range journeys {
		mineJourney(studentID, journey, t, stats)

		lastTouch := make(map[string]int)
		for i, ev := range journey {
			lastTouch[ev.ContentID] = i
			if touched[ev.ContentID] == nil {
				touched[ev.ContentID] = make(map[string]struct{})
			}
			touched[ev.ContentID][studentID] = struct{}{}
		}
		for contentID, idx := range lastTouch {
			if idx == len(journey)-1 {
				if dropped[contentID] == nil {
					dropped[contentID] = make(map[string]struct{})
				}
				dropped[contentID][studentID] = struct{}{}
			}
		}
	}

	report.TopPathways = rankTopPathways(stats, t)
	report.DeadEnds = rankDeadEnds(touched, dropped, t)
	report.PowerCombos = rankPowerCombos(stats, t)
	return report
}

// mineJourney enumerates every contiguous subsequence of the configured
// lengths in one journey and folds it into the shared stats map. An
// occurrence "completes" when at least one event follows the subsequence.
func mineJourney(studentID string, journey event.Journey, t *Thresholds, stats map[string]*sequenceStats) {
	for start := 0; start < len(journey); start++ {
		for length := t.Pathway.MinLength; length <= t.Pathway.MaxLength; length++ {
			end := start + length
			if end > len(journey) {
				break
			}

			ids := make([]string, length)
			for i := 0; i < length; i++ {
				ids[i] = journey[start+i].ContentID
			}
			key := strings.Join(ids, sequenceKeySep)

			s := stats[key]
			if s == nil {
				s = &sequenceStats{sequence: ids, students: make(map[string]struct{})}
				stats[key] = s
			}
			s.attempts++
			s.students[studentID] = struct{}{}
			if end < len(journey) {
				s.completions++
				s.continueTotal += journey[end].Timestamp.Sub(journey[start].Timestamp)
			}
		}
	}
}

func rankTopPathways(stats map[string]*sequenceStats, t *Thresholds) []Pathway {
	pathways := make([]Pathway, 0)
	for _, s := range stats {
		if s.attempts < t.Pathway.MinAttempts {
			continue
		}
		p := Pathway{
			Sequence:       s.sequence,
			Label:          humanizeSequence(s.sequence),
			Attempts:       s.attempts,
			Completions:    s.completions,
			CompletionRate: roundRate(float64(s.completions) / float64(s.attempts) * 100),
			StudentCount:   len(s.students),
		}
		if s.completions > 0 {
			p.AvgTimeToContinue = FormatDuration(s.continueTotal / time.Duration(s.completions))
		}
		pathways = append(pathways, p)
	}

	sort.Slice(pathways, func(i, k int) bool {
		if pathways[i].CompletionRate != pathways[k].CompletionRate {
			return pathways[i].CompletionRate > pathways[k].CompletionRate
		}
		if pathways[i].Attempts != pathways[k].Attempts {
			return pathways[i].Attempts > pathways[k].Attempts
		}
		return strings.Join(pathways[i].Sequence, sequenceKeySep) < strings.Join(pathways[k].Sequence, sequenceKeySep)
	})

	if len(pathways) > t.Pathway.TopLimit {
		pathways = pathways[:t.Pathway.TopLimit]
	}
	return pathways
}

func rankDeadEnds(touched, dropped map[string]map[string]struct{}, t *Thresholds) []DeadEnd {
	deadEnds := make([]DeadEnd, 0)
	for contentID, students := range touched {
		if len(students) < t.Pathway.DeadEndMinStudents {
			continue
		}
		affected := len(dropped[contentID])
		// Qualify on the raw rate; rounding is display only.
		rate := float64(affected) / float64(len(students)) * 100
		if rate <= t.Pathway.DeadEndMinDropOff {
			continue
		}
		deadEnds = append(deadEnds, DeadEnd{
			ContentID:        contentID,
			Label:            HumanizeContentID(contentID),
			DropOffRate:      roundRate(rate),
			StudentsAffected: affected,
			StudentsTouched:  len(students),
		})
	}

	sort.Slice(deadEnds, func(i, k int) bool {
		if deadEnds[i].DropOffRate != deadEnds[k].DropOffRate {
			return deadEnds[i].DropOffRate > deadEnds[k].DropOffRate
		}
		if deadEnds[i].StudentsAffected != deadEnds[k].StudentsAffected {
			return deadEnds[i].StudentsAffected > deadEnds[k].StudentsAffected
		}
		return deadEnds[i].ContentID < deadEnds[k].ContentID
	})

	if len(deadEnds) > t.Pathway.DeadEndLimit {
		deadEnds = deadEnds[:t.Pathway.DeadEndLimit]
	}
	return deadEnds
}

func rankPowerCombos(stats map[string]*sequenceStats, t *Thresholds) []PowerCombo {
	combos := make([]PowerCombo, 0)
	for _, s := range stats {
		if len(s.sequence) != t.Pathway.ComboLength || s.attempts < t.Pathway.ComboMinAttempts {
			continue
		}
		// Qualify on the raw rate; rounding is display only.
		rate := float64(s.completions) / float64(s.attempts) * 100
		if rate <= t.Pathway.ComboMinSuccess {
			continue
		}
		combos = append(combos, PowerCombo{
			Sequence:     s.sequence,
			Label:        humanizeSequence(s.sequence),
			SuccessRate:  roundRate(rate),
			Attempts:     s.attempts,
			StudentCount: len(s.students),
		})
	}

	sort.Slice(combos, func(i, k int) bool {
		if combos[i].SuccessRate != combos[k].SuccessRate {
			return combos[i].SuccessRate > combos[k].SuccessRate
		}
		if combos[i].Attempts != combos[k].Attempts {
			return combos[i].Attempts > combos[k].Attempts
		}
		return strings.Join(combos[i].Sequence, sequenceKeySep) < strings.Join(combos[k].Sequence, sequenceKeySep)
	})

	if len(combos) > t.Pathway.ComboLimit {
		combos = combos[:t.Pathway.ComboLimit]
	}
	return combos
}

func humanizeSequence(ids []string) string {
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = HumanizeContentID(id)
	}
	return strings.Join(labels, " -> ")
}
