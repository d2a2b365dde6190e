package analytics

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/tmajkow/coursepulse/internal/event"
)

// sampleEvents builds a small multi-student event set exercising every
// analyzer: regular weekly activity, an engagement spike, shared content
// sequences, and a subscription anchor.
func sampleEvents() []event.InteractionEvent {
	var events []event.InteractionEvent
	add := func(student, content, kind string, offset time.Duration) {
		events = append(events, event.InteractionEvent{
			StudentID: student,
			ContentID: content,
			Kind:      kind,
			Timestamp: testBase.Add(offset),
		})
	}

	for _, student := range []string{"stu_a", "stu_b", "stu_c"} {
		add(student, "plan_basic", event.KindSubscription, 0)
		for week := 0; week < 4; week++ {
			base := time.Duration(week) * 7 * 24 * time.Hour
			add(student, "intro_video", event.KindActivity, base+2*time.Hour)
			add(student, "worksheet_1", event.KindActivity, base+26*time.Hour)
			add(student, "quiz_checkpoint_1", event.KindActivity, base+50*time.Hour)
		}
	}

	// Engagement spike for one student.
	add("stu_a", "community_post", event.KindEngagement, 8*24*time.Hour)
	add("stu_a", "community_post", event.KindEngagement, 9*24*time.Hour)
	add("stu_a", "community_post", event.KindEngagement, 9*24*time.Hour+2*time.Hour)
	add("stu_a", "community_post", event.KindEngagement, 10*24*time.Hour)

	return events
}

func TestEngineAnalyzeIdempotent(t *testing.T) {
	engine := NewEngine(nil)
	events := sampleEvents()
	now := testBase.Add(30 * 24 * time.Hour)

	first := engine.Analyze(events, now)
	second := engine.Analyze(events, now)
	if !reflect.DeepEqual(first, second) {
		t.Error("two runs over identical input produced different reports")
	}
}

func TestEngineAnalyzeOrderInvariant(t *testing.T) {
	engine := NewEngine(nil)
	now := testBase.Add(30 * 24 * time.Hour)

	ordered := sampleEvents()
	reversed := make([]event.InteractionEvent, len(ordered))
	for i, ev := range ordered {
		reversed[len(ordered)-1-i] = ev
	}

	a := engine.Analyze(ordered, now)
	b := engine.Analyze(reversed, now)
	if !reflect.DeepEqual(a, b) {
		t.Error("report depends on input ordering")
	}
}

func TestEngineAnalyzeCounts(t *testing.T) {
	engine := NewEngine(nil)
	events := sampleEvents()
	report := engine.Analyze(events, testBase.Add(30*24*time.Hour))

	if report.StudentCount != 3 {
		t.Errorf("expected 3 students, got %d", report.StudentCount)
	}
	if report.EventCount != len(events) {
		t.Errorf("expected %d events, got %d", len(events), report.EventCount)
	}
	if len(report.Consistency) != 3 {
		t.Errorf("expected 3 consistency entries, got %d", len(report.Consistency))
	}
	if report.Breakthroughs.StudentsWithBreakthrough != 1 {
		t.Errorf("expected 1 breakthrough student, got %d", report.Breakthroughs.StudentsWithBreakthrough)
	}
}

func TestEngineAnalyzeEmptyInput(t *testing.T) {
	engine := NewEngine(nil)
	report := engine.Analyze(nil, testBase)

	if report.StudentCount != 0 || report.EventCount != 0 {
		t.Errorf("expected zero counts, got students=%d events=%d", report.StudentCount, report.EventCount)
	}
	if report.Consistency == nil {
		t.Error("consistency list should be empty, not nil")
	}
	if report.Pathways.TopPathways == nil || report.Pathways.DeadEnds == nil {
		t.Error("pathway lists should be empty, not nil")
	}
}

func TestEngineAnalyzeRawCountsDropped(t *testing.T) {
	engine := NewEngine(nil)
	ts := testBase
	raws := []event.RawEvent{
		{StudentID: "stu_a", ContentID: "intro", Kind: event.KindActivity, Timestamp: &ts},
		{StudentID: "stu_b", ContentID: "intro", Kind: event.KindActivity}, // no timestamp
		{StudentID: "stu_c", Action: "watch_intro", Kind: event.KindActivity},
	}

	report := engine.AnalyzeRaw(raws, testBase.Add(24*time.Hour))
	if report.DroppedEvents != 2 {
		t.Errorf("expected 2 dropped events, got %d", report.DroppedEvents)
	}
	if report.EventCount != 1 {
		t.Errorf("expected 1 surviving event, got %d", report.EventCount)
	}
}

func TestNewEngineNilThresholds(t *testing.T) {
	engine := NewEngine(nil)
	if engine.Thresholds() == nil {
		t.Fatal("expected default thresholds for nil input")
	}
	if err := engine.Thresholds().Validate(); err != nil {
		t.Errorf("default thresholds invalid: %v", err)
	}
}

func BenchmarkEngineAnalyze(b *testing.B) {
	var events []event.InteractionEvent
	for s := 0; s < 100; s++ {
		student := fmt.Sprintf("stu_%03d", s)
		for week := 0; week < 8; week++ {
			base := time.Duration(week) * 7 * 24 * time.Hour
			for i := 0; i < 5; i++ {
				events = append(events, event.InteractionEvent{
					StudentID: student,
					ContentID: fmt.Sprintf("lesson_%d", (s+i)%12),
					Kind:      event.KindActivity,
					Timestamp: testBase.Add(base + time.Duration(i*7)*time.Hour),
				})
			}
		}
	}
	engine := NewEngine(nil)
	now := testBase.Add(60 * 24 * time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Analyze(events, now)
	}
}
