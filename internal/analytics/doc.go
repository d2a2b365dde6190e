// Package analytics transforms per-student interaction event streams into
// aggregate behavioral metric reports for the creator dashboard.
//
// The package is a pipeline of four independent analyzers that all consume
// the same normalized event set (see internal/event) and each produce one
// self-contained report:
//
//   - Consistency: week-over-week activity regularity per student
//   - Breakthrough: low-to-high engagement inflection points ("aha moments")
//   - Pathway: frequent content sequences, dead ends, and power combinations
//   - Commitment: early-lifecycle engagement velocity for retention risk
//
// Basic Usage:
//
//	thresholds, err := analytics.LoadCalibration("configs/analytics.calibration.json")
//	if err != nil {
//		log.Warn("using default thresholds", "error", err)
//	}
//
//	engine := analytics.NewEngine(thresholds)
//	report := engine.Analyze(events, time.Now().UTC())
//
// All analyzers are pure functions of their input: no I/O, no shared mutable
// state, and no mutation of the event set, so a host may run them
// concurrently across tenants or metrics with no coordination. An analyzer
// receiving zero qualifying events returns a well-formed empty report rather
// than an error, so callers can render "not enough data yet" directly.
//
// Calibration:
//
// Every windowing and threshold constant (week length, breakthrough spike
// ratio, minimum pathway attempts, report sizes) lives in the Thresholds
// struct and can be tuned via a JSON calibration file loaded at startup,
// without touching analyzer logic.
package analytics
