package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// WindowConfig holds the fixed analysis window sizes, in days.
type WindowConfig struct {
	WeekDays               int `json:"week_days"`                // Consistency bucketing window (default: 7)
	BreakthroughBeforeDays int `json:"breakthrough_before_days"` // Baseline window before a candidate event (default: 3)
	BreakthroughAfterDays  int `json:"breakthrough_after_days"`  // Observation window after a candidate event (default: 3)
	CommitmentDays         int `json:"commitment_days"`          // Early-lifecycle window from account start (default: 7)
}

// ConsistencyConfig holds scoring parameters for the consistency analyzer.
type ConsistencyConfig struct {
	BaseWeight      float64 `json:"base_weight"`       // Points available for the active-week ratio (default: 75)
	ClusterWeight   float64 `json:"cluster_weight"`    // Points available for weekday clustering (default: 25)
	HighWeekRatio   float64 `json:"high_week_ratio"`   // Active-week ratio floor for the high tier (default: 0.9)
	MediumWeekRatio float64 `json:"medium_week_ratio"` // Active-week ratio floor for the medium tier (default: 0.6)
	HighMaxWeekdays int     `json:"high_max_weekdays"` // Max distinct weekdays for the high tier (default: 3)
}

// BreakthroughConfig holds detection parameters for the breakthrough analyzer.
type BreakthroughConfig struct {
	SpikeRatio     float64 `json:"spike_ratio"`      // After/before multiplier that counts as a spike (default: 1.4)
	MinHistoryDays int     `json:"min_history_days"` // Journey span required for eligibility (default: 7)
}

// PathwayConfig holds mining parameters for the pathway analyzer.
type PathwayConfig struct {
	MinLength          int     `json:"min_length"`            // Shortest mined subsequence (default: 2)
	MaxLength          int     `json:"max_length"`            // Longest mined subsequence (default: 5)
	MinAttempts        int     `json:"min_attempts"`          // Attempts required to report a pathway (default: 3)
	TopLimit           int     `json:"top_limit"`             // Pathways reported (default: 10)
	DeadEndMinStudents int     `json:"dead_end_min_students"` // Distinct students required to report a dead end (default: 3)
	DeadEndMinDropOff  float64 `json:"dead_end_min_drop_off"` // Drop-off percentage floor, exclusive (default: 50)
	DeadEndLimit       int     `json:"dead_end_limit"`        // Dead ends reported (default: 10)
	ComboLength        int     `json:"combo_length"`          // Power combination length (default: 3)
	ComboMinAttempts   int     `json:"combo_min_attempts"`    // Attempts required for a combination (default: 5)
	ComboMinSuccess    float64 `json:"combo_min_success"`     // Success percentage floor, exclusive (default: 80)
	ComboLimit         int     `json:"combo_limit"`           // Combinations reported (default: 5)
}

// CommitmentConfig holds scoring parameters for the commitment analyzer.
// The three weights should sum to 1.0 so scores stay in [0, 100].
type CommitmentConfig struct {
	OnsetWeight      float64 `json:"onset_weight"`       // Weight of onset latency (default: 0.3)
	ActiveDaysWeight float64 `json:"active_days_weight"` // Weight of active-day count (default: 0.4)
	BreadthWeight    float64 `json:"breadth_weight"`     // Weight of distinct-content breadth (default: 0.3)
	OnsetDecayHours  float64 `json:"onset_decay_hours"`  // Latency at which the onset signal reaches zero (default: 48)
	BreadthTarget    int     `json:"breadth_target"`     // Distinct items for a full breadth signal (default: 5)
}

// Thresholds holds every windowing and threshold constant used by the
// analyzers, so they are discoverable and tunable in one place.
type Thresholds struct {
	Windows      WindowConfig       `json:"windows"`
	Consistency  ConsistencyConfig  `json:"consistency"`
	Breakthrough BreakthroughConfig `json:"breakthrough"`
	Pathway      PathwayConfig      `json:"pathway"`
	Commitment   CommitmentConfig   `json:"commitment"`
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version    string     `json:"version"`    // Config version for future compatibility
	Thresholds Thresholds `json:"thresholds"` // Threshold configurations
}

// DefaultThresholds returns the default analyzer configuration. The defaults
// reproduce the calibrated dashboard behavior: 7-day consistency and
// commitment windows, 3-day breakthrough windows with a 40% spike bar, and
// the pathway reporting floors (3 attempts, 50% drop-off, 80% combo success).
func DefaultThresholds() *Thresholds {
	return &Thresholds{
		Windows: WindowConfig{
			WeekDays:               7,
			BreakthroughBeforeDays: 3,
			BreakthroughAfterDays:  3,
			CommitmentDays:         7,
		},
		Consistency: ConsistencyConfig{
			BaseWeight:      75,
			ClusterWeight:   25,
			HighWeekRatio:   0.9,
			MediumWeekRatio: 0.6,
			HighMaxWeekdays: 3,
		},
		Breakthrough: BreakthroughConfig{
			SpikeRatio:     1.4,
			MinHistoryDays: 7,
		},
		Pathway: PathwayConfig{
			MinLength:          2,
			MaxLength:          5,
			MinAttempts:        3,
			TopLimit:           10,
			DeadEndMinStudents: 3,
			DeadEndMinDropOff:  50,
			DeadEndLimit:       10,
			ComboLength:        3,
			ComboMinAttempts:   5,
			ComboMinSuccess:    80,
			ComboLimit:         5,
		},
		Commitment: CommitmentConfig{
			OnsetWeight:      0.3,
			ActiveDaysWeight: 0.4,
			BreadthWeight:    0.3,
			OnsetDecayHours:  48,
			BreadthTarget:    5,
		},
	}
}

// WeekWindow returns the consistency bucketing window as a duration.
func (t *Thresholds) WeekWindow() time.Duration {
	return time.Duration(t.Windows.WeekDays) * 24 * time.Hour
}

// BeforeWindow returns the breakthrough baseline window as a duration.
func (t *Thresholds) BeforeWindow() time.Duration {
	return time.Duration(t.Windows.BreakthroughBeforeDays) * 24 * time.Hour
}

// AfterWindow returns the breakthrough observation window as a duration.
func (t *Thresholds) AfterWindow() time.Duration {
	return time.Duration(t.Windows.BreakthroughAfterDays) * 24 * time.Hour
}

// CommitmentWindow returns the early-lifecycle window as a duration.
func (t *Thresholds) CommitmentWindow() time.Duration {
	return time.Duration(t.Windows.CommitmentDays) * 24 * time.Hour
}

// LoadCalibration loads analyzer thresholds from a JSON calibration file.
// Partial configurations are merged with defaults for graceful degradation;
// on any error the defaults are returned alongside the error so the caller
// can log and continue.
func LoadCalibration(filePath string) (*Thresholds, error) {
	if filePath == "" {
		return DefaultThresholds(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultThresholds(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	// Unmarshal over a defaults copy so omitted fields keep their defaults.
	cfg := CalibrationConfig{Thresholds: *DefaultThresholds()}
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultThresholds(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	thresholds := cfg.Thresholds
	if err := thresholds.Validate(); err != nil {
		slog.Warn("invalid calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultThresholds(), fmt.Errorf("invalid calibration: %w", err)
	}

	slog.Info("loaded analytics calibration",
		"path", filePath,
		"version", cfg.Version)
	return &thresholds, nil
}

// Validate checks that thresholds are internally coherent.
func (t *Thresholds) Validate() error {
	if t.Windows.WeekDays <= 0 || t.Windows.BreakthroughBeforeDays <= 0 ||
		t.Windows.BreakthroughAfterDays <= 0 || t.Windows.CommitmentDays <= 0 {
		return fmt.Errorf("window sizes must be positive")
	}
	if t.Breakthrough.SpikeRatio <= 0 {
		return fmt.Errorf("spike ratio must be positive, got %f", t.Breakthrough.SpikeRatio)
	}
	if t.Pathway.MinLength < 2 || t.Pathway.MaxLength < t.Pathway.MinLength {
		return fmt.Errorf("invalid pathway length bounds [%d, %d]", t.Pathway.MinLength, t.Pathway.MaxLength)
	}
	if t.Pathway.MinAttempts < 1 || t.Pathway.ComboMinAttempts < 1 {
		return fmt.Errorf("attempt floors must be at least 1")
	}
	if t.Commitment.OnsetWeight < 0 || t.Commitment.ActiveDaysWeight < 0 || t.Commitment.BreadthWeight < 0 {
		return fmt.Errorf("commitment weights must be non-negative")
	}
	return nil
}
