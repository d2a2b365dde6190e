package analytics

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatDuration renders an elapsed duration for display: minutes when under
// an hour, hours with one decimal under a day, days with one decimal beyond.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
	return fmt.Sprintf("%.1f days", d.Hours()/24)
}

// HumanizeContentID converts a raw content id into a display label:
// underscores become spaces and each word is capitalized. The raw id remains
// the grouping key everywhere; this is presentation only.
func HumanizeContentID(id string) string {
	words := strings.Split(id, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// roundRate rounds a percentage to one decimal place.
func roundRate(pct float64) float64 {
	return math.Round(pct*10) / 10
}

// clamp01 clamps v to the [0, 1] interval.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
