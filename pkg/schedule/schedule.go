// Package schedule classifies wall-clock time against the configured
// season/peak-window calendar. All functions are pure: the same inputs
// always produce the same classification.
package schedule

import (
	"fmt"
	"time"

	"github.com/peakshed/peakshed/pkg/types"
)

// Classify returns the season and period state for the given local time.
// Weekends (via each window's weekday mask) and configured holidays are
// always OFF_PEAK. PEAK takes precedence over PRE_PEAK so exactly one state
// holds at any instant.
func Classify(now time.Time, cal types.Calendar) (types.Season, types.PeriodState, error) {
	season, ok := cal.SeasonFor(now)
	if !ok {
		return "", types.PeriodOffPeak, fmt.Errorf("no season configured for month %s", now.Month())
	}

	if cal.IsHoliday(now) {
		return season, types.PeriodOffPeak, nil
	}

	sc := cal.Seasons[season]
	for _, w := range sc.PeakWindows {
		if w.Contains(now) {
			return season, types.PeriodPeak, nil
		}
	}
	for _, w := range sc.PeakWindows {
		if w.ContainsPrePeak(now, sc.PrePeakLeadMinutes) {
			return season, types.PeriodPrePeak, nil
		}
	}

	return season, types.PeriodOffPeak, nil
}

// PeakTimeRemaining returns the minutes left in the peak window containing
// now, or false if now is not inside any peak window.
func PeakTimeRemaining(now time.Time, cal types.Calendar) (int, bool) {
	season, ok := cal.SeasonFor(now)
	if !ok {
		return 0, false
	}
	if cal.IsHoliday(now) {
		return 0, false
	}
	for _, w := range cal.Seasons[season].PeakWindows {
		if w.Contains(now) {
			return w.MinutesUntilEnd(now), true
		}
	}
	return 0, false
}
