package types

import (
	"fmt"
	"time"
)

// Validate checks the calendar for configuration errors. A broken calendar
// is fatal at startup: the control loop refuses to run rather than guess at
// peak windows.
func (c Calendar) Validate() error {
	if len(c.Seasons) == 0 {
		return fmt.Errorf("no seasons configured")
	}

	seen := make(map[time.Month]Season)
	for season, sc := range c.Seasons {
		if len(sc.Months) == 0 {
			return fmt.Errorf("season %s has no months", season)
		}
		for _, m := range sc.Months {
			if m < time.January || m > time.December {
				return fmt.Errorf("season %s has invalid month %d", season, m)
			}
			if prev, ok := seen[m]; ok {
				return fmt.Errorf("month %s assigned to both %s and %s", m, prev, season)
			}
			seen[m] = season
		}

		if sc.PrePeakLeadMinutes < 0 || sc.PrePeakLeadMinutes >= minutesPerDay {
			return fmt.Errorf("season %s has invalid pre-peak lead %d", season, sc.PrePeakLeadMinutes)
		}

		for i, w := range sc.PeakWindows {
			if w.StartMinute < 0 || w.StartMinute >= minutesPerDay {
				return fmt.Errorf("season %s window %d has invalid start minute %d", season, i, w.StartMinute)
			}
			if w.EndMinute < 0 || w.EndMinute >= minutesPerDay {
				return fmt.Errorf("season %s window %d has invalid end minute %d", season, i, w.EndMinute)
			}
			for _, d := range w.Weekdays {
				if d < time.Sunday || d > time.Saturday {
					return fmt.Errorf("season %s window %d has invalid weekday %d", season, i, d)
				}
			}
			for j := i + 1; j < len(sc.PeakWindows); j++ {
				if w.overlaps(sc.PeakWindows[j]) {
					return fmt.Errorf("season %s windows %d and %d overlap", season, i, j)
				}
			}
		}
	}

	for m := time.January; m <= time.December; m++ {
		if _, ok := seen[m]; !ok {
			return fmt.Errorf("month %s not assigned to any season", m)
		}
	}

	for _, h := range c.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			return fmt.Errorf("invalid holiday date %q: %w", h, err)
		}
	}

	return nil
}

// ValidateRules checks a threshold rule table for configuration errors.
func ValidateRules(rules []ThresholdRule) error {
	for i, r := range rules {
		if r.MaxBackupMinutes <= 0 {
			return fmt.Errorf("rule %d has non-positive backup minutes threshold %d", i, r.MaxBackupMinutes)
		}
		if r.MaxBatteryPct < 0 || r.MaxBatteryPct > 100 {
			return fmt.Errorf("rule %d has battery threshold %d outside 0-100", i, r.MaxBatteryPct)
		}
	}
	return nil
}
