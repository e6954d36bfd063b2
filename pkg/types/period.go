package types

import "time"

// Season represents the utility rate season.
type Season string

const (
	SeasonSummer Season = "summer"
	SeasonWinter Season = "winter"
)

// PeriodState represents where the current instant falls relative to the
// configured peak pricing windows. Exactly one state holds at any instant.
type PeriodState string

const (
	PeriodOffPeak PeriodState = "offPeak"
	PeriodPrePeak PeriodState = "prePeak"
	PeriodPeak    PeriodState = "peak"
)

const minutesPerDay = 24 * 60

// PeakWindow defines a single peak pricing window as minute-of-day offsets
// in the site's local time. A window with StartMinute > EndMinute crosses
// local midnight.
type PeakWindow struct {
	StartMinute int            `json:"startMinute"`
	EndMinute   int            `json:"endMinute"`
	Weekdays    []time.Weekday `json:"weekdays"`
}

func (w PeakWindow) weekdayAllowed(d time.Weekday) bool {
	if len(w.Weekdays) == 0 {
		return true
	}
	for _, wd := range w.Weekdays {
		if wd == d {
			return true
		}
	}
	return false
}

// Contains reports whether t falls inside the window. The interval is
// inclusive on both ends. For a window crossing midnight the weekday mask is
// evaluated against the day the window started.
func (w PeakWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.StartMinute <= w.EndMinute {
		return m >= w.StartMinute && m <= w.EndMinute && w.weekdayAllowed(t.Weekday())
	}
	// wraps past midnight
	if m >= w.StartMinute {
		return w.weekdayAllowed(t.Weekday())
	}
	if m <= w.EndMinute {
		// started yesterday
		return w.weekdayAllowed(t.AddDate(0, 0, -1).Weekday())
	}
	return false
}

// ContainsPrePeak reports whether t falls inside the lead window of
// leadMinutes immediately before the window's start. The lead window is
// half-open: it ends the minute the peak window begins.
func (w PeakWindow) ContainsPrePeak(t time.Time, leadMinutes int) bool {
	if leadMinutes <= 0 {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	preStart := w.StartMinute - leadMinutes
	if preStart >= 0 {
		return m >= preStart && m < w.StartMinute && w.weekdayAllowed(t.Weekday())
	}
	// lead window wraps back past midnight
	preStart += minutesPerDay
	if m >= preStart {
		// the peak window starts tomorrow
		return w.weekdayAllowed(t.AddDate(0, 0, 1).Weekday())
	}
	return m < w.StartMinute && w.weekdayAllowed(t.Weekday())
}

// MinutesUntilEnd returns how many minutes remain until the window ends,
// assuming t is inside the window.
func (w PeakWindow) MinutesUntilEnd(t time.Time) int {
	m := t.Hour()*60 + t.Minute()
	end := w.EndMinute
	if w.StartMinute > w.EndMinute && m >= w.StartMinute {
		end += minutesPerDay
	}
	return end - m
}

// overlaps reports whether two windows can both contain some instant on a
// shared weekday. Used by Calendar.Validate.
func (w PeakWindow) overlaps(o PeakWindow) bool {
	var shared bool
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.weekdayAllowed(d) && o.weekdayAllowed(d) {
			shared = true
			break
		}
	}
	if !shared {
		return false
	}
	return w.minutesOverlap(o)
}

func (w PeakWindow) minutesOverlap(o PeakWindow) bool {
	contains := func(win PeakWindow, m int) bool {
		if win.StartMinute <= win.EndMinute {
			return m >= win.StartMinute && m <= win.EndMinute
		}
		return m >= win.StartMinute || m <= win.EndMinute
	}
	return contains(w, o.StartMinute) || contains(w, o.EndMinute) ||
		contains(o, w.StartMinute) || contains(o, w.EndMinute)
}

// SeasonConfig defines the calendar months and peak windows for one season.
type SeasonConfig struct {
	Months             []time.Month `json:"months"`
	PeakWindows        []PeakWindow `json:"peakWindows"`
	PrePeakLeadMinutes int          `json:"prePeakLeadMinutes"`
}

// Calendar is the full season/peak-window schedule for a site. It is loaded
// once at startup and treated as immutable for the process lifetime.
type Calendar struct {
	Seasons map[Season]SeasonConfig `json:"seasons"`
	// Holidays are ISO dates (YYYY-MM-DD) treated like weekends.
	Holidays []string `json:"holidays"`
}

// SeasonFor returns the season configured for t's month.
func (c Calendar) SeasonFor(t time.Time) (Season, bool) {
	for season, sc := range c.Seasons {
		for _, m := range sc.Months {
			if m == t.Month() {
				return season, true
			}
		}
	}
	return "", false
}

// IsHoliday reports whether t's local date is in the configured holiday set.
func (c Calendar) IsHoliday(t time.Time) bool {
	date := t.Format(time.DateOnly)
	for _, h := range c.Holidays {
		if h == date {
			return true
		}
	}
	return false
}
