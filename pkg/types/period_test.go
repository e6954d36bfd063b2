package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testWeekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
}

func TestPeakWindowContains(t *testing.T) {
	// Wed Jul 15 2026
	wednesday := func(hour, min int) time.Time {
		return time.Date(2026, time.July, 15, hour, min, 0, 0, time.UTC)
	}
	// Sat Jul 18 2026
	saturday := func(hour, min int) time.Time {
		return time.Date(2026, time.July, 18, hour, min, 0, 0, time.UTC)
	}

	w := PeakWindow{StartMinute: 16 * 60, EndMinute: 19 * 60, Weekdays: testWeekdays}

	t.Run("inside window", func(t *testing.T) {
		assert.True(t, w.Contains(wednesday(16, 0)))
		assert.True(t, w.Contains(wednesday(17, 30)))
		assert.True(t, w.Contains(wednesday(19, 0)))
	})

	t.Run("outside window", func(t *testing.T) {
		assert.False(t, w.Contains(wednesday(15, 59)))
		assert.False(t, w.Contains(wednesday(19, 1)))
		assert.False(t, w.Contains(wednesday(3, 0)))
	})

	t.Run("weekday mask excludes weekend", func(t *testing.T) {
		assert.False(t, w.Contains(saturday(17, 0)))
	})

	t.Run("empty mask allows every day", func(t *testing.T) {
		anyDay := PeakWindow{StartMinute: 16 * 60, EndMinute: 19 * 60}
		assert.True(t, anyDay.Contains(saturday(17, 0)))
	})
}

func TestPeakWindowContainsMidnightWrap(t *testing.T) {
	// 22:00 Friday through 02:00 Saturday
	w := PeakWindow{
		StartMinute: 22 * 60,
		EndMinute:   2 * 60,
		Weekdays:    []time.Weekday{time.Friday},
	}

	// Fri Jul 17 2026
	friday := time.Date(2026, time.July, 17, 23, 0, 0, 0, time.UTC)
	assert.True(t, w.Contains(friday))

	// 01:00 Saturday is still part of Friday's window
	saturdayEarly := time.Date(2026, time.July, 18, 1, 0, 0, 0, time.UTC)
	assert.True(t, w.Contains(saturdayEarly))

	// 01:00 Friday is not: Thursday's window is not in the mask
	fridayEarly := time.Date(2026, time.July, 17, 1, 0, 0, 0, time.UTC)
	assert.False(t, w.Contains(fridayEarly))

	// 03:00 Saturday is past the end
	saturdayLate := time.Date(2026, time.July, 18, 3, 0, 0, 0, time.UTC)
	assert.False(t, w.Contains(saturdayLate))
}

func TestPeakWindowContainsPrePeak(t *testing.T) {
	w := PeakWindow{StartMinute: 16 * 60, EndMinute: 19 * 60, Weekdays: testWeekdays}

	wednesday := func(hour, min int) time.Time {
		return time.Date(2026, time.July, 15, hour, min, 0, 0, time.UTC)
	}

	assert.True(t, w.ContainsPrePeak(wednesday(15, 30), 30))
	assert.True(t, w.ContainsPrePeak(wednesday(15, 45), 30))
	// the lead window is half-open: 16:00 belongs to the peak itself
	assert.False(t, w.ContainsPrePeak(wednesday(16, 0), 30))
	assert.False(t, w.ContainsPrePeak(wednesday(15, 29), 30))
	assert.False(t, w.ContainsPrePeak(wednesday(15, 45), 0))
}

func TestPeakWindowPrePeakMidnightWrap(t *testing.T) {
	// peak starts 00:15 Monday; lead window reaches back into Sunday
	w := PeakWindow{
		StartMinute: 15,
		EndMinute:   3 * 60,
		Weekdays:    []time.Weekday{time.Monday},
	}

	// Sun Jul 19 2026 23:50 is within the lead of Monday's window
	sunday := time.Date(2026, time.July, 19, 23, 50, 0, 0, time.UTC)
	assert.True(t, w.ContainsPrePeak(sunday, 30))

	// Mon Jul 20 2026 00:05 also is
	monday := time.Date(2026, time.July, 20, 0, 5, 0, 0, time.UTC)
	assert.True(t, w.ContainsPrePeak(monday, 30))

	// Mon 00:20 is inside the peak, not the lead
	assert.False(t, w.ContainsPrePeak(monday.Add(15*time.Minute), 30))
}

func TestPeakWindowMinutesUntilEnd(t *testing.T) {
	w := PeakWindow{StartMinute: 16 * 60, EndMinute: 19 * 60, Weekdays: testWeekdays}
	now := time.Date(2026, time.July, 15, 17, 15, 0, 0, time.UTC)
	assert.Equal(t, 105, w.MinutesUntilEnd(now))

	wrap := PeakWindow{StartMinute: 22 * 60, EndMinute: 2 * 60}
	late := time.Date(2026, time.July, 17, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 180, wrap.MinutesUntilEnd(late))
}

func TestCalendarSeasonFor(t *testing.T) {
	cal := DefaultSettings().Calendar

	s, ok := cal.SeasonFor(time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, SeasonSummer, s)

	s, ok = cal.SeasonFor(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, SeasonWinter, s)
}

func TestCalendarIsHoliday(t *testing.T) {
	cal := Calendar{Holidays: []string{"2026-07-03"}}
	assert.True(t, cal.IsHoliday(time.Date(2026, time.July, 3, 12, 0, 0, 0, time.UTC)))
	assert.False(t, cal.IsHoliday(time.Date(2026, time.July, 4, 12, 0, 0, 0, time.UTC)))
}

func TestCalendarValidate(t *testing.T) {
	t.Run("default is valid", func(t *testing.T) {
		require.NoError(t, DefaultSettings().Calendar.Validate())
	})

	t.Run("duplicate month", func(t *testing.T) {
		cal := DefaultSettings().Calendar
		summer := cal.Seasons[SeasonSummer]
		summer.Months = append(summer.Months, time.January)
		cal.Seasons[SeasonSummer] = summer
		assert.Error(t, cal.Validate())
	})

	t.Run("missing month", func(t *testing.T) {
		cal := DefaultSettings().Calendar
		winter := cal.Seasons[SeasonWinter]
		winter.Months = winter.Months[:len(winter.Months)-1]
		cal.Seasons[SeasonWinter] = winter
		assert.Error(t, cal.Validate())
	})

	t.Run("overlapping windows", func(t *testing.T) {
		cal := DefaultSettings().Calendar
		summer := cal.Seasons[SeasonSummer]
		summer.PeakWindows = append(summer.PeakWindows, PeakWindow{
			StartMinute: 18 * 60,
			EndMinute:   20 * 60,
			Weekdays:    testWeekdays,
		})
		cal.Seasons[SeasonSummer] = summer
		assert.Error(t, cal.Validate())
	})

	t.Run("disjoint weekdays never overlap", func(t *testing.T) {
		cal := DefaultSettings().Calendar
		summer := cal.Seasons[SeasonSummer]
		summer.PeakWindows = append(summer.PeakWindows, PeakWindow{
			StartMinute: 18 * 60,
			EndMinute:   20 * 60,
			Weekdays:    []time.Weekday{time.Saturday},
		})
		cal.Seasons[SeasonSummer] = summer
		assert.NoError(t, cal.Validate())
	})

	t.Run("bad holiday date", func(t *testing.T) {
		cal := DefaultSettings().Calendar
		cal.Holidays = []string{"07/04/2026"}
		assert.Error(t, cal.Validate())
	})
}

func TestValidateRules(t *testing.T) {
	require.NoError(t, ValidateRules(DefaultThresholdRules()))

	assert.Error(t, ValidateRules([]ThresholdRule{{MaxBackupMinutes: 0, MaxBatteryPct: 50, DeltaF: 2}}))
	assert.Error(t, ValidateRules([]ThresholdRule{{MaxBackupMinutes: 60, MaxBatteryPct: 130, DeltaF: 2}}))
}
