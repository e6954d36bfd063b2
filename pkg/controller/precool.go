package controller

import "github.com/peakshed/peakshed/pkg/types"

// ShouldPrecool decides whether to start precooling ahead of a summer peak
// window. It returns true only when all conditions hold: precooling is
// enabled, we are in the summer PRE_PEAK lead window, and the forecast high
// is present and at or above the threshold. A missing forecast fails open
// to false: we never precool on missing data.
func ShouldPrecool(season types.Season, period types.PeriodState, forecastHighF *float64, cfg types.PrecoolSettings) bool {
	if !cfg.Enabled {
		return false
	}
	if period != types.PeriodPrePeak || season != types.SeasonSummer {
		return false
	}
	if forecastHighF == nil {
		return false
	}
	return *forecastHighF >= cfg.TempThresholdF
}
