package controller

import "github.com/peakshed/peakshed/pkg/types"

// TargetReserve returns the battery reserve percentage to request for the
// given period. During PEAK the reserve drops to the configured peak value
// (default 0, permitting full discharge so the home draws nothing from the
// grid); every other period restores the normal backup reserve. The policy
// is idempotent: the same period always yields the same target.
func TargetReserve(period types.PeriodState, cfg types.ReserveSettings) int {
	if period == types.PeriodPeak {
		return cfg.PeakPct
	}
	return cfg.OffPeakPct
}
