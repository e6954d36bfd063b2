package controller

import "github.com/peakshed/peakshed/pkg/types"

// ThermostatDelta looks up the runway threshold table and returns the
// setpoint delta (degrees F above baseline) for the battery's current
// runway. Rules are evaluated in configured order; the first rule whose
// conditions both hold wins and its delta applies alone. Deltas are never
// accumulated across rules in one cycle, which keeps repeated evaluations
// from drifting the setpoint. Returns 0 when no rule matches.
func ThermostatDelta(snap types.BatterySnapshot, rules []types.ThresholdRule) int {
	for _, r := range rules {
		if r.Matches(snap) {
			return r.DeltaF
		}
	}
	return 0
}
