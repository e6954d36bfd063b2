package types

import "time"

// BatterySnapshot is the battery telemetry read at the start of a cycle.
// It is immutable once read; the core never mutates it.
type BatterySnapshot struct {
	// Percentage is the current state of charge, 0-100.
	Percentage float64 `json:"percentage"`
	// BackupMinutes is the estimated minutes of backup power remaining at
	// the current discharge rate.
	BackupMinutes float64   `json:"backupMinutes"`
	Timestamp     time.Time `json:"timestamp"`
}

// ThresholdRule maps a battery runway condition to a thermostat setpoint
// delta. A rule matches when BOTH the estimated backup minutes and the
// battery percentage are at or below the rule's thresholds.
type ThresholdRule struct {
	MaxBackupMinutes int `json:"maxBackupMinutes" mapstructure:"max_backup_minutes"`
	MaxBatteryPct    int `json:"maxBatteryPct" mapstructure:"max_battery_pct"`
	DeltaF           int `json:"deltaF" mapstructure:"delta_f"`
}

// Matches reports whether the snapshot satisfies both rule conditions.
func (r ThresholdRule) Matches(snap BatterySnapshot) bool {
	return snap.BackupMinutes <= float64(r.MaxBackupMinutes) &&
		snap.Percentage <= float64(r.MaxBatteryPct)
}

// DefaultThresholdRules returns the default runway table, ordered most
// time-sensitive first. Only the first matching rule applies in a cycle.
func DefaultThresholdRules() []ThresholdRule {
	return []ThresholdRule{
		{MaxBackupMinutes: 120, MaxBatteryPct: 75, DeltaF: 2},
		{MaxBackupMinutes: 60, MaxBatteryPct: 50, DeltaF: 2},
		{MaxBackupMinutes: 30, MaxBatteryPct: 25, DeltaF: 2},
	}
}
