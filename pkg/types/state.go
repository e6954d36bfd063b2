package types

import (
	"fmt"
	"time"
)

// CurrentStateVersion is the current version of the persisted state record.
// Increment when adding fields that need default values on load.
const CurrentStateVersion = 2

// BatterySample is one battery reading recorded during the day, kept for
// the daily report.
type BatterySample struct {
	Timestamp     time.Time `json:"timestamp"`
	Percentage    float64   `json:"percentage"`
	BackupMinutes float64   `json:"backupMinutes"`
}

// PersistedState is the state record carried between cycles. The manager
// exclusively owns it for the duration of one cycle; no concurrent cycle
// runs against the same record. It is truncated at the local-midnight
// boundary when the day is archived.
type PersistedState struct {
	Version int `json:"version"`

	// Date is the local date (YYYY-MM-DD) the record belongs to.
	Date string `json:"date"`

	LastDecision *DecisionResult `json:"lastDecision,omitempty"`
	LastRunAt    time.Time       `json:"lastRunAt"`

	DayStartBatteryPct float64 `json:"dayStartBatteryPct"`

	// PrecoolingActive is set once precooling starts and cleared when the
	// day's setpoints are reverted, so precooling is only triggered once per
	// peak window.
	PrecoolingActive bool `json:"precoolingActive"`

	// AppliedDeltaF is the thermostat delta currently in effect for the
	// contiguous PEAK period. A larger matched delta replaces it; leaving
	// PEAK resets it to 0 exactly once.
	AppliedDeltaF int `json:"appliedDeltaF"`

	// LastAppliedReservePct avoids redundant reserve writes. -1 means no
	// reserve has been applied yet.
	LastAppliedReservePct int `json:"lastAppliedReservePct"`

	// LastNotifiedLevel suppresses repeat notifications for a steady
	// WARNING state; only boundary crossings and CRITICAL notify every
	// cycle.
	LastNotifiedLevel NotificationLevel `json:"lastNotifiedLevel"`

	Actions        []ActionRecord  `json:"actions"`
	BatterySamples []BatterySample `json:"batterySamples"`
}

// DefaultPersistedState returns a fresh state record for now's local date.
func DefaultPersistedState(now time.Time) PersistedState {
	return PersistedState{
		Version:               CurrentStateVersion,
		Date:                  now.Format(time.DateOnly),
		LastAppliedReservePct: -1,
	}
}

// MigrateState migrates a loaded state record to the current version. It
// returns the migrated state and whether changes were made.
func MigrateState(s PersistedState, version int) (PersistedState, bool, error) {
	if version >= CurrentStateVersion {
		return s, false, nil
	}

	migrated := false
	for v := version + 1; v <= CurrentStateVersion; v++ {
		switch v {
		case 1:
			// version 1: initial
			if s.Date == "" {
				s.Date = s.LastRunAt.Format(time.DateOnly)
				migrated = true
			}
		case 2:
			// version 2: add LastAppliedReservePct; older records never
			// tracked it so force a fresh write
			if s.LastAppliedReservePct == 0 && s.LastDecision == nil {
				s.LastAppliedReservePct = -1
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown state version: %d", v)
		}
	}
	s.Version = CurrentStateVersion

	return s, migrated, nil
}
