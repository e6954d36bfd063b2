package types

import "time"

// NotificationLevel indicates how urgently a cycle's outcome should be
// surfaced to the operator. Levels are ordered so they can be compared.
type NotificationLevel int

const (
	LevelNone NotificationLevel = iota
	LevelInfo
	LevelWarning
	LevelCritical
)

func (l NotificationLevel) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ReasonCode explains one part of a decision. Codes are stable strings so
// they can be matched in reports and alerts.
type ReasonCode string

const (
	ReasonPeakReserve          ReasonCode = "peakReserve"
	ReasonOffPeakReserve       ReasonCode = "offPeakReserve"
	ReasonPrecool              ReasonCode = "precool"
	ReasonForecastUnavailable  ReasonCode = "forecastUnavailable"
	ReasonBatteryUnavailable   ReasonCode = "batteryUnavailable"
	ReasonThermostatUnavail    ReasonCode = "thermostatUnavailable"
	ReasonRunwayLow            ReasonCode = "runwayLow"
	ReasonDeltaReverted        ReasonCode = "deltaReverted"
	ReasonSetpointClamped      ReasonCode = "setpointClamped"
	ReasonNoSeason             ReasonCode = "noSeason"
	ReasonReserveApplyFailed   ReasonCode = "reserveApplyFailed"
	ReasonSetpointApplyFailed  ReasonCode = "setpointApplyFailed"
	ReasonStateReinitialized   ReasonCode = "stateReinitialized"
	ReasonPersistSaveFailed    ReasonCode = "persistSaveFailed"
	ReasonEndOfDayBatteryLow   ReasonCode = "endOfDayBatteryLow"
	ReasonCycleSkippedOverlap  ReasonCode = "cycleSkippedOverlap"
	ReasonDryRun               ReasonCode = "dryRun"
	ReasonWeekendOrHoliday     ReasonCode = "weekendOrHoliday"
	ReasonPrecoolBelowThresh   ReasonCode = "precoolBelowThreshold"
	ReasonThermostatDeltaApply ReasonCode = "thermostatDeltaApplied"
)

// DecisionResult is the full output of one decision cycle. A fresh result is
// produced every cycle; only the most recent one is persisted.
type DecisionResult struct {
	CycleID   string    `json:"cycleID"`
	Timestamp time.Time `json:"timestamp"`

	Season Season      `json:"season"`
	Period PeriodState `json:"period"`

	TargetReservePct int  `json:"targetReservePct"`
	PrecoolActive    bool `json:"precoolActive"`
	// ThermostatDeltaF is relative to the configured baseline setpoint, not
	// to the thermostat's current setpoint, so repeated cycles are
	// idempotent.
	ThermostatDeltaF int `json:"thermostatDeltaF"`

	Level       NotificationLevel `json:"level"`
	ReasonCodes []ReasonCode      `json:"reasonCodes"`

	// Battery echoes the snapshot the decision was based on, if one was
	// available.
	Battery *BatterySnapshot `json:"battery,omitempty"`
}

// HasReason reports whether the result carries the given reason code.
func (d DecisionResult) HasReason(code ReasonCode) bool {
	for _, c := range d.ReasonCodes {
		if c == code {
			return true
		}
	}
	return false
}

// ActionType identifies the kind of write a cycle performed.
type ActionType string

const (
	ActionSetReserve    ActionType = "setReserve"
	ActionSetSetpoint   ActionType = "setSetpoint"
	ActionRevertDeltas  ActionType = "revertDeltas"
	ActionStartPrecool  ActionType = "startPrecool"
	ActionArchiveDay    ActionType = "archiveDay"
	ActionResetState    ActionType = "resetState"
	ActionNotification  ActionType = "notification"
	ActionManualTrigger ActionType = "manualTrigger"
)

// ActionRecord describes one write issued (or attempted) during a cycle.
type ActionRecord struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Type      ActionType `json:"type"`
	// Target identifies the device: "battery" or a thermostat ID.
	Target string     `json:"target,omitempty"`
	From   int        `json:"from"`
	To     int        `json:"to"`
	Reason ReasonCode `json:"reason,omitempty"`
	DryRun bool       `json:"dryRun,omitempty"`
	Failed bool       `json:"failed,omitempty"`
	Error  string     `json:"error,omitempty"`
}
