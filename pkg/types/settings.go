package types

import "time"

// Settings is the control configuration for a site: the season calendar,
// reserve policy, precool policy, runway threshold table, and cycle
// scheduling. It is loaded once at process start from the YAML control
// document and treated as immutable for the process lifetime.
type Settings struct {
	// CycleInterval is how often the control loop runs a decision cycle.
	CycleInterval time.Duration `json:"cycleInterval"`

	// DryRun computes and logs decisions without issuing any write calls to
	// external systems.
	DryRun bool `json:"dryRun"`

	Calendar Calendar `json:"calendar"`

	Reserve ReserveSettings `json:"reserve"`
	Precool PrecoolSettings `json:"precool"`

	// Rules is the runway threshold table, evaluated in order,
	// first match wins.
	Rules []ThresholdRule `json:"rules"`

	// BaselineCoolF is the setpoint all thermostat deltas are relative to.
	BaselineCoolF int `json:"baselineCoolF"`
	// MaxSetpointF and MinSetpointF clamp what the manager will ever write
	// to a thermostat.
	MaxSetpointF int `json:"maxSetpointF"`
	MinSetpointF int `json:"minSetpointF"`

	// ThermostatIDs are the thermostats the manager controls.
	ThermostatIDs []string `json:"thermostatIDs"`

	// EODBatteryWarnPct triggers an end-of-day warning in the daily report
	// when the final battery reading is at or below it.
	EODBatteryWarnPct float64 `json:"eodBatteryWarnPct"`
}

// ReserveSettings configures the target battery reserve per period state.
type ReserveSettings struct {
	// PeakPct is the backup reserve requested during PEAK. The default of 0
	// permits full discharge so the home draws nothing from the grid.
	PeakPct int `json:"peakPct"`
	// OffPeakPct restores the normal backup reserve outside PEAK.
	OffPeakPct int `json:"offPeakPct"`
}

// PrecoolSettings configures precooling ahead of summer peak windows.
type PrecoolSettings struct {
	Enabled bool `json:"enabled"`
	// TempThresholdF is the forecast high at or above which precooling
	// starts.
	TempThresholdF float64 `json:"tempThresholdF"`
	// AdjustmentF is how far below the baseline setpoint to cool.
	AdjustmentF int `json:"adjustmentF"`
}

// DefaultSettings returns the stock control configuration: summer May-Oct
// with a 16:00-19:00 weekday peak, winter Nov-Apr with 06:00-09:00 and
// 17:00-20:00 weekday peaks, and the default runway table.
func DefaultSettings() Settings {
	weekdays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	}
	return Settings{
		CycleInterval: 5 * time.Minute,
		Calendar: Calendar{
			Seasons: map[Season]SeasonConfig{
				SeasonSummer: {
					Months: []time.Month{
						time.May, time.June, time.July, time.August,
						time.September, time.October,
					},
					PeakWindows: []PeakWindow{
						{StartMinute: 16 * 60, EndMinute: 19 * 60, Weekdays: weekdays},
					},
					PrePeakLeadMinutes: 30,
				},
				SeasonWinter: {
					Months: []time.Month{
						time.November, time.December, time.January,
						time.February, time.March, time.April,
					},
					PeakWindows: []PeakWindow{
						{StartMinute: 6 * 60, EndMinute: 9 * 60, Weekdays: weekdays},
						{StartMinute: 17 * 60, EndMinute: 20 * 60, Weekdays: weekdays},
					},
				},
			},
		},
		Reserve: ReserveSettings{PeakPct: 0, OffPeakPct: 20},
		Precool: PrecoolSettings{
			Enabled:        true,
			TempThresholdF: 95,
			AdjustmentF:    3,
		},
		Rules:             DefaultThresholdRules(),
		BaselineCoolF:     76,
		MaxSetpointF:      85,
		MinSetpointF:      68,
		EODBatteryWarnPct: 20,
	}
}
