// Package report summarizes an archived day's control state into the daily
// report sent to the homeowner.
package report

import (
	"fmt"
	"strings"

	"github.com/peakshed/peakshed/pkg/types"
)

// Summary is the digest of one day's control activity.
type Summary struct {
	Date string

	// Battery statistics over the day's samples.
	Samples     int
	StartPct    float64
	EndPct      float64
	MinPct      float64
	AvgPct      float64
	MaxPct      float64
	MinBackupMn float64

	// Actions taken.
	ReserveWrites  int
	SetpointWrites int
	Reverts        int
	Precools       int
	FailedActions  int
	Notifications  int

	// EODBatteryLow is set when the final battery reading was at or below
	// the configured warning threshold.
	EODBatteryLow bool
}

// Summarize digests an archived day.
func Summarize(state types.PersistedState, settings types.Settings) Summary {
	s := Summary{Date: state.Date}

	for _, a := range state.Actions {
		if a.Failed {
			s.FailedActions++
			continue
		}
		switch a.Type {
		case types.ActionSetReserve:
			s.ReserveWrites++
		case types.ActionSetSetpoint:
			s.SetpointWrites++
		case types.ActionRevertDeltas:
			s.Reverts++
		case types.ActionStartPrecool:
			s.Precools++
		case types.ActionNotification:
			s.Notifications++
		}
	}

	if len(state.BatterySamples) == 0 {
		return s
	}

	s.Samples = len(state.BatterySamples)
	s.StartPct = state.BatterySamples[0].Percentage
	last := state.BatterySamples[len(state.BatterySamples)-1]
	s.EndPct = last.Percentage
	s.MinPct = state.BatterySamples[0].Percentage
	s.MaxPct = state.BatterySamples[0].Percentage
	s.MinBackupMn = state.BatterySamples[0].BackupMinutes

	var sum float64
	for _, sample := range state.BatterySamples {
		sum += sample.Percentage
		if sample.Percentage < s.MinPct {
			s.MinPct = sample.Percentage
		}
		if sample.Percentage > s.MaxPct {
			s.MaxPct = sample.Percentage
		}
		if sample.BackupMinutes < s.MinBackupMn {
			s.MinBackupMn = sample.BackupMinutes
		}
	}
	s.AvgPct = sum / float64(len(state.BatterySamples))

	s.EODBatteryLow = last.Percentage <= settings.EODBatteryWarnPct

	return s
}

// Render formats the summary as the plain-text report body.
func (s Summary) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Daily report for %s\n\n", s.Date)

	if s.Samples == 0 {
		b.WriteString("No battery readings were recorded.\n")
	} else {
		fmt.Fprintf(&b, "Battery: start %.0f%%, end %.0f%% (min %.0f%%, avg %.0f%%, max %.0f%%)\n",
			s.StartPct, s.EndPct, s.MinPct, s.AvgPct, s.MaxPct)
		fmt.Fprintf(&b, "Lowest backup runway: %.0f minutes\n", s.MinBackupMn)
	}

	fmt.Fprintf(&b, "\nActions: %d reserve writes, %d setpoint writes, %d reverts, %d precools\n",
		s.ReserveWrites, s.SetpointWrites, s.Reverts, s.Precools)
	if s.Notifications > 0 {
		fmt.Fprintf(&b, "Notifications sent: %d\n", s.Notifications)
	}
	if s.FailedActions > 0 {
		fmt.Fprintf(&b, "FAILED actions: %d\n", s.FailedActions)
	}
	if s.EODBatteryLow {
		fmt.Fprintf(&b, "\nWARNING: battery ended the day at %.0f%%\n", s.EndPct)
	}

	return b.String()
}

// Level returns the notification level the report should be delivered at.
func (s Summary) Level() types.NotificationLevel {
	if s.FailedActions > 0 || s.EODBatteryLow {
		return types.LevelWarning
	}
	return types.LevelInfo
}
