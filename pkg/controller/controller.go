// Package controller holds the pure decision logic for one control cycle:
// period classification, reserve policy, precool policy, and the runway
// threshold table. Nothing in this package performs I/O; the manager feeds
// it snapshots and applies its output.
package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/schedule"
	"github.com/peakshed/peakshed/pkg/types"
)

// Inputs is everything a decision depends on. Battery and ForecastHighF are
// nil when the corresponding collaborator had no data this cycle; the
// decision proceeds with defined defaults rather than failing.
type Inputs struct {
	Now      time.Time
	Settings types.Settings

	Battery       *types.BatterySnapshot
	ForecastHighF *float64
}

// Controller composes the pure decision components.
type Controller struct {
}

// NewController creates a new Controller.
func NewController() *Controller {
	return &Controller{}
}

// Decide produces the DecisionResult for one cycle. It never returns an
// error for expected input variation (missing forecast, missing battery
// data, no matching rule); those degrade to defaults with a reason code and
// a notification level.
func (c *Controller) Decide(ctx context.Context, in Inputs) types.DecisionResult {
	res := types.DecisionResult{
		Timestamp: in.Now,
		Period:    types.PeriodOffPeak,
		Battery:   in.Battery,
	}

	raise := func(l types.NotificationLevel) {
		if l > res.Level {
			res.Level = l
		}
	}
	reason := func(code types.ReasonCode) {
		res.ReasonCodes = append(res.ReasonCodes, code)
	}

	season, period, err := schedule.Classify(in.Now, in.Settings.Calendar)
	if err != nil {
		// validated at startup, so this is a real misconfiguration
		log.Ctx(ctx).WarnContext(ctx, "period classification failed", slog.Any("error", err))
		reason(types.ReasonNoSeason)
		raise(types.LevelWarning)
	}
	res.Season = season
	res.Period = period

	res.TargetReservePct = TargetReserve(period, in.Settings.Reserve)
	if period == types.PeriodPeak {
		reason(types.ReasonPeakReserve)
	} else {
		reason(types.ReasonOffPeakReserve)
	}

	// Precool is only a question during the summer pre-peak lead window.
	if period == types.PeriodPrePeak && season == types.SeasonSummer && in.Settings.Precool.Enabled {
		switch {
		case in.ForecastHighF == nil:
			// degraded: no forecast means no precool
			reason(types.ReasonForecastUnavailable)
			raise(types.LevelInfo)
		case ShouldPrecool(season, period, in.ForecastHighF, in.Settings.Precool):
			res.PrecoolActive = true
			reason(types.ReasonPrecool)
		default:
			reason(types.ReasonPrecoolBelowThresh)
		}
	}

	if in.Battery == nil {
		reason(types.ReasonBatteryUnavailable)
		raise(types.LevelInfo)
	} else if period == types.PeriodPeak {
		res.ThermostatDeltaF = ThermostatDelta(*in.Battery, in.Settings.Rules)
		if res.ThermostatDeltaF > 0 {
			reason(types.ReasonRunwayLow)
			raise(types.LevelWarning)
			log.Ctx(ctx).WarnContext(ctx, "battery runway low",
				slog.Float64("percentage", in.Battery.Percentage),
				slog.Float64("backupMinutes", in.Battery.BackupMinutes),
				slog.Int("deltaF", res.ThermostatDeltaF),
			)
		}
	}

	log.Ctx(ctx).DebugContext(ctx, "decision computed",
		slog.String("season", string(res.Season)),
		slog.String("period", string(res.Period)),
		slog.Int("targetReservePct", res.TargetReservePct),
		slog.Bool("precoolActive", res.PrecoolActive),
		slog.Int("thermostatDeltaF", res.ThermostatDeltaF),
		slog.String("level", res.Level.String()),
	)

	return res
}
