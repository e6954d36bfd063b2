// Command seed writes a plausible day of control data into storage for
// local development, so the history API and dailyreport have something to
// show without waiting a day.
package main

import (
	"context"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/storage"
	"github.com/peakshed/peakshed/pkg/types"
)

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// yesterday, midnight to midnight, one sample per 5 minutes
	day := time.Now().AddDate(0, 0, -1)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.Local)

	state := types.DefaultPersistedState(start)
	state.LastAppliedReservePct = 20

	soc := 95.0
	for ts := start; ts.Before(start.Add(24 * time.Hour)); ts = ts.Add(5 * time.Minute) {
		hour := ts.Hour()

		// discharge through the evening peak, recharge overnight and from
		// midday solar
		switch {
		case hour >= 16 && hour < 19:
			soc -= 0.9 + rng.Float64()*0.3
		case hour >= 10 && hour < 15:
			soc = math.Min(100, soc+0.4)
		default:
			soc = math.Min(100, soc+0.05)
		}
		if soc < 5 {
			soc = 5
		}

		// rough runway: full battery covers about 8 hours of average load
		backupMinutes := soc / 100 * 8 * 60

		if len(state.BatterySamples) == 0 {
			state.DayStartBatteryPct = soc
		}
		state.BatterySamples = append(state.BatterySamples, types.BatterySample{
			Timestamp:     ts,
			Percentage:    soc,
			BackupMinutes: backupMinutes,
		})
	}

	peakStart := start.Add(16 * time.Hour)
	peakEnd := start.Add(19 * time.Hour)
	state.Actions = []types.ActionRecord{
		{
			ID:        uuid.NewString(),
			Timestamp: peakStart,
			Type:      types.ActionSetReserve,
			Target:    "battery",
			From:      20,
			To:        0,
			Reason:    types.ReasonPeakReserve,
		},
		{
			ID:        uuid.NewString(),
			Timestamp: peakStart.Add(90 * time.Minute),
			Type:      types.ActionSetSetpoint,
			Target:    "den",
			From:      76,
			To:        78,
			Reason:    types.ReasonThermostatDeltaApply,
		},
		{
			ID:        uuid.NewString(),
			Timestamp: peakEnd.Add(5 * time.Minute),
			Type:      types.ActionSetReserve,
			Target:    "battery",
			From:      0,
			To:        20,
			Reason:    types.ReasonOffPeakReserve,
		},
		{
			ID:        uuid.NewString(),
			Timestamp: peakEnd.Add(5 * time.Minute),
			Type:      types.ActionRevertDeltas,
			Target:    "den",
			From:      78,
			To:        76,
			Reason:    types.ReasonDeltaReverted,
		},
	}
	state.LastRunAt = state.BatterySamples[len(state.BatterySamples)-1].Timestamp

	if err := s.ArchiveDay(ctx, state); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to archive seeded day", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "seeded archived day", "date", state.Date)

	if err := s.Close(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
	}
}
