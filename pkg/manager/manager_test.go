package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/peakshed/peakshed/pkg/battery"
	"github.com/peakshed/peakshed/pkg/forecast"
	"github.com/peakshed/peakshed/pkg/notify"
	"github.com/peakshed/peakshed/pkg/storage"
	"github.com/peakshed/peakshed/pkg/storage/storagemock"
	"github.com/peakshed/peakshed/pkg/thermostat"
	"github.com/peakshed/peakshed/pkg/types"
)

// 2026-07-15 is a Wednesday in the default summer season.
func summerDay(hour, minute int) time.Time {
	return time.Date(2026, time.July, 15, hour, minute, 0, 0, time.Local)
}

type fixtures struct {
	battery  *battery.Mock
	thermo   *thermostat.Mock
	forecast *forecast.Mock
	notifier *notify.Mock
	db       storage.Database
}

func testManager(t *testing.T, settings types.Settings, now time.Time) (*Manager, *fixtures) {
	t.Helper()

	db, err := storage.NewFileProvider(t.TempDir())
	require.NoError(t, err)

	f := &fixtures{
		battery:  battery.NewMock(),
		thermo:   thermostat.NewMock(settings.ThermostatIDs...),
		forecast: forecast.NewMock(90),
		notifier: &notify.Mock{},
		db:       db,
	}
	m := New(settings, Deps{
		Battery:    f.battery,
		Thermostat: f.thermo,
		Forecast:   f.forecast,
		Storage:    db,
		Notifier:   f.notifier,
	})
	m.now = func() time.Time { return now }
	return m, f
}

func testSettings() types.Settings {
	s := types.DefaultSettings()
	s.ThermostatIDs = []string{"den", "loft"}
	return s
}

func TestRunCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("FirstCycleOffPeak", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(10, 0))

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)

		assert.Equal(t, types.PeriodOffPeak, res.Period)
		assert.Equal(t, []int{20}, f.battery.SetReserveCalls)
		assert.Empty(t, f.thermo.SetCalls)

		state, err := f.db.LoadState(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2026-07-15", state.Date)
		assert.Equal(t, 20, state.LastAppliedReservePct)
		assert.Len(t, state.BatterySamples, 1)
		assert.Equal(t, float64(80), state.DayStartBatteryPct)
		require.NotNil(t, state.LastDecision)
		assert.Equal(t, res.CycleID, state.LastDecision.CycleID)
	})

	t.Run("PeakDropsReserve", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(17, 0))
		require.NoError(t, f.db.SaveState(ctx, types.PersistedState{
			Version:               types.CurrentStateVersion,
			Date:                  "2026-07-15",
			LastAppliedReservePct: 20,
		}))

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)

		assert.Equal(t, types.PeriodPeak, res.Period)
		assert.Equal(t, []int{0}, f.battery.SetReserveCalls)
		// healthy battery, no rule matches
		assert.Empty(t, f.thermo.SetCalls)
	})

	t.Run("SteadyStateIssuesNoWrites", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(10, 0))

		_, err := m.RunCycle(ctx)
		require.NoError(t, err)
		require.Len(t, f.battery.SetReserveCalls, 1)

		// same period, same battery, nothing changed
		_, err = m.RunCycle(ctx)
		require.NoError(t, err)
		assert.Len(t, f.battery.SetReserveCalls, 1)
		assert.Empty(t, f.thermo.SetCalls)

		state, err := f.db.LoadState(ctx)
		require.NoError(t, err)
		assert.Len(t, state.BatterySamples, 2)
		// only the single initial reserve write was recorded
		assert.Len(t, state.Actions, 1)
	})

	t.Run("RunwayDeltaAppliedOnce", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(17, 0))
		f.battery.SetSnapshot(types.BatterySnapshot{Percentage: 40, BackupMinutes: 50})

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.ThermostatDeltaF)
		require.Len(t, f.thermo.SetCalls, 2)
		assert.Equal(t, thermostat.SetCall{DeviceID: "den", CoolF: 78}, f.thermo.SetCalls[0])
		assert.Equal(t, thermostat.SetCall{DeviceID: "loft", CoolF: 78}, f.thermo.SetCalls[1])

		// same delta next cycle, no re-apply
		_, err = m.RunCycle(ctx)
		require.NoError(t, err)
		assert.Len(t, f.thermo.SetCalls, 2)
	})

	t.Run("DeltaEscalates", func(t *testing.T) {
		settings := testSettings()
		settings.Rules = []types.ThresholdRule{
			{MaxBackupMinutes: 30, MaxBatteryPct: 25, DeltaF: 4},
			{MaxBackupMinutes: 120, MaxBatteryPct: 75, DeltaF: 2},
		}
		m, f := testManager(t, settings, summerDay(17, 0))
		f.battery.SetSnapshot(types.BatterySnapshot{Percentage: 60, BackupMinutes: 90})

		_, err := m.RunCycle(ctx)
		require.NoError(t, err)
		require.Len(t, f.thermo.SetCalls, 2)
		assert.Equal(t, 78, f.thermo.SetCalls[0].CoolF)

		// battery drained further, first rule now matches
		f.battery.SetSnapshot(types.BatterySnapshot{Percentage: 20, BackupMinutes: 25})
		_, err = m.RunCycle(ctx)
		require.NoError(t, err)
		require.Len(t, f.thermo.SetCalls, 4)
		assert.Equal(t, 80, f.thermo.SetCalls[2].CoolF)
	})

	t.Run("RevertOnceAfterPeak", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(20, 0))
		require.NoError(t, f.db.SaveState(ctx, types.PersistedState{
			Version:               types.CurrentStateVersion,
			Date:                  "2026-07-15",
			AppliedDeltaF:         2,
			LastAppliedReservePct: 20,
		}))

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.True(t, res.HasReason(types.ReasonDeltaReverted))
		require.Len(t, f.thermo.SetCalls, 2)
		assert.Equal(t, 76, f.thermo.SetCalls[0].CoolF)

		state, err := f.db.LoadState(ctx)
		require.NoError(t, err)
		assert.Zero(t, state.AppliedDeltaF)
		assert.False(t, state.PrecoolingActive)

		// already reverted, next cycle writes nothing
		_, err = m.RunCycle(ctx)
		require.NoError(t, err)
		assert.Len(t, f.thermo.SetCalls, 2)
	})

	t.Run("PrecoolStartsOnce", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(15, 45))
		f.forecast.SetHighF(98)

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.PeriodPrePeak, res.Period)
		assert.True(t, res.PrecoolActive)
		require.Len(t, f.thermo.SetCalls, 2)
		assert.Equal(t, 73, f.thermo.SetCalls[0].CoolF)

		state, err := f.db.LoadState(ctx)
		require.NoError(t, err)
		assert.True(t, state.PrecoolingActive)

		_, err = m.RunCycle(ctx)
		require.NoError(t, err)
		assert.Len(t, f.thermo.SetCalls, 2)
	})

	t.Run("PrecoolBelowThresholdDoesNothing", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(15, 45))
		f.forecast.SetHighF(88)

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.False(t, res.PrecoolActive)
		assert.True(t, res.HasReason(types.ReasonPrecoolBelowThresh))
		assert.Empty(t, f.thermo.SetCalls)
	})

	t.Run("SetpointClamped", func(t *testing.T) {
		settings := testSettings()
		settings.Rules = []types.ThresholdRule{
			{MaxBackupMinutes: 120, MaxBatteryPct: 75, DeltaF: 20},
		}
		m, f := testManager(t, settings, summerDay(17, 0))
		f.battery.SetSnapshot(types.BatterySnapshot{Percentage: 40, BackupMinutes: 50})

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.True(t, res.HasReason(types.ReasonSetpointClamped))
		require.Len(t, f.thermo.SetCalls, 2)
		assert.Equal(t, 85, f.thermo.SetCalls[0].CoolF)
	})

	t.Run("DryRunIssuesNoWrites", func(t *testing.T) {
		settings := testSettings()
		settings.DryRun = true
		m, f := testManager(t, settings, summerDay(17, 0))
		f.battery.SetSnapshot(types.BatterySnapshot{Percentage: 40, BackupMinutes: 50})

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.True(t, res.HasReason(types.ReasonDryRun))
		assert.Empty(t, f.battery.SetReserveCalls)
		assert.Empty(t, f.thermo.SetCalls)

		// the would-be actions are still recorded
		state, err := f.db.LoadState(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, state.Actions)
		for _, a := range state.Actions {
			assert.True(t, a.DryRun)
		}
		assert.Equal(t, 0, state.LastAppliedReservePct)
		assert.Equal(t, 2, state.AppliedDeltaF)
	})

	t.Run("CollaboratorsUnavailableDegrade", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(17, 0))
		f.battery.SnapshotErr = errors.New("gateway timeout")
		f.forecast.Err = errors.New("upstream unavailable")

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.True(t, res.HasReason(types.ReasonBatteryUnavailable))
		assert.Nil(t, res.Battery)
		// reserve policy only needs the period, so it still applies
		assert.Equal(t, []int{0}, f.battery.SetReserveCalls)
		assert.Empty(t, f.thermo.SetCalls)

		state, err := f.db.LoadState(ctx)
		require.NoError(t, err)
		assert.Empty(t, state.BatterySamples)
	})

	t.Run("ReserveWriteFailureRecorded", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(10, 0))
		f.battery.SetReserveErr = errors.New("powerwall busy")

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.True(t, res.HasReason(types.ReasonReserveApplyFailed))
		assert.GreaterOrEqual(t, res.Level, types.LevelWarning)

		state, err := f.db.LoadState(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, state.Actions)
		assert.True(t, state.Actions[0].Failed)
		assert.Equal(t, "powerwall busy", state.Actions[0].Error)
		// not applied, so the next cycle retries
		assert.Equal(t, -1, state.LastAppliedReservePct)
	})

	t.Run("SetpointWriteFailureRetriesNextCycle", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(17, 0))
		f.battery.SetSnapshot(types.BatterySnapshot{Percentage: 40, BackupMinutes: 50})
		f.thermo.SetErr = errors.New("lyric 500")

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.True(t, res.HasReason(types.ReasonSetpointApplyFailed))

		state, err := f.db.LoadState(ctx)
		require.NoError(t, err)
		assert.Zero(t, state.AppliedDeltaF)

		f.thermo.SetErr = nil
		_, err = m.RunCycle(ctx)
		require.NoError(t, err)
		require.Len(t, f.thermo.SetCalls, 2)

		state, err = f.db.LoadState(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, state.AppliedDeltaF)
	})

	t.Run("DayRollover", func(t *testing.T) {
		m, f := testManager(t, testSettings(), summerDay(0, 5))
		require.NoError(t, f.db.SaveState(ctx, types.PersistedState{
			Version:               types.CurrentStateVersion,
			Date:                  "2026-07-14",
			LastAppliedReservePct: 20,
			BatterySamples: []types.BatterySample{
				{Timestamp: summerDay(0, 0).AddDate(0, 0, -1), Percentage: 55},
			},
		}))

		_, err := m.RunCycle(ctx)
		require.NoError(t, err)

		archived, err := f.db.LoadArchivedDay(ctx, "2026-07-14")
		require.NoError(t, err)
		assert.Len(t, archived.BatterySamples, 1)

		state, err := f.db.LoadState(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2026-07-15", state.Date)
		assert.Len(t, state.BatterySamples, 1)
		// reserve bookkeeping survives midnight, no redundant write
		assert.Empty(t, f.battery.SetReserveCalls)
	})

	t.Run("CorruptStateReinitializes", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("LoadState", mock.Anything).Return(types.PersistedState{}, storage.ErrCorrupt)
		db.On("SaveState", mock.Anything, mock.Anything).Return(nil)

		m, _ := testManager(t, testSettings(), summerDay(10, 0))
		m.deps.Storage = db

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.True(t, res.HasReason(types.ReasonStateReinitialized))
		assert.Equal(t, types.LevelCritical, res.Level)
		db.AssertExpectations(t)
	})

	t.Run("SaveFailureSurfaces", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("LoadState", mock.Anything).Return(types.PersistedState{}, storage.ErrNotFound)
		db.On("SaveState", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		m, _ := testManager(t, testSettings(), summerDay(10, 0))
		m.deps.Storage = db

		res, err := m.RunCycle(ctx)
		require.NoError(t, err)
		assert.True(t, res.HasReason(types.ReasonPersistSaveFailed))
		assert.GreaterOrEqual(t, res.Level, types.LevelWarning)
	})

	t.Run("LoadFailureFailsCycle", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("LoadState", mock.Anything).Return(types.PersistedState{}, errors.New("connection refused"))

		m, f := testManager(t, testSettings(), summerDay(10, 0))
		m.deps.Storage = db

		_, err := m.RunCycle(ctx)
		require.Error(t, err)
		assert.Empty(t, f.battery.SetReserveCalls)
		assert.Equal(t, "failed", m.Status().CycleState)

		// hard failures page the operator
		require.Len(t, f.notifier.Sent, 1)
		assert.Equal(t, types.LevelCritical, f.notifier.Sent[0].Level)
	})

	t.Run("OverlapSkipped", func(t *testing.T) {
		m, _ := testManager(t, testSettings(), summerDay(10, 0))
		require.True(t, m.begin())

		_, err := m.RunCycle(ctx)
		assert.ErrorIs(t, err, ErrCycleInProgress)
	})
}

func TestNotificationBoundaries(t *testing.T) {
	ctx := context.Background()
	m, f := testManager(t, testSettings(), summerDay(17, 0))
	f.battery.SetSnapshot(types.BatterySnapshot{Percentage: 40, BackupMinutes: 50})

	// first warning cycle notifies
	res, err := m.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, types.LevelWarning, res.Level)
	require.Len(t, f.notifier.Sent, 1)
	assert.Equal(t, types.LevelWarning, f.notifier.Sent[0].Level)
	assert.Equal(t, "battery runway low during peak", f.notifier.Sent[0].Subject)

	// steady warning is suppressed
	_, err = m.RunCycle(ctx)
	require.NoError(t, err)
	assert.Len(t, f.notifier.Sent, 1)

	// recovery drops the level without a send, then a fresh warning notifies
	f.battery.SetSnapshot(types.BatterySnapshot{Percentage: 80, BackupMinutes: 240})
	_, err = m.RunCycle(ctx)
	require.NoError(t, err)
	assert.Len(t, f.notifier.Sent, 1)

	f.battery.SetSnapshot(types.BatterySnapshot{Percentage: 40, BackupMinutes: 50})
	_, err = m.RunCycle(ctx)
	require.NoError(t, err)
	assert.Len(t, f.notifier.Sent, 2)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	m, _ := testManager(t, testSettings(), summerDay(10, 0))

	st := m.Status()
	assert.Equal(t, "idle", st.CycleState)
	assert.Nil(t, st.LastDecision)

	res, err := m.RunCycle(ctx)
	require.NoError(t, err)

	st = m.Status()
	assert.Equal(t, "idle", st.CycleState)
	require.NotNil(t, st.LastDecision)
	assert.Equal(t, res.CycleID, st.LastDecision.CycleID)
	assert.Equal(t, summerDay(10, 0), st.LastRunAt)
}

func TestRunLoop(t *testing.T) {
	m, f := testManager(t, testSettings(), summerDay(10, 0))
	m.settings.CycleInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		state, err := f.db.LoadState(ctx)
		return err == nil && len(state.BatterySamples) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop")
	}
}
