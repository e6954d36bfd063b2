// Package manager runs the control loop: every cycle it fetches collaborator
// state, asks the controller for a decision, applies the difference to the
// battery and thermostats, and persists what it did. The manager is the only
// writer of the persisted daily state.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/battery"
	"github.com/peakshed/peakshed/pkg/config"
	"github.com/peakshed/peakshed/pkg/controller"
	"github.com/peakshed/peakshed/pkg/forecast"
	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/notify"
	"github.com/peakshed/peakshed/pkg/schedule"
	"github.com/peakshed/peakshed/pkg/storage"
	"github.com/peakshed/peakshed/pkg/thermostat"
	"github.com/peakshed/peakshed/pkg/types"
)

// ErrCycleInProgress is returned when a cycle is requested while another is
// still running. The requested cycle is skipped entirely, never queued.
var ErrCycleInProgress = errors.New("cycle already in progress")

// CycleState tracks where the manager is within a cycle.
type CycleState int

const (
	StateIdle CycleState = iota
	StateFetching
	StateDeciding
	StateApplying
	StateReporting
	StateFailed
)

func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateDeciding:
		return "deciding"
	case StateApplying:
		return "applying"
	case StateReporting:
		return "reporting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Publisher publishes per-cycle telemetry. Optional.
type Publisher interface {
	PublishDecision(ctx context.Context, d types.DecisionResult) error
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Battery    battery.Client
	Thermostat thermostat.Client
	Forecast   forecast.Client
	Storage    storage.Database
	Notifier   notify.Notifier
	Publisher  Publisher
}

// Manager owns the persisted daily state and runs decision cycles against
// it.
type Manager struct {
	settings types.Settings
	deps     Deps
	ctrl     *controller.Controller

	// now is replaceable for tests.
	now func() time.Time

	mu         sync.Mutex
	running    bool
	cycleState CycleState
	lastResult *types.DecisionResult
	lastRunAt  time.Time
	lastErr    error
}

// New creates a Manager.
func New(settings types.Settings, deps Deps) *Manager {
	return &Manager{
		settings: settings,
		deps:     deps,
		ctrl:     controller.NewController(),
		now:      time.Now,
	}
}

// Configured wires a Manager from the configured providers. Settings and
// notification targets are only populated once flags are parsed, so the
// wiring is deferred until after lflag.Configure.
func Configured(conf *config.Loaded, b battery.Client, t thermostat.Client, f forecast.Client, s storage.Database, n *notify.ConfiguredNotify) *Manager {
	m := &Manager{
		ctrl: controller.NewController(),
		now:  time.Now,
	}
	lflag.Do(func() {
		m.settings = conf.Settings
		m.deps = Deps{
			Battery:    b,
			Thermostat: t,
			Forecast:   f,
			Storage:    s,
			Notifier:   n.Notifier,
		}
		if n.Telemetry != nil {
			m.deps.Publisher = n.Telemetry
		}
	})
	return m
}

// begin marks a cycle as running. It returns false when one already is.
func (m *Manager) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}
	m.running = true
	return true
}

func (m *Manager) end(res *types.DecisionResult, runAt time.Time, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	if err != nil {
		m.cycleState = StateFailed
	} else {
		m.cycleState = StateIdle
	}
	m.lastResult = res
	m.lastRunAt = runAt
	m.lastErr = err
}

func (m *Manager) setState(s CycleState) {
	m.mu.Lock()
	m.cycleState = s
	m.mu.Unlock()
}

// Status is a snapshot of the manager for the HTTP API.
type Status struct {
	CycleState   string                `json:"cycleState"`
	LastRunAt    time.Time             `json:"lastRunAt,omitempty"`
	LastError    string                `json:"lastError,omitempty"`
	LastDecision *types.DecisionResult `json:"lastDecision,omitempty"`
}

// Status returns the manager's current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		CycleState:   m.cycleState.String(),
		LastRunAt:    m.lastRunAt,
		LastDecision: m.lastResult,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// RunCycle runs one full decision cycle. It returns ErrCycleInProgress when
// another cycle is still running; the caller should skip, not wait.
func (m *Manager) RunCycle(ctx context.Context) (types.DecisionResult, error) {
	if !m.begin() {
		return types.DecisionResult{}, ErrCycleInProgress
	}

	now := m.now()
	cycleID := uuid.NewString()
	ctx = log.WithCycle(ctx, cycleID)

	res, err := m.runCycle(ctx, now, cycleID)
	if err != nil && m.deps.Notifier != nil {
		if nerr := m.deps.Notifier.Send(ctx, types.LevelCritical, "control cycle failed", err.Error()); nerr != nil {
			log.Ctx(ctx).WarnContext(ctx, "notification failed", slog.Any("error", nerr))
		}
	}
	m.end(&res, now, err)
	return res, err
}

func (m *Manager) runCycle(ctx context.Context, now time.Time, cycleID string) (types.DecisionResult, error) {
	log.Ctx(ctx).DebugContext(ctx, "cycle started", slog.Time("now", now))

	m.setState(StateFetching)

	state, reinitialized, err := m.loadState(ctx, now)
	if err != nil {
		return types.DecisionResult{}, err
	}

	state = m.rollOverDay(ctx, state, now)

	// Collaborator reads degrade to nil rather than failing the cycle.
	var snap *types.BatterySnapshot
	if s, err := m.deps.Battery.GetSnapshot(ctx); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "battery snapshot unavailable", slog.Any("error", err))
	} else {
		snap = &s
		if len(state.BatterySamples) == 0 {
			state.DayStartBatteryPct = s.Percentage
		}
		state.BatterySamples = append(state.BatterySamples, types.BatterySample{
			Timestamp:     now,
			Percentage:    s.Percentage,
			BackupMinutes: s.BackupMinutes,
		})
	}

	var forecastHigh *float64
	if m.settings.Precool.Enabled {
		if high, err := m.deps.Forecast.HighF(ctx, now); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "forecast unavailable", slog.Any("error", err))
		} else {
			forecastHigh = &high
		}
	}

	m.setState(StateDeciding)

	res := m.ctrl.Decide(ctx, controller.Inputs{
		Now:           now,
		Settings:      m.settings,
		Battery:       snap,
		ForecastHighF: forecastHigh,
	})
	res.CycleID = cycleID
	if res.Period == types.PeriodPeak {
		if mins, ok := schedule.PeakTimeRemaining(now, m.settings.Calendar); ok {
			log.Ctx(ctx).DebugContext(ctx, "peak window active", slog.Int("minutesRemaining", mins))
		}
	}
	if reinitialized {
		res.ReasonCodes = append(res.ReasonCodes, types.ReasonStateReinitialized)
		res.Level = types.LevelCritical
	}
	if m.settings.DryRun {
		res.ReasonCodes = append(res.ReasonCodes, types.ReasonDryRun)
	}

	m.setState(StateApplying)

	m.applyReserve(ctx, &state, &res, now)
	m.applySetpoints(ctx, &state, &res, now)

	m.setState(StateReporting)

	m.notifyDecision(ctx, &state, &res, now)

	if m.deps.Publisher != nil {
		if err := m.deps.Publisher.PublishDecision(ctx, res); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "telemetry publish failed", slog.Any("error", err))
		}
	}

	state.Version = types.CurrentStateVersion
	state.LastDecision = &res
	state.LastRunAt = now
	if err := m.deps.Storage.SaveState(ctx, state); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist state", slog.Any("error", err))
		res.ReasonCodes = append(res.ReasonCodes, types.ReasonPersistSaveFailed)
		if res.Level < types.LevelWarning {
			res.Level = types.LevelWarning
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "cycle finished",
		slog.String("period", string(res.Period)),
		slog.Int("targetReservePct", res.TargetReservePct),
		slog.Int("thermostatDeltaF", res.ThermostatDeltaF),
		slog.Bool("precoolActive", res.PrecoolActive),
		slog.String("level", res.Level.String()),
	)
	return res, nil
}

// loadState loads and migrates the persisted state. Missing or corrupt
// records reinitialize rather than failing.
func (m *Manager) loadState(ctx context.Context, now time.Time) (types.PersistedState, bool, error) {
	state, err := m.deps.Storage.LoadState(ctx)
	switch {
	case err == nil:
		migrated, changed, err := types.MigrateState(state, state.Version)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "state migration failed, reinitializing", slog.Any("error", err))
			return types.DefaultPersistedState(now), true, nil
		}
		if changed {
			log.Ctx(ctx).InfoContext(ctx, "state migrated",
				slog.Int("from", state.Version), slog.Int("to", types.CurrentStateVersion))
		}
		return migrated, false, nil
	case errors.Is(err, storage.ErrNotFound):
		log.Ctx(ctx).InfoContext(ctx, "no persisted state, starting fresh")
		return types.DefaultPersistedState(now), false, nil
	case errors.Is(err, storage.ErrCorrupt):
		log.Ctx(ctx).WarnContext(ctx, "persisted state corrupt, reinitializing", slog.Any("error", err))
		return types.DefaultPersistedState(now), true, nil
	default:
		return types.PersistedState{}, false, fmt.Errorf("failed to load state: %w", err)
	}
}

// rollOverDay archives the previous day's state and starts a new record when
// the local date has changed.
func (m *Manager) rollOverDay(ctx context.Context, state types.PersistedState, now time.Time) types.PersistedState {
	today := now.Format(time.DateOnly)
	if state.Date == today {
		return state
	}

	if state.Date != "" {
		if err := m.deps.Storage.ArchiveDay(ctx, state); err != nil {
			// the old day's data is lost but the new day must start anyway
			log.Ctx(ctx).ErrorContext(ctx, "failed to archive day",
				slog.String("date", state.Date), slog.Any("error", err))
		}
	}

	fresh := types.DefaultPersistedState(now)
	// carry the reserve bookkeeping across midnight so we don't issue a
	// redundant write at 00:00
	fresh.LastAppliedReservePct = state.LastAppliedReservePct
	// an active delta is carried so the first OFF_PEAK cycle reverts it
	fresh.AppliedDeltaF = state.AppliedDeltaF
	fresh.PrecoolingActive = state.PrecoolingActive
	return fresh
}

func (m *Manager) record(state *types.PersistedState, a types.ActionRecord) {
	a.ID = uuid.NewString()
	a.DryRun = m.settings.DryRun
	state.Actions = append(state.Actions, a)
}

// applyReserve writes the target backup reserve when it differs from the
// last applied value. Equal targets produce no call at all.
func (m *Manager) applyReserve(ctx context.Context, state *types.PersistedState, res *types.DecisionResult, now time.Time) {
	target := res.TargetReservePct
	if target == state.LastAppliedReservePct {
		return
	}

	action := types.ActionRecord{
		Timestamp: now,
		Type:      types.ActionSetReserve,
		Target:    "battery",
		From:      state.LastAppliedReservePct,
		To:        target,
	}
	if res.Period == types.PeriodPeak {
		action.Reason = types.ReasonPeakReserve
	} else {
		action.Reason = types.ReasonOffPeakReserve
	}

	if m.settings.DryRun {
		log.Ctx(ctx).InfoContext(ctx, "dry run: would've set reserve",
			slog.Int("from", state.LastAppliedReservePct), slog.Int("to", target))
		m.record(state, action)
		state.LastAppliedReservePct = target
		return
	}

	if err := m.deps.Battery.SetReserve(ctx, target); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to set reserve",
			slog.Int("pct", target), slog.Any("error", err))
		action.Failed = true
		action.Error = err.Error()
		m.record(state, action)
		res.ReasonCodes = append(res.ReasonCodes, types.ReasonReserveApplyFailed)
		if res.Level < types.LevelWarning {
			res.Level = types.LevelWarning
		}
		return
	}
	m.record(state, action)
	state.LastAppliedReservePct = target
}

// clampSetpoint bounds a target setpoint to the configured range.
func (m *Manager) clampSetpoint(target int) (int, bool) {
	if target > m.settings.MaxSetpointF {
		return m.settings.MaxSetpointF, true
	}
	if target < m.settings.MinSetpointF {
		return m.settings.MinSetpointF, true
	}
	return target, false
}

// writeSetpoint applies one setpoint to every thermostat, recording an
// action per device. It returns true when all writes succeeded.
func (m *Manager) writeSetpoint(ctx context.Context, state *types.PersistedState, res *types.DecisionResult, now time.Time, target int, actionType types.ActionType, reason types.ReasonCode) bool {
	clamped, wasClamped := m.clampSetpoint(target)
	if wasClamped && !res.HasReason(types.ReasonSetpointClamped) {
		log.Ctx(ctx).WarnContext(ctx, "setpoint clamped",
			slog.Int("requested", target), slog.Int("clamped", clamped))
		res.ReasonCodes = append(res.ReasonCodes, types.ReasonSetpointClamped)
	}

	ok := true
	for _, id := range m.settings.ThermostatIDs {
		action := types.ActionRecord{
			Timestamp: now,
			Type:      actionType,
			Target:    id,
			From:      m.settings.BaselineCoolF + state.AppliedDeltaF,
			To:        clamped,
			Reason:    reason,
		}

		if m.settings.DryRun {
			log.Ctx(ctx).InfoContext(ctx, "dry run: would've set setpoint",
				slog.String("deviceID", id), slog.Int("coolF", clamped))
			m.record(state, action)
			continue
		}

		if err := m.deps.Thermostat.SetCoolSetpoint(ctx, id, clamped); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to set setpoint",
				slog.String("deviceID", id), slog.Int("coolF", clamped), slog.Any("error", err))
			action.Failed = true
			action.Error = err.Error()
			ok = false
		}
		m.record(state, action)
	}

	if !ok {
		res.ReasonCodes = append(res.ReasonCodes, types.ReasonSetpointApplyFailed)
		if res.Level < types.LevelWarning {
			res.Level = types.LevelWarning
		}
	}
	return ok
}

// applySetpoints drives the thermostats toward the decision: start precool
// once per window, escalate the peak delta when it grows, and revert
// everything exactly once after the peak ends.
func (m *Manager) applySetpoints(ctx context.Context, state *types.PersistedState, res *types.DecisionResult, now time.Time) {
	if len(m.settings.ThermostatIDs) == 0 {
		return
	}
	baseline := m.settings.BaselineCoolF

	switch {
	case res.PrecoolActive && !state.PrecoolingActive:
		target := baseline - m.settings.Precool.AdjustmentF
		if m.writeSetpoint(ctx, state, res, now, target, types.ActionStartPrecool, types.ReasonPrecool) {
			state.PrecoolingActive = true
		}

	case res.Period == types.PeriodPeak && res.ThermostatDeltaF > state.AppliedDeltaF:
		// deltas only escalate within a peak window, never shrink
		target := baseline + res.ThermostatDeltaF
		if m.writeSetpoint(ctx, state, res, now, target, types.ActionSetSetpoint, types.ReasonThermostatDeltaApply) {
			state.AppliedDeltaF = res.ThermostatDeltaF
		}

	case res.Period == types.PeriodOffPeak && (state.AppliedDeltaF != 0 || state.PrecoolingActive):
		if m.writeSetpoint(ctx, state, res, now, baseline, types.ActionRevertDeltas, types.ReasonDeltaReverted) {
			state.AppliedDeltaF = 0
			state.PrecoolingActive = false
			res.ReasonCodes = append(res.ReasonCodes, types.ReasonDeltaReverted)
		}
	}
}

// notifyDecision delivers a notification when the level crossed a boundary
// since the last one, or every cycle at CRITICAL.
func (m *Manager) notifyDecision(ctx context.Context, state *types.PersistedState, res *types.DecisionResult, now time.Time) {
	level := res.Level
	send := level == types.LevelCritical ||
		(level >= types.LevelInfo && level != state.LastNotifiedLevel)

	if send && m.deps.Notifier != nil {
		subject := fmt.Sprintf("%s during %s", res.Period, res.Season)
		if res.HasReason(types.ReasonRunwayLow) {
			subject = "battery runway low during peak"
		}
		if err := m.deps.Notifier.Send(ctx, level, subject, renderBody(res)); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "notification failed", slog.Any("error", err))
		} else if level >= types.LevelWarning {
			m.record(state, types.ActionRecord{
				Timestamp: now,
				Type:      types.ActionNotification,
				Target:    level.String(),
			})
		}
	}
	state.LastNotifiedLevel = level
}

func renderBody(res *types.DecisionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cycle %s at %s\n", res.CycleID, res.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Season %s, period %s, target reserve %d%%\n", res.Season, res.Period, res.TargetReservePct)
	if res.Battery != nil {
		fmt.Fprintf(&b, "Battery %.0f%% with %.0f minutes of backup\n",
			res.Battery.Percentage, res.Battery.BackupMinutes)
	}
	if res.ThermostatDeltaF > 0 {
		fmt.Fprintf(&b, "Thermostat delta +%dF\n", res.ThermostatDeltaF)
	}
	reasons := make([]string, len(res.ReasonCodes))
	for i, r := range res.ReasonCodes {
		reasons[i] = string(r)
	}
	fmt.Fprintf(&b, "Reasons: %s\n", strings.Join(reasons, ", "))
	return b.String()
}

// Run executes cycles on the configured interval until the context is
// canceled. The first cycle runs immediately. A tick that fires while a
// cycle is still running is skipped entirely.
func (m *Manager) Run(ctx context.Context) error {
	log.Ctx(ctx).InfoContext(ctx, "control loop starting",
		slog.Duration("interval", m.settings.CycleInterval),
		slog.Bool("dryRun", m.settings.DryRun),
	)

	if _, err := m.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		log.Ctx(ctx).ErrorContext(ctx, "cycle failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(m.settings.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "control loop stopping")
			return ctx.Err()
		case <-ticker.C:
			_, err := m.RunCycle(ctx)
			switch {
			case errors.Is(err, ErrCycleInProgress):
				log.Ctx(ctx).WarnContext(ctx, "cycle skipped, previous cycle still running")
			case err != nil:
				log.Ctx(ctx).ErrorContext(ctx, "cycle failed", slog.Any("error", err))
			}
		}
	}
}
