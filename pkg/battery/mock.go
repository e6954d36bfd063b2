package battery

import (
	"context"
	"sync"

	"github.com/peakshed/peakshed/pkg/types"
)

// Mock is an in-memory Client for tests and the mock provider.
type Mock struct {
	mu       sync.Mutex
	snapshot types.BatterySnapshot
	reserve  int

	// SnapshotErr, ReserveErr, and SetReserveErr are returned by the
	// corresponding calls when set.
	SnapshotErr   error
	ReserveErr    error
	SetReserveErr error

	// SetReserveCalls records every percentage passed to SetReserve.
	SetReserveCalls []int
}

// NewMock returns a Mock seeded with a healthy battery.
func NewMock() *Mock {
	return &Mock{
		snapshot: types.BatterySnapshot{Percentage: 80, BackupMinutes: 240},
		reserve:  20,
	}
}

// SetSnapshot sets what GetSnapshot returns.
func (m *Mock) SetSnapshot(snap types.BatterySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snap
}

// GetSnapshot implements Client.
func (m *Mock) GetSnapshot(ctx context.Context) (types.BatterySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SnapshotErr != nil {
		return types.BatterySnapshot{}, m.SnapshotErr
	}
	return m.snapshot, nil
}

// GetReserve implements Client.
func (m *Mock) GetReserve(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReserveErr != nil {
		return 0, m.ReserveErr
	}
	return m.reserve, nil
}

// SetReserve implements Client.
func (m *Mock) SetReserve(ctx context.Context, pct int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetReserveErr != nil {
		return m.SetReserveErr
	}
	m.reserve = pct
	m.SetReserveCalls = append(m.SetReserveCalls, pct)
	return nil
}
