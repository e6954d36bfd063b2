package forecast

import (
	"context"
	"sync"
	"time"
)

// Mock is an in-memory Client for tests and the mock provider.
type Mock struct {
	mu    sync.Mutex
	highF float64

	// Err is returned by HighF when set.
	Err error
}

// NewMock returns a Mock reporting the given forecast high.
func NewMock(highF float64) *Mock {
	return &Mock{highF: highF}
}

// SetHighF sets what HighF returns.
func (m *Mock) SetHighF(highF float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highF = highF
}

// HighF implements Client.
func (m *Mock) HighF(ctx context.Context, date time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.highF, nil
}
