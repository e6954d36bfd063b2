package thermostat

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Client for tests and the mock provider.
type Mock struct {
	mu        sync.Mutex
	setpoints map[string]Setpoints

	// GetErr and SetErr are returned by the corresponding calls when set.
	GetErr error
	SetErr error

	// SetCalls records every (deviceID, coolF) passed to SetCoolSetpoint.
	SetCalls []SetCall
}

// SetCall is one recorded SetCoolSetpoint invocation.
type SetCall struct {
	DeviceID string
	CoolF    int
}

// NewMock returns a Mock with the given devices at a 76F cool setpoint.
func NewMock(deviceIDs ...string) *Mock {
	m := &Mock{setpoints: make(map[string]Setpoints)}
	for _, id := range deviceIDs {
		m.setpoints[id] = Setpoints{CoolF: 76, HeatF: 68, Mode: "Cool"}
	}
	return m
}

// SetSetpoints sets what GetSetpoints returns for the device.
func (m *Mock) SetSetpoints(deviceID string, sp Setpoints) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setpoints[deviceID] = sp
}

// GetSetpoints implements Client.
func (m *Mock) GetSetpoints(ctx context.Context, deviceID string) (Setpoints, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return Setpoints{}, m.GetErr
	}
	sp, ok := m.setpoints[deviceID]
	if !ok {
		return Setpoints{}, fmt.Errorf("unknown device: %s", deviceID)
	}
	return sp, nil
}

// SetCoolSetpoint implements Client.
func (m *Mock) SetCoolSetpoint(ctx context.Context, deviceID string, coolF int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	sp, ok := m.setpoints[deviceID]
	if !ok {
		return fmt.Errorf("unknown device: %s", deviceID)
	}
	sp.CoolF = float64(coolF)
	m.setpoints[deviceID] = sp
	m.SetCalls = append(m.SetCalls, SetCall{DeviceID: deviceID, CoolF: coolF})
	return nil
}
