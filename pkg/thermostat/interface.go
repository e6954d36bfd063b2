// Package thermostat controls the home thermostats: reading setpoints and
// issuing temporary-hold cool setpoint changes for precooling and peak load
// reduction.
package thermostat

import "context"

// Setpoints is the current thermostat state we care about.
type Setpoints struct {
	CoolF float64
	HeatF float64
	// Mode is the operating mode as the API reports it (Cool, Heat, Off).
	Mode string
}

// Client defines the interface for interacting with a thermostat service
// (like Honeywell Lyric).
type Client interface {
	// GetSetpoints returns the current setpoints for the given device.
	GetSetpoints(ctx context.Context, deviceID string) (Setpoints, error)

	// SetCoolSetpoint issues a temporary hold at the given cool setpoint.
	SetCoolSetpoint(ctx context.Context, deviceID string, coolF int) error
}
