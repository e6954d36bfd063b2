// Package battery talks to the home battery system: state of charge, runway,
// and the backup reserve setting the control loop adjusts around peak windows.
package battery

import (
	"context"

	"github.com/peakshed/peakshed/pkg/types"
)

// Client defines the interface for interacting with a home battery system
// (like a Tesla Powerwall gateway).
type Client interface {
	// GetSnapshot returns the current charge percentage and estimated backup
	// runway.
	GetSnapshot(ctx context.Context) (types.BatterySnapshot, error)

	// GetReserve returns the currently configured backup reserve percentage.
	GetReserve(ctx context.Context) (int, error)

	// SetReserve sets the backup reserve percentage.
	SetReserve(ctx context.Context, pct int) error
}
