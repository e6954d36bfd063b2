// Package forecast fetches the daily high temperature forecast used by the
// precool advisor.
package forecast

import (
	"context"
	"time"
)

// Client defines the interface for fetching temperature forecasts.
type Client interface {
	// HighF returns the forecast high in Fahrenheit for the given local date.
	HighF(ctx context.Context, date time.Time) (float64, error)
}
