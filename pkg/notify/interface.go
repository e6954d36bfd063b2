// Package notify delivers decision notifications (email) and per-cycle
// telemetry (MQTT).
package notify

import (
	"context"

	"github.com/peakshed/peakshed/pkg/types"
)

// Notifier delivers a notification for a decision at the given level.
type Notifier interface {
	Send(ctx context.Context, level types.NotificationLevel, subject, body string) error
}
