// Package storage persists the control loop's daily state and the archive of
// completed days.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/types"
)

var (
	// ErrNotFound is returned when no persisted state exists yet.
	ErrNotFound = errors.New("state not found")
	// ErrCorrupt is returned when persisted state exists but cannot be
	// decoded. The manager reinitializes rather than failing the cycle.
	ErrCorrupt = errors.New("state corrupt")
)

// Database defines the interface for persisting control state.
type Database interface {
	// LoadState returns the persisted daily state. Returns ErrNotFound when
	// no state has ever been saved and ErrCorrupt when it cannot be decoded.
	LoadState(ctx context.Context) (types.PersistedState, error)

	// SaveState persists the daily state.
	SaveState(ctx context.Context, state types.PersistedState) error

	// ArchiveDay stores a completed day's state keyed by its date.
	ArchiveDay(ctx context.Context, state types.PersistedState) error

	// LoadArchivedDay returns an archived day by date (YYYY-MM-DD). Returns
	// ErrNotFound when that day was never archived.
	LoadArchivedDay(ctx context.Context, date string) (types.PersistedState, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "file", "Storage provider to use (available: file, firestore)")

	var p struct{ Database }

	f := configuredFile()
	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "file":
			if err := f.Init(); err != nil {
				panic(fmt.Sprintf("file storage init failed: %v", err))
			}
			p.Database = f
		case "firestore":
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
