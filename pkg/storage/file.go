package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/levenlabs/go-lflag"

	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/types"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// FileProvider implements the Database interface on the local filesystem.
// The daily state lives in state.json and completed days under archive/.
// Writes go through a temp file and rename so a crash mid-write never leaves
// a torn state file.
type FileProvider struct {
	dir string
}

// configuredFile sets up the file provider. It registers flags for
// configuration.
func configuredFile() *FileProvider {
	dir := lflag.String("storage-dir", "./data", "Directory for file storage")

	f := &FileProvider{}

	lflag.Do(func() {
		f.dir = *dir
	})

	return f
}

// NewFileProvider returns a FileProvider rooted at dir with its directories
// created. This is primarily used for testing and the report command.
func NewFileProvider(dir string) (*FileProvider, error) {
	f := &FileProvider{dir: dir}
	if err := f.Init(); err != nil {
		return nil, err
	}
	return f, nil
}

// Init creates the storage directories.
func (f *FileProvider) Init() error {
	if f.dir == "" {
		return fmt.Errorf("storage directory cannot be empty")
	}
	if err := os.MkdirAll(filepath.Join(f.dir, "archive"), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}

// Close implements Database. The file provider holds no resources.
func (f *FileProvider) Close() error {
	return nil
}

func (f *FileProvider) statePath() string {
	return filepath.Join(f.dir, "state.json")
}

func (f *FileProvider) archivePath(date string) string {
	return filepath.Join(f.dir, "archive", date+".json")
}

func (f *FileProvider) readState(ctx context.Context, path string) (types.PersistedState, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.PersistedState{}, ErrNotFound
		}
		return types.PersistedState{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var s types.PersistedState
	if err := json.Unmarshal(b, &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal state",
			slog.String("path", path), slog.Any("error", err))
		return types.PersistedState{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return s, nil
}

func (f *FileProvider) writeState(path string, s types.PersistedState) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// LoadState returns the persisted daily state.
func (f *FileProvider) LoadState(ctx context.Context) (types.PersistedState, error) {
	return f.readState(ctx, f.statePath())
}

// SaveState persists the daily state atomically.
func (f *FileProvider) SaveState(ctx context.Context, state types.PersistedState) error {
	return f.writeState(f.statePath(), state)
}

// ArchiveDay stores a completed day's state keyed by its date.
func (f *FileProvider) ArchiveDay(ctx context.Context, state types.PersistedState) error {
	if !dateRe.MatchString(state.Date) {
		return fmt.Errorf("invalid archive date: %q", state.Date)
	}
	log.Ctx(ctx).InfoContext(ctx, "archiving day", slog.String("date", state.Date))
	return f.writeState(f.archivePath(state.Date), state)
}

// LoadArchivedDay returns an archived day by date.
func (f *FileProvider) LoadArchivedDay(ctx context.Context, date string) (types.PersistedState, error) {
	if !dateRe.MatchString(date) {
		return types.PersistedState{}, fmt.Errorf("invalid archive date: %q", date)
	}
	return f.readState(ctx, f.archivePath(date))
}
