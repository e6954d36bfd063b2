package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/peakshed/peakshed/pkg/log"
	"github.com/peakshed/peakshed/pkg/types"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. State documents store their payload as a JSON string for
// portability with the file provider.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) decodeStateDoc(ctx context.Context, doc *firestore.DocumentSnapshot) (types.PersistedState, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "state doc missing json", slog.String("doc", doc.Ref.ID))
		return types.PersistedState{}, fmt.Errorf("%w: document missing 'json' field", ErrCorrupt)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "state doc json not string", slog.String("doc", doc.Ref.ID))
		return types.PersistedState{}, fmt.Errorf("%w: 'json' field is not a string", ErrCorrupt)
	}

	var s types.PersistedState
	if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal state json",
			slog.String("doc", doc.Ref.ID), slog.Any("err", err))
		return types.PersistedState{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return s, nil
}

func (f *FirestoreProvider) setStateDoc(ctx context.Context, ref *firestore.DocumentRef, state types.PersistedState) error {
	jsonBytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": state.Version,
		"date":    state.Date,
	})
	if err != nil {
		return fmt.Errorf("failed to write state doc: %w", err)
	}
	return nil
}

// LoadState retrieves the daily state from the "control/state" document.
func (f *FirestoreProvider) LoadState(ctx context.Context) (types.PersistedState, error) {
	doc, err := f.client.Collection("control").Doc("state").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.PersistedState{}, ErrNotFound
		}
		return types.PersistedState{}, fmt.Errorf("failed to fetch state doc: %w", err)
	}
	return f.decodeStateDoc(ctx, doc)
}

// SaveState saves the daily state to the "control/state" document.
func (f *FirestoreProvider) SaveState(ctx context.Context, state types.PersistedState) error {
	return f.setStateDoc(ctx, f.client.Collection("control").Doc("state"), state)
}

// ArchiveDay stores a completed day's state in the "days" collection keyed by
// its date.
func (f *FirestoreProvider) ArchiveDay(ctx context.Context, state types.PersistedState) error {
	if state.Date == "" {
		return fmt.Errorf("archive date cannot be empty")
	}
	log.Ctx(ctx).InfoContext(ctx, "archiving day", slog.String("date", state.Date))
	return f.setStateDoc(ctx, f.client.Collection("days").Doc(state.Date), state)
}

// LoadArchivedDay returns an archived day by date.
func (f *FirestoreProvider) LoadArchivedDay(ctx context.Context, date string) (types.PersistedState, error) {
	doc, err := f.client.Collection("days").Doc(date).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.PersistedState{}, ErrNotFound
		}
		return types.PersistedState{}, fmt.Errorf("failed to fetch archived day: %w", err)
	}
	return f.decodeStateDoc(ctx, doc)
}
