package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/peakshed/peakshed/pkg/storage"
	"github.com/peakshed/peakshed/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) LoadState(ctx context.Context) (types.PersistedState, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(types.PersistedState), args.Error(1)
	}
	return types.PersistedState{}, nil
}

func (m *MockDatabase) SaveState(ctx context.Context, state types.PersistedState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockDatabase) ArchiveDay(ctx context.Context, state types.PersistedState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockDatabase) LoadArchivedDay(ctx context.Context, date string) (types.PersistedState, error) {
	args := m.Called(ctx, date)
	if len(args) > 0 {
		return args.Get(0).(types.PersistedState), args.Error(1)
	}
	return types.PersistedState{}, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
