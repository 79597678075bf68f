package localstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/civicstore/pkg/types"
)

// Both implementations must satisfy the same contract.
func stores(t *testing.T) map[string]types.LocalPersistence {
	t.Helper()
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	mem, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)

	disk, err := OpenBadger(DefaultBadgerConfig(filepath.Join(t.TempDir(), "badger")))
	require.NoError(t, err)

	return map[string]types.LocalPersistence{"file": fs, "badger-memory": mem, "badger-disk": disk}
}

func TestLocalPersistenceContract(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()
			ctx := context.Background()

			_, err := s.Load(ctx, "civicstore.queue.v1")
			require.ErrorIs(t, err, types.ErrNotFound)

			require.NoError(t, s.Store(ctx, "civicstore.queue.v1", []byte(`{"entries":[]}`)))
			got, err := s.Load(ctx, "civicstore.queue.v1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"entries":[]}`, string(got))

			require.NoError(t, s.Store(ctx, "civicstore.queue.v1", []byte(`{"entries":[1]}`)))
			got, err = s.Load(ctx, "civicstore.queue.v1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"entries":[1]}`, string(got))
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	ctx := context.Background()

	s, err := OpenFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, "a/b", []byte("v")))

	reopened, err := OpenFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.Load(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind and key separators escaped")
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	ctx := context.Background()

	s, err := OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = OpenBadger(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestOpenErrors(t *testing.T) {
	_, err := OpenFileStore("")
	assert.ErrorIs(t, err, types.ErrEmptyPath)
	_, err = OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}
