package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "fabdrive.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestSQLiteSaveAndFind(t *testing.T) {
	require := require.New(t)

	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(s.Save(ctx, "dev-1", map[string]any{
		"name":    "bench",
		"offsetX": 1.5,
		"custom":  `{"filament":"PLA"}`,
	}))

	fields, err := s.FindByID(ctx, "dev-1")
	require.NoError(err)
	require.Equal("bench", fields["name"])
	require.Equal(1.5, fields["offsetX"])
	require.Equal(`{"filament":"PLA"}`, fields["custom"])
}

func TestSQLiteFindMissing(t *testing.T) {
	require := require.New(t)

	s := openTestStore(t)

	_, err := s.FindByID(context.Background(), "ghost")
	require.ErrorIs(err, ErrNotFound)
}

func TestSQLiteUpdateMergesFields(t *testing.T) {
	require := require.New(t)

	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(s.Save(ctx, "dev-1", map[string]any{"name": "bench", "offsetX": 1.0}))
	require.NoError(s.Update(ctx, "dev-1", map[string]any{"offsetX": 2.0, "prime": "G28\n"}))

	fields, err := s.FindByID(ctx, "dev-1")
	require.NoError(err)
	require.Equal("bench", fields["name"], "untouched fields survive")
	require.Equal(2.0, fields["offsetX"])
	require.Equal("G28\n", fields["prime"])
}

func TestSQLiteUpdateMissing(t *testing.T) {
	require := require.New(t)

	s := openTestStore(t)

	err := s.Update(context.Background(), "ghost", map[string]any{"name": "x"})
	require.ErrorIs(err, ErrNotFound)
}

func TestSQLiteSaveOverwrites(t *testing.T) {
	require := require.New(t)

	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(s.Save(ctx, "dev-1", map[string]any{"name": "old", "offsetX": 1.0}))
	require.NoError(s.Save(ctx, "dev-1", map[string]any{"name": "new"}))

	fields, err := s.FindByID(ctx, "dev-1")
	require.NoError(err)
	require.Equal("new", fields["name"])
	require.NotContains(fields, "offsetX", "save replaces the whole document")
}

func TestSQLiteDelete(t *testing.T) {
	require := require.New(t)

	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(s.Save(ctx, "dev-1", map[string]any{"name": "bench"}))
	require.NoError(s.Delete(ctx, "dev-1"))

	_, err := s.FindByID(ctx, "dev-1")
	require.ErrorIs(err, ErrNotFound)

	require.NoError(s.Delete(ctx, "dev-1"), "deleting an absent device is not an error")
}
