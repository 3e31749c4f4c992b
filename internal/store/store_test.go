package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tycoon/internal/config"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "default")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "default", []byte(`{"version":2}`)))
	require.NoError(t, s.Put(ctx, "alt_2", []byte(`{"version":1}`)))
	require.NoError(t, s.Put(ctx, "default", []byte(`{"version":2,"x":1}`)))

	got, err := s.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, `{"version":2,"x":1}`, string(got))

	slots, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alt_2", "default"}, slots)

	require.NoError(t, s.Delete(ctx, "alt_2"))
	assert.ErrorIs(t, s.Delete(ctx, "alt_2"), ErrNotFound)

	assert.ErrorIs(t, s.Put(ctx, "../escape", nil), ErrInvalidSlot)
	_, err = s.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidSlot)

	require.NoError(t, s.Close())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)

	info, err := os.Stat(filepath.Join(dir, "default.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "t.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "etcd"})
	assert.Error(t, err)
}
