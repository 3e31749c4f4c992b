package syncq

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushKeepsNewestPerSlot(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "nested", "queue.json"))

	n, err := q.Push("default", []byte(`{"version":2,"n":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = q.Push("alt", []byte(`{"version":2}`))
	require.NoError(t, err)
	n, err = q.Push("default", []byte(`{"version":2,"n":2}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := q.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "alt", entries[0].Slot)
	assert.Equal(t, "default", entries[1].Slot)
	assert.Equal(t, `{"version":2,"n":2}`, string(entries[1].Blob))
	assert.NotEmpty(t, entries[1].ID)
}

func TestReplay(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "queue.json"))
	_, err := q.Push("good", []byte(`{}`))
	require.NoError(t, err)
	_, err = q.Push("bad", []byte(`{}`))
	require.NoError(t, err)

	written := map[string]bool{}
	put := func(_ context.Context, slot string, _ []byte) error {
		if slot == "bad" {
			return errors.New("store down")
		}
		written[slot] = true
		return nil
	}
	done, left, err := q.Replay(context.Background(), put)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.True(t, written["good"])
	require.Len(t, left, 1)
	assert.Equal(t, "bad", left[0].Slot)
	assert.Equal(t, 1, left[0].Attempts)

	entries, err := q.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadMissingFile(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "none.json"))
	entries, err := q.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
