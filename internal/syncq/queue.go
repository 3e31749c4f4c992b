package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is a save write that could not reach the store. Blob is the encoded
// envelope; it is stored base64 so its bytes, and its checksum, survive the
// indented queue file unchanged.
type Entry struct {
	ID       string    `json:"id"`
	Slot     string    `json:"slot"`
	Blob     []byte    `json:"blob"`
	QueuedAt time.Time `json:"queued_at"`
	Attempts int       `json:"attempts"`
}

// Queue is a JSON file of pending writes. Only the newest write per slot is
// kept, since an older envelope for the same slot is obsolete.
type Queue struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Queue {
	return &Queue{path: path}
}

func (q *Queue) Path() string { return q.path }

func (q *Queue) load() ([]Entry, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Entry{}, nil
	}
	var out []Entry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) save(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(q.path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(q.path, raw, 0o600)
}

func (q *Queue) Load() ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Push queues blob for slot, replacing any older entry for the same slot. It
// returns the queue length afterwards.
func (q *Queue) Push(slot string, blob []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load()
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Slot != slot {
			kept = append(kept, e)
		}
	}
	kept = append(kept, Entry{
		ID:       uuid.NewString(),
		Slot:     slot,
		Blob:     blob,
		QueuedAt: time.Now().UTC(),
	})
	return len(kept), q.save(kept)
}

// Replay hands every entry to put in queue order. Entries put accepts are
// dropped; the rest stay queued with their attempt count bumped.
func (q *Queue) Replay(ctx context.Context, put func(ctx context.Context, slot string, blob []byte) error) (int, []Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load()
	if err != nil {
		return 0, nil, err
	}
	done := 0
	var failed []Entry
	for _, e := range entries {
		if ctx.Err() != nil {
			failed = append(failed, e)
			continue
		}
		if err := put(ctx, e.Slot, e.Blob); err != nil {
			e.Attempts++
			failed = append(failed, e)
			continue
		}
		done++
	}
	if failed == nil {
		failed = []Entry{}
	}
	return done, failed, q.save(failed)
}
