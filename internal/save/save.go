package save

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"tycoon/internal/game"
)

// CurrentVersion is the envelope and state version this build writes.
const CurrentVersion = game.StateVersion

var (
	ErrCorrupt       = errors.New("save is corrupt")
	ErrVersionTooNew = errors.New("save was written by a newer version")
	ErrMigrationGap  = errors.New("no migration path for save version")
)

// Envelope is the persisted wrapper around a serialized state.
type Envelope struct {
	Version   int             `json:"version"`
	State     json.RawMessage `json:"state"`
	Timestamp int64           `json:"timestamp"`
	Checksum  string          `json:"checksum,omitempty"`
}

func checksum(state []byte) string {
	sum := blake2b.Sum256(state)
	return hex.EncodeToString(sum[:])
}

// Encode writes s as a versioned envelope stamped with timestamp (unix ms).
func Encode(s game.GameState, timestamp int64) ([]byte, error) {
	s.Version = CurrentVersion
	state, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return json.Marshal(Envelope{
		Version:   CurrentVersion,
		State:     state,
		Timestamp: timestamp,
		Checksum:  checksum(state),
	})
}

// Decode reads an envelope, verifies it, migrates it to CurrentVersion and
// checks it against the engine's catalog. Failures wrap ErrCorrupt,
// ErrVersionTooNew or ErrMigrationGap.
func Decode(raw []byte, e *game.Engine) (game.GameState, Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return game.GameState{}, env, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(env.State) == 0 || bytes.Equal(env.State, []byte("null")) {
		return game.GameState{}, env, fmt.Errorf("%w: empty state", ErrCorrupt)
	}
	if env.Checksum != "" && env.Checksum != checksum(env.State) {
		return game.GameState{}, env, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if env.Version > CurrentVersion {
		return game.GameState{}, env, fmt.Errorf("%w: version %d, this build reads up to %d", ErrVersionTooNew, env.Version, CurrentVersion)
	}

	var doc map[string]any
	if err := json.Unmarshal(env.State, &doc); err != nil {
		return game.GameState{}, env, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := migrate(doc, env.Version, CurrentVersion); err != nil {
		return game.GameState{}, env, err
	}
	migrated, err := json.Marshal(doc)
	if err != nil {
		return game.GameState{}, env, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var shape stateDoc
	if err := json.Unmarshal(migrated, &shape); err != nil {
		return game.GameState{}, env, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := validateDoc(&shape); err != nil {
		return game.GameState{}, env, err
	}

	var s game.GameState
	if err := json.Unmarshal(migrated, &s); err != nil {
		return game.GameState{}, env, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	s, err = e.Normalize(s)
	if err != nil {
		return game.GameState{}, env, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return s, env, nil
}

// Loaded is the outcome of LoadOrNew. Reason is set when the stored save could
// not be used and State is a fresh game instead.
type Loaded struct {
	State       game.GameState
	Fresh       bool
	FromVersion int
	Reason      error
}

// LoadOrNew decodes raw, falling back to a new game at now when raw is empty
// or unusable. It never fails.
func LoadOrNew(raw []byte, e *game.Engine, now int64) Loaded {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Loaded{State: e.NewState(now), Fresh: true, FromVersion: CurrentVersion}
	}
	s, env, err := Decode(raw, e)
	if err != nil {
		return Loaded{State: e.NewState(now), Fresh: true, FromVersion: env.Version, Reason: err}
	}
	return Loaded{State: s, FromVersion: env.Version}
}
