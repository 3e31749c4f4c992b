package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"tycoon/internal/config"
	"tycoon/internal/db"
)

var (
	ErrNotFound    = errors.New("save slot not found")
	ErrInvalidSlot = errors.New("slot names are 1-64 letters, digits, dashes or underscores")
)

var slotPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Store persists encoded save envelopes by slot name. Implementations treat
// blobs as opaque.
type Store interface {
	Get(ctx context.Context, slot string) ([]byte, error)
	Put(ctx context.Context, slot string, blob []byte) error
	Delete(ctx context.Context, slot string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

func ValidateSlot(slot string) error {
	if !slotPattern.MatchString(slot) {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return nil
}

// Open picks the driver named in cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "file", "":
		return NewFileStore(cfg.Dir)
	case "postgres":
		return NewPGStore(ctx, db.Options{URL: cfg.DatabaseURL, MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}
