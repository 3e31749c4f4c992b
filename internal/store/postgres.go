package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tycoon/internal/db"
)

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(ctx context.Context, opts db.Options) (*PGStore, error) {
	pool, err := db.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Get(ctx context.Context, slot string) ([]byte, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}
	var blob []byte
	err := s.pool.QueryRow(ctx, `SELECT blob FROM tycoon.saves WHERE slot = $1`, slot).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slot)
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", slot, err)
	}
	return blob, nil
}

func (s *PGStore) Put(ctx context.Context, slot string, blob []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tycoon.saves (slot, blob, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (slot) DO UPDATE SET blob = EXCLUDED.blob, updated_at = now()
	`, slot, blob)
	if err != nil {
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, slot string) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM tycoon.saves WHERE slot = $1`, slot)
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", slot, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, slot)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT slot FROM tycoon.saves ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	slots, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
