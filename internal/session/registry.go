package session

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("session not found")

// Registry keeps at most one open session per slot, so each save has a
// single writer.
type Registry struct {
	base Options

	mu     sync.Mutex
	byID   map[string]*Session
	bySlot map[string]*Session
}

// NewRegistry opens sessions with base; Slot is set per call.
func NewRegistry(base Options) *Registry {
	return &Registry{
		base:   base,
		byID:   map[string]*Session{},
		bySlot: map[string]*Session{},
	}
}

// Open returns the slot's session, opening it if needed. created reports
// whether this call opened it.
func (r *Registry) Open(ctx context.Context, slot string) (*Session, Response, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.bySlot[slot]; ok {
		snap := s.Latest()
		return s, Response{Type: TypeInit, Snapshot: &snap}, false, nil
	}
	opts := r.base
	opts.Slot = slot
	s, first, err := Open(ctx, opts)
	if err != nil {
		return nil, first, false, err
	}
	r.byID[s.ID()] = s
	r.bySlot[s.Slot()] = s
	return s, first, true, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		delete(r.bySlot, s.Slot())
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return s.Close(ctx)
}

func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		all = append(all, s)
	}
	r.byID = map[string]*Session{}
	r.bySlot = map[string]*Session{}
	r.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
