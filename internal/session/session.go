package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tycoon/internal/game"
	"tycoon/internal/metrics"
	"tycoon/internal/save"
	"tycoon/internal/store"
	"tycoon/internal/syncq"
)

var (
	ErrClosed      = errors.New("session is closed")
	ErrUnknownType = errors.New("unknown command type")
)

type Options struct {
	Slot    string
	Engine  *game.Engine
	Store   store.Store
	Queue   *syncq.Queue
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Clock   func() time.Time

	TickEvery     time.Duration
	AutosaveEvery time.Duration
	SaveRetries   int
	SaveBackoff   time.Duration
}

// Session owns one save slot's state. All commands go through a single
// goroutine in arrival order; reads of the latest snapshot are lock free.
type Session struct {
	id   string
	slot string
	opts Options
	log  *slog.Logger

	cmds    chan request
	pending chan []byte
	done    chan struct{}

	cancelLoop context.CancelFunc
	cancelSave context.CancelFunc
	loop       errgroup.Group
	saver      errgroup.Group
	closeOnce  sync.Once
	closeErr   error

	latest atomic.Pointer[game.Snapshot]
	seq    atomic.Uint64

	subMu sync.Mutex
	subs  map[int]chan Response
	subID int

	// owned by the loop goroutine
	state  game.GameState
	ticker *time.Ticker
	dirty  bool
}

type request struct {
	cmd   Command
	reply chan Response
}

func (o *Options) defaults() {
	if o.Slot == "" {
		o.Slot = "default"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.TickEvery <= 0 {
		o.TickEvery = 200 * time.Millisecond
	}
	if o.AutosaveEvery <= 0 {
		o.AutosaveEvery = 10 * time.Second
	}
	if o.SaveBackoff <= 0 {
		o.SaveBackoff = 250 * time.Millisecond
	}
}

// Open loads the slot from the store (or starts a new game), applies offline
// progress and starts the command loop. The returned Response is the one an
// INIT would produce.
func Open(ctx context.Context, opts Options) (*Session, Response, error) {
	if opts.Engine == nil {
		return nil, Response{}, fmt.Errorf("session needs an engine")
	}
	opts.defaults()
	if err := store.ValidateSlot(opts.Slot); err != nil {
		return nil, Response{}, err
	}
	s := &Session{
		id:      uuid.NewString(),
		slot:    opts.Slot,
		opts:    opts,
		log:     opts.Logger.With("slot", opts.Slot),
		cmds:    make(chan request),
		pending: make(chan []byte, 1),
		done:    make(chan struct{}),
		subs:    map[int]chan Response{},
	}

	raw, err := s.readSlot(ctx)
	if err != nil {
		return nil, Response{}, err
	}
	first := s.init(Command{Type: TypeInit}, raw)
	if first.Err != nil {
		return nil, first, first.Err
	}

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	saveCtx, cancelSave := context.WithCancel(context.Background())
	s.cancelLoop = cancelLoop
	s.cancelSave = cancelSave
	s.loop.Go(func() error { return s.run(loopCtx) })
	s.saver.Go(func() error { return s.runSaver(saveCtx) })

	opts.Metrics.SessionOpened()
	s.log.Info("session opened", "session", s.id, "fresh", first.Notice != "")
	return s, first, nil
}

func (s *Session) ID() string   { return s.id }
func (s *Session) Slot() string { return s.slot }

// Latest is the snapshot from the most recent command or tick.
func (s *Session) Latest() game.Snapshot {
	if p := s.latest.Load(); p != nil {
		return *p
	}
	return game.Snapshot{}
}

// Do queues cmd and waits for its response.
func (s *Session) Do(ctx context.Context, cmd Command) (Response, error) {
	req := request{cmd: cmd, reply: make(chan Response, 1)}
	select {
	case s.cmds <- req:
	case <-s.done:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp, nil
	case <-s.done:
		return Response{}, ErrClosed
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Subscribe streams periodic tick responses. Slow subscribers miss ticks
// rather than stall the loop; every tick carries a full snapshot.
func (s *Session) Subscribe() (<-chan Response, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ch := make(chan Response, 16)
	id := s.subID
	s.subID++
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

func (s *Session) publish(resp Response) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- resp:
		default:
		}
	}
}

// Close stops the loop, writes a final save and waits for pending writes.
// The store is left open; it belongs to the caller.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancelLoop()
		_ = s.loop.Wait()

		finished := make(chan struct{})
		go func() {
			_ = s.saver.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-ctx.Done():
			s.cancelSave()
			<-finished
			s.closeErr = ctx.Err()
		}
		s.cancelSave()

		s.subMu.Lock()
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()

		s.opts.Metrics.SessionClosed(s.slot)
		s.log.Info("session closed", "session", s.id)
	})
	return s.closeErr
}

func (s *Session) readSlot(ctx context.Context) ([]byte, error) {
	if s.opts.Store == nil {
		return nil, nil
	}
	raw, err := s.opts.Store.Get(ctx, s.slot)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", s.slot, err)
	}
	return raw, nil
}

func (s *Session) run(ctx context.Context) error {
	autosave := time.NewTicker(s.opts.AutosaveEvery)
	defer autosave.Stop()
	defer close(s.done)
	for {
		var tickC <-chan time.Time
		if s.ticker != nil {
			tickC = s.ticker.C
		}
		select {
		case <-ctx.Done():
			s.stopTicker()
			s.queueSave()
			close(s.pending)
			return nil
		case req := <-s.cmds:
			req.reply <- s.handle(ctx, req.cmd)
		case <-tickC:
			s.periodicTick()
		case <-autosave.C:
			if s.dirty {
				s.queueSave()
			}
		}
	}
}

// now is the command's timestamp, never later than the session clock.
func (s *Session) now(cmd Command) int64 {
	clock := s.opts.Clock().UnixMilli()
	if cmd.Now > 0 && cmd.Now < clock {
		return cmd.Now
	}
	return clock
}

func (s *Session) handle(ctx context.Context, cmd Command) Response {
	started := time.Now()
	resp := s.apply(ctx, cmd)
	label := string(cmd.Type)
	if errors.Is(resp.Err, ErrUnknownType) {
		label = "unknown"
	}
	s.opts.Metrics.ObserveCommand(label, time.Since(started), resp.Err == nil)
	if resp.Err != nil {
		s.log.Warn("command failed", "type", cmd.Type, "id", cmd.ID, "err", resp.Err)
	}
	return resp
}

func (s *Session) apply(ctx context.Context, cmd Command) Response {
	e := s.opts.Engine
	switch cmd.Type {
	case TypeInit:
		raw := []byte(cmd.Payload)
		if len(raw) == 0 {
			var err error
			if raw, err = s.readSlot(ctx); err != nil {
				return s.fail(cmd, err)
			}
		}
		resp := s.init(cmd, raw)
		s.dirty = true
		return resp

	case TypeTick:
		return s.transition(cmd, func(st game.GameState) (game.GameState, *Outcome, error) {
			next, err := e.Tick(st, s.now(cmd))
			return next, nil, err
		})

	case TypeTrigger:
		return s.transition(cmd, func(st game.GameState) (game.GameState, *Outcome, error) {
			next, err := e.TriggerBusiness(st, cmd.BusinessID, s.now(cmd))
			return next, nil, err
		})

	case TypeBuy:
		bulk := game.Bulk(1)
		if cmd.Bulk != "" {
			var err error
			if bulk, err = game.ParseBulk(cmd.Bulk); err != nil {
				return s.fail(cmd, err)
			}
		}
		return s.purchase(cmd, func(st game.GameState) (game.PurchaseResult, error) {
			return e.PurchaseBusinessBulk(st, cmd.BusinessID, bulk)
		})

	case TypeUpgrade:
		return s.purchase(cmd, func(st game.GameState) (game.PurchaseResult, error) {
			return e.PurchaseUpgrade(st, cmd.UpgradeID)
		})

	case TypeManager:
		return s.purchase(cmd, func(st game.GameState) (game.PurchaseResult, error) {
			return e.HireManager(st, cmd.ManagerID)
		})

	case TypePrestige:
		return s.transition(cmd, func(st game.GameState) (game.GameState, *Outcome, error) {
			res, err := e.AttemptPrestige(st, s.now(cmd))
			return res.State, outcomeOf(res), err
		})

	case TypeStart:
		every := s.opts.TickEvery
		if cmd.EveryMs > 0 {
			every = time.Duration(cmd.EveryMs) * time.Millisecond
		}
		s.stopTicker()
		s.ticker = time.NewTicker(every)
		return s.respond(cmd)

	case TypeStop:
		s.stopTicker()
		return s.respond(cmd)

	case TypeSave:
		blob, err := save.Encode(s.state, s.opts.Clock().UnixMilli())
		if err != nil {
			return s.fail(cmd, err)
		}
		s.enqueue(blob)
		s.dirty = false
		resp := s.respond(cmd)
		resp.Save = blob
		return resp

	default:
		return s.fail(cmd, fmt.Errorf("%w: %q", ErrUnknownType, cmd.Type))
	}
}

// init replaces the state from raw, falling back to a new game, and catches
// up on time spent away.
func (s *Session) init(cmd Command, raw []byte) Response {
	e := s.opts.Engine
	now := s.now(cmd)
	loaded := save.LoadOrNew(raw, e, now)
	var notice string
	if loaded.Reason != nil {
		notice = "save could not be loaded, started a new game: " + loaded.Reason.Error()
		s.log.Warn("save rejected", "err", loaded.Reason)
	} else if loaded.Fresh {
		notice = "new game"
	}

	state, report, err := e.CatchUp(loaded.State, now)
	if err != nil {
		s.state = loaded.State
		return s.fail(cmd, err)
	}
	if report.Capped {
		s.opts.Metrics.OfflineCapped()
	}
	s.state = state
	resp := s.respond(cmd)
	resp.Offline = &report
	resp.Notice = notice
	return resp
}

func (s *Session) transition(cmd Command, fn func(game.GameState) (game.GameState, *Outcome, error)) Response {
	next, outcome, err := fn(s.state)
	if err != nil {
		return s.fail(cmd, err)
	}
	s.state = next
	s.dirty = true
	resp := s.respond(cmd)
	resp.Result = outcome
	return resp
}

// purchase advances to the session clock first so the balance includes
// everything earned up to the moment of the click.
func (s *Session) purchase(cmd Command, fn func(game.GameState) (game.PurchaseResult, error)) Response {
	return s.transition(cmd, func(st game.GameState) (game.GameState, *Outcome, error) {
		st, err := s.opts.Engine.Tick(st, s.now(cmd))
		if err != nil {
			return st, nil, err
		}
		res, err := fn(st)
		if err != nil {
			return st, nil, err
		}
		return res.State, outcomeOf(res), nil
	})
}

func (s *Session) snapshot() (*game.Snapshot, error) {
	snap, err := s.opts.Engine.Snapshot(s.state)
	if err != nil {
		return nil, err
	}
	s.latest.Store(&snap)
	return &snap, nil
}

func (s *Session) respond(cmd Command) Response {
	snap, err := s.snapshot()
	if err != nil {
		return s.fail(cmd, err)
	}
	return Response{ID: cmd.ID, Type: cmd.Type, Seq: s.seq.Add(1), Snapshot: snap}
}

func (s *Session) fail(cmd Command, err error) Response {
	return Response{
		ID:       cmd.ID,
		Type:     cmd.Type,
		Seq:      s.seq.Add(1),
		Snapshot: s.latest.Load(),
		Error:    err.Error(),
		Err:      err,
	}
}

func (s *Session) periodicTick() {
	next, err := s.opts.Engine.Tick(s.state, s.opts.Clock().UnixMilli())
	if err != nil {
		s.log.Error("periodic tick failed", "err", err)
		s.stopTicker()
		return
	}
	s.state = next
	s.dirty = true
	snap, err := s.snapshot()
	if err != nil {
		s.log.Error("snapshot failed", "err", err)
		return
	}
	s.publish(Response{Type: TypeTick, Seq: s.seq.Add(1), Snapshot: snap})
}

func (s *Session) stopTicker() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}
