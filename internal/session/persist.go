package session

import (
	"context"
	"time"

	"tycoon/internal/save"
)

// queueSave encodes the current state for the saver goroutine. Called from
// the loop only.
func (s *Session) queueSave() {
	blob, err := save.Encode(s.state, s.opts.Clock().UnixMilli())
	if err != nil {
		s.log.Error("encode save failed", "err", err)
		return
	}
	s.enqueue(blob)
	s.dirty = false
	s.opts.Metrics.Balance(s.slot, s.state.Balance.InexactFloat64())
}

// enqueue hands blob to the saver, replacing a write it has not started yet.
// Only the newest state matters, and the saver writes in order, so an older
// envelope can never land after a newer one.
func (s *Session) enqueue(blob []byte) {
	select {
	case <-s.pending:
	default:
	}
	s.pending <- blob
}

func (s *Session) runSaver(ctx context.Context) error {
	for blob := range s.pending {
		s.persist(ctx, blob)
	}
	return nil
}

// persist writes blob with bounded retries. A write that still fails is
// parked in the retry queue; persistence never fails the session.
func (s *Session) persist(ctx context.Context, blob []byte) {
	if s.opts.Store == nil {
		return
	}
	backoff := s.opts.SaveBackoff
	var err error
	for attempt := 0; attempt <= s.opts.SaveRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				attempt = s.opts.SaveRetries + 1
				continue
			}
		}
		if err = s.opts.Store.Put(ctx, s.slot, blob); err == nil {
			if attempt > 0 {
				s.opts.Metrics.Saved("retried")
			} else {
				s.opts.Metrics.Saved("ok")
			}
			return
		}
		s.log.Warn("save attempt failed", "attempt", attempt+1, "err", err)
	}

	if s.opts.Queue == nil {
		s.opts.Metrics.Saved("dropped")
		s.log.Error("save lost", "err", err)
		return
	}
	depth, qerr := s.opts.Queue.Push(s.slot, blob)
	if qerr != nil {
		s.opts.Metrics.Saved("dropped")
		s.log.Error("save lost, retry queue unavailable", "err", err, "queue_err", qerr)
		return
	}
	s.opts.Metrics.Saved("queued")
	s.opts.Metrics.QueueDepth(depth)
	s.log.Warn("save queued for replay", "queue", s.opts.Queue.Path(), "depth", depth, "err", err)
}
