package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"tycoon/internal/session"
)

var (
	errRateLimited   = errors.New("rate limit exceeded, slow down")
	errSessionClosed = errors.New("session closed")
)

// handleWebsocket streams a session: inbound text frames are commands, and
// outbound frames are their responses interleaved with periodic ticks.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.ErrorContext(r.Context(), "failed to accept websocket", "err", err)
		return
	}
	defer conn.CloseNow()

	ticks, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	limit := rate.Limit(s.cfg.WSRate)
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := s.cfg.WSBurst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)
	out := make(chan session.Response, 16)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		defer close(out)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return err
			}
			var resp session.Response
			var cmd session.Command
			switch {
			case !limiter.Allow():
				resp = session.Response{Error: errRateLimited.Error()}
			case json.Unmarshal(data, &cmd) != nil:
				resp = session.Response{Error: "malformed command"}
			default:
				if resp, err = sess.Do(ctx, cmd); err != nil {
					return err
				}
			}
			select {
			case out <- resp:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case resp, ok := <-out:
				if !ok {
					return nil
				}
				if err := wsjson.Write(ctx, conn, resp); err != nil {
					return err
				}
			case resp, ok := <-ticks:
				if !ok {
					return errSessionClosed
				}
				if err := wsjson.Write(ctx, conn, resp); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	err = g.Wait()
	switch {
	case errors.Is(err, errSessionClosed), errors.Is(err, session.ErrClosed):
		_ = conn.Close(websocket.StatusGoingAway, "session closed")
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway,
		errors.Is(err, context.Canceled):
		s.log.Debug("websocket closed", "session", sess.ID())
	default:
		s.log.Warn("websocket failed", "session", sess.ID(), "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
	}
}
