package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"tycoon/internal/api"
	"tycoon/internal/config"
	"tycoon/internal/game"
	"tycoon/internal/metrics"
	"tycoon/internal/session"
	"tycoon/internal/store"
	"tycoon/internal/syncq"
)

func main() {
	cfgPath := flag.String("config", "", "config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadServer(*cfgPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	cat, err := cfg.Game.Catalog()
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return err
	}

	queue := syncq.New(cfg.Session.QueuePath)
	sessions := session.NewRegistry(session.Options{
		Engine:        game.NewEngine(cat, logger),
		Store:         st,
		Queue:         queue,
		Logger:        logger,
		Metrics:       m,
		TickEvery:     cfg.Session.TickEvery,
		AutosaveEvery: cfg.Session.AutosaveEvery,
		SaveRetries:   cfg.Session.SaveRetries,
		SaveBackoff:   cfg.Session.SaveBackoff,
	})
	server := api.New(cfg, logger, sessions, reg)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("tycoon api listening", "addr", cfg.Addr, "store", cfg.Store.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if cerr := server.Shutdown(shutdownCtx); cerr != nil {
			logger.Error("closing sessions", "err", cerr)
		}
		logger.Info("server shutdown")
		return err
	})
	g.Go(func() error {
		replayLoop(ctx, queue, st, cfg.Session.ReplayEvery, m, logger)
		return nil
	})
	return g.Wait()
}

// replayLoop retries saves that could not be written earlier.
func replayLoop(ctx context.Context, q *syncq.Queue, st store.Store, every time.Duration, m *metrics.Collector, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done, failed, err := q.Replay(ctx, st.Put)
			if err != nil {
				logger.Error("save replay failed", "err", err)
				continue
			}
			m.QueueDepth(len(failed))
			if done > 0 || len(failed) > 0 {
				logger.Info("save replay complete", "replayed", done, "remaining", len(failed))
			}
		}
	}
}
