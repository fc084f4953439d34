package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"custody_go/internal/api"
	"custody_go/internal/domain"
	"custody_go/internal/engine"
	"custody_go/internal/event"
	"custody_go/internal/infra"
	"custody_go/internal/infra/auth"
	"custody_go/internal/infra/feed"
	"custody_go/internal/infra/storage"
	"custody_go/internal/service"

	_ "net/http/pprof" // For pprof profiling
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config    *infra.Config
	Storage   *storage.Storage
	Sequencer *engine.Sequencer
	Market    *service.MarketService
	Feed      *feed.Hub
	Metrics   *infra.Metrics

	events chan event.Event
	stop   <-chan struct{} // closed once the read model stops draining events
	ready  bool            // recovery finished; a final checkpoint is safe
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath, Metrics: infra.GlobalMetrics}
}

// Initialize loads config, opens storage and rebuilds engine state from the
// last checkpoint plus journal. Nothing runs until Serve.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping custody engine...", slog.String("owner", cfg.Ledger.Owner))

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Read side
	b.Feed = feed.NewHub(b.Metrics)
	b.Market = service.NewMarketService(cfg.Ledger.Decimals, cfg.Ledger.Symbol, b.Metrics)
	b.events = b.Market.GetEventChan()

	// 5. Engine + recovery
	state := engine.NewState(domain.Principal(cfg.Ledger.Owner))
	b.Sequencer = engine.NewSequencer(state, store, b.publish, engine.Options{
		InboxSize:          cfg.Engine.InboxSize,
		CheckpointInterval: cfg.Engine.CheckpointInterval,
		Metrics:            b.Metrics,
	})
	n, err := b.Sequencer.Recover(ctx, store)
	if err != nil {
		return fmt.Errorf("recovery failed after %d commands: %w", n, err)
	}
	slog.Info("✅ State recovered", slog.Int("replayed", n), slog.Uint64("next_seq", b.Sequencer.NextSeq()))

	var invErr error
	b.Sequencer.View(func(s *engine.State) {
		invErr = s.Ledger.VerifyInvariant()
	})
	if invErr != nil {
		return invErr
	}
	b.ready = true
	return nil
}

func (b *Bootstrap) publish(ev event.Event) {
	b.Feed.Publish(ev)
	select {
	case b.events <- ev:
	case <-b.stop:
	}
}

// Serve runs the sequencer, read model and HTTP server until ctx ends.
func (b *Bootstrap) Serve(ctx context.Context) error {
	if err := b.Config.ValidateServe(); err != nil {
		return err
	}

	// 1. Pprof Server (for performance profiling)
	if addr := b.Config.Server.Pprof; addr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. Hotpath loop and read model
	b.stop = ctx.Done()
	b.Market.StartEventProcessor(ctx)
	go b.Sequencer.Run(ctx)
	slog.InfoContext(ctx, "✅ Sequencer (Hotpath) started")

	// 3. API
	handler := api.NewServer(b.Sequencer, b.Market, b.Feed, b.Metrics, b.Config.Ledger.Decimals)
	if keys := b.Config.Auth.Keys; len(keys) > 0 {
		skew := time.Duration(b.Config.Auth.MaxSkewSec) * time.Second
		handler.WithAuth(auth.NewVerifier(keys, skew))
		slog.Info("🔐 Signed commands required", slog.Int("principals", len(keys)))
	} else {
		slog.Warn("⚠️ auth.allow_unsigned is set, commands are accepted unsigned")
	}
	srv := &http.Server{
		Addr:              b.Config.Server.Listen,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "✨ API listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("👋 Shutting down gracefully...")
	b.Feed.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close flushes a final checkpoint and releases storage.
func (b *Bootstrap) Close() {
	if b.Storage == nil {
		return
	}
	if b.ready {
		snap := b.Sequencer.Snapshot()
		if err := b.Storage.SaveCheckpoint(context.Background(), snap); err != nil {
			slog.Error("Final checkpoint failed", slog.Any("error", err))
		} else {
			slog.Info("💾 Final checkpoint saved", slog.Uint64("seq", snap.Seq))
		}
	}
	if err := b.Storage.Close(); err != nil {
		slog.Error("Failed to close storage", slog.Any("error", err))
	}
}
