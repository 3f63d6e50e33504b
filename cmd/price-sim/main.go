// Command price-sim runs the ESL console sync core headless: it keeps the
// local cache reconciled with the backend and logs collection changes and
// live metrics, which is handy for smoke-testing a deployment without the
// browser UI.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cihanbekem/price-sim/cache"
	"github.com/cihanbekem/price-sim/config"
	"github.com/cihanbekem/price-sim/console"
	"github.com/cihanbekem/price-sim/internal/auth"
	"github.com/cihanbekem/price-sim/seqid"
	"github.com/cihanbekem/price-sim/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	creds := auth.NewCredentials()
	if cfg.AuthToken != "" {
		creds.SetToken(cfg.AuthToken)
	}

	seqStore, err := seqid.OpenSQLiteStore(cfg.SeqDBPath)
	if err != nil {
		logger.Error("cannot open seq store", "path", cfg.SeqDBPath, "error", err)
		os.Exit(1)
	}
	defer seqStore.Close()

	api := transport.NewClient(cfg.BaseURL, creds.Token, logger)
	api.HTTP.Timeout = cfg.RequestTimeout
	api.BackoffMin = cfg.BackoffMin
	api.BackoffMax = cfg.BackoffMax
	api.Jitter = cfg.Jitter
	api.OnUnauthorized = func() {
		logger.Warn("credential rejected, continuing anonymously")
	}

	store := cache.New(cfg.QuietPeriod, logger)
	con := console.New(api, seqid.NewAllocator(seqStore), store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	con.SeedAllocators(ctx)
	if err := con.Resync(ctx); err != nil {
		logger.Error("initial snapshot fetch failed", "error", err)
		os.Exit(1)
	}
	if err := con.Start(ctx); err != nil {
		logger.Error("cannot open push channel", "error", err)
		os.Exit(1)
	}
	defer con.Stop()

	jobs := con.WatchJobs(ctx, cfg.JobsInterval)
	defer jobs.Stop()

	refresh, unsubscribe := store.SubscribeRefresh(8)
	defer unsubscribe()

	logger.Info("console sync core running", "base_url", cfg.BaseURL)
	for {
		select {
		case col, ok := <-refresh:
			if !ok {
				return
			}
			switch col {
			case cache.Metrics:
				m := store.Metrics()
				logger.Info("metrics", "total", m.Total, "success", m.Success,
					"failed", m.Failed, "queued", m.Queued, "processing", m.Processing)
			case cache.Jobs:
				logger.Info("collection changed", "collection", col, "count", len(store.JobList()))
			case cache.Products:
				logger.Info("collection changed", "collection", col, "count", len(store.ProductList()))
			case cache.Labels:
				logger.Info("collection changed", "collection", col, "count", len(store.LabelList()))
			default:
				logger.Info("collection changed", "collection", col)
			}
		case <-ctx.Done():
			return
		}
	}
}
