// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller runs a refresh function on a fixed interval. It backs the job list
// and coverage widgets whose auto-refresh the operator can toggle; Stop is
// idempotent and returns after the loop has fully exited, with no side
// effects on shared cache state.
type Poller struct {
	interval time.Duration
	fn       func(context.Context) error
	logger   *slog.Logger

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func NewPoller(interval time.Duration, fn func(context.Context) error, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		interval: interval,
		fn:       fn,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling. One refresh runs immediately so a freshly opened view
// is not blank for a full interval.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		p.tick(ctx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.tick(ctx)
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.fn(ctx); err != nil {
		// A failed poll keeps the previous data; the next tick retries.
		p.logger.Warn("poll failed", "error", err)
	}
}

// WatchJobs starts a poller that keeps the push-job collection fresh.
func (c *Console) WatchJobs(ctx context.Context, interval time.Duration) *Poller {
	p := NewPoller(interval, c.RefreshJobs, c.logger)
	p.Start(ctx)
	return p
}
