// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollerTicksImmediatelyThenOnInterval(t *testing.T) {
	var ticks atomic.Int64
	p := NewPoller(20*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	}, nil)

	p.Start(context.Background())
	time.Sleep(110 * time.Millisecond)
	p.Stop()

	n := ticks.Load()
	assert.GreaterOrEqual(t, n, int64(3), "immediate tick plus interval ticks")

	after := ticks.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no ticks after Stop")
}

func TestPollerStopIsIdempotent(t *testing.T) {
	p := NewPoller(10*time.Millisecond, func(context.Context) error { return nil }, nil)
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}

func TestPollerSurvivesFailures(t *testing.T) {
	var ticks atomic.Int64
	p := NewPoller(15*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return errors.New("backend unavailable")
	}, nil)

	p.Start(context.Background())
	time.Sleep(80 * time.Millisecond)
	p.Stop()

	assert.GreaterOrEqual(t, ticks.Load(), int64(2), "errors do not stop the loop")
}

func TestPollerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(10*time.Millisecond, func(context.Context) error { return nil }, nil)
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not exit on context cancellation")
	}
}
