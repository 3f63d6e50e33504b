// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cihanbekem/price-sim/esl"
)

// helloFrame is the first frame sent after every (re)connect. The token is
// informational: the push channel itself is not authenticated.
type helloFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Token     string `json:"token,omitempty"`
}

// Stream is one live push-channel session. Frames are decoded into typed
// events and delivered in arrival order on Events. Malformed frames and
// unknown event types are dropped, never fatal. A dropped connection is
// redialed with exponential backoff and jitter; after every successful
// redial the onReconnect hook fires so the owner can refetch snapshots.
type Stream struct {
	events chan esl.Event
	cancel context.CancelFunc
	done   chan struct{}
}

// Subscribe opens the push channel at /live/ws. The initial dial is
// synchronous so that an unreachable endpoint is reported immediately;
// subsequent reconnects happen in the background. onReconnect may be nil.
func (c *Client) Subscribe(ctx context.Context, onReconnect func()) (*Stream, error) {
	wsURL := websocketURL(c.BaseURL)

	conn, err := c.dial(ctx, wsURL)
	if err != nil {
		return nil, &NetworkError{URL: wsURL, Err: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		events: make(chan esl.Event, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(runCtx, s, conn, wsURL, onReconnect)
	return s, nil
}

// Events returns the typed event feed. The channel is closed when the stream
// shuts down.
func (s *Stream) Events() <-chan esl.Event { return s.events }

// Close tears the session down and waits for the reader to exit.
func (s *Stream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (c *Client) dial(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	header := http.Header{}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	hello := helloFrame{Type: "hello", SessionID: uuid.New().String()}
	if c.Token != nil {
		if token, err := c.Token(ctx); err == nil {
			hello.Token = token
		}
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) run(ctx context.Context, s *Stream, conn *websocket.Conn, wsURL string, onReconnect func()) {
	defer close(s.done)
	defer close(s.events)

	backoff := c.BackoffMin
	for {
		err := c.readLoop(ctx, s, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("push channel dropped, reconnecting", "error", err)

		for {
			if err := sleepWithContext(ctx, withJitter(backoff, c.Jitter)); err != nil {
				return
			}
			next, dialErr := c.dial(ctx, wsURL)
			if dialErr == nil {
				conn = next
				backoff = c.BackoffMin
				break
			}
			c.logger.Warn("push channel redial failed", "error", dialErr, "backoff", backoff)
			backoff *= 2
			if backoff > c.BackoffMax {
				backoff = c.BackoffMax
			}
		}

		if onReconnect != nil {
			onReconnect()
		}
	}
}

func (c *Client) readLoop(ctx context.Context, s *Stream, conn *websocket.Conn) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-loopCtx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := esl.DecodeEvent(data)
		if err != nil {
			if !errors.Is(err, esl.ErrUnknownEventType) {
				c.logger.Debug("dropping malformed push frame", "error", err)
			}
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// websocketURL derives the push-channel endpoint from the REST base URL.
func websocketURL(baseURL string) string {
	wsURL := baseURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	return strings.TrimSuffix(wsURL, "/") + "/live/ws"
}

func withJitter(d, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(jitter)))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
