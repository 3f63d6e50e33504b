// Package transport issues the console's REST calls and owns the live
// push-channel connection. It normalizes failures into the
// NetworkError/ServerError/ConflictError taxonomy and attaches the bearer
// credential to every call when one is present.
//
// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TokenFunc returns the bearer credential for a call. An empty token with a
// nil error means anonymous: the Authorization header is simply omitted.
type TokenFunc func(ctx context.Context) (string, error)

// Client is the REST transport adapter.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Token   TokenFunc

	// OnUnauthorized, when set, is invoked after any 401 response, before the
	// error is returned to the caller.
	OnUnauthorized func()

	// Reconnect tuning for Subscribe.
	BackoffMin time.Duration
	BackoffMax time.Duration
	Jitter     time.Duration

	logger *slog.Logger
}

// NewClient creates a transport adapter for the given API base URL.
func NewClient(baseURL string, token TokenFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:    baseURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		Token:      token,
		BackoffMin: 1 * time.Second,
		BackoffMax: 30 * time.Second,
		Jitter:     300 * time.Millisecond,
		logger:     logger,
	}
}

// Get issues a GET and decodes the response into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body (nil body sends an empty object).
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	url := c.BaseURL + path

	var reqBody io.Reader
	if method == http.MethodPost {
		if body == nil {
			body = struct{}{}
		}
		jsonData, err := json.Marshal(body)
		if err != nil {
			return &NetworkError{URL: url, Err: err}
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, httpReq.Header); err != nil {
		return err
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized && c.OnUnauthorized != nil {
		c.OnUnauthorized()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newServerError(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		// A 2xx body that fails to parse is treated as an empty object, never
		// as a hard failure: optimistic-UI paths must survive absent payloads.
		if err := json.Unmarshal(respBody, out); err != nil {
			c.logger.Debug("discarding unparsable response body",
				"url", url, "error", err)
		}
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, h http.Header) error {
	if c.Token == nil {
		return nil
	}
	token, err := c.Token(ctx)
	if err != nil {
		return &NetworkError{URL: c.BaseURL, Err: err}
	}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// newServerError maps a non-2xx response onto the error taxonomy, preferring
// the server's own detail text over the status phrase.
func newServerError(status int, body []byte) error {
	detail := http.StatusText(status)
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		detail = payload.Detail
	}
	se := ServerError{StatusCode: status, Detail: detail}
	if isConflictDetail(detail) {
		return &ConflictError{ServerError: se}
	}
	return &se
}
