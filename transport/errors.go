// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"strings"
)

// NetworkError means the transport never got a usable response: DNS failure,
// refused connection, timeout.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response. Detail carries the server-supplied
// human-readable message when present, else the HTTP status phrase.
type ServerError struct {
	StatusCode int
	Detail     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Detail)
}

// ConflictError is a ServerError whose detail indicates an identifier
// collision. Creation flows react to it by redrawing a candidate identifier
// instead of failing outright.
type ConflictError struct {
	ServerError
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict (%d): %s", e.StatusCode, e.Detail)
}

func (e *ConflictError) Unwrap() error { return &e.ServerError }

// conflictKeywords are the collision markers the backend embeds in its detail
// text ("Product id already exists", "Duplicate label id or label_code", ...).
var conflictKeywords = []string{"exists", "duplicate"}

func isConflictDetail(detail string) bool {
	lower := strings.ToLower(detail)
	for _, kw := range conflictKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err (or anything it wraps) is an identifier
// collision.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
