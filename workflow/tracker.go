// Package workflow tracks the approval-and-push lifecycle of one price-change
// request at a time. The state machine gates which operations are legal
// locally, before any network round trip, and keeps a human-readable
// operation log with recovery hints on failure.
//
// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cihanbekem/price-sim/cache"
	"github.com/cihanbekem/price-sim/esl"
	"github.com/cihanbekem/price-sim/seqid"
	"github.com/cihanbekem/price-sim/transport"
)

// namespace for price-change request identifiers.
const requestNamespace = "req"

// State is the tracker's explicit position in the wizard. PushStarted is
// local bookkeeping only; terminal success or failure is observed through the
// resulting push jobs.
type State string

const (
	StateUnstarted   State = "UNSTARTED"
	StatePending     State = "PENDING"
	StateApproved    State = "APPROVED"
	StatePushStarted State = "PUSH_STARTED"
)

// TransitionError rejects an operation that is illegal in the current state.
// It is raised locally, without a network call.
type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s is not allowed while the request is %s", e.Op, e.State)
}

// ValidationError rejects a draft before it ever reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// LogEntry is one line of the operator-visible operation log.
type LogEntry struct {
	ID      string
	At      time.Time
	Message string
	Hints   []string
}

// Draft is the operator's in-progress request form. An empty RequestID asks
// the tracker to use the allocator's next candidate.
type Draft struct {
	RequestID string
	ProductID string
	Store     string
	NewPrice  decimal.Decimal
	Reason    string
}

// Tracker drives one request through create → approve → push. All methods are
// safe for concurrent use; operations are serialized.
type Tracker struct {
	mu       sync.Mutex
	api      *transport.Client
	alloc    *seqid.Allocator
	cache    *cache.Cache
	approver func() string
	logger   *slog.Logger

	state       State
	requestID   string
	suggestedID string
	log         []LogEntry
}

// NewTracker wires the tracker to its collaborators. approver supplies the
// identity sent with approvals; nil falls back to "admin".
func NewTracker(api *transport.Client, alloc *seqid.Allocator, store *cache.Cache, approver func() string, logger *slog.Logger) *Tracker {
	if approver == nil {
		approver = func() string { return "admin" }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		api:      api,
		alloc:    alloc,
		cache:    store,
		approver: approver,
		logger:   logger,
		state:    StateUnstarted,
	}
}

// State returns the current wizard state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// RequestID returns the identifier of the in-flight request, if any.
func (t *Tracker) RequestID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requestID
}

// Log returns a copy of the operation log.
func (t *Tracker) Log() []LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LogEntry, len(t.log))
	copy(out, t.log)
	return out
}

// NextDraftID returns the candidate identifier a fresh draft form should be
// pre-filled with. After a collision it returns the redrawn suggestion.
func (t *Tracker) NextDraftID() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.suggestedID != "" {
		return t.suggestedID, nil
	}
	return t.alloc.PeekNext(requestNamespace)
}

// CreateRequest submits the draft. On success the tracker moves to PENDING
// and the request is merged into the cache the same way a remote-origin
// creation would be. On an identifier collision the allocator counter is
// raised past the colliding sequence and a fresh candidate is logged as a
// substitution; the state does not advance and the conflict is returned so
// the operator resubmits with the suggestion.
func (t *Tracker) CreateRequest(ctx context.Context, d Draft) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateUnstarted {
		return &TransitionError{Op: "create", State: t.state}
	}
	if d.ProductID == "" {
		return &ValidationError{Field: "product", Reason: "required"}
	}
	if d.Store == "" {
		return &ValidationError{Field: "store", Reason: "required"}
	}
	if !d.NewPrice.IsPositive() {
		return &ValidationError{Field: "new_price", Reason: "must be greater than zero"}
	}
	if d.Reason == "" {
		d.Reason = "panel"
	}

	candidate, err := t.alloc.PeekNext(requestNamespace)
	if err != nil {
		return fmt.Errorf("failed to draw request id: %w", err)
	}
	id := d.RequestID
	if id == "" {
		if t.suggestedID != "" {
			id = t.suggestedID
		} else {
			id = candidate
		}
	}

	body := map[string]any{
		"id":         id,
		"product_id": d.ProductID,
		"store":      d.Store,
		"new_price":  d.NewPrice,
		"reason":     d.Reason,
	}
	if err := t.api.Post(ctx, "/price-changes/", body, nil); err != nil {
		if transport.IsConflict(err) {
			return t.redrawAfterConflict(id, err)
		}
		t.appendLog(fmt.Sprintf("create failed: %v", trimmedDetail(err)))
		return err
	}

	// Counter bookkeeping: consume the candidate if it was used, otherwise
	// fold the operator-chosen id into the known set.
	if id == candidate {
		if _, err := t.alloc.Confirm(requestNamespace); err != nil {
			t.logger.Warn("failed to confirm request id", "id", id, "error", err)
		}
	} else if err := t.alloc.SyncFromKnownIDs(requestNamespace, []string{id}); err != nil {
		t.logger.Warn("failed to sync request counter", "id", id, "error", err)
	}

	t.state = StatePending
	t.requestID = id
	t.suggestedID = ""
	t.cache.UpsertRequest(esl.PriceChangeRequest{
		ID:        id,
		ProductID: d.ProductID,
		Store:     d.Store,
		NewPrice:  d.NewPrice,
		Status:    esl.RequestPending,
		Reason:    d.Reason,
	})
	t.appendLog(fmt.Sprintf("request %s created", id))
	return nil
}

// redrawAfterConflict handles a duplicate-identifier rejection: raise the
// counter past the collision, remember a distinct fresh candidate, and log
// the substitution. Caller holds the lock.
func (t *Tracker) redrawAfterConflict(rejected string, cause error) error {
	if err := t.alloc.SyncFromKnownIDs(requestNamespace, []string{rejected}); err != nil {
		t.logger.Warn("failed to sync counter after collision", "id", rejected, "error", err)
	}
	fresh, err := t.alloc.PeekNext(requestNamespace)
	if err == nil && fresh == rejected {
		// The rejected id did not match the namespace pattern, so the sync
		// above was a no-op. Burn one sequence to move past it.
		fresh, err = t.alloc.Confirm(requestNamespace)
	}
	if err != nil {
		t.appendLog(fmt.Sprintf("create failed: %v", trimmedDetail(cause)))
		return cause
	}
	t.suggestedID = fresh
	t.appendLog(fmt.Sprintf("request id %s already taken, substituting %s", rejected, fresh))
	return cause
}

// Approve approves the pending request. Legal only from PENDING; anything
// else is rejected locally.
func (t *Tracker) Approve(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StatePending {
		return &TransitionError{Op: "approve", State: t.state}
	}

	body := map[string]any{
		"approver": t.approver(),
		"decision": "APPROVE",
		"comment":  "ok",
	}
	if err := t.api.Post(ctx, "/price-changes/"+t.requestID+"/approve", body, nil); err != nil {
		t.appendLog(fmt.Sprintf("approve failed: %v", trimmedDetail(err)))
		return err
	}

	t.state = StateApproved
	if req, ok := t.cache.Request(t.requestID); ok {
		req.Status = esl.RequestApproved
		t.cache.UpsertRequest(req)
	}
	t.appendLog(fmt.Sprintf("request %s approved", t.requestID))
	return nil
}

// StartPush asks the server to begin deploying the approved change. Legal
// only from APPROVED. Failures are logged with the two most common root
// causes as recovery hints.
func (t *Tracker) StartPush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateApproved {
		return &TransitionError{Op: "start push", State: t.state}
	}

	var resp struct {
		OK   bool `json:"ok"`
		Jobs int  `json:"jobs"`
	}
	if err := t.api.Post(ctx, "/push/"+t.requestID+"/start", nil, &resp); err != nil {
		t.appendLogWithHints(
			fmt.Sprintf("push start failed: %v", trimmedDetail(err)),
			"is the request approved?",
			"is the target store's label assigned to this product?",
		)
		return err
	}

	t.state = StatePushStarted
	t.appendLog(fmt.Sprintf("push started for %s (%d jobs)", t.requestID, resp.Jobs))
	return nil
}

// Reset discards the in-progress draft, clears the log and returns to the
// unstarted state. Always legal.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateUnstarted
	t.requestID = ""
	t.suggestedID = ""
	t.log = nil
}

func (t *Tracker) appendLog(msg string) {
	t.appendLogWithHints(msg)
}

func (t *Tracker) appendLogWithHints(msg string, hints ...string) {
	t.log = append(t.log, LogEntry{
		ID:      uuid.New().String(),
		At:      time.Now(),
		Message: msg,
		Hints:   hints,
	})
	t.logger.Info("workflow", "state", t.state, "message", msg)
}

// trimmedDetail prefers the server's human-readable detail over the wrapped
// error chain noise.
func trimmedDetail(err error) string {
	var se *transport.ServerError
	if errors.As(err, &se) {
		return se.Detail
	}
	return err.Error()
}
