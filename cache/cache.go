// Package cache holds the console's authoritative view of every entity
// collection and reconciles two independent update sources: full REST
// snapshots and the unordered, possibly duplicated event stream from the
// push channel. All reads the UI performs go through here.
//
// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cihanbekem/price-sim/esl"
)

// Collection names one reconciled entity mapping.
type Collection string

const (
	Products Collection = "products"
	Labels   Collection = "labels"
	Requests Collection = "requests"
	Jobs     Collection = "jobs"
	Metrics  Collection = "metrics"
)

// Cache is safe for concurrent use. Every event's data is applied to the
// mapping immediately; the "collection changed" notification is coalesced so
// bursts (bulk imports, job storms) produce a single refresh signal per quiet
// period. Consumers that must see every intermediate state register an
// OnEvent callback instead.
type Cache struct {
	mu     sync.Mutex
	logger *slog.Logger
	quiet  time.Duration

	products map[string]esl.Product
	labels   map[string]esl.Label
	requests map[string]esl.PriceChangeRequest
	jobs     map[string]esl.PushJob
	metrics  esl.Metrics

	pending    map[Collection]struct{}
	flushTimer *time.Timer

	nextSubID   int
	refreshSubs map[int]chan Collection
	eventFns    map[int]func(esl.Event)
}

// New creates an empty cache. quiet is the notification coalescing window;
// zero or negative means notifications fire synchronously (useful in tests).
func New(quiet time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		logger:      logger,
		quiet:       quiet,
		products:    make(map[string]esl.Product),
		labels:      make(map[string]esl.Label),
		requests:    make(map[string]esl.PriceChangeRequest),
		jobs:        make(map[string]esl.PushJob),
		pending:     make(map[Collection]struct{}),
		refreshSubs: make(map[int]chan Collection),
		eventFns:    make(map[int]func(esl.Event)),
	}
}

// SubscribeRefresh returns a coalesced "collection changed" feed. Sends are
// non-blocking: a consumer that lags simply refetches on its next receive.
// The returned function unsubscribes and closes the channel.
func (c *Cache) SubscribeRefresh(buffer int) (<-chan Collection, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Collection, buffer)
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.refreshSubs[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		if _, ok := c.refreshSubs[id]; ok {
			delete(c.refreshSubs, id)
			close(ch)
		}
		c.mu.Unlock()
	}
}

// OnEvent registers a raw per-event consumer, invoked synchronously for every
// applied event in delivery order. Returns an unregister function.
func (c *Cache) OnEvent(fn func(esl.Event)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.eventFns[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.eventFns, id)
		c.mu.Unlock()
	}
}

// ReplaceProducts installs a product snapshot, discarding the old mapping.
func (c *Cache) ReplaceProducts(list []esl.Product) {
	c.mu.Lock()
	c.products = make(map[string]esl.Product, len(list))
	for _, p := range list {
		c.products[p.ID] = p
	}
	c.markDirty(Products)
	c.mu.Unlock()
	c.maybeFlushNow()
}

// ReplaceLabels installs a label snapshot, discarding the old mapping.
func (c *Cache) ReplaceLabels(list []esl.Label) {
	c.mu.Lock()
	c.labels = make(map[string]esl.Label, len(list))
	for _, l := range list {
		c.labels[l.ID] = l
	}
	c.markDirty(Labels)
	c.mu.Unlock()
	c.maybeFlushNow()
}

// ReplaceRequests installs a price-change request snapshot.
func (c *Cache) ReplaceRequests(list []esl.PriceChangeRequest) {
	c.mu.Lock()
	c.requests = make(map[string]esl.PriceChangeRequest, len(list))
	for _, r := range list {
		c.requests[r.ID] = r
	}
	c.markDirty(Requests)
	c.mu.Unlock()
	c.maybeFlushNow()
}

// ReplaceJobs installs a push-job snapshot (the poll result).
func (c *Cache) ReplaceJobs(list []esl.PushJob) {
	c.mu.Lock()
	c.jobs = make(map[string]esl.PushJob, len(list))
	for _, j := range list {
		c.jobs[j.ID] = j
	}
	c.markDirty(Jobs)
	c.mu.Unlock()
	c.maybeFlushNow()
}

// UpsertRequest merges one request, e.g. right after a local creation was
// accepted by the server.
func (c *Cache) UpsertRequest(r esl.PriceChangeRequest) {
	c.mu.Lock()
	c.requests[r.ID] = r
	c.markDirty(Requests)
	c.mu.Unlock()
	c.maybeFlushNow()
}

// Apply merges one typed push-channel event into the mapping. Duplicate
// created events degrade to updates, updates for unknown identifiers create
// the entity from the event payload, and deletes of absent identifiers are
// no-ops. The raw event feed fires after the state is updated.
func (c *Cache) Apply(ev esl.Event) {
	c.mu.Lock()
	switch e := ev.(type) {
	case *esl.MetricsEvent:
		c.metrics = e.Metrics
		c.markDirty(Metrics)
	case *esl.ProductCreatedEvent:
		c.upsertProductLocked(e.Product, e.SKU)
	case *esl.ProductUpdatedEvent:
		c.upsertProductLocked(e.Product, "")
	case *esl.ProductDeletedEvent:
		if _, ok := c.products[e.ProductID]; ok {
			delete(c.products, e.ProductID)
			c.markDirty(Products)
		}
	case *esl.LabelCreatedEvent:
		c.upsertLabelLocked(e.Label, nil, false)
	case *esl.LabelUpdatedEvent:
		if e.Label != nil {
			c.upsertLabelLocked(*e.Label, e.Product, e.Product != nil)
		} else {
			c.patchLabelAssignmentLocked(e.LabelID, e.Product, e.Product != nil)
		}
	case *esl.LabelDeletedEvent:
		if _, ok := c.labels[e.LabelID]; ok {
			delete(c.labels, e.LabelID)
			c.markDirty(Labels)
		}
	case *esl.LabelAssignedEvent:
		c.patchLabelAssignmentLocked(e.LabelID, e.Product, true)
	case *esl.LabelUnassignedEvent:
		c.patchLabelAssignmentLocked(e.LabelID, nil, true)
	default:
		c.logger.Debug("ignoring unhandled event", "type", ev.EventType())
	}

	fns := make([]func(esl.Event), 0, len(c.eventFns))
	for _, fn := range c.eventFns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	c.maybeFlushNow()

	for _, fn := range fns {
		fn(ev)
	}
}

// upsertProductLocked applies product display fields to the products mapping
// and propagates them into every label holding a reference to that product.
// The assignment itself is never altered here.
func (c *Cache) upsertProductLocked(info esl.ProductInfo, sku string) {
	if info.ID == "" {
		return
	}
	p, ok := c.products[info.ID]
	if !ok {
		p = esl.Product{ID: info.ID}
	}
	p.Name = info.Name
	p.BasePrice = info.Price
	p.Currency = info.Currency
	if sku != "" {
		p.SKU = sku
	}
	c.products[info.ID] = p
	c.markDirty(Products)

	for id, lbl := range c.labels {
		if lbl.Product == nil || lbl.Product.ID != info.ID {
			continue
		}
		ref := info
		lbl.Product = &ref
		c.labels[id] = lbl
		c.markDirty(Labels)
	}
}

// upsertLabelLocked replaces a label entry with the event payload. The
// assignment reference is preserved from the previous entry unless the event
// itself carried one (last-event-wins at the granularity of the payload's
// field set).
func (c *Cache) upsertLabelLocked(lbl esl.Label, product *esl.ProductInfo, setProduct bool) {
	if lbl.ID == "" {
		return
	}
	if setProduct {
		lbl.Product = cloneInfo(product)
	} else if lbl.Product == nil {
		if prev, ok := c.labels[lbl.ID]; ok {
			lbl.Product = prev.Product
		}
	}
	c.labels[lbl.ID] = lbl
	c.markDirty(Labels)
}

// patchLabelAssignmentLocked updates only the assignment reference. A label
// that is not cached yet is buffered as a stub so an early event is not lost;
// a later snapshot reconciles the rest of its fields.
func (c *Cache) patchLabelAssignmentLocked(labelID string, product *esl.ProductInfo, setProduct bool) {
	if labelID == "" {
		return
	}
	lbl, ok := c.labels[labelID]
	if !ok {
		lbl = esl.Label{ID: labelID, BatteryPct: 100}
	}
	if setProduct {
		lbl.Product = cloneInfo(product)
	}
	c.labels[labelID] = lbl
	c.markDirty(Labels)
}

func cloneInfo(p *esl.ProductInfo) *esl.ProductInfo {
	if p == nil {
		return nil
	}
	ref := *p
	return &ref
}

// ProductList returns all products sorted by identifier.
func (c *Cache) ProductList() []esl.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]esl.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b esl.Product) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// LabelList returns all labels sorted by identifier.
func (c *Cache) LabelList() []esl.Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]esl.Label, 0, len(c.labels))
	for _, l := range c.labels {
		l.Product = cloneInfo(l.Product)
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b esl.Label) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// RequestList returns all known price-change requests sorted by identifier.
func (c *Cache) RequestList() []esl.PriceChangeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]esl.PriceChangeRequest, 0, len(c.requests))
	for _, r := range c.requests {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b esl.PriceChangeRequest) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// JobList returns all push jobs sorted by identifier.
func (c *Cache) JobList() []esl.PushJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]esl.PushJob, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, j)
	}
	slices.SortFunc(out, func(a, b esl.PushJob) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Product looks up one product.
func (c *Cache) Product(id string) (esl.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	return p, ok
}

// Label looks up one label.
func (c *Cache) Label(id string) (esl.Label, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.labels[id]
	l.Product = cloneInfo(l.Product)
	return l, ok
}

// Request looks up one price-change request.
func (c *Cache) Request(id string) (esl.PriceChangeRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.requests[id]
	return r, ok
}

// Metrics returns the last metrics snapshot.
func (c *Cache) Metrics() esl.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// markDirty records a changed collection and arms the coalescing timer.
// Caller holds the lock.
func (c *Cache) markDirty(col Collection) {
	c.pending[col] = struct{}{}
	if c.quiet > 0 && c.flushTimer == nil {
		c.flushTimer = time.AfterFunc(c.quiet, c.flush)
	}
}

// maybeFlushNow delivers notifications synchronously when coalescing is
// disabled.
func (c *Cache) maybeFlushNow() {
	if c.quiet <= 0 {
		c.flush()
	}
}

func (c *Cache) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushTimer = nil
	if len(c.pending) == 0 {
		return
	}
	dirty := make([]Collection, 0, len(c.pending))
	for col := range c.pending {
		dirty = append(dirty, col)
	}
	clear(c.pending)
	slices.Sort(dirty)

	// Sends stay under the lock so an unsubscribe cannot close a channel
	// mid-delivery; they are non-blocking, so this cannot stall.
	for _, col := range dirty {
		for _, ch := range c.refreshSubs {
			select {
			case ch <- col:
			default:
			}
		}
	}
}
