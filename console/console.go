// Package console is the facade gluing the sync core together: it refreshes
// snapshots into the reconciliation cache, seeds the id allocator, pumps the
// push channel, and exposes the operator actions the UI calls.
//
// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cihanbekem/price-sim/cache"
	"github.com/cihanbekem/price-sim/esl"
	"github.com/cihanbekem/price-sim/seqid"
	"github.com/cihanbekem/price-sim/transport"
)

// Entity namespaces for sequential identifiers.
const (
	NamespaceProduct = "p"
	NamespaceLabel   = "l"
	NamespaceRequest = "req"
)

// Console owns the long-lived sync session.
type Console struct {
	api    *transport.Client
	alloc  *seqid.Allocator
	cache  *cache.Cache
	logger *slog.Logger

	stream   *transport.Stream
	pumpDone chan struct{}
}

func New(api *transport.Client, alloc *seqid.Allocator, store *cache.Cache, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{api: api, alloc: alloc, cache: store, logger: logger}
}

// Cache exposes the read model consumers render from.
func (c *Console) Cache() *cache.Cache { return c.cache }

// Allocator exposes the id allocator for draft forms.
func (c *Console) Allocator() *seqid.Allocator { return c.alloc }

// Start opens the push channel and pumps its events into the cache. After
// every reconnect the snapshots are refetched, since events missed while the
// socket was down are gone for good.
func (c *Console) Start(ctx context.Context) error {
	stream, err := c.api.Subscribe(ctx, func() {
		resyncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Resync(resyncCtx); err != nil {
			c.logger.Warn("post-reconnect resync failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to open push channel: %w", err)
	}
	c.stream = stream
	c.pumpDone = make(chan struct{})
	go func() {
		defer close(c.pumpDone)
		for ev := range stream.Events() {
			c.cache.Apply(ev)
		}
	}()
	return nil
}

// Stop closes the push channel and waits for the event pump to drain.
func (c *Console) Stop() {
	if c.stream == nil {
		return
	}
	c.stream.Close()
	<-c.pumpDone
	c.stream = nil
}

// Resync refetches every snapshot. Used at startup and after reconnects.
func (c *Console) Resync(ctx context.Context) error {
	if err := c.RefreshCatalog(ctx); err != nil {
		return err
	}
	return c.RefreshJobs(ctx)
}

// RefreshCatalog replaces the product and label collections from snapshots
// and raises the allocator counters from the identifiers seen. A fetch
// failure leaves the existing cache untouched: stale-but-present beats empty.
func (c *Console) RefreshCatalog(ctx context.Context) error {
	var products []esl.Product
	if err := c.api.Get(ctx, "/products/", &products); err != nil {
		return fmt.Errorf("failed to fetch products: %w", err)
	}
	var labels []esl.Label
	if err := c.api.Get(ctx, "/labels/", &labels); err != nil {
		return fmt.Errorf("failed to fetch labels: %w", err)
	}

	c.cache.ReplaceProducts(products)
	c.cache.ReplaceLabels(labels)

	productIDs := make([]string, 0, len(products))
	for _, p := range products {
		productIDs = append(productIDs, p.ID)
	}
	labelIDs := make([]string, 0, len(labels))
	for _, l := range labels {
		labelIDs = append(labelIDs, l.ID)
	}
	if err := c.alloc.SyncFromKnownIDs(NamespaceProduct, productIDs); err != nil {
		c.logger.Warn("product counter sync failed", "error", err)
	}
	if err := c.alloc.SyncFromKnownIDs(NamespaceLabel, labelIDs); err != nil {
		c.logger.Warn("label counter sync failed", "error", err)
	}
	return nil
}

// RefreshJobs replaces the push-job collection from the poll endpoint.
func (c *Console) RefreshJobs(ctx context.Context) error {
	var jobs []esl.PushJob
	if err := c.api.Get(ctx, "/push/jobs", &jobs); err != nil {
		return fmt.Errorf("failed to fetch push jobs: %w", err)
	}
	c.cache.ReplaceJobs(jobs)
	return nil
}

// SeedAllocators aligns the id counters with the server's own next-id
// expectation. The endpoints are advisory; a failure is logged, not fatal,
// because snapshot syncs catch the counters up anyway.
func (c *Console) SeedAllocators(ctx context.Context) {
	seeds := map[string]string{
		NamespaceProduct: "/products/next-id",
		NamespaceLabel:   "/labels/next-id",
		NamespaceRequest: "/price-changes/next-id",
	}
	for ns, path := range seeds {
		var resp struct {
			ID string `json:"id"`
		}
		if err := c.api.Get(ctx, path, &resp); err != nil {
			c.logger.Warn("next-id seed fetch failed", "namespace", ns, "error", err)
			continue
		}
		if resp.ID == "" {
			continue
		}
		if err := c.alloc.SyncFromServerNext(ns, resp.ID); err != nil {
			c.logger.Warn("next-id seed rejected", "namespace", ns, "id", resp.ID, "error", err)
		}
	}
}

// CreateProduct drafts a product under a client-proposed identifier and
// submits it. An identifier collision is retried exactly once with a redrawn
// candidate. The accepted product is merged into the cache through the same
// path a remote-origin creation event takes.
func (c *Console) CreateProduct(ctx context.Context, sku, name string, basePrice decimal.Decimal, currency string) (esl.Product, error) {
	if currency == "" {
		currency = "TRY"
	}
	created := esl.Product{SKU: sku, Name: name, BasePrice: basePrice, Currency: currency}

	id, err := c.createWithRedraw(ctx, NamespaceProduct, "/products/", func(id string) any {
		return map[string]any{
			"id": id, "sku": sku, "name": name,
			"base_price": basePrice, "currency": currency,
		}
	}, &created)
	if err != nil {
		return esl.Product{}, err
	}
	if created.ID == "" {
		created.ID = id
	}

	c.cache.Apply(&esl.ProductCreatedEvent{Product: created.Info(), SKU: created.SKU})
	return created, nil
}

// CreateLabel drafts a label under a client-proposed identifier and submits
// it, with the same collision handling as CreateProduct.
func (c *Console) CreateLabel(ctx context.Context, labelCode, store string) (esl.Label, error) {
	created := esl.Label{LabelCode: labelCode, Store: store, BatteryPct: 100}

	id, err := c.createWithRedraw(ctx, NamespaceLabel, "/labels/", func(id string) any {
		return map[string]any{"id": id, "label_code": labelCode, "store": store}
	}, &created)
	if err != nil {
		return esl.Label{}, err
	}
	if created.ID == "" {
		created.ID = id
	}

	c.cache.Apply(&esl.LabelCreatedEvent{Label: created})
	return created, nil
}

// createWithRedraw posts a creation body built around a peeked candidate id.
// On a collision the counter is raised past the rejected sequence and the
// call is retried once with a fresh candidate; it never loops. The accepted
// id is confirmed so the next peek advances.
func (c *Console) createWithRedraw(ctx context.Context, ns, path string, body func(id string) any, out any) (string, error) {
	id, err := c.alloc.PeekNext(ns)
	if err != nil {
		return "", fmt.Errorf("failed to draw %s id: %w", ns, err)
	}

	err = c.api.Post(ctx, path, body(id), out)
	if transport.IsConflict(err) {
		rejected := id
		if syncErr := c.alloc.SyncFromKnownIDs(ns, []string{rejected}); syncErr != nil {
			c.logger.Warn("counter sync after collision failed", "namespace", ns, "error", syncErr)
		}
		id, err = c.alloc.PeekNext(ns)
		if err != nil {
			return "", fmt.Errorf("failed to redraw %s id: %w", ns, err)
		}
		c.logger.Info("identifier collision, retrying once",
			"namespace", ns, "rejected", rejected, "candidate", id)
		err = c.api.Post(ctx, path, body(id), out)
	}
	if err != nil {
		return "", err
	}

	if _, err := c.alloc.Confirm(ns); err != nil {
		c.logger.Warn("failed to confirm id", "namespace", ns, "id", id, "error", err)
	}
	return id, nil
}

// AssignLabel binds a label to a product. The cache is updated optimistically
// through the assignment event path; the broadcast for other sessions arrives
// later and lands as an idempotent upsert.
func (c *Console) AssignLabel(ctx context.Context, labelID, productID string) error {
	body := map[string]any{"label_id": labelID, "product_id": productID}
	if err := c.api.Post(ctx, "/labels/assign", body, nil); err != nil {
		return err
	}

	var info *esl.ProductInfo
	if p, ok := c.cache.Product(productID); ok {
		i := p.Info()
		info = &i
	} else {
		info = &esl.ProductInfo{ID: productID}
	}
	c.cache.Apply(&esl.LabelAssignedEvent{LabelID: labelID, Product: info})
	return nil
}

// DeleteLabel removes a label. The deletion is reflected locally right away;
// the broadcast that follows is a no-op by then.
func (c *Console) DeleteLabel(ctx context.Context, labelID string) error {
	if err := c.api.Delete(ctx, "/labels/"+labelID, nil); err != nil {
		return err
	}
	c.cache.Apply(&esl.LabelDeletedEvent{LabelID: labelID})
	return nil
}

// FetchWall returns the label/product pairs for the live board.
func (c *Console) FetchWall(ctx context.Context) ([]esl.WallCard, error) {
	var cards []esl.WallCard
	if err := c.api.Get(ctx, "/labels/wall", &cards); err != nil {
		return nil, fmt.Errorf("failed to fetch wall: %w", err)
	}
	return cards, nil
}

// PriceHistory returns the read-only price history of one product, newest
// first as served. store and limit are optional filters.
func (c *Console) PriceHistory(ctx context.Context, productID, store string, limit int) ([]esl.PriceChange, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if store != "" {
		q.Set("store", store)
	}
	path := "/products/" + productID + "/price-history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var rows []esl.PriceChange
	if err := c.api.Get(ctx, path, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch price history: %w", err)
	}
	return rows, nil
}
