// Package esl defines the data model shared by the console sync core:
// products, shelf labels, price-change requests, push jobs and the typed
// events delivered over the live push channel.
//
// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package esl

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry as served by GET /products/.
type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"base_price"`
	Currency  string          `json:"currency"`
}

// ProductInfo carries the display fields of a product as embedded in label
// cards and push-channel frames (price/name/currency, no SKU). The wire key
// for the price differs between REST ("base_price") and the live channel
// ("price"); both are accepted.
type ProductInfo struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

func (p *ProductInfo) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        string           `json:"id"`
		Name      string           `json:"name"`
		Price     *decimal.Decimal `json:"price"`
		BasePrice *decimal.Decimal `json:"base_price"`
		Currency  string           `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.ID = raw.ID
	p.Name = raw.Name
	p.Currency = raw.Currency
	switch {
	case raw.Price != nil:
		p.Price = *raw.Price
	case raw.BasePrice != nil:
		p.Price = *raw.BasePrice
	default:
		p.Price = decimal.Zero
	}
	return nil
}

// Info projects a full product onto its display fields.
func (p Product) Info() ProductInfo {
	return ProductInfo{ID: p.ID, Name: p.Name, Price: p.BasePrice, Currency: p.Currency}
}

// Label is an electronic shelf label. Product is the optionally assigned
// product, held by reference: at most one per label, reassignment overwrites.
// Snapshot responses omit the field; it is filled by the wall endpoint and by
// assignment events.
type Label struct {
	ID         string       `json:"id"`
	LabelCode  string       `json:"label_code"`
	Store      string       `json:"store"`
	Status     string       `json:"status"`
	BatteryPct int          `json:"battery_pct"`
	Product    *ProductInfo `json:"product,omitempty"`
}

func (l *Label) UnmarshalJSON(data []byte) error {
	type alias Label
	raw := struct {
		BatteryPct *int `json:"battery_pct"`
		*alias
	}{alias: (*alias)(l)}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// Battery defaults to full when the server omits it.
	if raw.BatteryPct != nil {
		l.BatteryPct = *raw.BatteryPct
	} else {
		l.BatteryPct = 100
	}
	return nil
}

// WallCard is one entry of GET /labels/wall: a label paired with its assigned
// product, or nil when unassigned.
type WallCard struct {
	Label   Label        `json:"label"`
	Product *ProductInfo `json:"product"`
}

// RequestStatus is the price-change request status as observed by this core.
// Terminal success/failure lives on the resulting push jobs, not here.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
)

// PriceChangeRequest is an operator-drafted price change for one product in
// one store.
type PriceChangeRequest struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Store     string          `json:"store"`
	NewPrice  decimal.Decimal `json:"new_price"`
	Status    RequestStatus   `json:"status"`
	Reason    string          `json:"reason"`
}

// JobStatus is the lifecycle status of a push job. The server reports fresh
// jobs as QUEUED; PENDING is accepted as a synonym.
type JobStatus string

const (
	JobQueued     JobStatus = "QUEUED"
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobSuccess    JobStatus = "SUCCESS"
	JobFailed     JobStatus = "FAILED"
)

// Queued reports whether the job is still waiting to be picked up.
func (s JobStatus) Queued() bool { return s == JobQueued || s == JobPending }

// Terminal reports whether the job reached a final state.
func (s JobStatus) Terminal() bool { return s == JobSuccess || s == JobFailed }

// PushJob is a server-driven deployment of one approved price change to one
// physical label. The client only observes transitions; try_count never
// decreases while the job is processing.
type PushJob struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	LabelID   string    `json:"label_id"`
	Status    JobStatus `json:"status"`
	TryCount  int       `json:"try_count"`
}

// Metrics is the ephemeral aggregate broadcast by the push runner. It is
// replaced wholesale on every metrics frame, never merged.
type Metrics struct {
	Total      int    `json:"total"`
	Success    int    `json:"success"`
	Failed     int    `json:"failed"`
	Queued     int    `json:"queued"`
	Processing int    `json:"processing"`
	AvgAckMs   *int64 `json:"avg_ack_ms"`
}

// PriceChange is one row of the read-only price history for a product.
type PriceChange struct {
	ID              int64            `json:"id"`
	ChangedAt       Timestamp        `json:"changed_at"`
	Store           string           `json:"store"`
	OldPrice        *decimal.Decimal `json:"old_price"`
	NewPrice        decimal.Decimal  `json:"new_price"`
	SourceRequestID string           `json:"source_request_id"`
}

// Timestamp tolerates both RFC 3339 and the zone-less format the backend
// emits for history rows.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return &time.ParseError{Layout: time.RFC3339Nano, Value: s}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}
