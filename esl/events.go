// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package esl

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType discriminates push-channel frames.
type EventType string

const (
	EventMetrics         EventType = "metrics"
	EventProductCreated  EventType = "product-created"
	EventProductUpdated  EventType = "product-updated"
	EventProductDeleted  EventType = "product-deleted"
	EventLabelCreated    EventType = "label-created"
	EventLabelUpdated    EventType = "label-updated"
	EventLabelDeleted    EventType = "label-deleted"
	EventLabelAssigned   EventType = "label-assigned"
	EventLabelUnassigned EventType = "label-unassigned"
)

// ErrUnknownEventType is returned by DecodeEvent for frames whose type
// discriminator is not recognized. Such frames are ignored, not fatal.
var ErrUnknownEventType = errors.New("unknown event type")

// Event is a single typed change notification from the live channel.
type Event interface {
	EventType() EventType
}

// MetricsEvent replaces the metrics snapshot wholesale.
type MetricsEvent struct {
	Metrics Metrics
}

func (MetricsEvent) EventType() EventType { return EventMetrics }

// ProductCreatedEvent announces a new product.
type ProductCreatedEvent struct {
	Product ProductInfo `json:"product"`
	SKU     string      `json:"sku,omitempty"`
}

func (ProductCreatedEvent) EventType() EventType { return EventProductCreated }

// ProductUpdatedEvent announces changed product display fields.
type ProductUpdatedEvent struct {
	Product ProductInfo `json:"product"`
}

func (ProductUpdatedEvent) EventType() EventType { return EventProductUpdated }

// ProductDeletedEvent announces a product removal.
type ProductDeletedEvent struct {
	ProductID string `json:"product_id"`
}

func (ProductDeletedEvent) EventType() EventType { return EventProductDeleted }

// LabelCreatedEvent announces a new, unassigned label.
type LabelCreatedEvent struct {
	Label Label `json:"label"`
}

func (LabelCreatedEvent) EventType() EventType { return EventLabelCreated }

// LabelUpdatedEvent announces changed label state. Label carries the full
// entity when the sender has it; Product carries a changed assignment. Either
// may be absent, in which case the missing field set is left untouched by
// consumers.
type LabelUpdatedEvent struct {
	LabelID string       `json:"label_id"`
	Label   *Label       `json:"label,omitempty"`
	Product *ProductInfo `json:"product,omitempty"`
}

func (LabelUpdatedEvent) EventType() EventType { return EventLabelUpdated }

// LabelDeletedEvent announces a label removal.
type LabelDeletedEvent struct {
	LabelID string `json:"label_id"`
}

func (LabelDeletedEvent) EventType() EventType { return EventLabelDeleted }

// LabelAssignedEvent announces a label→product assignment.
type LabelAssignedEvent struct {
	LabelID string       `json:"label_id"`
	Product *ProductInfo `json:"product"`
}

func (LabelAssignedEvent) EventType() EventType { return EventLabelAssigned }

// LabelUnassignedEvent announces a cleared assignment.
type LabelUnassignedEvent struct {
	LabelID string `json:"label_id"`
}

func (LabelUnassignedEvent) EventType() EventType { return EventLabelUnassigned }

// DecodeEvent validates one raw frame against the discriminated union above
// and converts it into a typed event. Unknown discriminators yield
// ErrUnknownEventType; anything else that fails to parse yields a plain error.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch head.Type {
	case EventMetrics:
		var m Metrics
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("malformed metrics frame: %w", err)
		}
		return &MetricsEvent{Metrics: m}, nil
	case EventProductCreated:
		ev := &ProductCreatedEvent{}
		return ev, decodeInto(data, ev)
	case EventProductUpdated:
		ev := &ProductUpdatedEvent{}
		return ev, decodeInto(data, ev)
	case EventProductDeleted:
		ev := &ProductDeletedEvent{}
		return ev, decodeInto(data, ev)
	case EventLabelCreated:
		ev := &LabelCreatedEvent{}
		return ev, decodeInto(data, ev)
	case EventLabelUpdated:
		ev := &LabelUpdatedEvent{}
		if err := decodeInto(data, ev); err != nil {
			return nil, err
		}
		if ev.LabelID == "" && ev.Label != nil {
			ev.LabelID = ev.Label.ID
		}
		return ev, nil
	case EventLabelDeleted:
		ev := &LabelDeletedEvent{}
		return ev, decodeInto(data, ev)
	case EventLabelAssigned:
		ev := &LabelAssignedEvent{}
		return ev, decodeInto(data, ev)
	case EventLabelUnassigned:
		ev := &LabelUnassignedEvent{}
		return ev, decodeInto(data, ev)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, head.Type)
	}
}

func decodeInto(data []byte, ev Event) error {
	if err := json.Unmarshal(data, ev); err != nil {
		return fmt.Errorf("malformed %s frame: %w", ev.EventType(), err)
	}
	return nil
}
