// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cihanbekem/price-sim/esl"
)

func info(id, name, price string) esl.ProductInfo {
	return esl.ProductInfo{ID: id, Name: name, Price: decimal.RequireFromString(price), Currency: "TRY"}
}

func TestSnapshotReplaceDiscardsOldMapping(t *testing.T) {
	c := New(0, nil)
	c.ReplaceProducts([]esl.Product{{ID: "p-1", Name: "Cola"}})
	c.ReplaceProducts([]esl.Product{{ID: "p-2", Name: "Chips"}})

	list := c.ProductList()
	require.Len(t, list, 1)
	assert.Equal(t, "p-2", list[0].ID)
	_, ok := c.Product("p-1")
	assert.False(t, ok)
}

func TestDuplicateCreatedDegradesToUpdate(t *testing.T) {
	c := New(0, nil)
	c.Apply(&esl.ProductCreatedEvent{Product: info("p-1", "Cola", "10"), SKU: "CK-1"})
	c.Apply(&esl.ProductCreatedEvent{Product: info("p-1", "Cola Zero", "12"), SKU: "CK-1"})

	list := c.ProductList()
	require.Len(t, list, 1)
	assert.Equal(t, "Cola Zero", list[0].Name)
	assert.True(t, list[0].BasePrice.Equal(decimal.RequireFromString("12")))
}

func TestUpdateBeforeCreateBuffersEntity(t *testing.T) {
	// Events can arrive out of order; an update for an unknown product must
	// create it so a reordered created frame later degrades to a no-op update.
	c := New(0, nil)
	c.Apply(&esl.ProductUpdatedEvent{Product: info("p-9", "Late", "5")})

	p, ok := c.Product("p-9")
	require.True(t, ok)
	assert.Equal(t, "Late", p.Name)

	c.Apply(&esl.ProductCreatedEvent{Product: info("p-9", "Late", "5"), SKU: "L-9"})
	list := c.ProductList()
	require.Len(t, list, 1)
	assert.Equal(t, "L-9", list[0].SKU)
}

func TestDeleteAbsentIsNoOp(t *testing.T) {
	c := New(0, nil)
	refresh, unsub := c.SubscribeRefresh(4)
	defer unsub()

	c.Apply(&esl.LabelDeletedEvent{LabelID: "l-404"})
	c.Apply(&esl.ProductDeletedEvent{ProductID: "p-404"})

	select {
	case col := <-refresh:
		t.Fatalf("unexpected refresh for %s", col)
	default:
	}
	assert.Empty(t, c.LabelList())
}

func TestProductUpdatePatchesLabelReferences(t *testing.T) {
	c := New(0, nil)
	ref := info("p-1", "Cola", "10")
	c.ReplaceLabels([]esl.Label{
		{ID: "l-1", BatteryPct: 100, Product: &ref},
		{ID: "l-2", BatteryPct: 100},
	})

	c.Apply(&esl.ProductUpdatedEvent{Product: info("p-1", "Cola", "13")})

	l1, ok := c.Label("l-1")
	require.True(t, ok)
	require.NotNil(t, l1.Product)
	assert.True(t, l1.Product.Price.Equal(decimal.RequireFromString("13")))

	l2, _ := c.Label("l-2")
	assert.Nil(t, l2.Product, "unassigned labels are untouched")
}

func TestLabelUpdatePreservesAssignment(t *testing.T) {
	c := New(0, nil)
	ref := info("p-1", "Cola", "10")
	c.Apply(&esl.LabelAssignedEvent{LabelID: "l-1", Product: &ref})

	lbl := esl.Label{ID: "l-1", LabelCode: "A-100", Store: "IST-01", BatteryPct: 80}
	c.Apply(&esl.LabelUpdatedEvent{LabelID: "l-1", Label: &lbl})

	got, ok := c.Label("l-1")
	require.True(t, ok)
	assert.Equal(t, "A-100", got.LabelCode)
	require.NotNil(t, got.Product, "assignment survives a label update without one")
	assert.Equal(t, "p-1", got.Product.ID)

	c.Apply(&esl.LabelUnassignedEvent{LabelID: "l-1"})
	got, _ = c.Label("l-1")
	assert.Nil(t, got.Product)
}

func TestAssignmentForUnknownLabelCreatesStub(t *testing.T) {
	c := New(0, nil)
	ref := info("p-1", "Cola", "10")
	c.Apply(&esl.LabelAssignedEvent{LabelID: "l-7", Product: &ref})

	got, ok := c.Label("l-7")
	require.True(t, ok)
	assert.Equal(t, 100, got.BatteryPct)
	require.NotNil(t, got.Product)
	assert.Equal(t, "p-1", got.Product.ID)
}

func TestMetricsReplacedWholesale(t *testing.T) {
	c := New(0, nil)
	ack := int64(42)
	c.Apply(&esl.MetricsEvent{Metrics: esl.Metrics{Total: 5, Success: 3, AvgAckMs: &ack}})
	c.Apply(&esl.MetricsEvent{Metrics: esl.Metrics{Total: 6, Success: 4}})

	m := c.Metrics()
	assert.Equal(t, 6, m.Total)
	assert.Nil(t, m.AvgAckMs, "stale fields do not linger across frames")
}

func TestRefreshCoalescedWithinQuietPeriod(t *testing.T) {
	c := New(30*time.Millisecond, nil)
	refresh, unsub := c.SubscribeRefresh(16)
	defer unsub()

	for i := 0; i < 10; i++ {
		c.Apply(&esl.ProductUpdatedEvent{Product: info("p-1", "Cola", "10")})
	}

	var got []Collection
	deadline := time.After(500 * time.Millisecond)
	for len(got) == 0 {
		select {
		case col := <-refresh:
			got = append(got, col)
		case <-deadline:
			t.Fatal("no refresh signal arrived")
		}
	}
	// Drain anything else that trickled in.
	time.Sleep(60 * time.Millisecond)
	for {
		select {
		case col := <-refresh:
			got = append(got, col)
			continue
		default:
		}
		break
	}
	assert.Equal(t, []Collection{Products}, got, "burst collapses into one signal")
}

func TestRawFeedSeesEveryEvent(t *testing.T) {
	c := New(time.Second, nil) // coalescing on: the raw feed must not care
	var seen []esl.EventType
	unreg := c.OnEvent(func(ev esl.Event) { seen = append(seen, ev.EventType()) })
	defer unreg()

	c.Apply(&esl.ProductCreatedEvent{Product: info("p-1", "Cola", "10")})
	c.Apply(&esl.ProductUpdatedEvent{Product: info("p-1", "Cola", "11")})
	c.Apply(&esl.ProductUpdatedEvent{Product: info("p-1", "Cola", "12")})

	assert.Equal(t, []esl.EventType{
		esl.EventProductCreated, esl.EventProductUpdated, esl.EventProductUpdated,
	}, seen)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	c := New(0, nil)
	refresh, unsub := c.SubscribeRefresh(1)
	unsub()
	unsub() // idempotent

	_, open := <-refresh
	assert.False(t, open)

	// Later changes must not panic with the subscriber gone.
	c.ReplaceProducts([]esl.Product{{ID: "p-1"}})
}

func TestListsAreSortedAndDetached(t *testing.T) {
	c := New(0, nil)
	ref := info("p-1", "Cola", "10")
	c.ReplaceLabels([]esl.Label{
		{ID: "l-2", BatteryPct: 90},
		{ID: "l-1", BatteryPct: 100, Product: &ref},
	})

	list := c.LabelList()
	require.Len(t, list, 2)
	assert.Equal(t, "l-1", list[0].ID)
	assert.Equal(t, "l-2", list[1].ID)

	// Mutating the returned reference must not leak into the cache.
	list[0].Product.Name = "tampered"
	got, _ := c.Label("l-1")
	assert.Equal(t, "Cola", got.Product.Name)
}
