// Copyright 2025 Cihan Bekem
// SPDX-License-Identifier: Apache-2.0

package esl

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductInfoAcceptsBothPriceKeys(t *testing.T) {
	var fromREST ProductInfo
	require.NoError(t, json.Unmarshal([]byte(`{"id": "p-1", "name": "Cola", "base_price": "10.50", "currency": "TRY"}`), &fromREST))
	assert.True(t, fromREST.Price.Equal(decimal.RequireFromString("10.50")))

	var fromPush ProductInfo
	require.NoError(t, json.Unmarshal([]byte(`{"id": "p-1", "name": "Cola", "price": "11.00", "currency": "TRY"}`), &fromPush))
	assert.True(t, fromPush.Price.Equal(decimal.RequireFromString("11.00")))

	var neither ProductInfo
	require.NoError(t, json.Unmarshal([]byte(`{"id": "p-1"}`), &neither))
	assert.True(t, neither.Price.Equal(decimal.Zero))
}

func TestLabelBatteryDefault(t *testing.T) {
	var omitted Label
	require.NoError(t, json.Unmarshal([]byte(`{"id": "l-1", "label_code": "A-101", "store": "IST-01"}`), &omitted))
	assert.Equal(t, 100, omitted.BatteryPct)

	var explicit Label
	require.NoError(t, json.Unmarshal([]byte(`{"id": "l-2", "battery_pct": 0}`), &explicit))
	assert.Equal(t, 0, explicit.BatteryPct, "an explicit zero is not a default")
}

func TestJobStatusPredicates(t *testing.T) {
	assert.True(t, JobQueued.Queued())
	assert.True(t, JobPending.Queued(), "PENDING is a synonym for QUEUED")
	assert.False(t, JobProcessing.Queued())

	assert.True(t, JobSuccess.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.False(t, JobProcessing.Terminal())
	assert.False(t, JobQueued.Terminal())
}

func TestTimestampFormats(t *testing.T) {
	cases := map[string]string{
		`"2025-07-14T09:30:00Z"`:       "2025-07-14T09:30:00Z",
		`"2025-07-14T09:30:00.123456"`: "2025-07-14T09:30:00.123456Z",
		`"2025-07-14T09:30:00"`:       "2025-07-14T09:30:00Z",
	}
	for raw, want := range cases {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		expected, err := time.Parse(time.RFC3339Nano, want)
		require.NoError(t, err)
		assert.True(t, ts.Equal(expected), "parsing %s", raw)
	}

	var bad Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"14/07/2025"`), &bad))
}

func TestPriceChangeRow(t *testing.T) {
	raw := []byte(`{"id": 42, "changed_at": "2025-07-14T09:30:00", "store": "IST-01", "old_price": "10.00", "new_price": "12.50", "source_request_id": "req-3"}`)
	var row PriceChange
	require.NoError(t, json.Unmarshal(raw, &row))

	assert.Equal(t, int64(42), row.ID)
	require.NotNil(t, row.OldPrice)
	assert.True(t, row.OldPrice.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, "req-3", row.SourceRequestID)

	// First-ever change has no prior price.
	var first PriceChange
	require.NoError(t, json.Unmarshal([]byte(`{"id": 1, "changed_at": "2025-07-14T09:30:00", "store": "IST-01", "old_price": null, "new_price": "9.90", "source_request_id": "req-1"}`), &first))
	assert.Nil(t, first.OldPrice)
}
