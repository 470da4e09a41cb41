package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skywidget/internal/alert"
	"skywidget/internal/models"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMetricsStoreTrimsToCapacity(t *testing.T) {
	clock := newStepClock()
	store := NewMetricsStore(10, WithClock(clock.Now))

	for i := 0; i < 15; i++ {
		store.Add("cpu_usage", float32(i))
		clock.Advance(time.Second)
	}

	points := store.Get("cpu_usage")
	require.Len(t, points, 10)
	assert.Equal(t, float32(5), points[0].Value)
	assert.Equal(t, float32(14), points[9].Value)
	for i := 1; i < len(points); i++ {
		assert.Greater(t, points[i].Timestamp, points[i-1].Timestamp)
	}
}

func TestMetricsStoreGetUnknown(t *testing.T) {
	store := NewMetricsStore(10)
	assert.Empty(t, store.Get("missing"))
	_, ok := store.Latest("missing")
	assert.False(t, ok)
	_, ok = store.Average("missing", 5)
	assert.False(t, ok)
}

func TestMetricsStoreGetLastAndAverage(t *testing.T) {
	store := NewMetricsStore(100)
	for _, v := range []float32{10, 20, 30, 40} {
		store.Add("m", v)
	}

	last := store.GetLast("m", 2)
	require.Len(t, last, 2)
	assert.Equal(t, float32(30), last[0].Value)
	assert.Equal(t, float32(40), last[1].Value)
	assert.Len(t, store.GetLast("m", 0), 4)
	assert.Len(t, store.GetLast("m", 50), 4)

	avg, ok := store.Average("m", 2)
	require.True(t, ok)
	assert.InDelta(t, 35, avg, 0.001)

	avg, ok = store.Average("m", 10)
	require.True(t, ok)
	assert.InDelta(t, 25, avg, 0.001)

	latest, ok := store.Latest("m")
	require.True(t, ok)
	assert.Equal(t, float32(40), latest.Value)
}

func TestMetricsStoreCleanupByAge(t *testing.T) {
	clock := newStepClock()
	store := NewMetricsStore(100, WithClock(clock.Now))

	store.Add("slow", 1)
	store.Add("fast", 1)
	clock.Advance(30 * time.Minute)
	store.Add("fast", 2)
	clock.Advance(45 * time.Minute)

	removed := store.Cleanup(time.Hour)
	assert.Equal(t, 2, removed)
	assert.Empty(t, store.Get("slow"))

	fast := store.Get("fast")
	require.Len(t, fast, 1)
	assert.Equal(t, float32(2), fast[0].Value)
	assert.Equal(t, []string{"fast"}, store.Names())
}

func TestMetricsStoreSnapshotAndExport(t *testing.T) {
	store := NewMetricsStore(5)
	store.AddSnapshot(models.MetricsSnapshot{"cpu_usage": 12.5, "memory_usage_percent": 40})

	assert.Equal(t, []string{"cpu_usage", "memory_usage_percent"}, store.Names())

	data, err := store.Export()
	require.NoError(t, err)

	var decoded map[string][]MetricDataPoint
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded["cpu_usage"], 1)
	assert.Equal(t, float32(12.5), decoded["cpu_usage"][0].Value)
	assert.Equal(t, decoded["cpu_usage"][0].Timestamp, decoded["memory_usage_percent"][0].Timestamp)
}

func TestAlertsStoreFIFOEviction(t *testing.T) {
	store := NewAlertsStore(10)
	for i := 0; i < 15; i++ {
		store.Add(fmt.Sprintf("rule-%d", i), "name", "msg", alert.SeverityWarning)
	}

	records := store.List()
	require.Len(t, records, 10)
	assert.Equal(t, 10, store.Count())
	for i, r := range records {
		assert.Equal(t, fmt.Sprintf("rule-%d", i+5), r.RuleID)
	}
}

func TestAlertsStoreAcknowledge(t *testing.T) {
	store := NewAlertsStore(10)
	a := store.Add("a", "A", "msg", alert.SeverityInfo)
	store.Add("b", "B", "msg", alert.SeverityCritical)

	assert.NotEmpty(t, a.ID)
	assert.Len(t, store.Unacknowledged(), 2)

	assert.True(t, store.Acknowledge(a.ID))
	assert.False(t, store.Acknowledge("missing"))

	unacked := store.Unacknowledged()
	require.Len(t, unacked, 1)
	assert.Equal(t, "b", unacked[0].RuleID)
}

func TestAlertsStoreClearAndExport(t *testing.T) {
	clock := newStepClock()
	store := NewAlertsStore(10, WithClock(clock.Now))
	store.Add("a", "A", "first", alert.SeverityError)
	clock.Advance(time.Second)
	store.Add("b", "B", "second", alert.SeverityWarning)

	data, err := store.Export()
	require.NoError(t, err)

	var exported []map[string]any
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported, 2)
	assert.Equal(t, "first", exported[0]["message"])
	assert.Equal(t, "Error", exported[0]["severity"])
	assert.Equal(t, float64(1_700_000_000_000), exported[0]["timestamp"])

	store.Clear()
	assert.Equal(t, 0, store.Count())
	data, err = store.Export()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}
