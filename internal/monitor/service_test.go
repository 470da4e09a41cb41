package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"skywidget/internal/alert"
	"skywidget/internal/elasticsearch"
	"skywidget/internal/models"
	"skywidget/internal/storage"
	"skywidget/internal/telemetry"
)

type fakeSource struct {
	mu       sync.Mutex
	snapshot models.MetricsSnapshot
	calls    atomic.Int32
}

func (f *fakeSource) Set(s models.MetricsSnapshot) {
	f.mu.Lock()
	f.snapshot = s
	f.mu.Unlock()
}

func (f *fakeSource) Snapshot(context.Context) models.MetricsSnapshot {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot.Clone()
}

type fakePeers struct {
	mu      sync.Mutex
	nodes   []models.NodeInfo
	timeout time.Duration
}

func (f *fakePeers) Nodes() []models.NodeInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.NodeInfo(nil), f.nodes...)
}

func (f *fakePeers) CleanupOfflineNodes(timeout time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = timeout
	return 0
}

type fakeSink struct {
	mu   sync.Mutex
	docs []*elasticsearch.AlertDocument
}

func (f *fakeSink) IndexAlert(_ context.Context, doc *elasticsearch.AlertDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeSink) Docs() []*elasticsearch.AlertDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*elasticsearch.AlertDocument(nil), f.docs...)
}

type fixture struct {
	service  *Service
	source   *fakeSource
	peers    *fakePeers
	sink     *fakeSink
	engine   *alert.Engine
	notifier *alert.Notifier
	metrics  *storage.MetricsStore
	alerts   *storage.AlertsStore
}

func newFixture(t *testing.T, rules ...alert.AlertRule) *fixture {
	t.Helper()
	log := zap.NewNop()
	f := &fixture{
		source:  &fakeSource{snapshot: models.MetricsSnapshot{}},
		peers:   &fakePeers{},
		sink:    &fakeSink{},
		engine:  alert.NewEngine(rules, alert.WithLogger(log)),
		metrics: storage.NewMetricsStore(10),
		alerts:  storage.NewAlertsStore(10),
	}
	presenter := alert.PresenterFunc(func(alert.Notification) error { return nil })
	f.notifier = alert.NewNotifier(
		models.NodeInfo{ID: "local", Name: "local-host"},
		presenter,
		alert.WithNotifierLogger(log),
	)
	f.service = NewService(Deps{
		Source:   f.source,
		Engine:   f.engine,
		Notifier: f.notifier,
		Metrics:  f.metrics,
		Alerts:   f.alerts,
		Peers:    f.peers,
		Events:   f.sink,
		Logger:   log,
	}, Intervals{
		Evaluate:        time.Hour,
		Sample:          time.Hour,
		Sweep:           time.Hour,
		PeerRefresh:     time.Hour,
		LivenessTimeout: 30 * time.Second,
	})
	return f
}

func cpuRule(id string, threshold float32) alert.AlertRule {
	return alert.NewRule(id, "CPU "+id, "", alert.Threshold(alert.ConditionCPUUsageAbove, threshold), alert.SeverityWarning)
}

func peerFor(t *testing.T, id string, srv *httptest.Server) models.NodeInfo {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return models.NodeInfo{ID: id, Name: id, IPAddress: u.Hostname(), APIPort: port, Status: models.NodeStatusOnline}
}

func TestEvaluateOnceRecordsAndDispatches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t, cpuRule("cpu_high", 80))
	f.peers.nodes = []models.NodeInfo{peerFor(t, "peer-1", srv)}
	f.service.RefreshPeers()

	before := testutil.ToFloat64(telemetry.AlertsTriggered.WithLabelValues("Warning"))

	f.source.Set(models.MetricsSnapshot{"cpu_usage": 91})
	records := f.service.EvaluateOnce(context.Background())
	require.Len(t, records, 1)
	assert.Equal(t, "cpu_high", records[0].RuleID)
	assert.Equal(t, 1, f.alerts.Count())
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.AlertsTriggered.WithLabelValues("Warning")))

	// 冷却期内不再触发
	assert.Empty(t, f.service.EvaluateOnce(context.Background()))
	assert.Equal(t, 1, f.alerts.Count())
	assert.Equal(t, int32(1), hits.Load())
}

func TestEvaluateOnceNoTrigger(t *testing.T) {
	f := newFixture(t, cpuRule("cpu_high", 80))
	f.source.Set(models.MetricsSnapshot{"cpu_usage": 80})
	assert.Empty(t, f.service.EvaluateOnce(context.Background()))
	assert.Zero(t, f.alerts.Count())
}

func TestSampleAndSweep(t *testing.T) {
	f := newFixture(t)
	f.source.Set(models.MetricsSnapshot{"cpu_usage": 12, "memory_usage_percent": 40})

	f.service.SampleOnce(context.Background())
	f.service.SampleOnce(context.Background())
	assert.Len(t, f.metrics.Get("cpu_usage"), 2)
	assert.Equal(t, []string{"cpu_usage", "memory_usage_percent"}, f.metrics.Names())

	// 刚写入的点不会被清理
	assert.Zero(t, f.service.SweepOnce())
}

func TestRefreshPeersUpdatesNotifierAndGauge(t *testing.T) {
	f := newFixture(t)
	f.peers.nodes = []models.NodeInfo{
		{ID: "a", Name: "a", IPAddress: "10.0.0.2", APIPort: 8765},
		{ID: "b", Name: "b", IPAddress: "10.0.0.3", APIPort: 8765},
	}

	nodes := f.service.RefreshPeers()
	assert.Len(t, nodes, 2)
	assert.Len(t, f.notifier.RemoteNodes(), 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(telemetry.PeersKnown))
	assert.Equal(t, 30*time.Second, f.peers.timeout)
}

func TestStartShipsEventsAndStopWaits(t *testing.T) {
	f := newFixture(t, cpuRule("cpu_high", 80))
	f.service.Start(context.Background())

	f.source.Set(models.MetricsSnapshot{"cpu_usage": 99})
	records := f.service.EvaluateOnce(context.Background())
	require.Len(t, records, 1)

	require.Eventually(t, func() bool { return len(f.sink.Docs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	doc := f.sink.Docs()[0]
	assert.Equal(t, records[0].ID, doc.RecordID)
	assert.Equal(t, "local", doc.NodeID)
	assert.Equal(t, "Warning", doc.Severity)

	done := make(chan struct{})
	go func() {
		f.service.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	// 重复 Stop 无副作用
	f.service.Stop()
}

func TestTickersRun(t *testing.T) {
	f := newFixture(t)
	f.service.intervals.Sample = 10 * time.Millisecond
	f.source.Set(models.MetricsSnapshot{"cpu_usage": 5})

	f.service.Start(context.Background())
	defer f.service.Stop()

	require.Eventually(t, func() bool { return len(f.metrics.Get("cpu_usage")) >= 2 }, 2*time.Second, 10*time.Millisecond)
}
