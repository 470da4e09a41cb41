package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"skywidget/internal/models"
)

type recordingPresenter struct {
	mu    sync.Mutex
	items []Notification
	err   error
}

func (p *recordingPresenter) Present(n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, n)
	return p.err
}

func (p *recordingPresenter) All() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.items...)
}

type peerServer struct {
	*httptest.Server
	mu       sync.Mutex
	received []models.AlertNotification
}

func newPeerServer(t *testing.T, status int) *peerServer {
	t.Helper()
	ps := &peerServer{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts/notify", r.URL.Path)
		var n models.AlertNotification
		if err := json.NewDecoder(r.Body).Decode(&n); err == nil {
			ps.mu.Lock()
			ps.received = append(ps.received, n)
			ps.mu.Unlock()
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *peerServer) Received() []models.AlertNotification {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]models.AlertNotification(nil), ps.received...)
}

func nodeFor(t *testing.T, id, rawURL string) models.NodeInfo {
	t.Helper()
	host, port, err := net.SplitHostPort(rawURL[len("http://"):])
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return models.NodeInfo{ID: id, Name: "host-" + id, IPAddress: host, APIPort: p, Status: models.NodeStatusOnline}
}

func newTestNotifier(p Presenter, opts ...NotifierOption) *Notifier {
	local := models.NodeInfo{ID: "local", Name: "local-host"}
	opts = append([]NotifierOption{
		WithNotifierLogger(zap.NewNop()),
		WithHTTPClient(&http.Client{}),
		WithNotifierClock(func() time.Time { return time.UnixMilli(1_700_000_000_123) }),
	}, opts...)
	return NewNotifier(local, p, opts...)
}

func TestDispatchBroadcastsToAllPeers(t *testing.T) {
	a := newPeerServer(t, http.StatusOK)
	b := newPeerServer(t, http.StatusOK)
	presenter := &recordingPresenter{}
	n := newTestNotifier(presenter)
	n.UpdateRemoteNodes([]models.NodeInfo{nodeFor(t, "a", a.URL), nodeFor(t, "b", b.URL)})

	report := n.Dispatch(context.Background(), "cpu_high", "CPU 高负载告警", "boom", SeverityWarning, nil)
	assert.Equal(t, 2, report.Delivered())
	assert.Equal(t, 0, report.Failed())

	for _, ps := range []*peerServer{a, b} {
		got := ps.Received()
		require.Len(t, got, 1)
		assert.Equal(t, models.AlertNotification{
			SourceNodeID:   "local",
			SourceNodeName: "local-host",
			AlertType:      "cpu_high",
			Message:        "boom",
			Severity:       "Warning",
			Timestamp:      1_700_000_000_123,
		}, got[0])
	}

	shown := presenter.All()
	require.Len(t, shown, 1)
	assert.Equal(t, "CPU 高负载告警", shown[0].Title)
	assert.Equal(t, SeverityWarning, shown[0].Severity)
}

func TestDispatchTargetsSubset(t *testing.T) {
	a := newPeerServer(t, http.StatusOK)
	b := newPeerServer(t, http.StatusOK)
	n := newTestNotifier(&recordingPresenter{})
	n.UpdateRemoteNodes([]models.NodeInfo{nodeFor(t, "a", a.URL), nodeFor(t, "b", b.URL)})

	report := n.Dispatch(context.Background(), "r", "R", "m", SeverityInfo, []string{"b"})
	assert.Equal(t, 1, report.Delivered())
	assert.Empty(t, a.Received())
	assert.Len(t, b.Received(), 1)
}

func TestDispatchUnknownTargetReachesNobody(t *testing.T) {
	a := newPeerServer(t, http.StatusOK)
	presenter := &recordingPresenter{}
	n := newTestNotifier(presenter)
	n.UpdateRemoteNodes([]models.NodeInfo{nodeFor(t, "a", a.URL)})

	report := n.Dispatch(context.Background(), "r", "R", "m", SeverityInfo, []string{"x"})
	assert.Empty(t, report.Results)
	assert.Empty(t, a.Received())

	// 本地展示不受影响
	assert.Len(t, presenter.All(), 1)
}

func TestDispatchFailureDoesNotAbortOthers(t *testing.T) {
	bad := newPeerServer(t, http.StatusInternalServerError)
	good := newPeerServer(t, http.StatusOK)
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	n := newTestNotifier(&recordingPresenter{})
	n.UpdateRemoteNodes([]models.NodeInfo{
		nodeFor(t, "bad", bad.URL),
		nodeFor(t, "closed", closedURL),
		nodeFor(t, "good", good.URL),
	})

	report := n.Dispatch(context.Background(), "r", "R", "m", SeverityError, nil)
	assert.Equal(t, 1, report.Delivered())
	assert.Equal(t, 2, report.Failed())
	assert.Len(t, good.Received(), 1)
}

func TestDispatchPerTargetTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		slow.Close()
	})
	fast := newPeerServer(t, http.StatusOK)

	n := newTestNotifier(&recordingPresenter{}, WithDeliveryTimeout(100*time.Millisecond), WithDeliveryConcurrency(1))
	n.UpdateRemoteNodes([]models.NodeInfo{nodeFor(t, "slow", slow.URL), nodeFor(t, "fast", fast.URL)})

	start := time.Now()
	report := n.Dispatch(context.Background(), "r", "R", "m", SeverityWarning, nil)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, 1, report.Delivered())
	for _, res := range report.Results {
		if res.NodeID == "slow" {
			assert.Error(t, res.Err)
		}
	}
	assert.Len(t, fast.Received(), 1)
}

func TestDispatchSnapshotIsolation(t *testing.T) {
	n := newTestNotifier(&recordingPresenter{})
	nodes := []models.NodeInfo{{ID: "a"}}
	n.UpdateRemoteNodes(nodes)
	nodes[0].ID = "mutated"

	require.Len(t, n.RemoteNodes(), 1)
	assert.Equal(t, "a", n.RemoteNodes()[0].ID)
}

func TestPresenterFailureIsSwallowed(t *testing.T) {
	presenter := &recordingPresenter{err: errors.New("no display")}
	n := newTestNotifier(presenter)

	report := n.Dispatch(context.Background(), "r", "R", "m", SeverityInfo, nil)
	assert.Empty(t, report.Results)
	assert.Len(t, presenter.All(), 1)
}

func TestReceivePresentsInboundAlert(t *testing.T) {
	presenter := &recordingPresenter{}
	n := newTestNotifier(presenter)

	n.Receive(models.AlertNotification{
		SourceNodeID:   "peer-1",
		SourceNodeName: "nas",
		AlertType:      "fan_stopped",
		Message:        "fan down",
		Severity:       "Critical",
	})

	shown := presenter.All()
	require.Len(t, shown, 1)
	assert.Equal(t, "Alert from nas", shown[0].Title)
	assert.Equal(t, "fan down", shown[0].Body)
	assert.Equal(t, SeverityCritical, shown[0].Severity)
	assert.Equal(t, "nas", shown[0].Source)
}
