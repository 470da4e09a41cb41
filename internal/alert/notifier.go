package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"skywidget/internal/logger"
	"skywidget/internal/models"
	"skywidget/internal/telemetry"
)

const (
	notifyPath = "/alerts/notify"

	defaultDeliveryTimeout     = 5 * time.Second
	defaultDeliveryConcurrency = 4
)

// DeliveryResult 单个节点的投递结果
type DeliveryResult struct {
	NodeID   string
	NodeName string
	URL      string
	Err      error
}

// DeliveryReport 一次分发的结果汇总，只用于日志与测试
type DeliveryReport struct {
	Results []DeliveryResult
}

// Delivered 成功投递数
func (r DeliveryReport) Delivered() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed 失败投递数
func (r DeliveryReport) Failed() int {
	return len(r.Results) - r.Delivered()
}

// Notifier 告警通知器：本地展示 + 向远程节点扇出
type Notifier struct {
	local models.NodeInfo

	mu     sync.RWMutex
	remote []models.NodeInfo

	client      *http.Client
	timeout     time.Duration
	concurrency int
	presenter   Presenter
	now         func() time.Time
	log         *zap.Logger
}

// NotifierOption 通知器选项
type NotifierOption func(*Notifier)

// WithDeliveryTimeout 单个节点投递超时
func WithDeliveryTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithDeliveryConcurrency 并发投递上限
func WithDeliveryConcurrency(limit int) NotifierOption {
	return func(n *Notifier) {
		if limit > 0 {
			n.concurrency = limit
		}
	}
}

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) NotifierOption {
	return func(n *Notifier) { n.client = c }
}

// WithNotifierClock 注入时钟
func WithNotifierClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

// WithNotifierLogger 指定日志
func WithNotifierLogger(l *zap.Logger) NotifierOption {
	return func(n *Notifier) { n.log = l }
}

// NewNotifier 创建通知器，presenter 为 nil 时只写日志
func NewNotifier(local models.NodeInfo, presenter Presenter, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		local:       local,
		client:      PeerHTTPClient(),
		timeout:     defaultDeliveryTimeout,
		concurrency: defaultDeliveryConcurrency,
		presenter:   presenter,
		now:         time.Now,
		log:         logger.Named("alert.notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.presenter == nil {
		n.presenter = NewLogPresenter(nil, n.log)
	}
	return n
}

// Local 本地节点信息
func (n *Notifier) Local() models.NodeInfo {
	return n.local
}

// UpdateRemoteNodes 替换远程节点快照
func (n *Notifier) UpdateRemoteNodes(nodes []models.NodeInfo) {
	snapshot := append([]models.NodeInfo(nil), nodes...)

	n.mu.Lock()
	n.remote = snapshot
	n.mu.Unlock()
}

// RemoteNodes 当前远程节点快照
func (n *Notifier) RemoteNodes() []models.NodeInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]models.NodeInfo(nil), n.remote...)
}

// Dispatch 发送告警：先本地展示，再投递到目标节点
// targetIDs 为空表示所有已知节点；未知 ID 直接跳过
func (n *Notifier) Dispatch(ctx context.Context, ruleID, ruleName, message string, severity AlertSeverity, targetIDs []string) DeliveryReport {
	n.present(Notification{
		Title:    ruleName,
		Body:     message,
		Severity: severity,
		Source:   "local",
		RuleID:   ruleID,
	})

	envelope := models.AlertNotification{
		SourceNodeID:   n.local.ID,
		SourceNodeName: n.local.Name,
		AlertType:      ruleID,
		Message:        message,
		Severity:       severity.String(),
		Timestamp:      n.now().UnixMilli(),
	}

	targets := n.resolveTargets(targetIDs)
	report := DeliveryReport{Results: make([]DeliveryResult, len(targets))}
	if len(targets) == 0 {
		return report
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		n.log.Error("Failed to marshal alert notification", zap.Error(err))
		return report
	}

	g := new(errgroup.Group)
	g.SetLimit(n.concurrency)
	for i, node := range targets {
		i, node := i, node
		g.Go(func() error {
			url := node.APIURL() + notifyPath
			err := n.deliver(ctx, url, body)
			report.Results[i] = DeliveryResult{NodeID: node.ID, NodeName: node.Name, URL: url, Err: err}

			if err != nil {
				telemetry.PeerDeliveries.WithLabelValues(telemetry.ResultFailure).Inc()
				n.log.Warn("Failed to send alert notification",
					zap.String("node_id", node.ID),
					zap.String("node_name", node.Name),
					zap.String("url", url),
					zap.Error(err),
				)
				return nil
			}
			telemetry.PeerDeliveries.WithLabelValues(telemetry.ResultSuccess).Inc()
			n.log.Debug("Alert notification delivered",
				zap.String("node_id", node.ID),
				zap.String("node_name", node.Name),
			)
			return nil
		})
	}
	_ = g.Wait()

	return report
}

// resolveTargets 只读一次节点快照，之后的网络调用不持锁
func (n *Notifier) resolveTargets(targetIDs []string) []models.NodeInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if len(targetIDs) == 0 {
		return append([]models.NodeInfo(nil), n.remote...)
	}

	targets := make([]models.NodeInfo, 0, len(targetIDs))
	for _, node := range n.remote {
		if slices.Contains(targetIDs, node.ID) {
			targets = append(targets, node)
		}
	}
	return targets
}

func (n *Notifier) deliver(ctx context.Context, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// Receive 处理来自其他节点的告警
func (n *Notifier) Receive(in models.AlertNotification) {
	telemetry.InboundAlerts.Inc()

	severity, err := ParseSeverity(in.Severity)
	if err != nil {
		severity = SeverityWarning
	}

	n.log.Info("Received alert from peer",
		zap.String("source_node_id", in.SourceNodeID),
		zap.String("source_node_name", in.SourceNodeName),
		zap.String("alert_type", in.AlertType),
		zap.String("severity", in.Severity),
	)

	n.present(Notification{
		Title:    fmt.Sprintf("Alert from %s", in.SourceNodeName),
		Body:     in.Message,
		Severity: severity,
		Source:   in.SourceNodeName,
		RuleID:   in.AlertType,
	})
}

func (n *Notifier) present(notification Notification) {
	if err := n.presenter.Present(notification); err != nil {
		n.log.Error("Failed to present notification",
			zap.String("title", notification.Title),
			zap.Error(err),
		)
	}
}
