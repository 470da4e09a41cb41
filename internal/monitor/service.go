package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"skywidget/internal/alert"
	"skywidget/internal/elasticsearch"
	"skywidget/internal/logger"
	"skywidget/internal/models"
	"skywidget/internal/storage"
	"skywidget/internal/telemetry"
)

// SnapshotSource 提供当前指标快照
type SnapshotSource interface {
	Snapshot(ctx context.Context) models.MetricsSnapshot
}

// PeerSource 提供已发现的节点
type PeerSource interface {
	Nodes() []models.NodeInfo
	CleanupOfflineNodes(timeout time.Duration) int
}

// EventSink 告警事件的外部落地（Elasticsearch）
type EventSink interface {
	IndexAlert(ctx context.Context, doc *elasticsearch.AlertDocument) error
}

// Intervals 各周期任务的间隔
type Intervals struct {
	Evaluate        time.Duration
	Sample          time.Duration
	Sweep           time.Duration
	MetricsMaxAge   time.Duration
	PeerRefresh     time.Duration
	LivenessTimeout time.Duration
}

func (i *Intervals) setDefaults() {
	if i.Evaluate <= 0 {
		i.Evaluate = 10 * time.Second
	}
	if i.Sample <= 0 {
		i.Sample = 5 * time.Second
	}
	if i.Sweep <= 0 {
		i.Sweep = time.Minute
	}
	if i.MetricsMaxAge <= 0 {
		i.MetricsMaxAge = time.Hour
	}
	if i.PeerRefresh <= 0 {
		i.PeerRefresh = 5 * time.Second
	}
	if i.LivenessTimeout <= 0 {
		i.LivenessTimeout = 30 * time.Second
	}
}

// Deps 服务依赖；Peers 与 Events 可为空
type Deps struct {
	Source   SnapshotSource
	Engine   *alert.Engine
	Notifier *alert.Notifier
	Metrics  *storage.MetricsStore
	Alerts   *storage.AlertsStore
	Peers    PeerSource
	Events   EventSink
	Logger   *zap.Logger
}

// Service 运行评估、采样、清理与节点刷新四个周期任务
type Service struct {
	deps      Deps
	intervals Intervals
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	// Async ES writes
	esBuffer chan *elasticsearch.AlertDocument
}

const esBufferSize = 500

func NewService(deps Deps, intervals Intervals) *Service {
	intervals.setDefaults()
	log := deps.Logger
	if log == nil {
		log = logger.Named("monitor")
	}
	return &Service{
		deps:      deps,
		intervals: intervals,
		log:       log,
		esBuffer:  make(chan *elasticsearch.AlertDocument, esBufferSize),
	}
}

// Start 启动所有周期任务
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.runTicker("evaluate", s.intervals.Evaluate, func(ctx context.Context) { s.EvaluateOnce(ctx) })
	s.runTicker("sample", s.intervals.Sample, func(ctx context.Context) { s.SampleOnce(ctx) })
	s.runTicker("sweep", s.intervals.Sweep, func(context.Context) { s.SweepOnce() })
	if s.deps.Peers != nil {
		s.runTicker("peers", s.intervals.PeerRefresh, func(context.Context) { s.RefreshPeers() })
	}
	if s.deps.Events != nil {
		s.startAsyncESWriter()
	}

	s.log.Info("Monitor service started",
		zap.Duration("evaluate", s.intervals.Evaluate),
		zap.Duration("sample", s.intervals.Sample),
		zap.Duration("peer_refresh", s.intervals.PeerRefresh),
	)
}

// Stop 取消所有任务并等待退出
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("Monitor service stopped")
}

func (s *Service) runTicker(name string, interval time.Duration, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.safeRun(name, fn)
			}
		}
	}()
}

// safeRun 单次任务 panic 不终止循环
func (s *Service) safeRun(name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Periodic task panicked", zap.String("task", name), zap.Any("panic", r))
		}
	}()
	fn(s.ctx)
}

// EvaluateOnce 对新快照评估所有规则，返回触发的告警记录
func (s *Service) EvaluateOnce(ctx context.Context) []storage.AlertRecord {
	snapshot := s.deps.Source.Snapshot(ctx)
	triggers := s.deps.Engine.Evaluate(snapshot)
	if len(triggers) == 0 {
		return nil
	}

	records := make([]storage.AlertRecord, 0, len(triggers))
	for _, t := range triggers {
		record := s.deps.Alerts.Add(t.Rule.ID, t.Rule.Name, t.Message, t.Rule.Severity)
		records = append(records, record)
		telemetry.AlertsTriggered.WithLabelValues(t.Rule.Severity.String()).Inc()

		s.log.Info("Alert triggered",
			zap.String("rule_id", t.Rule.ID),
			zap.String("severity", t.Rule.Severity.String()),
			zap.String("message", t.Message),
		)

		report := s.deps.Notifier.Dispatch(ctx, t.Rule.ID, t.Rule.Name, t.Message, t.Rule.Severity, t.Rule.NotifyNodes)
		if report.Failed() > 0 {
			s.log.Warn("Alert fan-out incomplete",
				zap.String("rule_id", t.Rule.ID),
				zap.Int("delivered", report.Delivered()),
				zap.Int("failed", report.Failed()),
			)
		}

		s.queueEvent(record)
	}
	return records
}

// SampleOnce 采集快照写入时序存储
func (s *Service) SampleOnce(ctx context.Context) models.MetricsSnapshot {
	snapshot := s.deps.Source.Snapshot(ctx)
	s.deps.Metrics.AddSnapshot(snapshot)
	return snapshot
}

// SweepOnce 清理过期数据点
func (s *Service) SweepOnce() int {
	removed := s.deps.Metrics.Cleanup(s.intervals.MetricsMaxAge)
	if removed > 0 {
		s.log.Debug("Expired metric points removed", zap.Int("count", removed))
	}
	return removed
}

// RefreshPeers 清理离线节点并刷新通知目标
func (s *Service) RefreshPeers() []models.NodeInfo {
	if s.deps.Peers == nil {
		return nil
	}
	if removed := s.deps.Peers.CleanupOfflineNodes(s.intervals.LivenessTimeout); removed > 0 {
		s.log.Info("Offline peers removed", zap.Int("count", removed))
	}
	nodes := s.deps.Peers.Nodes()
	s.deps.Notifier.UpdateRemoteNodes(nodes)
	telemetry.PeersKnown.Set(float64(len(nodes)))
	return nodes
}

// queueEvent 非阻塞入队，缓冲满时丢弃
func (s *Service) queueEvent(record storage.AlertRecord) {
	if s.deps.Events == nil {
		return
	}
	local := s.deps.Notifier.Local()
	doc := &elasticsearch.AlertDocument{
		RecordID:  record.ID,
		RuleID:    record.RuleID,
		RuleName:  record.RuleName,
		Message:   record.Message,
		Severity:  record.Severity.String(),
		NodeID:    local.ID,
		NodeName:  local.Name,
		Source:    "local",
		Timestamp: time.UnixMilli(record.Timestamp).UTC(),
	}

	select {
	case s.esBuffer <- doc:
	default:
		s.log.Warn("Elasticsearch buffer full, dropping alert event", zap.String("record_id", record.ID))
	}
}

// startAsyncESWriter starts the async Elasticsearch writer
func (s *Service) startAsyncESWriter() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.esWriter()
	}()
}

// esWriter processes ES writes asynchronously
func (s *Service) esWriter() {
	for {
		select {
		case <-s.ctx.Done():
			// Flush remaining writes
			for {
				select {
				case doc := <-s.esBuffer:
					s.writeToElasticsearch(doc)
				default:
					return
				}
			}
		case doc := <-s.esBuffer:
			s.writeToElasticsearch(doc)
		}
	}
}

func (s *Service) writeToElasticsearch(doc *elasticsearch.AlertDocument) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.deps.Events.IndexAlert(ctx, doc); err != nil {
		s.log.Warn("Failed to ship alert event", zap.String("record_id", doc.RecordID), zap.Error(err))
	}
}
