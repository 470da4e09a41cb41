package storage

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"skywidget/internal/models"
)

// MetricDataPoint 单个采样点
type MetricDataPoint struct {
	Timestamp int64   `json:"timestamp"` // 毫秒
	Value     float32 `json:"value"`
}

// MetricsStore 按指标名保存的有界时间序列
type MetricsStore struct {
	mu            sync.RWMutex
	series        map[string][]MetricDataPoint
	maxDataPoints int
	now           func() time.Time
}

// StoreOption 存储选项
type StoreOption func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) { o.now = now }
}

func applyOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewMetricsStore 创建时间序列存储，maxDataPoints 为每个指标保留的最大点数
func NewMetricsStore(maxDataPoints int, opts ...StoreOption) *MetricsStore {
	if maxDataPoints <= 0 {
		maxDataPoints = 1
	}
	o := applyOptions(opts)
	return &MetricsStore{
		series:        make(map[string][]MetricDataPoint),
		maxDataPoints: maxDataPoints,
		now:           o.now,
	}
}

// Add 追加一个采样点，超出容量时丢弃最旧的点
func (s *MetricsStore) Add(name string, value float32) {
	point := MetricDataPoint{Timestamp: s.now().UnixMilli(), Value: value}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(name, point)
}

// AddSnapshot 以同一时间戳追加整个快照
func (s *MetricsStore) AddSnapshot(snapshot models.MetricsSnapshot) {
	ts := s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, value := range snapshot {
		s.appendLocked(name, MetricDataPoint{Timestamp: ts, Value: value})
	}
}

func (s *MetricsStore) appendLocked(name string, point MetricDataPoint) {
	points := append(s.series[name], point)
	if over := len(points) - s.maxDataPoints; over > 0 {
		points = append(points[:0:0], points[over:]...)
	}
	s.series[name] = points
}

// Get 返回指标的全部点，未观测过的指标返回空切片
func (s *MetricsStore) Get(name string) []MetricDataPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]MetricDataPoint{}, s.series[name]...)
}

// GetLast 返回最近 n 个点；n <= 0 时返回全部
func (s *MetricsStore) GetLast(name string, n int) []MetricDataPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.series[name]
	if n > 0 && len(points) > n {
		points = points[len(points)-n:]
	}
	return append([]MetricDataPoint{}, points...)
}

// Latest 最新的点
func (s *MetricsStore) Latest(name string) (MetricDataPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.series[name]
	if len(points) == 0 {
		return MetricDataPoint{}, false
	}
	return points[len(points)-1], true
}

// Average 最近 lastN 个点的平均值，点数不足时取全部
func (s *MetricsStore) Average(name string, lastN int) (float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.series[name]
	if len(points) == 0 {
		return 0, false
	}
	if lastN > 0 && len(points) > lastN {
		points = points[len(points)-lastN:]
	}

	var sum float64
	for _, p := range points {
		sum += float64(p.Value)
	}
	return float32(sum / float64(len(points))), true
}

// Cleanup 删除早于 maxAge 的点，返回删除数量
func (s *MetricsStore) Cleanup(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for name, points := range s.series {
		kept := points[:0]
		for _, p := range points {
			if p.Timestamp > cutoff {
				kept = append(kept, p)
			}
		}
		removed += len(points) - len(kept)
		if len(kept) == 0 {
			delete(s.series, name)
			continue
		}
		s.series[name] = kept
	}
	return removed
}

// Names 已观测的指标名（有序）
func (s *MetricsStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Export 导出全部序列为 JSON
func (s *MetricsStore) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.series, "", "  ")
}
