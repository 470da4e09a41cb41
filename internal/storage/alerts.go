package storage

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"skywidget/internal/alert"
)

// ErrRecordNotFound 告警记录不存在
var ErrRecordNotFound = errors.New("alert record not found")

// AlertRecord 告警历史记录
type AlertRecord struct {
	ID           string              `json:"id"`
	RuleID       string              `json:"rule_id"`
	RuleName     string              `json:"rule_name"`
	Message      string              `json:"message"`
	Severity     alert.AlertSeverity `json:"severity"`
	Timestamp    int64               `json:"timestamp"` // 毫秒
	Acknowledged bool                `json:"acknowledged"`
}

// AlertsStore 固定容量的告警历史（FIFO）
type AlertsStore struct {
	mu         sync.RWMutex
	records    []AlertRecord
	maxRecords int
	now        func() time.Time
}

// NewAlertsStore 创建告警历史存储
func NewAlertsStore(maxRecords int, opts ...StoreOption) *AlertsStore {
	if maxRecords <= 0 {
		maxRecords = 1
	}
	o := applyOptions(opts)
	return &AlertsStore{
		records:    make([]AlertRecord, 0, min(maxRecords, 64)),
		maxRecords: maxRecords,
		now:        o.now,
	}
}

// Add 追加一条记录，超出容量时淘汰最旧的记录
func (s *AlertsStore) Add(ruleID, ruleName, message string, severity alert.AlertSeverity) AlertRecord {
	record := AlertRecord{
		ID:        uuid.NewString(),
		RuleID:    ruleID,
		RuleName:  ruleName,
		Message:   message,
		Severity:  severity,
		Timestamp: s.now().UnixMilli(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	if over := len(s.records) - s.maxRecords; over > 0 {
		s.records = append(s.records[:0:0], s.records[over:]...)
	}
	return record
}

// List 按插入顺序返回全部记录
func (s *AlertsStore) List() []AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AlertRecord{}, s.records...)
}

// Unacknowledged 未确认的记录
func (s *AlertsStore) Unacknowledged() []AlertRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AlertRecord, 0)
	for _, r := range s.records {
		if !r.Acknowledged {
			out = append(out, r)
		}
	}
	return out
}

// Acknowledge 确认记录，返回是否找到
func (s *AlertsStore) Acknowledge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Acknowledged = true
			return true
		}
	}
	return false
}

// Clear 清空
func (s *AlertsStore) Clear() {
	s.mu.Lock()
	s.records = s.records[:0:0]
	s.mu.Unlock()
}

// Count 记录数
func (s *AlertsStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Export 按插入顺序导出为 JSON
func (s *AlertsStore) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.records, "", "  ")
}
