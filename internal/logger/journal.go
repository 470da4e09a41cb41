package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	journalDateLayout = "2006-01-02"

	// 单次查询最多回溯的天数
	maxQueryDays = 31
)

// NotificationEntry 一条已展示的通知
type NotificationEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"` // local 或来源节点名
	RuleID    string    `json:"rule_id,omitempty"`
}

// Journal 按天滚动的通知日志：<dir>/notify-YYYY-MM-DD.jsonl
type Journal struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewJournal 创建通知日志目录
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &Journal{dir: dir, now: time.Now}, nil
}

// Dir 日志目录
func (j *Journal) Dir() string {
	return j.dir
}

func journalPath(dir string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("notify-%s.jsonl", day.Format(journalDateLayout)))
}

// WriteNotification 追加一条通知
func (j *Journal) WriteNotification(entry NotificationEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = j.now()
	}

	file, err := os.OpenFile(journalPath(j.dir, entry.Timestamp), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// NotificationQuery 通知查询条件
type NotificationQuery struct {
	Severity  string     `json:"severity,omitempty"`
	Source    string     `json:"source,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// NotificationQueryResult 查询结果
type NotificationQueryResult struct {
	Total         int                  `json:"total"`
	Notifications []*NotificationEntry `json:"notifications"`
}

// QueryNotifications 查询通知日志，按时间倒序分页返回
func QueryNotifications(dir string, q NotificationQuery) (*NotificationQueryResult, error) {
	result := &NotificationQueryResult{Notifications: make([]*NotificationEntry, 0)}

	endDate := time.Now()
	if q.EndTime != nil {
		endDate = *q.EndTime
	}
	startDate := endDate.AddDate(0, 0, -7)
	if q.StartTime != nil {
		startDate = *q.StartTime
	}
	if earliest := endDate.AddDate(0, 0, -maxQueryDays); startDate.Before(earliest) {
		startDate = earliest
	}

	matched := make([]*NotificationEntry, 0)
	for d := startDate; !d.After(endDate.AddDate(0, 0, 1)); d = d.AddDate(0, 0, 1) {
		path := journalPath(dir, d)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		// 读取出错时保留已解析的部分
		entries, _ := readJournalFile(path)
		for _, e := range entries {
			if matchesNotification(e, q) {
				matched = append(matched, e)
			}
		}
	}

	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].Timestamp.After(matched[b].Timestamp)
	})

	result.Total = len(matched)
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	start := min(max(q.Offset, 0), len(matched))
	end := min(start+limit, len(matched))
	result.Notifications = matched[start:end]

	return result, nil
}

// readJournalFile 逐行解析，行长不受限制，无法解析的行被跳过
func readJournalFile(path string) ([]*NotificationEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entries := make([]*NotificationEntry, 0)
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var e NotificationEntry
			if json.Unmarshal(line, &e) == nil {
				entries = append(entries, &e)
			}
		}
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
	}
}

func matchesNotification(e *NotificationEntry, q NotificationQuery) bool {
	if q.Severity != "" && !strings.EqualFold(e.Severity, q.Severity) {
		return false
	}
	if q.Source != "" && e.Source != q.Source {
		return false
	}
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	return true
}
