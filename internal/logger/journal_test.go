package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEntries(t *testing.T, j *Journal, base time.Time) {
	t.Helper()
	entries := []NotificationEntry{
		{Timestamp: base.Add(-2 * time.Hour), Title: "CPU", Severity: "Warning", Source: "local", RuleID: "cpu_high"},
		{Timestamp: base.Add(-time.Hour), Title: "Alert from nas", Severity: "Critical", Source: "nas"},
		{Timestamp: base, Title: "Disk", Severity: "Critical", Source: "local", RuleID: "disk_high"},
	}
	for _, e := range entries {
		require.NoError(t, j.WriteNotification(e))
	}
}

func TestJournalWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(filepath.Join(dir, "logs"))
	require.NoError(t, err)

	day := time.Date(2026, 5, 1, 12, 0, 0, 0, time.Local)
	require.NoError(t, j.WriteNotification(NotificationEntry{Timestamp: day, Title: "t"}))

	_, err = os.Stat(filepath.Join(dir, "logs", "notify-2026-05-01.jsonl"))
	assert.NoError(t, err)
}

func TestQueryNotificationsNewestFirst(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	now := time.Now()
	writeEntries(t, j, now)

	res, err := QueryNotifications(j.Dir(), NotificationQuery{})
	require.NoError(t, err)
	require.Equal(t, 3, res.Total)
	// 跨天时文件顺序不同，排序后仍按时间倒序
	assert.True(t, !res.Notifications[0].Timestamp.Before(res.Notifications[1].Timestamp))
	assert.True(t, !res.Notifications[1].Timestamp.Before(res.Notifications[2].Timestamp))
	assert.Equal(t, "Disk", res.Notifications[0].Title)
}

func TestQueryNotificationsFilters(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	now := time.Now()
	writeEntries(t, j, now)

	res, err := QueryNotifications(j.Dir(), NotificationQuery{Severity: "critical"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	res, err = QueryNotifications(j.Dir(), NotificationQuery{Source: "nas"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "Alert from nas", res.Notifications[0].Title)

	start := now.Add(-90 * time.Minute)
	res, err = QueryNotifications(j.Dir(), NotificationQuery{StartTime: &start})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	res, err = QueryNotifications(j.Dir(), NotificationQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Notifications, 1)
	assert.Equal(t, "Alert from nas", res.Notifications[0].Title)

	res, err = QueryNotifications(j.Dir(), NotificationQuery{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Notifications)
}

func TestQueryNotificationsLongLine(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	now := time.Now()

	require.NoError(t, j.WriteNotification(NotificationEntry{Timestamp: now.Add(-2 * time.Minute), Title: "before"}))
	require.NoError(t, j.WriteNotification(NotificationEntry{Timestamp: now.Add(-time.Minute), Title: "big", Body: strings.Repeat("x", 70*1024)}))
	require.NoError(t, j.WriteNotification(NotificationEntry{Timestamp: now, Title: "after"}))

	res, err := QueryNotifications(j.Dir(), NotificationQuery{})
	require.NoError(t, err)
	require.Equal(t, 3, res.Total)
	assert.Equal(t, "big", res.Notifications[1].Title)
	assert.Len(t, res.Notifications[1].Body, 70*1024)
}

func TestQueryNotificationsSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	path := journalPath(dir, now)
	line := `{"timestamp":"` + now.Format(time.RFC3339Nano) + `","title":"ok","severity":"Info"}`
	require.NoError(t, os.WriteFile(path, []byte("{broken\n\n"+line), 0644))

	res, err := QueryNotifications(dir, NotificationQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "ok", res.Notifications[0].Title)
}

func TestQueryNotificationsClampsRange(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	now := time.Now()

	require.NoError(t, j.WriteNotification(NotificationEntry{Timestamp: now.AddDate(0, 0, -40), Title: "old"}))
	require.NoError(t, j.WriteNotification(NotificationEntry{Timestamp: now, Title: "recent"}))

	epoch := time.Unix(0, 0)
	res, err := QueryNotifications(j.Dir(), NotificationQuery{StartTime: &epoch})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "recent", res.Notifications[0].Title)
}

func TestQueryNotificationsMissingDir(t *testing.T) {
	res, err := QueryNotifications(filepath.Join(t.TempDir(), "absent"), NotificationQuery{})
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.NotNil(t, res.Notifications)
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, Init("info", "stdout"))
	SetLevel("debug")
	assert.Equal(t, "debug", Level())
	SetLevel("bogus")
	assert.Equal(t, "info", Level())
	SetLevel("info")
}
