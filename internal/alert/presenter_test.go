package alert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"skywidget/internal/logger"
)

func TestLogPresenterJournals(t *testing.T) {
	journal, err := logger.NewJournal(t.TempDir())
	require.NoError(t, err)

	p := NewLogPresenter(journal, zap.NewNop())
	require.NoError(t, p.Present(Notification{
		Title:    "CPU 使用率过高",
		Body:     "CPU 使用率 91.0% 超过阈值 80.0%",
		Severity: SeverityWarning,
		Source:   "local",
		RuleID:   "cpu_high",
	}))

	res, err := logger.QueryNotifications(journal.Dir(), logger.NotificationQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	entry := res.Notifications[0]
	assert.Equal(t, "Warning", entry.Severity)
	assert.Equal(t, "cpu_high", entry.RuleID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestLogPresenterWithoutJournal(t *testing.T) {
	p := NewLogPresenter(nil, zap.NewNop())
	assert.NoError(t, p.Present(Notification{Title: "t", Severity: SeverityInfo}))
}

func TestPresenterFunc(t *testing.T) {
	want := errors.New("tray unavailable")
	var got Notification
	p := PresenterFunc(func(n Notification) error {
		got = n
		return want
	})

	err := p.Present(Notification{Title: "x"})
	assert.ErrorIs(t, err, want)
	assert.Equal(t, "x", got.Title)
}
