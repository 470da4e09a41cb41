package alert

import (
	"go.uber.org/zap"

	"skywidget/internal/logger"
)

// Notification 本地展示的通知
type Notification struct {
	Title    string
	Body     string
	Severity AlertSeverity
	Source   string // local 或来源节点名
	RuleID   string
}

// Presenter 本地通知展示，失败只记录日志
type Presenter interface {
	Present(n Notification) error
}

// PresenterFunc 函数适配器
type PresenterFunc func(n Notification) error

func (f PresenterFunc) Present(n Notification) error {
	return f(n)
}

// LogPresenter 把通知写入日志和通知日志文件
type LogPresenter struct {
	journal *logger.Journal
	log     *zap.Logger
}

// NewLogPresenter journal 可为 nil
func NewLogPresenter(journal *logger.Journal, log *zap.Logger) *LogPresenter {
	if log == nil {
		log = logger.Named("alert.presenter")
	}
	return &LogPresenter{journal: journal, log: log}
}

func (p *LogPresenter) Present(n Notification) error {
	p.log.Info("Notification",
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("severity", n.Severity.String()),
		zap.String("icon", n.Severity.Icon()),
		zap.String("source", n.Source),
	)

	if p.journal == nil {
		return nil
	}
	return p.journal.WriteNotification(logger.NotificationEntry{
		Title:    n.Title,
		Body:     n.Body,
		Severity: n.Severity.String(),
		Source:   n.Source,
		RuleID:   n.RuleID,
	})
}
