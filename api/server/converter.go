package server

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"skywidget/internal/alert"
	"skywidget/internal/elasticsearch"
	"skywidget/internal/logger"
)

// ConvertAddRequestToRule 将 AddRuleRequest 转换为告警规则
func ConvertAddRequestToRule(req AddRuleRequest, defaultCooldown int64) (alert.AlertRule, error) {
	condition, err := alert.NewCondition(req.ConditionType, req.Threshold, req.MetricName, req.Operator)
	if err != nil {
		return alert.AlertRule{}, err
	}

	severity, err := alert.ParseSeverity(req.Severity)
	if err != nil {
		return alert.AlertRule{}, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	rule := alert.NewRule(id, req.Name, req.Description, condition, severity)
	rule.CooldownSeconds = defaultCooldown
	if req.CooldownSeconds != nil {
		rule.CooldownSeconds = *req.CooldownSeconds
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if len(req.NotifyNodes) > 0 {
		rule.NotifyNodes = append([]string{}, req.NotifyNodes...)
	}
	return rule, nil
}

// unixTime 毫秒时间戳转 time.Time
func unixTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}

// ConvertSearchRequest 转换为 ES 查询
func ConvertSearchRequest(req AlertSearchRequest) elasticsearch.SearchQuery {
	return elasticsearch.SearchQuery{
		RuleID:    req.RuleID,
		Severity:  req.Severity,
		NodeID:    req.NodeID,
		StartTime: unixTime(req.StartTime),
		EndTime:   unixTime(req.EndTime),
		QueryText: req.QueryText,
		Size:      req.Size,
		From:      req.From,
	}
}

// ConvertNotificationRequest 转换为通知日志查询
func ConvertNotificationRequest(req NotificationSearchRequest) logger.NotificationQuery {
	return logger.NotificationQuery{
		Severity:  req.Severity,
		Source:    req.Source,
		StartTime: unixTime(req.StartTime),
		EndTime:   unixTime(req.EndTime),
		Limit:     req.Limit,
		Offset:    req.Offset,
	}
}
