package alert

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"skywidget/internal/logger"
	"skywidget/internal/models"
)

// Trigger 一次评估中触发的规则及其消息
type Trigger struct {
	Rule    AlertRule
	Message string
}

// Engine 告警规则引擎
type Engine struct {
	mu    sync.RWMutex
	rules []AlertRule
	now   func() time.Time
	log   *zap.Logger
}

// EngineOption 引擎选项
type EngineOption func(*Engine)

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLogger 指定日志
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine 创建规则引擎
func NewEngine(rules []AlertRule, opts ...EngineOption) *Engine {
	e := &Engine{
		now: time.Now,
		log: logger.Named("alert.engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, r := range rules {
		e.rules = append(e.rules, r.clone())
	}
	return e
}

// Evaluate 评估所有启用的规则，并在同一把写锁内记录触发时间
func (e *Engine) Evaluate(metrics models.MetricsSnapshot) []Trigger {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var triggers []Trigger
	for i := range e.rules {
		rule := &e.rules[i]
		if !rule.ShouldTrigger(metrics, now) {
			continue
		}

		msg := rule.GenerateMessage(metrics)
		rule.MarkTriggered(now)
		triggers = append(triggers, Trigger{Rule: rule.clone(), Message: msg})

		e.log.Debug("Alert rule triggered",
			zap.String("rule_id", rule.ID),
			zap.Time("cooldown_until", now.Add(time.Duration(rule.CooldownSeconds)*time.Second)),
		)
	}

	return triggers
}

// Add 添加规则，ID 重复时返回 ErrDuplicateRule
func (e *Engine) Add(rule AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range e.rules {
		if r.ID == rule.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
		}
	}
	e.rules = append(e.rules, rule.clone())
	return nil
}

// Remove 删除规则，规则不存在时不做任何事
func (e *Engine) Remove(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.rules {
		if r.ID == ruleID {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Toggle 启用/禁用规则，规则不存在时不做任何事
func (e *Engine) Toggle(ruleID string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.rules {
		if e.rules[i].ID == ruleID {
			e.rules[i].Enabled = enabled
			return true
		}
	}
	return false
}

// Get 获取单条规则
func (e *Engine) Get(ruleID string) (AlertRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, r := range e.rules {
		if r.ID == ruleID {
			return r.clone(), nil
		}
	}
	return AlertRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
}

// List 返回规则副本
func (e *Engine) List() []AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]AlertRule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.clone())
	}
	return out
}
