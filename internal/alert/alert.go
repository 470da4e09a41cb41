package alert

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"skywidget/internal/models"
)

var (
	ErrUnknownConditionType = errors.New("unknown condition type")
	ErrUnknownSeverity      = errors.New("unknown severity")
	ErrRuleNotFound         = errors.New("alert rule not found")
	ErrDuplicateRule        = errors.New("alert rule already exists")
)

// DefaultCooldownSeconds 默认冷却时间（5 分钟）
const DefaultCooldownSeconds int64 = 300

// 自定义条件 == / != 的浮点容差
const customEpsilon = 0.001

// AlertSeverity 告警级别，只用于路由和图标，不影响评估顺序
type AlertSeverity int

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = map[AlertSeverity]string{
	SeverityInfo:     "Info",
	SeverityWarning:  "Warning",
	SeverityError:    "Error",
	SeverityCritical: "Critical",
}

func (s AlertSeverity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("AlertSeverity(%d)", int(s))
}

// Icon 桌面通知图标
func (s AlertSeverity) Icon() string {
	switch s {
	case SeverityInfo:
		return "dialog-information"
	case SeverityWarning:
		return "dialog-warning"
	default:
		return "dialog-error"
	}
}

// ParseSeverity 解析级别标签（不区分大小写）
func ParseSeverity(tag string) (AlertSeverity, error) {
	for sev, name := range severityNames {
		if strings.EqualFold(tag, name) {
			return sev, nil
		}
	}
	return SeverityInfo, fmt.Errorf("%w: %q", ErrUnknownSeverity, tag)
}

func (s AlertSeverity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *AlertSeverity) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	sev, err := ParseSeverity(tag)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// ConditionType 告警条件类型
type ConditionType string

const (
	ConditionCPUUsageAbove           ConditionType = "cpu_usage_above"
	ConditionMemoryUsageAbove        ConditionType = "memory_usage_above"
	ConditionDiskUsageAbove          ConditionType = "disk_usage_above"
	ConditionCPUTemperatureAbove     ConditionType = "cpu_temperature_above"
	ConditionChipsetTemperatureAbove ConditionType = "chipset_temperature_above"
	ConditionFanStopped              ConditionType = "fan_stopped"
	ConditionFanSlowSpeed            ConditionType = "fan_slow_speed"
	ConditionDiskTemperatureAbove    ConditionType = "disk_temperature_above"
	ConditionDiskHealthWarning       ConditionType = "disk_health_warning"
	ConditionVoltageAbnormal         ConditionType = "voltage_abnormal"
	ConditionMemoryTemperatureAbove  ConditionType = "memory_temperature_above"
	ConditionMemoryErrors            ConditionType = "memory_errors"
	ConditionCustom                  ConditionType = "custom"
)

// 固定条件绑定的指标名
var conditionMetrics = map[ConditionType]string{
	ConditionCPUUsageAbove:           "cpu_usage",
	ConditionMemoryUsageAbove:        "memory_usage_percent",
	ConditionDiskUsageAbove:          "disk_usage_percent",
	ConditionCPUTemperatureAbove:     "cpu_temperature",
	ConditionChipsetTemperatureAbove: "chipset_temperature",
	ConditionFanStopped:              "fans_stopped_count",
	ConditionFanSlowSpeed:            "fans_slow_speed_count",
	ConditionDiskTemperatureAbove:    "disk_max_temperature",
	ConditionDiskHealthWarning:       "disk_warning_count",
	ConditionVoltageAbnormal:         "voltage_abnormal_count",
	ConditionMemoryTemperatureAbove:  "memory_temperature",
	ConditionMemoryErrors:            "memory_uncorrectable_errors",
}

const diskCriticalMetric = "disk_critical_count"

// ConditionTypes 返回全部条件类型
func ConditionTypes() []ConditionType {
	return []ConditionType{
		ConditionCPUUsageAbove,
		ConditionMemoryUsageAbove,
		ConditionDiskUsageAbove,
		ConditionCPUTemperatureAbove,
		ConditionChipsetTemperatureAbove,
		ConditionFanStopped,
		ConditionFanSlowSpeed,
		ConditionDiskTemperatureAbove,
		ConditionDiskHealthWarning,
		ConditionVoltageAbnormal,
		ConditionMemoryTemperatureAbove,
		ConditionMemoryErrors,
		ConditionCustom,
	}
}

// AlertCondition 告警条件
// Threshold 仅对阈值类条件有效；MetricName/Operator 仅对 custom 有效
type AlertCondition struct {
	Type       ConditionType `json:"type"`
	Threshold  float32       `json:"threshold,omitempty"`
	MetricName string        `json:"metric_name,omitempty"`
	Operator   string        `json:"operator,omitempty"` // >, <, ==, !=
}

// NewCondition 根据类型标签构造条件
func NewCondition(tag string, threshold float32, metricName, operator string) (AlertCondition, error) {
	typ := ConditionType(strings.ToLower(strings.TrimSpace(tag)))
	if typ == ConditionCustom {
		if metricName == "" {
			return AlertCondition{}, fmt.Errorf("custom condition requires metric_name")
		}
		return Custom(metricName, threshold, operator), nil
	}
	if _, ok := conditionMetrics[typ]; !ok {
		return AlertCondition{}, fmt.Errorf("%w: %q", ErrUnknownConditionType, tag)
	}
	return AlertCondition{Type: typ, Threshold: threshold}, nil
}

// Threshold 构造阈值类条件
func Threshold(typ ConditionType, threshold float32) AlertCondition {
	return AlertCondition{Type: typ, Threshold: threshold}
}

// Flag 构造计数类条件（风扇停转、电压异常等）
func Flag(typ ConditionType) AlertCondition {
	return AlertCondition{Type: typ}
}

// Custom 构造自定义条件
func Custom(metricName string, threshold float32, operator string) AlertCondition {
	return AlertCondition{Type: ConditionCustom, MetricName: metricName, Threshold: threshold, Operator: operator}
}

// Metric 条件绑定的指标名
func (c AlertCondition) Metric() string {
	if c.Type == ConditionCustom {
		return c.MetricName
	}
	return conditionMetrics[c.Type]
}

// Evaluate 对快照求值，指标缺失视为条件不满足
func (c AlertCondition) Evaluate(metrics models.MetricsSnapshot) bool {
	switch c.Type {
	case ConditionCPUUsageAbove, ConditionMemoryUsageAbove, ConditionDiskUsageAbove,
		ConditionCPUTemperatureAbove, ConditionChipsetTemperatureAbove,
		ConditionDiskTemperatureAbove, ConditionMemoryTemperatureAbove:
		v, ok := metrics.Get(c.Metric())
		return ok && v > c.Threshold
	case ConditionFanStopped, ConditionFanSlowSpeed, ConditionVoltageAbnormal, ConditionMemoryErrors:
		v, ok := metrics.Get(c.Metric())
		return ok && v > 0
	case ConditionDiskHealthWarning:
		if warning, ok := metrics.Get(c.Metric()); ok {
			return warning > 0
		}
		critical, ok := metrics.Get(diskCriticalMetric)
		return ok && critical > 0
	case ConditionCustom:
		v, ok := metrics.Get(c.MetricName)
		if !ok {
			return false
		}
		return compare(v, c.Operator, c.Threshold)
	default:
		return false
	}
}

func compare(v float32, op string, threshold float32) bool {
	diff := math.Abs(float64(v - threshold))
	switch op {
	case ">":
		return v > threshold
	case "<":
		return v < threshold
	case "==":
		return diff < customEpsilon
	case "!=":
		return diff >= customEpsilon
	default:
		return false
	}
}

// Message 生成告警消息，缺失的指标按 0 处理
func (c AlertCondition) Message(ruleName string, metrics models.MetricsSnapshot) string {
	value := metrics.ValueOr(c.Metric(), 0)
	count := int(value)

	switch c.Type {
	case ConditionCPUUsageAbove:
		return fmt.Sprintf("%s: CPU 使用率 %.1f%% 超过阈值 %.1f%%", ruleName, value, c.Threshold)
	case ConditionMemoryUsageAbove:
		return fmt.Sprintf("%s: 内存使用率 %.1f%% 超过阈值 %.1f%%", ruleName, value, c.Threshold)
	case ConditionDiskUsageAbove:
		return fmt.Sprintf("%s: 磁盘使用率 %.1f%% 超过阈值 %.1f%%", ruleName, value, c.Threshold)
	case ConditionCPUTemperatureAbove:
		return fmt.Sprintf("%s: CPU 温度 %.1f°C 超过阈值 %.1f°C", ruleName, value, c.Threshold)
	case ConditionChipsetTemperatureAbove:
		return fmt.Sprintf("⚠️ %s: 南桥/PCH 温度 %.1f°C 超过阈值 %.1f°C！可能导致磁盘掉线或 CMOS 错误！", ruleName, value, c.Threshold)
	case ConditionFanStopped:
		return fmt.Sprintf("🚨 %s: 检测到 %d 个风扇已停转！可能导致硬件过热和损坏！", ruleName, count)
	case ConditionFanSlowSpeed:
		return fmt.Sprintf("⚠️ %s: 检测到 %d 个风扇转速过低！请检查风扇状态。", ruleName, count)
	case ConditionDiskTemperatureAbove:
		return fmt.Sprintf("🔥 %s: NVMe/SSD 温度 %.1f°C 超过阈值 %.1f°C！可能导致性能下降或数据丢失！", ruleName, value, c.Threshold)
	case ConditionDiskHealthWarning:
		critical := int(metrics.ValueOr(diskCriticalMetric, 0))
		if critical > 0 {
			return fmt.Sprintf("🚨 %s: 检测到 %d 个磁盘处于严重状态！请立即备份数据！", ruleName, critical)
		}
		return fmt.Sprintf("⚠️ %s: 检测到 %d 个磁盘健康状态警告！建议检查磁盘状态。", ruleName, count)
	case ConditionVoltageAbnormal:
		return fmt.Sprintf("⚡ %s: 检测到 %d 个电压异常！可能导致系统不稳定或损坏硬件！", ruleName, count)
	case ConditionMemoryTemperatureAbove:
		return fmt.Sprintf("🔥 %s: 内存温度 %.1f°C 超过阈值 %.1f°C！可能导致系统不稳定！", ruleName, value, c.Threshold)
	case ConditionMemoryErrors:
		return fmt.Sprintf("🚨 %s: 检测到 %d 个内存不可纠正错误！可能导致系统崩溃或数据损坏！", ruleName, count)
	case ConditionCustom:
		return fmt.Sprintf("%s: 自定义指标 %s 触发告警", ruleName, c.MetricName)
	default:
		return fmt.Sprintf("%s: 未知条件 %s", ruleName, c.Type)
	}
}

// AlertRule 告警规则
type AlertRule struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Condition       AlertCondition `json:"condition"`
	Severity        AlertSeverity  `json:"severity"`
	Enabled         bool           `json:"enabled"`
	CooldownSeconds int64          `json:"cooldown_seconds"`
	LastTriggered   *time.Time     `json:"-"`            // 不持久化
	NotifyNodes     []string       `json:"notify_nodes"` // 空表示通知所有节点
}

// NewRule 创建规则，默认启用、冷却 5 分钟、通知所有节点
func NewRule(id, name, description string, condition AlertCondition, severity AlertSeverity) AlertRule {
	return AlertRule{
		ID:              id,
		Name:            name,
		Description:     description,
		Condition:       condition,
		Severity:        severity,
		Enabled:         true,
		CooldownSeconds: DefaultCooldownSeconds,
		NotifyNodes:     []string{},
	}
}

// ShouldTrigger 检查规则是否应该触发
func (r *AlertRule) ShouldTrigger(metrics models.MetricsSnapshot, now time.Time) bool {
	if !r.Enabled {
		return false
	}

	if r.LastTriggered != nil && now.Sub(*r.LastTriggered) < time.Duration(r.CooldownSeconds)*time.Second {
		return false
	}

	return r.Condition.Evaluate(metrics)
}

// GenerateMessage 生成告警消息（不修改规则状态）
func (r *AlertRule) GenerateMessage(metrics models.MetricsSnapshot) string {
	return r.Condition.Message(r.Name, metrics)
}

// MarkTriggered 记录触发时间
func (r *AlertRule) MarkTriggered(now time.Time) {
	t := now
	r.LastTriggered = &t
}

func (r AlertRule) clone() AlertRule {
	out := r
	if r.LastTriggered != nil {
		t := *r.LastTriggered
		out.LastTriggered = &t
	}
	out.NotifyNodes = append([]string{}, r.NotifyNodes...)
	return out
}
