package models

// AlertNotification 节点间传递的告警通知
type AlertNotification struct {
	SourceNodeID   string `json:"source_node_id" binding:"required"`
	SourceNodeName string `json:"source_node_name" binding:"required"`
	AlertType      string `json:"alert_type"` // 触发规则 ID
	Message        string `json:"message" binding:"required"`
	Severity       string `json:"severity"`
	Timestamp      int64  `json:"timestamp"` // 毫秒
}

// MetricsSnapshot 某一时刻的指标快照（指标名 -> 值）
type MetricsSnapshot map[string]float32

// Get 获取指标值，不存在时 ok 为 false
func (s MetricsSnapshot) Get(name string) (float32, bool) {
	v, ok := s[name]
	return v, ok
}

// ValueOr 获取指标值，不存在时返回默认值
func (s MetricsSnapshot) ValueOr(name string, def float32) float32 {
	if v, ok := s[name]; ok {
		return v
	}
	return def
}

// Clone 复制快照
func (s MetricsSnapshot) Clone() MetricsSnapshot {
	out := make(MetricsSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
