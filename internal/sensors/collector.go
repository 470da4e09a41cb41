// Package sensors 通过 gopsutil 采集本机硬件指标
package sensors

import (
	"context"
	"fmt"

	"skywidget/internal/models"
)

// Collector 指标采集器，每个采集器只负责快照的一部分
type Collector interface {
	Name() string
	Collect(ctx context.Context) (models.MetricsSnapshot, error)
}

// DefaultCollectorTypes 默认启用的采集器
var DefaultCollectorTypes = []string{"cpu", "memory", "disk", "temperature"}

// NewCollector 按类型创建采集器
func NewCollector(typ string) (Collector, error) {
	switch typ {
	case "cpu":
		return &CPUCollector{}, nil
	case "memory", "mem":
		return &MemoryCollector{}, nil
	case "disk":
		return &DiskCollector{}, nil
	case "temperature", "temp":
		return &TemperatureCollector{}, nil
	default:
		return nil, fmt.Errorf("unsupported collector type: %s", typ)
	}
}
