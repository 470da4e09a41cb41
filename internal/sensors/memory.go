package sensors

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"

	"skywidget/internal/models"
)

// MemoryInfo 内存信息（字节）
type MemoryInfo struct {
	Total            uint64  `json:"total"`
	Used             uint64  `json:"used"`
	Available        uint64  `json:"available"`
	UsagePercent     float64 `json:"usage_percent"`
	SwapTotal        uint64  `json:"swap_total"`
	SwapUsed         uint64  `json:"swap_used"`
	SwapUsagePercent float64 `json:"swap_usage_percent"`
}

// MemoryCollector 内存采集器
type MemoryCollector struct{}

func (c *MemoryCollector) Name() string { return "memory" }

func (c *MemoryCollector) Info(ctx context.Context) (MemoryInfo, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryInfo{}, err
	}

	info := MemoryInfo{
		Total:        vm.Total,
		Used:         vm.Used,
		Available:    vm.Available,
		UsagePercent: vm.UsedPercent,
	}

	// 没有交换分区时忽略
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		info.SwapTotal = swap.Total
		info.SwapUsed = swap.Used
		info.SwapUsagePercent = swap.UsedPercent
	}
	return info, nil
}

func (c *MemoryCollector) Collect(ctx context.Context) (models.MetricsSnapshot, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}
	return models.MetricsSnapshot{
		"memory_usage_percent": float32(info.UsagePercent),
		"swap_usage_percent":   float32(info.SwapUsagePercent),
	}, nil
}
