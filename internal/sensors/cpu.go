package sensors

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"

	"skywidget/internal/models"
)

// CPUInfo CPU 信息
type CPUInfo struct {
	Brand     string    `json:"brand"`
	CoreCount int       `json:"core_count"`
	Usage     float32   `json:"usage"`      // 0-100
	CoreUsage []float32 `json:"core_usage"` // 各核心使用率
	Frequency uint64    `json:"frequency"`  // MHz
}

// CPUCollector CPU 使用率采集器
type CPUCollector struct{}

func (c *CPUCollector) Name() string { return "cpu" }

// Info 采集 CPU 信息；使用率为距上次调用的平均值
func (c *CPUCollector) Info(ctx context.Context) (CPUInfo, error) {
	info := CPUInfo{CoreUsage: []float32{}}

	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return info, err
	}

	var total float64
	for _, p := range perCore {
		info.CoreUsage = append(info.CoreUsage, float32(p))
		total += p
	}
	if len(perCore) > 0 {
		info.Usage = float32(total / float64(len(perCore)))
	}

	if stats, err := cpu.InfoWithContext(ctx); err == nil && len(stats) > 0 {
		info.Brand = stats[0].ModelName
		info.Frequency = uint64(stats[0].Mhz)
	}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CoreCount = n
	} else {
		info.CoreCount = len(perCore)
	}

	return info, nil
}

func (c *CPUCollector) Collect(ctx context.Context) (models.MetricsSnapshot, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}
	return models.MetricsSnapshot{
		"cpu_usage": info.Usage,
		"cpu_cores": float32(info.CoreCount),
	}, nil
}
