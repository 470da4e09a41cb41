package sensors

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"skywidget/internal/models"
)

// SensorType 温度传感器分类
type SensorType string

const (
	SensorChipset SensorType = "chipset"
	SensorCPU     SensorType = "cpu"
	SensorDisk    SensorType = "disk"
	SensorMemory  SensorType = "memory"
	SensorOther   SensorType = "other"
)

// 按顺序匹配，南桥优先
var sensorKeywords = []struct {
	typ      SensorType
	keywords []string
}{
	{SensorChipset, []string{"pch", "southbridge", "fch", "chipset"}},
	{SensorCPU, []string{"coretemp", "k10temp", "zenpower", "cpu", "core", "package", "tctl", "tdie"}},
	{SensorDisk, []string{"nvme", "drivetemp", "disk", "ssd", "hdd"}},
	{SensorMemory, []string{"jc42", "spd5118", "dimm", "memory"}},
}

// ClassifySensor 根据传感器键名识别类型
func ClassifySensor(key string) SensorType {
	k := strings.ToLower(key)
	for _, group := range sensorKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(k, kw) {
				return group.typ
			}
		}
	}
	return SensorOther
}

// 每类传感器取最高温度写入的指标名
var temperatureMetrics = map[SensorType]string{
	SensorChipset: "chipset_temperature",
	SensorCPU:     "cpu_temperature",
	SensorDisk:    "disk_max_temperature",
	SensorMemory:  "memory_temperature",
}

// TemperatureCollector 温度采集器
type TemperatureCollector struct{}

func (c *TemperatureCollector) Name() string { return "temperature" }

func (c *TemperatureCollector) Collect(ctx context.Context) (models.MetricsSnapshot, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	// 部分传感器读取失败时仍返回其余结果
	if err != nil && len(temps) == 0 {
		return nil, err
	}
	return summarizeTemperatures(temps), nil
}

func summarizeTemperatures(temps []host.TemperatureStat) models.MetricsSnapshot {
	out := make(models.MetricsSnapshot)
	for _, t := range temps {
		if t.Temperature <= 0 {
			continue
		}
		metric, ok := temperatureMetrics[ClassifySensor(t.SensorKey)]
		if !ok {
			continue
		}
		v := float32(t.Temperature)
		if cur, exists := out[metric]; !exists || v > cur {
			out[metric] = v
		}
	}
	return out
}
