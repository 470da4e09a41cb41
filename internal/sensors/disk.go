package sensors

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"

	"skywidget/internal/models"
)

// DiskInfo 单个分区
type DiskInfo struct {
	Name           string  `json:"name"`
	MountPoint     string  `json:"mount_point"`
	FileSystem     string  `json:"file_system"`
	TotalSpace     uint64  `json:"total_space"`
	AvailableSpace uint64  `json:"available_space"`
	UsedSpace      uint64  `json:"used_space"`
	UsagePercent   float64 `json:"usage_percent"`
	IsRemovable    bool    `json:"is_removable"`
}

// DisksInfo 全部分区汇总
type DisksInfo struct {
	Disks          []DiskInfo `json:"disks"`
	DiskCount      int        `json:"disk_count"`
	TotalSpace     uint64     `json:"total_space"`
	TotalUsed      uint64     `json:"total_used"`
	TotalAvailable uint64     `json:"total_available"`
}

// UsagePercent 总使用率
func (d DisksInfo) UsagePercent() float64 {
	if d.TotalSpace == 0 {
		return 0
	}
	return float64(d.TotalUsed) / float64(d.TotalSpace) * 100
}

// DiskCollector 磁盘使用率采集器
type DiskCollector struct{}

func (c *DiskCollector) Name() string { return "disk" }

func (c *DiskCollector) Info(ctx context.Context) (DisksInfo, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return DisksInfo{}, err
	}

	info := DisksInfo{Disks: []DiskInfo{}}
	seen := make(map[string]bool)
	for _, part := range parts {
		// 同一设备多次挂载只统计一次
		if seen[part.Device] {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		seen[part.Device] = true

		info.Disks = append(info.Disks, DiskInfo{
			Name:           part.Device,
			MountPoint:     part.Mountpoint,
			FileSystem:     part.Fstype,
			TotalSpace:     usage.Total,
			AvailableSpace: usage.Free,
			UsedSpace:      usage.Used,
			UsagePercent:   usage.UsedPercent,
			IsRemovable:    isRemovable(part.Mountpoint),
		})
		info.TotalSpace += usage.Total
		info.TotalUsed += usage.Used
		info.TotalAvailable += usage.Free
	}
	info.DiskCount = len(info.Disks)
	return info, nil
}

func isRemovable(mountpoint string) bool {
	return strings.HasPrefix(mountpoint, "/media/") || strings.HasPrefix(mountpoint, "/run/media/")
}

func (c *DiskCollector) Collect(ctx context.Context) (models.MetricsSnapshot, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}
	return models.MetricsSnapshot{
		"disk_usage_percent": float32(info.UsagePercent()),
		"disk_count":         float32(info.DiskCount),
	}, nil
}
