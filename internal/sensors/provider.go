package sensors

import (
	"context"
	"fmt"
	stdnet "net"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"skywidget/internal/logger"
	"skywidget/internal/models"
)

// HardwareInfo /hardware 接口返回的硬件信息
type HardwareInfo struct {
	CPU       CPUInfo    `json:"cpu"`
	Memory    MemoryInfo `json:"memory"`
	Disk      DisksInfo  `json:"disk"`
	Timestamp int64      `json:"timestamp"` // 毫秒
}

// Provider 合并多个采集器的结果
type Provider struct {
	collectors []Collector
	cpu        *CPUCollector
	memory     *MemoryCollector
	disk       *DiskCollector
	log        *zap.Logger
}

// NewProvider 按类型创建采集器
func NewProvider(types ...string) (*Provider, error) {
	if len(types) == 0 {
		types = DefaultCollectorTypes
	}
	collectors := make([]Collector, 0, len(types))
	for _, typ := range types {
		c, err := NewCollector(typ)
		if err != nil {
			return nil, err
		}
		collectors = append(collectors, c)
	}
	return NewProviderWith(collectors...), nil
}

// NewProviderWith 使用给定采集器
func NewProviderWith(collectors ...Collector) *Provider {
	return &Provider{
		collectors: collectors,
		cpu:        &CPUCollector{},
		memory:     &MemoryCollector{},
		disk:       &DiskCollector{},
		log:        logger.Named("sensors"),
	}
}

// Snapshot 采集一次完整快照，单个采集器失败只记录日志
func (p *Provider) Snapshot(ctx context.Context) models.MetricsSnapshot {
	snapshot := make(models.MetricsSnapshot)
	for _, c := range p.collectors {
		part, err := c.Collect(ctx)
		if err != nil {
			p.log.Debug("Collector failed", zap.String("collector", c.Name()), zap.Error(err))
			continue
		}
		for k, v := range part {
			snapshot[k] = v
		}
	}
	return snapshot
}

// Hardware 采集 CPU/内存/磁盘详情
func (p *Provider) Hardware(ctx context.Context) (HardwareInfo, error) {
	info := HardwareInfo{Timestamp: time.Now().UnixMilli()}

	var err error
	if info.CPU, err = p.cpu.Info(ctx); err != nil {
		return info, fmt.Errorf("cpu: %w", err)
	}
	if info.Memory, err = p.memory.Info(ctx); err != nil {
		return info, fmt.Errorf("memory: %w", err)
	}
	if info.Disk, err = p.disk.Info(ctx); err != nil {
		return info, fmt.Errorf("disk: %w", err)
	}
	return info, nil
}

// OSInfo 操作系统描述，例如 "ubuntu 22.04 (6.5.0-14-generic)"
func OSInfo(ctx context.Context) string {
	h, err := host.InfoWithContext(ctx)
	if err != nil || h.Platform == "" {
		return runtime.GOOS + "/" + runtime.GOARCH
	}
	parts := []string{h.Platform}
	if h.PlatformVersion != "" {
		parts = append(parts, h.PlatformVersion)
	}
	desc := strings.Join(parts, " ")
	if h.KernelVersion != "" {
		desc += " (" + h.KernelVersion + ")"
	}
	return desc
}

// Hostname 主机名
func Hostname(ctx context.Context) string {
	if h, err := host.InfoWithContext(ctx); err == nil && h.Hostname != "" {
		return h.Hostname
	}
	return "skywidget"
}

// LocalIPv4 第一个处于 up 状态的非回环 IPv4 地址，找不到时返回 127.0.0.1
func LocalIPv4(ctx context.Context) string {
	ifaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return "127.0.0.1"
	}
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, err := stdnet.ParseCIDR(addr.Addr)
			if err != nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}
			return ip.String()
		}
	}
	return "127.0.0.1"
}
