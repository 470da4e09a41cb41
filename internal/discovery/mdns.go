// Package discovery 基于 mDNS 的局域网节点发现
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"skywidget/internal/logger"
	"skywidget/internal/models"
)

const (
	DefaultServiceType = "_skywidget._tcp"
	DefaultDomain      = "local."
)

// 广播的 TXT 属性键
var requiredProperties = []string{"id", "name", "os_info", "version"}

// Config mDNS 发现配置
type Config struct {
	ServiceType  string
	Domain       string
	PollTimeout  time.Duration // 事件轮询等待上限
	BrowseWindow time.Duration // 每轮浏览时长，新一轮会重新解析所有在线节点
}

func (c *Config) setDefaults() {
	if c.ServiceType == "" {
		c.ServiceType = DefaultServiceType
	}
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.BrowseWindow <= 0 {
		c.BrowseWindow = 10 * time.Second
	}
}

// ServiceName 服务全名，例如 _skywidget._tcp.local.
func (c Config) ServiceName() string {
	return strings.Trim(c.ServiceType, ".") + "." + strings.Trim(c.Domain, ".") + "."
}

// Service mDNS 发现服务
type Service struct {
	cfg      Config
	local    models.NodeInfo
	registry *Registry

	mu      sync.Mutex
	server  *zeroconf.Server
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
	browser func(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error

	log *zap.Logger
}

// NewService 创建发现服务
func NewService(local models.NodeInfo, cfg Config, opts ...RegistryOption) *Service {
	cfg.setDefaults()
	s := &Service{
		cfg:      cfg,
		local:    local,
		registry: NewRegistry(local.ID, cfg.ServiceName(), opts...),
		log:      logger.Named("discovery"),
	}
	s.browser = s.browseRound
	return s
}

// Registry 节点表
func (s *Service) Registry() *Registry {
	return s.registry
}

// Start 注册本地服务并开始浏览，任何一步失败都应视为启动失败
func (s *Service) Start(ctx context.Context) error {
	if err := s.Register(s.local.Name, s.local.APIPort, s.local.Properties()); err != nil {
		return err
	}
	if err := s.Browse(ctx); err != nil {
		s.shutdownServer()
		return err
	}
	return nil
}

// Register 广播本地节点
func (s *Service) Register(instance string, port int, properties map[string]string) error {
	if instance == "" {
		return errors.New("instance name is required")
	}

	txt := make([]string, 0, len(properties))
	for _, key := range requiredProperties {
		if v, ok := properties[key]; ok {
			txt = append(txt, key+"="+v)
		}
	}

	server, err := zeroconf.Register(instance, s.cfg.ServiceType, s.cfg.Domain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	s.log.Info("Registered mDNS service",
		zap.String("instance", instance),
		zap.String("service", s.cfg.ServiceName()),
		zap.Int("port", port),
	)
	return nil
}

// Browse 启动后台浏览循环
func (s *Service) Browse(ctx context.Context) error {
	// 先创建一次解析器，确认多播可用
	if _, err := zeroconf.NewResolver(); err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return s.startBrowsing(ctx)
}

func (s *Service) startBrowsing(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("discovery service closed")
	}
	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.browseLoop(ctx)

	s.log.Info("Started browsing for services", zap.String("service", s.cfg.ServiceName()))
	return nil
}

// browseRound 一轮浏览：每轮使用新的解析器，窗口结束时 entries 被关闭
func (s *Service) browseRound(ctx context.Context, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return err
	}
	return resolver.Browse(ctx, s.cfg.ServiceType, s.cfg.Domain, entries)
}

func (s *Service) browseLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		roundCtx, cancel := context.WithTimeout(ctx, s.cfg.BrowseWindow)
		entries := make(chan *zeroconf.ServiceEntry, 32)

		if err := s.browser(roundCtx, entries); err != nil {
			cancel()
			s.log.Warn("mDNS browse failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.BrowseWindow):
				continue
			}
		}

		seen := s.consume(roundCtx, entries)
		cancel()

		if ctx.Err() != nil {
			return
		}
		s.removeUnseen(seen)
	}
}

// consume 带超时地轮询事件，直到本轮结束，返回本轮解析到的节点 ID
func (s *Service) consume(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) map[string]struct{} {
	seen := make(map[string]struct{})
	record := func(entry *zeroconf.ServiceEntry) {
		if id, ok := s.handleEvent(entry); ok {
			seen[id] = struct{}{}
		}
	}

	poll := time.NewTicker(s.cfg.PollTimeout)
	defer poll.Stop()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return seen
			}
			record(entry)
		case <-ctx.Done():
			// 取走已缓冲的事件
			for {
				select {
				case entry, ok := <-entries:
					if !ok {
						return seen
					}
					record(entry)
				default:
					return seen
				}
			}
		case <-poll.C:
		}
	}
}

// removeUnseen 整轮浏览都未再解析到的节点视为已下线。
// zeroconf 在内部丢弃 TTL 为 0 的告别记录，下线只能由此推断。
func (s *Service) removeUnseen(seen map[string]struct{}) {
	for _, node := range s.registry.Nodes() {
		if _, ok := seen[node.ID]; ok {
			continue
		}
		fullname := s.registry.Fullname(node)
		s.log.Info("Service removed", zap.String("fullname", fullname))
		s.registry.RemoveByFullname(fullname)
	}
}

// handleEvent 处理一次解析结果，返回写入节点表的节点 ID
func (s *Service) handleEvent(entry *zeroconf.ServiceEntry) (string, bool) {
	if entry == nil {
		return "", false
	}

	node, ok := extractNodeInfo(entry)
	if !ok {
		s.log.Debug("Ignoring service with incomplete properties", zap.String("instance", entry.Instance))
		return "", false
	}
	if node.ID == s.local.ID {
		return "", false
	}
	s.registry.Upsert(node)
	return node.ID, true
}

// extractNodeInfo 从 TXT 属性和地址中提取节点信息，优先使用 IPv4
func extractNodeInfo(entry *zeroconf.ServiceEntry) (models.NodeInfo, bool) {
	props := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		if key, value, found := strings.Cut(txt, "="); found {
			props[key] = value
		}
	}
	for _, key := range requiredProperties {
		if _, ok := props[key]; !ok {
			return models.NodeInfo{}, false
		}
	}

	var address string
	switch {
	case len(entry.AddrIPv4) > 0:
		address = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		address = entry.AddrIPv6[0].String()
	default:
		return models.NodeInfo{}, false
	}

	return models.NodeInfo{
		ID:        props["id"],
		Name:      props["name"],
		IPAddress: address,
		APIPort:   entry.Port,
		Status:    models.NodeStatusOnline,
		OSInfo:    props["os_info"],
		Version:   props["version"],
	}, true
}

// Nodes 已发现节点快照
func (s *Service) Nodes() []models.NodeInfo {
	return s.registry.Nodes()
}

// CleanupOfflineNodes 清理心跳超时的节点，由调用方定期执行
func (s *Service) CleanupOfflineNodes(timeout time.Duration) int {
	return s.registry.CleanupOfflineNodes(timeout)
}

// Close 停止浏览并注销本地广播
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.shutdownServer()
	s.log.Info("Discovery service stopped")
}

func (s *Service) shutdownServer() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if server != nil {
		server.Shutdown()
	}
}
