package discovery

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"skywidget/internal/logger"
	"skywidget/internal/models"
)

// Registry 已发现节点表（按节点 ID），从不包含本地节点
type Registry struct {
	mu          sync.RWMutex
	nodes       map[string]models.NodeInfo
	localID     string
	serviceName string // 例如 _skywidget._tcp.local.
	now         func() time.Time
	log         *zap.Logger
}

// RegistryOption 节点表选项
type RegistryOption func(*Registry)

// WithRegistryClock 注入时钟（测试用）
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRegistryLogger 指定日志
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry 创建节点表
func NewRegistry(localID, serviceName string, opts ...RegistryOption) *Registry {
	r := &Registry{
		nodes:       make(map[string]models.NodeInfo),
		localID:     localID,
		serviceName: serviceName,
		now:         time.Now,
		log:         logger.Named("discovery.registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert 写入或刷新节点，心跳置为当前时间；本地节点被忽略
func (r *Registry) Upsert(node models.NodeInfo) bool {
	if node.ID == "" || node.ID == r.localID {
		return false
	}

	node.LastHeartbeat = r.now().Unix()
	node.Status = models.NodeStatusOnline

	r.mu.Lock()
	_, existed := r.nodes[node.ID]
	r.nodes[node.ID] = node
	r.mu.Unlock()

	if !existed {
		r.log.Info("Node discovered",
			zap.String("node_id", node.ID),
			zap.String("node_name", node.Name),
			zap.String("address", node.IPAddress),
			zap.Int("port", node.APIPort),
		)
	}
	return true
}

// Fullname 节点广播的完整服务实例名
func (r *Registry) Fullname(node models.NodeInfo) string {
	return node.Name + "." + r.serviceName
}

// RemoveByFullname 删除服务实例名匹配的节点，返回删除数量
func (r *Registry) RemoveByFullname(fullname string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, node := range r.nodes {
		if r.Fullname(node) == fullname {
			delete(r.nodes, id)
			removed++
			r.log.Info("Node removed", zap.String("node_id", id), zap.String("fullname", fullname))
		}
	}
	return removed
}

// CleanupOfflineNodes 删除心跳超时的节点，返回删除数量
func (r *Registry) CleanupOfflineNodes(timeout time.Duration) int {
	now := r.now().Unix()
	limit := int64(timeout / time.Second)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, node := range r.nodes {
		if now-node.LastHeartbeat >= limit {
			delete(r.nodes, id)
			removed++
			r.log.Info("Removing offline node",
				zap.String("node_id", id),
				zap.String("node_name", node.Name),
			)
		}
	}
	return removed
}

// Nodes 节点快照，按名称排序
func (r *Registry) Nodes() []models.NodeInfo {
	r.mu.RLock()
	out := make([]models.NodeInfo, 0, len(r.nodes))
	for _, node := range r.nodes {
		out = append(out, node)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get 按 ID 获取节点
func (r *Registry) Get(id string) (models.NodeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[id]
	return node, ok
}

// Len 节点数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
