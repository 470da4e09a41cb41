package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"skywidget/api/middleware"
	"skywidget/internal/alert"
	"skywidget/internal/config"
	"skywidget/internal/elasticsearch"
	"skywidget/internal/logger"
	"skywidget/internal/models"
	"skywidget/internal/sensors"
	"skywidget/internal/storage"
	"skywidget/internal/telemetry"
)

// PeerLister 已发现节点来源
type PeerLister interface {
	Nodes() []models.NodeInfo
}

// HardwareSource /hardware 数据来源
type HardwareSource interface {
	Hardware(ctx context.Context) (sensors.HardwareInfo, error)
}

// Deps 服务器依赖；Peers、Hardware、ES 可为空
type Deps struct {
	Config     *config.Config
	ConfigPath string
	Version    string

	Engine   *alert.Engine
	Notifier *alert.Notifier
	Metrics  *storage.MetricsStore
	Alerts   *storage.AlertsStore
	Peers    PeerLister
	Hardware HardwareSource
	ES       *elasticsearch.Client
}

type Server struct {
	router     *gin.Engine
	srvMu      sync.Mutex
	httpServer *http.Server
	limiter    *middleware.IPRateLimiter
	log        *zap.Logger

	engine   *alert.Engine
	notifier *alert.Notifier
	metrics  *storage.MetricsStore
	alerts   *storage.AlertsStore
	peers    PeerLister
	hardware HardwareSource
	es       *elasticsearch.Client
	version  string
	now      func() time.Time

	configMu   sync.RWMutex
	config     *config.Config
	configPath string
}

func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CORS())

	// Add timeout middleware
	router.Use(func(c *gin.Context) {
		// Set timeout for request processing (30 seconds)
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	server := &Server{
		router:     router,
		limiter:    middleware.NewIPRateLimiter(middleware.FromConfig(deps.Config.RateLimit)),
		log:        logger.Named("http"),
		engine:     deps.Engine,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		alerts:     deps.Alerts,
		peers:      deps.Peers,
		hardware:   deps.Hardware,
		es:         deps.ES,
		version:    deps.Version,
		now:        time.Now,
		config:     deps.Config,
		configPath: deps.ConfigPath,
	}

	server.setupRoutes()

	return server
}

// Handler 供测试直接调用
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// 节点间接口，不限流
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/node", s.getNode)
	s.router.GET("/hardware", s.getHardware)
	s.router.GET("/nodes", s.listNodes)
	s.router.POST("/alerts/notify", s.receiveAlert)
	s.router.GET("/metrics", gin.WrapH(telemetry.Handler()))

	// Apply rate limiting to all API routes
	api := s.router.Group("/api/v1")
	api.Use(s.limiter.Middleware())

	{
		// Alert rules - all using POST
		api.POST("/rule/list", s.listRules)
		api.POST("/rule/get", s.getRule)
		api.POST("/rule/add", s.addRule)
		api.POST("/rule/remove", s.removeRule)
		api.POST("/rule/toggle", s.toggleRule)

		// Alert history
		api.POST("/alert/list", s.listAlerts)
		api.POST("/alert/unacknowledged", s.listUnacknowledged)
		api.POST("/alert/acknowledge", s.acknowledgeAlert)
		api.POST("/alert/clear", s.clearAlerts)
		api.POST("/alert/export", s.exportAlerts)
		api.POST("/alert/search", s.searchAlerts)

		// Metrics
		api.POST("/metric/export", s.exportMetrics)
		api.POST("/metric/names", s.metricNames)
		api.POST("/metric/get", s.getMetric)

		// Notification journal
		api.POST("/notification/search", s.searchNotifications)

		// System Configuration
		api.GET("/config", s.getConfig)
		api.POST("/config", s.updateConfig)
	}
}

// Common request/response types
type IDRequest struct {
	ID string `json:"id" binding:"required"`
}

type ToggleRequest struct {
	ID      string `json:"id" binding:"required"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

type AddRuleRequest struct {
	ID              string   `json:"id"`
	Name            string   `json:"name" binding:"required"`
	Description     string   `json:"description"`
	ConditionType   string   `json:"condition_type" binding:"required"`
	Threshold       float32  `json:"threshold"`
	MetricName      string   `json:"metric_name"`
	Operator        string   `json:"operator"`
	Severity        string   `json:"severity" binding:"required"`
	CooldownSeconds *int64   `json:"cooldown_seconds" binding:"omitempty,min=0"`
	Enabled         *bool    `json:"enabled"`
	NotifyNodes     []string `json:"notify_nodes"`
}

type MetricRequest struct {
	Name      string `json:"name" binding:"required"`
	MaxPoints int    `json:"max_points" binding:"omitempty,min=0"`
}

type AlertSearchRequest struct {
	RuleID    string `json:"rule_id,omitempty"`
	Severity  string `json:"severity,omitempty"`
	NodeID    string `json:"node_id,omitempty"`
	StartTime *int64 `json:"start_time,omitempty"` // 毫秒
	EndTime   *int64 `json:"end_time,omitempty"`   // 毫秒
	QueryText string `json:"query_text,omitempty"`
	Size      int    `json:"size,omitempty"`
	From      int    `json:"from,omitempty"`
}

type NotificationSearchRequest struct {
	Severity  string `json:"severity,omitempty"`
	Source    string `json:"source,omitempty"`
	StartTime *int64 `json:"start_time,omitempty"` // 毫秒
	EndTime   *int64 `json:"end_time,omitempty"`   // 毫秒
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// bindOptionalJSON 允许空请求体
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

// ---- 节点间接口 ----

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   s.version,
		"timestamp": s.now().UnixMilli(),
	})
}

func (s *Server) getNode(c *gin.Context) {
	c.JSON(http.StatusOK, s.notifier.Local())
}

func (s *Server) getHardware(c *gin.Context) {
	if s.hardware == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Hardware information is not available"})
		return
	}

	info, err := s.hardware.Hardware(c.Request.Context())
	if err != nil {
		s.log.Warn("Failed to collect hardware info", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect hardware info"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) listNodes(c *gin.Context) {
	nodes := []models.NodeInfo{}
	if s.peers != nil {
		nodes = append(nodes, s.peers.Nodes()...)
	}
	c.JSON(http.StatusOK, nodes)
}

// maxAlertBodyBytes 节点告警请求体上限
const maxAlertBodyBytes = 64 << 10

func (s *Server) receiveAlert(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAlertBodyBytes)

	var req models.AlertNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Alert body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.notifier.Receive(req)

	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Alert received"})
}

// ---- 告警规则 ----

func (s *Server) listRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": s.engine.List()})
}

func (s *Server) getRule(c *gin.Context) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := s.engine.Get(req.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) addRule(c *gin.Context) {
	var req AddRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.configMu.RLock()
	cooldown := int64(s.config.Alert.DefaultCooldownSeconds)
	s.configMu.RUnlock()

	rule, err := ConvertAddRequestToRule(req, cooldown)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.engine.Add(rule); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, alert.ErrDuplicateRule) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	s.log.Info("Alert rule added", zap.String("rule_id", rule.ID), zap.String("condition", string(rule.Condition.Type)))
	c.JSON(http.StatusCreated, gin.H{
		"id":      rule.ID,
		"message": "Alert rule created successfully",
	})
}

func (s *Server) removeRule(c *gin.Context) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	removed := s.engine.Remove(req.ID)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) toggleRule(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated := s.engine.Toggle(req.ID, *req.Enabled)
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// ---- 告警历史 ----

func (s *Server) listAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": s.alerts.List()})
}

func (s *Server) listUnacknowledged(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": s.alerts.Unacknowledged()})
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.alerts.Acknowledge(req.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": storage.ErrRecordNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Alert acknowledged"})
}

func (s *Server) clearAlerts(c *gin.Context) {
	s.alerts.Clear()
	c.JSON(http.StatusOK, gin.H{"message": "Alert history cleared"})
}

func (s *Server) exportAlerts(c *gin.Context) {
	data, err := s.alerts.Export()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export alerts"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) searchAlerts(c *gin.Context) {
	if s.es == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Elasticsearch is not enabled"})
		return
	}

	var req AlertSearchRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.es.SearchAlerts(c.Request.Context(), ConvertSearchRequest(req))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total": result.Total,
		"hits":  result.Hits,
	})
}

// ---- 指标 ----

func (s *Server) exportMetrics(c *gin.Context) {
	data, err := s.metrics.Export()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export metrics"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) metricNames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"names": s.metrics.Names()})
}

func (s *Server) getMetric(c *gin.Context) {
	var req MetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var points []storage.MetricDataPoint
	if req.MaxPoints > 0 {
		points = s.metrics.GetLast(req.Name, req.MaxPoints)
	} else {
		points = s.metrics.Get(req.Name)
	}

	c.JSON(http.StatusOK, gin.H{
		"name":   req.Name,
		"points": points,
	})
}

// ---- 通知日志 ----

func (s *Server) searchNotifications(c *gin.Context) {
	var req NotificationSearchRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.configMu.RLock()
	dir := s.config.Logger.JournalDir
	s.configMu.RUnlock()

	result, err := logger.QueryNotifications(dir, ConvertNotificationRequest(req))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Run 启动 HTTP 服务，Shutdown 后返回 nil
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srvMu.Lock()
	s.httpServer = srv
	s.srvMu.Unlock()

	s.log.Info("HTTP server listening", zap.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()

	s.srvMu.Lock()
	srv := s.httpServer
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
