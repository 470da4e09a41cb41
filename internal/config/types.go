package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Node          NodeConfig          `yaml:"node" json:"node"`
	Logger        LoggerConfig        `yaml:"logger" json:"logger"`
	Monitor       MonitorConfig       `yaml:"monitor" json:"monitor"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Alert         AlertConfig         `yaml:"alert" json:"alert"`
	Discovery     DiscoveryConfig     `yaml:"discovery" json:"discovery"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch" json:"elasticsearch"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
}

type ServerConfig struct {
	HTTPPort int    `yaml:"http_port" json:"http_port"`
	GRPCPort int    `yaml:"grpc_port" json:"grpc_port"`
	Host     string `yaml:"host" json:"host"`
}

type NodeConfig struct {
	ID   string `yaml:"id" json:"id"`     // 为空时生成 uuid
	Name string `yaml:"name" json:"name"` // 为空时使用主机名
}

type LoggerConfig struct {
	Level      string `yaml:"level" json:"level"`             // debug, info, warn, error
	Output     string `yaml:"output" json:"output"`           // stdout, stderr, or file path
	JournalDir string `yaml:"journal_dir" json:"journal_dir"` // 通知日志目录
}

type MonitorConfig struct {
	EvaluateInterval int `yaml:"evaluate_interval" json:"evaluate_interval"` // seconds
	SampleInterval   int `yaml:"sample_interval" json:"sample_interval"`     // seconds
	SweepInterval    int `yaml:"sweep_interval" json:"sweep_interval"`       // seconds
}

type MetricsConfig struct {
	MaxDataPoints int `yaml:"max_data_points" json:"max_data_points"` // 每个指标保留的点数
	MaxAgeSeconds int `yaml:"max_age_seconds" json:"max_age_seconds"`
}

type AlertConfig struct {
	HistoryCapacity        int  `yaml:"history_capacity" json:"history_capacity"`
	DeliveryTimeoutSeconds int  `yaml:"delivery_timeout_seconds" json:"delivery_timeout_seconds"`
	DeliveryConcurrency    int  `yaml:"delivery_concurrency" json:"delivery_concurrency"`
	DefaultCooldownSeconds int  `yaml:"default_cooldown_seconds" json:"default_cooldown_seconds"`
	LoadDefaultRules       bool `yaml:"load_default_rules" json:"load_default_rules"`
}

type DiscoveryConfig struct {
	Enabled                bool   `yaml:"enabled" json:"enabled"`
	ServiceType            string `yaml:"service_type" json:"service_type"`
	Domain                 string `yaml:"domain" json:"domain"`
	PollTimeoutMs          int    `yaml:"poll_timeout_ms" json:"poll_timeout_ms"`
	BrowseWindowSeconds    int    `yaml:"browse_window_seconds" json:"browse_window_seconds"`
	CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds" json:"cleanup_interval_seconds"`
	LivenessTimeoutSeconds int    `yaml:"liveness_timeout_seconds" json:"liveness_timeout_seconds"`
}

type ElasticsearchConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`           // 是否启用 Elasticsearch
	Addresses   []string `yaml:"addresses" json:"addresses"`       // ES 节点地址，如 ["http://localhost:9200"]
	Username    string   `yaml:"username" json:"username"`         // ES 用户名
	Password    string   `yaml:"password" json:"password"`         // ES 密码
	IndexPrefix string   `yaml:"index_prefix" json:"index_prefix"` // 索引前缀
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// 时长换算
func (m MonitorConfig) Evaluate() time.Duration {
	return time.Duration(m.EvaluateInterval) * time.Second
}
func (m MonitorConfig) Sample() time.Duration {
	return time.Duration(m.SampleInterval) * time.Second
}
func (m MonitorConfig) Sweep() time.Duration {
	return time.Duration(m.SweepInterval) * time.Second
}

func (m MetricsConfig) MaxAge() time.Duration {
	return time.Duration(m.MaxAgeSeconds) * time.Second
}

func (a AlertConfig) DeliveryTimeout() time.Duration {
	return time.Duration(a.DeliveryTimeoutSeconds) * time.Second
}

func (d DiscoveryConfig) PollTimeout() time.Duration {
	return time.Duration(d.PollTimeoutMs) * time.Millisecond
}
func (d DiscoveryConfig) BrowseWindow() time.Duration {
	return time.Duration(d.BrowseWindowSeconds) * time.Second
}
func (d DiscoveryConfig) CleanupInterval() time.Duration {
	return time.Duration(d.CleanupIntervalSeconds) * time.Second
}
func (d DiscoveryConfig) LivenessTimeout() time.Duration {
	return time.Duration(d.LivenessTimeoutSeconds) * time.Second
}

// LoadFromFile 从文件加载配置
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 未出现的布尔项保持默认开启
	config := Config{
		Alert:     AlertConfig{LoadDefaultRules: true},
		Discovery: DiscoveryConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&config)

	return &config, nil
}

// SaveToFile 保存配置到文件
func SaveToFile(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load 从环境变量加载配置
func Load() *Config {
	config := &Config{
		Server: ServerConfig{
			HTTPPort: getEnvInt("HTTP_PORT", 8765),
			GRPCPort: getEnvInt("GRPC_PORT", 8766),
			Host:     getEnv("HOST", "0.0.0.0"),
		},
		Node: NodeConfig{
			ID:   getEnv("NODE_ID", ""),
			Name: getEnv("NODE_NAME", ""),
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			JournalDir: getEnv("LOG_JOURNAL_DIR", "logs"),
		},
		Monitor: MonitorConfig{
			EvaluateInterval: getEnvInt("MONITOR_EVALUATE_INTERVAL", 10),
			SampleInterval:   getEnvInt("MONITOR_SAMPLE_INTERVAL", 5),
			SweepInterval:    getEnvInt("MONITOR_SWEEP_INTERVAL", 60),
		},
		Metrics: MetricsConfig{
			MaxDataPoints: getEnvInt("METRICS_MAX_DATA_POINTS", 720),
			MaxAgeSeconds: getEnvInt("METRICS_MAX_AGE", 3600),
		},
		Alert: AlertConfig{
			HistoryCapacity:        getEnvInt("ALERT_HISTORY_CAPACITY", 1000),
			DeliveryTimeoutSeconds: getEnvInt("ALERT_DELIVERY_TIMEOUT", 5),
			DeliveryConcurrency:    getEnvInt("ALERT_DELIVERY_CONCURRENCY", 4),
			DefaultCooldownSeconds: getEnvInt("ALERT_COOLDOWN", 300),
			LoadDefaultRules:       getEnvBool("ALERT_DEFAULT_RULES", true),
		},
		Discovery: DiscoveryConfig{
			Enabled:                getEnvBool("DISCOVERY_ENABLED", true),
			ServiceType:            getEnv("DISCOVERY_SERVICE_TYPE", "_skywidget._tcp"),
			Domain:                 getEnv("DISCOVERY_DOMAIN", "local."),
			PollTimeoutMs:          getEnvInt("DISCOVERY_POLL_TIMEOUT_MS", 1000),
			BrowseWindowSeconds:    getEnvInt("DISCOVERY_BROWSE_WINDOW", 10),
			CleanupIntervalSeconds: getEnvInt("DISCOVERY_CLEANUP_INTERVAL", 5),
			LivenessTimeoutSeconds: getEnvInt("DISCOVERY_LIVENESS_TIMEOUT", 30),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:     getEnvBool("ES_ENABLED", false),
			Addresses:   getEnvSlice("ES_ADDRESSES", []string{"http://localhost:9200"}),
			Username:    getEnv("ES_USERNAME", ""),
			Password:    getEnv("ES_PASSWORD", ""),
			IndexPrefix: getEnv("ES_INDEX_PREFIX", "skywidget-alerts"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 100),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 200),
		},
	}
	setDefaults(config)
	return config
}

// setDefaults 设置默认值
func setDefaults(config *Config) {
	if config.Server.HTTPPort == 0 {
		config.Server.HTTPPort = 8765
	}
	if config.Server.GRPCPort == 0 {
		config.Server.GRPCPort = 8766
	}
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Node.ID == "" {
		config.Node.ID = uuid.NewString()
	}
	if config.Node.Name == "" {
		if hostname, err := os.Hostname(); err == nil && hostname != "" {
			config.Node.Name = hostname
		} else {
			config.Node.Name = "skywidget"
		}
	}
	if config.Logger.Level == "" {
		config.Logger.Level = "info"
	}
	if config.Logger.Output == "" {
		config.Logger.Output = "stdout"
	}
	if config.Logger.JournalDir == "" {
		config.Logger.JournalDir = "logs"
	}
	if config.Monitor.EvaluateInterval == 0 {
		config.Monitor.EvaluateInterval = 10
	}
	if config.Monitor.SampleInterval == 0 {
		config.Monitor.SampleInterval = 5
	}
	if config.Monitor.SweepInterval == 0 {
		config.Monitor.SweepInterval = 60
	}
	if config.Metrics.MaxDataPoints == 0 {
		config.Metrics.MaxDataPoints = 720
	}
	if config.Metrics.MaxAgeSeconds == 0 {
		config.Metrics.MaxAgeSeconds = 3600
	}
	if config.Alert.HistoryCapacity == 0 {
		config.Alert.HistoryCapacity = 1000
	}
	if config.Alert.DeliveryTimeoutSeconds == 0 {
		config.Alert.DeliveryTimeoutSeconds = 5
	}
	if config.Alert.DeliveryConcurrency == 0 {
		config.Alert.DeliveryConcurrency = 4
	}
	if config.Alert.DefaultCooldownSeconds == 0 {
		config.Alert.DefaultCooldownSeconds = 300
	}
	if config.Discovery.ServiceType == "" {
		config.Discovery.ServiceType = "_skywidget._tcp"
	}
	if config.Discovery.Domain == "" {
		config.Discovery.Domain = "local."
	}
	if config.Discovery.PollTimeoutMs == 0 {
		config.Discovery.PollTimeoutMs = 1000
	}
	if config.Discovery.BrowseWindowSeconds == 0 {
		config.Discovery.BrowseWindowSeconds = 10
	}
	if config.Discovery.CleanupIntervalSeconds == 0 {
		config.Discovery.CleanupIntervalSeconds = 5
	}
	if config.Discovery.LivenessTimeoutSeconds == 0 {
		config.Discovery.LivenessTimeoutSeconds = 30
	}
	if config.Elasticsearch.IndexPrefix == "" {
		config.Elasticsearch.IndexPrefix = "skywidget-alerts"
	}
	if config.RateLimit.RequestsPerSecond == 0 {
		config.RateLimit.RequestsPerSecond = 100
	}
	if config.RateLimit.Burst == 0 {
		config.RateLimit.Burst = 200
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var intVal int
		if _, err := fmt.Sscanf(val, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		var f float64
		if _, err := fmt.Sscanf(val, "%g", &f); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		return false
	}
	return defaultVal
}

func getEnvSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		if result := splitAndTrim(val, ","); len(result) > 0 {
			return result
		}
	}
	return defaultVal
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort < 1 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}
	if c.Server.GRPCPort == c.Server.HTTPPort {
		return fmt.Errorf("HTTP and gRPC ports must differ: %d", c.Server.HTTPPort)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Node.ID == "" || c.Node.Name == "" {
		return fmt.Errorf("node id and name cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}

	if c.Monitor.EvaluateInterval < 1 || c.Monitor.SampleInterval < 1 || c.Monitor.SweepInterval < 1 {
		return fmt.Errorf("monitor intervals must be at least 1 second")
	}

	if c.Metrics.MaxDataPoints < 1 {
		return fmt.Errorf("metrics max data points must be at least 1")
	}
	if c.Metrics.MaxAgeSeconds < 1 {
		return fmt.Errorf("metrics max age must be at least 1 second")
	}

	if c.Alert.HistoryCapacity < 1 {
		return fmt.Errorf("alert history capacity must be at least 1")
	}
	if c.Alert.DeliveryTimeoutSeconds < 1 {
		return fmt.Errorf("alert delivery timeout must be at least 1 second")
	}
	if c.Alert.DeliveryConcurrency < 1 {
		return fmt.Errorf("alert delivery concurrency must be at least 1")
	}
	if c.Alert.DefaultCooldownSeconds < 0 {
		return fmt.Errorf("alert cooldown seconds cannot be negative")
	}

	if c.Discovery.Enabled {
		if !strings.HasPrefix(c.Discovery.ServiceType, "_") {
			return fmt.Errorf("invalid discovery service type: %s", c.Discovery.ServiceType)
		}
		if c.Discovery.PollTimeoutMs < 1 || c.Discovery.BrowseWindowSeconds < 1 || c.Discovery.CleanupIntervalSeconds < 1 {
			return fmt.Errorf("discovery intervals must be positive")
		}
		if c.Discovery.LivenessTimeoutSeconds <= c.Discovery.CleanupIntervalSeconds {
			return fmt.Errorf("discovery liveness timeout must exceed cleanup interval")
		}
		// 每轮浏览只刷新一次心跳
		if c.Discovery.LivenessTimeoutSeconds <= c.Discovery.BrowseWindowSeconds {
			return fmt.Errorf("discovery liveness timeout must exceed browse window")
		}
	}

	if c.Elasticsearch.Enabled {
		if len(c.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("elasticsearch addresses cannot be empty when enabled")
		}
	}

	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit must be positive")
	}

	return nil
}
