package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"skywidget/api/server"
	"skywidget/internal/alert"
	"skywidget/internal/config"
	"skywidget/internal/discovery"
	"skywidget/internal/elasticsearch"
	"skywidget/internal/grpc"
	"skywidget/internal/logger"
	"skywidget/internal/models"
	"skywidget/internal/monitor"
	"skywidget/internal/sensors"
	"skywidget/internal/storage"
)

var (
	configFile = flag.String("config", "etc/config.yaml", "Path to configuration file")
	version    = "0.3.0"
)

func main() {
	flag.Parse()

	// 加载配置
	var cfg *config.Config

	// 优先从配置文件加载，如果失败则从环境变量加载
	if _, err := os.Stat(*configFile); err == nil {
		cfg, err = config.LoadFromFile(*configFile)
		if err != nil {
			fmt.Printf("Failed to load config from file: %v\n", err)
			fmt.Println("Falling back to environment variables...")
			cfg = config.Load()
		}
	} else {
		fmt.Println("Config file not found, loading from environment variables...")
		cfg = config.Load()
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志系统
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting SkyWidget node",
		zap.String("version", version),
		zap.String("config_file", *configFile),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 本地节点信息
	local := models.NodeInfo{
		ID:            cfg.Node.ID,
		Name:          cfg.Node.Name,
		IPAddress:     sensors.LocalIPv4(ctx),
		APIPort:       cfg.Server.HTTPPort,
		LastHeartbeat: time.Now().Unix(),
		Status:        models.NodeStatusOnline,
		OSInfo:        sensors.OSInfo(ctx),
		Version:       version,
	}
	logger.Info("Local node",
		zap.String("id", local.ID),
		zap.String("name", local.Name),
		zap.String("ip", local.IPAddress),
		zap.String("os_info", local.OSInfo),
	)

	// 存储
	metricsStore := storage.NewMetricsStore(cfg.Metrics.MaxDataPoints)
	alertsStore := storage.NewAlertsStore(cfg.Alert.HistoryCapacity)

	// 规则引擎
	var rules []alert.AlertRule
	if cfg.Alert.LoadDefaultRules {
		rules = alert.DefaultRules()
		for i := range rules {
			rules[i].CooldownSeconds = int64(cfg.Alert.DefaultCooldownSeconds)
		}
	}
	engine := alert.NewEngine(rules)
	logger.Info("Alert rules loaded", zap.Int("count", len(rules)))

	// 通知
	journal, err := logger.NewJournal(cfg.Logger.JournalDir)
	if err != nil {
		logger.Warn("Notification journal disabled", zap.Error(err))
	}
	notifier := alert.NewNotifier(local, alert.NewLogPresenter(journal, nil),
		alert.WithDeliveryTimeout(cfg.Alert.DeliveryTimeout()),
		alert.WithDeliveryConcurrency(cfg.Alert.DeliveryConcurrency),
	)

	// 节点发现
	var disc *discovery.Service
	if cfg.Discovery.Enabled {
		disc = discovery.NewService(local, discovery.Config{
			ServiceType:  cfg.Discovery.ServiceType,
			Domain:       cfg.Discovery.Domain,
			PollTimeout:  cfg.Discovery.PollTimeout(),
			BrowseWindow: cfg.Discovery.BrowseWindow(),
		})
		if err := disc.Start(ctx); err != nil {
			logger.Fatal("Failed to start discovery", zap.Error(err))
		}
	} else {
		logger.Info("Discovery is disabled")
	}

	// 初始化 Elasticsearch（如果启用）
	esClient, err := elasticsearch.NewClient(cfg.Elasticsearch)
	if err != nil {
		logger.Fatal("Failed to initialize Elasticsearch", zap.Error(err))
	}
	if esClient != nil {
		if err := esClient.CreateIndexTemplate(ctx); err != nil {
			logger.Warn("Failed to create index template", zap.Error(err))
		}
	} else {
		logger.Info("Elasticsearch is disabled")
	}

	provider, err := sensors.NewProvider()
	if err != nil {
		logger.Fatal("Failed to create sensor provider", zap.Error(err))
	}

	// 周期任务
	deps := monitor.Deps{
		Source:   provider,
		Engine:   engine,
		Notifier: notifier,
		Metrics:  metricsStore,
		Alerts:   alertsStore,
	}
	var peers server.PeerLister
	if disc != nil {
		deps.Peers = disc
		peers = disc
	}
	if esClient != nil {
		deps.Events = esClient
	}
	monitorService := monitor.NewService(deps, monitor.Intervals{
		Evaluate:        cfg.Monitor.Evaluate(),
		Sample:          cfg.Monitor.Sample(),
		Sweep:           cfg.Monitor.Sweep(),
		MetricsMaxAge:   cfg.Metrics.MaxAge(),
		PeerRefresh:     cfg.Discovery.CleanupInterval(),
		LivenessTimeout: cfg.Discovery.LivenessTimeout(),
	})
	monitorService.Start(ctx)

	// 创建等待组
	var wg sync.WaitGroup

	// 设置信号处理
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 启动HTTP服务器
	httpServer := server.NewServer(server.Deps{
		Config:     cfg,
		ConfigPath: *configFile,
		Version:    version,
		Engine:     engine,
		Notifier:   notifier,
		Metrics:    metricsStore,
		Alerts:     alertsStore,
		Peers:      peers,
		Hardware:   provider,
		ES:         esClient,
	})
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Run(httpAddr); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 启动gRPC服务器
	grpcServer := grpc.NewGRPCServer(grpc.NewServer(notifier, peers, version))
	grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := grpc.Serve(grpcServer, grpcAddr); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("SkyWidget node is running",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
	)

	// 等待信号
	sig := <-sigChan
	logger.Info("Received signal, shutting down...", zap.String("signal", sig.String()))

	// 优雅关闭
	monitorService.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()

	if disc != nil {
		disc.Close()
	}
	cancel()
	wg.Wait()

	logger.Info("SkyWidget node stopped")
}
