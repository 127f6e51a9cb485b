package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/afc"
	"github.com/BaSui01/afcflow/afc/broker"
	"github.com/BaSui01/afcflow/afc/objstore"
	"github.com/BaSui01/afcflow/afc/registry"
	"github.com/BaSui01/afcflow/api/handlers"
	"github.com/BaSui01/afcflow/config"
	"github.com/BaSui01/afcflow/internal/database"
	"github.com/BaSui01/afcflow/internal/metrics"
	"github.com/BaSui01/afcflow/internal/redisx"
	"github.com/BaSui01/afcflow/internal/server"
	"github.com/BaSui01/afcflow/internal/telemetry"
)

// 路由常量，normalizePath 依赖它们折叠指标标签
const (
	inquiryResource = "availableSpectrumInquiry"
	historyPrefix   = "/dbg"
)

// 免认证路径：探针与版本信息
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 afcflow 的主服务器，持有全部基础设施与 HTTP 管理器
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers

	// 基础设施
	collector *metrics.Collector
	redis     *redisx.Manager
	db        *database.PoolManager
	store     objstore.Store
	broker    broker.Broker
	registry  *registry.Registry
	service   *afc.Service

	// HTTP
	healthHandler  *handlers.HealthHandler
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务；失败时调用方负责 Shutdown 释放已建立的连接
func (s *Server) Start() error {
	// 1. 连接与协调器
	if err := s.initInfra(); err != nil {
		return fmt.Errorf("failed to init infrastructure: %w", err)
	}

	// 2. Handlers
	s.initHandlers()

	// 3. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("storage", s.cfg.Storage.Backend),
		zap.String("broker", s.cfg.Broker.Type),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initInfra 按依赖顺序建立 Redis、数据库、对象存储、任务代理与协调器
func (s *Server) initInfra() error {
	if s.collector == nil {
		s.collector = metrics.NewCollector("afcflow", s.logger)
	}

	// Redis 仅在存储或代理使用时连接
	if s.cfg.Storage.Backend == string(objstore.BackendRedis) || s.cfg.Broker.Type == string(broker.TypeRedis) {
		rm, err := redisx.NewManager(redisx.Config{
			Addr:                s.cfg.Redis.Addr,
			Password:            s.cfg.Redis.Password,
			DB:                  s.cfg.Redis.DB,
			MaxRetries:          3,
			PoolSize:            s.cfg.Redis.PoolSize,
			MinIdleConns:        s.cfg.Redis.MinIdleConns,
			TLSEnabled:          s.cfg.Redis.TLSEnabled,
			HealthCheckInterval: s.cfg.Redis.HealthCheckInterval,
		}, s.logger, redisx.WithPoolObserver(s.collector))
		if err != nil {
			return err
		}
		s.redis = rm
	}

	gormDB, err := openDatabase(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}
	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
	poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
	if s.cfg.Database.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime
	}
	pm, err := database.NewPoolManager(gormDB, poolCfg, s.logger, database.WithObserver(s.collector))
	if err != nil {
		if sqlDB, derr := gormDB.DB(); derr == nil {
			_ = sqlDB.Close()
		}
		return err
	}
	s.db = pm

	store, err := objstore.New(objstore.Config{
		Backend:    objstore.BackendType(s.cfg.Storage.Backend),
		RootDir:    s.cfg.Storage.RootDir,
		KeyPrefix:  s.cfg.Storage.KeyPrefix,
		NetTimeout: s.cfg.Storage.NetTimeout,
	}, s.redisClient(), s.logger)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}
	s.store = objstore.Instrument(store, s.collector)

	b, err := broker.New(broker.Type(s.cfg.Broker.Type), broker.RedisConfig{
		KeyPrefix: s.cfg.Broker.KeyPrefix,
		StatusTTL: s.cfg.Broker.StatusTTL,
	}, s.redisClient(), s.logger)
	if err != nil {
		return fmt.Errorf("failed to create broker: %w", err)
	}
	s.broker = b

	s.registry = registry.New(s.db.DB(), s.cfg.AFC.AllowedRulesets, s.logger)

	svc, err := afc.NewService(afc.Config{
		AllowedVersions: s.cfg.AFC.AllowedVersions,
		RequestType:     s.cfg.AFC.RequestType,
		MaxConcurrency:  s.cfg.AFC.MaxConcurrency,
		HTTPIO:          s.cfg.Storage.HTTPIO,
		Tracker: afc.TrackerConfig{
			PollInterval:    s.cfg.AFC.PollInterval,
			MaxPollInterval: s.cfg.AFC.MaxPollInterval,
			WaitTimeout:     s.cfg.AFC.WaitTimeout,
		},
	}, afc.Deps{
		Authorizer: s.registry,
		Configs:    s.registry,
		Store:      s.store,
		Dispatcher: s.broker,
		Status:     s.broker,
		Metrics:    s.collector,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create inquiry service: %w", err)
	}
	s.service = svc

	s.logger.Info("Infrastructure initialized",
		zap.String("storage", s.store.Name()),
		zap.String("database", s.cfg.Database.Driver),
		zap.Bool("redis", s.redis != nil),
	)
	return nil
}

func (s *Server) redisClient() redis.UniversalClient {
	if s.redis == nil {
		return nil
	}
	return s.redis.Client()
}

// initHandlers 注册就绪检查
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("object_store", s.store.Ping))
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("broker", s.broker.Ping))
	s.healthHandler.RegisterCheck(s.db)
	if s.redis != nil {
		s.healthHandler.RegisterCheck(s.redis)
	}
	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 构建完整的路由与中间件链；rootCtx 结束时限流器回收协程退出。
//
// 顶层 mux 只注册字面量路径与前缀，其余请求交给查询 mux。
// {version} 通配段不能与 /dbg/、/admin/ 注册在同一个 mux 上，否则模式冲突。
func (s *Server) routes(rootCtx context.Context) http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 频谱查询：POST 提交，GET 轮询；watch 通过 WebSocket 推送进度
	inquiryMux := http.NewServeMux()
	inquiry := handlers.NewInquiryHandler(s.service, s.cfg.AFC.AllowedVersions, s.logger)
	inquiryMux.HandleFunc("/{version}/"+inquiryResource, inquiry.HandleInquiry)
	watch := handlers.NewWatchHandler(s.service, s.cfg.AFC.AllowedVersions, s.cfg.AFC.MaxPollInterval, s.cfg.Server.CORSAllowedOrigins, s.logger)
	inquiryMux.HandleFunc("GET /{version}/"+inquiryResource+"/watch", watch.HandleWatch)
	mux.Handle("/", inquiryMux)

	// 历史浏览
	historyMux := http.NewServeMux()
	history := handlers.NewHistoryHandler(s.store, historyPrefix, s.logger)
	historyMux.HandleFunc("GET "+historyPrefix+"/{path...}", history.HandleBrowse)
	mux.Handle(historyPrefix+"/", historyMux)

	// 注册表管理
	admin := http.NewServeMux()
	reg := handlers.NewRegistryHandler(s.registry, s.logger)
	admin.HandleFunc("GET /admin/access-points", reg.HandleListAccessPoints)
	admin.HandleFunc("PUT /admin/access-points/{serial}", reg.HandlePutAccessPoint)
	admin.HandleFunc("DELETE /admin/access-points/{serial}", reg.HandleDeleteAccessPoint)
	admin.HandleFunc("GET /admin/configs", reg.HandleListRegions)
	admin.HandleFunc("GET /admin/configs/{region}", reg.HandleGetConfig)
	admin.HandleFunc("PUT /admin/configs/{region}", reg.HandlePutConfig)

	var adminHandler http.Handler = admin
	if s.cfg.JWT.Enabled() && len(s.cfg.Server.APIKeys) > 0 {
		// JWT 覆盖全局时，管理接口额外要求 API Key
		adminHandler = APIKeyAuth(s.cfg.Server.APIKeys, nil, s.cfg.Server.AllowQueryAPIKey, s.logger)(admin)
	}
	mux.Handle("/admin/", adminHandler)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}

	switch {
	case s.cfg.JWT.Enabled():
		middlewares = append(middlewares, JWTAuth(s.cfg.JWT, publicPaths, s.logger))
		s.logger.Info("JWT authentication enabled")
	case len(s.cfg.Server.APIKeys) > 0:
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, publicPaths, s.cfg.Server.AllowQueryAPIKey, s.logger))
		s.logger.Info("API key authentication enabled")
	default:
		s.logger.Warn("Authentication disabled: no JWT key or API keys configured")
	}

	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimiter(rootCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	}

	return Chain(mux, middlewares...)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(s.routes(rateLimiterCtx), serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// startMetricsServer 启动 Prometheus 指标服务器；端口为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.DefaultConfig()
	serverConfig.Addr = fmt.Sprintf(":%d", s.cfg.Server.MetricsPort)
	serverConfig.ShutdownTimeout = s.cfg.Server.ShutdownTimeout

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号或 ctx 结束，然后按顺序关闭
func (s *Server) WaitForShutdown(ctx context.Context) {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(ctx)
	}
	s.Shutdown()
}

// Shutdown 关闭顺序：HTTP、Metrics、任务代理、对象存储、Redis、数据库、遥测。
// 对未初始化的组件安全，可重复调用。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			if errors.Is(err, server.ErrForcedClose) {
				s.logger.Warn("Waiting inquiries were cancelled", zap.Error(err))
			} else {
				s.logger.Error("HTTP server shutdown error", zap.Error(err))
			}
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.logger.Error("Broker close error", zap.Error(err))
		}
		s.broker = nil
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Object store close error", zap.Error(err))
		}
		s.store = nil
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Database close error", zap.Error(err))
		}
	}

	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
