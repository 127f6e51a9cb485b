// Package redisx owns the shared Redis connection.
// This package is internal and should not be imported by external projects.
package redisx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/internal/tlsutil"
)

// =============================================================================
// 🔌 Redis 连接管理器
// =============================================================================

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("redis manager is closed")

// Config Redis 连接配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 是否启用 TLS
	TLSEnabled bool `yaml:"tls_enabled" json:"tls_enabled"`

	// 健康检查间隔，0 表示不启动后台检查
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认连接配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// PoolObserver receives connection pool statistics after every health check.
type PoolObserver interface {
	RecordRedisPool(total, idle, stale uint32)
}

// Option 配置 Manager
type Option func(*Manager)

// WithPoolObserver 设置连接池统计接收者
func WithPoolObserver(obs PoolObserver) Option {
	return func(m *Manager) { m.observer = obs }
}

// Manager 持有进程内唯一的 Redis 客户端，对象存储与任务代理共享它
type Manager struct {
	client   *redis.Client
	config   Config
	observer PoolObserver
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewManager 创建连接管理器并验证连接
func NewManager(config Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(clientOptions(config))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "redis")),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if config.HealthCheckInterval > 0 {
		m.wg.Add(1)
		go m.healthCheckLoop()
	}

	m.logger.Info("redis manager initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
		zap.Bool("tls", config.TLSEnabled),
	)

	return m, nil
}

func clientOptions(config Config) *redis.Options {
	opts := &redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	}
	if config.TLSEnabled {
		opts.TLSConfig = tlsutil.ClientConfigFor(config.Addr)
	}
	return opts
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Client 返回共享客户端
func (m *Manager) Client() redis.UniversalClient {
	return m.client
}

// Name implements the health check interface.
func (m *Manager) Name() string { return "redis" }

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	return m.client.Ping(ctx).Err()
}

// Check implements the health check interface.
func (m *Manager) Check(ctx context.Context) error {
	return m.Ping(ctx)
}

// Close 停止健康检查并关闭客户端，可重复调用
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("closing redis manager")
	return m.client.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.client.Ping(ctx).Err(); err != nil {
			m.logger.Error("redis health check failed", zap.Error(err))
		} else {
			m.logger.Debug("redis health check passed")
		}
		cancel()

		if m.observer != nil {
			ps := m.client.PoolStats()
			m.observer.RecordRedisPool(ps.TotalConns, ps.IdleConns, ps.StaleConns)
		}
	}
}
