// =============================================================================
// 📦 AfcFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值，默认组合可在单进程中直接运行
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		AFC:       DefaultAFCConfig(),
		Storage:   DefaultStorageConfig(),
		Redis:     DefaultRedisConfig(),
		Broker:    DefaultBrokerConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultAFCConfig 返回默认协调器配置
func DefaultAFCConfig() AFCConfig {
	return AFCConfig{
		AllowedVersions: []string{"1.1", "1.3"},
		RequestType:     "AP-AFC",
		MaxConcurrency:  16,
		PollInterval:    100 * time.Millisecond,
		MaxPollInterval: 2 * time.Second,
		WaitTimeout:     0,
	}
}

// DefaultStorageConfig 返回默认对象存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Backend:    "redis",
		KeyPrefix:  "afcflow:obj:",
		NetTimeout: 60 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultBrokerConfig 返回默认任务代理配置
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		Type:      "redis",
		KeyPrefix: "afcflow:",
		StatusTTL: 24 * time.Hour,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "afcflow",
		Password:        "",
		Name:            "afcflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "afcflow",
		SampleRate:   0.1,
	}
}
