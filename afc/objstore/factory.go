package objstore

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BackendType selects the storage backend.
type BackendType string

const (
	BackendMemory BackendType = "memory"
	BackendFS     BackendType = "fs"
	BackendRedis  BackendType = "redis"
)

// Config is the backend selection made once at startup.
type Config struct {
	Backend    BackendType   `json:"backend" yaml:"backend"`
	RootDir    string        `json:"root_dir" yaml:"root_dir"`
	KeyPrefix  string        `json:"key_prefix" yaml:"key_prefix"`
	NetTimeout time.Duration `json:"net_timeout" yaml:"net_timeout"`
}

// New builds the configured backend. client is only used by the redis backend.
func New(cfg Config, client redis.UniversalClient, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFS:
		return NewFSStore(cfg.RootDir, logger)
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("objstore: redis backend selected but no redis client configured")
		}
		return NewRedisStore(client, RedisOptions{KeyPrefix: cfg.KeyPrefix, NetTimeout: cfg.NetTimeout}, logger)
	default:
		return nil, fmt.Errorf("unsupported object store backend: %s", cfg.Backend)
	}
}
