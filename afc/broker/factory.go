package broker

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Type selects the broker backend.
type Type string

const (
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
)

// New builds the configured broker.
func New(typ Type, config RedisConfig, client redis.UniversalClient, logger *zap.Logger) (Broker, error) {
	switch typ {
	case TypeMemory:
		return NewMemory(), nil
	case TypeRedis:
		return NewRedis(client, config, logger)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", typ)
	}
}
