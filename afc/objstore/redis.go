package objstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultNetTimeout bounds every network round trip of the redis backend.
const DefaultNetTimeout = 60 * time.Second

const scanBatch = 256

// RedisStore keeps every object as one string value under
// "<prefix>obj:<ns>/<key>". Directory structure is implied by "/" in keys.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	netTimeout time.Duration
	logger     *zap.Logger
}

// RedisOptions 配置 Redis 对象存储
type RedisOptions struct {
	KeyPrefix  string
	NetTimeout time.Duration
}

// NewRedisStore 创建 Redis 对象存储，客户端由调用方持有并负责关闭
func NewRedisStore(client redis.UniversalClient, opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis store: client is required")
	}
	if opts.NetTimeout <= 0 {
		opts.NetTimeout = DefaultNetTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:     client,
		prefix:     opts.KeyPrefix + "obj:",
		netTimeout: opts.NetTimeout,
		logger:     logger.With(zap.String("component", "objstore_redis")),
	}, nil
}

// Name implements Store.
func (s *RedisStore) Name() string { return "redis" }

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.netTimeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close is a no-op: the shared client belongs to the connection manager.
func (s *RedisStore) Close() error { return nil }

// Open implements Store.
func (s *RedisStore) Open(_ context.Context, ns Namespace, key string) (Handle, error) {
	k, err := cleanKey(ns, key)
	if err != nil {
		return nil, err
	}
	return &redisHandle{store: s, key: k, path: s.prefix + joinPath(ns, k)}, nil
}

type redisHandle struct {
	handleState
	store *RedisStore
	key   string
	path  string
}

func (h *redisHandle) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := h.check(); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, h.store.netTimeout)
	return ctx, cancel, nil
}

func (h *redisHandle) IsDir(ctx context.Context) (bool, error) {
	ctx, cancel, err := h.begin(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	var found bool
	err = h.scan(ctx, func(keys []string) bool {
		found = len(keys) > 0
		return !found
	})
	return found, err
}

func (h *redisHandle) List(ctx context.Context) ([]string, []string, error) {
	ctx, cancel, err := h.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer cancel()

	prefix := h.path + "/"
	var rels []string
	err = h.scan(ctx, func(keys []string) bool {
		for _, k := range keys {
			rels = append(rels, strings.TrimPrefix(k, prefix))
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	if len(rels) == 0 {
		return nil, nil, ErrNotFound
	}
	dirs, files := splitChildren(rels)
	return dirs, files, nil
}

func (h *redisHandle) Read(ctx context.Context) ([]byte, error) {
	if err := requireObjectKey(h.key); err != nil {
		return nil, err
	}
	ctx, cancel, err := h.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	data, err := h.store.client.Get(ctx, h.path).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		h.store.logger.Error("object read failed", zap.String("key", h.path), zap.Error(err))
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (h *redisHandle) Write(ctx context.Context, data []byte) error {
	if err := requireObjectKey(h.key); err != nil {
		return err
	}
	ctx, cancel, err := h.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := h.store.client.Set(ctx, h.path, data, 0).Err(); err != nil {
		h.store.logger.Error("object write failed", zap.String("key", h.path), zap.Error(err))
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (h *redisHandle) Head(ctx context.Context) (bool, error) {
	if err := requireObjectKey(h.key); err != nil {
		return false, err
	}
	ctx, cancel, err := h.begin(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	n, err := h.store.client.Exists(ctx, h.path).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (h *redisHandle) Delete(ctx context.Context) error {
	ctx, cancel, err := h.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if h.key != "" {
		if err := h.store.client.Del(ctx, h.path).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	var delErr error
	err = h.scan(ctx, func(keys []string) bool {
		if len(keys) == 0 {
			return true
		}
		if delErr = h.store.client.Del(ctx, keys...).Err(); delErr != nil {
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if delErr != nil {
		return fmt.Errorf("redis del: %w", delErr)
	}
	return nil
}

// scan walks every key below this handle, page by page, until fn returns false.
func (h *redisHandle) scan(ctx context.Context, fn func(keys []string) bool) error {
	match := escapeGlob(h.path+"/") + "*"
	var cursor uint64
	for {
		keys, next, err := h.store.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if !fn(keys) {
			return nil
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// escapeGlob quotes the characters SCAN MATCH treats specially.
func escapeGlob(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
