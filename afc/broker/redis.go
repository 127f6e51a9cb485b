package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/types"
)

// RedisConfig 配置 Redis 队列
type RedisConfig struct {
	// KeyPrefix is prepended to every key, e.g. "afcflow:".
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	// StatusTTL is how long a status record outlives its last update.
	StatusTTL time.Duration `json:"status_ttl" yaml:"status_ttl"`
}

// Redis is a Broker on top of a redis list (queue) and hashes (status).
//
//	<prefix>queue:<requestType>  LIST  JSON-encoded jobs, LPUSH/BRPOP
//	<prefix>task:<taskID>        HASH  status record written by the engine
type Redis struct {
	client redis.UniversalClient
	config RedisConfig
	logger *zap.Logger
	closed atomic.Bool
}

// NewRedis 创建 Redis 任务代理，客户端由调用方持有
func NewRedis(client redis.UniversalClient, config RedisConfig, logger *zap.Logger) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("broker: redis client is required")
	}
	if config.StatusTTL <= 0 {
		config.StatusTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "broker")),
	}, nil
}

func (r *Redis) queueKey(requestType string) string {
	return r.config.KeyPrefix + "queue:" + requestType
}

func (r *Redis) statusKey(taskID string) string {
	return r.config.KeyPrefix + "task:" + taskID
}

// Submit pushes the job onto its request-type queue.
func (r *Redis) Submit(ctx context.Context, job *Job) error {
	if r.closed.Load() {
		return ErrBrokerClosed
	}
	if err := job.Validate(); err != nil {
		return err
	}
	if job.RequestType == "" {
		job.RequestType = DefaultRequestType
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(job.RequestType), data).Err(); err != nil {
		r.logger.Error("job submit failed", zap.String("task_id", job.TaskID), zap.Error(err))
		return fmt.Errorf("failed to submit job: %w", err)
	}

	r.logger.Debug("job submitted",
		zap.String("task_id", job.TaskID),
		zap.String("hash", job.Hash),
		zap.Stringer("runtime_opts", job.Options),
	)
	return nil
}

// Status reads the task record; a missing record is PENDING.
func (r *Redis) Status(ctx context.Context, taskID string) (*Status, error) {
	if r.closed.Load() {
		return nil, ErrBrokerClosed
	}
	fields, err := r.client.HGetAll(ctx, r.statusKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task status: %w", err)
	}
	if len(fields) == 0 {
		return PendingStatus(taskID), nil
	}
	return decodeStatus(taskID, fields)
}

// Next pops the oldest job of requestType, waiting up to timeout.
func (r *Redis) Next(ctx context.Context, requestType string, timeout time.Duration) (*Job, error) {
	if r.closed.Load() {
		return nil, ErrBrokerClosed
	}
	res, err := r.client.BRPop(ctx, timeout, r.queueKey(requestType)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job: %w", err)
	}
	// BRPOP returns [key, value]
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Publish writes the status record and refreshes its TTL.
func (r *Redis) Publish(ctx context.Context, status *Status) error {
	if r.closed.Load() {
		return ErrBrokerClosed
	}
	if status == nil || status.TaskID == "" {
		return fmt.Errorf("broker: status with task id is required")
	}
	if !status.State.IsValid() {
		return fmt.Errorf("broker: invalid task state %q", status.State)
	}
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}

	key := r.statusKey(status.TaskID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, encodeStatus(status))
	pipe.Expire(ctx, key, r.config.StatusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish task status: %w", err)
	}
	return nil
}

// Ping checks the redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	if r.closed.Load() {
		return ErrBrokerClosed
	}
	return r.client.Ping(ctx).Err()
}

// Close marks the broker closed. The shared client is closed by its owner.
func (r *Redis) Close() error {
	r.closed.Store(true)
	return nil
}

func encodeStatus(s *Status) map[string]any {
	return map[string]any{
		"status":       string(s.State),
		"hash":         s.Hash,
		"history_dir":  s.HistoryDir,
		"runtime_opts": strconv.FormatUint(uint64(s.Options), 10),
		"percent":      strconv.Itoa(s.Percent),
		"message":      s.Message,
		"updated_at":   s.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func decodeStatus(taskID string, f map[string]string) (*Status, error) {
	st := &Status{
		TaskID:     taskID,
		State:      types.TaskState(f["status"]),
		Hash:       f["hash"],
		HistoryDir: f["history_dir"],
		Message:    f["message"],
	}
	if !st.State.IsValid() {
		return nil, fmt.Errorf("task %s has unknown status %q", taskID, f["status"])
	}
	if v := f["runtime_opts"]; v != "" {
		opts, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("task %s: bad runtime_opts: %w", taskID, err)
		}
		st.Options = types.RuntimeOptions(opts)
	}
	if v := f["percent"]; v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("task %s: bad percent: %w", taskID, err)
		}
		st.Percent = p
	}
	if v := f["updated_at"]; v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.UpdatedAt = ts
		}
	}
	return st, nil
}
