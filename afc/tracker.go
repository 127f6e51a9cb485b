package afc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/afc/broker"
	"github.com/BaSui01/afcflow/afc/objstore"
	"github.com/BaSui01/afcflow/types"
)

// Task is one dispatched computation as the coordinator sees it.
type Task struct {
	ID         string
	Hash       string
	HistoryDir string
	Options    types.RuntimeOptions
	// RequestID is used when the request artifact can no longer be read.
	RequestID string
}

// TrackerConfig 任务状态轮询配置
type TrackerConfig struct {
	// PollInterval is the first delay between status reads in Wait.
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	// MaxPollInterval caps the exponential backoff.
	MaxPollInterval time.Duration `json:"max_poll_interval" yaml:"max_poll_interval"`
	// WaitTimeout bounds Wait; zero waits until the caller's context ends.
	WaitTimeout time.Duration `json:"wait_timeout" yaml:"wait_timeout"`
}

// DefaultTrackerConfig returns the default polling configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		PollInterval:    100 * time.Millisecond,
		MaxPollInterval: 2 * time.Second,
	}
}

// Tracker observes task state. The engine drives every transition; the
// tracker only reads, and on a terminal state turns artifacts into an Outcome.
type Tracker struct {
	status    broker.StatusSource
	store     objstore.Store
	assembler *Assembler
	config    TrackerConfig
	metrics   Metrics
	waitHist  metric.Float64Histogram
	logger    *zap.Logger
}

// NewTracker 创建任务状态跟踪器
func NewTracker(status broker.StatusSource, store objstore.Store, config TrackerConfig, m Metrics, logger *zap.Logger) *Tracker {
	def := DefaultTrackerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.MaxPollInterval < config.PollInterval {
		config.MaxPollInterval = config.PollInterval
	}
	if m == nil {
		m = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "tracker"))

	hist, err := otel.Meter(InstrumentationName).Float64Histogram(
		WaitDurationMetric,
		metric.WithDescription("Time spent blocking on a task until it reached a terminal state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create wait histogram", zap.Error(err))
	}

	return &Tracker{
		status:    status,
		store:     store,
		assembler: NewAssembler(store, logger),
		config:    config,
		metrics:   m,
		waitHist:  hist,
		logger:    logger,
	}
}

// Get returns the current snapshot without blocking.
func (t *Tracker) Get(ctx context.Context, taskID string) (*broker.Status, error) {
	st, err := t.status.Status(ctx, taskID)
	if err != nil {
		return nil, types.NewBrokerError("failed to read task status", err)
	}
	return st, nil
}

// Wait blocks until the task is terminal, polling with exponential backoff.
// Giving up (context or WaitTimeout) leaves the task running; its result still
// lands in the cache.
func (t *Tracker) Wait(ctx context.Context, taskID string) (*broker.Status, error) {
	if t.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.WaitTimeout)
		defer cancel()
	}

	start := time.Now()
	delay := t.config.PollInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Warn("stopped waiting for task",
				zap.String("task_id", taskID),
				zap.Duration("waited", time.Since(start)),
				zap.Error(ctx.Err()),
			)
			return nil, types.NewError(types.ErrTimeout, "gave up waiting for task "+taskID).WithCause(ctx.Err())
		case <-timer.C:
		}

		st, err := t.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if st.State.IsTerminal() {
			elapsed := time.Since(start)
			t.metrics.RecordTaskWait(elapsed)
			if t.waitHist != nil {
				t.waitHist.Record(ctx, elapsed.Seconds(),
					metric.WithAttributes(attribute.String("state", string(st.State))))
			}
			return st, nil
		}

		timer.Reset(delay)
		delay *= 2
		if delay > t.config.MaxPollInterval {
			delay = t.config.MaxPollInterval
		}
	}
}

// Outcome is a terminal task turned into client-facing content.
type Outcome struct {
	State types.TaskState
	// Document is the full assembled response (SUCCESS only).
	Document json.RawMessage
	// Entry is the per-item entry: the first response on SUCCESS, the error
	// entry on FAILURE.
	Entry json.RawMessage
	// Failure is the translated engine error (FAILURE only).
	Failure *types.Error
}

// Resolve turns a terminal status into an Outcome and removes the transient
// bookkeeping of the task. The cached response is never touched.
func (t *Tracker) Resolve(ctx context.Context, task *Task, st *broker.Status) (*Outcome, error) {
	if !st.State.IsTerminal() {
		return nil, fmt.Errorf("task %s is not terminal: %s", task.ID, st.State)
	}
	defer t.cleanup(ctx, task)

	switch st.State {
	case types.TaskSuccess:
		doc, err := t.assembler.Assemble(ctx, task)
		if err != nil {
			t.metrics.RecordTaskOutcome(string(st.State), "assemble_error")
			return nil, err
		}
		t.metrics.RecordTaskOutcome(string(st.State), "ok")
		return &Outcome{State: st.State, Document: doc, Entry: firstResponse(doc)}, nil
	default:
		out, err := t.resolveFailure(ctx, task)
		if err != nil {
			t.metrics.RecordTaskOutcome(string(st.State), string(types.GetErrorCode(err)))
			return nil, err
		}
		t.metrics.RecordTaskOutcome(string(st.State), string(out.Failure.Code))
		return out, nil
	}
}

func (t *Tracker) resolveFailure(ctx context.Context, task *Task) (*Outcome, error) {
	requestID := task.RequestID
	if data, err := objstore.ReadObject(ctx, t.store, objstore.NamespaceProcessing, requestKey(task.Hash)); err == nil {
		if id, perr := requestIDFromArtifact(data); perr == nil {
			requestID = id
		}
	} else if !objstore.IsNotFound(err) {
		t.logger.Warn("failed to read request artifact", zap.String("hash", task.Hash), zap.Error(err))
	}

	text, err := objstore.ReadObject(ctx, t.store, objstore.NamespaceProcessing, errorKey(task.ID))
	if objstore.IsNotFound(err) {
		return nil, types.NewResourceGoneError()
	}
	if err != nil {
		return nil, types.NewStorageError("failed to read engine error", err)
	}

	failure := TranslateEngineError(string(text))
	t.logger.Info("task failed",
		zap.String("task_id", task.ID),
		zap.String("code", string(failure.Code)),
	)
	return &Outcome{
		State:   types.TaskFailure,
		Failure: failure,
		Entry:   mustMarshal(NewErrorEntry(requestID, failure)),
	}, nil
}

// cleanup deletes pro/<hash>/analysisRequest.json and pro/<taskId>. Failures
// are logged; the outcome is already decided.
func (t *Tracker) cleanup(ctx context.Context, task *Task) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range []string{requestKey(task.Hash), task.ID} {
		if err := objstore.DeleteObject(ctx, t.store, objstore.NamespaceProcessing, key); err != nil {
			t.logger.Warn("cleanup failed", zap.String("key", key), zap.Error(err))
		}
	}
}
