package afc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/afcflow/afc/broker"
	"github.com/BaSui01/afcflow/afc/cachekey"
	"github.com/BaSui01/afcflow/afc/objstore"
	"github.com/BaSui01/afcflow/afc/registry"
	"github.com/BaSui01/afcflow/types"
)

const (
	// InstrumentationName 是 afc 包 tracer 与 meter 的 instrumentation scope
	InstrumentationName = "github.com/BaSui01/afcflow/afc"
	// WaitDurationMetric 同步等待任务终态耗时的直方图（秒）
	WaitDurationMetric = "afc.task.wait.duration"
)

// Config 协调器配置
type Config struct {
	AllowedVersions []string      `json:"allowed_versions" yaml:"allowed_versions"`
	RequestType     string        `json:"request_type" yaml:"request_type"`
	MaxConcurrency  int           `json:"max_concurrency" yaml:"max_concurrency"`
	HTTPIO          bool          `json:"http_io" yaml:"http_io"`
	Tracker         TrackerConfig `json:"tracker" yaml:"tracker"`
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		AllowedVersions: []string{"1.1", "1.3"},
		RequestType:     broker.DefaultRequestType,
		MaxConcurrency:  16,
		Tracker:         DefaultTrackerConfig(),
	}
}

// Deps are the collaborators of the coordinator.
type Deps struct {
	Authorizer registry.Authorizer
	Configs    registry.ConfigStore
	Store      objstore.Store
	Dispatcher broker.Dispatcher
	Status     broker.StatusSource
	Metrics    Metrics
}

// Service splits batches, deduplicates work through the cache, dispatches
// misses and joins results back in input order.
type Service struct {
	config  Config
	deps    Deps
	keys    *cachekey.Builder
	tracker *Tracker
	history *HistoryRecorder
	metrics Metrics
	tracer  trace.Tracer
	newID   func() string
	logger  *zap.Logger
}

// NewService 创建频谱查询协调器
func NewService(config Config, deps Deps, logger *zap.Logger) (*Service, error) {
	switch {
	case deps.Authorizer == nil:
		return nil, errors.New("afc: authorizer is required")
	case deps.Configs == nil:
		return nil, errors.New("afc: config store is required")
	case deps.Store == nil:
		return nil, errors.New("afc: object store is required")
	case deps.Dispatcher == nil || deps.Status == nil:
		return nil, errors.New("afc: dispatcher and status source are required")
	}
	def := DefaultConfig()
	if len(config.AllowedVersions) == 0 {
		config.AllowedVersions = def.AllowedVersions
	}
	if config.RequestType == "" {
		config.RequestType = def.RequestType
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  config,
		deps:    deps,
		keys:    cachekey.NewBuilder(),
		tracker: NewTracker(deps.Status, deps.Store, config.Tracker, deps.Metrics, logger),
		history: NewHistoryRecorder(deps.Store),
		metrics: deps.Metrics,
		tracer:  otel.Tracer(InstrumentationName),
		newID:   func() string { return uuid.New().String() },
		logger:  logger.With(zap.String("component", "afc")),
	}, nil
}

// Tracker exposes the status tracker.
func (s *Service) Tracker() *Tracker { return s.tracker }

// =============================================================================
// 📨 POST：批量查询
// =============================================================================

type itemResult struct {
	entry  json.RawMessage
	ticket *Ticket
}

// Inquire runs every item of the batch concurrently and returns one entry per
// item in input order. Only a disallowed version or a multi-item async call
// fails the whole batch; everything else fails its own item.
func (s *Service) Inquire(ctx context.Context, batch *InquiryBatch, opts InquiryOptions) (*InquiryResult, error) {
	ctx, span := s.tracer.Start(ctx, "afc.Inquire", trace.WithAttributes(
		attribute.String("afc.version", batch.Version),
		attribute.Int("afc.items", len(batch.Requests)),
		attribute.Bool("afc.gui", opts.GUI),
		attribute.String("afc.conn_type", string(opts.Conn)),
	))
	defer span.End()

	if !slices.Contains(s.config.AllowedVersions, batch.Version) {
		s.metrics.RecordInquiry(OutcomeRejected)
		span.SetStatus(codes.Error, "version not supported")
		return nil, types.NewVersionNotSupportedError(batch.Version)
	}
	if opts.Conn == ConnAsync && len(batch.Requests) > 1 {
		s.metrics.RecordInquiry(OutcomeRejected)
		span.SetStatus(codes.Error, "multipart async")
		return nil, types.NewGeneralFailureError("Unsupported multipart async request")
	}

	// GUI single-item and async callers must never hold the connection open.
	nonBlocking := opts.Conn == ConnAsync || (opts.GUI && len(batch.Requests) == 1)

	results := make([]itemResult, len(batch.Requests))
	var g errgroup.Group
	g.SetLimit(s.config.MaxConcurrency)
	for i, raw := range batch.Requests {
		g.Go(func() error {
			results[i] = s.runItem(ctx, batch.Version, i, raw, opts, nonBlocking)
			return nil
		})
	}
	_ = g.Wait()

	if len(results) == 1 && results[0].ticket != nil {
		return &InquiryResult{Version: batch.Version, Ticket: results[0].ticket}, nil
	}
	out := &InquiryResult{Version: batch.Version, Responses: make([]json.RawMessage, len(results))}
	for i, r := range results {
		out.Responses[i] = r.entry
	}
	return out, nil
}

func (s *Service) runItem(ctx context.Context, version string, index int, raw json.RawMessage, opts InquiryOptions, nonBlocking bool) itemResult {
	ctx, span := s.tracer.Start(ctx, "afc.item", trace.WithAttributes(attribute.Int("afc.index", index)))
	defer span.End()

	item, err := parseItem(index, raw)
	if err == nil {
		span.SetAttributes(attribute.String("afc.request_id", item.RequestID))
		var res itemResult
		res, err = s.processItem(ctx, version, item, opts, nonBlocking)
		if err == nil {
			return res
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.metrics.RecordInquiry(OutcomeError)
	s.logger.Info("inquiry item failed",
		zap.Int("index", index),
		zap.String("request_id", item.RequestID),
		zap.String("code", string(types.GetErrorCode(err))),
		zap.Bool("retryable", types.IsRetryable(err)),
		zap.Error(err),
	)
	return itemResult{entry: mustMarshal(NewErrorEntry(item.RequestID, err))}
}

func (s *Service) processItem(ctx context.Context, version string, item *InquiryItem, opts InquiryOptions, nonBlocking bool) (itemResult, error) {
	org, err := s.deps.Authorizer.Authorize(ctx, &item.Device)
	if err != nil {
		return itemResult{}, err
	}

	nra := item.Device.NRA()
	if nra == "" {
		return itemResult{}, types.NewMissingParamError("certificationId")
	}
	region := registry.RegionForNRA(nra)
	cfgDoc, err := s.deps.Configs.ConfigFor(ctx, region)
	if err != nil {
		if errors.Is(err, registry.ErrConfigNotFound) {
			return itemResult{}, types.NewGeneralFailureError("no AFC configuration for region " + region)
		}
		return itemResult{}, types.NewError(types.ErrServiceUnavailable, "failed to load region config").WithCause(err)
	}

	reqBytes, err := singleRequest(version, item.Raw)
	if err != nil {
		return itemResult{}, types.NewInvalidValueError("availableSpectrumInquiryRequests").WithCause(err)
	}
	keys, err := s.keys.Build(cfgDoc, reqBytes)
	if err != nil {
		return itemResult{}, types.NewInvalidValueError("availableSpectrumInquiryRequests").WithCause(err)
	}
	configPath := keys.ConfigPath(region)
	if _, err := objstore.WriteIfAbsent(ctx, s.deps.Store, objstore.NamespaceConfig, configKey(configPath), keys.PersistedConfig); err != nil {
		return itemResult{}, types.NewStorageError("failed to persist config", err)
	}

	rtOpts := opts.RuntimeOptions(s.config.HTTPIO)
	log := s.logger.With(
		zap.String("request_id", item.RequestID),
		zap.String("hash", keys.CombinedHash),
		zap.Stringer("runtime_opts", rtOpts),
	)

	if !rtOpts.Has(types.OptGUI) && !rtOpts.Has(types.OptNoCache) {
		entry, hit, err := s.lookupCache(ctx, keys.CombinedHash)
		if err != nil {
			return itemResult{}, err
		}
		s.metrics.RecordCacheLookup(hit)
		if hit {
			log.Debug("cache hit")
			s.metrics.RecordInquiry(OutcomeCacheHit)
			return itemResult{entry: entry}, nil
		}
	}

	if err := objstore.WriteObject(ctx, s.deps.Store, objstore.NamespaceProcessing, requestKey(keys.CombinedHash), keys.RequestBytes); err != nil {
		return itemResult{}, types.NewStorageError("failed to persist request", err)
	}

	var historyDir string
	if rtOpts.Has(types.OptDebug) {
		historyDir, err = s.history.Record(ctx, org, item.Device.SerialNumber, keys.RequestBytes, keys.PersistedConfig)
		if err != nil {
			return itemResult{}, types.NewStorageError("failed to record history", err)
		}
	}

	task := &Task{
		ID:         s.newID(),
		Hash:       keys.CombinedHash,
		HistoryDir: historyDir,
		Options:    rtOpts,
		RequestID:  item.RequestID,
	}
	err = s.deps.Dispatcher.Submit(ctx, &broker.Job{
		TaskID:      task.ID,
		RequestType: s.config.RequestType,
		Hash:        task.Hash,
		ConfigPath:  configPath,
		HistoryDir:  historyDir,
		Options:     rtOpts,
		SubmittedAt: time.Now().UTC(),
	})
	s.metrics.RecordDispatch(err)
	if err != nil {
		return itemResult{}, types.NewBrokerError("failed to dispatch task", err)
	}
	log.Debug("task dispatched", zap.String("task_id", task.ID))

	var st *broker.Status
	if nonBlocking {
		st, err = s.tracker.Get(ctx, task.ID)
		if err != nil {
			return itemResult{}, err
		}
		if !st.State.IsTerminal() {
			s.metrics.RecordInquiry(OutcomeTicket)
			return itemResult{ticket: &Ticket{TaskID: task.ID, TaskState: st.State}}, nil
		}
	} else {
		st, err = s.tracker.Wait(ctx, task.ID)
		if err != nil {
			return itemResult{}, err
		}
	}

	out, err := s.tracker.Resolve(ctx, task, st)
	if err != nil {
		return itemResult{}, err
	}
	s.metrics.RecordInquiry(OutcomeCompleted)
	return itemResult{entry: out.Entry}, nil
}

// lookupCache returns the first cached response of hash. A missing or
// unreadable cache entry is a miss; a store failure is an error.
func (s *Service) lookupCache(ctx context.Context, hash string) (json.RawMessage, bool, error) {
	gz, err := objstore.ReadObject(ctx, s.deps.Store, objstore.NamespaceProcessing, responseKey(hash))
	if objstore.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewStorageError("failed to read cached response", err)
	}
	doc, err := gunzip(gz)
	if err != nil || !json.Valid(doc) {
		s.logger.Warn("ignoring corrupt cache entry", zap.String("hash", hash), zap.Error(err))
		return nil, false, nil
	}
	return firstResponse(doc), true, nil
}

// =============================================================================
// 🔎 GET：轮询任务
// =============================================================================

// PollResult is the HTTP status and body of a poll.
type PollResult struct {
	HTTPStatus int
	Body       any
}

type progressBody struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

type messageBody struct {
	Message string `json:"message"`
}

// Poll reports the state of a task handed out as a ticket. Terminal tasks
// return the per-item entry; a failed task whose error artifact is gone
// answers 410 {"message": "Resource already deleted"}.
func (s *Service) Poll(ctx context.Context, taskID string) (*PollResult, error) {
	ctx, span := s.tracer.Start(ctx, "afc.Poll", trace.WithAttributes(attribute.String("afc.task_id", taskID)))
	defer span.End()

	st, err := s.tracker.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	switch st.State {
	case types.TaskPending:
		return &PollResult{HTTPStatus: http.StatusAccepted, Body: progressBody{Percent: 0, Message: "Pending..."}}, nil
	case types.TaskProgress:
		return &PollResult{HTTPStatus: http.StatusAccepted, Body: progressBody{Percent: st.Percent, Message: "In progress..."}}, nil
	}

	if st.Hash == "" {
		return nil, types.NewGeneralFailureError(fmt.Sprintf("task %s has no result hash", taskID))
	}
	out, err := s.tracker.Resolve(ctx, &Task{
		ID:         taskID,
		Hash:       st.Hash,
		HistoryDir: st.HistoryDir,
		Options:    st.Options,
	}, st)
	if err != nil {
		span.RecordError(err)
		if e, ok := types.AsError(err); ok && e.Code == types.ErrResourceGone {
			return &PollResult{HTTPStatus: http.StatusGone, Body: messageBody{Message: e.Message}}, nil
		}
		return nil, err
	}
	return &PollResult{HTTPStatus: http.StatusOK, Body: out.Entry}, nil
}
