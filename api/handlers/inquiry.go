package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/afc"
	"github.com/BaSui01/afcflow/types"
)

// =============================================================================
// 📡 频谱查询 Handler
// =============================================================================

// InquiryService 是 afc.Service 面向 HTTP 的能力
type InquiryService interface {
	Inquire(ctx context.Context, batch *afc.InquiryBatch, opts afc.InquiryOptions) (*afc.InquiryResult, error)
	Poll(ctx context.Context, taskID string) (*afc.PollResult, error)
}

// InquiryHandler 处理 /{version}/availableSpectrumInquiry
type InquiryHandler struct {
	service  InquiryService
	versions []string
	maxBody  int64
	logger   *zap.Logger
}

// NewInquiryHandler 创建频谱查询处理器，versions 为 URL 中允许的协议版本
func NewInquiryHandler(service InquiryService, versions []string, logger *zap.Logger) *InquiryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InquiryHandler{
		service:  service,
		versions: versions,
		maxBody:  maxBodyBytes,
		logger:   logger.With(zap.String("handler", "inquiry")),
	}
}

// HandleInquiry POST 提交批量查询，GET 轮询任务
func (h *InquiryHandler) HandleInquiry(w http.ResponseWriter, r *http.Request) {
	version := r.PathValue("version")
	if len(h.versions) > 0 && !slices.Contains(h.versions, version) {
		h.writeError(w, types.NewVersionNotSupportedError(version))
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handleSubmit(w, r)
	case http.MethodGet:
		h.handlePoll(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		h.writeError(w, types.NewInvalidRequestError("method not allowed").WithHTTPStatus(http.StatusMethodNotAllowed))
	}
}

func (h *InquiryHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	opts, err := parseInquiryOptions(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if e := contentTypeError(r); e != nil {
		h.writeError(w, e)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, types.NewInvalidRequestError("request body too large").WithHTTPStatus(http.StatusRequestEntityTooLarge))
			return
		}
		h.writeError(w, types.NewInvalidRequestError("failed to read request body").WithCause(err))
		return
	}

	batch, err := afc.ParseBatch(body)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.service.Inquire(r.Context(), batch, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *InquiryHandler) handlePoll(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		h.writeError(w, types.NewMissingParamError("task_id").WithHTTPStatus(http.StatusBadRequest))
		return
	}

	res, err := h.service.Poll(r.Context(), taskID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	WriteJSON(w, res.HTTPStatus, res.Body)
}

func parseInquiryOptions(r *http.Request) (afc.InquiryOptions, error) {
	q := r.URL.Query()
	var opts afc.InquiryOptions
	for _, f := range []struct {
		name string
		dst  *bool
	}{{"debug", &opts.Debug}, {"gui", &opts.GUI}, {"nocache", &opts.NoCache}} {
		v, err := afc.ParseFlag(q.Get(f.name))
		if err != nil {
			return opts, types.NewInvalidValueError(f.name).WithCause(err).WithHTTPStatus(http.StatusBadRequest)
		}
		*f.dst = v
	}
	conn, err := afc.ParseConnType(q.Get("conn_type"))
	if err != nil {
		return opts, types.NewInvalidValueError("conn_type").WithCause(err).WithHTTPStatus(http.StatusBadRequest)
	}
	opts.Conn = conn
	return opts, nil
}

// writeError renders a request-level failure in the protocol's response shape.
func (h *InquiryHandler) writeError(w http.ResponseWriter, err error) {
	e := types.WrapError(err, types.ErrInternalError, "Internal error")
	status := HTTPStatusFor(e)

	log := h.logger.Info
	if status >= http.StatusInternalServerError {
		log = h.logger.Error
	}
	log("inquiry request failed",
		zap.String("code", string(e.Code)),
		zap.Int("status", status),
		zap.Error(err),
	)
	WriteJSON(w, status, afc.NewErrorEntry("", e).Response)
}
