package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/afc"
	"github.com/BaSui01/afcflow/types"
)

// =============================================================================
// 🔭 任务进度推送 Handler
// =============================================================================

// TaskPoller reports the state of one task.
type TaskPoller interface {
	Poll(ctx context.Context, taskID string) (*afc.PollResult, error)
}

// WatchFrame 是推送给客户端的一帧，Status 与轮询接口的 HTTP 状态一致
type WatchFrame struct {
	Status int `json:"status"`
	Body   any `json:"body"`
}

// WatchHandler 通过 WebSocket 推送任务进度，直到任务结束或连接断开。
// 只有状态变化时才发送新帧。
type WatchHandler struct {
	poller   TaskPoller
	versions []string
	interval time.Duration
	origins  []string
	logger   *zap.Logger
}

// NewWatchHandler 创建进度推送处理器；interval 为轮询任务状态的间隔
func NewWatchHandler(poller TaskPoller, versions []string, interval time.Duration, origins []string, logger *zap.Logger) *WatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &WatchHandler{
		poller:   poller,
		versions: versions,
		interval: interval,
		origins:  origins,
		logger:   logger.With(zap.String("handler", "watch")),
	}
}

// HandleWatch GET /{version}/availableSpectrumInquiry/watch?task_id=...
func (h *WatchHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	version := r.PathValue("version")
	if len(h.versions) > 0 && !slices.Contains(h.versions, version) {
		h.writeError(w, types.NewVersionNotSupportedError(version))
		return
	}
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		h.writeError(w, types.NewMissingParamError("task_id").WithHTTPStatus(http.StatusBadRequest))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept 已写出响应
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// 客户端不发送数据；CloseRead 负责处理控制帧，客户端关闭时 ctx 结束
	ctx := conn.CloseRead(r.Context())

	status, reason := h.stream(ctx, conn, taskID)
	_ = conn.Close(status, reason)
}

func (h *WatchHandler) stream(ctx context.Context, conn *websocket.Conn, taskID string) (websocket.StatusCode, string) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		frame, done := h.poll(ctx, taskID)

		data, err := json.Marshal(frame)
		if err != nil {
			h.logger.Error("failed to encode watch frame", zap.String("task_id", taskID), zap.Error(err))
			return websocket.StatusInternalError, "encode failure"
		}
		if !bytes.Equal(data, last) {
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.logger.Debug("watch client gone", zap.String("task_id", taskID), zap.Error(err))
				return websocket.StatusGoingAway, ""
			}
			last = data
		}
		if done {
			return websocket.StatusNormalClosure, "task finished"
		}

		select {
		case <-ctx.Done():
			return websocket.StatusGoingAway, ""
		case <-ticker.C:
		}
	}
}

// poll converts one Poll call into a frame; done is true once the task is
// terminal or the poll failed.
func (h *WatchHandler) poll(ctx context.Context, taskID string) (WatchFrame, bool) {
	res, err := h.poller.Poll(ctx, taskID)
	if err != nil {
		e := types.WrapError(err, types.ErrInternalError, "Internal error")
		if errors.Is(err, context.Canceled) {
			e = types.NewError(types.ErrInternalError, "Internal error")
		}
		h.logger.Warn("watch poll failed", zap.String("task_id", taskID), zap.Error(err))
		return WatchFrame{Status: HTTPStatusFor(e), Body: afc.NewErrorEntry("", e).Response}, true
	}
	return WatchFrame{Status: res.HTTPStatus, Body: res.Body}, res.HTTPStatus != http.StatusAccepted
}

func (h *WatchHandler) writeError(w http.ResponseWriter, e *types.Error) {
	WriteJSON(w, HTTPStatusFor(e), afc.NewErrorEntry("", e).Response)
}
