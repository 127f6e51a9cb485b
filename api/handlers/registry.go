package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/afc/registry"
	"github.com/BaSui01/afcflow/types"
)

// RegistryAdmin 是设备注册表的管理能力，*registry.Registry 实现它
type RegistryAdmin interface {
	ListAccessPoints(ctx context.Context) ([]registry.AccessPoint, error)
	PutAccessPoint(ctx context.Context, ap *registry.AccessPoint) error
	DeleteAccessPoint(ctx context.Context, serial string) (bool, error)
	Regions(ctx context.Context) ([]string, error)
	ConfigFor(ctx context.Context, region string) (json.RawMessage, error)
	PutConfig(ctx context.Context, region string, doc json.RawMessage) error
}

// RegistryHandler 处理接入点与区域配置的管理接口
type RegistryHandler struct {
	registry RegistryAdmin
	logger   *zap.Logger
}

// NewRegistryHandler 创建 RegistryHandler
func NewRegistryHandler(reg RegistryAdmin, logger *zap.Logger) *RegistryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryHandler{registry: reg, logger: logger.With(zap.String("handler", "registry"))}
}

// =============================================================================
// 📟 接入点
// =============================================================================

// HandleListAccessPoints GET /admin/access-points
func (h *RegistryHandler) HandleListAccessPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	aps, err := h.registry.ListAccessPoints(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "failed to list access points").WithCause(err), h.logger)
		return
	}
	if aps == nil {
		aps = []registry.AccessPoint{}
	}
	WriteSuccess(w, aps)
}

// putAccessPointRequest 注册接入点请求体
type putAccessPointRequest struct {
	CertificationID string `json:"certification_id"`
	Org             string `json:"org"`
}

// HandlePutAccessPoint PUT /admin/access-points/{serial}
func (h *RegistryHandler) HandlePutAccessPoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	serial := strings.TrimSpace(r.PathValue("serial"))
	if serial == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "serial number is required", h.logger)
		return
	}

	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req putAccessPointRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.CertificationID) == "" || strings.TrimSpace(req.Org) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "certification_id and org are required", h.logger)
		return
	}

	ap := registry.AccessPoint{
		SerialNumber:    serial,
		CertificationID: strings.TrimSpace(req.CertificationID),
		Org:             strings.TrimSpace(req.Org),
	}
	if err := h.registry.PutAccessPoint(r.Context(), &ap); err != nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "failed to store access point").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, ap)
}

// HandleDeleteAccessPoint DELETE /admin/access-points/{serial}
func (h *RegistryHandler) HandleDeleteAccessPoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	serial := r.PathValue("serial")
	deleted, err := h.registry.DeleteAccessPoint(r.Context(), serial)
	if err != nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "failed to delete access point").WithCause(err), h.logger)
		return
	}
	if !deleted {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "access point not found", h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"message": "access point deleted"})
}

// =============================================================================
// 🌐 区域配置
// =============================================================================

// HandleListRegions GET /admin/configs
func (h *RegistryHandler) HandleListRegions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	regions, err := h.registry.Regions(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "failed to list regions").WithCause(err), h.logger)
		return
	}
	if regions == nil {
		regions = []string{}
	}
	WriteSuccess(w, regions)
}

// HandleGetConfig GET /admin/configs/{region}
func (h *RegistryHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	doc, err := h.registry.ConfigFor(r.Context(), r.PathValue("region"))
	if errors.Is(err, registry.ErrConfigNotFound) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "region config not found", h.logger)
		return
	}
	if err != nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "failed to load region config").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, doc)
}

// HandlePutConfig PUT /admin/configs/{region}，请求体即配置文档
func (h *RegistryHandler) HandlePutConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	region := strings.TrimSpace(r.PathValue("region"))
	if region == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "region is required", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "config must be a JSON document", h.logger)
		return
	}

	if err := h.registry.PutConfig(r.Context(), region, json.RawMessage(body)); err != nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "failed to store region config").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"region": region})
}
