package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/afc/registry"
	"github.com/BaSui01/afcflow/config"
	"github.com/BaSui01/afcflow/internal/metrics"
)

// promauto 注册到默认 registry，整个测试二进制只能创建一次
var testCollector = metrics.NewCollector("afcflow_cmd_test", zap.NewNop())

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Broker.Type = "memory"
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "registry.db")
	cfg.Database.MaxOpenConns = 1
	cfg.Database.MaxIdleConns = 1
	cfg.Server.RateLimitRPS = 0
	cfg.Server.ShutdownTimeout = time.Second
	require.NoError(t, cfg.Validate())
	return cfg
}

// newTestRouter 初始化基础设施并返回完整的中间件链，不监听端口
func newTestRouter(t *testing.T, cfg *config.Config) (*Server, http.Handler) {
	t.Helper()
	s := NewServer(cfg, zap.NewNop(), nil)
	s.collector = testCollector
	require.NoError(t, s.initInfra())
	t.Cleanup(s.Shutdown)

	require.NoError(t, s.db.DB().AutoMigrate(&registry.AccessPoint{}, &registry.AFCConfig{}))
	s.initHandlers()
	return s, s.routes(t.Context())
}

func do(h http.Handler, method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestServer_Probes(t *testing.T) {
	_, h := newTestRouter(t, testConfig(t))

	for _, path := range []string{"/health", "/healthz"} {
		w := do(h, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}

	w := do(h, http.MethodGet, "/ready", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ready struct {
		Status string                     `json:"status"`
		Checks map[string]json.RawMessage `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, "healthy", ready.Status)
	assert.Contains(t, ready.Checks, "object_store")
	assert.Contains(t, ready.Checks, "broker")
	assert.Contains(t, ready.Checks, "database")
	assert.NotContains(t, ready.Checks, "redis")

	w = do(h, http.MethodGet, "/version", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), Version)
}

func TestServer_ReadyFailsAfterDatabaseClosed(t *testing.T) {
	s, h := newTestRouter(t, testConfig(t))
	require.NoError(t, s.db.Close())

	w := do(h, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_InquiryRequestErrors(t *testing.T) {
	_, h := newTestRouter(t, testConfig(t))

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"unsupported version", http.MethodPost, "/9.9/availableSpectrumInquiry", `{}`, http.StatusBadRequest},
		{"poll without task id", http.MethodGet, "/1.3/availableSpectrumInquiry", "", http.StatusBadRequest},
		{"bad flag", http.MethodPost, "/1.3/availableSpectrumInquiry?debug=maybe", `{}`, http.StatusBadRequest},
		{"body not declared as json", http.MethodPost, "/1.3/availableSpectrumInquiry", `{}`, http.StatusUnsupportedMediaType},
		{"method not allowed", http.MethodDelete, "/1.3/availableSpectrumInquiry", "", http.StatusMethodNotAllowed},
		{"watch without upgrade", http.MethodGet, "/1.3/availableSpectrumInquiry/watch?task_id=x", "", http.StatusUpgradeRequired},
		{"watch missing task id", http.MethodGet, "/1.3/availableSpectrumInquiry/watch", "", http.StatusBadRequest},
		{"unknown path", http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, tt.method, tt.target, []byte(tt.body), nil)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestServer_AdminRoundTrip(t *testing.T) {
	_, h := newTestRouter(t, testConfig(t))

	w := do(h, http.MethodPut, "/admin/configs/US", []byte(`{"maxLinkDistance":130}`), map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(h, http.MethodGet, "/admin/configs/US", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "maxLinkDistance")

	w = do(h, http.MethodGet, "/admin/configs", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"US"`)

	w = do(h, http.MethodGet, "/admin/configs/CA", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(h, http.MethodDelete, "/admin/access-points/SN-404", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_APIKeyAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKeys = []string{"k1"}
	_, h := newTestRouter(t, cfg)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/admin/configs", nil, nil).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/admin/configs", nil, map[string]string{"X-API-Key": "k1"}).Code)
}

func TestServer_JWTWithAdminKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.JWT.Secret = "s3cret"
	cfg.Server.APIKeys = []string{"admin-key"}
	_, h := newTestRouter(t, cfg)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + token}

	// 查询接口只需要 JWT
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/1.3/availableSpectrumInquiry?task_id=x", nil, nil).Code)
	assert.NotEqual(t, http.StatusUnauthorized, do(h, http.MethodGet, "/9.9/availableSpectrumInquiry", nil, bearer).Code)

	// 管理接口同时需要 API Key
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/admin/configs", nil, bearer).Code)
	both := map[string]string{"Authorization": "Bearer " + token, "X-API-Key": "admin-key"}
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/admin/configs", nil, both).Code)
}

func TestServer_RateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RateLimitRPS = 1
	cfg.Server.RateLimitBurst = 1
	_, h := newTestRouter(t, cfg)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, "/health", nil, nil).Code)
}

func TestServer_ShutdownIdempotent(t *testing.T) {
	s, _ := newTestRouter(t, testConfig(t))
	s.Shutdown()
	s.Shutdown()
}
