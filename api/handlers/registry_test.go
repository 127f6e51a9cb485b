package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/afcflow/afc/registry"
)

func setupRegistryMux(t *testing.T) *http.ServeMux {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "registry.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&registry.AccessPoint{}, &registry.AFCConfig{}))

	h := NewRegistryHandler(registry.New(db, nil, zap.NewNop()), zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/access-points", h.HandleListAccessPoints)
	mux.HandleFunc("PUT /admin/access-points/{serial}", h.HandlePutAccessPoint)
	mux.HandleFunc("DELETE /admin/access-points/{serial}", h.HandleDeleteAccessPoint)
	mux.HandleFunc("GET /admin/configs", h.HandleListRegions)
	mux.HandleFunc("GET /admin/configs/{region}", h.HandleGetConfig)
	mux.HandleFunc("PUT /admin/configs/{region}", h.HandlePutConfig)
	return mux
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestRegistryHandler_AccessPointLifecycle(t *testing.T) {
	mux := setupRegistryMux(t)

	w := serve(mux, http.MethodGet, "/admin/access-points", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(dataOf(t, w)))

	w = serve(mux, http.MethodPut, "/admin/access-points/SN-1", `{"certification_id":"FCC CID-1","org":"acme"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(mux, http.MethodPut, "/admin/access-points/SN-1", `{"certification_id":"FCC CID-2","org":"acme"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(mux, http.MethodGet, "/admin/access-points", "")
	var aps []registry.AccessPoint
	require.NoError(t, json.Unmarshal(dataOf(t, w), &aps))
	require.Len(t, aps, 1)
	assert.Equal(t, "FCC CID-2", aps[0].CertificationID)

	w = serve(mux, http.MethodDelete, "/admin/access-points/SN-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = serve(mux, http.MethodDelete, "/admin/access-points/SN-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegistryHandler_PutAccessPointValidation(t *testing.T) {
	mux := setupRegistryMux(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing org", `{"certification_id":"FCC X"}`},
		{"blank cert", `{"certification_id":"  ","org":"acme"}`},
		{"unknown field", `{"certification_id":"FCC X","org":"acme","extra":1}`},
		{"not json", `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(mux, http.MethodPut, "/admin/access-points/SN-1", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRegistryHandler_Configs(t *testing.T) {
	mux := setupRegistryMux(t)

	w := serve(mux, http.MethodGet, "/admin/configs/US", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(mux, http.MethodPut, "/admin/configs/US", `{"regionStr":"US","maxEIRP":36}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(mux, http.MethodPut, "/admin/configs/CA", `{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(mux, http.MethodGet, "/admin/configs/US", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"regionStr":"US","maxEIRP":36}`, string(dataOf(t, w)))

	w = serve(mux, http.MethodGet, "/admin/configs", "")
	assert.JSONEq(t, `["US"]`, string(dataOf(t, w)))
}

func TestRegistryHandler_PutRequiresJSON(t *testing.T) {
	mux := setupRegistryMux(t)
	for _, target := range []string{"/admin/access-points/SN-1", "/admin/configs/US"} {
		r := httptest.NewRequest(http.MethodPut, target, strings.NewReader(`{"certification_id":"FCC CID-1","org":"acme"}`))
		r.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code, target)
	}

	w := serve(mux, http.MethodGet, "/admin/access-points", "")
	assert.JSONEq(t, `[]`, string(dataOf(t, w)))
}

func TestRegistryHandler_WrongMethod(t *testing.T) {
	h := NewRegistryHandler(nil, nil)
	for _, fn := range []http.HandlerFunc{h.HandleListAccessPoints, h.HandleGetConfig, h.HandleListRegions} {
		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodPatch, "/admin", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	}
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) json.RawMessage {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.True(t, resp.Success, w.Body.String())
	return resp.Data
}
