package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/cloud/cloudfake"
	"github.com/gsmc-io/gsmc/internal/httpapi"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/internal/provisioner"
	"github.com/gsmc-io/gsmc/internal/registry"
	"github.com/gsmc-io/gsmc/internal/store"
)

func newTestServer(t *testing.T) (*httpapi.Server, *store.Store, *cloudfake.Gateway) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	gw := cloudfake.New()
	reg := registry.New()
	registry.RegisterNative(reg)
	p := provisioner.New(st, gw, nil, reg, nil, nil, nil, nil)
	return httpapi.New(p, nil), st, gw
}

func TestListServersEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/servers", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	var servers []model.Server
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &servers))
	assert.Empty(t, servers)
}

func TestGetServerNotFoundIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/servers/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteServerUnknownIs400(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/servers/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	// destroy's "not found" is a ConfigError (bad request), not a 404 —
	// the caller asked to delete something that was never registered.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPinUnpinRoundTripOverHTTP(t *testing.T) {
	srv, st, gw := newTestServer(t)

	inst, err := gw.RunInstance(context.Background(), cloud.RunInstanceParams{Region: "us-east-1"})
	require.NoError(t, err)
	server := model.Server{ID: "srv1", Name: "box-one", Game: "factorio", Region: "us-east-1", Status: model.StatusRunning, InstanceID: inst.InstanceID}
	server.WithDefaults()
	require.NoError(t, st.SaveServer(server))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/servers/srv1/pin", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var pinned model.Server
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pinned))
	assert.True(t, pinned.HasPinnedIP())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/servers/srv1/unpin", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateServerRejectsUnknownGame(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := strings.NewReader(`{"game":"not-a-real-game","region":"us-east-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/servers", body)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
