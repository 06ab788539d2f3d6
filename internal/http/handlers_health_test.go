package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planlab/evalplan-api/internal/data/memstore"
	"github.com/planlab/evalplan-api/internal/service"
)

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

// unhealthyStore fails health checks while delegating everything else.
type unhealthyStore struct {
	*memstore.JobStore
}

func (u *unhealthyStore) Health(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestHealth_StoreUnavailable(t *testing.T) {
	svc, err := service.NewJobService(service.JobServiceOptions{
		Repo: &unhealthyStore{JobStore: memstore.New(nil)},
	})
	require.NoError(t, err)
	router := NewRouter(RouterServices{Jobs: svc})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp["status"])
	assert.Contains(t, resp["message"], "connection refused")
}

func TestHealth_Head(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodHead, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
