package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/api/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withUser injects an authenticated user into the request context the way
// the auth middleware does.
func withUser(r *http.Request, userID uuid.UUID) *http.Request {
	ctx := context.WithValue(r.Context(), shared.UserIDContextKey, userID)
	return r.WithContext(ctx)
}

// newHandlerRouter mounts a handler's routes the way the server router does,
// so chi URL params resolve.
func newHandlerRouter(h *ImaginationHandler) chi.Router {
	r := chi.NewRouter()
	r.Get("/v1/imagination/engines", h.Engines)
	r.Get("/v1/imagination/{id}", h.Get)
	r.Delete("/v1/imagination/{id}", h.Cancel)
	return r
}

func TestEnginesCatalog(t *testing.T) {
	t.Parallel()

	h := NewImaginationHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/imagination/engines", nil)
	rec := httptest.NewRecorder()

	newHandlerRouter(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []EngineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 7)

	seen := map[string]bool{}
	for _, e := range got {
		seen[e.Engine] = true
		assert.NotEmpty(t, e.ThumbnailURL)
		assert.Equal(t, 0.1, e.Price)
	}
	assert.True(t, seen["midjourney"])
	assert.True(t, seen["imagen"])
	assert.True(t, seen["flux_1.1"])
	assert.True(t, seen["dalle"])
}

func TestBackgroundRemovalEnginesCatalog(t *testing.T) {
	t.Parallel()

	h := NewBackgroundRemovalHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/background-removal/engines", nil)
	rec := httptest.NewRecorder()

	r := chi.NewRouter()
	r.Get("/v1/background-removal/engines", h.Engines)
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []EngineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
}

func TestGetRejectsUnauthenticatedRequest(t *testing.T) {
	t.Parallel()

	h := NewImaginationHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/imagination/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()

	newHandlerRouter(h).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetRejectsMalformedID(t *testing.T) {
	t.Parallel()

	h := NewImaginationHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/imagination/not-a-uuid", nil)
	req = withUser(req, uuid.New())
	rec := httptest.NewRecorder()

	newHandlerRouter(h).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid imagination ID")
}

func TestCancelRejectsMalformedID(t *testing.T) {
	t.Parallel()

	h := NewImaginationHandler(nil)
	req := httptest.NewRequest(http.MethodDelete, "/v1/imagination/not-a-uuid", nil)
	req = withUser(req, uuid.New())
	rec := httptest.NewRecorder()

	newHandlerRouter(h).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
