// Package api contains the HTTP handlers for the imagination service.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/api/middleware"
	"github.com/pixforge/imagine-api/internal/api/shared"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/engine"
	"github.com/pixforge/imagine-api/internal/imagination"
)

// CreateImaginationRequest represents the request body for creating a new
// text-to-image task.
type CreateImaginationRequest struct {
	Prompt        string              `json:"prompt"         validate:"required,min=1"`
	Delineation   string              `json:"delineation"`
	Context       []domain.ContextRow `json:"context"`
	EnhancePrompt bool                `json:"enhance_prompt"`
	Engine        string              `json:"engine"         validate:"required"`
	AspectRatio   string              `json:"aspect_ratio"   validate:"required"`
}

// ImaginationResponse represents the response data for a task.
type ImaginationResponse struct {
	ID          string               `json:"id"`
	UserID      string               `json:"user_id"`
	Kind        string               `json:"kind"`
	Prompt      string               `json:"prompt,omitempty"`
	ImageURL    string               `json:"image_url,omitempty"`
	Engine      string               `json:"engine"`
	AspectRatio string               `json:"aspect_ratio,omitempty"`
	Status      string               `json:"status"`
	TaskStatus  string               `json:"task_status"`
	Progress    int                  `json:"progress"`
	Error       string               `json:"error,omitempty"`
	Results     []domain.ImageResult `json:"results,omitempty"`
	BulkID      *string              `json:"bulk_id,omitempty"`
	Reports     []string             `json:"reports,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// EngineResponse is one catalog entry.
type EngineResponse struct {
	Engine       string  `json:"engine"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Price        float64 `json:"price"`
}

// ImaginationHandler handles imagination-related HTTP requests.
type ImaginationHandler struct {
	service   *imagination.Service
	validator *validator.Validate
}

// NewImaginationHandler creates a new ImaginationHandler.
func NewImaginationHandler(service *imagination.Service) *ImaginationHandler {
	return &ImaginationHandler{
		service:   service,
		validator: validator.New(),
	}
}

// Create handles POST /v1/imagination/ requests.
func (h *ImaginationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateImaginationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.service.Create(r.Context(), imagination.CreateRequest{
		UserID:        userID,
		Prompt:        req.Prompt,
		Delineation:   req.Delineation,
		Context:       req.Context,
		EnhancePrompt: req.EnhancePrompt,
		Engine:        domain.Engine(req.Engine),
		AspectRatio:   req.AspectRatio,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	// Processing continues asynchronously.
	shared.RespondWithJSON(w, r, http.StatusAccepted, imaginationToResponse(task))
}

// Get handles GET /v1/imagination/{id} requests.
func (h *ImaginationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid imagination ID")
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	if task.UserID != userID {
		shared.RespondWithError(w, r, http.StatusNotFound, "Resource not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, imaginationToResponse(task))
}

// List handles GET /v1/imagination/ requests.
func (h *ImaginationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	tasks, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	responses := make([]ImaginationResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, imaginationToResponse(task))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// Cancel handles DELETE /v1/imagination/{id} requests.
func (h *ImaginationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid imagination ID")
		return
	}

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	if task.UserID != userID {
		shared.RespondWithError(w, r, http.StatusNotFound, "Resource not found")
		return
	}

	task, err = h.service.Cancel(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, imaginationToResponse(task))
}

// Webhook handles POST /v1/imagination/{id}/webhook requests from providers.
// The payload is ignored; the provider is re-queried for authoritative state.
func (h *ImaginationHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid imagination ID")
		return
	}

	if err := h.service.HandleWebhook(r.Context(), id); err != nil {
		slog.Error("webhook reconciliation failed",
			"imagination_id", id,
			"error", err)
		// The provider gets a success either way so it does not retry a
		// callback we will reconcile by polling anyway.
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Engines handles GET /v1/imagination/engines requests.
func (h *ImaginationHandler) Engines(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, catalogToResponse(engine.Catalog()))
}

func catalogToResponse(catalog []engine.Metadata) []EngineResponse {
	out := make([]EngineResponse, 0, len(catalog))
	for _, m := range catalog {
		out = append(out, EngineResponse{
			Engine:       string(m.Engine),
			ThumbnailURL: m.ThumbnailURL,
			Price:        m.Price,
		})
	}
	return out
}

// imaginationToResponse converts a domain.Imagination to an
// ImaginationResponse.
func imaginationToResponse(task *domain.Imagination) ImaginationResponse {
	resp := ImaginationResponse{
		ID:          task.ID.String(),
		UserID:      task.UserID.String(),
		Kind:        string(task.Kind),
		Prompt:      task.Prompt,
		ImageURL:    task.ImageURL,
		Engine:      string(task.Engine),
		AspectRatio: task.AspectRatio,
		Status:      string(task.Status),
		TaskStatus:  string(task.TaskStatus),
		Progress:    task.Progress,
		Error:       task.Error,
		Results:     task.Results,
		Reports:     task.Reports,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
	if task.BulkID != nil {
		id := task.BulkID.String()
		resp.BulkID = &id
	}
	return resp
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
