package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/api/middleware"
	"github.com/pixforge/imagine-api/internal/api/shared"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/engine"
	"github.com/pixforge/imagine-api/internal/imagination"
)

// CreateBackgroundRemovalRequest represents the request body for a new
// background-removal task.
type CreateBackgroundRemovalRequest struct {
	ImageURL string `json:"image_url" validate:"required,url"`
	Engine   string `json:"engine"    validate:"required"`
}

// BackgroundRemovalHandler handles background-removal HTTP requests.
type BackgroundRemovalHandler struct {
	service   *imagination.Service
	validator *validator.Validate
}

// NewBackgroundRemovalHandler creates a new BackgroundRemovalHandler.
func NewBackgroundRemovalHandler(service *imagination.Service) *BackgroundRemovalHandler {
	return &BackgroundRemovalHandler{
		service:   service,
		validator: validator.New(),
	}
}

// Create handles POST /v1/background-removal/ requests.
func (h *BackgroundRemovalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateBackgroundRemovalRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.service.CreateBackgroundRemoval(r.Context(), imagination.BackgroundRemovalRequest{
		UserID:   userID,
		Engine:   domain.Engine(req.Engine),
		ImageURL: req.ImageURL,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, imaginationToResponse(task))
}

// Engines handles GET /v1/background-removal/engines requests.
func (h *BackgroundRemovalHandler) Engines(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, catalogToResponse(engine.BackgroundRemovalCatalog()))
}
