package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pixforge/imagine-api/internal/api/middleware"
	"github.com/pixforge/imagine-api/internal/api/shared"
	"github.com/pixforge/imagine-api/internal/domain"
	"github.com/pixforge/imagine-api/internal/imagination"
)

// CreateBulkRequest represents the request body for a fan-out request.
// AspectRatios and Engines are paired positionally; missing ratios default
// to 1:1.
type CreateBulkRequest struct {
	Prompt        string              `json:"prompt"         validate:"required,min=1"`
	Delineation   string              `json:"delineation"`
	Context       []domain.ContextRow `json:"context"`
	EnhancePrompt bool                `json:"enhance_prompt"`
	AspectRatios  []string            `json:"aspect_ratios"`
	Engines       []string            `json:"engines"        validate:"required,min=1"`
}

// BulkResponse represents the response data for a bulk aggregate.
type BulkResponse struct {
	ID             string               `json:"id"`
	UserID         string               `json:"user_id"`
	Prompt         string               `json:"prompt,omitempty"`
	Combinations   []domain.Combination `json:"combinations"`
	TaskStatus     string               `json:"task_status"`
	TotalTasks     int                  `json:"total_tasks"`
	TotalCompleted int                  `json:"total_completed"`
	TotalFailed    int                  `json:"total_failed"`
	Results        []domain.BulkResult  `json:"results,omitempty"`
	Errors         []domain.BulkError   `json:"errors,omitempty"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// BulkHandler handles bulk imagination HTTP requests.
type BulkHandler struct {
	service   *imagination.BulkService
	validator *validator.Validate
}

// NewBulkHandler creates a new BulkHandler.
func NewBulkHandler(service *imagination.BulkService) *BulkHandler {
	return &BulkHandler{
		service:   service,
		validator: validator.New(),
	}
}

// Create handles POST /v1/imagination/bulk/ requests.
func (h *BulkHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateBulkRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	engines := make([]domain.Engine, 0, len(req.Engines))
	for _, e := range req.Engines {
		engines = append(engines, domain.Engine(e))
	}

	bulk, err := h.service.CreateBulk(r.Context(), imagination.BulkRequest{
		UserID:        userID,
		Prompt:        req.Prompt,
		Delineation:   req.Delineation,
		Context:       req.Context,
		EnhancePrompt: req.EnhancePrompt,
		AspectRatios:  req.AspectRatios,
		Engines:       engines,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, bulkToResponse(bulk))
}

// Get handles GET /v1/imagination/bulk/{id} requests.
func (h *BulkHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid bulk ID")
		return
	}

	bulk, err := h.service.GetBulk(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	if bulk.UserID != userID {
		shared.RespondWithError(w, r, http.StatusNotFound, "Resource not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, bulkToResponse(bulk))
}

// bulkToResponse converts a domain.BulkImagination to a BulkResponse.
func bulkToResponse(bulk *domain.BulkImagination) BulkResponse {
	return BulkResponse{
		ID:             bulk.ID.String(),
		UserID:         bulk.UserID.String(),
		Prompt:         bulk.Prompt,
		Combinations:   bulk.Combinations,
		TaskStatus:     string(bulk.TaskStatus),
		TotalTasks:     bulk.TotalTasks,
		TotalCompleted: bulk.TotalCompleted,
		TotalFailed:    bulk.TotalFailed,
		Results:        bulk.Results,
		Errors:         bulk.Errors,
		CompletedAt:    bulk.CompletedAt,
		CreatedAt:      bulk.CreatedAt,
		UpdatedAt:      bulk.UpdatedAt,
	}
}
