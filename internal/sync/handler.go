package sync

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dotsapp/dots/pkg/middleware"
	"github.com/dotsapp/dots/pkg/response"
)

// Handler handles HTTP requests for batch synchronization
type Handler struct {
	service *Service
}

// NewHandler creates a new sync handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for sync endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Process)

	return r
}

// Process handles POST /sync
// @Summary      Reconcile an offline batch
// @Description  Merge a client batch of friends, groups, memberships and expenses exactly once per batch id; resubmitting a processed batch returns the original result
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        request body BatchRequest true "Offline batch"
// @Success      200 {object} response.APIResponse{data=BatchResult}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /sync [post]
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	result, err := h.service.Process(r.Context(), actorID, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, result)
}
