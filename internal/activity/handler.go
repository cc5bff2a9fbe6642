package activity

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dotsapp/dots/pkg/middleware"
	"github.com/dotsapp/dots/pkg/response"
)

// Handler handles HTTP requests for the activity feed
type Handler struct {
	service *Service
}

// NewHandler creates a new activity handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for activity endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/unread-count", h.UnreadCount)
	r.Post("/{id}/read", h.MarkRead)
	r.Post("/read-all", h.MarkAllRead)

	return r
}

// List handles GET /activities
// @Summary      List activities
// @Description  List the authenticated user's activity feed, newest first
// @Tags         activities
// @Produce      json
// @Param        page query int false "Page number"
// @Param        per_page query int false "Items per page"
// @Param        unread query bool false "Only unread activities"
// @Success      200 {object} response.APIResponse{data=[]Activity}
// @Router       /activities [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	unreadOnly := r.URL.Query().Get("unread") == "true"

	activities, total, err := h.service.ListByReceiver(r.Context(), userID, page, perPage, unreadOnly)
	if err != nil {
		response.InternalError(w, "Failed to list activities")
		return
	}

	response.JSONWithMeta(w, http.StatusOK, activities, &response.Meta{
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}

// UnreadCount handles GET /activities/unread-count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		response.InternalError(w, "Failed to count activities")
		return
	}

	response.JSON(w, http.StatusOK, map[string]int{"unread": count})
}

// MarkRead handles POST /activities/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid activity ID")
		return
	}

	if err := h.service.MarkRead(r.Context(), id, userID); err != nil {
		if errors.Is(err, ErrActivityNotFound) {
			response.NotFound(w, "Activity not found")
			return
		}
		response.InternalError(w, "Failed to mark activity read")
		return
	}

	response.JSON(w, http.StatusOK, map[string]bool{"read": true})
}

// MarkAllRead handles POST /activities/read-all
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	if err := h.service.MarkAllRead(r.Context(), userID); err != nil {
		response.InternalError(w, "Failed to mark activities read")
		return
	}

	response.JSON(w, http.StatusOK, map[string]bool{"read": true})
}
