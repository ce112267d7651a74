package catalog

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cavim/platform/internal/shared/auth"
	apperrors "github.com/cavim/platform/internal/shared/errors"
)

// Handler handles reference-data HTTP requests
type Handler struct {
	repo Repository
}

// NewHandler creates a new catalog handler
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes returns the catalog routes. Reads are open to every authenticated
// role; writes belong to the general coordinator.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{group}", h.ListGroup)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRoles(auth.RoleGeneralCoordinator))
		r.Post("/", h.Create)
		r.Put("/{id}/active", h.SetActive)
	})

	return r
}

// AreaRoutes returns the area listing routes.
func (h *Handler) AreaRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListAreas)
	return r
}

func (h *Handler) ListGroup(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	if !ValidGroup(group) {
		writeError(w, apperrors.NotFound("catalog", group))
		return
	}

	user := auth.GetUser(r.Context())
	includeInactive := r.URL.Query().Get("todos") == "true" && user.Role == auth.RoleGeneralCoordinator

	entries, err := h.repo.ListGroup(r.Context(), group, includeInactive)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var e Entry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if err := e.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Create(r.Context(), &e); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid catalog entry id"))
		return
	}

	var req struct {
		Active bool `json:"activo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	if err := h.repo.SetActive(r.Context(), id, req.Active); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.repo.ListAreas(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if areas == nil {
		areas = []*Area{}
	}
	writeJSON(w, http.StatusOK, areas)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.HTTPStatus, map[string]interface{}{"error": appErr})
		return
	}
	log.Printf("unhandled error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error": apperrors.Internal(err),
	})
}
