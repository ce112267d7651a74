package victim

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

// Handler handles victim HTTP requests
type Handler struct {
	repo Repository
}

// NewHandler creates a new victim handler
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes returns the victim routes. Administrators manage users, not case
// data, so every route here is limited to the case-facing roles.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRoles(auth.RoleGeneralCoordinator, auth.RoleAreaCoordinator, auth.RoleOperative))

	r.Get("/", h.Search)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)

	return r
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var v Victim
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if err := v.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Create(r.Context(), &v); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid victim id"))
		return
	}

	var v Victim
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	v.ID = id
	if err := v.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Update(r.Context(), &v); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, apperrors.BadRequest("invalid victim id"))
		return
	}
	v, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	victims, err := h.repo.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	if victims == nil {
		victims = []*Victim{}
	}
	writeJSON(w, http.StatusOK, victims)
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
