package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cavim/platform/internal/case/domain"
	"github.com/cavim/platform/internal/shared/auth"
	apperrors "github.com/cavim/platform/internal/shared/errors"
	"github.com/cavim/platform/internal/shared/metrics"
)

// Handler handles report HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates a new report handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the report routes, limited to coordinators. The general
// coordinator spans areas; area coordinators report on their own.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRoles(auth.RoleGeneralCoordinator, auth.RoleAreaCoordinator))

	r.Get("/cases", h.Preview)
	r.Get("/cases/export", h.Export)

	return r
}

// Preview returns report rows in any state as JSON.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	filter, err := h.buildFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := h.service.Preview(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// Export streams completed cases as a spreadsheet.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := h.buildFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := h.service.Completed(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	buf, err := BuildExcel(rows)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordReportExport()

	filename := fmt.Sprintf("casos_completados_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("failed to stream report: %v", err)
	}
}

// buildFilter scopes the query to the caller's visibility and parses the
// optional estado and date-range parameters.
func (h *Handler) buildFilter(r *http.Request) (Filter, error) {
	user := auth.GetUser(r.Context())

	filter := Filter{}
	if user.Role == auth.RoleAreaCoordinator {
		filter.AreaID = user.AreaID
	} else if s := r.URL.Query().Get("area_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Filter{}, apperrors.BadRequest("invalid area_id")
		}
		filter.AreaID = id
	}

	if s := r.URL.Query().Get("estado"); s != "" {
		status := domain.CaseStatus(s)
		if !status.Valid() {
			return Filter{}, apperrors.BadRequest("invalid estado filter")
		}
		filter.Status = status
	}

	for param, dest := range map[string]**time.Time{"desde": &filter.From, "hasta": &filter.To} {
		if s := r.URL.Query().Get(param); s != "" {
			t, err := time.Parse("2006-01-02", s)
			if err != nil {
				return Filter{}, apperrors.BadRequest("invalid " + param + " date, expected YYYY-MM-DD")
			}
			*dest = &t
		}
	}

	return filter, nil
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
