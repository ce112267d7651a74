package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cavim/platform/internal/case/domain"
	"github.com/cavim/platform/internal/shared/auth"
	apperrors "github.com/cavim/platform/internal/shared/errors"
	"github.com/cavim/platform/internal/shared/metrics"
)

// Notifier delivers best-effort notices about case events. Failures are
// logged and never block the triggering request.
type Notifier interface {
	CaseReturned(ctx context.Context, c *domain.Case, motive string)
}

// Handler handles case HTTP requests
type Handler struct {
	repo     domain.Repository
	notifier Notifier
}

// NewHandler creates a new case handler
func NewHandler(repo domain.Repository, notifier Notifier) *Handler {
	return &Handler{repo: repo, notifier: notifier}
}

// Routes returns the case routes. Authentication is applied by the caller.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/history", h.History)

		r.Post("/submit", h.Submit)
		r.Post("/approve", h.Approve)
		r.Post("/return", h.Return)
		r.Post("/start", h.StartWork)
		r.Post("/complete", h.Complete)
	})

	return r
}

type caseRequest struct {
	VictimaID  int64              `json:"victima_id"`
	Motive     string             `json:"motivo"`
	Residence  string             `json:"residencia"`
	Phone      string             `json:"telefono"`
	RiskNotes  string             `json:"notas_riesgo"`
	Selections []int64            `json:"selecciones"`
	Aggressors []domain.Aggressor `json:"agresores"`
	Children   []domain.Child     `json:"hijos"`
}

type caseResponse struct {
	*domain.Case
	Reused bool `json:"reused,omitempty"`
}

// Create opens a draft for a victim, or returns the victim's existing open
// case. Only operatives create cases, always in their own area.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user.Role != auth.RoleOperative {
		writeError(w, apperrors.Forbidden("only operatives create cases"))
		return
	}

	var req caseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	c, err := domain.NewCase(req.VictimaID, user.AreaID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	c.Motive = req.Motive
	c.Residence = req.Residence
	c.Phone = req.Phone
	c.RiskNotes = req.RiskNotes
	c.Selections = req.Selections
	c.Aggressors = req.Aggressors
	c.Children = req.Children

	reused, err := h.repo.CreateOrReuse(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordCaseCreated(strconv.FormatInt(c.AreaID, 10), reused)

	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	writeJSON(w, status, caseResponse{Case: c, Reused: reused})
}

// Get returns one case. The general coordinator sees every area;
// area-scoped roles see their own.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.authorizeRead(r, c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// List returns cases visible to the caller, optionally filtered by estado
// and victima_id.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	filter := domain.Filter{}
	switch {
	case user.Role == auth.RoleGeneralCoordinator:
		// Cross-area visibility; an explicit area filter still applies.
		if s := r.URL.Query().Get("area_id"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				writeError(w, apperrors.BadRequest("invalid area_id"))
				return
			}
			filter.AreaID = id
		}
	case user.Role.AreaScoped():
		filter.AreaID = user.AreaID
	default:
		writeError(w, apperrors.Forbidden("no access to cases"))
		return
	}

	if s := r.URL.Query().Get("estado"); s != "" {
		status := domain.CaseStatus(s)
		if !status.Valid() {
			writeError(w, apperrors.BadRequest("invalid estado filter"))
			return
		}
		filter.Status = status
	}
	if s := r.URL.Query().Get("victima_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, apperrors.BadRequest("invalid victima_id"))
			return
		}
		filter.VictimaID = id
	}

	cases, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if cases == nil {
		cases = []*domain.Case{}
	}
	writeJSON(w, http.StatusOK, cases)
}

// Update rewrites a draft's intake fields and owned records.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.AuthorizeEdit(user); err != nil {
		writeError(w, err)
		return
	}

	var req caseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}

	c.Motive = req.Motive
	c.Residence = req.Residence
	c.Phone = req.Phone
	c.RiskNotes = req.RiskNotes
	c.Selections = req.Selections
	c.Aggressors = req.Aggressors
	c.Children = req.Children

	if err := h.repo.UpdateDraft(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete removes a draft. Anything past borrador is retained.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.AuthorizeDelete(user); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.Delete(r.Context(), c.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// History returns the case's append-only audit trail.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.authorizeRead(r, c); err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.repo.History(r.Context(), c.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*domain.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Submit sends a draft to coordinator review.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(c *domain.Case, user *auth.User) (*domain.HistoryEntry, error) {
		return c.Submit(user)
	})
}

// Approve validates a pending case. The legacy path ?target=enviado records
// the enviado state instead; both behave identically afterwards.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target != "" && target != string(domain.StatusSent) && target != string(domain.StatusValidated) {
		writeError(w, apperrors.BadRequest("invalid approve target"))
		return
	}
	legacySent := target == string(domain.StatusSent)

	h.transition(w, r, func(c *domain.Case, user *auth.User) (*domain.HistoryEntry, error) {
		return c.Approve(user, legacySent)
	})
}

type returnRequest struct {
	Motive string `json:"motivo"`
}

// Return sends a pending case back to its operative with a mandatory
// motive, and notifies the case creator best-effort.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.Motive == "" {
		writeError(w, apperrors.Validation("validation failed", map[string]string{
			"motivo": "return motive is required",
		}))
		return
	}

	h.transition(w, r, func(c *domain.Case, user *auth.User) (*domain.HistoryEntry, error) {
		entry, err := c.Return(user, req.Motive)
		if err != nil {
			return nil, err
		}
		return entry, nil
	})
}

// StartWork moves an approved case to en_progreso.
func (h *Handler) StartWork(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(c *domain.Case, user *auth.User) (*domain.HistoryEntry, error) {
		return c.StartWork(user)
	})
}

// Complete closes a case permanently.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(c *domain.Case, user *auth.User) (*domain.HistoryEntry, error) {
		return c.Complete(user)
	})
}

// transition runs the shared load → authorize → apply → persist path for
// every lifecycle endpoint.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(*domain.Case, *auth.User) (*domain.HistoryEntry, error)) {
	user := auth.GetUser(r.Context())

	c, err := h.load(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entry, err := fn(c, user)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.ApplyTransition(r.Context(), entry); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && errors.Is(appErr, apperrors.ErrStaleState) {
			metrics.RecordTransitionConflict()
		}
		writeError(w, err)
		return
	}

	metrics.RecordCaseTransition(string(entry.FromStatus), string(entry.ToStatus))
	metrics.RecordHistoryEntry()

	if entry.CoordinationReturn && h.notifier != nil {
		h.notifier.CaseReturned(r.Context(), c, entry.Detail)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caso":      c,
		"historial": entry,
	})
}

func (h *Handler) load(r *http.Request) (*domain.Case, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil, apperrors.BadRequest("invalid case id")
	}
	return h.repo.GetByID(r.Context(), id)
}

// authorizeRead gates visibility: general coordinator reads everything,
// area roles read their own area, administrators have no case access.
func (h *Handler) authorizeRead(r *http.Request, c *domain.Case) error {
	user := auth.GetUser(r.Context())
	if user.Role == auth.RoleGeneralCoordinator {
		return nil
	}
	if user.CanActOnArea(c.AreaID) {
		return nil
	}
	return apperrors.Forbidden("no access to this area's cases")
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
