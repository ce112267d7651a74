package domain

import (
	"time"

	"github.com/cavim/platform/internal/shared/auth"
	"github.com/cavim/platform/internal/shared/errors"
)

// CaseStatus is the closed set of lifecycle states. The Spanish values are
// the stored and wire representation.
type CaseStatus string

const (
	StatusDraft      CaseStatus = "borrador"
	StatusPending    CaseStatus = "pendiente"
	StatusInProgress CaseStatus = "en_progreso"
	StatusValidated  CaseStatus = "validado"
	// StatusSent is a legacy alias target of the approve event, kept for
	// compatibility with historical data. It behaves exactly like
	// StatusValidated.
	StatusSent      CaseStatus = "enviado"
	StatusCompleted CaseStatus = "completado"
)

// Valid reports whether s is one of the defined states.
func (s CaseStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusInProgress, StatusValidated, StatusSent, StatusCompleted:
		return true
	}
	return false
}

// Event identifies a lifecycle transition request.
type Event string

const (
	EventSubmit    Event = "enviar_revision"
	EventApprove   Event = "aprobar"
	EventReturn    Event = "devolver"
	EventStartWork Event = "iniciar_trabajo"
	EventComplete  Event = "completar"
)

// Transition is one row of the lifecycle table: the only mechanism allowed
// to change a case's estado.
type Transition struct {
	From  CaseStatus
	Event Event
	Actor auth.Role
	To    CaseStatus
}

// transitions is the complete lifecycle table. Approve appears twice
// because the legacy path targets enviado instead of validado; both are
// the same event with a different recorded state.
var transitions = []Transition{
	{StatusDraft, EventSubmit, auth.RoleOperative, StatusPending},
	{StatusPending, EventApprove, auth.RoleAreaCoordinator, StatusValidated},
	{StatusPending, EventApprove, auth.RoleAreaCoordinator, StatusSent},
	{StatusPending, EventReturn, auth.RoleAreaCoordinator, StatusDraft},
	{StatusValidated, EventStartWork, auth.RoleAreaCoordinator, StatusInProgress},
	{StatusSent, EventStartWork, auth.RoleAreaCoordinator, StatusInProgress},
	{StatusInProgress, EventComplete, auth.RoleAreaCoordinator, StatusCompleted},
}

// requiredRole returns the actor role an event demands, independent of the
// current state. Role mismatches must surface as authorization failures,
// not state failures, so this lookup happens before any state check.
func requiredRole(event Event) (auth.Role, bool) {
	for _, t := range transitions {
		if t.Event == event {
			return t.Actor, true
		}
	}
	return 0, false
}

// Case is the aggregate root for one victim-service intervention.
type Case struct {
	ID        int64      `json:"id"`
	VictimaID int64      `json:"victima_id"`
	AreaID    int64      `json:"area_id"`
	Status    CaseStatus `json:"estado"`
	CreatedBy int64      `json:"creado_por"`

	// Intake fields, editable only in borrador.
	Motive    string `json:"motivo"`
	Residence string `json:"residencia"`
	Phone     string `json:"telefono"`
	RiskNotes string `json:"notas_riesgo"`

	// Multi-valued intake selections (catalog ids: violence types,
	// aggression means, referrals, risk situations).
	Selections []int64 `json:"selecciones"`

	Aggressors []Aggressor `json:"agresores"`
	Children   []Child     `json:"hijos"`

	// ReturnReason is the detalle of the most recent coordination return,
	// surfaced to the operative. Populated on read, never stored on the
	// case row itself.
	ReturnReason string `json:"motivo_devolucion,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry is one immutable audit-trail record of a state transition.
type HistoryEntry struct {
	ID                 int64      `json:"id"`
	CaseID             int64      `json:"caso_id"`
	FromStatus         CaseStatus `json:"estado_desde"`
	ToStatus           CaseStatus `json:"estado_hasta"`
	Detail             string     `json:"detalle"`
	CoordinationReturn bool       `json:"es_devolucion_coordinacion"`
	ActorID            int64      `json:"actor_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// NewCase creates a case in borrador for the given victim and area.
func NewCase(victimaID, areaID, createdBy int64) (*Case, error) {
	if victimaID == 0 {
		return nil, errors.Validation("validation failed", map[string]string{
			"victima_id": "victim is required",
		})
	}
	if areaID == 0 {
		return nil, errors.Validation("validation failed", map[string]string{
			"area_id": "area is required",
		})
	}

	now := time.Now()
	return &Case{
		VictimaID: victimaID,
		AreaID:    areaID,
		Status:    StatusDraft,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Editable reports whether intake fields may still change.
func (c *Case) Editable() bool {
	return c.Status == StatusDraft
}

// AuthorizeEdit checks that the actor may modify the case's intake fields.
func (c *Case) AuthorizeEdit(actor *auth.User) error {
	if actor.Role != auth.RoleOperative || !actor.CanActOnArea(c.AreaID) {
		return errors.Forbidden("no access to this area's cases")
	}
	if !c.Editable() {
		return errors.InvalidTransition(string(c.Status), "editar")
	}
	return nil
}

// AuthorizeDelete checks that the actor may remove the case. Only drafts
// are deletable; a completed case is retained permanently.
func (c *Case) AuthorizeDelete(actor *auth.User) error {
	if actor.Role != auth.RoleOperative || !actor.CanActOnArea(c.AreaID) {
		return errors.Forbidden("no access to this area's cases")
	}
	if c.Status != StatusDraft {
		return errors.InvalidTransition(string(c.Status), "eliminar")
	}
	return nil
}

// apply is the single code path that moves a case between states. It
// validates actor role and area first, then the state precondition, and on
// success mutates the in-memory case and returns the history entry the
// repository must append atomically with the state write.
func (c *Case) apply(event Event, to CaseStatus, actor *auth.User, detail string, coordinationReturn bool) (*HistoryEntry, error) {
	role, ok := requiredRole(event)
	if !ok {
		return nil, errors.BadRequest("unknown lifecycle event")
	}
	if actor.Role != role {
		return nil, errors.Forbidden("role not allowed to perform this transition")
	}
	if !actor.CanActOnArea(c.AreaID) {
		return nil, errors.Forbidden("no access to this area's cases")
	}

	legal := false
	for _, t := range transitions {
		if t.Event == event && t.From == c.Status && t.To == to {
			legal = true
			break
		}
	}
	if !legal {
		return nil, errors.InvalidTransition(string(c.Status), string(event))
	}

	entry := &HistoryEntry{
		CaseID:             c.ID,
		FromStatus:         c.Status,
		ToStatus:           to,
		Detail:             detail,
		CoordinationReturn: coordinationReturn,
		ActorID:            actor.ID,
		CreatedAt:          time.Now(),
	}

	c.Status = to
	c.UpdatedAt = entry.CreatedAt

	return entry, nil
}

// Submit moves a draft to pendiente for coordinator review.
func (c *Case) Submit(actor *auth.User) (*HistoryEntry, error) {
	return c.apply(EventSubmit, StatusPending, actor, "", false)
}

// Approve moves a pending case to validado, or to the legacy enviado state
// when legacySent is set. Both targets admit StartWork afterwards.
func (c *Case) Approve(actor *auth.User, legacySent bool) (*HistoryEntry, error) {
	to := StatusValidated
	if legacySent {
		to = StatusSent
	}
	return c.apply(EventApprove, to, actor, "", false)
}

// Return sends a pending case back to borrador with the coordinator's
// motive. The motive travels in the history entry's detalle; the entry is
// flagged as a coordination return so later lookups never have to guess
// from free text.
func (c *Case) Return(actor *auth.User, motive string) (*HistoryEntry, error) {
	return c.apply(EventReturn, StatusDraft, actor, motive, true)
}

// StartWork moves an approved case (validado or enviado) to en_progreso.
func (c *Case) StartWork(actor *auth.User) (*HistoryEntry, error) {
	return c.apply(EventStartWork, StatusInProgress, actor, "", false)
}

// Complete moves a case in progress to its terminal completado state.
func (c *Case) Complete(actor *auth.User) (*HistoryEntry, error) {
	return c.apply(EventComplete, StatusCompleted, actor, "", false)
}

// Aggressor is a child record owned exclusively by its case.
type Aggressor struct {
	ID       int64  `json:"id"`
	CaseID   int64  `json:"caso_id"`
	Name     string `json:"nombre"`
	Alias    string `json:"alias"`
	Relation string `json:"relacion"`
	Age      *int   `json:"edad,omitempty"`
}

// Child is a children-of-victim record owned exclusively by its case.
type Child struct {
	ID        int64  `json:"id"`
	CaseID    int64  `json:"caso_id"`
	Name      string `json:"nombre"`
	Age       *int   `json:"edad,omitempty"`
	Schooling string `json:"escolaridad"`
}
