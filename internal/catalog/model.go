package catalog

import (
	"context"

	"github.com/cavim/platform/internal/shared/errors"
)

// Known catalog groups. Intake selections reference entries from these.
const (
	GroupViolenceType   = "tipo_violencia"
	GroupAggressionMean = "medio_agresion"
	GroupRiskSituation  = "situacion_riesgo"
	GroupReferral       = "institucion_remision"
	GroupMunicipality   = "municipio"
)

var groups = map[string]bool{
	GroupViolenceType:   true,
	GroupAggressionMean: true,
	GroupRiskSituation:  true,
	GroupReferral:       true,
	GroupMunicipality:   true,
}

// ValidGroup reports whether g names a known catalog group.
func ValidGroup(g string) bool {
	return groups[g]
}

// Entry is one reference-data option inside a catalog group.
type Entry struct {
	ID     int64  `json:"id"`
	Group  string `json:"grupo"`
	Name   string `json:"nombre"`
	Active bool   `json:"activo"`
}

// Validate checks the entry's group and name.
func (e *Entry) Validate() error {
	details := map[string]string{}
	if !ValidGroup(e.Group) {
		details["grupo"] = "unknown catalog group"
	}
	if e.Name == "" {
		details["nombre"] = "name is required"
	}
	if len(details) > 0 {
		return errors.Validation("validation failed", details)
	}
	return nil
}

// Area is a service area. Coordinators and operatives belong to exactly
// one; cases live in exactly one.
type Area struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

// Repository defines reference-data persistence operations.
type Repository interface {
	ListGroup(ctx context.Context, group string, includeInactive bool) ([]*Entry, error)
	Create(ctx context.Context, e *Entry) error
	// SetActive soft-enables or soft-disables an entry. Entries are never
	// deleted: historical cases keep referencing them.
	SetActive(ctx context.Context, id int64, active bool) error

	ListAreas(ctx context.Context) ([]*Area, error)
}
