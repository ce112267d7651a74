package victim

import (
	"context"
	"time"

	"github.com/cavim/platform/internal/shared/errors"
)

// Victim is the person record cases attach to. Victims exist independently
// of any case so a returning victim keeps one identity across episodes.
type Victim struct {
	ID             int64      `json:"id"`
	Name           string     `json:"nombre"`
	Document       string     `json:"documento"`
	BirthDate      *time.Time `json:"fecha_nacimiento,omitempty"`
	Phone          string     `json:"telefono"`
	Address        string     `json:"direccion"`
	Origin         string     `json:"procedencia"`
	MunicipalityID *int64     `json:"municipio_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Validate checks required intake fields.
func (v *Victim) Validate() error {
	details := map[string]string{}
	if v.Name == "" {
		details["nombre"] = "name is required"
	}
	if len(details) > 0 {
		return errors.Validation("validation failed", details)
	}
	return nil
}

// Repository defines victim persistence operations.
type Repository interface {
	Create(ctx context.Context, v *Victim) error
	Update(ctx context.Context, v *Victim) error
	GetByID(ctx context.Context, id int64) (*Victim, error)
	// Search matches nombre or documento, newest first. Empty query lists
	// everything.
	Search(ctx context.Context, query string) ([]*Victim, error)
}
