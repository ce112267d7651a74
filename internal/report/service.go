package report

import (
	"context"
	"strconv"
	"time"

	"github.com/cavim/platform/internal/case/domain"
	"github.com/cavim/platform/internal/shared/database"
	apperrors "github.com/cavim/platform/internal/shared/errors"
)

// Row is one case flattened for reporting: the case joined with its victim
// and area names.
type Row struct {
	CaseID      int64             `json:"caso_id"`
	VictimName  string            `json:"victima"`
	Document    string            `json:"documento"`
	AreaName    string            `json:"area"`
	Status      domain.CaseStatus `json:"estado"`
	Motive      string            `json:"motivo"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Transitions int               `json:"transiciones"`
}

// Filter narrows report queries. Zero values mean "no constraint".
type Filter struct {
	AreaID int64
	Status domain.CaseStatus
	From   *time.Time
	To     *time.Time
}

// Service produces report rows from the case store.
type Service struct {
	db *database.DB
}

// NewService creates a new report service
func NewService(db *database.DB) *Service {
	return &Service{db: db}
}

// Preview returns report rows for any state, scoped by the filter.
func (s *Service) Preview(ctx context.Context, filter Filter) ([]Row, error) {
	return s.query(ctx, filter)
}

// Completed returns rows for completed cases only. The Excel export is
// restricted to closed work so numbers in circulation never shift.
func (s *Service) Completed(ctx context.Context, filter Filter) ([]Row, error) {
	filter.Status = domain.StatusCompleted
	return s.query(ctx, filter)
}

func (s *Service) query(ctx context.Context, filter Filter) ([]Row, error) {
	sql := `
		SELECT c.id, v.nombre, COALESCE(v.documento, ''), a.nombre, c.estado, c.motivo,
		       c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM historial h WHERE h.caso_id = c.id)
		FROM casos c
		JOIN victimas v ON v.id = c.victima_id
		JOIN areas a ON a.id = c.area_id
		WHERE 1=1`
	args := []interface{}{}

	if filter.AreaID != 0 {
		args = append(args, filter.AreaID)
		sql += ` AND c.area_id = $` + itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		sql += ` AND c.estado = $` + itoa(len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		sql += ` AND c.created_at >= $` + itoa(len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		sql += ` AND c.created_at < $` + itoa(len(args))
	}
	sql += ` ORDER BY c.created_at DESC`

	rows, err := s.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		var estado string
		if err := rows.Scan(
			&row.CaseID, &row.VictimName, &row.Document, &row.AreaName, &estado,
			&row.Motive, &row.CreatedAt, &row.UpdatedAt, &row.Transitions,
		); err != nil {
			return nil, apperrors.Internal(err)
		}
		row.Status = domain.CaseStatus(estado)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal(err)
	}
	return out, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
