package catalog

import (
	"context"
	"strconv"

	"github.com/cavim/platform/internal/shared/database"
	apperrors "github.com/cavim/platform/internal/shared/errors"
)

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a new postgres catalog repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListGroup(ctx context.Context, group string, includeInactive bool) ([]*Entry, error) {
	sql := `SELECT id, grupo, nombre, activo FROM catalogos WHERE grupo = $1`
	if !includeInactive {
		sql += ` AND activo`
	}
	sql += ` ORDER BY nombre`

	rows, err := r.db.Pool.Query(ctx, sql, group)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Group, &e.Name, &e.Active); err != nil {
			return nil, apperrors.Internal(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal(err)
	}
	return entries, nil
}

func (r *PostgresRepository) Create(ctx context.Context, e *Entry) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO catalogos (grupo, nombre, activo)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (grupo, nombre) DO UPDATE SET activo = TRUE
		RETURNING id, activo`,
		e.Group, e.Name,
	).Scan(&e.ID, &e.Active)
	if err != nil {
		return apperrors.Wrap(err, "failed to create catalog entry")
	}
	return nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE catalogos SET activo = $2 WHERE id = $1`, id, active)
	if err != nil {
		return apperrors.Wrap(err, "failed to update catalog entry")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("catalog entry", strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *PostgresRepository) ListAreas(ctx context.Context) ([]*Area, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, nombre FROM areas ORDER BY id`)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	defer rows.Close()

	var areas []*Area
	for rows.Next() {
		a := &Area{}
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, apperrors.Internal(err)
		}
		areas = append(areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal(err)
	}
	return areas, nil
}
