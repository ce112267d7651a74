package victim

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/cavim/platform/internal/shared/database"
	apperrors "github.com/cavim/platform/internal/shared/errors"
)

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a new postgres victim repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const victimColumns = `id, nombre, COALESCE(documento, ''), fecha_nacimiento, COALESCE(telefono, ''), COALESCE(direccion, ''), COALESCE(procedencia, ''), municipio_id, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, v *Victim) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO victimas (nombre, documento, fecha_nacimiento, telefono, direccion, procedencia, municipio_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		v.Name, v.Document, v.BirthDate, v.Phone, v.Address, v.Origin, v.MunicipalityID,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create victim")
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, v *Victim) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE victimas
		SET nombre = $2, documento = $3, fecha_nacimiento = $4, telefono = $5,
		    direccion = $6, procedencia = $7, municipio_id = $8, updated_at = now()
		WHERE id = $1`,
		v.ID, v.Name, v.Document, v.BirthDate, v.Phone, v.Address, v.Origin, v.MunicipalityID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update victim")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("victim", strconv.FormatInt(v.ID, 10))
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*Victim, error) {
	v := &Victim{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT `+victimColumns+`
		FROM victimas
		WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.Name, &v.Document, &v.BirthDate, &v.Phone, &v.Address, &v.Origin, &v.MunicipalityID, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("victim", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return v, nil
}

func (r *PostgresRepository) Search(ctx context.Context, query string) ([]*Victim, error) {
	sql := `SELECT ` + victimColumns + ` FROM victimas`
	args := []interface{}{}
	if query != "" {
		sql += ` WHERE nombre ILIKE '%' || $1 || '%' OR documento ILIKE '%' || $1 || '%'`
		args = append(args, query)
	}
	sql += ` ORDER BY created_at DESC LIMIT 200`

	rows, err := r.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	defer rows.Close()

	var victims []*Victim
	for rows.Next() {
		v := &Victim{}
		if err := rows.Scan(&v.ID, &v.Name, &v.Document, &v.BirthDate, &v.Phone, &v.Address, &v.Origin, &v.MunicipalityID, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, apperrors.Internal(err)
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal(err)
	}
	return victims, nil
}
