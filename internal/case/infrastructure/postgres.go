package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/cavim/platform/internal/case/domain"
	"github.com/cavim/platform/internal/shared/database"
	apperrors "github.com/cavim/platform/internal/shared/errors"
)

// PostgresRepository implements domain.Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a new postgres case repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const caseColumns = `id, victima_id, area_id, estado, creado_por, motivo, residencia, telefono, notas_riesgo, created_at, updated_at`

// CreateOrReuse inserts a draft, or hands back the victim's open case when
// the partial unique index on (victima_id) WHERE estado <> 'completado'
// blocks the insert. Owned records are written in the same transaction.
func (r *PostgresRepository) CreateOrReuse(ctx context.Context, c *domain.Case) (bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, apperrors.Internal(err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO casos (victima_id, area_id, estado, creado_por, motivo, residencia, telefono, notas_riesgo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (victima_id) WHERE estado <> 'completado' DO NOTHING
		RETURNING id, created_at, updated_at`,
		c.VictimaID, c.AreaID, string(c.Status), c.CreatedBy,
		c.Motive, c.Residence, c.Phone, c.RiskNotes,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// Lost to the index: the victim already has an open case.
		existing, err := r.getByVictimOpen(ctx, tx, c.VictimaID)
		if err != nil {
			return false, err
		}
		*c = *existing
		if err := tx.Commit(ctx); err != nil {
			return false, apperrors.Internal(err)
		}
		return true, nil
	}
	if err != nil {
		return false, apperrors.Wrap(err, "failed to create case")
	}

	if err := r.writeOwnedRecords(ctx, tx, c); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, apperrors.Internal(err)
	}
	return false, nil
}

func (r *PostgresRepository) getByVictimOpen(ctx context.Context, tx pgx.Tx, victimaID int64) (*domain.Case, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+caseColumns+`
		FROM casos
		WHERE victima_id = $1 AND estado <> 'completado'`,
		victimaID,
	)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Insert conflicted but the row is gone: a concurrent delete won.
			return nil, apperrors.StaleState("crear")
		}
		return nil, apperrors.Internal(err)
	}
	if err := r.loadOwnedRecords(ctx, tx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetByID loads one case with its selections, aggressors, children and,
// for drafts, the latest coordination-return motive.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Case, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT `+caseColumns+`
		FROM casos
		WHERE id = $1`,
		id,
	)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("case", strconv.FormatInt(id, 10))
		}
		return nil, apperrors.Internal(err)
	}

	if err := r.loadOwnedRecords(ctx, r.db.Pool, c); err != nil {
		return nil, err
	}

	if c.Status == domain.StatusDraft {
		ret, err := r.LatestReturn(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if ret != nil {
			c.ReturnReason = ret.Detail
		}
	}
	return c, nil
}

// List returns cases matching the filter, newest first. Drafts carry the
// motive of their most recent coordination return so listings can show the
// operative why the case came back.
func (r *PostgresRepository) List(ctx context.Context, filter domain.Filter) ([]*domain.Case, error) {
	query := `
		SELECT c.id, c.victima_id, c.area_id, c.estado, c.creado_por,
		       c.motivo, c.residencia, c.telefono, c.notas_riesgo,
		       c.created_at, c.updated_at,
		       COALESCE(CASE WHEN c.estado = 'borrador' THEN h.detalle END, '')
		FROM casos c
		LEFT JOIN LATERAL (
			SELECT detalle
			FROM historial
			WHERE caso_id = c.id AND es_devolucion_coordinacion
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) h ON TRUE
		WHERE 1=1`
	args := []interface{}{}

	if filter.AreaID != 0 {
		args = append(args, filter.AreaID)
		query += fmt.Sprintf(" AND c.area_id = $%d", len(args))
	}
	if filter.VictimaID != 0 {
		args = append(args, filter.VictimaID)
		query += fmt.Sprintf(" AND c.victima_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND c.estado = $%d", len(args))
	}
	query += " ORDER BY c.created_at DESC"

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		c := &domain.Case{}
		var estado string
		if err := rows.Scan(
			&c.ID, &c.VictimaID, &c.AreaID, &estado, &c.CreatedBy,
			&c.Motive, &c.Residence, &c.Phone, &c.RiskNotes,
			&c.CreatedAt, &c.UpdatedAt, &c.ReturnReason,
		); err != nil {
			return nil, apperrors.Internal(err)
		}
		c.Status = domain.CaseStatus(estado)
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal(err)
	}
	return cases, nil
}

// UpdateDraft rewrites intake fields and owned records, conditional on the
// case still being a draft.
func (r *PostgresRepository) UpdateDraft(ctx context.Context, c *domain.Case) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return apperrors.Internal(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE casos
		SET motivo = $2, residencia = $3, telefono = $4, notas_riesgo = $5, updated_at = now()
		WHERE id = $1 AND estado = 'borrador'`,
		c.ID, c.Motive, c.Residence, c.Phone, c.RiskNotes,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update case")
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, c.ID, "editar")
	}

	if err := r.clearOwnedRecords(ctx, tx, c.ID); err != nil {
		return err
	}
	if err := r.writeOwnedRecords(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// Delete removes a draft. Owned records and history go with it via
// ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM casos WHERE id = $1 AND estado = 'borrador'`, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete case")
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, id, "eliminar")
	}
	return nil
}

// ApplyTransition writes the new state and appends the history entry in
// one transaction. The update is a compare-and-set on the from-state; a
// zero-row update on a live case means a concurrent transition won.
func (r *PostgresRepository) ApplyTransition(ctx context.Context, entry *domain.HistoryEntry) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return apperrors.Internal(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE casos
		SET estado = $2, updated_at = now()
		WHERE id = $1 AND estado = $3`,
		entry.CaseID, string(entry.ToStatus), string(entry.FromStatus),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to transition case")
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, entry.CaseID, string(entry.ToStatus))
	}

	var actor interface{}
	if entry.ActorID != 0 {
		actor = entry.ActorID
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO historial (caso_id, estado_desde, estado_hasta, detalle, es_devolucion_coordinacion, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		entry.CaseID, string(entry.FromStatus), string(entry.ToStatus),
		entry.Detail, entry.CoordinationReturn, actor,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to append history")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// History returns the case's full audit trail in chronological order.
func (r *PostgresRepository) History(ctx context.Context, caseID int64) ([]*domain.HistoryEntry, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, caso_id, estado_desde, estado_hasta, detalle, es_devolucion_coordinacion, COALESCE(actor_id, 0), created_at
		FROM historial
		WHERE caso_id = $1
		ORDER BY created_at, id`,
		caseID,
	)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	defer rows.Close()

	var entries []*domain.HistoryEntry
	for rows.Next() {
		e := &domain.HistoryEntry{}
		var from, to string
		if err := rows.Scan(&e.ID, &e.CaseID, &from, &to, &e.Detail, &e.CoordinationReturn, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, apperrors.Internal(err)
		}
		e.FromStatus = domain.CaseStatus(from)
		e.ToStatus = domain.CaseStatus(to)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal(err)
	}
	return entries, nil
}

// LatestReturn returns the newest coordination-return entry, or nil.
func (r *PostgresRepository) LatestReturn(ctx context.Context, caseID int64) (*domain.HistoryEntry, error) {
	e := &domain.HistoryEntry{}
	var from, to string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, caso_id, estado_desde, estado_hasta, detalle, es_devolucion_coordinacion, COALESCE(actor_id, 0), created_at
		FROM historial
		WHERE caso_id = $1 AND es_devolucion_coordinacion
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		caseID,
	).Scan(&e.ID, &e.CaseID, &from, &to, &e.Detail, &e.CoordinationReturn, &e.ActorID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	e.FromStatus = domain.CaseStatus(from)
	e.ToStatus = domain.CaseStatus(to)
	return e, nil
}

// missingOrStale distinguishes a zero-row conditional write: the case is
// either gone (404) or its estado moved under us (409).
func (r *PostgresRepository) missingOrStale(ctx context.Context, id int64, event string) error {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM casos WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return apperrors.Internal(err)
	}
	if !exists {
		return apperrors.NotFound("case", strconv.FormatInt(id, 10))
	}
	return apperrors.StaleState(event)
}

// querier is the subset of pgxpool.Pool and pgx.Tx the loaders need.
type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func (r *PostgresRepository) loadOwnedRecords(ctx context.Context, q querier, c *domain.Case) error {
	rows, err := q.Query(ctx, `SELECT catalogo_id FROM caso_selecciones WHERE caso_id = $1 ORDER BY catalogo_id`, c.ID)
	if err != nil {
		return apperrors.Internal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return apperrors.Internal(err)
		}
		c.Selections = append(c.Selections, id)
	}
	if err := rows.Err(); err != nil {
		return apperrors.Internal(err)
	}

	aggRows, err := q.Query(ctx, `SELECT id, caso_id, nombre, alias, relacion, edad FROM caso_agresores WHERE caso_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return apperrors.Internal(err)
	}
	defer aggRows.Close()
	for aggRows.Next() {
		var a domain.Aggressor
		if err := aggRows.Scan(&a.ID, &a.CaseID, &a.Name, &a.Alias, &a.Relation, &a.Age); err != nil {
			return apperrors.Internal(err)
		}
		c.Aggressors = append(c.Aggressors, a)
	}
	if err := aggRows.Err(); err != nil {
		return apperrors.Internal(err)
	}

	childRows, err := q.Query(ctx, `SELECT id, caso_id, nombre, edad, escolaridad FROM caso_hijos WHERE caso_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return apperrors.Internal(err)
	}
	defer childRows.Close()
	for childRows.Next() {
		var h domain.Child
		if err := childRows.Scan(&h.ID, &h.CaseID, &h.Name, &h.Age, &h.Schooling); err != nil {
			return apperrors.Internal(err)
		}
		c.Children = append(c.Children, h)
	}
	return childRows.Err()
}

func (r *PostgresRepository) clearOwnedRecords(ctx context.Context, tx pgx.Tx, caseID int64) error {
	for _, table := range []string{"caso_selecciones", "caso_agresores", "caso_hijos"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE caso_id = $1`, caseID); err != nil {
			return apperrors.Wrap(err, "failed to clear case records")
		}
	}
	return nil
}

func (r *PostgresRepository) writeOwnedRecords(ctx context.Context, tx pgx.Tx, c *domain.Case) error {
	for _, catalogID := range c.Selections {
		_, err := tx.Exec(ctx, `
			INSERT INTO caso_selecciones (caso_id, catalogo_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`,
			c.ID, catalogID,
		)
		if err != nil {
			return apperrors.Wrap(err, "failed to save case selections")
		}
	}

	for i := range c.Aggressors {
		a := &c.Aggressors[i]
		a.CaseID = c.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO caso_agresores (caso_id, nombre, alias, relacion, edad)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			c.ID, a.Name, a.Alias, a.Relation, a.Age,
		).Scan(&a.ID)
		if err != nil {
			return apperrors.Wrap(err, "failed to save aggressor")
		}
	}

	for i := range c.Children {
		h := &c.Children[i]
		h.CaseID = c.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO caso_hijos (caso_id, nombre, edad, escolaridad)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			c.ID, h.Name, h.Age, h.Schooling,
		).Scan(&h.ID)
		if err != nil {
			return apperrors.Wrap(err, "failed to save child record")
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCase(row rowScanner) (*domain.Case, error) {
	c := &domain.Case{}
	var estado string
	err := row.Scan(
		&c.ID, &c.VictimaID, &c.AreaID, &estado, &c.CreatedBy,
		&c.Motive, &c.Residence, &c.Phone, &c.RiskNotes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.CaseStatus(estado)
	return c, nil
}
