package identity

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/cavim/platform/internal/shared/auth"
	"github.com/cavim/platform/internal/shared/database"
	apperrors "github.com/cavim/platform/internal/shared/errors"
)

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a new postgres identity repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, nombre, email, password_hash, rol, area_id, COALESCE(totp_secret, ''), totp_activo, activo, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO usuarios (username, nombre, email, password_hash, rol, area_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		u.Username, u.Name, u.Email, u.PasswordHash, int(u.Role), u.AreaID,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create user")
	}
	u.Active = true
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, u *User) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE usuarios
		SET username = $2, nombre = $3, email = $4, rol = $5, area_id = $6, updated_at = now()
		WHERE id = $1 AND rol <> 4`,
		u.ID, u.Username, u.Name, u.Email, int(u.Role), u.AreaID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update user")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", strconv.FormatInt(u.ID, 10))
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.getBy(ctx, `id = $1`, id)
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getBy(ctx, `username = $1`, username)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, `email = $1`, email)
}

func (r *PostgresRepository) getBy(ctx context.Context, where string, arg interface{}) (*User, error) {
	u := &User{}
	var role int
	err := r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM usuarios WHERE `+where, arg).Scan(
		&u.ID, &u.Username, &u.Name, &u.Email, &u.PasswordHash, &role,
		&u.AreaID, &u.TOTPSecret, &u.TOTPActive, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", "")
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	u.Role = auth.Role(role)
	return u, nil
}

// List returns every non-administrator account. Administrator accounts are
// provisioned out of band and stay invisible here.
func (r *PostgresRepository) List(ctx context.Context) ([]*User, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM usuarios
		WHERE rol <> 4
		ORDER BY nombre`,
	)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		var role int
		if err := rows.Scan(
			&u.ID, &u.Username, &u.Name, &u.Email, &u.PasswordHash, &role,
			&u.AreaID, &u.TOTPSecret, &u.TOTPActive, &u.Active, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, apperrors.Internal(err)
		}
		u.Role = auth.Role(role)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Internal(err)
	}
	return users, nil
}

func (r *PostgresRepository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE usuarios SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to set password")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *PostgresRepository) SetTOTP(ctx context.Context, id int64, secret string, active bool) error {
	var secretArg interface{}
	if secret != "" {
		secretArg = secret
	}
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE usuarios SET totp_secret = $2, totp_activo = $3, updated_at = now() WHERE id = $1`,
		id, secretArg, active,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update totp settings")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE usuarios SET activo = $2, updated_at = now() WHERE id = $1 AND rol <> 4`,
		id, active,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update user status")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", strconv.FormatInt(id, 10))
	}
	return nil
}

func (r *PostgresRepository) CreateResetToken(ctx context.Context, t *ResetToken) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, usuario_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create reset token")
	}
	return nil
}

// ConsumeResetToken atomically marks an unexpired, unused token as used.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, tokenHash string) (*ResetToken, error) {
	t := &ResetToken{}
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE password_reset_tokens
		SET used_at = now()
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()
		RETURNING id, usuario_id, token_hash, expires_at, used_at`,
		tokenHash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("reset token", "")
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return t, nil
}

// EmailByID implements notification.UserDirectory.
func (r *PostgresRepository) EmailByID(ctx context.Context, id int64) (string, error) {
	var email string
	err := r.db.Pool.QueryRow(ctx, `SELECT email FROM usuarios WHERE id = $1`, id).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.NotFound("user", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return "", apperrors.Internal(err)
	}
	return email, nil
}
