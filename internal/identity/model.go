package identity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cavim/platform/internal/shared/auth"
	"github.com/cavim/platform/internal/shared/errors"
)

// User is a platform account. Administrators (role 4) manage accounts and
// never appear in regular user listings.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"nombre"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"rol"`
	AreaID       *int64    `json:"area_id,omitempty"`
	TOTPSecret   string    `json:"-"`
	TOTPActive   bool      `json:"totp_activo"`
	Active       bool      `json:"activo"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks account fields. Area-scoped roles must carry an area;
// the administrator role is never assignable through the API.
func (u *User) Validate() error {
	details := map[string]string{}
	if u.Username == "" {
		details["username"] = "username is required"
	}
	if u.Name == "" {
		details["nombre"] = "name is required"
	}
	if u.Email == "" {
		details["email"] = "email is required"
	}
	switch {
	case u.Role == auth.RoleAdministrator:
		details["rol"] = "administrator accounts cannot be managed through the API"
	case !u.Role.Valid():
		details["rol"] = "unknown role"
	case u.Role.AreaScoped() && u.AreaID == nil:
		details["area_id"] = "area is required for this role"
	}
	if len(details) > 0 {
		return errors.Validation("validation failed", details)
	}
	return nil
}

// ResetToken is a single-use password reset grant. Only the SHA-256 digest
// of the emailed token is stored.
type ResetToken struct {
	ID        uuid.UUID
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Repository defines account persistence operations.
type Repository interface {
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// List returns non-administrator accounts.
	List(ctx context.Context) ([]*User, error)

	SetPassword(ctx context.Context, id int64, passwordHash string) error
	SetTOTP(ctx context.Context, id int64, secret string, active bool) error
	SetActive(ctx context.Context, id int64, active bool) error

	CreateResetToken(ctx context.Context, t *ResetToken) error
	// ConsumeResetToken marks the token used and returns it, or ErrNotFound
	// when the hash is unknown, expired or already used.
	ConsumeResetToken(ctx context.Context, tokenHash string) (*ResetToken, error)
}
