package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/cavim/platform/internal/notification"
	"github.com/cavim/platform/internal/shared/auth"
	"github.com/cavim/platform/internal/shared/config"
	apperrors "github.com/cavim/platform/internal/shared/errors"
	"github.com/cavim/platform/internal/shared/metrics"
)

// Service implements authentication and account management.
type Service struct {
	repo   Repository
	sender notification.Sender
	auth   config.AuthConfig
	email  config.EmailConfig
}

// NewService creates a new identity service
func NewService(repo Repository, sender notification.Sender, authCfg config.AuthConfig, emailCfg config.EmailConfig) *Service {
	return &Service{repo: repo, sender: sender, auth: authCfg, email: emailCfg}
}

// LoginResult carries either a session token or the MFA challenge marker.
type LoginResult struct {
	Token       string `json:"token,omitempty"`
	MFARequired bool   `json:"mfa_required,omitempty"`
	User        *User  `json:"user,omitempty"`
}

// Login verifies credentials and, when the account has TOTP enabled, the
// one-time code. Unknown usernames and wrong passwords produce the same
// error so the endpoint leaks nothing about which accounts exist.
func (s *Service) Login(ctx context.Context, username, password, totpCode string) (*LoginResult, error) {
	failed := apperrors.Unauthorized("invalid credentials")

	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		// Burn a bcrypt comparison so the timing matches the found-user path.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0123456789012345678901uZl0a1b2c3d4e5f6g7h8i9j0k1l2m3n"), []byte(password))
		metrics.RecordLogin("failed")
		return nil, failed
	}
	if !u.Active {
		metrics.RecordLogin("failed")
		return nil, failed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		metrics.RecordLogin("failed")
		return nil, failed
	}

	if u.TOTPActive {
		if totpCode == "" {
			metrics.RecordLogin("mfa_required")
			return &LoginResult{MFARequired: true}, nil
		}
		if !totp.Validate(totpCode, u.TOTPSecret) {
			metrics.RecordLogin("failed")
			return nil, failed
		}
	}

	var areaID int64
	if u.AreaID != nil {
		areaID = *u.AreaID
	}
	token, err := auth.IssueToken(s.auth.JWTSecret, s.auth.TokenTTL, u.ID, u.Name, u.Role, areaID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	metrics.RecordLogin("ok")
	return &LoginResult{Token: token, User: u}, nil
}

// TOTPSetup generates a pending secret for the account and returns the
// enrollment URL. The secret only becomes enforced after TOTPActivate
// confirms a valid code.
func (s *Service) TOTPSetup(ctx context.Context, userID int64) (string, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.auth.TOTPIssuer,
		AccountName: u.Username,
	})
	if err != nil {
		return "", apperrors.Internal(err)
	}

	if err := s.repo.SetTOTP(ctx, userID, key.Secret(), false); err != nil {
		return "", err
	}
	return key.URL(), nil
}

// TOTPActivate enforces TOTP after the user proves they enrolled the
// pending secret.
func (s *Service) TOTPActivate(ctx context.Context, userID int64, code string) error {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TOTPSecret == "" {
		return apperrors.BadRequest("totp setup has not been started")
	}
	if !totp.Validate(code, u.TOTPSecret) {
		return apperrors.BadRequest("invalid totp code")
	}
	return s.repo.SetTOTP(ctx, userID, u.TOTPSecret, true)
}

// TOTPDisable turns off TOTP after re-verifying the password.
func (s *Service) TOTPDisable(ctx context.Context, userID int64, password string) error {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return apperrors.Unauthorized("invalid credentials")
	}
	return s.repo.SetTOTP(ctx, userID, "", false)
}

// ForgotPassword issues a reset token and emails the reset link. It always
// succeeds from the caller's point of view so the endpoint cannot be used
// to probe which addresses have accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil || !u.Active {
		return
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		log.Printf("password reset: token generation failed: %v", err)
		return
	}
	token := hex.EncodeToString(raw)
	digest := sha256.Sum256([]byte(token))

	t := &ResetToken{
		ID:        uuid.New(),
		UserID:    u.ID,
		TokenHash: hex.EncodeToString(digest[:]),
		ExpiresAt: time.Now().Add(s.auth.ResetTokenTTL),
	}
	if err := s.repo.CreateResetToken(ctx, t); err != nil {
		log.Printf("password reset: token store failed: %v", err)
		return
	}

	link := fmt.Sprintf("%s?token=%s", s.email.ResetBaseURL, token)
	msg := notification.Message{
		To:      u.Email,
		Subject: "Restablecer contraseña",
		HTML: fmt.Sprintf(
			"<p>Hola %s,</p><p>Para restablecer tu contraseña visita <a href=%q>este enlace</a>. El enlace vence en %s.</p>",
			html.EscapeString(u.Name), link, s.auth.ResetTokenTTL,
		),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		log.Printf("password reset: email failed: %v", err)
	}
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return apperrors.Validation("validation failed", map[string]string{
			"password": "password must be at least 8 characters",
		})
	}

	digest := sha256.Sum256([]byte(token))
	t, err := s.repo.ConsumeResetToken(ctx, hex.EncodeToString(digest[:]))
	if err != nil {
		return apperrors.BadRequest("invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Internal(err)
	}
	return s.repo.SetPassword(ctx, t.UserID, string(hash))
}

// CreateUser provisions a new account with an initial password.
func (s *Service) CreateUser(ctx context.Context, u *User, password string) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if len(password) < 8 {
		return apperrors.Validation("validation failed", map[string]string{
			"password": "password must be at least 8 characters",
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Internal(err)
	}
	u.PasswordHash = string(hash)
	return s.repo.Create(ctx, u)
}

// UpdateUser changes account profile fields and role.
func (s *Service) UpdateUser(ctx context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, u)
}

// SetUserActive deactivates or reactivates an account. Accounts are never
// deleted: historial rows keep referencing their actors.
func (s *Service) SetUserActive(ctx context.Context, id int64, active bool) error {
	return s.repo.SetActive(ctx, id, active)
}

// ListUsers returns manageable accounts.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

// GetUser returns one account.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}
