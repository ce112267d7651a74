package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cavim/platform/internal/notification"
	"github.com/cavim/platform/internal/shared/auth"
	"github.com/cavim/platform/internal/shared/config"
	apperrors "github.com/cavim/platform/internal/shared/errors"
)

// memoryRepository is an in-memory Repository for service tests.
type memoryRepository struct {
	nextID int64
	users  map[int64]*User
	tokens map[string]*ResetToken
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		nextID: 1,
		users:  make(map[int64]*User),
		tokens: make(map[string]*ResetToken),
	}
}

func (m *memoryRepository) Create(_ context.Context, u *User) error {
	u.ID = m.nextID
	m.nextID++
	u.Active = true
	copied := *u
	m.users[u.ID] = &copied
	return nil
}

func (m *memoryRepository) Update(_ context.Context, u *User) error {
	stored, ok := m.users[u.ID]
	if !ok || stored.Role == auth.RoleAdministrator {
		return apperrors.NotFound("user", "")
	}
	stored.Username = u.Username
	stored.Name, stored.Email, stored.Role, stored.AreaID = u.Name, u.Email, u.Role, u.AreaID
	return nil
}

func (m *memoryRepository) GetByID(_ context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", "")
	}
	copied := *u
	return &copied, nil
}

func (m *memoryRepository) GetByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("user", "")
}

func (m *memoryRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("user", "")
}

func (m *memoryRepository) List(_ context.Context) ([]*User, error) {
	var out []*User
	for _, u := range m.users {
		if u.Role == auth.RoleAdministrator {
			continue
		}
		copied := *u
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memoryRepository) SetPassword(_ context.Context, id int64, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return apperrors.NotFound("user", "")
	}
	u.PasswordHash = hash
	return nil
}

func (m *memoryRepository) SetTOTP(_ context.Context, id int64, secret string, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return apperrors.NotFound("user", "")
	}
	u.TOTPSecret, u.TOTPActive = secret, active
	return nil
}

func (m *memoryRepository) SetActive(_ context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok || u.Role == auth.RoleAdministrator {
		return apperrors.NotFound("user", "")
	}
	u.Active = active
	return nil
}

func (m *memoryRepository) CreateResetToken(_ context.Context, t *ResetToken) error {
	copied := *t
	m.tokens[t.TokenHash] = &copied
	return nil
}

func (m *memoryRepository) ConsumeResetToken(_ context.Context, tokenHash string) (*ResetToken, error) {
	t, ok := m.tokens[tokenHash]
	if !ok || t.UsedAt != nil || t.ExpiresAt.Before(time.Now()) {
		return nil, apperrors.NotFound("reset token", "")
	}
	now := time.Now()
	t.UsedAt = &now
	copied := *t
	return &copied, nil
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:     "test-secret",
		TokenTTL:      time.Hour,
		TOTPIssuer:    "CAVIM",
		ResetTokenTTL: time.Hour,
	}
}

func testEmailConfig() config.EmailConfig {
	return config.EmailConfig{
		From:         "no-reply@cavim.example",
		ResetBaseURL: "http://localhost:3000/restablecer",
	}
}

func newTestService(t *testing.T) (*Service, *memoryRepository, *notification.MemorySender) {
	t.Helper()
	repo := newMemoryRepository()
	sender := notification.NewMemorySender()
	return NewService(repo, sender, testAuthConfig(), testEmailConfig()), repo, sender
}

func seedUser(t *testing.T, repo *memoryRepository, username, password string, role auth.Role) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	area := int64(5)
	u := &User{
		Username:     username,
		Name:         "Test User",
		Email:        username + "@cavim.example",
		PasswordHash: string(hash),
		Role:         role,
		AreaID:       &area,
	}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestLoginSuccess(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedUser(t, repo, "maria", "secreta123", auth.RoleOperative)

	result, err := svc.Login(context.Background(), "maria", "secreta123", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.False(t, result.MFARequired)
	assert.Equal(t, "maria", result.User.Username)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedUser(t, repo, "maria", "secreta123", auth.RoleOperative)

	_, errUnknown := svc.Login(context.Background(), "nadie", "secreta123", "")
	_, errBadPass := svc.Login(context.Background(), "maria", "incorrecta", "")

	require.Error(t, errUnknown)
	require.Error(t, errBadPass)
	// Same error, same message: the endpoint must not leak which accounts exist.
	assert.Equal(t, errUnknown.Error(), errBadPass.Error())
	assert.ErrorIs(t, errUnknown, apperrors.ErrUnauthorized)
	assert.ErrorIs(t, errBadPass, apperrors.ErrUnauthorized)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, repo, _ := newTestService(t)
	u := seedUser(t, repo, "maria", "secreta123", auth.RoleOperative)
	require.NoError(t, repo.SetActive(context.Background(), u.ID, false))

	_, err := svc.Login(context.Background(), "maria", "secreta123", "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestLoginWithTOTP(t *testing.T) {
	svc, repo, _ := newTestService(t)
	u := seedUser(t, repo, "maria", "secreta123", auth.RoleOperative)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "CAVIM", AccountName: "maria"})
	require.NoError(t, err)
	require.NoError(t, repo.SetTOTP(context.Background(), u.ID, key.Secret(), true))

	// Correct password without a code: MFA challenge, no token.
	result, err := svc.Login(context.Background(), "maria", "secreta123", "")
	require.NoError(t, err)
	assert.True(t, result.MFARequired)
	assert.Empty(t, result.Token)

	// Wrong code fails like a bad password.
	_, err = svc.Login(context.Background(), "maria", "secreta123", "000000")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// Valid code issues the token.
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	result, err = svc.Login(context.Background(), "maria", "secreta123", code)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestTOTPLifecycle(t *testing.T) {
	svc, repo, _ := newTestService(t)
	u := seedUser(t, repo, "maria", "secreta123", auth.RoleOperative)

	url, err := svc.TOTPSetup(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Contains(t, url, "otpauth://")

	stored, _ := repo.GetByID(context.Background(), u.ID)
	require.NotEmpty(t, stored.TOTPSecret)
	// Setup alone must not enforce MFA.
	assert.False(t, stored.TOTPActive)

	// Activation demands a valid code.
	err = svc.TOTPActivate(context.Background(), u.ID, "000000")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)

	code, err := totp.GenerateCode(stored.TOTPSecret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.TOTPActivate(context.Background(), u.ID, code))

	stored, _ = repo.GetByID(context.Background(), u.ID)
	assert.True(t, stored.TOTPActive)

	// Disable re-verifies the password.
	err = svc.TOTPDisable(context.Background(), u.ID, "incorrecta")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.NoError(t, svc.TOTPDisable(context.Background(), u.ID, "secreta123"))

	stored, _ = repo.GetByID(context.Background(), u.ID)
	assert.False(t, stored.TOTPActive)
	assert.Empty(t, stored.TOTPSecret)
}

func TestPasswordResetFlow(t *testing.T) {
	svc, repo, sender := newTestService(t)
	u := seedUser(t, repo, "maria", "secreta123", auth.RoleOperative)

	svc.ForgotPassword(context.Background(), u.Email)

	messages := sender.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, u.Email, messages[0].To)

	// Pull the raw token out of the emailed link.
	idx := strings.Index(messages[0].HTML, "?token=")
	require.NotEqual(t, -1, idx)
	token := messages[0].HTML[idx+len("?token=") : idx+len("?token=")+64]

	require.NoError(t, svc.ResetPassword(context.Background(), token, "nuevaclave1"))

	// Old password is gone, new one works.
	_, err := svc.Login(context.Background(), "maria", "secreta123", "")
	assert.Error(t, err)
	_, err = svc.Login(context.Background(), "maria", "nuevaclave1", "")
	assert.NoError(t, err)

	// Tokens are single use.
	err = svc.ResetPassword(context.Background(), token, "otraclave99")
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestUpdateUserPersistsUsername(t *testing.T) {
	svc, repo, _ := newTestService(t)
	u := seedUser(t, repo, "maria", "secreta123", auth.RoleOperative)

	updated := *u
	updated.Username = "maria.gomez"
	require.NoError(t, svc.UpdateUser(context.Background(), &updated))

	stored, err := repo.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "maria.gomez", stored.Username)

	// The new username is the login identity; the old one is gone.
	_, err = repo.GetByUsername(context.Background(), "maria")
	assert.Error(t, err)
	_, err = repo.GetByUsername(context.Background(), "maria.gomez")
	assert.NoError(t, err)
}

func TestForgotPasswordUnknownEmailSendsNothing(t *testing.T) {
	svc, _, sender := newTestService(t)
	svc.ForgotPassword(context.Background(), "nadie@cavim.example")
	assert.Empty(t, sender.Messages())
}

func TestCreateUserRules(t *testing.T) {
	svc, repo, _ := newTestService(t)
	area := int64(5)

	tests := []struct {
		name    string
		user    User
		wantErr bool
	}{
		{"valid operative", User{Username: "op1", Name: "Op", Email: "op1@x.com", Role: auth.RoleOperative, AreaID: &area}, false},
		{"valid general coordinator without area", User{Username: "gc", Name: "GC", Email: "gc@x.com", Role: auth.RoleGeneralCoordinator}, false},
		{"administrator not assignable", User{Username: "adm", Name: "Adm", Email: "adm@x.com", Role: auth.RoleAdministrator}, true},
		{"area coordinator needs area", User{Username: "ac", Name: "AC", Email: "ac@x.com", Role: auth.RoleAreaCoordinator}, true},
		{"operative needs area", User{Username: "op2", Name: "Op", Email: "op2@x.com", Role: auth.RoleOperative}, true},
		{"unknown role", User{Username: "x", Name: "X", Email: "x@x.com", Role: auth.Role(9)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.user
			err := svc.CreateUser(context.Background(), &u, "secreta123")
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	// Short passwords are rejected.
	u := User{Username: "op9", Name: "Op", Email: "op9@x.com", Role: auth.RoleOperative, AreaID: &area}
	err := svc.CreateUser(context.Background(), &u, "corta")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	// Listings never include administrators.
	admin := &User{Username: "root", Name: "Root", Email: "root@x.com", PasswordHash: "x", Role: auth.RoleAdministrator}
	require.NoError(t, repo.Create(context.Background(), admin))

	users, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	for _, listed := range users {
		assert.NotEqual(t, auth.RoleAdministrator, listed.Role)
	}
}
