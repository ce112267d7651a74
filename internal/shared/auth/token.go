package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the session token payload: subject, display name, role and
// area. Area is zero for roles without an area scope.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
	Role int    `json:"role"`
	Area int64  `json:"area,omitempty"`
}

// IssueToken signs a session token for the given user identity.
func IssueToken(secret string, ttl time.Duration, userID int64, name string, role Role, areaID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   formatID(userID),
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
		Role: int(role),
		Area: areaID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
