package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the caller of the HTTP API. There is no user table in
// this service: Role distinguishes an operator (submits jobs, manages
// queues/workers/specifications) from an agent (a worker node posting
// execution status back to /api/node/status).
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

const (
	RoleOperator = "operator"
	RoleAgent    = "agent"
)

type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// GenerateServiceToken mints a long-lived token for the given role. Called
// once at dispatcher boot to print the operator token; no other code path
// in the dispatcher mints tokens.
func (m *Manager) GenerateServiceToken(role, subject string) (string, error) {
	now := time.Now().UTC()

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != RoleOperator && claims.Role != RoleAgent {
		return nil, errors.New("unknown role")
	}

	return claims, nil
}

func (m *Manager) RoleOf(claims *Claims) string {
	if claims == nil {
		return ""
	}
	return claims.Role
}
