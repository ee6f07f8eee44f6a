// Package auth implements A3: flat, service-level bearer authentication.
// Adapted from the teacher's JWTManager — kept for its token signing/
// verification shape — but stripped of org/user/role claims, which don't
// map onto this service's flat repositoryId concept and which spec.md
// explicitly excludes ("multi-tenant isolation beyond a repository
// identifier" and "fine-grained authorization" are Non-goals). A
// verified token identifies an API client only; it grants access to
// every repository the service knows about.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload for a service-level API client.
type Claims struct {
	ClientID string `json:"clientId"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies bearer tokens for API clients.
type JWTManager struct {
	secret []byte
	expiry time.Duration
}

// NewJWTManager builds a JWTManager. An empty secret means authentication
// is disabled (used for local/dev deployments where PROVIDER layer trust
// is out of scope).
func NewJWTManager(secret string, expiry time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), expiry: expiry}
}

// Enabled reports whether a signing secret was configured.
func (m *JWTManager) Enabled() bool { return len(m.secret) > 0 }

// Generate creates a signed bearer token for clientID.
func (m *JWTManager) Generate(clientID string) (string, error) {
	claims := Claims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses and validates a token string, returning its claims.
func (m *JWTManager) Verify(tokenStr string) (*Claims, error) {
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
	return claims, nil
}
