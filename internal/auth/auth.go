// Package auth resolves bearer tokens to an authenticated user context.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Context identifies the authenticated caller. Every public hub entry point
// takes one; ownership checks compare Context.UserID with entity owners.
type Context struct {
	UserID string
	OrgID  string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (c Context) IsAdmin() bool {
	return strings.EqualFold(c.Role, "admin")
}

// Claims are the JWT claims issued and validated by the Manager.
type Claims struct {
	OrgID string `json:"org_id,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and validates HMAC-signed bearer tokens.
type Manager struct {
	secret []byte
	expiry time.Duration
}

// NewManager creates a token manager with the shared signing secret.
func NewManager(secret string, expiry time.Duration) *Manager {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), expiry: expiry}
}

// Issue creates a signed token for the given identity.
func (m *Manager) Issue(userID, orgID, role string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrUnauthorized
	}
	now := time.Now()
	expires := now.Add(m.expiry)
	claims := Claims{
		OrgID: orgID,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Validate parses and verifies a token, returning the caller context.
func (m *Manager) Validate(tokenString string) (Context, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Context{}, ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Context{}, ErrTokenExpired
		}
		return Context{}, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return Context{}, ErrInvalidToken
	}

	return Context{
		UserID: claims.Subject,
		OrgID:  claims.OrgID,
		Role:   claims.Role,
	}, nil
}

// FromBearerHeader extracts the token from an Authorization header value.
func FromBearerHeader(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):]), true
	}
	return "", false
}
