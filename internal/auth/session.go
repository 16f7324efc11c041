package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "openhands_auth"

// ErrInvalidSession is returned when a session token is malformed, expired,
// or signed with the wrong key.
var ErrInvalidSession = errors.New("invalid session token")

// SessionClaims holds the JWT claims of the session cookie. Subject is the
// Keycloak user id.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	// RefreshToken lets the backend refresh the Keycloak session without a
	// new login round trip.
	RefreshToken string `json:"refresh_token,omitempty"`
}

// SessionMinter issues and validates HS256 session tokens.
type SessionMinter struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionMinter returns a minter signing with the given secret. The
// secret must be non-empty.
func NewSessionMinter(secret string, ttl time.Duration) (*SessionMinter, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	return &SessionMinter{secret: []byte(secret), ttl: ttl}, nil
}

// Mint issues a session token for the given Keycloak user.
func (m *SessionMinter) Mint(keycloakUserID, email, refreshToken string) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   keycloakUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Email:        email,
		RefreshToken: refreshToken,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

// Parse validates the token signature and expiry and returns its claims.
func (m *SessionMinter) Parse(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidSession
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSession
	}
	if claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
