// Package auth establishes the logged-in principal: Google sign-in issues a
// signed session cookie, and RequireUser gates the chat on it.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie holds the signed session token.
const SessionCookie = "turnos_session"

const tokenIssuer = "turnos-ai"

var (
	ErrInvalidToken = errors.New("auth: invalid session token")
	ErrNoSecret     = errors.New("auth: session secret is required")
)

// User is the authenticated principal carried by the session token.
type User struct {
	Email     string
	Name      string
	SessionID string
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"sid"`
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens builds a signer. ttl defaults to seven days.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of issued tokens.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for u and returns it with its expiry.
func (t *Tokens) Issue(u User) (string, time.Time, error) {
	if strings.TrimSpace(u.Email) == "" {
		return "", time.Time{}, errors.New("auth: email is required")
	}
	now := t.now()
	expires := now.Add(t.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strings.ToLower(u.Email),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email:     strings.ToLower(u.Email),
		Name:      u.Name,
		SessionID: u.SessionID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a token and returns the user it was issued for.
func (t *Tokens) Verify(tokenString string) (User, error) {
	claims := sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Email == "" || claims.SessionID == "" {
		return User{}, fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	return User{Email: claims.Email, Name: claims.Name, SessionID: claims.SessionID}, nil
}
