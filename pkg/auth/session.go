// Package auth provides signed admin sessions, the admin login check, the
// RequireAdmin redirect guard and bearer-token calls to hosted functions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoSession is returned when a request carries no valid session.
var ErrNoSession = errors.New("auth: no session")

// CookieName is the session cookie.
const CookieName = "sita_session"

// RoleAdmin grants access to /admin routes.
const RoleAdmin = "admin"

const issuer = "sita"

// Claims are the JWT claims of a session token.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// Session is an authenticated caller.
type Session struct {
	Subject   string
	Email     string
	Roles     []string
	Token     string
	ExpiresAt time.Time
}

// HasRole reports whether the session carries role.
func (s *Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Manager issues and reads session tokens.
type Manager struct {
	keys   KeySet
	clk    clock.Clock
	ttl    time.Duration
	secure bool
}

// NewManager builds a manager. secure marks cookies Secure; set it when
// serving over TLS.
func NewManager(keys KeySet, ttl time.Duration, secure bool, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{keys: keys, clk: clk, ttl: ttl, secure: secure}
}

// Issue signs a session for email with roles and sets the cookie.
func (m *Manager) Issue(w http.ResponseWriter, email string, roles []string) (*Session, error) {
	now := m.clk.Now().UTC()
	exp := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   email,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
		Roles: roles,
	}
	token, err := m.keys.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("auth: sign session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return &Session{Subject: email, Email: email, Roles: roles, Token: token, ExpiresAt: exp}, nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// CurrentSession returns the session carried by the cookie or a Bearer
// Authorization header.
func (m *Manager) CurrentSession(r *http.Request) (*Session, error) {
	token := ""
	if c, err := r.Cookie(CookieName); err == nil {
		token = c.Value
	}
	if h := r.Header.Get("Authorization"); token == "" && h != "" {
		scheme, rest, ok := strings.Cut(h, " ")
		if ok && scheme == "Bearer" {
			token = rest
		}
	}
	if token == "" {
		return nil, ErrNoSession
	}
	return m.Parse(token)
}

// Parse validates a token.
func (m *Manager) Parse(token string) (*Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, m.keys.KeyFunc(),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clk.Now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token subject is required", ErrNoSession)
	}
	return &Session{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Roles:     claims.Roles,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

type sessionKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session placed by RequireAdmin.
func FromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}
