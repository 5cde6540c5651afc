package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any failed login.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Authenticator checks the single admin account configured for the
// deployment.
type Authenticator struct {
	email string
	hash  []byte
}

// NewAuthenticator builds an authenticator. An empty hash disables login.
func NewAuthenticator(email, bcryptHash string) *Authenticator {
	return &Authenticator{email: strings.ToLower(strings.TrimSpace(email)), hash: []byte(bcryptHash)}
}

// Check verifies email and password.
func (a *Authenticator) Check(email, password string) error {
	if len(a.hash) == 0 || a.email == "" {
		return ErrInvalidCredentials
	}
	got := strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(got), []byte(a.email)) == 1
	// bcrypt runs on every attempt, matching email or not.
	pwErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !emailOK || pwErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("auth: password must be at least 8 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
