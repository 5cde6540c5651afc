package payments

import (
	"errors"
	"net/mail"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidEmail is returned for addresses that do not parse.
var ErrInvalidEmail = errors.New("payments: invalid email")

// NormalizeEmail returns the NFC, case-folded bare address so the same
// donor always maps to one key.
func NormalizeEmail(raw string) (string, error) {
	s := norm.NFC.String(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(s)
	if err != nil || !strings.Contains(addr.Address, "@") {
		return "", ErrInvalidEmail
	}
	return cases.Fold().String(addr.Address), nil
}
