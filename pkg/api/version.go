package api

import (
	"fmt"
	"net/http"

	"github.com/Masterminds/semver/v3"
)

// ClientVersionHeader is sent by the SITA web client.
const ClientVersionHeader = "X-SITA-Client-Version"

// VersionGate rejects clients older than a minimum version. Requests
// without the header pass, so curl and browsers hitting the API directly
// keep working.
type VersionGate struct {
	constraint *semver.Constraints
	min        string
}

// NewVersionGate builds a gate accepting clients >= min.
func NewVersionGate(min string) (*VersionGate, error) {
	c, err := semver.NewConstraint(">= " + min)
	if err != nil {
		return nil, fmt.Errorf("version gate: %w", err)
	}
	return &VersionGate{constraint: c, min: min}, nil
}

// Middleware enforces the gate.
func (g *VersionGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(ClientVersionHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			WriteBadRequest(w, fmt.Sprintf("invalid %s %q", ClientVersionHeader, raw))
			return
		}
		if !g.constraint.Check(v) {
			WriteUpgradeRequired(w, fmt.Sprintf("client %s is older than the minimum supported %s", v, g.min))
			return
		}
		next.ServeHTTP(w, r)
	})
}
