package auth

import (
	"net/http"
	"net/url"
	"strings"
)

// LoginPath is where unauthenticated admin requests are redirected.
const LoginPath = "/login"

// RequireAdmin guards next: a missing session or a session without the
// admin role redirects to the login page with the original path in next.
func (m *Manager) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.CurrentSession(r)
		if err != nil || !s.HasRole(RoleAdmin) {
			http.Redirect(w, r, LoginPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// SafeNext returns next if it is a local absolute path, else fallback.
// Scheme-relative and absolute URLs yield fallback.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}
