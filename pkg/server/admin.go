package server

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/Mindburn-Labs/sita/pkg/api"
	"github.com/Mindburn-Labs/sita/pkg/auth"
	"github.com/Mindburn-Labs/sita/pkg/payments"
	"github.com/Mindburn-Labs/sita/pkg/records"
)

var loginPage = template.Must(template.New("login").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Sign in</title></head>
<body>
<form method="post" action="/login">
<input type="hidden" name="next" value="{{.Next}}">
<label>Email <input type="email" name="email" autocomplete="username" required></label>
<label>Password <input type="password" name="password" autocomplete="current-password" required></label>
<button type="submit">Sign in</button>
{{if .Failed}}<p role="alert">Invalid email or password.</p>{{end}}
</form>
</body>
</html>
`))

type loginView struct {
	Next   string
	Failed bool
}

type adminSummary struct {
	LiveSessions     int   `json:"liveSessions"`
	DonationsPending int64 `json:"donationsPending"`
	DonationsPaid    int64 `json:"donationsPaid"`
	EvidenceExports  int64 `json:"evidenceExports"`
}

func (s *Server) adminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin", s.handleAdminSummary)
	mux.HandleFunc("GET /admin/donations", s.handleAdminDonations)
	mux.HandleFunc("GET /admin/exports", s.handleAdminExports)
	mux.HandleFunc("PUT /admin/deck/{page}", s.handlePutDeckPage)
	mux.HandleFunc("POST /admin/functions/{name}", s.handleAdminInvoke)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderLogin(w, http.StatusOK, loginView{Next: auth.SafeNext(r.URL.Query().Get("next"), "/admin")})
}

func (s *Server) renderLogin(w http.ResponseWriter, status int, v loginView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := loginPage.Execute(w, v); err != nil {
		s.logger.Error("render login", "error", err)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || s.authenticator == nil {
		api.WriteErrorR(w, r, http.StatusServiceUnavailable, "Service Unavailable", "admin sign-in is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, api.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "invalid form")
		return
	}
	email := r.PostFormValue("email")
	next := auth.SafeNext(r.PostFormValue("next"), "/admin")
	if err := s.authenticator.Check(email, r.PostFormValue("password")); err != nil {
		s.logger.WarnContext(r.Context(), "admin sign-in failed", "request_id", api.GetRequestID(r.Context()))
		s.renderLogin(w, http.StatusUnauthorized, loginView{Next: next, Failed: true})
		return
	}
	if _, err := s.auth.Issue(w, email, []string{auth.RoleAdmin}); err != nil {
		api.WriteInternal(w, s.logger, err)
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.auth != nil {
		s.auth.Clear(w)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleAdminSummary(w http.ResponseWriter, r *http.Request) {
	out := adminSummary{LiveSessions: s.sessions.Len()}
	if s.records != nil {
		ctx := r.Context()
		var err error
		if out.DonationsPending, err = s.records.Count(ctx, records.TableDonations, []records.Filter{records.Where("status", payments.StatusPending)}); err != nil {
			api.WriteInternal(w, s.logger, err)
			return
		}
		if out.DonationsPaid, err = s.records.Count(ctx, records.TableDonations, []records.Filter{records.Where("status", payments.StatusPaid)}); err != nil {
			api.WriteInternal(w, s.logger, err)
			return
		}
		if out.EvidenceExports, err = s.records.Count(ctx, records.TableEvidenceExports, nil); err != nil {
			api.WriteInternal(w, s.logger, err)
			return
		}
	}
	api.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminDonations(w http.ResponseWriter, r *http.Request) {
	q := records.Query{Table: records.TableDonations, OrderBy: "created_at", Desc: true, Limit: 100}
	if status := r.URL.Query().Get("status"); status != "" {
		q.Filters = append(q.Filters, records.Where("status", status))
	}
	s.listRecords(w, r, q)
}

func (s *Server) handleAdminExports(w http.ResponseWriter, r *http.Request) {
	q := records.Query{Table: records.TableEvidenceExports, OrderBy: "created_at", Desc: true, Limit: 100}
	if id := r.URL.Query().Get("session"); id != "" {
		q.Filters = append(q.Filters, records.Where("session_id", id))
	}
	s.listRecords(w, r, q)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request, q records.Query) {
	if s.records == nil {
		api.WriteErrorR(w, r, http.StatusServiceUnavailable, "Service Unavailable", "record storage is not configured")
		return
	}
	rows, err := s.records.Select(r.Context(), q)
	if err != nil {
		api.WriteInternal(w, s.logger, err)
		return
	}
	if rows == nil {
		rows = []records.Record{}
	}
	api.WriteJSON(w, http.StatusOK, rows)
}

// handleAdminInvoke forwards a JSON body to a hosted function on behalf of
// the signed-in admin.
func (s *Server) handleAdminInvoke(w http.ResponseWriter, r *http.Request) {
	if s.functions == nil {
		api.WriteErrorR(w, r, http.StatusServiceUnavailable, "Service Unavailable", "hosted functions are not configured")
		return
	}
	sess, err := auth.FromContext(r.Context())
	if err != nil {
		api.WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", "admin session required")
		return
	}
	var body json.RawMessage
	if !s.schemas.DecodeValid(w, r, schemaInvoke, &body) {
		return
	}
	out, err := s.functions.Invoke(r.Context(), sess, r.PathValue("name"), body)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidFunction) {
			api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		var ie *auth.InvokeError
		if errors.As(err, &ie) {
			api.WriteErrorR(w, r, http.StatusBadGateway, "Bad Gateway", ie.Error())
			return
		}
		s.logger.WarnContext(r.Context(), "function invoke failed", "function", r.PathValue("name"), "error", err)
		api.WriteErrorR(w, r, http.StatusBadGateway, "Bad Gateway", "function call failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
