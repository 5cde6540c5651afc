package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mindburn-Labs/sita/pkg/api"
	"github.com/Mindburn-Labs/sita/pkg/artifacts"
	"github.com/Mindburn-Labs/sita/pkg/auth"
	"github.com/Mindburn-Labs/sita/pkg/autoplay"
	"github.com/Mindburn-Labs/sita/pkg/demo"
	"github.com/Mindburn-Labs/sita/pkg/evidence"
	"github.com/Mindburn-Labs/sita/pkg/intelligence"
	"github.com/Mindburn-Labs/sita/pkg/observability"
	"github.com/Mindburn-Labs/sita/pkg/payments"
	"github.com/Mindburn-Labs/sita/pkg/records"
	"github.com/Mindburn-Labs/sita/pkg/server"
	"github.com/Mindburn-Labs/sita/pkg/sessions"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

const (
	adminEmail    = "ops@sita.example"
	adminPassword = "correct horse battery"
	webhookSecret = "whsec_test"
)

type harness struct {
	handler   http.Handler
	clock     *clock.Mock
	records   *records.SQLStore
	artifacts *artifacts.FileStore
	registry  *sessions.Registry
}

type harnessOption func(*server.Options)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC))

	reg, err := sessions.NewRegistry(sessions.Options{Clock: mock})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	rs, err := records.OpenSQLite(filepath.Join(t.TempDir(), "sita.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	fs, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = artifacts.SeedDeck(context.Background(), fs)
	require.NoError(t, err)

	keys, err := auth.NewInMemoryKeySet(mock)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	telemetry, err := observability.New(context.Background(), &observability.Config{Enabled: false}, nil)
	require.NoError(t, err)

	o := server.Options{
		Sessions:      reg,
		Records:       rs,
		Artifacts:     fs,
		Auth:          auth.NewManager(keys, time.Hour, false, mock),
		Authenticator: auth.NewAuthenticator(adminEmail, string(hash)),
		Payments: payments.NewService(payments.Options{
			Provider:      &payments.SimProvider{PublicURL: "https://sita.example"},
			Records:       rs,
			WebhookSecret: webhookSecret,
			PublicURL:     "https://sita.example",
			Clock:         mock,
		}),
		Telemetry: telemetry,
		Clock:     mock,
	}
	for _, fn := range opts {
		fn(&o)
	}
	srv, err := server.New(o)
	require.NoError(t, err)
	return &harness{handler: srv.Handler(), clock: mock, records: rs, artifacts: fs, registry: reg}
}

func (h *harness) do(t *testing.T, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

type sessionBody struct {
	ID       string        `json:"id"`
	Snapshot demo.Snapshot `json:"snapshot"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (h *harness) createSession(t *testing.T) string {
	t.Helper()
	w := h.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[sessionBody](t, w).ID
}

func TestCreateAndGetSession(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[sessionBody](t, w)
	assert.True(t, strings.HasPrefix(created.ID, sessions.Prefix))
	assert.Len(t, created.Snapshot.Workflows, 3)
	assert.NotEmpty(t, w.Header().Get(api.RequestIDHeader))

	var visitor *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == server.VisitorCookie {
			visitor = c
		}
	}
	require.NotNil(t, visitor, "visitor cookie should be issued")
	assert.True(t, visitor.HttpOnly)

	// A returning visitor keeps their cookie.
	w = h.do(t, http.MethodPost, "/api/v1/sessions", nil, visitor)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Result().Cookies())

	w = h.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[sessionBody](t, w).ID)

	w = h.do(t, http.MethodGet, "/api/v1/sessions/ses_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	w = h.do(t, http.MethodDelete, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(t, http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActionAdvancesWorkflow(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(t)

	w := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/actions", map[string]any{
		"op": "advance", "workflow": string(workflow.RevenueLeak),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decode[sessionBody](t, w).Snapshot
	st, ok := snap.Workflow(workflow.RevenueLeak)
	require.True(t, ok)
	assert.NotEqual(t, workflow.Idle, st.Step)
	assert.NotEmpty(t, snap.Activity)
}

func TestActionUnknownValuesAreNoOps(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(t)

	before := decode[sessionBody](t, h.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)).Snapshot
	w := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/actions", map[string]any{
		"op": "advance", "workflow": "payroll",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, before.Version, decode[sessionBody](t, w).Snapshot.Version)
}

func TestActionValidation(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(t)

	for name, body := range map[string]any{
		"unknown op":       map[string]any{"op": "explode"},
		"missing workflow": map[string]any{"op": "advance"},
		"extra field":      map[string]any{"op": "reset", "force": true},
		"missing op":       map[string]any{"workflow": "revenue-leak"},
	} {
		t.Run(name, func(t *testing.T) {
			w := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/actions", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestSettingsAndViewModeActions(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(t)

	w := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/actions", map[string]any{
		"op": "updateSettings", "settings": map[string]any{"seed": 7, "debugOverlay": true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decode[sessionBody](t, w).Snapshot
	assert.Equal(t, 7, snap.Settings.Seed)
	assert.True(t, snap.Settings.DebugOverlay)

	w = h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/actions", map[string]any{"op": "chooseMode", "mode": "glasses"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, demo.ViewGlasses, decode[sessionBody](t, w).Snapshot.ViewMode)
}

func TestKeyboardShortcut(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(t)

	w := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/keys", map[string]any{"key": "2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.WireTransfer, decode[sessionBody](t, w).Snapshot.Active)

	// Typing into a field does not trigger shortcuts.
	w = h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/keys", map[string]any{"key": "Escape", "inTextInput": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.WireTransfer, decode[sessionBody](t, w).Snapshot.Active)

	w = h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/keys", map[string]any{"key": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntelligencePanels(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(t)

	w := h.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/intelligence", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[intelligence.Panels](t, w).Ledger)

	h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/actions", map[string]any{"op": "advance", "workflow": "board-briefing"})
	w = h.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/intelligence", nil)
	require.Equal(t, http.StatusOK, w.Code)
	panels := decode[intelligence.Panels](t, w)
	require.Len(t, panels.Ledger, 1)
	assert.NoError(t, intelligence.VerifyChain(panels.Ledger))
	assert.NotEmpty(t, panels.Drift)
}

func TestAutoplayStartStop(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(t)

	w := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/autoplay", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	p := decode[autoplay.Progress](t, w)
	assert.True(t, p.Playing)
	assert.Equal(t, 1, p.Act)

	snap := decode[sessionBody](t, h.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)).Snapshot
	assert.True(t, snap.Autoplay)

	w = h.do(t, http.MethodDelete, "/api/v1/sessions/"+id+"/autoplay", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[autoplay.Progress](t, w).Playing)

	w = h.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/autoplay/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[autoplay.Progress](t, w).Playing)
}

func TestAutoplayReporterStopsAfterReset(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(t)

	require.Equal(t, http.StatusAccepted, h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/autoplay", nil).Code)
	sess, err := h.registry.Get(id)
	require.NoError(t, err)
	require.True(t, sess.Reporter.Running())

	w := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/actions", map[string]any{"op": "reset"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[sessionBody](t, w).Snapshot.Autoplay)

	require.Eventually(t, func() bool {
		h.clock.Add(autoplay.ReportInterval)
		return !sess.Reporter.Running()
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, sess.Reporter.Latest().Playing)
}

func TestExportArchivesBundle(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(t)
	for _, wf := range workflow.All() {
		h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/actions", map[string]any{"op": "advance", "workflow": string(wf)})
	}

	w := h.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
	digest := w.Header().Get(server.EvidenceDigestHeader)
	assert.Equal(t, artifacts.Digest(w.Body.Bytes()), digest)

	m, err := evidence.Verify(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, id, m.SessionID)

	ctx := context.Background()
	stored, err := h.artifacts.Get(ctx, server.ExportKey(id, digest))
	require.NoError(t, err)
	assert.Equal(t, w.Body.Bytes(), stored)

	rows, err := h.records.Select(ctx, records.Query{
		Table:   records.TableEvidenceExports,
		Filters: []records.Filter{records.Where("session_id", id)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, digest, rows[0].String("sha256"))
}

func TestDeckPages(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/deck/01-problem", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `data-page="01-problem"`)

	w = h.do(t, http.MethodGet, "/deck/99-missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodGet, "/deck", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "04-ask")
}

func TestAdminRedirectsToLogin(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/admin", "/admin/donations?status=paid"} {
		w := h.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusFound, w.Code, path)
		assert.Equal(t, "/login?next="+url.QueryEscape(path), w.Header().Get("Location"))
	}

	w := h.do(t, http.MethodGet, "/login?next=%2Fadmin%2Fexports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="/admin/exports"`)
}

func login(t *testing.T, h *harness, password, next string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"email": {adminEmail}, "password": {password}, "next": {next}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func adminCookie(t *testing.T, h *harness) *http.Cookie {
	t.Helper()
	w := login(t, h, adminPassword, "/admin")
	require.Equal(t, http.StatusSeeOther, w.Code)
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t)

	w := login(t, h, "wrong password", "/admin")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")

	// An off-site next falls back to the admin home.
	w = login(t, h, adminPassword, "https://evil.example/")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/admin", w.Header().Get("Location"))

	c := adminCookie(t, h)
	h.createSession(t)
	w = h.do(t, http.MethodGet, "/admin", nil, c)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary["liveSessions"])

	w = h.do(t, http.MethodPost, "/logout", nil, c)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestCheckoutAndWebhook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	w := h.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{
		"tier": "backer", "amountCents": 10000, "email": "Donor@Example.com",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode[map[string]string](t, w)["url"], "https://sita.example/donate/success")

	rows, err := h.records.Select(ctx, records.Query{Table: records.TableDonations})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, payments.StatusPending, rows[0].String("status"))
	checkoutID := rows[0].String("checkout_id")

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":%q}}}`, checkoutID))
	send := func(sig string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/checkout", bytes.NewReader(payload))
		req.Header.Set(payments.SignatureHeader, sig)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusUnauthorized, send("t=1,v1=deadbeef"))
	assert.Equal(t, http.StatusOK, send(payments.Sign([]byte(webhookSecret), payload, h.clock.Now())))
	// Redelivery is accepted.
	assert.Equal(t, http.StatusOK, send(payments.Sign([]byte(webhookSecret), payload, h.clock.Now())))

	paid, err := h.records.Count(ctx, records.TableDonations, []records.Filter{records.Where("status", payments.StatusPaid)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, paid)

	w = h.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{
		"tier": "patron", "amountCents": 100, "email": "donor@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/tiers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "founding-circle")
}

func TestAdminInvokeProxiesFunction(t *testing.T) {
	var gotAuth string
	fn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.Copy(w, r.Body)
	}))
	defer fn.Close()

	h := newHarness(t, func(o *server.Options) {
		o.Functions = auth.NewFunctions(fn.URL, nil)
	})
	c := adminCookie(t, h)

	w := h.do(t, http.MethodPost, "/admin/functions/echo", map[string]any{"hello": "world"}, c)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"hello":"world"}`, w.Body.String())
	assert.Equal(t, "Bearer "+c.Value, gotAuth)

	w = h.do(t, http.MethodPost, "/admin/functions/Bad_Name", map[string]any{}, c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminDeckUpload(t *testing.T) {
	h := newHarness(t)
	c := adminCookie(t, h)

	req := httptest.NewRequest(http.MethodPut, "/admin/deck/05-team", strings.NewReader("<h1>Team</h1>"))
	req.AddCookie(c)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, "/deck/05-team", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<h1>Team</h1>", w.Body.String())
}

func TestMiddlewareChain(t *testing.T) {
	t.Run("version gate", func(t *testing.T) {
		gate, err := api.NewVersionGate("1.0.0")
		require.NoError(t, err)
		h := newHarness(t, func(o *server.Options) { o.VersionGate = gate })

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(api.ClientVersionHeader, "0.9.0")
		w := httptest.NewRecorder()
		h.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUpgradeRequired, w.Code)
	})

	t.Run("rate limit", func(t *testing.T) {
		h := newHarness(t, func(o *server.Options) {
			o.RateLimiter = api.NewGlobalRateLimiter(1, 1, o.Clock)
		})
		assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health", nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodGet, "/health", nil).Code)
	})
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(t)

	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	br := bufio.NewReader(resp.Body)
	next := func() demo.Snapshot {
		t.Helper()
		for {
			line, err := br.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: "); ok {
				var snap demo.Snapshot
				require.NoError(t, json.Unmarshal([]byte(data), &snap))
				return snap
			}
		}
	}

	first := next()
	assert.Empty(t, first.Active)

	w := h.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/actions", map[string]any{
		"op": "setActiveWorkflow", "workflow": string(workflow.BoardBriefing),
	})
	require.Equal(t, http.StatusOK, w.Code)

	second := next()
	assert.Equal(t, workflow.BoardBriefing, second.Active)
	assert.Greater(t, second.Version, first.Version)
}

func TestEventStreamKeepsSessionAlive(t *testing.T) {
	const keepAlive = 10 * time.Minute
	h := newHarness(t, func(o *server.Options) { o.KeepAlive = keepAlive })
	id := h.createSession(t)

	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/sessions/"+id+"/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	kept := make(chan struct{}, 256)
	go func() {
		br := bufio.NewReader(resp.Body)
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, ": keep-alive") {
				kept <- struct{}{}
			}
		}
	}()

	// Forty idle minutes against the default thirty minute TTL.
	for i := 0; i < 4; i++ {
		require.Eventually(t, func() bool {
			h.clock.Add(keepAlive)
			select {
			case <-kept:
				return true
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)
	}

	assert.Zero(t, h.registry.Evict())
	_, err = h.registry.Get(id)
	assert.NoError(t, err)
}
