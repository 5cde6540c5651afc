package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func get(h http.Handler, remote string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	mock := clock.NewMock()
	limiter := NewGlobalRateLimiter(1, 2, mock)
	h := limiter.Middleware(ok)

	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:5000").Code)
	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:5001").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "10.0.0.1:5002").Code)

	// Other IPs have their own bucket.
	assert.Equal(t, http.StatusOK, get(h, "10.0.0.2:5000").Code)

	mock.Add(time.Second)
	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:5003").Code)
}

func TestRateLimitCleanup(t *testing.T) {
	mock := clock.NewMock()
	limiter := NewGlobalRateLimiter(1, 1, mock)
	get(limiter.Middleware(ok), "[::1]:80")
	get(limiter.Middleware(ok), "10.0.0.9:80")

	mock.Add(2 * time.Minute)
	get(limiter.Middleware(ok), "10.0.0.9:81")
	mock.Add(2 * time.Minute)

	assert.Equal(t, 1, limiter.Cleanup())
	assert.Len(t, limiter.visitors, 1)
}

func TestVersionGate(t *testing.T) {
	g, err := NewVersionGate("1.2.0")
	require.NoError(t, err)
	h := g.Middleware(ok)

	assert.Equal(t, http.StatusOK, get(h, "1.1.1.1:1").Code)
	assert.Equal(t, http.StatusOK, get(h, "1.1.1.1:1", ClientVersionHeader, "1.2.0").Code)
	assert.Equal(t, http.StatusOK, get(h, "1.1.1.1:1", ClientVersionHeader, "2.0.1").Code)
	assert.Equal(t, http.StatusUpgradeRequired, get(h, "1.1.1.1:1", ClientVersionHeader, "1.1.9").Code)
	assert.Equal(t, http.StatusBadRequest, get(h, "1.1.1.1:1", ClientVersionHeader, "banana").Code)

	_, err = NewVersionGate("not a version")
	assert.Error(t, err)
}

const testSchema = `{
  "type": "object",
  "required": ["op"],
  "properties": {
    "op": {"enum": ["advance", "reset"]},
    "workflow": {"type": "string"}
  },
  "additionalProperties": false
}`

func TestSchemasDecodeValid(t *testing.T) {
	s, err := CompileSchemas(map[string]string{"action": testSchema})
	require.NoError(t, err)

	var dst struct {
		Op       string `json:"op"`
		Workflow string `json:"workflow"`
	}
	cases := []struct {
		body string
		ok   bool
	}{
		{`{"op":"advance","workflow":"revenue-leak"}`, true},
		{`{"op":"launch"}`, false},
		{`{"workflow":"x"}`, false},
		{`{"op":"reset","extra":1}`, false},
		{`{not json`, false},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		got := s.DecodeValid(w, r, "action", &dst)
		assert.Equal(t, tc.ok, got, tc.body)
		if !tc.ok {
			assert.Equal(t, http.StatusBadRequest, w.Code, tc.body)
		}
	}
	assert.Equal(t, "advance", dst.Op)
}

func TestCompileSchemasRejectsInvalid(t *testing.T) {
	_, err := CompileSchemas(map[string]string{"bad": `{"type": 12}`})
	assert.Error(t, err)
}
