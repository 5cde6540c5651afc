package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/Mindburn-Labs/sita/pkg/util/resiliency"
)

var functionName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// ErrInvalidFunction is returned for malformed function names.
var ErrInvalidFunction = errors.New("auth: invalid function name")

// InvokeError is a non-2xx answer from a hosted function.
type InvokeError struct {
	Function string
	Status   int
	Body     string
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("function %s: status %d: %s", e.Function, e.Status, e.Body)
}

// Functions calls hosted functions on behalf of a session.
type Functions struct {
	baseURL string
	client  *resiliency.EnhancedClient
}

// NewFunctions builds a client for the functions endpoint at baseURL.
func NewFunctions(baseURL string, client *resiliency.EnhancedClient) *Functions {
	if client == nil {
		client = resiliency.NewEnhancedClient(resiliency.Options{Name: "functions"})
	}
	return &Functions{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Invoke POSTs body as JSON to the named function with the session's bearer
// token and returns the raw response body.
func (f *Functions) Invoke(ctx context.Context, s *Session, fn string, body any) (json.RawMessage, error) {
	if s == nil || s.Token == "" {
		return nil, ErrNoSession
	}
	if f.baseURL == "" {
		return nil, fmt.Errorf("auth: functions endpoint not configured")
	}
	if !functionName.MatchString(fn) {
		return nil, fmt.Errorf("%w %q", ErrInvalidFunction, fn)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/functions/v1/"+fn, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", fn, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", fn, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &InvokeError{Function: fn, Status: resp.StatusCode, Body: strings.TrimSpace(string(out))}
	}
	if len(out) == 0 {
		out = []byte("null")
	}
	return json.RawMessage(out), nil
}
