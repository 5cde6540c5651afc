// Package resiliency wraps outbound HTTP calls to hosted collaborators with
// retries and a circuit breaker.
package resiliency

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ErrCircuitOpen is returned without calling the remote while the breaker
// is open.
var ErrCircuitOpen = errors.New("resiliency: circuit open")

// Options configures an EnhancedClient. Zero values get defaults.
type Options struct {
	Name         string
	HTTPClient   *http.Client
	MaxRetries   int
	BaseBackoff  time.Duration
	Threshold    int
	ResetTimeout time.Duration
	Clock        clock.Clock
}

// EnhancedClient wraps http.Client with exponential backoff with jitter,
// circuit breaking and trace context injection.
type EnhancedClient struct {
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	clk        clock.Clock
	breaker    *CircuitBreaker
}

// NewEnhancedClient builds a client.
func NewEnhancedClient(opts Options) *EnhancedClient {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 100 * time.Millisecond
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 5
	}
	if opts.ResetTimeout <= 0 {
		opts.ResetTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &EnhancedClient{
		client:     opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		backoff:    opts.BaseBackoff,
		clk:        opts.Clock,
		breaker:    NewCircuitBreaker(opts.Name, opts.Threshold, opts.ResetTimeout, opts.Clock),
	}
}

// Breaker exposes the client's circuit breaker.
func (c *EnhancedClient) Breaker() *CircuitBreaker {
	return c.breaker
}

// Do executes req, retrying transport errors and 5xx responses. Requests
// with a body are only retried when req.GetBody is set.
func (c *EnhancedClient) Do(req *http.Request) (*http.Response, error) {
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	if !c.breaker.Allow() {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, c.breaker.name)
	}

	var resp *http.Response
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			if req.Body != nil && req.GetBody == nil {
				break
			}
			if req.GetBody != nil {
				body, gerr := req.GetBody()
				if gerr != nil {
					err = gerr
					break
				}
				req.Body = body
			}
		}

		resp, err = c.client.Do(req)
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			c.breaker.Success()
			return resp, nil
		}
		if i == c.maxRetries {
			break
		}
		if resp != nil {
			_ = resp.Body.Close()
			resp = nil
		}

		// base * 2^i + jitter
		wait := c.backoff << i
		if n, rerr := rand.Int(rand.Reader, big.NewInt(50)); rerr == nil {
			wait += time.Duration(n.Int64()) * time.Millisecond
		}
		select {
		case <-req.Context().Done():
			c.breaker.Failure()
			return nil, req.Context().Err()
		case <-c.clk.After(wait):
		}
	}

	c.breaker.Failure()
	return resp, err
}

// Breaker states.
const (
	StateClosed   = "CLOSED"
	StateOpen     = "OPEN"
	StateHalfOpen = "HALF_OPEN"
)

// CircuitBreaker opens after threshold consecutive failures and lets one
// probe through once resetTimeout has passed.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	clk          clock.Clock
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        string
}

func NewCircuitBreaker(name string, threshold int, timeout time.Duration, clk clock.Clock) *CircuitBreaker {
	if clk == nil {
		clk = clock.New()
	}
	return &CircuitBreaker{
		name:         name,
		clk:          clk,
		threshold:    threshold,
		resetTimeout: timeout,
		state:        StateClosed,
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.clk.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = StateHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureCount = 0
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = cb.clk.Now()
	if cb.state == StateHalfOpen || cb.failureCount >= cb.threshold {
		cb.state = StateOpen
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
