// Package sessions keeps one demo store per browser session.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/Mindburn-Labs/sita/pkg/autoplay"
	"github.com/Mindburn-Labs/sita/pkg/demo"
	"github.com/Mindburn-Labs/sita/pkg/events"
	"github.com/Mindburn-Labs/sita/pkg/prefs"
	"github.com/Mindburn-Labs/sita/pkg/workflow"
)

var (
	// ErrSessionNotFound is returned for unknown or evicted handles.
	ErrSessionNotFound = errors.New("sessions: session not found")
	// ErrTooManySessions is returned when the registry is full.
	ErrTooManySessions = errors.New("sessions: too many sessions")
)

// Handle alphabet and length for session ids.
const (
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	Length   = 16
	Prefix   = "ses_"
)

// Session bundles a store with its autoplay player and progress reporter.
type Session struct {
	ID       string
	Visitor  string
	Created  time.Time
	Store    *demo.Store
	Player   *autoplay.Player
	Reporter *autoplay.Reporter

	lastSeen time.Time
	unsub    func()
}

func (s *Session) close() {
	s.Reporter.Stop()
	s.Player.Stop()
	s.unsub()
	s.Store.Close()
}

// Options configures a Registry.
type Options struct {
	Clock       clock.Clock
	Prefs       prefs.KV
	Publisher   events.Publisher
	Logger      *slog.Logger
	Settings    demo.Settings
	Timing      demo.Timing
	Scale       float64
	IdleTTL     time.Duration
	MaxSessions int
}

// Registry owns every live session.
type Registry struct {
	clk       clock.Clock
	machine   *workflow.Machine
	prefs     prefs.KV
	publisher events.Publisher
	logger    *slog.Logger
	settings  demo.Settings
	timing    demo.Timing
	scale     float64
	ttl       time.Duration
	max       int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds an empty registry. The workflow rule catalog is
// compiled once and shared by every session.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Prefs == nil {
		opts.Prefs = prefs.NewMemory()
	}
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Settings == (demo.Settings{}) {
		opts.Settings = demo.DefaultSettings()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10000
	}
	m, err := workflow.NewMachine(opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Registry{
		clk:       opts.Clock,
		machine:   m,
		prefs:     opts.Prefs,
		publisher: opts.Publisher,
		logger:    opts.Logger.With("component", "sessions"),
		settings:  opts.Settings,
		timing:    opts.Timing,
		scale:     opts.Scale,
		ttl:       opts.IdleTTL,
		max:       opts.MaxSessions,
		sessions:  make(map[string]*Session),
	}, nil
}

// Create starts a new session for a visitor. The visitor id scopes the
// persisted view mode; an empty visitor shares the anonymous scope.
func (r *Registry) Create(visitor string) (*Session, error) {
	r.mu.Lock()
	full := len(r.sessions) >= r.max
	r.mu.Unlock()
	if full {
		return nil, ErrTooManySessions
	}

	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return nil, fmt.Errorf("sessions: %w", err)
	}
	id = Prefix + id
	if visitor == "" {
		visitor = "anonymous"
	}

	settings := r.settings
	store := demo.NewStore(demo.Options{
		Clock:    r.clk,
		Machine:  r.machine,
		Prefs:    prefs.Scope(r.prefs, visitor),
		Logger:   r.logger.With("session", id),
		Settings: &settings,
		Timing:   r.timing,
	})
	player := autoplay.NewPlayer(store, autoplay.Options{
		Clock:  r.clk,
		Scale:  r.scale,
		Logger: r.logger.With("session", id),
	})
	store.AttachDirector(player)

	now := r.clk.Now()
	sess := &Session{
		ID:       id,
		Visitor:  visitor,
		Created:  now,
		Store:    store,
		Player:   player,
		Reporter: autoplay.NewReporter(player, r.clk),
		lastSeen: now,
	}
	sess.unsub = store.Subscribe(r.forwarder(id))

	// Concurrent creates may have filled the registry since the first check.
	r.mu.Lock()
	if len(r.sessions) >= r.max {
		r.mu.Unlock()
		sess.close()
		return nil, ErrTooManySessions
	}
	r.sessions[id] = sess
	r.mu.Unlock()

	r.logger.Info("session created", "session", id)
	return sess, nil
}

// forwarder publishes activity entries and the completion event of one
// session. It runs inside the store's notification path and never calls
// back into the store.
func (r *Registry) forwarder(id string) func(demo.Snapshot) {
	var lastSeq uint64
	completed := false
	return func(snap demo.Snapshot) {
		ctx := context.Background()
		for _, e := range snap.Activity {
			if e.Seq <= lastSeq {
				continue
			}
			lastSeq = e.Seq
			ev := events.ActivityAppended{
				Session:   id,
				Seq:       e.Seq,
				Type:      string(e.Type),
				Message:   e.Message,
				Timestamp: e.Timestamp,
			}
			if err := r.publisher.Publish(ctx, events.ActivityTopic(id), ev); err != nil {
				r.logger.Warn("failed to publish activity", "session", id, "error", err)
			}
		}
		if snap.Completed && !completed {
			ev := events.DemoCompleted{Session: id, Receipts: len(snap.Receipts), At: r.clk.Now().UTC()}
			if err := r.publisher.Publish(ctx, events.CompletionTopic(id), ev); err != nil {
				r.logger.Warn("failed to publish completion", "session", id, "error", err)
			}
		}
		completed = snap.Completed
	}
}

// Get returns a live session and marks it as seen.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.lastSeen = r.clk.Now()
	return s, nil
}

// Touch marks a live session as seen without handing it out. Long-lived
// readers such as event streams call it to hold off eviction.
func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.lastSeen = r.clk.Now()
	return nil
}

// Delete closes and removes a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict closes every session idle for longer than the TTL and returns how
// many were removed.
func (r *Registry) Evict() int {
	now := r.clk.Now()
	var stale []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.ttl {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		s.close()
		r.logger.Info("session evicted", "session", s.ID)
	}
	return len(stale)
}

// Run evicts idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := r.clk.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Evict()
		}
	}
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.close()
	}
}
