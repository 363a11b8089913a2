package analysis

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RegistryConfig configures the session registry.
type RegistryConfig struct {
	Logger      zerolog.Logger
	Session     Config        // template applied to every session
	MaxSessions int           // concurrent session cap (default 32)
	IdleTTL     time.Duration // reap sessions idle longer than this (default 10m)
	CacheSize   int           // shared result cache capacity (default 512)
}

// Registry owns the sessions of all connected callers, keyed by an
// opaque session id handed to the browser. All sessions share one
// analysis result cache.
type Registry struct {
	cfg   RegistryConfig
	log   zerolog.Logger
	cache *Cache
	dial  func() (Channel, error)

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session   *Session
	debouncer *Debouncer
}

// NewRegistry creates a registry whose sessions obtain engine channels
// from dial.
func NewRegistry(cfg RegistryConfig, dial func() (Channel, error)) *Registry {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 32
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &Registry{
		cfg:      cfg,
		log:      cfg.Logger,
		cache:    NewCache(cfg.CacheSize),
		dial:     dial,
		sessions: make(map[string]*entry),
	}
}

// Cache returns the shared result cache.
func (r *Registry) Cache() *Cache {
	return r.cache
}

// Create starts a new session and its engine process. Returns the
// session id the caller uses on every subsequent request.
func (r *Registry) Create() (string, *Session, error) {
	r.mu.Lock()
	if len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return "", nil, fmt.Errorf("session limit reached (%d)", r.cfg.MaxSessions)
	}
	id := newSessionID()
	cfg := r.cfg.Session
	cfg.Logger = r.log.With().Str("session", id).Logger()
	sess := NewSession(cfg, r.cache, r.dial)
	deb := NewDebouncer(func(req Request) {
		if _, err := sess.StartAnalysis(req); err != nil {
			cfg.Logger.Warn().Err(err).Msg("debounced start failed")
		}
	})
	r.sessions[id] = &entry{session: sess, debouncer: deb}
	r.mu.Unlock()

	if err := sess.Initialize(); err != nil {
		r.Remove(id)
		return "", nil, err
	}
	r.log.Info().Str("session", id).Int("sessions", r.Len()).Msg("session created")
	return id, sess, nil
}

// Get returns the session for id, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.session, nil
}

// Schedule routes a request through the session's debouncer. A zero
// delay issues immediately.
func (r *Registry) Schedule(id string, req Request, delay time.Duration) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	// Reject up front what StartAnalysis would reject, so callers see
	// the precondition failure instead of a silent dropped timer.
	if st := e.session.Status(); !st.Ready {
		if st.State == StateFailed {
			return fmt.Errorf("%w: %s", ErrEngineFailed, st.FailReason)
		}
		if st.State == StateUninitialized || st.State == StateInitializing {
			return ErrNotReady
		}
	}
	e.debouncer.Schedule(req, delay)
	return nil
}

// Stop cancels the session's analysis. ErrSessionNotFound for unknown
// ids, ErrAlreadyStopped when it was already stopped.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	e.debouncer.Cancel()
	return e.session.Stop()
}

// Remove closes a session and releases its engine process.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		e.debouncer.Cancel()
		e.session.Close()
		r.log.Info().Str("session", id).Msg("session removed")
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run reaps idle sessions until ctx is cancelled. Browser tabs close
// without saying goodbye, so abandoned sessions are expired by TTL.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.reapIdle()
		}
	}
}

func (r *Registry) reapIdle() {
	cutoff := time.Now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var stale []string
	for id, e := range r.sessions {
		if e.session.LastActive().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.log.Info().Str("session", id).Msg("reaping idle session")
		r.Remove(id)
	}
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Remove(id)
	}
}

var sessionAlphabet = []byte("abcdefghijklmnopqrstuvwxyz0123456789")

func newSessionID() string {
	b := make([]byte, 12)
	rnd := make([]byte, 12)
	_, _ = rand.Read(rnd)
	for i := range b {
		b[i] = sessionAlphabet[int(rnd[i])%len(sessionAlphabet)]
	}
	return string(b)
}

// IsNotFound reports whether err maps to a not-found condition at the
// HTTP boundary (unknown session, or stopping an already stopped one).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrAlreadyStopped)
}
