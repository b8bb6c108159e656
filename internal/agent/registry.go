package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSessionID names the shared agent used when no session is given.
const DefaultSessionID = "default"

// DefaultMaxIdle is the idle age evicted when none is given.
const DefaultMaxIdle = 24 * time.Hour

// Factory builds the agent for a new session.
type Factory func(sessionID string) *Agent

// Observer is notified after every processed message, outside the agent lock.
type Observer interface {
	Observe(ctx context.Context, ex *Exchange)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ex *Exchange)

func (f ObserverFunc) Observe(ctx context.Context, ex *Exchange) { f(ctx, ex) }

type binding struct {
	agent        *Agent
	lastActivity time.Time
	inflight     int
}

// Registry binds sessions to agents. The default agent lives outside the
// session map and is never evicted.
type Registry struct {
	factory   Factory
	def       *Agent
	sessions  map[string]*binding
	observers []Observer
	now       func() time.Time
	mu        sync.RWMutex
	logger    *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock overrides the registry's time source.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithObserver adds an exchange observer.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) { r.observers = append(r.observers, o) }
}

// NewRegistry creates a registry and its default agent.
func NewRegistry(factory Factory, logger *zap.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		factory:  factory,
		sessions: make(map[string]*binding),
		now:      time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(r)
	}
	r.def = factory(DefaultSessionID)
	return r
}

// Default returns the shared default agent.
func (r *Registry) Default() *Agent { return r.def }

// GetOrCreate returns the session's agent, creating and binding one if
// needed, and refreshes the session's activity stamp.
func (r *Registry) GetOrCreate(sessionID string) *Agent {
	if isDefault(sessionID) {
		return r.def
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.sessions[sessionID]; ok {
		b.lastActivity = r.now()
		return b.agent
	}
	a := r.factory(sessionID)
	r.sessions[sessionID] = &binding{agent: a, lastActivity: r.now()}
	r.logger.Info("created session agent",
		zap.String("session", sessionID),
		zap.String("agent", a.ID))
	return a
}

// Lookup returns the session's agent without creating one.
func (r *Registry) Lookup(sessionID string) (*Agent, bool) {
	if isDefault(sessionID) {
		return r.def, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return b.agent, true
}

// ProcessMessage routes a message to the session's agent and notifies
// observers once the agent is done with it. The binding cannot be evicted
// while the message is in flight.
func (r *Registry) ProcessMessage(ctx context.Context, message, sessionID string) *Exchange {
	a, b := r.acquire(sessionID)
	ex := a.Process(ctx, message)
	r.release(b)
	for _, o := range r.observers {
		o.Observe(ctx, ex)
	}
	return ex
}

// acquire returns the session's agent with its binding marked busy. The
// default agent has no binding.
func (r *Registry) acquire(sessionID string) (*Agent, *binding) {
	if isDefault(sessionID) {
		return r.def, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.sessions[sessionID]
	if !ok {
		b = &binding{agent: r.factory(sessionID)}
		r.sessions[sessionID] = b
		r.logger.Info("created session agent",
			zap.String("session", sessionID),
			zap.String("agent", b.agent.ID))
	}
	b.inflight++
	b.lastActivity = r.now()
	return b.agent, b
}

func (r *Registry) release(b *binding) {
	if b == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b.inflight--
	b.lastActivity = r.now()
}

// Status snapshots the session's agent, creating it if missing.
func (r *Registry) Status(sessionID string) Status {
	a := r.GetOrCreate(sessionID)
	st := a.Status()
	if !isDefault(sessionID) {
		r.mu.RLock()
		if b, ok := r.sessions[sessionID]; ok {
			st.LastActivity = b.lastActivity
		}
		r.mu.RUnlock()
	}
	return st
}

// StatusAll snapshots the default agent followed by every session agent
// ordered by session id.
func (r *Registry) StatusAll() []Status {
	r.mu.RLock()
	type entry struct {
		id string
		b  binding
	}
	entries := make([]entry, 0, len(r.sessions))
	for id, b := range r.sessions {
		entries = append(entries, entry{id: id, b: *b})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	out := make([]Status, 0, len(entries)+1)
	out = append(out, r.def.Status())
	for _, e := range entries {
		st := e.b.agent.Status()
		st.LastActivity = e.b.lastActivity
		out = append(out, st)
	}
	return out
}

// EvictIdle removes sessions idle for longer than maxAge and returns their
// ids. Sessions with a message in flight are kept. maxAge <= 0 uses
// DefaultMaxIdle.
func (r *Registry) EvictIdle(maxAge time.Duration) []string {
	if maxAge <= 0 {
		maxAge = DefaultMaxIdle
	}
	cutoff := r.now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for id, b := range r.sessions {
		if b.inflight == 0 && b.lastActivity.Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	if len(evicted) > 0 {
		r.logger.Info("evicted idle sessions",
			zap.Int("count", len(evicted)),
			zap.Duration("max_age", maxAge))
	}
	return evicted
}

// ClearSession drops the session's agent and reports whether one existed.
// A message already in flight finishes on the dropped agent. Clearing the
// default session resets the default agent instead.
func (r *Registry) ClearSession(sessionID string) bool {
	if isDefault(sessionID) {
		r.def.Reset()
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	delete(r.sessions, sessionID)
	r.logger.Info("cleared session", zap.String("session", sessionID))
	return true
}

// Len returns the number of bound sessions, excluding the default agent.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func isDefault(sessionID string) bool {
	return sessionID == "" || sessionID == DefaultSessionID
}
