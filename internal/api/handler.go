// Package api exposes the chat agents over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/jarvis/internal/agent"
	"github.com/nidhogg/jarvis/internal/content"
	"github.com/nidhogg/jarvis/internal/events"
	"github.com/nidhogg/jarvis/internal/gateway"
	"github.com/nidhogg/jarvis/internal/metrics"
	"github.com/nidhogg/jarvis/internal/provider"
	"github.com/nidhogg/jarvis/internal/store"
	"go.uber.org/zap"
)

// ErrNotConfigured is reported when an optional backend is absent.
var ErrNotConfigured = errors.New("not configured")

const (
	maxBodyBytes        = 64 << 10
	healthCheckTimeout  = 5 * time.Second
	defaultArchiveLimit = 50
	defaultEventCount   = 20
)

// Archive reads archived exchanges.
type Archive interface {
	History(ctx context.Context, sessionID string, limit int) ([]store.Record, error)
}

// EventReader reads recently published exchanges.
type EventReader interface {
	Recent(ctx context.Context, count int64) ([]events.Event, error)
}

// AdapterStatus reports chat gateway connections.
type AdapterStatus interface {
	StatusAll() []gateway.AdapterStatus
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions    *agent.Registry
	catalog     *content.Catalog
	providers   *provider.Router
	archive     Archive
	events      EventReader
	adapters    AdapterStatus
	metrics     *metrics.Collector
	maxIdle     time.Duration
	corsOrigins []string
	rps         float64
	burst       int
	logger      *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

func WithProviders(r *provider.Router) Option { return func(h *Handler) { h.providers = r } }
func WithArchive(a Archive) Option          { return func(h *Handler) { h.archive = a } }
func WithEvents(e EventReader) Option       { return func(h *Handler) { h.events = e } }
func WithAdapters(a AdapterStatus) Option   { return func(h *Handler) { h.adapters = a } }
func WithMetrics(m *metrics.Collector) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithSessionMaxIdle sets the idle age used when listing sessions sweeps.
func WithSessionMaxIdle(d time.Duration) Option { return func(h *Handler) { h.maxIdle = d } }

// WithCORSOrigins restricts cross-origin callers; empty allows any origin.
func WithCORSOrigins(origins []string) Option { return func(h *Handler) { h.corsOrigins = origins } }

// WithRateLimit bounds chat requests per client IP. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(h *Handler) {
		h.rps = rps
		h.burst = burst
	}
}

// NewHandler creates a new API handler.
func NewHandler(sessions *agent.Registry, catalog *content.Catalog, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		sessions: sessions,
		catalog:  catalog,
		maxIdle:  agent.DefaultMaxIdle,
		logger:   logger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(metricsMiddleware(h.metrics))
	}
	origins := h.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: len(h.corsOrigins) > 0,
	}))

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/health/providers", h.providerHealth)

		r.Route("/chatbot", func(r chi.Router) {
			r.With(rateLimiter(h.rps, h.burst)).Post("/chat", h.chat)
			r.Get("/suggestions", h.suggestions)
			r.Get("/capabilities", h.capabilities)
			r.Get("/topics", h.listTopics)
			r.Get("/topics/{name}", h.getTopic)

			r.Get("/sessions", h.listSessions)
			r.Post("/sessions/evict", h.evictSessions)
			r.Get("/sessions/{id}", h.getSession)
			r.Delete("/sessions/{id}", h.clearSession)
			r.Get("/sessions/{id}/memories", h.sessionMemories)
			r.Post("/sessions/{id}/tools/{name}", h.executeTool)
			r.Get("/sessions/{id}/archive", h.sessionArchive)
			r.Get("/events", h.recentEvents)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":   "ok",
		"service":  "jarvis",
		"sessions": h.sessions.Len(),
	}
	if h.providers != nil {
		resp["providers"] = h.providers.Len()
	}
	if h.adapters != nil {
		resp["adapters"] = h.adapters.StatusAll()
	}
	writeJSON(w, http.StatusOK, resp)
}

type providerHealth struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) providerHealth(w http.ResponseWriter, r *http.Request) {
	out := []providerHealth{}
	if h.providers != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		for _, p := range h.providers.ListProviders() {
			ph := providerHealth{ID: p.ID(), Name: p.Name(), Healthy: true}
			if err := p.HealthCheck(ctx); err != nil {
				ph.Healthy = false
				ph.Error = err.Error()
			}
			out = append(out, ph)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": out})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	agent.Reply
	Message   string    `json:"message"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = agent.DefaultSessionID
	}

	ex := h.sessions.ProcessMessage(r.Context(), req.Message, sessionID)
	writeJSON(w, http.StatusOK, chatResponse{
		Reply:     ex.Reply,
		Message:   req.Message,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": h.catalog.InitialSuggestions()})
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"capabilities": h.catalog.Capabilities(),
		"topics":       h.catalog.ListTopics(),
		"tools":        h.sessions.Default().Tools().Definitions(),
	})
}

func (h *Handler) listTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"topics": h.catalog.Topics()})
}

func (h *Handler) getTopic(w http.ResponseWriter, r *http.Request) {
	t, err := h.catalog.GetTopic(chi.URLParam(r, "name"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, content.ErrTopicNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	evicted := h.sessions.EvictIdle(h.maxIdle)
	h.recordSessions(evicted)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": h.sessions.StatusAll(),
		"evicted":  nonNil(evicted),
	})
}

type evictRequest struct {
	MaxAgeHours float64 `json:"max_age_hours"`
}

func (h *Handler) evictSessions(w http.ResponseWriter, r *http.Request) {
	var req evictRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.MaxAgeHours < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_age_hours must not be negative"})
		return
	}
	evicted := h.sessions.EvictIdle(time.Duration(req.MaxAgeHours * float64(time.Hour)))
	h.recordSessions(evicted)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"evicted": nonNil(evicted),
		"count":   len(evicted),
	})
}

func (h *Handler) recordSessions(evicted []string) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordEvictions(len(evicted))
	h.metrics.SetActiveSessions(h.sessions.Len())
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 0)
	st := h.sessions.Status(id)
	a := h.sessions.GetOrCreate(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     st,
		"transcript": a.Transcript(limit),
		"context":    a.Context(),
	})
}

func (h *Handler) clearSession(w http.ResponseWriter, r *http.Request) {
	cleared := h.sessions.ClearSession(chi.URLParam(r, "id"))
	msg := "Session cleared successfully"
	if !cleared {
		msg = "Session not found"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": cleared, "message": msg})
}

func (h *Handler) sessionMemories(w http.ResponseWriter, r *http.Request) {
	a := h.sessions.GetOrCreate(chi.URLParam(r, "id"))
	q := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 0)
	entries := a.Memories()
	if q != "" {
		entries = a.QueryMemories(q, limit)
	} else if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"memories": entries, "count": len(entries)})
}

func (h *Handler) executeTool(w http.ResponseWriter, r *http.Request) {
	a := h.sessions.GetOrCreate(chi.URLParam(r, "id"))
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := a.ExecuteTool(r.Context(), chi.URLParam(r, "name"), string(body))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, agent.ErrUnknownTool) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, out)
}

func (h *Handler) sessionArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive " + ErrNotConfigured.Error()})
		return
	}
	id := chi.URLParam(r, "id")
	recs, err := h.archive.History(r.Context(), id, queryInt(r, "limit", defaultArchiveLimit))
	if err != nil {
		h.logger.Error("archive history failed", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": id, "exchanges": recs})
}

func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event stream " + ErrNotConfigured.Error()})
		return
	}
	evs, err := h.events.Recent(r.Context(), int64(queryInt(r, "count", defaultEventCount)))
	if err != nil {
		h.logger.Error("read events failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": evs})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
