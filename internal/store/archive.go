package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/jarvis/internal/agent"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	archiveTimeout      = 3 * time.Second
)

// Record is one archived exchange.
type Record struct {
	ChainID        string    `json:"chain_id"`
	SessionID      string    `json:"session_id"`
	AgentID        string    `json:"agent_id"`
	Message        string    `json:"message"`
	Response       string    `json:"response"`
	Category       string    `json:"category"`
	Confidence     float64   `json:"confidence"`
	Model          string    `json:"model"`
	Sentiment      string    `json:"sentiment"`
	GeneratorError string    `json:"generator_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AppendExchange stores one exchange.
func (s *Store) AppendExchange(ctx context.Context, r *Record) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO exchanges (chain_id, session_id, agent_id, message, response,
			category, confidence, model, sentiment, generator_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ChainID, r.SessionID, r.AgentID, r.Message, r.Response,
		r.Category, r.Confidence, r.Model, r.Sentiment, r.GeneratorError, createdAt,
	)
	if err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	return nil
}

// History returns up to limit of the session's newest exchanges, oldest first.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT chain_id, session_id, agent_id, message, response, category,
			confidence, model, sentiment, generator_error, created_at
		FROM (
			SELECT * FROM exchanges
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ChainID, &r.SessionID, &r.AgentID, &r.Message, &r.Response,
			&r.Category, &r.Confidence, &r.Model, &r.Sentiment, &r.GeneratorError, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CategoryCounts returns how often each category was answered in a session.
func (s *Store) CategoryCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT category, COUNT(*) FROM exchanges
		WHERE session_id = $1
		GROUP BY category`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}

// Observe archives a processed exchange. Errors are logged only.
func (s *Store) Observe(ctx context.Context, ex *agent.Exchange) {
	if ex.Empty {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := s.AppendExchange(ctx, RecordFromExchange(ex)); err != nil {
		s.logger.Warn("archive exchange failed", zap.String("session", ex.SessionID), zap.Error(err))
	}
}

// RecordFromExchange converts a processed exchange to an archive record.
func RecordFromExchange(ex *agent.Exchange) *Record {
	r := &Record{
		ChainID:    ex.Reply.ChainID,
		SessionID:  ex.SessionID,
		AgentID:    ex.AgentID,
		Message:    ex.Message,
		Response:   ex.Reply.Response,
		Category:   ex.Reply.Category,
		Confidence: ex.Reply.Confidence,
		Model:      ex.Reply.Model,
		Sentiment:  ex.Reply.Sentiment.Label,
	}
	if r.Sentiment == "" {
		r.Sentiment = "neutral"
	}
	if ex.Chain != nil {
		r.CreatedAt = ex.Chain.StartedAt
	}
	if ex.GeneratorErr != nil {
		r.GeneratorError = ex.GeneratorErr.Error()
	}
	return r
}
