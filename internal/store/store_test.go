package store

import (
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/nidhogg/jarvis/internal/agent"
	"github.com/nidhogg/jarvis/internal/classifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_Embedded(t *testing.T) {
	files, err := migrationFiles(migrations)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "migrations/001_exchanges.up.sql", files[0])
}

func TestMigrationFiles_OrderAndFilter(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_b.up.sql":   {Data: []byte("SELECT 1")},
		"migrations/002_a.up.sql":   {Data: []byte("SELECT 1")},
		"migrations/002_a.down.sql": {Data: []byte("SELECT 1")},
		"migrations/README":         {Data: []byte("notes")},
	}
	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"migrations/002_a.up.sql", "migrations/010_b.up.sql"}, files)
}

func TestMigrationFiles_MissingDir(t *testing.T) {
	_, err := migrationFiles(fstest.MapFS{})
	assert.Error(t, err)
}

func TestRecordFromExchange(t *testing.T) {
	started := time.Date(2026, 5, 2, 10, 30, 0, 0, time.UTC)
	ex := &agent.Exchange{
		AgentID:   "agent-1",
		SessionID: "web:abc",
		Message:   "What skills do you have?",
		Reply: agent.Reply{
			Response:   "I'd be happy to share.",
			Category:   "skills",
			Confidence: 0.3,
			Model:      "gpt-4o-mini",
			Sentiment:  classifier.Sentiment{Label: classifier.LabelPositive},
			ChainID:    "chain-1",
		},
		Chain:        &agent.ThinkingChain{StartedAt: started},
		GeneratorErr: errors.New("timeout"),
	}

	r := RecordFromExchange(ex)
	assert.Equal(t, "chain-1", r.ChainID)
	assert.Equal(t, "web:abc", r.SessionID)
	assert.Equal(t, "agent-1", r.AgentID)
	assert.Equal(t, "skills", r.Category)
	assert.Equal(t, 0.3, r.Confidence)
	assert.Equal(t, "gpt-4o-mini", r.Model)
	assert.Equal(t, classifier.LabelPositive, r.Sentiment)
	assert.Equal(t, "timeout", r.GeneratorError)
	assert.True(t, r.CreatedAt.Equal(started))
}

func TestRecordFromExchange_Defaults(t *testing.T) {
	r := RecordFromExchange(&agent.Exchange{SessionID: "s"})
	assert.Equal(t, "neutral", r.Sentiment)
	assert.Empty(t, r.GeneratorError)
	assert.True(t, r.CreatedAt.IsZero())
}
