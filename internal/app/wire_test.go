package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamtriage/backend/internal/ai"
	"github.com/teamtriage/backend/internal/config"
	"github.com/teamtriage/backend/internal/scheduler"
	"github.com/teamtriage/backend/internal/vectorstore"
)

func localConfig() config.Config {
	return config.Config{
		VectorBackend:       "memory",
		ProcessedBackend:    "memory",
		ProcessedWindow:     24 * time.Hour,
		EmbeddingDim:        64,
		TeamMetadataKey:     "team",
		SimilarityThreshold: 0.6,
		MinSimilarTickets:   2,
		ArbiterK:            20,
		PollInterval:        time.Minute,
		Teams:               "team-cit,team-nandi",
		TeamDisplayNames:    "team-cit=Team CIT",
		TriageLabel:         "triage_needed",
	}
}

func TestBuildLocal(t *testing.T) {
	c, err := Build(context.Background(), localConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Store)
	assert.Nil(t, c.Pipeline.Recorder)
	assert.Nil(t, c.Pipeline.Notifier)
	assert.Nil(t, c.Pipeline.Arbiter.Assistant)
	assert.Equal(t, []string{"Team CIT", "Team Nandi"}, c.Pipeline.Arbiter.Teams)
	assert.IsType(t, ai.MockEmbedder{}, c.Embedder)
	assert.IsType(t, &vectorstore.Memory{}, c.Vectors)
	require.NotNil(t, c.Scheduler)
	assert.False(t, c.Scheduler.Status(context.Background()).Running)
}

func TestBuildRejectsUnknownBackends(t *testing.T) {
	cfg := localConfig()
	cfg.VectorBackend = "chroma"
	_, err := Build(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown VECTOR_BACKEND")

	cfg = localConfig()
	cfg.VectorBackend = "pgvector"
	_, err = Build(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "requires DATABASE_URL")

	cfg = localConfig()
	cfg.ProcessedBackend = "etcd"
	_, err = Build(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown PROCESSED_BACKEND")
}

func TestNewProcessedSetMemory(t *testing.T) {
	set, err := NewProcessedSet(context.Background(), localConfig())
	require.NoError(t, err)
	assert.IsType(t, &scheduler.MemorySet{}, set)
}

func TestNewEmbedderSelectsRemote(t *testing.T) {
	cfg := localConfig()
	cfg.LLMBaseURL = "http://llm.internal/v1"
	cfg.EmbeddingModel = "text-embedding-3-small"
	e := NewEmbedder(cfg, zerolog.Nop())
	remote, ok := e.(ai.OpenAICompatEmbedder)
	require.True(t, ok)
	assert.Equal(t, "text-embedding-3-small", remote.Model)
	assert.NotNil(t, NewAssistant(cfg, zerolog.Nop()))
}
