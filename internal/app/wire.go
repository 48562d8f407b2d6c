// Package app assembles the triage components from configuration.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamtriage/backend/internal/ai"
	"github.com/teamtriage/backend/internal/arbiter"
	"github.com/teamtriage/backend/internal/config"
	"github.com/teamtriage/backend/internal/db"
	"github.com/teamtriage/backend/internal/metrics"
	"github.com/teamtriage/backend/internal/notify"
	"github.com/teamtriage/backend/internal/retrieval"
	"github.com/teamtriage/backend/internal/scheduler"
	"github.com/teamtriage/backend/internal/scoring"
	"github.com/teamtriage/backend/internal/service"
	"github.com/teamtriage/backend/internal/tracker"
	"github.com/teamtriage/backend/internal/vectorstore"
)

type Components struct {
	Store     *db.Store
	Tracker   *tracker.Client
	Embedder  ai.Embedder
	Vectors   vectorstore.Store
	Metrics   *metrics.Recorder
	Pipeline  *service.Pipeline
	Ingestor  *service.Ingestor
	Scheduler *scheduler.Scheduler

	closers []func()
}

// Build connects every backend named in cfg. The database is optional
// unless the pgvector backend is selected.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	c.Metrics = metrics.New(cfg.StatsdAddr, cfg.AppName, cfg.Env, logger)
	c.closers = append(c.closers, func() { _ = c.Metrics.Close() })

	if cfg.DatabaseURL != "" {
		store, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		c.closers = append(c.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		c.Store = store
	} else {
		logger.Warn().Msg("DATABASE_URL not set; run and decision history disabled")
	}

	vectors, err := NewVectorStore(ctx, cfg, c.Store, logger)
	if err != nil {
		return nil, err
	}
	c.Vectors = vectors
	c.closers = append(c.closers, func() { _ = vectors.Close() })

	c.Tracker = tracker.New(TrackerConfig(cfg), logger.With().Str("component", "tracker").Logger())
	c.Embedder = NewEmbedder(cfg, logger)
	assistant := NewAssistant(cfg, logger)

	tables, err := scoring.LoadTables(cfg.ScoringTablesFile)
	if err != nil {
		return nil, err
	}
	scoreOpts := scoring.Options{
		Threshold:  cfg.SimilarityThreshold,
		MinSimilar: cfg.MinSimilarTickets,
		FineTuning: cfg.FineTuningEnabled,
		TeamKey:    cfg.TeamMetadataKey,
	}

	names := service.NewTeamNames(cfg.DisplayNames())
	c.Pipeline = &service.Pipeline{
		Tracker:  c.Tracker,
		Embedder: c.Embedder,
		Retriever: &retrieval.Retriever{
			Store:   vectors,
			Metrics: c.Metrics,
			Logger:  logger.With().Str("component", "retriever").Logger(),
		},
		Scorer: scoring.New(tables, scoreOpts),
		Arbiter: &arbiter.Arbiter{
			Assistant:     assistant,
			MaxCandidates: arbiter.DefaultMaxCandidates,
			Teams:         names.DisplayAll(cfg.TeamList()),
			Timeout:       cfg.LLMTimeout,
			Metrics:       c.Metrics,
			Logger:        logger.With().Str("component", "arbiter").Logger(),
		},
		Committer: &service.Committer{
			Tracker: c.Tracker,
			Names:   names,
			Logger:  logger.With().Str("component", "committer").Logger(),
		},
		Metrics:     c.Metrics,
		Logger:      logger.With().Str("component", "pipeline").Logger(),
		TeamKey:     cfg.TeamMetadataKey,
		ArbiterK:    cfg.ArbiterK,
		RetrievalK:  cfg.RetrievalK,
		TriageLabel: cfg.TriageLabel,
		BrowseURL:   strings.TrimRight(cfg.JiraBaseURL, "/"),
	}
	if c.Store != nil {
		c.Pipeline.Recorder = c.Store
	}
	if hook := notify.NewWebhook(cfg.NotifyWebhookURL); hook.Enabled() {
		c.Pipeline.Notifier = hook
	}

	c.Ingestor = &service.Ingestor{
		Store:    vectors,
		Embedder: c.Embedder,
		TeamKey:  cfg.TeamMetadataKey,
		Logger:   logger.With().Str("component", "ingest").Logger(),
	}

	processed, err := NewProcessedSet(ctx, cfg)
	if err != nil {
		return nil, err
	}
	schedOpts := scheduler.Options{
		Source:      c.Tracker,
		Processor:   c.Pipeline,
		Processed:   processed,
		Metrics:     c.Metrics,
		Logger:      logger.With().Str("component", "scheduler").Logger(),
		Interval:    cfg.PollInterval,
		TicketDelay: cfg.TicketDelay,
	}
	if c.Store != nil {
		schedOpts.Runs = c.Store
	}
	c.Scheduler = scheduler.New(schedOpts)
	if rs, isRedis := processed.(*scheduler.RedisSet); isRedis {
		c.closers = append(c.closers, func() { _ = rs.Close() })
	}

	ok = true
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func TrackerConfig(cfg config.Config) tracker.Config {
	return tracker.Config{
		BaseURL:             cfg.JiraBaseURL,
		Email:               cfg.JiraEmail,
		Token:               cfg.JiraAPIToken,
		Bearer:              cfg.JiraBearerAuth,
		Timeout:             cfg.JiraTimeout,
		Project:             cfg.JiraProject,
		IssueType:           cfg.JiraIssueType,
		TerminalStatuses:    cfg.TerminalStatusList(),
		OwnerField:          cfg.OwnerField,
		CandidateOwnerField: cfg.CandidateOwnerFld,
		CloudField:          cfg.CloudField,
		CloudValue:          cfg.CloudValue,
	}
}

// NewEmbedder falls back to the hashing mock when no model endpoint is
// configured.
func NewEmbedder(cfg config.Config, logger zerolog.Logger) ai.Embedder {
	if cfg.LLMBaseURL == "" {
		logger.Info().Int("dim", cfg.EmbeddingDim).Msg("using mock embedder")
		return ai.MockEmbedder{Dim: cfg.EmbeddingDim}
	}
	return ai.OpenAICompatEmbedder{
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.EmbeddingModel,
		APIKey:  cfg.LLMAPIKey,
		User:    cfg.LLMUser,
		Timeout: cfg.LLMTimeout,
	}
}

// NewAssistant returns nil without a model endpoint; the arbiter then
// always decides by majority vote.
func NewAssistant(cfg config.Config, logger zerolog.Logger) ai.Assistant {
	if cfg.LLMBaseURL == "" {
		logger.Info().Msg("no LLM configured, arbitration will use majority vote")
		return nil
	}
	return ai.OpenAICompatAssistant{
		BaseURL:   cfg.LLMBaseURL,
		Model:     cfg.LLMChatModel,
		APIKey:    cfg.LLMAPIKey,
		User:      cfg.LLMUser,
		MaxTokens: cfg.LLMMaxTokens,
		Timeout:   cfg.LLMTimeout,
		Cache:     ai.NewResponseCache(10 * time.Minute),
	}
}

func NewVectorStore(ctx context.Context, cfg config.Config, store *db.Store, logger zerolog.Logger) (vectorstore.Store, error) {
	switch strings.ToLower(cfg.VectorBackend) {
	case "", "memory":
		logger.Warn().Msg("using in-memory vector store; history is lost on restart")
		return vectorstore.NewMemory(), nil
	case "qdrant":
		return vectorstore.NewQdrant(ctx, vectorstore.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.VectorCollection,
			Dim:        cfg.EmbeddingDim,
		}, logger.With().Str("component", "qdrant").Logger())
	case "pgvector":
		if store == nil {
			return nil, fmt.Errorf("VECTOR_BACKEND=pgvector requires DATABASE_URL")
		}
		return vectorstore.NewPGVector(ctx, store.Pool, cfg.EmbeddingDim)
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend)
	}
}

func NewProcessedSet(ctx context.Context, cfg config.Config) (scheduler.ProcessedSet, error) {
	switch strings.ToLower(cfg.ProcessedBackend) {
	case "", "memory":
		return scheduler.NewMemorySet(cfg.ProcessedWindow), nil
	case "redis":
		return scheduler.NewRedisSet(ctx, scheduler.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
			Window:   cfg.ProcessedWindow,
		})
	default:
		return nil, fmt.Errorf("unknown PROCESSED_BACKEND %q", cfg.ProcessedBackend)
	}
}
