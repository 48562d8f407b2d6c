package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamtriage/backend/internal/ai"
	"github.com/teamtriage/backend/internal/content"
	"github.com/teamtriage/backend/internal/models"
	"github.com/teamtriage/backend/internal/vectorstore"
)

const (
	maxSummaryMetadata = 200
	maxIngestErrors    = 20
)

type IngestSummary struct {
	Total   int            `json:"total"`
	Added   int            `json:"added"`
	Skipped int            `json:"skipped"`
	Failed  int            `json:"failed"`
	Errors  []string       `json:"errors,omitempty"`
	Teams   map[string]int `json:"teams"`
}

// Ingestor loads resolved tickets into the vector store. Documents are
// built with content.Normalize so stored and query vectors share a shape.
type Ingestor struct {
	Store    vectorstore.Store
	Embedder ai.Embedder
	TeamKey  string
	Logger   zerolog.Logger
}

// Ingest embeds and stores every ticket that has a key and a team.
// Per-ticket failures are counted and never abort the batch.
func (in *Ingestor) Ingest(ctx context.Context, tickets []models.HistoricalTicket) IngestSummary {
	teamKey := in.TeamKey
	if teamKey == "" {
		teamKey = "team"
	}
	sum := IngestSummary{Total: len(tickets), Teams: map[string]int{}}
	start := time.Now()

	for _, t := range tickets {
		if ctx.Err() != nil {
			sum.Failed += sum.Total - sum.Added - sum.Skipped - sum.Failed
			sum.addError(fmt.Sprintf("aborted: %v", ctx.Err()))
			break
		}
		team := strings.TrimSpace(t.Team)
		if strings.TrimSpace(t.Key) == "" || team == "" {
			sum.Skipped++
			continue
		}

		doc := content.Normalize(t.Ticket)
		vec, err := in.Embedder.Embed(ctx, doc)
		if err != nil {
			sum.Failed++
			sum.addError(fmt.Sprintf("%s: embed: %v", t.Key, err))
			continue
		}
		rec := vectorstore.Record{
			ID:       t.Key,
			Vector:   vec,
			Document: doc,
			Metadata: map[string]string{
				teamKey:   team,
				"summary": truncate(t.Summary, maxSummaryMetadata),
				"status":  t.Status,
			},
		}
		if !t.CreatedAt.IsZero() {
			rec.Metadata["created"] = t.CreatedAt.UTC().Format(time.RFC3339)
		}
		if err := in.Store.Add(ctx, rec); err != nil {
			sum.Failed++
			sum.addError(fmt.Sprintf("%s: store: %v", t.Key, err))
			continue
		}
		sum.Added++
		sum.Teams[team]++
	}

	in.Logger.Info().
		Int("total", sum.Total).
		Int("added", sum.Added).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("ingest finished")
	return sum
}

func (s *IngestSummary) addError(msg string) {
	if len(s.Errors) < maxIngestErrors {
		s.Errors = append(s.Errors, msg)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
