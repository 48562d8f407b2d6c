package retrieval

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/teamtriage/backend/internal/metrics"
	"github.com/teamtriage/backend/internal/models"
	"github.com/teamtriage/backend/internal/vectorstore"
)

// UnassignedTeam marks historical tickets that never got an owner.
const UnassignedTeam = "Unassigned"

type Retriever struct {
	Store   vectorstore.Store
	Metrics *metrics.Recorder
	Logger  zerolog.Logger
}

// Similar returns up to k stored tickets nearest to vector, most similar
// first. Store failures are logged and reported as no matches.
func (r *Retriever) Similar(ctx context.Context, vector []float32, k int, filter vectorstore.Filter) []models.Match {
	if k <= 0 || len(vector) == 0 {
		return nil
	}
	matches, err := r.Store.Query(ctx, vector, k, filter)
	if err != nil {
		r.Logger.Error().Err(err).Int("k", k).Msg("vector query failed")
		r.Metrics.Incr(metrics.VectorQueryTotal, "result:error")
		return nil
	}
	r.Metrics.Incr(metrics.VectorQueryTotal, "result:ok")
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// TeamFilter keeps only tickets whose team metadata is set and not
// the unassigned placeholder.
func TeamFilter(teamKey string) vectorstore.Filter {
	return vectorstore.Filter{
		Exists:   []string{teamKey},
		NotEqual: map[string]string{teamKey: UnassignedTeam},
	}
}
