// Package arbiter asks a language model to pick the owning team for a
// ticket, falling back to a majority vote over similar tickets whenever
// the model cannot be used.
package arbiter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamtriage/backend/internal/ai"
	"github.com/teamtriage/backend/internal/metrics"
	"github.com/teamtriage/backend/internal/models"
)

const DefaultMaxCandidates = 10

type Path string

const (
	PathArbitrated   Path = "arbitrated"
	PathVoteFallback Path = "vote_fallback"
)

// Decision is the arbiter's answer. Path tells whether the model chose the
// team or the vote did.
type Decision struct {
	Path       Path    `json:"path"`
	Team       string  `json:"team"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (d Decision) Fallback() bool { return d.Path == PathVoteFallback }

// Candidate is a similar historical ticket shown to the model.
type Candidate struct {
	TicketID string  `json:"ticket_id"`
	Team     string  `json:"team"`
	Distance float64 `json:"distance"`
	Summary  string  `json:"summary"`
}

// CandidatesFromMatches reads team and summary from match metadata.
func CandidatesFromMatches(matches []models.Match, teamKey string) []Candidate {
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{
			TicketID: m.TicketID,
			Team:     m.Metadata[teamKey],
			Distance: m.Distance,
			Summary:  m.Metadata["summary"],
		})
	}
	return out
}

type Arbiter struct {
	Assistant     ai.Assistant
	MaxCandidates int
	// Teams, when set, is the accepted taxonomy; a model answer naming any
	// other team is treated as malformed.
	Teams   []string
	Timeout time.Duration
	Metrics *metrics.Recorder
	Logger  zerolog.Logger
}

// Decide never fails: model errors and unusable answers resolve to the
// majority vote over the candidates actually shown.
func (a *Arbiter) Decide(ctx context.Context, t models.Ticket, similar []Candidate) Decision {
	limit := a.MaxCandidates
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	if len(similar) > limit {
		similar = similar[:limit]
	}

	d, err := a.ask(ctx, t, similar)
	if err != nil {
		a.Logger.Warn().Err(err).Str("ticket", t.Key).Msg("llm arbitration unavailable, using majority vote")
		d = MajorityVote(similar, err.Error())
	}
	a.Metrics.Incr(metrics.DecisionTotal, "path:"+string(d.Path))
	return d
}

func (a *Arbiter) ask(ctx context.Context, t models.Ticket, similar []Candidate) (Decision, error) {
	if a.Assistant == nil {
		return Decision{}, fmt.Errorf("no language model configured")
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	reply, err := a.Assistant.Ask(ctx, BuildPrompt(t, similar, a.Teams), []ai.ChatMessage{{Role: "system", Content: systemPrompt}})
	if err != nil {
		return Decision{}, fmt.Errorf("model call failed: %w", err)
	}

	parsed := ParseResponse(reply)
	if parsed.Team == "" {
		return Decision{}, fmt.Errorf("model response has no TEAM line")
	}
	team, ok := a.canonicalTeam(parsed.Team, similar)
	if !ok {
		return Decision{}, fmt.Errorf("model named unknown team %q", parsed.Team)
	}
	confidence := parsed.Confidence
	if !parsed.HasConfidence {
		confidence = voteShare(similar, team)
	}
	reasoning := parsed.Reasoning
	if reasoning == "" {
		reasoning = "No reasoning provided by the model."
	}
	return Decision{Path: PathArbitrated, Team: team, Confidence: confidence, Reasoning: reasoning}, nil
}

// canonicalTeam maps the model's spelling onto a candidate or taxonomy
// team, comparing case-insensitively.
func (a *Arbiter) canonicalTeam(name string, similar []Candidate) (string, bool) {
	for _, c := range similar {
		if c.Team != "" && strings.EqualFold(c.Team, name) {
			return c.Team, true
		}
	}
	if len(a.Teams) == 0 {
		return name, true
	}
	for _, team := range a.Teams {
		if strings.EqualFold(team, name) {
			return team, true
		}
	}
	return "", false
}

// MajorityVote picks the most frequent team among similar. Equal counts go
// to the team whose first vote ranks closest. Confidence is the winner's
// share of all candidates.
func MajorityVote(similar []Candidate, cause string) Decision {
	d := Decision{Path: PathVoteFallback}
	if len(similar) == 0 {
		d.Reasoning = "Fallback to majority vote: no similar tickets available (" + cause + ")."
		return d
	}
	counts := map[string]int{}
	var order []string
	for _, c := range similar {
		team := teamOrUnknown(c.Team)
		if counts[team] == 0 {
			order = append(order, team)
		}
		counts[team]++
	}
	best := order[0]
	for _, team := range order[1:] {
		if counts[team] > counts[best] {
			best = team
		}
	}
	d.Team = best
	d.Confidence = float64(counts[best]) / float64(len(similar))
	d.Reasoning = fmt.Sprintf("Fallback to majority vote: %d of %d similar tickets were handled by %s (%s).",
		counts[best], len(similar), best, cause)
	return d
}

func voteShare(similar []Candidate, team string) float64 {
	if len(similar) == 0 {
		return 0
	}
	n := 0
	for _, c := range similar {
		if strings.EqualFold(teamOrUnknown(c.Team), team) {
			n++
		}
	}
	return float64(n) / float64(len(similar))
}

func teamOrUnknown(team string) string {
	if team == "" {
		return "Unknown"
	}
	return team
}
