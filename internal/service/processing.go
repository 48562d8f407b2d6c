package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamtriage/backend/internal/ai"
	"github.com/teamtriage/backend/internal/arbiter"
	"github.com/teamtriage/backend/internal/content"
	"github.com/teamtriage/backend/internal/metrics"
	"github.com/teamtriage/backend/internal/models"
	"github.com/teamtriage/backend/internal/notify"
	"github.com/teamtriage/backend/internal/retrieval"
	"github.com/teamtriage/backend/internal/scoring"
	"github.com/teamtriage/backend/internal/tracker"
)

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

const (
	ReasonAlreadyAssigned  = "already_assigned"
	ReasonInsufficientData = "insufficient_data"
	ReasonNoDecision       = "no_decision"
	ReasonNotFound         = "not_found"
	ReasonUpdateFailed     = "update_failed"
	ReasonFetchFailed      = "fetch_failed"
	ReasonEmbedFailed      = "embed_failed"
	ReasonPanic            = "panic"

	PathScorer = "scorer"

	DefaultArbiterK   = 20
	DefaultRetrievalK = 25
)

// Tracker is the slice of the ticket tracker the pipeline uses.
type Tracker interface {
	OwnerWriter
	Ticket(ctx context.Context, key string) (models.Ticket, error)
	AddLabel(ctx context.Context, key, label string) error
}

// DecisionRecorder persists the audit trail of assignment attempts.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, d models.DecisionRecord) error
}

// Outcome is the result of one autonomous processing attempt.
type Outcome struct {
	TicketKey  string              `json:"ticket_key"`
	Status     OutcomeStatus       `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	Team       string              `json:"team,omitempty"`
	Path       string              `json:"path,omitempty"`
	Confidence float64             `json:"confidence"`
	Reasoning  string              `json:"reasoning,omitempty"`
	Similar    []arbiter.Candidate `json:"similar,omitempty"`
	Error      string              `json:"error,omitempty"`
}

type Pipeline struct {
	Tracker   Tracker
	Embedder  ai.Embedder
	Retriever *retrieval.Retriever
	Scorer    *scoring.Scorer
	Arbiter   *arbiter.Arbiter
	Committer *Committer
	Recorder  DecisionRecorder
	Notifier  notify.Notifier
	Metrics   *metrics.Recorder
	Logger    zerolog.Logger

	TeamKey     string
	ArbiterK    int
	RetrievalK  int
	TriageLabel string
	BrowseURL   string
}

func (p *Pipeline) teamKey() string {
	if p.TeamKey == "" {
		return "team"
	}
	return p.TeamKey
}

// ProcessTicket runs the autonomous path for one ticket: fetch, embed,
// retrieve, arbitrate, commit. It reports every result as an Outcome and
// returns no error.
func (p *Pipeline) ProcessTicket(ctx context.Context, key string) Outcome {
	start := time.Now()
	out := p.processTicket(ctx, key)
	p.Metrics.Incr(metrics.TicketTotal, "status:"+string(out.Status), "reason:"+out.Reason)
	p.Metrics.Timing(metrics.TicketLatency, time.Since(start))

	ev := p.Logger.Info()
	if out.Status == OutcomeFailed {
		ev = p.Logger.Warn()
	}
	ev.Str("ticket", key).
		Str("status", string(out.Status)).
		Str("reason", out.Reason).
		Str("team", out.Team).
		Str("path", out.Path).
		Float64("confidence", out.Confidence).
		Dur("elapsed", time.Since(start)).
		Msg("ticket processed")
	return out
}

// ProcessTicketAsync runs ProcessTicket in its own goroutine. The channel
// receives exactly one Outcome and is then closed.
func (p *Pipeline) ProcessTicketAsync(ctx context.Context, key string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		defer func() {
			if r := recover(); r != nil {
				p.Logger.Error().Str("ticket", key).Interface("panic", r).Msg("ticket processing panicked")
				ch <- Outcome{TicketKey: key, Status: OutcomeFailed, Reason: ReasonPanic, Error: fmt.Sprint(r)}
			}
		}()
		ch <- p.ProcessTicket(ctx, key)
	}()
	return ch
}

func (p *Pipeline) processTicket(ctx context.Context, key string) Outcome {
	out := Outcome{TicketKey: key}

	t, err := p.Tracker.Ticket(ctx, key)
	if err != nil {
		return fetchFailure(out, err)
	}
	if t.Owner != "" {
		out.Status, out.Reason, out.Team = OutcomeSkipped, ReasonAlreadyAssigned, t.Owner
		return out
	}

	vec, err := p.Embedder.Embed(ctx, content.Normalize(t))
	if err != nil {
		out.Status, out.Reason, out.Error = OutcomeFailed, ReasonEmbedFailed, err.Error()
		return out
	}

	k := p.ArbiterK
	if k <= 0 {
		k = DefaultArbiterK
	}
	matches := p.Retriever.Similar(ctx, vec, k, retrieval.TeamFilter(p.teamKey()))
	candidates := arbiter.CandidatesFromMatches(matches, p.teamKey())
	if len(candidates) == 0 {
		out.Status, out.Reason = OutcomeSkipped, ReasonInsufficientData
		p.flagForTriage(ctx, key)
		p.record(ctx, out)
		return out
	}

	if limit := p.Arbiter.MaxCandidates; limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	} else if limit <= 0 && len(candidates) > arbiter.DefaultMaxCandidates {
		candidates = candidates[:arbiter.DefaultMaxCandidates]
	}
	out.Similar = candidates

	d := p.Arbiter.Decide(ctx, t, candidates)
	out.Path, out.Confidence, out.Reasoning = string(d.Path), d.Confidence, d.Reasoning
	if d.Team == "" || d.Team == scoring.UnknownTeam {
		out.Status, out.Reason = OutcomeSkipped, ReasonNoDecision
		p.flagForTriage(ctx, key)
		p.record(ctx, out)
		return out
	}

	res := p.Committer.Commit(ctx, key, d.Team)
	out.Team = res.Team
	switch res.Status {
	case CommitAssigned:
		out.Status = OutcomeSuccess
	case CommitAlreadyAssigned:
		out.Status, out.Reason = OutcomeSkipped, ReasonAlreadyAssigned
	case CommitNotFound:
		out.Status, out.Reason, out.Error = OutcomeFailed, ReasonNotFound, res.Error
	default:
		out.Status, out.Reason, out.Error = OutcomeFailed, ReasonUpdateFailed, res.Error
	}
	p.record(ctx, out)
	if out.Status == OutcomeSuccess {
		p.notify(ctx, out)
	}
	return out
}

// RecommendOptions tunes the manual scorer path.
type RecommendOptions struct {
	FineTuning bool
	Commit     bool
	K          int
}

// Recommendation is the manual path's answer. Commit is set only when a
// write was requested and a team was recommended.
type Recommendation struct {
	TicketKey string         `json:"ticket_key"`
	Result    scoring.Result `json:"result"`
	Similar   []models.Match `json:"similar"`
	Commit    *CommitResult  `json:"commit,omitempty"`
}

// Recommend scores the ticket against its nearest historical tickets and
// optionally commits the recommended team.
func (p *Pipeline) Recommend(ctx context.Context, key string, opts RecommendOptions) (Recommendation, error) {
	rec := Recommendation{TicketKey: key}
	t, err := p.Tracker.Ticket(ctx, key)
	if err != nil {
		return rec, fmt.Errorf("fetch ticket %s: %w", key, err)
	}
	text := content.Normalize(t)
	vec, err := p.Embedder.Embed(ctx, text)
	if err != nil {
		return rec, fmt.Errorf("embed ticket %s: %w", key, err)
	}

	k := opts.K
	if k <= 0 {
		k = p.RetrievalK
	}
	if k <= 0 {
		k = DefaultRetrievalK
	}
	rec.Similar = p.Retriever.Similar(ctx, vec, k, retrieval.TeamFilter(p.teamKey()))

	scoreOpts := p.Scorer.Options()
	scoreOpts.FineTuning = opts.FineTuning
	rec.Result = p.Scorer.ScoreWith(scoreOpts, rec.Similar, text, t.Components)

	if opts.Commit && rec.Result.Status == scoring.StatusRecommendationReady {
		res := p.Committer.Commit(ctx, key, rec.Result.Team)
		rec.Commit = &res
		out := Outcome{TicketKey: key, Team: res.Team, Path: PathScorer, Confidence: rec.Result.FinalScore}
		switch res.Status {
		case CommitAssigned:
			out.Status = OutcomeSuccess
		case CommitAlreadyAssigned:
			out.Status, out.Reason = OutcomeSkipped, ReasonAlreadyAssigned
		default:
			out.Status, out.Reason, out.Error = OutcomeFailed, string(res.Status), res.Error
		}
		p.record(ctx, out)
	}
	return rec, nil
}

func fetchFailure(out Outcome, err error) Outcome {
	out.Status, out.Error = OutcomeFailed, err.Error()
	out.Reason = ReasonFetchFailed
	if errors.Is(err, tracker.ErrNotFound) {
		out.Reason = ReasonNotFound
	}
	return out
}

func (p *Pipeline) flagForTriage(ctx context.Context, key string) {
	if p.TriageLabel == "" {
		return
	}
	if err := p.Tracker.AddLabel(ctx, key, p.TriageLabel); err != nil {
		p.Logger.Warn().Err(err).Str("ticket", key).Str("label", p.TriageLabel).Msg("failed to add triage label")
	}
}

func (p *Pipeline) record(ctx context.Context, out Outcome) {
	if p.Recorder == nil {
		return
	}
	similar := make([]models.Match, 0, len(out.Similar))
	for _, c := range out.Similar {
		similar = append(similar, models.Match{TicketID: c.TicketID, Distance: c.Distance, Metadata: map[string]string{p.teamKey(): c.Team}})
	}
	status := string(out.Status)
	if out.Reason != "" {
		status += ":" + out.Reason
	}
	err := p.Recorder.RecordDecision(ctx, models.DecisionRecord{
		TicketKey:  out.TicketKey,
		Team:       out.Team,
		Path:       out.Path,
		Confidence: out.Confidence,
		Reasoning:  out.Reasoning,
		Status:     status,
		Similar:    similar,
		DecidedAt:  time.Now().UTC(),
	})
	if err != nil {
		p.Logger.Error().Err(err).Str("ticket", out.TicketKey).Msg("failed to record decision")
	}
}

func (p *Pipeline) notify(ctx context.Context, out Outcome) {
	if p.Notifier == nil {
		return
	}
	msg := notify.Message{
		TicketKey:  out.TicketKey,
		Team:       out.Team,
		Path:       out.Path,
		Confidence: out.Confidence,
		Reasoning:  out.Reasoning,
	}
	if p.BrowseURL != "" {
		msg.TicketURL = p.BrowseURL + "/browse/" + out.TicketKey
	}
	if err := p.Notifier.Notify(ctx, msg); err != nil {
		p.Logger.Warn().Err(err).Str("ticket", out.TicketKey).Msg("notification failed")
	}
}
