// Package scoring turns a ranked similarity list into a team recommendation.
package scoring

import (
	"fmt"
	"sort"

	"github.com/teamtriage/backend/internal/models"
)

const (
	MaxKeywordBoost   = 0.3
	MaxComponentBoost = 0.2
	keywordFactor     = 0.1
	componentFactor   = 0.15
	rankDecay         = 0.02

	// UnknownTeam collects matches stored without team metadata.
	UnknownTeam = "Unknown"
)

type Status string

const (
	StatusRecommendationReady Status = "recommendation_ready"
	StatusInsufficientData    Status = "insufficient_data"
	StatusNoTeamsFound        Status = "no_teams_found"
)

type Options struct {
	Threshold  float64
	MinSimilar int
	FineTuning bool
	TeamKey    string
}

func DefaultOptions() Options {
	return Options{Threshold: 0.6, MinSimilar: 2, FineTuning: true, TeamKey: "team"}
}

type ScoredTicket struct {
	TicketID   string  `json:"ticket_id"`
	Similarity float64 `json:"similarity"`
	Rank       int     `json:"rank"`
}

type TeamScore struct {
	Team           string         `json:"team"`
	FinalScore     float64        `json:"final_score"`
	BaseScore      float64        `json:"base_score"`
	SumBase        float64        `json:"sum_base_score"`
	KeywordBoost   float64        `json:"keyword_boost"`
	ComponentBoost float64        `json:"component_boost"`
	TicketCount    int            `json:"ticket_count"`
	MaxSimilarity  float64        `json:"max_similarity"`
	Tickets        []ScoredTicket `json:"tickets"`
}

type Result struct {
	Status         Status      `json:"status"`
	Message        string      `json:"message,omitempty"`
	Team           string      `json:"team,omitempty"`
	FinalScore     float64     `json:"final_score"`
	BaseScore      float64     `json:"base_score"`
	KeywordBoost   float64     `json:"keyword_boost"`
	ComponentBoost float64     `json:"component_boost"`
	ValidMatches   int         `json:"valid_matches"`
	FineTuning     bool        `json:"fine_tuning"`
	Teams          []TeamScore `json:"teams,omitempty"`
}

type Scorer struct {
	tables Tables
	opts   Options
}

func New(tables Tables, opts Options) *Scorer {
	if opts.TeamKey == "" {
		opts.TeamKey = "team"
	}
	return &Scorer{tables: tables, opts: opts}
}

func (s *Scorer) Options() Options { return s.opts }

// Score aggregates matches (most similar first) into per-team scores.
// content is the normalized ticket text scanned for keywords and
// components are the ticket's own components. Ties on final score go to
// the lexicographically smallest team name.
func (s *Scorer) Score(matches []models.Match, content string, components []string) Result {
	return s.ScoreWith(s.opts, matches, content, components)
}

// ScoreWith scores with per-call options, leaving the scorer's own
// options untouched.
func (s *Scorer) ScoreWith(opts Options, matches []models.Match, content string, components []string) Result {
	if opts.TeamKey == "" {
		opts.TeamKey = s.opts.TeamKey
	}
	res := Result{FineTuning: opts.FineTuning}

	byTeam := map[string]*TeamScore{}
	for i, m := range matches {
		sim := m.Similarity()
		if sim < opts.Threshold {
			continue
		}
		res.ValidMatches++

		team := m.Metadata[opts.TeamKey]
		if team == "" {
			team = UnknownTeam
		}
		ts, ok := byTeam[team]
		if !ok {
			ts = &TeamScore{Team: team, MaxSimilarity: sim}
			byTeam[team] = ts
		}
		ts.SumBase += sim * (1 - float64(i)*rankDecay)
		ts.TicketCount++
		if sim > ts.MaxSimilarity {
			ts.MaxSimilarity = sim
		}
		ts.Tickets = append(ts.Tickets, ScoredTicket{TicketID: m.TicketID, Similarity: sim, Rank: i})
	}

	if res.ValidMatches < opts.MinSimilar {
		res.Status = StatusInsufficientData
		res.Message = fmt.Sprintf("Only %d similar tickets found (minimum: %d)", res.ValidMatches, opts.MinSimilar)
		return res
	}
	if len(byTeam) == 0 {
		res.Status = StatusNoTeamsFound
		res.Message = "No teams found among similar tickets"
		return res
	}

	for _, ts := range byTeam {
		ts.BaseScore = ts.SumBase / float64(ts.TicketCount)
		if opts.FineTuning {
			ts.KeywordBoost = s.tables.KeywordBoost(ts.Team, content)
			ts.ComponentBoost = s.tables.ComponentBoost(ts.Team, components)
		}
		ts.FinalScore = ts.BaseScore + ts.KeywordBoost + ts.ComponentBoost
		res.Teams = append(res.Teams, *ts)
	}
	sort.Slice(res.Teams, func(i, j int) bool {
		if res.Teams[i].FinalScore != res.Teams[j].FinalScore {
			return res.Teams[i].FinalScore > res.Teams[j].FinalScore
		}
		return res.Teams[i].Team < res.Teams[j].Team
	})

	best := res.Teams[0]
	res.Status = StatusRecommendationReady
	res.Team = best.Team
	res.FinalScore = best.FinalScore
	res.BaseScore = best.BaseScore
	res.KeywordBoost = best.KeywordBoost
	res.ComponentBoost = best.ComponentBoost
	return res
}
