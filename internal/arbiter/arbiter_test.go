package arbiter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamtriage/backend/internal/ai"
	"github.com/teamtriage/backend/internal/models"
)

var ticket = models.Ticket{Key: "NFSAAS-100", Summary: "SMB share mount fails", Description: "Kerberos ticket expired"}

func candidates() []Candidate {
	return []Candidate{
		{TicketID: "NFSAAS-1", Team: "Team Nandi", Distance: 0.1, Summary: "smb mount"},
		{TicketID: "NFSAAS-2", Team: "Team Vega", Distance: 0.15},
		{TicketID: "NFSAAS-3", Team: "Team Nandi", Distance: 0.2},
		{TicketID: "NFSAAS-4", Team: "Team Omega", Distance: 0.3},
	}
}

func TestDecideArbitrated(t *testing.T) {
	a := &Arbiter{
		Assistant: ai.MockAssistant{Reply: "TEAM: team nandi\nCONFIDENCE: 0.85\nREASONING: SMB and Kerberos issues belong to Nandi."},
		Logger:    zerolog.Nop(),
	}
	d := a.Decide(context.Background(), ticket, candidates())
	assert.Equal(t, PathArbitrated, d.Path)
	assert.Equal(t, "Team Nandi", d.Team)
	assert.InDelta(t, 0.85, d.Confidence, 1e-9)
	assert.Equal(t, "SMB and Kerberos issues belong to Nandi.", d.Reasoning)
	assert.False(t, d.Fallback())
}

func TestDecideFallsBackWhenTeamLineMissing(t *testing.T) {
	a := &Arbiter{Assistant: ai.MockAssistant{Reply: "I think it is probably storage related."}, Logger: zerolog.Nop()}
	d := a.Decide(context.Background(), ticket, candidates())
	assert.Equal(t, PathVoteFallback, d.Path)
	assert.Equal(t, "Team Nandi", d.Team)
	assert.InDelta(t, 2.0/4.0, d.Confidence, 1e-9)
	assert.Contains(t, d.Reasoning, "majority vote")
}

func TestDecideFallsBackOnModelError(t *testing.T) {
	a := &Arbiter{Assistant: ai.MockAssistant{Err: errors.New("timeout")}, Logger: zerolog.Nop()}
	d := a.Decide(context.Background(), ticket, candidates())
	assert.True(t, d.Fallback())
	assert.Equal(t, "Team Nandi", d.Team)
}

func TestDecideFallsBackWithoutAssistant(t *testing.T) {
	a := &Arbiter{Logger: zerolog.Nop()}
	d := a.Decide(context.Background(), ticket, nil)
	assert.True(t, d.Fallback())
	assert.Empty(t, d.Team)
	assert.Zero(t, d.Confidence)
}

func TestDecideRejectsTeamOutsideTaxonomy(t *testing.T) {
	a := &Arbiter{
		Assistant: ai.MockAssistant{Reply: "TEAM: Team Imaginary\nCONFIDENCE: 0.9\nREASONING: x"},
		Teams:     []string{"Team Nandi", "Team Vega"},
		Logger:    zerolog.Nop(),
	}
	d := a.Decide(context.Background(), ticket, candidates())
	assert.True(t, d.Fallback())
	assert.Equal(t, "Team Nandi", d.Team)
}

func TestDecideAcceptsTaxonomyTeamNotAmongCandidates(t *testing.T) {
	a := &Arbiter{
		Assistant: ai.MockAssistant{Reply: "TEAM: TEAM SIRIUS\nREASONING: networking"},
		Teams:     []string{"Team Nandi", "Team Sirius"},
		Logger:    zerolog.Nop(),
	}
	d := a.Decide(context.Background(), ticket, candidates())
	assert.Equal(t, PathArbitrated, d.Path)
	assert.Equal(t, "Team Sirius", d.Team)
	assert.Zero(t, d.Confidence)
}

func TestDecideDefaultsConfidenceToVoteShare(t *testing.T) {
	a := &Arbiter{Assistant: ai.MockAssistant{Reply: "TEAM: Team Nandi\nCONFIDENCE: high"}, Logger: zerolog.Nop()}
	d := a.Decide(context.Background(), ticket, candidates())
	assert.Equal(t, PathArbitrated, d.Path)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
}

func TestDecideLimitsCandidatesInPromptAndVote(t *testing.T) {
	var prompt string
	many := make([]Candidate, 0, 15)
	for i := 0; i < 4; i++ {
		many = append(many, Candidate{TicketID: "A", Team: "Team Vega"})
	}
	for i := 0; i < 11; i++ {
		many = append(many, Candidate{TicketID: "B", Team: "Team Omega"})
	}
	a := &Arbiter{
		Assistant: ai.MockAssistant{Fn: func(p string) (string, error) {
			prompt = p
			return "", errors.New("down")
		}},
		MaxCandidates: 5,
		Logger:        zerolog.Nop(),
	}
	d := a.Decide(context.Background(), ticket, many)
	assert.Equal(t, 5, strings.Count(prompt, "(similarity:"))
	assert.Equal(t, "Team Vega", d.Team)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
}

func TestMajorityVoteTieGoesToClosestFirstVote(t *testing.T) {
	d := MajorityVote([]Candidate{
		{Team: "Team Vega"}, {Team: "Team Alpha"}, {Team: "Team Alpha"}, {Team: "Team Vega"},
	}, "test")
	assert.Equal(t, "Team Vega", d.Team)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
}

func TestMajorityVoteBucketsMissingTeam(t *testing.T) {
	d := MajorityVote([]Candidate{{Team: ""}, {Team: ""}, {Team: "Team Vega"}}, "test")
	assert.Equal(t, "Unknown", d.Team)
}

func TestParseResponseVariants(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Parsed
	}{
		{
			name: "plain",
			in:   "TEAM: Team Vega\nCONFIDENCE: 0.7\nREASONING: Snapshot work.",
			want: Parsed{Team: "Team Vega", Confidence: 0.7, HasConfidence: true, Reasoning: "Snapshot work."},
		},
		{
			name: "markdown and percent",
			in:   "Here you go:\n- **TEAM:** Team Vega\n- **Confidence:** 82%\n- **Reasoning:** It matches\nprior snapshot bugs.",
			want: Parsed{Team: "Team Vega", Confidence: 0.82, HasConfidence: true, Reasoning: "It matches prior snapshot bugs."},
		},
		{
			name: "whole number confidence clamps",
			in:   "team: Team Vega\nconfidence: 150",
			want: Parsed{Team: "Team Vega", Confidence: 1, HasConfidence: true},
		},
		{
			name: "missing team",
			in:   "CONFIDENCE: 0.4\nREASONING: unsure",
			want: Parsed{Confidence: 0.4, HasConfidence: true, Reasoning: "unsure"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseResponse(tc.in)
			assert.Equal(t, tc.want.Team, got.Team)
			assert.Equal(t, tc.want.HasConfidence, got.HasConfidence)
			assert.InDelta(t, tc.want.Confidence, got.Confidence, 1e-9)
			assert.Equal(t, tc.want.Reasoning, got.Reasoning)
		})
	}
}

func TestBuildPromptListsCandidatesAndFormat(t *testing.T) {
	p := BuildPrompt(ticket, candidates(), []string{"Team Nandi", "Team Vega"})
	require.Contains(t, p, "New ticket: NFSAAS-100")
	assert.Contains(t, p, "Title: SMB share mount fails")
	assert.Contains(t, p, "1. NFSAAS-1 -> Team Nandi (similarity: 0.90)")
	assert.Contains(t, p, "   Summary: smb mount")
	assert.Contains(t, p, "Valid teams: Team Nandi, Team Vega")
	assert.Contains(t, p, "TEAM: <team name>")
}

func TestCandidatesFromMatches(t *testing.T) {
	got := CandidatesFromMatches([]models.Match{
		{TicketID: "X-1", Distance: 0.2, Metadata: map[string]string{"team": "Team Vega", "summary": "s"}},
	}, "team")
	assert.Equal(t, []Candidate{{TicketID: "X-1", Team: "Team Vega", Distance: 0.2, Summary: "s"}}, got)
}
