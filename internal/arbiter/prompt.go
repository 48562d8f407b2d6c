package arbiter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/teamtriage/backend/internal/content"
	"github.com/teamtriage/backend/internal/models"
)

const systemPrompt = "You are an experienced support engineer who routes incoming bug tickets to the engineering team that owns the affected area."

func BuildPrompt(t models.Ticket, similar []Candidate, teams []string) string {
	var b strings.Builder
	b.WriteString("Decide which team should own the new ticket below.\n\n")
	fmt.Fprintf(&b, "New ticket: %s\n", t.Key)
	b.WriteString(content.Normalize(t))
	b.WriteString("\n\n")

	if len(similar) == 0 {
		b.WriteString("No similar historical tickets were found.\n")
	} else {
		b.WriteString("Most similar historical tickets and the team that handled them:\n")
		for i, c := range similar {
			fmt.Fprintf(&b, "%d. %s -> %s (similarity: %.2f)\n", i+1, c.TicketID, teamOrUnknown(c.Team), 1-c.Distance)
			if s := strings.TrimSpace(c.Summary); s != "" {
				fmt.Fprintf(&b, "   Summary: %s\n", s)
			}
		}
	}
	if len(teams) > 0 {
		fmt.Fprintf(&b, "\nValid teams: %s\n", strings.Join(teams, ", "))
	}
	b.WriteString("\nAnswer with exactly these three lines and nothing else:\n")
	b.WriteString("TEAM: <team name>\n")
	b.WriteString("CONFIDENCE: <number between 0 and 1>\n")
	b.WriteString("REASONING: <one or two sentences>\n")
	return b.String()
}

// Parsed is the structured content of a model reply.
type Parsed struct {
	Team          string
	Confidence    float64
	HasConfidence bool
	Reasoning     string
}

// ParseResponse scans for TEAM:, CONFIDENCE: and REASONING: lines. Prefixes
// match case-insensitively and may be wrapped in markdown bullets or bold.
// Lines after REASONING: without a known prefix continue the reasoning.
func ParseResponse(text string) Parsed {
	var (
		p           Parsed
		inReasoning bool
		reasoning   []string
	)
	for _, raw := range strings.Split(text, "\n") {
		line := cleanLine(raw)
		switch key, value := splitPrefix(line); key {
		case "team":
			p.Team = strings.Trim(value, " *\"'`.")
			inReasoning = false
		case "confidence":
			if c, ok := parseConfidence(value); ok {
				p.Confidence, p.HasConfidence = c, true
			}
			inReasoning = false
		case "reasoning":
			reasoning = append(reasoning, value)
			inReasoning = true
		default:
			if inReasoning && line != "" {
				reasoning = append(reasoning, line)
			}
		}
	}
	p.Reasoning = strings.TrimSpace(strings.Join(reasoning, " "))
	return p
}

func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*#> ")
	return strings.TrimSpace(s)
}

func splitPrefix(line string) (string, string) {
	head, rest, ok := strings.Cut(line, ":")
	if !ok {
		return "", ""
	}
	head = strings.ToLower(strings.Trim(head, "* "))
	switch head {
	case "team", "confidence", "reasoning":
		return head, strings.TrimSpace(strings.TrimLeft(rest, "* "))
	}
	return "", ""
}

// parseConfidence accepts 0.82, 82% or 82 and clamps to [0, 1].
func parseConfidence(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if f := strings.Fields(s); len(f) > 0 {
		s = f[0]
	}
	pct := strings.HasSuffix(s, "%")
	s = strings.TrimRight(s, "%.,;")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if pct || v > 1 {
		v /= 100
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, true
}
