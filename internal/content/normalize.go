// Package content renders tickets into the text form that gets embedded.
// Ingestion and query paths must use the same renderer or similarity
// scores stop being comparable.
package content

import (
	"strings"

	"github.com/teamtriage/backend/internal/models"
)

// MaxDescriptionChars bounds the description excerpt. Longer descriptions
// are cut without any marker.
const MaxDescriptionChars = 1000

func Normalize(t models.Ticket) string {
	var lines []string
	if s := strings.TrimSpace(t.Summary); s != "" {
		lines = append(lines, "Title: "+s)
	}
	if d := strings.TrimSpace(t.Description); d != "" {
		lines = append(lines, "Description: "+truncateRunes(d, MaxDescriptionChars))
	}
	if c := joinNonEmpty(t.Components); c != "" {
		lines = append(lines, "Components: "+c)
	}
	if l := joinNonEmpty(t.Labels); l != "" {
		lines = append(lines, "Labels: "+l)
	}
	if it := strings.TrimSpace(t.IssueType); it != "" {
		lines = append(lines, "Issue Type: "+it)
	}
	if p := strings.TrimSpace(t.Priority); p != "" {
		lines = append(lines, "Priority: "+p)
	}
	return strings.Join(lines, "\n")
}

func joinNonEmpty(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
