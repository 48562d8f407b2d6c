package service

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/teamtriage/backend/internal/tracker"
)

type CommitStatus string

const (
	CommitAssigned        CommitStatus = "assigned"
	CommitAlreadyAssigned CommitStatus = "already_assigned"
	CommitNotFound        CommitStatus = "not_found"
	CommitUpdateFailed    CommitStatus = "update_failed"
)

type CommitResult struct {
	Status       CommitStatus `json:"status"`
	Team         string       `json:"team"`
	CurrentOwner string       `json:"current_owner,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// OwnerWriter reads and writes the owning-team field of a ticket.
type OwnerWriter interface {
	GetOwner(ctx context.Context, key string) (string, error)
	UpdateOwner(ctx context.Context, key, team string) error
}

// TeamNames maps internal team slugs to the tracker's display names.
type TeamNames struct {
	table map[string]string
}

// NewTeamNames builds a case-insensitive lookup. Display names are also
// registered as their own keys so already-displayable names pass through.
func NewTeamNames(slugToDisplay map[string]string) TeamNames {
	n := TeamNames{table: make(map[string]string, len(slugToDisplay)*2)}
	for slug, display := range slugToDisplay {
		n.table[strings.ToLower(strings.TrimSpace(slug))] = display
		n.table[strings.ToLower(display)] = display
	}
	return n
}

// Display returns the mapped display name, or a title-cased rendering of
// the slug. The fallback loses acronyms ("team-svl" becomes "Team Svl").
func (n TeamNames) Display(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if d, ok := n.table[key]; ok {
		return d
	}
	words := strings.FieldsFunc(key, func(r rune) bool { return r == '-' || r == '_' || unicode.IsSpace(r) })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func (n TeamNames) DisplayAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, n.Display(name))
	}
	return out
}

type Committer struct {
	Tracker OwnerWriter
	Names   TeamNames
	Logger  zerolog.Logger
}

// Commit writes team to the ticket's owner field unless the field is
// already set. The owner is re-read right before the write; if it cannot
// be read the write is not attempted.
func (c *Committer) Commit(ctx context.Context, key, team string) CommitResult {
	display := c.Names.Display(team)
	res := CommitResult{Team: display}
	log := c.Logger.With().Str("ticket", key).Str("team", display).Logger()

	current, err := c.Tracker.GetOwner(ctx, key)
	if err != nil {
		return c.failure(log, res, err)
	}
	if strings.TrimSpace(current) != "" {
		log.Info().Str("current_owner", current).Msg("owner already set, not overwriting")
		res.Status = CommitAlreadyAssigned
		res.CurrentOwner = current
		return res
	}

	if err := c.Tracker.UpdateOwner(ctx, key, display); err != nil {
		return c.failure(log, res, err)
	}
	log.Info().Msg("owner updated")
	res.Status = CommitAssigned
	return res
}

func (c *Committer) failure(log zerolog.Logger, res CommitResult, err error) CommitResult {
	if errors.Is(err, tracker.ErrNotFound) {
		log.Warn().Msg("ticket not found")
		res.Status = CommitNotFound
		res.Error = err.Error()
		return res
	}
	log.Error().Err(err).Msg("owner update failed")
	res.Status = CommitUpdateFailed
	res.Error = err.Error()
	return res
}
