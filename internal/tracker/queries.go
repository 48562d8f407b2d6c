package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/teamtriage/backend/internal/models"
)

const (
	candidatePageSize = 100
	historyPageSize   = 100
	jqlTimeLayout     = "2006-01-02 15:04"
)

// CandidateJQL selects open tickets of the configured project and type
// created at or after since, oldest first.
func (c *Client) CandidateJQL(since time.Time) string {
	var parts []string
	if c.cfg.Project != "" {
		parts = append(parts, "project = "+quote(c.cfg.Project))
	}
	if c.cfg.IssueType != "" {
		parts = append(parts, "issuetype = "+quote(c.cfg.IssueType))
	}
	parts = append(parts, fmt.Sprintf("created >= %s", quote(since.Format(jqlTimeLayout))))
	if len(c.cfg.TerminalStatuses) > 0 {
		quoted := make([]string, len(c.cfg.TerminalStatuses))
		for i, s := range c.cfg.TerminalStatuses {
			quoted[i] = quote(s)
		}
		parts = append(parts, fmt.Sprintf("status NOT IN (%s)", strings.Join(quoted, ", ")))
	}
	return strings.Join(parts, " AND ") + " ORDER BY created ASC"
}

// CandidateKeys returns keys of tickets eligible for automatic assignment:
// the JQL window plus a cloud-provider match and an empty owner, both
// checked here because select fields are awkward to express in JQL.
func (c *Client) CandidateKeys(ctx context.Context, since time.Time) ([]string, error) {
	fields := []string{"summary"}
	if c.cfg.CandidateOwnerField != "" {
		fields = append(fields, c.cfg.CandidateOwnerField)
	}
	if c.cfg.CloudField != "" {
		fields = append(fields, c.cfg.CloudField)
	}
	res, err := c.Search(ctx, c.CandidateJQL(since), fields, 0, candidatePageSize)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, issue := range res.Issues {
		if c.cfg.CandidateOwnerField != "" && issue.OptionValue(c.cfg.CandidateOwnerField) != "" {
			continue
		}
		if c.cfg.CloudField != "" && !containsFold(issue.OptionValues(c.cfg.CloudField), c.cfg.CloudValue) {
			continue
		}
		keys = append(keys, issue.Key)
	}
	return keys, nil
}

// TeamHistory pages through every ticket owned by team (display form)
// created on or after since.
func (c *Client) TeamHistory(ctx context.Context, team string, since time.Time) ([]models.HistoricalTicket, error) {
	jql := fmt.Sprintf("%s = %s AND created >= %s ORDER BY created DESC",
		jqlField(c.cfg.OwnerField), quote(team), quote(since.Format("2006-01-02")))
	fields := c.issueFields()

	var out []models.HistoricalTicket
	for startAt := 0; ; {
		page, err := c.Search(ctx, jql, fields, startAt, historyPageSize)
		if err != nil {
			return out, err
		}
		for _, issue := range page.Issues {
			out = append(out, models.HistoricalTicket{Ticket: issue.Ticket(c.cfg.OwnerField, c.cfg.CloudField), Team: team})
		}
		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			return out, nil
		}
	}
}

// jqlField turns customfield_15906 into cf[15906]; other names pass through.
func jqlField(field string) string {
	if id, ok := strings.CutPrefix(field, "customfield_"); ok {
		return "cf[" + id + "]"
	}
	return field
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}
