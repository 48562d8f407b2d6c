// Package tracker is a small Jira REST client covering the calls the
// triage pipeline needs.
package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamtriage/backend/internal/models"
)

var ErrNotFound = errors.New("issue not found")

// HTTPError carries a non-success tracker response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("tracker http %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL string
	Email   string
	Token   string
	// Bearer selects Data Center personal access tokens (API v2); otherwise
	// Cloud basic auth with email:token (API v3) is used.
	Bearer  bool
	Timeout time.Duration

	Project             string
	IssueType           string
	TerminalStatuses    []string
	OwnerField          string
	CandidateOwnerField string
	CloudField          string
	CloudValue          string
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" || cfg.Token == "" {
		logger.Warn().Msg("tracker credentials not fully configured; tracker calls will fail")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}, logger: logger}
}

func (c *Client) Config() Config { return c.cfg }

func (c *Client) apiVersion() string {
	if c.cfg.Bearer {
		return "2"
	}
	return "3"
}

func (c *Client) authHeader() string {
	if c.cfg.Bearer {
		return "Bearer " + c.cfg.Token
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.cfg.Email+":"+c.cfg.Token))
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tracker %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SearchResult is one page of a JQL search.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

func (c *Client) Search(ctx context.Context, jql string, fields []string, startAt, limit int) (SearchResult, error) {
	body := map[string]any{
		"jql":        jql,
		"startAt":    startAt,
		"maxResults": limit,
		"fields":     fields,
	}
	var res SearchResult
	if err := c.do(ctx, http.MethodPost, "/rest/api/"+c.apiVersion()+"/search", nil, body, &res); err != nil {
		return SearchResult{}, err
	}
	return res, nil
}

func (c *Client) issueFields() []string {
	fields := []string{"summary", "description", "components", "labels", "issuetype", "priority", "status", "created"}
	for _, f := range []string{c.cfg.OwnerField, c.cfg.CandidateOwnerField, c.cfg.CloudField} {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func (c *Client) GetIssue(ctx context.Context, key string) (Issue, error) {
	var issue Issue
	q := url.Values{"fields": {strings.Join(c.issueFields(), ",")}}
	if err := c.do(ctx, http.MethodGet, "/rest/api/"+c.apiVersion()+"/issue/"+url.PathEscape(key), q, nil, &issue); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

// GetOwner reads the owning-team field. An unset field returns "".
func (c *Client) GetOwner(ctx context.Context, key string) (string, error) {
	var issue Issue
	q := url.Values{"fields": {c.cfg.OwnerField}}
	if err := c.do(ctx, http.MethodGet, "/rest/api/"+c.apiVersion()+"/issue/"+url.PathEscape(key), q, nil, &issue); err != nil {
		return "", err
	}
	return issue.OptionValue(c.cfg.OwnerField), nil
}

// UpdateOwner writes only the owning-team field. The write goes through
// API v2, which accepts the option payload on both deployment types.
func (c *Client) UpdateOwner(ctx context.Context, key, team string) error {
	body := map[string]any{
		"fields": map[string]any{
			c.cfg.OwnerField: map[string]string{"value": team},
		},
	}
	return c.do(ctx, http.MethodPut, "/rest/api/2/issue/"+url.PathEscape(key), nil, body, nil)
}

func (c *Client) AddLabel(ctx context.Context, key, label string) error {
	body := map[string]any{
		"update": map[string]any{
			"labels": []map[string]string{{"add": label}},
		},
	}
	return c.do(ctx, http.MethodPut, "/rest/api/"+c.apiVersion()+"/issue/"+url.PathEscape(key), nil, body, nil)
}

// Ticket fetches an issue and maps it to the pipeline's ticket model.
func (c *Client) Ticket(ctx context.Context, key string) (models.Ticket, error) {
	issue, err := c.GetIssue(ctx, key)
	if err != nil {
		return models.Ticket{}, err
	}
	return issue.Ticket(c.cfg.OwnerField, c.cfg.CloudField), nil
}
