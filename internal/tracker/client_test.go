package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:             baseURL,
		Email:               "bot@example.com",
		Token:               "secret",
		Project:             "NFSAAS",
		IssueType:           "Bug",
		TerminalStatuses:    []string{"Done", "Closed"},
		OwnerField:          "customfield_15906",
		CandidateOwnerField: "customfield_10050",
		CloudField:          "customfield_16202",
		CloudValue:          "AZURE",
	}
}

func TestAuthHeaders(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Path+" "+r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"key":"X-1","fields":{}}`))
	}))
	defer srv.Close()

	basic := New(testConfig(srv.URL), zerolog.Nop())
	_, err := basic.GetIssue(context.Background(), "X-1")
	require.NoError(t, err)

	cfg := testConfig(srv.URL)
	cfg.Bearer = true
	bearer := New(cfg, zerolog.Nop())
	_, err = bearer.GetIssue(context.Background(), "X-1")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "/rest/api/3/issue/X-1 Basic Ym90QGV4YW1wbGUuY29tOnNlY3JldA==", got[0])
	assert.Equal(t, "/rest/api/2/issue/X-1 Bearer secret", got[1])
}

func TestGetIssueMapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("fields"), "customfield_15906")
		_, _ = io.WriteString(w, `{"key":"NFSAAS-7","fields":{
			"summary":"Mount fails",
			"description":{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"SMB share "},{"type":"text","text":"down"}]}]},
			"components":[{"name":"SMB"},{"name":"Kerberos"}],
			"labels":["customer"],
			"issuetype":{"name":"Bug"},
			"priority":{"name":"High"},
			"status":{"name":"Open"},
			"created":"2025-03-04T10:11:12.000+0000",
			"customfield_15906":null,
			"customfield_16202":[{"value":"Azure"}]}}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zerolog.Nop())
	issue, err := c.GetIssue(context.Background(), "NFSAAS-7")
	require.NoError(t, err)
	tk := issue.Ticket("customfield_15906", "customfield_16202")

	assert.Equal(t, "NFSAAS-7", tk.Key)
	assert.Equal(t, "Mount fails", tk.Summary)
	assert.Equal(t, "SMB share down", tk.Description)
	assert.Equal(t, []string{"SMB", "Kerberos"}, tk.Components)
	assert.Equal(t, []string{"customer"}, tk.Labels)
	assert.Equal(t, "Bug", tk.IssueType)
	assert.Equal(t, "High", tk.Priority)
	assert.Equal(t, "Open", tk.Status)
	assert.Empty(t, tk.Owner)
	assert.Equal(t, []string{"Azure"}, tk.CloudValues)
	assert.Equal(t, time.Date(2025, 3, 4, 10, 11, 12, 0, time.UTC), tk.CreatedAt)
}

func TestGetOwnerVariants(t *testing.T) {
	bodies := map[string]string{
		"A-1": `{"key":"A-1","fields":{"customfield_15906":{"value":"Team Vega","id":"1"}}}`,
		"A-2": `{"key":"A-2","fields":{"customfield_15906":null}}`,
		"A-3": `{"key":"A-3","fields":{"customfield_15906":"Team Omega"}}`,
		"A-4": `{"key":"A-4","fields":{}}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		_, _ = io.WriteString(w, bodies[key])
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zerolog.Nop())
	for key, want := range map[string]string{"A-1": "Team Vega", "A-2": "", "A-3": "Team Omega", "A-4": ""} {
		got, err := c.GetOwner(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}
}

func TestUpdateOwner(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rest/api/2/issue/NFSAAS-1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zerolog.Nop())
	require.NoError(t, c.UpdateOwner(context.Background(), "NFSAAS-1", "Team Vega"))
	assert.Equal(t, map[string]any{"fields": map[string]any{"customfield_15906": map[string]any{"value": "Team Vega"}}}, body)
}

func TestUpdateOwnerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "MISSING-1") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"errors":{"customfield_15906":"Option value 'Team X' is not valid"}}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zerolog.Nop())
	err := c.UpdateOwner(context.Background(), "MISSING-1", "Team Vega")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = c.UpdateOwner(context.Background(), "BAD-1", "Team X")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "not valid")
}

func TestAddLabel(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zerolog.Nop())
	require.NoError(t, c.AddLabel(context.Background(), "NFSAAS-1", "triage_needed"))
	assert.Equal(t, map[string]any{"update": map[string]any{"labels": []any{map[string]any{"add": "triage_needed"}}}}, body)
}

func TestCandidateJQL(t *testing.T) {
	c := New(testConfig("http://jira"), zerolog.Nop())
	since := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	assert.Equal(t,
		`project = "NFSAAS" AND issuetype = "Bug" AND created >= "2025-06-01 09:30" AND status NOT IN ("Done", "Closed") ORDER BY created ASC`,
		c.CandidateJQL(since))
}

func TestCandidateKeysFiltersCloudAndOwner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/search", r.URL.Path)
		var req struct {
			JQL        string   `json:"jql"`
			MaxResults int      `json:"maxResults"`
			Fields     []string `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 100, req.MaxResults)
		assert.Contains(t, req.Fields, "customfield_16202")
		_, _ = io.WriteString(w, `{"total":4,"issues":[
			{"key":"N-1","fields":{"customfield_16202":[{"value":"azure"}],"customfield_10050":null}},
			{"key":"N-2","fields":{"customfield_16202":[{"value":"AWS"}]}},
			{"key":"N-3","fields":{"customfield_16202":[{"value":"Azure"}],"customfield_10050":{"value":"Team Vega"}}},
			{"key":"N-4","fields":{"customfield_16202":null}}]}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zerolog.Nop())
	keys, err := c.CandidateKeys(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"N-1"}, keys)
}

func TestTeamHistoryPages(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JQL     string `json:"jql"`
			StartAt int    `json:"startAt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, strings.HasPrefix(req.JQL, `cf[15906] = "Team Vega" AND created >= "2025-01-01"`), req.JQL)
		calls++
		if req.StartAt == 0 {
			_, _ = io.WriteString(w, `{"total":3,"issues":[{"key":"V-1","fields":{"summary":"a"}},{"key":"V-2","fields":{"summary":"b"}}]}`)
			return
		}
		assert.Equal(t, 2, req.StartAt)
		_, _ = io.WriteString(w, `{"total":3,"issues":[{"key":"V-3","fields":{"summary":"c","description":"plain text"}}]}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), zerolog.Nop())
	got, err := c.TeamHistory(context.Background(), "Team Vega", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Team Vega", got[2].Team)
	assert.Equal(t, "plain text", got[2].Description)
}
