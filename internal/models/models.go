package models

import "time"

// Ticket is the subset of a tracker issue the triage pipeline reads.
type Ticket struct {
	Key         string    `json:"key"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Components  []string  `json:"components"`
	Labels      []string  `json:"labels"`
	IssueType   string    `json:"issue_type"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	Owner       string    `json:"owner,omitempty"`
	CloudValues []string  `json:"cloud_values,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoricalTicket is a resolved ticket with a known owning team, used to
// populate the vector store.
type HistoricalTicket struct {
	Ticket
	Team string `json:"team"`
}

// Match is one result from a similarity query. Distance is in [0, 1] for
// cosine stores, lower meaning more similar.
type Match struct {
	TicketID string            `json:"ticket_id"`
	Distance float64           `json:"distance"`
	Document string            `json:"document,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (m Match) Similarity() float64 {
	return 1 - m.Distance
}

type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Status     string     `json:"status"`
	Summary    []byte     `json:"summary"`
}

// DecisionRecord is the audit row written for every autonomous or manual
// assignment attempt.
type DecisionRecord struct {
	ID         int64     `json:"id"`
	TicketKey  string    `json:"ticket_key"`
	Team       string    `json:"team"`
	Path       string    `json:"path"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	Status     string    `json:"status"`
	Similar    []Match   `json:"similar"`
	DecidedAt  time.Time `json:"decided_at"`
}
