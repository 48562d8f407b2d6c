package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Message describes one assignment decision.
type Message struct {
	TicketKey  string
	TicketURL  string
	Team       string
	Path       string
	Confidence float64
	Reasoning  string
}

type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// Webhook posts a Slack-compatible {"text": ...} payload. With an empty
// URL it does nothing.
type Webhook struct {
	URL        string
	Username   string
	HTTPClient *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:        url,
		Username:   "team-triage",
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type webhookPayload struct {
	Username string `json:"username,omitempty"`
	Text     string `json:"text"`
}

func (w *Webhook) Enabled() bool {
	return w != nil && strings.TrimSpace(w.URL) != ""
}

func (w *Webhook) Notify(ctx context.Context, m Message) error {
	if !w.Enabled() {
		return nil
	}
	b, _ := json.Marshal(webhookPayload{Username: w.Username, Text: Format(m)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := w.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook: status %d", resp.StatusCode)
	}
	return nil
}

func Format(m Message) string {
	ticket := m.TicketKey
	if m.TicketURL != "" {
		ticket = fmt.Sprintf("<%s|%s>", m.TicketURL, m.TicketKey)
	}
	return fmt.Sprintf("Ticket %s assigned to *%s* (confidence %.0f%%, via %s)\n%s",
		ticket, m.Team, m.Confidence*100, m.Path, strings.TrimSpace(m.Reasoning))
}
