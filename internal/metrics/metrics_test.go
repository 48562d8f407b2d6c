package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog"
)

type captureClient struct {
	*statsd.NoOpClient
	sent []string
}

func (c *captureClient) Incr(name string, tags []string, rate float64) error {
	c.sent = append(c.sent, name+"|"+strings.Join(tags, ","))
	return nil
}

func (c *captureClient) Gauge(name string, value float64, tags []string, rate float64) error {
	c.sent = append(c.sent, name)
	return nil
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Incr(TickTotal)
	r.Timing(TicketLatency, time.Second)
	r.Gauge(ProcessedGauge, 3)
	if err := r.Close(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestNewWithoutAddrIsNoOp(t *testing.T) {
	r := New("", "team-triage", "test", zerolog.Nop())
	r.Incr(TickTotal, "result:completed")
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRecorderForwardsTags(t *testing.T) {
	c := &captureClient{NoOpClient: &statsd.NoOpClient{}}
	r := NewWithClient(c)
	r.Incr(DecisionTotal, "path:vote_fallback")
	r.Gauge(ProcessedGauge, 2)
	if len(c.sent) != 2 || c.sent[0] != "triage_decision_total|path:vote_fallback" {
		t.Fatalf("unexpected metrics %v", c.sent)
	}
}
