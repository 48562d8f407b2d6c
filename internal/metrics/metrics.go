package metrics

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog"
)

const (
	TickTotal        = "triage_tick_total"
	TicketTotal      = "triage_ticket_total"
	TicketLatency    = "triage_ticket_latency"
	DecisionTotal    = "triage_decision_total"
	VectorQueryTotal = "triage_vector_query_total"
	ProcessedGauge   = "triage_processed_set_size"
)

// Recorder wraps a statsd client. The zero value and a nil *Recorder drop
// everything, so callers never need to check whether metrics are enabled.
type Recorder struct {
	client statsd.ClientInterface
	logger zerolog.Logger
}

// New dials statsd at addr. An empty addr, or a failed dial, yields a
// recorder backed by statsd.NoOpClient.
func New(addr, app, env string, logger zerolog.Logger) *Recorder {
	r := &Recorder{client: &statsd.NoOpClient{}, logger: logger}
	if addr == "" {
		return r
	}
	c, err := statsd.New(addr, statsd.WithTags([]string{"service:" + app, "env:" + env}))
	if err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msg("statsd unavailable, metrics disabled")
		return r
	}
	r.client = c
	return r
}

// NewWithClient is used by tests to capture emitted metrics.
func NewWithClient(c statsd.ClientInterface) *Recorder {
	return &Recorder{client: c, logger: zerolog.Nop()}
}

func (r *Recorder) Incr(name string, tags ...string) {
	if r == nil || r.client == nil {
		return
	}
	if err := r.client.Incr(name, tags, 1); err != nil {
		r.logger.Debug().Err(err).Str("metric", name).Msg("statsd incr failed")
	}
}

func (r *Recorder) Timing(name string, d time.Duration, tags ...string) {
	if r == nil || r.client == nil {
		return
	}
	if err := r.client.Timing(name, d, tags, 1); err != nil {
		r.logger.Debug().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

func (r *Recorder) Gauge(name string, v float64, tags ...string) {
	if r == nil || r.client == nil {
		return
	}
	if err := r.client.Gauge(name, v, tags, 1); err != nil {
		r.logger.Debug().Err(err).Str("metric", name).Msg("statsd gauge failed")
	}
}

func (r *Recorder) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
