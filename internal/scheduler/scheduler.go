// Package scheduler polls the tracker for unowned tickets and feeds them
// through the triage pipeline one at a time.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/teamtriage/backend/internal/metrics"
	"github.com/teamtriage/backend/internal/service"
)

const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

type CandidateSource interface {
	CandidateKeys(ctx context.Context, since time.Time) ([]string, error)
}

type Processor interface {
	ProcessTicket(ctx context.Context, key string) service.Outcome
}

// RunRecorder stores one row per tick.
type RunRecorder interface {
	CreateRun(ctx context.Context, status string) (string, error)
	FinishRun(ctx context.Context, runID, status string, summary []byte) error
}

type TickResult struct {
	Skipped        bool              `json:"skipped"`
	Fetched        int               `json:"fetched"`
	New            int               `json:"new"`
	Success        int               `json:"success"`
	SkippedTickets int               `json:"skipped_tickets"`
	Failed         int               `json:"failed"`
	Swept          int               `json:"swept"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	Outcomes       []service.Outcome `json:"outcomes,omitempty"`
}

type Status struct {
	Running      bool        `json:"running"`
	Since        time.Time   `json:"since"`
	Interval     string      `json:"interval"`
	TicketDelay  string      `json:"ticket_delay"`
	TicksRun     int64       `json:"ticks_run"`
	TicksSkipped int64       `json:"ticks_skipped"`
	Processed    int         `json:"processed"`
	Last         *TickResult `json:"last,omitempty"`
}

type Options struct {
	Source      CandidateSource
	Processor   Processor
	Processed   ProcessedSet
	Runs        RunRecorder
	Metrics     *metrics.Recorder
	Logger      zerolog.Logger
	Interval    time.Duration
	TicketDelay time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

type Scheduler struct {
	source      CandidateSource
	processor   Processor
	processed   ProcessedSet
	runs        RunRecorder
	metrics     *metrics.Recorder
	logger      zerolog.Logger
	interval    time.Duration
	ticketDelay time.Duration
	now         func() time.Time
	since       time.Time

	running      atomic.Bool
	ticksRun     atomic.Int64
	ticksSkipped atomic.Int64
	wg           sync.WaitGroup

	mu   sync.Mutex
	last *TickResult
}

// New records the creation time as the lower bound for candidate
// creation dates. Tickets created earlier are never picked up.
func New(opts Options) *Scheduler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	processed := opts.Processed
	if processed == nil {
		processed = NewMemorySet(24 * time.Hour)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 20 * time.Second
	}
	return &Scheduler{
		source:      opts.Source,
		processor:   opts.Processor,
		processed:   processed,
		runs:        opts.Runs,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		interval:    interval,
		ticketDelay: opts.TicketDelay,
		now:         now,
		since:       now(),
	}
}

// Run fires a tick immediately and then every interval until ctx is done.
// A tick that fires while another is still running is skipped. Run waits
// for the in-flight tick before returning.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("ticket_delay", s.ticketDelay).
		Time("since", s.since).
		Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.TryStart(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.TryStart(ctx)
		}
	}
}

// TryStart launches a tick in the background unless one is running.
func (s *Scheduler) TryStart(ctx context.Context) bool {
	if !s.acquire() {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.tick(ctx)
	}()
	return true
}

// Tick runs one polling cycle synchronously. It returns a result with
// Skipped set when another tick holds the lock.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	if !s.acquire() {
		return TickResult{Skipped: true, StartedAt: s.now()}
	}
	defer s.running.Store(false)
	return s.tick(ctx)
}

// Wait blocks until background ticks started by TryStart have returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) acquire() bool {
	if s.running.CompareAndSwap(false, true) {
		return true
	}
	s.ticksSkipped.Add(1)
	s.metrics.Incr(metrics.TickTotal, "result:skipped")
	s.logger.Warn().Msg("previous tick still running, skipping")
	return false
}

func (s *Scheduler) Status(ctx context.Context) Status {
	st := Status{
		Running:      s.running.Load(),
		Since:        s.since,
		Interval:     s.interval.String(),
		TicketDelay:  s.ticketDelay.String(),
		TicksRun:     s.ticksRun.Load(),
		TicksSkipped: s.ticksSkipped.Load(),
	}
	if n, err := s.processed.Len(ctx); err == nil {
		st.Processed = n
	}
	s.mu.Lock()
	if s.last != nil {
		last := *s.last
		last.Outcomes = nil
		st.Last = &last
	}
	s.mu.Unlock()
	return st
}

func (s *Scheduler) tick(ctx context.Context) (res TickResult) {
	s.ticksRun.Add(1)
	res.StartedAt = s.now()
	runID := s.startRun(ctx)
	defer func() {
		res.FinishedAt = s.now()
		s.finishRun(ctx, runID, res)
		s.mu.Lock()
		last := res
		s.last = &last
		s.mu.Unlock()
		s.logger.Info().
			Int("fetched", res.Fetched).
			Int("new", res.New).
			Int("success", res.Success).
			Int("skipped", res.SkippedTickets).
			Int("failed", res.Failed).
			Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
			Msg("tick finished")
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("tick panicked")
			res.Error = fmt.Sprint(r)
			s.metrics.Incr(metrics.TickTotal, "result:panic")
		}
	}()

	swept, err := s.processed.Sweep(ctx, res.StartedAt)
	if err != nil {
		s.logger.Warn().Err(err).Msg("processed set sweep failed")
	}
	res.Swept = swept

	keys, err := s.source.CandidateKeys(ctx, s.since)
	if err != nil {
		s.logger.Error().Err(err).Msg("candidate search failed")
		res.Error = err.Error()
		s.metrics.Incr(metrics.TickTotal, "result:fetch_failed")
		return res
	}
	res.Fetched = len(keys)

	pending := make([]string, 0, len(keys))
	for _, key := range keys {
		seen, err := s.processed.Contains(ctx, key, res.StartedAt)
		if err != nil {
			s.logger.Warn().Err(err).Str("ticket", key).Msg("processed set lookup failed")
		}
		if !seen {
			pending = append(pending, key)
		}
	}
	res.New = len(pending)

	limiter := rate.NewLimiter(rate.Every(s.ticketDelay), 1)
	for _, key := range pending {
		if err := limiter.Wait(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("tick interrupted")
			break
		}
		out := s.processOne(ctx, key)
		if err := s.processed.Add(ctx, key, s.now()); err != nil {
			s.logger.Warn().Err(err).Str("ticket", key).Msg("failed to mark ticket processed")
		}
		res.Outcomes = append(res.Outcomes, out)
		switch out.Status {
		case service.OutcomeSuccess:
			res.Success++
		case service.OutcomeSkipped:
			res.SkippedTickets++
		default:
			res.Failed++
		}
	}

	if n, err := s.processed.Len(ctx); err == nil {
		s.metrics.Gauge(metrics.ProcessedGauge, float64(n))
	}
	s.metrics.Incr(metrics.TickTotal, "result:completed")
	return res
}

func (s *Scheduler) processOne(ctx context.Context, key string) (out service.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("ticket", key).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("ticket processing panicked")
			out = service.Outcome{
				TicketKey: key,
				Status:    service.OutcomeFailed,
				Reason:    service.ReasonPanic,
				Error:     fmt.Sprint(r),
			}
		}
	}()
	return s.processor.ProcessTicket(ctx, key)
}

func (s *Scheduler) startRun(ctx context.Context) string {
	if s.runs == nil {
		return ""
	}
	id, err := s.runs.CreateRun(ctx, RunStatusRunning)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to create run")
		return ""
	}
	return id
}

func (s *Scheduler) finishRun(ctx context.Context, runID string, res TickResult) {
	if s.runs == nil || runID == "" {
		return
	}
	status := RunStatusCompleted
	if res.Error != "" {
		status = RunStatusFailed
	}
	summary, err := json.Marshal(res)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode run summary")
		return
	}
	if err := s.runs.FinishRun(context.WithoutCancel(ctx), runID, status, summary); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("failed to finish run")
	}
}
