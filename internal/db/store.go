package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamtriage/backend/internal/models"
)

//go:embed schema.sql
var schema string

var ErrNoRuns = errors.New("no runs recorded")

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// Migrate applies the schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreateRun(ctx context.Context, status string) (string, error) {
	var id string
	err := s.Pool.QueryRow(ctx, `INSERT INTO triage_runs (status, started_at) VALUES ($1, NOW()) RETURNING id::text`, status).Scan(&id)
	return id, err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, summary []byte) error {
	_, err := s.Pool.Exec(ctx, `UPDATE triage_runs SET status = $1, summary = $2, finished_at = NOW() WHERE id = $3`, status, summary, runID)
	return err
}

func (s *Store) GetLatestRun(ctx context.Context) (models.Run, error) {
	row := s.Pool.QueryRow(ctx, `SELECT id::text, started_at, finished_at, status, summary FROM triage_runs ORDER BY started_at DESC LIMIT 1`)
	var r models.Run
	if err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Summary); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Run{}, ErrNoRuns
		}
		return models.Run{}, err
	}
	return r, nil
}

// RecordDecision appends one audit row. Similar is stored as JSON.
func (s *Store) RecordDecision(ctx context.Context, d models.DecisionRecord) error {
	similar, err := json.Marshal(d.Similar)
	if err != nil {
		return err
	}
	if d.Similar == nil {
		similar = []byte("[]")
	}
	decidedAt := d.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO triage_decisions (ticket_key, team, path, confidence, reasoning, status, similar, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.TicketKey, d.Team, d.Path, d.Confidence, d.Reasoning, d.Status, similar, decidedAt)
	return err
}

// ListDecisions returns the newest decisions first, optionally for one
// ticket only.
func (s *Store) ListDecisions(ctx context.Context, ticketKey string, limit, offset int) ([]models.DecisionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, ticket_key, team, path, confidence, reasoning, status, similar, decided_at FROM triage_decisions`
	args := []any{}
	if ticketKey != "" {
		args = append(args, ticketKey)
		query += ` WHERE ticket_key = $1`
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY decided_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.DecisionRecord{}
	for rows.Next() {
		var (
			d       models.DecisionRecord
			similar []byte
		)
		if err := rows.Scan(&d.ID, &d.TicketKey, &d.Team, &d.Path, &d.Confidence, &d.Reasoning, &d.Status, &similar, &d.DecidedAt); err != nil {
			return nil, err
		}
		if len(similar) > 0 {
			if err := json.Unmarshal(similar, &d.Similar); err != nil {
				return nil, fmt.Errorf("decode similar for decision %d: %w", d.ID, err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
