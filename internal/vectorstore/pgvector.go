package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/teamtriage/backend/internal/models"
)

// PGVector keeps embeddings in Postgres next to the audit tables.
type PGVector struct {
	Pool *pgxpool.Pool
}

func NewPGVector(ctx context.Context, pool *pgxpool.Pool, dim int) (*PGVector, error) {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ticket_vectors (
			ticket_key  TEXT PRIMARY KEY,
			embedding   vector(%d) NOT NULL,
			document    TEXT NOT NULL DEFAULT '',
			metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
			seq         BIGSERIAL,
			inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dim),
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return nil, fmt.Errorf("pgvector schema: %w", err)
		}
	}
	return &PGVector{Pool: pool}, nil
}

func (p *PGVector) Add(ctx context.Context, rec Record) error {
	md := rec.Metadata
	if md == nil {
		md = map[string]string{}
	}
	_, err := p.Pool.Exec(ctx, `INSERT INTO ticket_vectors (ticket_key, embedding, document, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ticket_key) DO UPDATE SET embedding = EXCLUDED.embedding, document = EXCLUDED.document, metadata = EXCLUDED.metadata`,
		rec.ID, pgvector.NewVector(rec.Vector), rec.Document, md)
	if err != nil {
		return fmt.Errorf("pgvector upsert %s: %w", rec.ID, err)
	}
	return nil
}

func (p *PGVector) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]models.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	where, args := sqlFilter(filter, 2)
	query := `SELECT ticket_key, embedding <=> $1 AS distance, document, metadata FROM ticket_vectors`
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY distance ASC, seq ASC LIMIT $%d", len(args)+2)
	allArgs := append([]any{pgvector.NewVector(vector)}, args...)
	allArgs = append(allArgs, k)

	rows, err := p.Pool.Query(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	defer rows.Close()

	var out []models.Match
	for rows.Next() {
		var m models.Match
		if err := rows.Scan(&m.TicketID, &m.Distance, &m.Document, &m.Metadata); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PGVector) All(ctx context.Context) ([]Record, error) {
	rows, err := p.Pool.Query(ctx, `SELECT ticket_key, document, metadata FROM ticket_vectors ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Document, &r.Metadata); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close is a no-op; the pool belongs to the audit store.
func (p *PGVector) Close() error { return nil }

// sqlFilter renders metadata predicates with placeholders starting at
// $first. Keys are sorted so the statement text is stable.
func sqlFilter(f Filter, first int) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", first+len(args)-1)
	}
	for _, k := range sortedKeys(f.Equal) {
		clauses = append(clauses, fmt.Sprintf("metadata->>%s = %s", next(k), next(f.Equal[k])))
	}
	for _, k := range sortedKeys(f.NotEqual) {
		clauses = append(clauses, fmt.Sprintf("COALESCE(metadata->>%s, '') <> %s", next(k), next(f.NotEqual[k])))
	}
	for _, k := range f.Exists {
		clauses = append(clauses, fmt.Sprintf("COALESCE(metadata->>%s, '') <> ''", next(k)))
	}
	return strings.Join(clauses, " AND "), args
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
