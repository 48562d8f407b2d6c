// Package vectorstore holds historical ticket embeddings and answers
// nearest-neighbour queries over them.
package vectorstore

import (
	"context"
	"errors"

	"github.com/teamtriage/backend/internal/models"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Record is one stored ticket. Vector may be nil in results from All.
type Record struct {
	ID       string
	Vector   []float32
	Document string
	Metadata map[string]string
}

// Filter restricts a query by metadata. All predicates must hold.
type Filter struct {
	Equal    map[string]string
	NotEqual map[string]string
	Exists   []string
}

func (f Filter) Matches(md map[string]string) bool {
	for k, v := range f.Equal {
		if md[k] != v {
			return false
		}
	}
	for k, v := range f.NotEqual {
		if md[k] == v {
			return false
		}
	}
	for _, k := range f.Exists {
		if md[k] == "" {
			return false
		}
	}
	return true
}

type Store interface {
	// Add inserts or replaces the record with the same ID.
	Add(ctx context.Context, rec Record) error
	// Query returns up to k matches ordered by ascending distance.
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]models.Match, error)
	// All returns every stored record without vectors.
	All(ctx context.Context) ([]Record, error)
	Close() error
}

// TeamCounts tallies records per metadata value of key.
func TeamCounts(records []Record, key string) map[string]int {
	out := map[string]int{}
	for _, r := range records {
		team := r.Metadata[key]
		if team == "" {
			team = "Unknown"
		}
		out[team]++
	}
	return out
}
