package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/teamtriage/backend/internal/models"
)

// Memory is an insertion-ordered in-process store using cosine distance.
type Memory struct {
	mu      sync.RWMutex
	records []Record
	index   map[string]int
}

func NewMemory() *Memory {
	return &Memory{index: map[string]int{}}
}

func (m *Memory) Add(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) > 0 && len(m.records[0].Vector) != len(rec.Vector) {
		return fmt.Errorf("%w: have %d, got %d", ErrDimensionMismatch, len(m.records[0].Vector), len(rec.Vector))
	}
	rec.Metadata = copyMeta(rec.Metadata)
	if i, ok := m.index[rec.ID]; ok {
		m.records[i] = rec
		return nil
	}
	m.index[rec.ID] = len(m.records)
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]models.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	var out []models.Match
	for _, r := range m.records {
		if len(r.Vector) != len(vector) {
			return nil, fmt.Errorf("%w: have %d, got %d", ErrDimensionMismatch, len(r.Vector), len(vector))
		}
		if !filter.Matches(r.Metadata) {
			continue
		}
		out = append(out, models.Match{
			TicketID: r.ID,
			Distance: CosineDistance(vector, r.Vector),
			Document: r.Document,
			Metadata: copyMeta(r.Metadata),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *Memory) All(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, Record{ID: r.ID, Document: r.Document, Metadata: copyMeta(r.Metadata)})
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

// CosineDistance is 1 - cos(a, b). Zero vectors are maximally distant.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func copyMeta(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
