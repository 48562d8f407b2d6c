package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"github.com/teamtriage/backend/internal/models"
)

const (
	payloadTicketKey = "ticket_key"
	payloadDocument  = "document"
	scrollPageSize   = 256
)

// pointNamespace scopes the SHA1 ids derived from ticket keys.
var pointNamespace = uuid.MustParse("6f1c2a44-8b1e-4c55-9d0e-5a3f7b2c9e10")

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dim        int
}

// Qdrant stores one point per ticket in a cosine collection. Qdrant scores
// cosine as similarity, so distance is reported as 1 - score.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	logger     zerolog.Logger
}

func NewQdrant(ctx context.Context, cfg QdrantConfig, logger zerolog.Logger) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	q := &Qdrant{client: client, collection: cfg.Collection, logger: logger}
	if err := q.ensureCollection(ctx, cfg.Dim); err != nil {
		_ = client.Close()
		return nil, err
	}
	return q, nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, dim int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if exists {
		return nil
	}
	q.logger.Info().Str("collection", q.collection).Int("dim", dim).Msg("creating vector collection")
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (q *Qdrant) Add(ctx context.Context, rec Record) error {
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(PointID(rec.ID)),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(recordPayload(rec)),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert %s: %w", rec.ID, err)
	}
	return nil
}

func (q *Qdrant) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]models.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	out := make([]models.Match, 0, len(points))
	for _, p := range points {
		rec := payloadRecord(p.GetPayload())
		out = append(out, models.Match{
			TicketID: rec.ID,
			Distance: 1 - float64(p.GetScore()),
			Document: rec.Document,
			Metadata: rec.Metadata,
		})
	}
	return out, nil
}

func (q *Qdrant) All(ctx context.Context) ([]Record, error) {
	var (
		out    []Record
		offset *qdrant.PointId
	)
	for {
		page, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}
		// The offset point is returned again as the first item of the next page.
		start := 0
		if offset != nil && len(page) > 0 && page[0].GetId().GetUuid() == offset.GetUuid() {
			start = 1
		}
		for _, p := range page[start:] {
			out = append(out, payloadRecord(p.GetPayload()))
		}
		if len(page) < scrollPageSize {
			return out, nil
		}
		offset = page[len(page)-1].GetId()
	}
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

// PointID maps a ticket key to a stable UUID point id.
func PointID(ticketKey string) string {
	return uuid.NewSHA1(pointNamespace, []byte(ticketKey)).String()
}

func recordPayload(rec Record) map[string]any {
	payload := make(map[string]any, len(rec.Metadata)+2)
	for k, v := range rec.Metadata {
		payload[k] = v
	}
	payload[payloadTicketKey] = rec.ID
	payload[payloadDocument] = rec.Document
	return payload
}

func payloadRecord(payload map[string]*qdrant.Value) Record {
	rec := Record{Metadata: map[string]string{}}
	for k, v := range payload {
		switch k {
		case payloadTicketKey:
			rec.ID = v.GetStringValue()
		case payloadDocument:
			rec.Document = v.GetStringValue()
		default:
			rec.Metadata[k] = v.GetStringValue()
		}
	}
	return rec
}

func qdrantFilter(f Filter) *qdrant.Filter {
	var must, mustNot []*qdrant.Condition
	for k, v := range f.Equal {
		must = append(must, qdrant.NewMatch(k, v))
	}
	for k, v := range f.NotEqual {
		mustNot = append(mustNot, qdrant.NewMatch(k, v))
	}
	for _, k := range f.Exists {
		mustNot = append(mustNot, qdrant.NewIsEmpty(k))
	}
	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must, MustNot: mustNot}
}
