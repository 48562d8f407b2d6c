package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/teamtriage/backend/internal/models"
	"github.com/teamtriage/backend/internal/vectorstore"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Add(ctx context.Context, rec vectorstore.Record) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockStore) Query(ctx context.Context, vector []float32, k int, filter vectorstore.Filter) ([]models.Match, error) {
	args := m.Called(ctx, vector, k, filter)
	out, _ := args.Get(0).([]models.Match)
	return out, args.Error(1)
}

func (m *mockStore) All(ctx context.Context) ([]vectorstore.Record, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]vectorstore.Record)
	return out, args.Error(1)
}

func (m *mockStore) Close() error { return nil }

func TestSimilarReturnsEmptyOnStoreError(t *testing.T) {
	s := &mockStore{}
	s.On("Query", mock.Anything, mock.Anything, 5, mock.Anything).Return(nil, errors.New("connection refused"))

	r := &Retriever{Store: s, Logger: zerolog.Nop()}
	got := r.Similar(context.Background(), []float32{1}, 5, vectorstore.Filter{})
	assert.Empty(t, got)
	s.AssertExpectations(t)
}

func TestSimilarSortsStablyAndCaps(t *testing.T) {
	s := &mockStore{}
	s.On("Query", mock.Anything, mock.Anything, 2, mock.Anything).Return([]models.Match{
		{TicketID: "c", Distance: 0.3},
		{TicketID: "a", Distance: 0.1},
		{TicketID: "b", Distance: 0.1},
	}, nil)

	r := &Retriever{Store: s, Logger: zerolog.Nop()}
	got := r.Similar(context.Background(), []float32{1}, 2, vectorstore.Filter{})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].TicketID)
	assert.Equal(t, "b", got[1].TicketID)
}

func TestSimilarSkipsStoreForEmptyInput(t *testing.T) {
	s := &mockStore{}
	r := &Retriever{Store: s, Logger: zerolog.Nop()}
	assert.Nil(t, r.Similar(context.Background(), nil, 5, vectorstore.Filter{}))
	assert.Nil(t, r.Similar(context.Background(), []float32{1}, 0, vectorstore.Filter{}))
	s.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTeamFilterExcludesUnassigned(t *testing.T) {
	f := TeamFilter("team")
	assert.True(t, f.Matches(map[string]string{"team": "Team Vega"}))
	assert.False(t, f.Matches(map[string]string{"team": "Unassigned"}))
	assert.False(t, f.Matches(map[string]string{}))
}
