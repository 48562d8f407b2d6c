package ai

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/teamtriage/backend/internal/utils"
)

// MockEmbedder hashes word tokens into a fixed number of buckets and
// L2-normalizes the result. Texts sharing vocabulary land close together,
// which is enough for local runs without an embedding service.
type MockEmbedder struct {
	Dim int
}

func (m MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := m.Dim
	if dim <= 0 {
		dim = 256
	}
	vec := make([]float32, dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := utils.HashStringToUint64(tok)
		vec[h%uint64(dim)] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

// MockAssistant returns a canned reply, or the result of Fn when set.
type MockAssistant struct {
	Reply string
	Err   error
	Fn    func(prompt string) (string, error)
}

func (m MockAssistant) Ask(ctx context.Context, prompt string, history []ChatMessage) (string, error) {
	if m.Fn != nil {
		return m.Fn(prompt)
	}
	return m.Reply, m.Err
}
