package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func ptr(v float64) *float64 { return &v }

func TestScore(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name        string
		scores      []float64
		grounding   *float64
		wantLevel   Level
		wantScore   float64
		needsReview bool
	}{
		{"strong and grounded", []float64{0.95, 0.9, 0.85}, ptr(0.9), High, 0.94, false},
		{"no chunks", nil, nil, Low, 0, true},
		{"single strong chunk caps at medium", []float64{0.99}, nil, Medium, 0.794, false},
		{"weak retrieval", []float64{0.4, 0.3}, nil, Low, 0.24, true},
		{"ungrounded answer", []float64{0.9, 0.8}, ptr(0), Medium, 0.56, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Score(tt.scores, tt.grounding)
			assert.Equal(t, tt.wantLevel, res.Level)
			assert.InDelta(t, tt.wantScore, res.Score, 1e-9)
			assert.Equal(t, tt.needsReview, res.NeedsReview)
		})
	}
}

func TestScore_Factors(t *testing.T) {
	res := NewScorer().Score([]float64{0.7, 0.2}, ptr(0.5))
	assert.Equal(t, 0.7, res.Factors[FactorRetrievalQuality])
	assert.Equal(t, 0.5, res.Factors[FactorChunkCoverage])
	assert.Equal(t, 0.5, res.Factors[FactorGrounding])

	res = NewScorer().Score([]float64{0.7}, nil)
	_, ok := res.Factors[FactorGrounding]
	assert.False(t, ok)
}

func TestScore_Bounded(t *testing.T) {
	s := NewScorer()
	rapid.Check(t, func(t *rapid.T) {
		scores := rapid.SliceOf(rapid.Float64Range(0, 1)).Draw(t, "scores")
		var g *float64
		if rapid.Bool().Draw(t, "grounded") {
			v := rapid.Float64Range(0, 1).Draw(t, "grounding")
			g = &v
		}
		res := s.Score(scores, g)
		if res.Score < 0 || res.Score > 1 {
			t.Fatalf("score %v out of range", res.Score)
		}
		if res.NeedsReview != (res.Level == Low) {
			t.Fatalf("needs_review %v inconsistent with level %s", res.NeedsReview, res.Level)
		}
		if res.Level == High && len(scores) < s.MinChunksForHigh {
			t.Fatalf("high confidence with %d chunks", len(scores))
		}
	})
}
