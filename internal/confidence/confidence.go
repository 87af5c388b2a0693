// Package confidence rates how much an answer can be trusted from the
// retrieval scores of its chunks and, when available, its grounding ratio.
package confidence

import "math"

// Level is a categorical confidence rating.
type Level string

const (
	High   Level = "high"
	Medium Level = "medium"
	Low    Level = "low"
)

// Factor names reported in Result.Factors.
const (
	FactorRetrievalQuality = "retrieval_quality"
	FactorChunkCoverage    = "chunk_coverage"
	FactorGrounding        = "grounding"
)

// goodChunkScore is the score above which a chunk counts toward coverage.
const goodChunkScore = 0.5

// Result is a confidence assessment.
type Result struct {
	Level       Level              `json:"level"`
	Score       float64            `json:"score"`
	Factors     map[string]float64 `json:"factors"`
	NeedsReview bool               `json:"needs_review"`
}

// Scorer computes confidence. It is pure and safe for concurrent use.
type Scorer struct {
	HighThreshold    float64
	LowThreshold     float64
	MinChunksForHigh int
}

// NewScorer returns a Scorer with the default thresholds.
func NewScorer() *Scorer {
	return &Scorer{HighThreshold: 0.8, LowThreshold: 0.5, MinChunksForHigh: 2}
}

// Score rates an answer built from chunks with the given scores. grounding
// is nil when no grounding check ran.
func (s *Scorer) Score(chunkScores []float64, grounding *float64) Result {
	minChunks := s.MinChunksForHigh
	if minChunks < 1 {
		minChunks = 1
	}

	var quality, coverage float64
	if len(chunkScores) > 0 {
		good := 0
		quality = chunkScores[0]
		for _, v := range chunkScores {
			quality = math.Max(quality, v)
			if v > goodChunkScore {
				good++
			}
		}
		coverage = math.Min(float64(good)/float64(minChunks), 1)
	}

	factors := map[string]float64{
		FactorRetrievalQuality: quality,
		FactorChunkCoverage:    coverage,
	}

	var score float64
	if grounding != nil {
		factors[FactorGrounding] = *grounding
		score = 0.4*quality + 0.4*(*grounding) + 0.2*coverage
	} else {
		score = 0.6*quality + 0.4*coverage
	}

	res := Result{Score: math.Round(score*1000) / 1000, Factors: factors}
	switch {
	case score >= s.HighThreshold && len(chunkScores) >= minChunks:
		res.Level = High
	case score >= s.LowThreshold:
		res.Level = Medium
	default:
		res.Level = Low
		res.NeedsReview = true
	}
	return res
}
