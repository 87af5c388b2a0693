package retrieval

import (
	"sort"

	"github.com/bull/rag-assistant/internal/storage"
)

// FuseRRF merges ranked lists with Reciprocal Rank Fusion. Each list adds
// weight/(k+rank+1) to a document's score, with 0-based ranks. The semantic
// record wins when a document appears in both lists. Ties keep first-seen
// order, semantic list first. Score on the returned results is the fused value.
func FuseRRF(semantic, keyword []storage.RetrievalResult, semanticWeight, keywordWeight float64, k int) []storage.RetrievalResult {
	type entry struct {
		result storage.RetrievalResult
		score  float64
	}

	byID := make(map[string]*entry, len(semantic)+len(keyword))
	var order []*entry

	accumulate := func(list []storage.RetrievalResult, weight float64) {
		for rank, r := range list {
			contribution := weight / float64(k+rank+1)
			if e, ok := byID[r.ID]; ok {
				e.score += contribution
				continue
			}
			e := &entry{result: r, score: contribution}
			byID[r.ID] = e
			order = append(order, e)
		}
	}
	accumulate(semantic, semanticWeight)
	accumulate(keyword, keywordWeight)

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].score > order[j].score
	})

	fused := make([]storage.RetrievalResult, len(order))
	for i, e := range order {
		fused[i] = e.result
		fused[i].Score = e.score
	}
	return fused
}
