package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/bull/rag-assistant/internal/storage"
)

// IndexedDocument is the keyword-index view of a stored chunk.
type IndexedDocument struct {
	ID       string
	Content  string
	Metadata storage.Metadata
}

// Tokenize lowercases text and splits it into runs of letters, digits and
// underscores.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// keywordIndex is an immutable BM25 snapshot. It is never modified after
// construction, so readers need no locking.
type keywordIndex struct {
	docs      []IndexedDocument
	termFreqs []map[string]int
	docLens   []int
	avgLen    float64
	docFreq   map[string]int
	k1, b     float64
}

func newKeywordIndex(docs []IndexedDocument, k1, b float64) *keywordIndex {
	ix := &keywordIndex{
		docs:      append([]IndexedDocument(nil), docs...),
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		docFreq:   make(map[string]int),
		k1:        k1,
		b:         b,
	}

	total := 0
	for i, d := range ix.docs {
		tokens := Tokenize(d.Content)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			ix.docFreq[t]++
		}
		ix.termFreqs[i] = tf
		ix.docLens[i] = len(tokens)
		total += len(tokens)
	}
	if len(docs) > 0 {
		ix.avgLen = float64(total) / float64(len(docs))
	}
	return ix
}

func (ix *keywordIndex) size() int {
	if ix == nil {
		return 0
	}
	return len(ix.docs)
}

// idf uses the non-negative BM25 variant so terms present in most documents
// still count for something.
func (ix *keywordIndex) idf(term string) float64 {
	n := float64(len(ix.docs))
	df := float64(ix.docFreq[term])
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

type scoredDoc struct {
	index int
	score float64
}

// search returns up to limit documents with a positive BM25 score, best first.
// Equal scores keep index order.
func (ix *keywordIndex) search(query string, limit int) []storage.RetrievalResult {
	if ix.size() == 0 || limit <= 0 {
		return nil
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	var hits []scoredDoc
	for i, tf := range ix.termFreqs {
		score := 0.0
		docLen := float64(ix.docLens[i])
		for _, t := range terms {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			norm := 1 - ix.b
			if ix.avgLen > 0 {
				norm += ix.b * docLen / ix.avgLen
			}
			score += ix.idf(t) * f * (ix.k1 + 1) / (f + ix.k1*norm)
		}
		if score > 0 {
			hits = append(hits, scoredDoc{index: i, score: score})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]storage.RetrievalResult, len(hits))
	for i, h := range hits {
		d := ix.docs[h.index]
		results[i] = storage.RetrievalResult{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: d.Metadata,
			Score:    h.score,
		}
	}
	return results
}
