// Package eval scores answers against a golden dataset of questions with
// known sources and keywords.
package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// DefaultKeywordThreshold is the keyword recall an answer needs to pass.
const DefaultKeywordThreshold = 0.5

// GoldenExample is one question with the sources and keywords a good answer
// should have.
type GoldenExample struct {
	ID               string   `json:"id"`
	Question         string   `json:"question"`
	ExpectedSources  []string `json:"expected_sources"`
	ExpectedKeywords []string `json:"expected_keywords"`
	Category         string   `json:"category"`
}

// Dataset is the golden dataset file format.
type Dataset struct {
	Version  string          `json:"version"`
	Examples []GoldenExample `json:"examples"`
}

// RetrievalMetrics measures which sources came back.
type RetrievalMetrics struct {
	RecallAtK        float64  `json:"recall_at_k"`
	PrecisionAtK     float64  `json:"precision_at_k"`
	SourceFound      bool     `json:"source_found"`
	RetrievedSources []string `json:"retrieved_sources"`
	ExpectedSources  []string `json:"expected_sources"`
}

// AnswerMetrics measures which expected keywords the answer contains.
type AnswerMetrics struct {
	KeywordRecall   float64  `json:"keyword_recall"`
	KeywordsFound   []string `json:"keywords_found"`
	KeywordsMissing []string `json:"keywords_missing"`
}

// Result is the assessment of one example.
type Result struct {
	ExampleID string           `json:"example_id"`
	Question  string           `json:"question"`
	Retrieval RetrievalMetrics `json:"retrieval"`
	Answer    AnswerMetrics    `json:"answer"`
	Passed    bool             `json:"passed"`
	// Error is set when the question could not be answered at all.
	Error string `json:"error,omitempty"`
}

// Summary aggregates results over a dataset.
type Summary struct {
	TotalExamples      int      `json:"total_examples"`
	PassedExamples     int      `json:"passed_examples"`
	PassRate           float64  `json:"pass_rate"`
	AvgRetrievalRecall float64  `json:"avg_retrieval_recall"`
	AvgKeywordRecall   float64  `json:"avg_keyword_recall"`
	Results            []Result `json:"results"`
	FailedExamples     []string `json:"failed_examples"`
}

// LoadGoldenDataset reads a dataset file.
func LoadGoldenDataset(path string) ([]GoldenExample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	examples, err := ParseGoldenDataset(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return examples, nil
}

// ParseGoldenDataset decodes a dataset. Every example needs an id and a
// question.
func ParseGoldenDataset(r io.Reader) ([]GoldenExample, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode golden dataset: %w", err)
	}
	for i, ex := range ds.Examples {
		if ex.ID == "" || ex.Question == "" {
			return nil, fmt.Errorf("example %d: id and question are required", i)
		}
	}
	if ds.Examples == nil {
		ds.Examples = []GoldenExample{}
	}
	return ds.Examples, nil
}

// CalculateRetrievalMetrics compares retrieved sources to expected ones as
// sets. With nothing expected, recall is 1 and precision is 1 only if
// nothing was retrieved either.
func CalculateRetrievalMetrics(retrieved, expected []string) RetrievalMetrics {
	m := RetrievalMetrics{RetrievedSources: retrieved, ExpectedSources: expected}
	if len(expected) == 0 {
		m.RecallAtK = 1
		m.SourceFound = true
		if len(retrieved) == 0 {
			m.PrecisionAtK = 1
		}
		return m
	}

	retrievedSet := toSet(retrieved)
	expectedSet := toSet(expected)
	found := 0
	for s := range expectedSet {
		if _, ok := retrievedSet[s]; ok {
			found++
		}
	}

	m.RecallAtK = float64(found) / float64(len(expectedSet))
	if len(retrievedSet) > 0 {
		m.PrecisionAtK = float64(found) / float64(len(retrievedSet))
	}
	m.SourceFound = found > 0
	return m
}

// CalculateAnswerMetrics checks each keyword as a case-insensitive substring
// of the answer.
func CalculateAnswerMetrics(answer string, keywords []string) AnswerMetrics {
	m := AnswerMetrics{KeywordsFound: []string{}, KeywordsMissing: []string{}}
	if len(keywords) == 0 {
		m.KeywordRecall = 1
		return m
	}

	lower := strings.ToLower(answer)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			m.KeywordsFound = append(m.KeywordsFound, kw)
		} else {
			m.KeywordsMissing = append(m.KeywordsMissing, kw)
		}
	}
	m.KeywordRecall = float64(len(m.KeywordsFound)) / float64(len(keywords))
	return m
}

// Assess scores one example. It passes when at least one expected source was
// retrieved and keyword recall reaches keywordThreshold.
func Assess(ex GoldenExample, retrieved []string, answer string, keywordThreshold float64) Result {
	retrieval := CalculateRetrievalMetrics(retrieved, ex.ExpectedSources)
	answerMetrics := CalculateAnswerMetrics(answer, ex.ExpectedKeywords)
	return Result{
		ExampleID: ex.ID,
		Question:  ex.Question,
		Retrieval: retrieval,
		Answer:    answerMetrics,
		Passed:    retrieval.SourceFound && answerMetrics.KeywordRecall >= keywordThreshold,
	}
}

// Summarize aggregates results. An empty input gives an all-zero summary.
func Summarize(results []Result, logger *slog.Logger) Summary {
	s := Summary{Results: results, FailedExamples: []string{}}
	if results == nil {
		s.Results = []Result{}
	}
	if len(results) == 0 {
		return s
	}

	var retrievalSum, keywordSum float64
	for _, r := range results {
		if r.Passed {
			s.PassedExamples++
		} else {
			s.FailedExamples = append(s.FailedExamples, r.ExampleID)
		}
		retrievalSum += r.Retrieval.RecallAtK
		keywordSum += r.Answer.KeywordRecall
	}
	n := float64(len(results))
	s.TotalExamples = len(results)
	s.PassRate = float64(s.PassedExamples) / n
	s.AvgRetrievalRecall = retrievalSum / n
	s.AvgKeywordRecall = keywordSum / n

	if logger != nil {
		logger.Info("Evaluation summary",
			"total", s.TotalExamples,
			"passed", s.PassedExamples,
			"pass_rate", fmt.Sprintf("%.1f%%", s.PassRate*100),
			"avg_retrieval_recall", fmt.Sprintf("%.2f", s.AvgRetrievalRecall),
			"avg_keyword_recall", fmt.Sprintf("%.2f", s.AvgKeywordRecall),
		)
	}
	return s
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
