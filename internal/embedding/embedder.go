// Package embedding generates dense vectors through the OpenAI embeddings API.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimensions is the vector size of text-embedding-3-small.
	DefaultDimensions = 1536

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500
)

// Options configures an Embedder. Zero values select the defaults.
type Options struct {
	Model      string
	Dimensions int
	BatchSize  int
}

// Embedder implements provider.EmbeddingProvider on the OpenAI embeddings
// endpoint.
type Embedder struct {
	client     *Client
	model      string
	dimensions int
	batchSize  int
}

// NewEmbedder creates an Embedder.
func NewEmbedder(client *Client, opts Options) *Embedder {
	e := &Embedder{
		client:     client,
		model:      opts.Model,
		dimensions: opts.Dimensions,
		batchSize:  opts.BatchSize,
	}
	if e.model == "" {
		e.model = DefaultModel
	}
	if e.dimensions <= 0 {
		e.dimensions = DefaultDimensions
	}
	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}
	return e
}

// Dimensions returns the vector size this embedder produces.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed returns the embedding of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in order, splitting them into API-sized batches.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		vecs, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	// Only the v3 models accept a reduced dimension.
	if strings.HasPrefix(e.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	var out [][]float32
	err := e.client.Do(ctx, func(c *openai.Client) error {
		resp, err := c.Embeddings.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return unexpected("expected %d embeddings, got %d", len(texts), len(resp.Data))
		}

		out = make([][]float32, len(texts))
		for i, data := range resp.Data {
			idx := int(data.Index)
			if idx < 0 || idx >= len(out) {
				idx = i
			}
			out[idx] = toFloat32(data.Embedding)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
