package eval

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bull/rag-assistant/internal/provider"
	"github.com/bull/rag-assistant/internal/rag"
)

// Asker answers one question. rag.Service implements it.
type Asker interface {
	Ask(ctx context.Context, question string, history []provider.Message) (*rag.Response, error)
}

// RunOptions tunes a Run. Zero values select the defaults.
type RunOptions struct {
	KeywordThreshold float64
	// Concurrency bounds in-flight questions. Defaults to 4.
	Concurrency int
}

// Run asks every example and assesses the answers. Results keep the dataset
// order. A failed question becomes a failed result; only context
// cancellation aborts the run.
func Run(ctx context.Context, asker Asker, examples []GoldenExample, opts RunOptions, logger *slog.Logger) ([]Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.KeywordThreshold <= 0 {
		opts.KeywordThreshold = DefaultKeywordThreshold
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	results := make([]Result, len(examples))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, ex := range examples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			resp, err := asker.Ask(ctx, ex.Question, nil)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Warn("Evaluation question failed", "example", ex.ID, "error", err)
				results[i] = Assess(ex, nil, "", opts.KeywordThreshold)
				results[i].Passed = false
				results[i].Error = err.Error()
				return nil
			}

			sources := make([]string, len(resp.ChunksUsed))
			for j, c := range resp.ChunksUsed {
				sources[j] = c.Source
			}
			results[i] = Assess(ex, sources, resp.Answer, opts.KeywordThreshold)
			logger.Debug("Evaluated example", "example", ex.ID, "passed", results[i].Passed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
