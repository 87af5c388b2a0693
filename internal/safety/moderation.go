package safety

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/openai/openai-go"
)

// DefaultModerationModel is the OpenAI moderation model.
const DefaultModerationModel = "omni-moderation-latest"

// ModerationResult is the outcome of a moderation call. Degraded is set when
// the moderator could not be reached and the text was let through.
type ModerationResult struct {
	Flagged        bool
	Categories     map[string]bool
	CategoryScores map[string]float64
	Degraded       bool
}

// FlaggedCategories lists the categories that were flagged, sorted.
func (r ModerationResult) FlaggedCategories() []string {
	var out []string
	for name, flagged := range r.Categories {
		if flagged {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Moderator classifies text. Implementations fail open: an unreachable
// service yields an unflagged, degraded result rather than an error.
type Moderator interface {
	Check(ctx context.Context, text string) ModerationResult
}

// NoopModerator never flags anything.
type NoopModerator struct{}

func (NoopModerator) Check(context.Context, string) ModerationResult {
	return ModerationResult{}
}

// OpenAIModerator calls the OpenAI moderation endpoint.
type OpenAIModerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIModerator wraps an OpenAI client. An empty model selects
// DefaultModerationModel.
func NewOpenAIModerator(client *openai.Client, model string, logger *slog.Logger) *OpenAIModerator {
	if model == "" {
		model = DefaultModerationModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIModerator{client: client, model: model, timeout: 10 * time.Second, logger: logger}
}

func (m *OpenAIModerator) Check(ctx context.Context, text string) ModerationResult {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.ModerationModel(m.model),
	})
	if err != nil {
		m.logger.Warn("moderation unavailable, allowing content", "error", err)
		return ModerationResult{Degraded: true}
	}
	if len(resp.Results) == 0 {
		m.logger.Warn("moderation returned no results, allowing content")
		return ModerationResult{Degraded: true}
	}

	r := resp.Results[0]
	result := ModerationResult{Flagged: r.Flagged}
	if raw := r.Categories.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &result.Categories); err != nil {
			m.logger.Debug("decoding moderation categories", "error", err)
		}
	}
	if raw := r.CategoryScores.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &result.CategoryScores); err != nil {
			m.logger.Debug("decoding moderation scores", "error", err)
		}
	}
	if result.Flagged {
		m.logger.Warn("content flagged by moderation", "categories", result.FlaggedCategories())
	}
	return result
}
