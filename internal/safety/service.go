package safety

import (
	"context"
	"log/slog"
)

// Service combines the detectors behind the checks the question pipeline
// runs.
type Service struct {
	injection     *InjectionDetector
	moderator     Moderator
	hallucination *HallucinationDetector
	logger        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithModerator sets the content moderator. The default never flags.
func WithModerator(m Moderator) Option {
	return func(s *Service) { s.moderator = m }
}

// WithInjectionDetector replaces the default injection detector.
func WithInjectionDetector(d *InjectionDetector) Option {
	return func(s *Service) { s.injection = d }
}

// WithHallucinationDetector replaces the default grounding detector.
func WithHallucinationDetector(d *HallucinationDetector) Option {
	return func(s *Service) { s.hallucination = d }
}

// NewService builds a Service with default detectors.
func NewService(logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		injection:     NewInjectionDetector(),
		moderator:     NoopModerator{},
		hallucination: NewHallucinationDetector(),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckInput screens a question. Injection patterns are checked first so a
// match never reaches the moderation service.
func (s *Service) CheckInput(ctx context.Context, text string) CheckResult {
	if name, ok := s.injection.Match(text); ok {
		s.logger.Warn("prompt injection detected", "pattern", name)
		return FailedInjection(name)
	}
	return s.moderate(ctx, "input", text)
}

// CheckOutput moderates a generated answer.
func (s *Service) CheckOutput(ctx context.Context, text string) CheckResult {
	return s.moderate(ctx, "output", text)
}

func (s *Service) moderate(ctx context.Context, direction, text string) CheckResult {
	res := s.moderator.Check(ctx, text)
	if res.Degraded {
		s.logger.Debug("moderation degraded", "direction", direction)
	}
	if res.Flagged {
		cats := res.FlaggedCategories()
		s.logger.Warn("moderation flagged content", "direction", direction, "categories", cats)
		return FailedModeration(cats)
	}
	return Passed()
}

// CheckGrounding verifies answer against the retrieved chunks.
func (s *Service) CheckGrounding(answer string, chunks, sources []string) (CheckResult, HallucinationResult) {
	res := s.hallucination.Check(answer, chunks, sources)
	if res.IsGrounded {
		return Passed(), res
	}

	unsupported := res.UnsupportedClaims()
	if len(unsupported) > 3 {
		unsupported = unsupported[:3]
	}
	s.logger.Warn("answer not grounded",
		"support_ratio", res.SupportRatio,
		"supported", res.SupportedClaims,
		"total", res.TotalClaims,
		"unsupported", unsupported,
	)
	return FailedHallucination(res.SupportRatio), res
}
