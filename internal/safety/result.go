// Package safety screens questions and answers: prompt-injection patterns,
// content moderation and a grounding check of answers against sources.
package safety

// ViolationType names the check that blocked content.
type ViolationType string

const (
	ViolationNone          ViolationType = "none"
	ViolationModeration    ViolationType = "moderation_flagged"
	ViolationInjection     ViolationType = "prompt_injection"
	ViolationHallucination ViolationType = "hallucination"
)

// User-facing messages. Moderation and injection share one wording so the
// caller cannot tell which check fired.
const (
	PassedMessage        = "Content passed safety checks."
	BlockedMessage       = "I can only answer questions about the indexed documents."
	LowConfidenceMessage = "I don't have enough information to answer that confidently."
)

// CheckResult is the verdict of a safety check.
type CheckResult struct {
	Safe      bool
	Violation ViolationType
	Message   string
	Details   map[string]any
}

// Passed returns a safe result.
func Passed() CheckResult {
	return CheckResult{Safe: true, Violation: ViolationNone, Message: PassedMessage}
}

// FailedInjection blocks on a matched injection pattern.
func FailedInjection(pattern string) CheckResult {
	r := CheckResult{Violation: ViolationInjection, Message: BlockedMessage}
	if pattern != "" {
		r.Details = map[string]any{"matched_pattern": pattern}
	}
	return r
}

// FailedModeration blocks on flagged moderation categories.
func FailedModeration(categories []string) CheckResult {
	r := CheckResult{Violation: ViolationModeration, Message: BlockedMessage}
	if len(categories) > 0 {
		r.Details = map[string]any{"flagged_categories": categories}
	}
	return r
}

// FailedHallucination blocks an answer whose claims are not supported.
func FailedHallucination(supportRatio float64) CheckResult {
	return CheckResult{
		Violation: ViolationHallucination,
		Message:   LowConfidenceMessage,
		Details:   map[string]any{"support_ratio": supportRatio},
	}
}
