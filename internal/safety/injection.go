package safety

import "regexp"

// Pattern is a named injection signature.
type Pattern struct {
	Name string
	Expr *regexp.Regexp
}

func pattern(name, expr string) Pattern {
	return Pattern{Name: name, Expr: regexp.MustCompile(`(?i)` + expr)}
}

// DefaultPatterns cover instruction override, role change, prompt
// extraction, debug modes and known jailbreak phrasing. Order matters:
// the first match is reported.
var DefaultPatterns = []Pattern{
	pattern("ignore_instructions", `ignore .{0,30}(instructions|rules|guidelines)`),
	pattern("disregard_instructions", `disregard .{0,30}(instructions|rules|guidelines)`),
	pattern("forget_instructions", `forget .{0,30}(instructions|rules|guidelines)`),
	pattern("override_instructions", `override .{0,30}(instructions|rules|guidelines)`),

	pattern("role_change", `you are now`),
	pattern("role_change", `act as`),
	pattern("role_change", `pretend (to be|you are|that you)`),
	pattern("role_change", `roleplay as`),
	pattern("new_role", `new (instructions|task|role|persona)`),

	pattern("prompt_extraction", `(reveal|show|display|output|print) .{0,20}(system|original|initial) (prompt|instructions)`),
	pattern("prompt_extraction", `what (are|is) your (system|original|initial) (prompt|instructions)`),
	pattern("prompt_extraction", `system prompt`),
	pattern("prompt_extraction", `(initial|original) instructions`),

	pattern("debug_mode", `(developer|debug|admin|maintenance) mode`),
	pattern("debug_mode", `enable (developer|debug|admin) (mode|access)`),

	pattern("jailbreak", `jailbreak`),
	pattern("jailbreak", `dan mode`),
	pattern("jailbreak", `do anything now`),
}

// InjectionDetector matches text against injection patterns. It never calls
// out of process.
type InjectionDetector struct {
	patterns []Pattern
}

// NewInjectionDetector uses DefaultPatterns followed by any extra patterns.
func NewInjectionDetector(extra ...Pattern) *InjectionDetector {
	patterns := make([]Pattern, 0, len(DefaultPatterns)+len(extra))
	patterns = append(patterns, DefaultPatterns...)
	patterns = append(patterns, extra...)
	return &InjectionDetector{patterns: patterns}
}

// Match returns the name of the first matching pattern.
func (d *InjectionDetector) Match(text string) (string, bool) {
	for _, p := range d.patterns {
		if p.Expr.MatchString(text) {
			return p.Name, true
		}
	}
	return "", false
}
