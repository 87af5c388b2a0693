package safety

import (
	"regexp"
	"strings"
)

// ClaimVerification records whether one sentence of an answer is supported.
type ClaimVerification struct {
	Claim            string `json:"claim"`
	Supported        bool   `json:"supported"`
	SupportingSource string `json:"supporting_source,omitempty"`
}

// HallucinationResult summarizes the grounding of an answer.
type HallucinationResult struct {
	IsGrounded      bool
	SupportRatio    float64
	Claims          []ClaimVerification
	TotalClaims     int
	SupportedClaims int
}

// UnsupportedClaims returns the claims with no supporting chunk.
func (r HallucinationResult) UnsupportedClaims() []string {
	var out []string
	for _, c := range r.Claims {
		if !c.Supported {
			out = append(out, c.Claim)
		}
	}
	return out
}

var (
	sentenceEnd = regexp.MustCompile(`[.!?]+`)
	wordPattern = regexp.MustCompile(`\b[a-z0-9]+\b`)
)

var questionPrefixes = []string{"Can ", "Could ", "Would ", "Should ", "May ", "Might "}

var framingPrefixes = []string{"i ", "i'm ", "i am ", "based on ", "according to "}

var hedges = []string{"i'm not sure", "i don't know", "i cannot", "i can't"}

var stopWords = func() map[string]struct{} {
	words := strings.Fields(`a an the and or but is are was were be been being have has had
		do does did will would could should may might must can to of in for on with at by
		from as into through during before after above below between under again further
		then once here there when where why how all each few more most other some such no
		nor not only own same so than too very just also now it its you your they their
		this that these those i we he she`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// HallucinationDetector checks answer sentences for keyword overlap with
// the retrieved chunks. It never calls out of process.
type HallucinationDetector struct {
	// SupportThreshold is the minimum fraction of supported claims for an
	// answer to count as grounded.
	SupportThreshold float64
	// MinClaimLength is the shortest sentence treated as a claim.
	MinClaimLength int
	// OverlapThreshold is the keyword overlap at which a chunk supports a claim.
	OverlapThreshold float64
}

// NewHallucinationDetector returns a detector with the default thresholds.
func NewHallucinationDetector() *HallucinationDetector {
	return &HallucinationDetector{SupportThreshold: 0.8, MinClaimLength: 10, OverlapThreshold: 0.5}
}

// Check verifies every factual sentence of answer against chunks. sources
// names each chunk, by index, for the verification records.
func (d *HallucinationDetector) Check(answer string, chunks, sources []string) HallucinationResult {
	claims := d.claims(answer)
	if len(claims) == 0 {
		return HallucinationResult{IsGrounded: true, SupportRatio: 1}
	}

	lowered := make([]string, len(chunks))
	chunkWords := make([]map[string]struct{}, len(chunks))
	for i, c := range chunks {
		lowered[i] = strings.ToLower(c)
		chunkWords[i] = keywords(c)
	}

	res := HallucinationResult{TotalClaims: len(claims)}
	for _, claim := range claims {
		v := ClaimVerification{Claim: claim}
		if len(chunks) > 0 {
			v.Supported, v.SupportingSource = d.verify(claim, lowered, chunkWords, sources)
		}
		if v.Supported {
			res.SupportedClaims++
		}
		res.Claims = append(res.Claims, v)
	}
	res.SupportRatio = float64(res.SupportedClaims) / float64(res.TotalClaims)
	res.IsGrounded = res.SupportRatio >= d.SupportThreshold
	return res
}

func (d *HallucinationDetector) verify(claim string, chunks []string, chunkWords []map[string]struct{}, sources []string) (bool, string) {
	words := keywords(claim)
	// Too few content words to judge.
	if len(words) < 2 {
		return true, ""
	}

	lowerClaim := strings.ToLower(claim)
	for i := range chunks {
		overlap := 0
		for w := range words {
			if _, ok := chunkWords[i][w]; ok {
				overlap++
			}
		}
		ratio := float64(overlap) / float64(len(words))
		verbatim := len(claim) > 20 && strings.Contains(chunks[i], lowerClaim)
		if ratio >= d.OverlapThreshold || verbatim {
			source := "source"
			if i < len(sources) && sources[i] != "" {
				source = sources[i]
			}
			return true, source
		}
	}
	return false, ""
}

// claims splits text into sentences that assert something.
func (d *HallucinationDetector) claims(text string) []string {
	var out []string
	for _, s := range sentenceEnd.Split(text, -1) {
		s = strings.TrimSpace(s)
		if len(s) < d.MinClaimLength || isNonClaim(s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func isNonClaim(s string) bool {
	for _, p := range questionPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	lower := strings.ToLower(s)
	for _, p := range framingPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	for _, h := range hedges {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// keywords returns the distinct content words of text.
func keywords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}
