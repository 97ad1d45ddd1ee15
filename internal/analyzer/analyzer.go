// Package analyzer scores a document along three heuristic axes: curl
// (repetition), divergence (unresolved expansion vs premature compression),
// and potential (undeveloped-idea density).
//
// This is intentionally a crude lexical proxy, not semantic analysis. The
// scores come from sentence splitting, marker counting, and character counts;
// swapping in a real language model would change observable behavior and is
// out of scope.
package analyzer

import (
	"math"
	"regexp"
	"strings"
)

// #region patterns

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	fragmentSplit  = regexp.MustCompile(`[.!?]+`)

	conclusionPattern  = regexp.MustCompile(`(?i)\b(therefore|thus|in conclusion|finally|to summarize|in summary)\b`)
	speculativePattern = regexp.MustCompile(`(?i)\b(could|might|perhaps|possibly|future work|TODO|TBD)\b`)
)

// minFragmentLen is the shortest sentence fragment considered for the curl
// computation; it is also the prefix length fragments are keyed by, so two
// sentences sharing their first 20 characters count as a repeat.
const minFragmentLen = 20

// #endregion patterns

// #region analyze

// Analyze scores text against the given thresholds. Pure and deterministic:
// identical input yields identical output.
func Analyze(text string, thresholds Thresholds) Result {
	paragraphs := splitParagraphs(text)

	curl := computeCurl(paragraphs)
	divergence := computeDivergence(text, paragraphs)
	potential := computePotential(paragraphs)

	regions := flagRegions(text, curl, divergence, thresholds)

	// Verdict: curl is held to its warning cutoff while divergence is held
	// to its critical magnitude. The asymmetry is inherited behavior.
	coherent := curl < thresholds.Curl.Warning &&
		math.Abs(divergence) < thresholds.Divergence.Critical

	return Result{
		Curl:       curl,
		Divergence: divergence,
		Potential:  potential,
		Regions:    regions,
		Coherent:   coherent,
	}
}

// #endregion analyze

// #region paragraphs

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range paragraphSplit.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// #endregion paragraphs

// #region curl

// computeCurl measures circularity: the fraction of sentence fragments that
// repeat an earlier fragment. Fragments shorter than minFragmentLen are
// ignored; longer ones are keyed by their minFragmentLen-char prefix.
func computeCurl(paragraphs []string) float64 {
	total := 0
	seen := make(map[string]bool)
	for _, p := range paragraphs {
		for _, frag := range fragmentSplit.Split(p, -1) {
			frag = strings.ToLower(strings.TrimSpace(frag))
			if len(frag) < minFragmentLen {
				continue
			}
			total++
			seen[frag[:minFragmentLen]] = true
		}
	}
	if total == 0 {
		return 0
	}
	return 1 - float64(len(seen))/float64(total)
}

// #endregion curl

// #region divergence

// computeDivergence returns a signed score: negative when the text concludes
// prematurely relative to its content, positive when it expands without
// resolving.
func computeDivergence(text string, paragraphs []string) float64 {
	conclusionCount := len(conclusionPattern.FindAllStringIndex(text, -1))

	var totalLen int
	for _, p := range paragraphs {
		totalLen += len(p)
	}
	avgParagraphLen := 0.0
	if len(paragraphs) > 0 {
		avgParagraphLen = float64(totalLen) / float64(len(paragraphs))
	}

	// Over-compression: many conclusions relative to short paragraphs.
	overCompressed := (conclusionCount >= 2 && avgParagraphLen < 100) ||
		float64(conclusionCount) > 0.3*float64(len(paragraphs))
	if overCompressed {
		return -math.Min(0.3+float64(conclusionCount)*0.15, 0.8)
	}

	// Under-resolution: a single conclusion caps the score flat; with no
	// conclusion at all, open questions push it up.
	for _, p := range paragraphs {
		if conclusionPattern.MatchString(p) {
			return 0.2
		}
	}
	questionCount := strings.Count(text, "?")
	return math.Min(0.3+float64(questionCount)*0.1, 0.8)
}

// #endregion divergence

// #region potential

// computePotential counts paragraphs carrying speculative language.
func computePotential(paragraphs []string) float64 {
	matches := 0
	for _, p := range paragraphs {
		if speculativePattern.MatchString(p) {
			matches++
		}
	}
	return math.Min(float64(matches)*0.15, 1.0)
}

// #endregion potential

// #region regions

// flagRegions emits one whole-text region per axis that exceeds its warning
// threshold. Negative divergence is held to the same magnitude thresholds as
// positive.
func flagRegions(text string, curl, divergence float64, thresholds Thresholds) []Region {
	var regions []Region

	if curl > thresholds.Curl.Warning {
		regions = append(regions, Region{
			Type:     RegionHighCurl,
			Severity: severityFor(curl, thresholds.Curl.Critical),
			Start:    0,
			End:      len(text),
		})
	}

	mag := math.Abs(divergence)
	if mag > thresholds.Divergence.Warning {
		rt := RegionPositiveDivergence
		if divergence < 0 {
			rt = RegionNegativeDivergence
		}
		regions = append(regions, Region{
			Type:     rt,
			Severity: severityFor(mag, thresholds.Divergence.Critical),
			Start:    0,
			End:      len(text),
		})
	}

	return regions
}

func severityFor(value, critical float64) Severity {
	if value > critical {
		return SeverityCritical
	}
	return SeverityWarning
}

// #endregion regions
