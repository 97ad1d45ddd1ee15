package analyzer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeIsDeterministic(t *testing.T) {
	text := "Could this be improved? Perhaps.\n\nTherefore we conclude. Thus it ends.\n\nA longer closing paragraph that repeats itself. A longer closing paragraph that repeats itself."

	a := Analyze(text, DefaultThresholds())
	b := Analyze(text, DefaultThresholds())
	assert.Equal(t, a, b)
}

func TestCircularTextScoresHighCurl(t *testing.T) {
	text := "This sentence is circular. This sentence is circular because it refers to itself. See the first sentence."

	res := Analyze(text, DefaultThresholds())

	assert.GreaterOrEqual(t, res.Curl, 0.3, "repeated 20+ char fragment should raise curl")
	assert.False(t, res.Coherent)

	require.NotEmpty(t, res.Regions)
	assert.Equal(t, RegionHighCurl, res.Regions[0].Type)
	assert.Equal(t, SeverityWarning, res.Regions[0].Severity)
	assert.Equal(t, 0, res.Regions[0].Start)
	assert.Equal(t, len(text), res.Regions[0].End)
}

func TestPlainStatementsAreCoherent(t *testing.T) {
	text := "Plain statement. Another plain statement. A third plain statement that is distinct."

	res := Analyze(text, DefaultThresholds())

	assert.Less(t, res.Curl, 0.2)
	assert.InDelta(t, 0.3, res.Divergence, 1e-9, "no questions and no conclusion markers")
	assert.True(t, res.Coherent)
	assert.Empty(t, res.Regions)
}

func TestConclusionMarkerCapsDivergence(t *testing.T) {
	text := strings.Join([]string{
		"The base case holds by direct inspection of the first element in the sequence under consideration.",
		"The inductive step preserves the invariant because each transformation keeps the ordering intact.",
		"No counterexample survives the exhaustive search over the remaining configurations of the system.",
		"Therefore, the result follows.",
	}, "\n\n")

	res := Analyze(text, DefaultThresholds())

	assert.InDelta(t, 0.2, res.Divergence, 1e-9)
	assert.True(t, res.Coherent)
}

func TestShortConclusionHeavyTextOverCompresses(t *testing.T) {
	text := strings.Join([]string{
		"Therefore the plan works.",
		"Thus we are already done here.",
		"In conclusion, nothing remains.",
	}, "\n\n")

	res := Analyze(text, DefaultThresholds())

	assert.Negative(t, res.Divergence)
	assert.GreaterOrEqual(t, res.Divergence, -0.8)
	assert.LessOrEqual(t, res.Divergence, -0.3)

	require.NotEmpty(t, res.Regions)
	assert.Equal(t, RegionNegativeDivergence, res.Regions[0].Type)
}

func TestQuestionsRaisePositiveDivergence(t *testing.T) {
	text := "What is the failure mode? How does it recover? Who restarts it? Where does the state live? Why does it drift?"

	res := Analyze(text, DefaultThresholds())

	// 0.3 + 5 questions * 0.1, capped at 0.8.
	assert.InDelta(t, 0.8, res.Divergence, 1e-9)
	assert.False(t, res.Coherent)

	require.NotEmpty(t, res.Regions)
	assert.Equal(t, RegionPositiveDivergence, res.Regions[0].Type)
	assert.Equal(t, SeverityCritical, res.Regions[0].Severity)
}

func TestSpeculativeLanguageRaisesPotential(t *testing.T) {
	text := "We could parallelize the scan.\n\nPerhaps the cache should be shared.\n\nTODO: measure the append path."

	res := Analyze(text, DefaultThresholds())
	assert.InDelta(t, 0.45, res.Potential, 1e-9)
}

func TestEmptyTextScoresZeroCurl(t *testing.T) {
	res := Analyze("", DefaultThresholds())
	assert.Zero(t, res.Curl)
	assert.Zero(t, res.Potential)
}

func TestCustomThresholdsChangeVerdict(t *testing.T) {
	text := "What remains unclear? What else is open?"

	strict := DefaultThresholds()
	strict.Divergence.Critical = 0.4

	res := Analyze(text, strict)
	assert.False(t, res.Coherent)

	loose := DefaultThresholds()
	loose.Divergence.Critical = 0.99
	res = Analyze(text, loose)
	assert.True(t, res.Coherent)
}
