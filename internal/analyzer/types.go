package analyzer

// #region thresholds

// AxisThresholds holds the warning and critical cutoffs for one score axis.
type AxisThresholds struct {
	Warning  float64 `json:"warning" yaml:"warning"`
	Critical float64 `json:"critical" yaml:"critical"`
}

// Thresholds configures the analyzer cutoffs. Divergence thresholds apply to
// the magnitude of the signed divergence value.
type Thresholds struct {
	Curl       AxisThresholds `json:"curl" yaml:"curl"`
	Divergence AxisThresholds `json:"divergence" yaml:"divergence"`
}

// DefaultThresholds returns the standard analyzer cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Curl:       AxisThresholds{Warning: 0.3, Critical: 0.6},
		Divergence: AxisThresholds{Warning: 0.4, Critical: 0.7},
	}
}

// #endregion thresholds

// #region region

// RegionType tags a flagged span with the axis that tripped it.
type RegionType string

const (
	RegionHighCurl           RegionType = "high_curl"
	RegionPositiveDivergence RegionType = "positive_divergence"
	RegionNegativeDivergence RegionType = "negative_divergence"
)

// Severity grades a flagged region.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Region is a flagged span of the analyzed text.
type Region struct {
	Type     RegionType `json:"type"`
	Severity Severity   `json:"severity"`
	Start    int        `json:"start"`
	End      int        `json:"end"`
}

// #endregion region

// #region result

// Result is the output of one analyzer run. Ephemeral — callers wrap it in a
// ledger entry if they want it persisted.
type Result struct {
	// Curl measures verbatim repetition, 0 (none) to 1 (fully repetitive).
	Curl float64 `json:"curl"`
	// Divergence is signed: positive means unresolved expansion, negative
	// means premature over-compression.
	Divergence float64 `json:"divergence"`
	// Potential is the density of undeveloped-idea markers, 0 to 1.
	Potential float64 `json:"potential"`
	// Regions lists flagged spans, in axis order.
	Regions []Region `json:"regions"`
	// Coherent is the combined verdict against the thresholds in effect.
	Coherent bool `json:"coherent"`
}

// #endregion result
