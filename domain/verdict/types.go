package verdict

// Tag is the outcome class of one test
type Tag string

const (
	TagStrong    Tag = "STRONG"
	TagGood      Tag = "GOOD"
	TagModerate  Tag = "MODERATE"
	TagWeak      Tag = "WEAK"
	TagClustered Tag = "CLUSTERED"
	TagReal      Tag = "REAL"    // power-law formulation wins
	TagComplex   Tag = "COMPLEX" // exponential formulation wins
	TagError     Tag = "ERROR"
	TagSkipped   Tag = "SKIPPED"
)

// TestName identifies a test in the battery
type TestName string

const (
	TestThreshold   TestName = "threshold_test"
	TestClustering  TestName = "clustering_test"
	TestCorrelation TestName = "evolution_test"
	TestFormulation TestName = "formulation_test"
)

// TestVerdict is the immutable outcome of one test run. Exactly one evidence
// pointer matching Test is set unless the test was skipped before computing.
type TestVerdict struct {
	Test   TestName `json:"test"`
	Tag    Tag      `json:"verdict"`
	Reason string   `json:"reason,omitempty"`

	Threshold   *ThresholdEvidence   `json:"threshold,omitempty"`
	Clustering  *ClusteringEvidence  `json:"clustering,omitempty"`
	Correlation *CorrelationEvidence `json:"correlation,omitempty"`
	Formulation *FormulationEvidence `json:"formulation,omitempty"`
}

// Ran reports whether the test produced a verdict that may be scored
func (v TestVerdict) Ran() bool {
	return v.Tag != TagSkipped && v.Tag != TagError
}

// ThresholdEvidence counts records on each side of the boundary
type ThresholdEvidence struct {
	Boundary     float64 `json:"boundary"`
	Below        int     `json:"k_below"`
	Above        int     `json:"k_above"`
	PercentBelow float64 `json:"percent_below"`
	PercentAbove float64 `json:"percent_above"`
}

// HarmonicPeak is the count of records near one predicted harmonic
type HarmonicPeak struct {
	N     int     `json:"n"`
	KPred float64 `json:"k_pred"`
	Count int     `json:"count"`
}

// ClusteringEvidence holds harmonic peak counts and the uniformity statistic
type ClusteringEvidence struct {
	Peaks      []HarmonicPeak `json:"harmonic_peaks"`
	Bins       int            `json:"bins"`
	InWindow   int            `json:"in_window"`
	Expected   float64        `json:"expected_per_bin"`
	ChiSquared float64        `json:"chi_squared"`
	Histogram  []float64      `json:"histogram"`
}

// CorrelationEvidence holds the Pearson correlation between k and the secondary observable
type CorrelationEvidence struct {
	Observable string  `json:"observable"`
	N          int     `json:"n_stars"`
	PearsonR   float64 `json:"pearson_r"`
	PValue     float64 `json:"p_value"`
}

// ModelFit is one fitted formulation
type ModelFit struct {
	Model       string    `json:"model"`
	Params      []float64 `json:"params,omitempty"`
	R2          float64   `json:"r2"`
	Evaluations int       `json:"evaluations"`
	Converged   bool      `json:"converged"`
}

// FormulationEvidence compares the exponential and power-law fits
type FormulationEvidence struct {
	N         int      `json:"n_fit"`
	Complex   ModelFit `json:"complex"`
	Real      ModelFit `json:"real"`
	TieRatio  float64  `json:"tie_ratio"`
	Winner    string   `json:"winner,omitempty"`
	FitFailed string   `json:"error,omitempty"`
}

// PhaseStats summarises k for one evolutionary phase
type PhaseStats struct {
	Phase   string  `json:"phase"`
	Label   string  `json:"label,omitempty"`
	Count   int     `json:"count"`
	KMedian float64 `json:"k_median"`
	KMean   float64 `json:"k_mean"`
}

// PhaseEvidence is the optional phase-stratified sub-analysis. It carries no verdict.
type PhaseEvidence struct {
	Field  string       `json:"field"`
	Phases []PhaseStats `json:"phases"`
}

// Readiness is the discrete label derived from the score
type Readiness string

const (
	ReadinessReady    Readiness = "ready"
	ReadinessProbably Readiness = "probably ready"
	ReadinessNeedWork Readiness = "needs more work"
)

// Contribution records how much one rubric line added
type Contribution struct {
	Item   string  `json:"item"`
	Tag    Tag     `json:"verdict,omitempty"`
	Points float64 `json:"points"`
}

// ScoreReport folds all verdicts into the readiness score
type ScoreReport struct {
	Score         float64        `json:"score"`
	MaxScore      float64        `json:"max_score"`
	Readiness     Readiness      `json:"readiness"`
	Contributions []Contribution `json:"contributions"`
	Omitted       []TestName     `json:"omitted,omitempty"`
}
