package scoring

import "goharmonic/domain/verdict"

// ============================================================================
// Rubric. The maximum is fixed at MaxScore and is never rescaled when a test
// is skipped; a skipped test simply contributes nothing.
// ============================================================================

const (
	MaxScore = 5.0

	// ReadyScore and ProbablyReadyScore are inclusive lower bounds
	ReadyScore         = 4.5
	ProbablyReadyScore = 3.8

	// SamplePresencePoints is awarded whenever the filtered dataset is non-empty
	SamplePresencePoints = 1.0
)

// Item names used in contributions
const (
	ItemThreshold      = "threshold"
	ItemSamplePresence = "sample_presence"
	ItemClustering     = "clustering"
	ItemCorrelation    = "correlation"
	ItemFormulation    = "formulation"
)

// rule maps the tags a test may produce to points. Tags listed in optional
// mean the test did not run; they contribute nothing and the test is omitted.
type rule struct {
	item     string
	points   map[verdict.Tag]float64
	optional map[verdict.Tag]bool
}

var rubric = map[verdict.TestName]rule{
	verdict.TestThreshold: {
		item: ItemThreshold,
		points: map[verdict.Tag]float64{
			verdict.TagStrong: 1.0,
			verdict.TagGood:   0.8,
			verdict.TagWeak:   0.3,
		},
		optional: map[verdict.Tag]bool{verdict.TagError: true, verdict.TagSkipped: true},
	},
	verdict.TestClustering: {
		item: ItemClustering,
		points: map[verdict.Tag]float64{
			verdict.TagClustered: 0.8,
			verdict.TagWeak:      0.3,
		},
		optional: map[verdict.Tag]bool{verdict.TagError: true, verdict.TagSkipped: true},
	},
	verdict.TestCorrelation: {
		item: ItemCorrelation,
		points: map[verdict.Tag]float64{
			verdict.TagStrong:   1.0,
			verdict.TagModerate: 0.7,
			verdict.TagWeak:     0.3,
		},
		optional: map[verdict.Tag]bool{verdict.TagError: true, verdict.TagSkipped: true},
	},
	verdict.TestFormulation: {
		item: ItemFormulation,
		points: map[verdict.Tag]float64{
			verdict.TagReal:    0.8,
			verdict.TagComplex: 0.4,
		},
		optional: map[verdict.Tag]bool{verdict.TagError: true, verdict.TagSkipped: true},
	},
}

// order is the rubric order used for contributions
var order = []verdict.TestName{
	verdict.TestThreshold,
	verdict.TestClustering,
	verdict.TestCorrelation,
	verdict.TestFormulation,
}

// Readiness maps a score to its label
func Readiness(score float64) verdict.Readiness {
	switch {
	case score >= ReadyScore:
		return verdict.ReadinessReady
	case score >= ProbablyReadyScore:
		return verdict.ReadinessProbably
	default:
		return verdict.ReadinessNeedWork
	}
}
