package battery

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"goharmonic/domain/star"
	"goharmonic/domain/verdict"
	"goharmonic/internal/config"
	"goharmonic/internal/errors"
)

// CorrelationTest measures the Pearson correlation between k and a secondary
// observable (stellar radius by default)
type CorrelationTest struct {
	cfg config.CorrelationConfig
}

// NewCorrelationTest creates a new correlation test
func NewCorrelationTest(cfg config.CorrelationConfig) *CorrelationTest {
	return &CorrelationTest{cfg: cfg}
}

// Name returns the test name
func (t *CorrelationTest) Name() verdict.TestName {
	return verdict.TestCorrelation
}

// Description returns a human-readable description
func (t *CorrelationTest) Description() string {
	return fmt.Sprintf("Pearson correlation of k with %s in (0, %g)", t.cfg.Observable, t.cfg.Ceiling)
}

// Run skips unless the restricted subset has more than MinSamples stars
func (t *CorrelationTest) Run(ctx context.Context, ds *star.Dataset) verdict.TestVerdict {
	xs, ks := secondarySubset(ds, t.cfg.Observable, t.cfg.Ceiling)
	if len(xs) <= t.cfg.MinSamples {
		return skippedVerdict(t.Name(), errors.InsufficientSample(string(t.Name()), len(xs), t.cfg.MinSamples+1))
	}

	r := stat.Correlation(xs, ks, nil)
	if math.IsNaN(r) {
		return errorVerdict(t.Name(), errors.InsufficientSample(string(t.Name())+" (zero variance)", len(xs), t.cfg.MinSamples))
	}
	p := PearsonPValue(r, len(xs))

	tag := verdict.TagWeak
	switch {
	case math.Abs(r) > t.cfg.StrongR && p < t.cfg.StrongP:
		tag = verdict.TagStrong
	case math.Abs(r) > t.cfg.ModerateR:
		tag = verdict.TagModerate
	}
	return verdict.TestVerdict{
		Test:   t.Name(),
		Tag:    tag,
		Reason: fmt.Sprintf("r=%.3f p=%.2e over %d stars", r, p, len(xs)),
		Correlation: &verdict.CorrelationEvidence{
			Observable: t.cfg.Observable,
			N:          len(xs),
			PearsonR:   r,
			PValue:     p,
		},
	}
}

// PearsonPValue is the two-sided p-value of r under the null of no
// correlation, using Student's t with n-2 degrees of freedom
func PearsonPValue(r float64, n int) float64 {
	if n < 3 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	tStat := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(tStat))
}

// secondarySubset keeps stars whose observable is present, positive and below ceiling
func secondarySubset(ds *star.Dataset, observable string, ceiling float64) (xs, ks []float64) {
	return ds.Pairs(observable, func(x, _ float64) bool {
		return x > 0 && x < ceiling
	})
}
