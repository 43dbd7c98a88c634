package battery

import (
	"context"
	"fmt"

	"goharmonic/domain/star"
	"goharmonic/domain/verdict"
	"goharmonic/internal/config"
)

// ThresholdTest checks how much of the sample sits at or above the deep-mode boundary
type ThresholdTest struct {
	cfg config.ThresholdConfig
}

// NewThresholdTest creates a new threshold test
func NewThresholdTest(cfg config.ThresholdConfig) *ThresholdTest {
	return &ThresholdTest{cfg: cfg}
}

// Name returns the test name
func (t *ThresholdTest) Name() verdict.TestName {
	return verdict.TestThreshold
}

// Description returns a human-readable description
func (t *ThresholdTest) Description() string {
	return fmt.Sprintf("Share of stars with k >= %g", t.cfg.Boundary)
}

// Run counts k < boundary as below and k >= boundary as above
func (t *ThresholdTest) Run(ctx context.Context, ds *star.Dataset) verdict.TestVerdict {
	ev := &verdict.ThresholdEvidence{Boundary: t.cfg.Boundary}
	for _, k := range ds.KValues() {
		if k < t.cfg.Boundary {
			ev.Below++
		} else {
			ev.Above++
		}
	}
	if total := ev.Below + ev.Above; total > 0 {
		ev.PercentBelow = 100 * float64(ev.Below) / float64(total)
		ev.PercentAbove = 100 * float64(ev.Above) / float64(total)
	}

	return verdict.TestVerdict{
		Test:      t.Name(),
		Tag:       t.classify(ev.PercentAbove),
		Reason:    fmt.Sprintf("%.1f%% of %d stars at or above k=%g", ev.PercentAbove, ev.Below+ev.Above, t.cfg.Boundary),
		Threshold: ev,
	}
}

func (t *ThresholdTest) classify(percentAbove float64) verdict.Tag {
	switch {
	case percentAbove > t.cfg.StrongPercent:
		return verdict.TagStrong
	case percentAbove > t.cfg.GoodPercent:
		return verdict.TagGood
	default:
		return verdict.TagWeak
	}
}
