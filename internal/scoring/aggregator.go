// Package scoring folds test verdicts into a single readiness score.
package scoring

import (
	"fmt"
	"math"

	"goharmonic/domain/verdict"
	"goharmonic/internal"
	"goharmonic/internal/errors"
)

// Aggregator applies the rubric
type Aggregator struct {
	logger *internal.Logger
}

// NewAggregator creates a scoring aggregator
func NewAggregator(logger *internal.Logger) *Aggregator {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Aggregator{logger: logger}
}

// Score builds the report for a dataset of datasetSize stars. A verdict with
// a test name or tag outside the rubric is an invariant violation and the
// only error Score returns.
func (a *Aggregator) Score(verdicts []verdict.TestVerdict, datasetSize int) (verdict.ScoreReport, error) {
	byTest := make(map[verdict.TestName]verdict.TestVerdict, len(verdicts))
	for _, v := range verdicts {
		r, ok := rubric[v.Test]
		if !ok {
			return verdict.ScoreReport{}, a.violation(fmt.Sprintf("unknown test %q", v.Test))
		}
		if _, scored := r.points[v.Tag]; !scored && !r.optional[v.Tag] {
			return verdict.ScoreReport{}, a.violation(fmt.Sprintf("tag %q is not valid for %s", v.Tag, v.Test))
		}
		if _, dup := byTest[v.Test]; dup {
			return verdict.ScoreReport{}, a.violation(fmt.Sprintf("duplicate verdict for %s", v.Test))
		}
		byTest[v.Test] = v
	}

	report := verdict.ScoreReport{MaxScore: MaxScore}
	total := 0.0
	for i, name := range order {
		if i == 1 {
			points := 0.0
			if datasetSize > 0 {
				points = SamplePresencePoints
			}
			total += points
			report.Contributions = append(report.Contributions, verdict.Contribution{Item: ItemSamplePresence, Points: points})
		}

		v, present := byTest[name]
		r := rubric[name]
		if !present || r.optional[v.Tag] {
			report.Omitted = append(report.Omitted, name)
			continue
		}
		points := r.points[v.Tag]
		total += points
		report.Contributions = append(report.Contributions, verdict.Contribution{Item: r.item, Tag: v.Tag, Points: points})
	}

	report.Score = math.Round(total*100) / 100
	if report.Score > MaxScore {
		return verdict.ScoreReport{}, a.violation(fmt.Sprintf("score %.2f exceeds maximum %.1f", report.Score, MaxScore))
	}
	report.Readiness = Readiness(report.Score)

	a.logger.Info("score %.1f/%.1f: %s", report.Score, report.MaxScore, report.Readiness)
	return report, nil
}

func (a *Aggregator) violation(msg string) error {
	err := errors.InvariantViolation(msg)
	a.logger.Error("[%s] %s", errors.CodeInvariantViolation, msg)
	return err
}
