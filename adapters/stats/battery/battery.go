// Package battery runs the independent statistical tests over a filtered
// star dataset. Tests share no mutable state and run concurrently; a failure
// in one test becomes an ERROR verdict for that test only.
package battery

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"goharmonic/domain/star"
	"goharmonic/domain/verdict"
	"goharmonic/internal"
	"goharmonic/internal/config"
	"goharmonic/ports"
)

// Report is everything the battery produced for one dataset
type Report struct {
	Verdicts []verdict.TestVerdict `json:"verdicts"`
	Phase    *verdict.PhaseEvidence `json:"phase_analysis,omitempty"`
	Elapsed  time.Duration          `json:"elapsed"`
}

// Verdict returns the verdict of a named test
func (r Report) Verdict(name verdict.TestName) (verdict.TestVerdict, bool) {
	for _, v := range r.Verdicts {
		if v.Test == name {
			return v, true
		}
	}
	return verdict.TestVerdict{}, false
}

// Battery orchestrates the statistical tests
type Battery struct {
	tests  []ports.StatTest
	phase  *PhaseAnalysis
	logger *internal.Logger
}

// New builds the standard battery from the run configuration
func New(cfg *config.RunConfig, logger *internal.Logger) *Battery {
	b := NewBattery(logger,
		NewThresholdTest(cfg.Threshold),
		NewClusteringTest(cfg.Clustering),
		NewCorrelationTest(cfg.Correlation),
		NewFormulationTest(cfg.Formulation, cfg.Correlation),
	)
	b.phase = NewPhaseAnalysis(cfg.Phase)
	return b
}

// NewBattery creates a battery over arbitrary tests
func NewBattery(logger *internal.Logger, tests ...ports.StatTest) *Battery {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Battery{tests: tests, logger: logger}
}

// Names lists the tests in run order
func (b *Battery) Names() []verdict.TestName {
	names := make([]verdict.TestName, len(b.tests))
	for i, t := range b.tests {
		names[i] = t.Name()
	}
	return names
}

// Run executes every test concurrently and waits for all of them. Verdicts
// come back in battery order whatever the completion order.
func (b *Battery) Run(ctx context.Context, ds *star.Dataset) Report {
	start := time.Now()
	verdicts := make([]verdict.TestVerdict, len(b.tests))
	var phase *verdict.PhaseEvidence

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range b.tests {
		g.Go(func() error {
			verdicts[i] = b.runOne(gctx, t, ds)
			return nil
		})
	}
	if b.phase != nil {
		g.Go(func() error {
			phase = b.phase.Analyze(ds)
			return nil
		})
	}
	_ = g.Wait()

	for _, v := range verdicts {
		b.logger.Info("%s: %s %s", v.Test, v.Tag, v.Reason)
	}
	return Report{Verdicts: verdicts, Phase: phase, Elapsed: time.Since(start)}
}

// runOne converts a panic inside a test into an ERROR verdict
func (b *Battery) runOne(ctx context.Context, t ports.StatTest, ds *star.Dataset) (v verdict.TestVerdict) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("test %s panicked: %v", t.Name(), r)
			v = errorVerdict(t.Name(), fmt.Errorf("panic: %v", r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return errorVerdict(t.Name(), err)
	}
	return t.Run(ctx, ds)
}

func errorVerdict(name verdict.TestName, err error) verdict.TestVerdict {
	return verdict.TestVerdict{Test: name, Tag: verdict.TagError, Reason: err.Error()}
}

func skippedVerdict(name verdict.TestName, err error) verdict.TestVerdict {
	return verdict.TestVerdict{Test: name, Tag: verdict.TagSkipped, Reason: err.Error()}
}
