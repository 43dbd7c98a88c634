package battery

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goharmonic/domain/verdict"
	"goharmonic/internal/config"
	"goharmonic/internal/errors"
)

func powerLawSample(n int) (ks, radius []float64) {
	for i := 0; i < n; i++ {
		r := 0.2 + 0.2*float64(i)
		radius = append(radius, r)
		ks = append(ks, 30+math.Sqrt(r))
	}
	return ks, radius
}

// curveSample evaluates f on n radii from start in steps of step, adding
// amp*sin(7i) as deterministic scatter
func curveSample(n int, start, step, amp float64, f func(r float64) float64) (ks, radius []float64) {
	for i := 0; i < n; i++ {
		r := start + step*float64(i)
		radius = append(radius, r)
		ks = append(ks, f(r)+amp*math.Sin(7*float64(i)))
	}
	return ks, radius
}

func TestDecide_TieGoesToPowerLaw(t *testing.T) {
	assert.Equal(t, verdict.TagReal, Decide(0.5, 0.475, 0.95), "exactly 95% is a tie")
	assert.Equal(t, verdict.TagComplex, Decide(0.5, 0.4749, 0.95))
	assert.Equal(t, verdict.TagReal, Decide(0.5, 0.9, 0.95))
}

func TestFormulationTest_TooFewSamplesIsSkipped(t *testing.T) {
	cfg := config.DefaultRunConfig()
	ks, radius := powerLawSample(50)

	v := NewFormulationTest(cfg.Formulation, cfg.Correlation).Run(context.Background(), dataset(ks, radius))
	assert.Equal(t, verdict.TagSkipped, v.Tag)
}

func TestFormulationTest_GuardLeavesTooFew(t *testing.T) {
	cfg := config.DefaultRunConfig()
	ks, radius := powerLawSample(120)
	for i := range ks {
		ks[i] = 150
	}

	v := NewFormulationTest(cfg.Formulation, cfg.Correlation).Run(context.Background(), dataset(ks, radius))
	assert.Equal(t, verdict.TagSkipped, v.Tag)
	assert.Contains(t, v.Reason, "after guard")
}

func TestFormulationTest_PowerLawDataIsReal(t *testing.T) {
	cfg := config.DefaultRunConfig()
	ks, radius := powerLawSample(120)

	v := NewFormulationTest(cfg.Formulation, cfg.Correlation).Run(context.Background(), dataset(ks, radius))
	require.Equal(t, verdict.TagReal, v.Tag, v.Reason)

	ev := v.Formulation
	assert.Equal(t, 120, ev.N)
	assert.Equal(t, ModelReal, ev.Winner)
	assert.True(t, ev.Real.Converged)
	assert.True(t, ev.Complex.Converged)
	assert.Greater(t, ev.Real.R2, 0.999)
	assert.InDelta(t, 0.5, ev.Real.Params[2], 1e-3)
	assert.GreaterOrEqual(t, ev.Real.R2, 0.95*ev.Complex.R2)
}

func TestFormulationTest_SharpDecayIsComplex(t *testing.T) {
	cfg := config.DefaultRunConfig()
	ks, radius := curveSample(400, 0.1, 0.05, 0.05, func(r float64) float64 { return 30 + 50*math.Exp(-r) })

	v := NewFormulationTest(cfg.Formulation, cfg.Correlation).Run(context.Background(), dataset(ks, radius))
	require.Equal(t, verdict.TagComplex, v.Tag, v.Reason)

	ev := v.Formulation
	assert.Equal(t, 400, ev.N)
	assert.Equal(t, ModelComplex, ev.Winner)
	assert.True(t, ev.Complex.Converged)
	assert.Greater(t, ev.Complex.R2, 0.99)
	assert.InDelta(t, -1.0, ev.Complex.Params[2], 0.01)
	assert.InDelta(t, 30.0, ev.Complex.Params[0], 0.1)
	assert.InDelta(t, 50.0, ev.Complex.Params[1], 0.5)
	assert.Less(t, ev.Real.R2, 0.95*ev.Complex.R2)
	assert.LessOrEqual(t, ev.Complex.Evaluations, cfg.Formulation.MaxEvaluations)
}

func TestFormulationTest_SaturatingDecayFitsWithinBudget(t *testing.T) {
	cfg := config.DefaultRunConfig()
	ks, radius := curveSample(500, 1, 0.04, 0.05, func(r float64) float64 { return 60 - 40*math.Exp(-0.3*r) })

	v := NewFormulationTest(cfg.Formulation, cfg.Correlation).Run(context.Background(), dataset(ks, radius))
	require.NotEqual(t, verdict.TagError, v.Tag, v.Reason)

	ev := v.Formulation
	assert.True(t, ev.Complex.Converged)
	assert.Greater(t, ev.Complex.R2, 0.99)
	assert.InDelta(t, -0.3, ev.Complex.Params[2], 0.01)
	assert.Equal(t, Decide(ev.Complex.R2, ev.Real.R2, cfg.Formulation.TieRatio), v.Tag)
	assert.Equal(t, verdict.TagReal, v.Tag, "power law is within 95%% here: %s", v.Reason)
}

func TestFormulationTest_GrowingExponential(t *testing.T) {
	cfg := config.DefaultRunConfig()
	ks, radius := curveSample(400, 1, 0.025, 0, func(r float64) float64 { return 10 + math.Exp(0.4*r) })

	v := NewFormulationTest(cfg.Formulation, cfg.Correlation).Run(context.Background(), dataset(ks, radius))
	require.NotEqual(t, verdict.TagError, v.Tag, v.Reason)

	ev := v.Formulation
	assert.True(t, ev.Complex.Converged)
	assert.Greater(t, ev.Complex.R2, 0.99)
	assert.InDelta(t, 0.4, ev.Complex.Params[2], 1e-3)
	assert.True(t, ev.Real.Converged)
	assert.Equal(t, Decide(ev.Complex.R2, ev.Real.R2, cfg.Formulation.TieRatio), v.Tag)
}

func TestFit_ConcaveDataKeepsExponentialTerm(t *testing.T) {
	var radius, ks []float64
	for i := 0; i < 300; i++ {
		r := 4 + 16*float64(i)/299
		radius = append(radius, r)
		ks = append(ks, 20+3*math.Pow(r, 0.6)+3*math.Sin(13*float64(i)))
	}

	complexFit, err := Fit(ComplexModel([3]float64{40, 1, 0.1}), radius, ks, 5000)
	require.NoError(t, err)
	realFit, err := Fit(RealModel([3]float64{30, 1, 0.5}), radius, ks, 5000)
	require.NoError(t, err)

	assert.Greater(t, complexFit.R2, 0.65)
	assert.Greater(t, complexFit.Params[2], -1.0, "exponent must not run off until the term vanishes")
	assert.InDelta(t, realFit.R2, complexFit.R2, 0.02)
	assert.Greater(t, complexFit.Evaluations, 81)
	assert.LessOrEqual(t, complexFit.Evaluations, 5000)
}

func TestFormulationTest_DivergenceIsError(t *testing.T) {
	cfg := config.DefaultRunConfig()
	cfg.Formulation.MaxEvaluations = 5
	ks, radius := powerLawSample(120)

	v := NewFormulationTest(cfg.Formulation, cfg.Correlation).Run(context.Background(), dataset(ks, radius))
	assert.Equal(t, verdict.TagError, v.Tag)
	require.NotNil(t, v.Formulation)
	assert.NotEmpty(t, v.Formulation.FitFailed)
	assert.Empty(t, v.Formulation.Winner)
}

func TestFit_ReportsFitDivergence(t *testing.T) {
	ks, radius := powerLawSample(20)
	fit, err := Fit(ComplexModel([3]float64{40, 1, 0.1}), radius, ks, 5)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeFitDivergence))
	assert.False(t, fit.Converged)
	assert.Equal(t, 5, fit.Evaluations)

	_, err = Fit(RealModel([3]float64{30, 1, 0.5}), radius[:2], ks[:2], 5000)
	assert.True(t, errors.HasCode(err, errors.CodeFitDivergence))
}

func TestRSquared(t *testing.T) {
	m := RealModel([3]float64{})
	xs := []float64{1, 4, 9}
	ys := []float64{31, 32, 33}

	assert.InDelta(t, 1.0, RSquared(m, []float64{30, 1, 0.5}, xs, ys), 1e-12)
	assert.InDelta(t, 0.0, RSquared(m, []float64{32, 0, 1}, xs, ys), 1e-12, "predicting the mean")
	assert.Equal(t, 0.0, RSquared(m, []float64{30, 1, 0.5}, xs, []float64{5, 5, 5}))
}
