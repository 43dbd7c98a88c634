package battery

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"goharmonic/domain/star"
	"goharmonic/domain/verdict"
	"goharmonic/internal/config"
	"goharmonic/internal/errors"
)

// Model names
const (
	ModelComplex = "exponential"
	ModelReal    = "power_law"
)

// penalty replaces non-finite residual sums so the search can keep comparing candidates
const penalty = 1e300

// Exponent search grid: zero plus gridSide log-spaced magnitudes of each sign,
// spanning gridDecades below the model's exponent limit
const (
	gridSide    = 40
	gridDecades = 4
)

// Model is a separable curve k = a + b*Basis(x, c). For a fixed exponent c
// it is linear in a and b.
type Model struct {
	Name  string
	Basis func(x, c float64) float64
	// Limit returns the largest exponent magnitude searched for xs
	Limit func(xs []float64) float64
	// Start is [a, b, c]; only c is used, as an extra search candidate
	Start [3]float64
}

// Eval returns the model value at x for p = [a, b, c]
func (m Model) Eval(x float64, p []float64) float64 {
	return p[0] + p[1]*m.Basis(x, p[2])
}

// ComplexModel is k = a + b*exp(c*x)
func ComplexModel(start [3]float64) Model {
	return Model{
		Name:  ModelComplex,
		Basis: func(x, c float64) float64 { return math.Exp(c * x) },
		Limit: func(xs []float64) float64 {
			span := floats.Max(xs) - floats.Min(xs)
			if span <= 0 {
				span = math.Max(math.Abs(floats.Max(xs)), 1)
			}
			// exp(c*x) varies by at most e^50 across the data
			return 50 / span
		},
		Start: start,
	}
}

// RealModel is k = a + b*x^c
func RealModel(start [3]float64) Model {
	return Model{
		Name:  ModelReal,
		Basis: func(x, c float64) float64 { return math.Pow(x, c) },
		Limit: func([]float64) float64 { return 8 },
		Start: start,
	}
}

// FormulationTest compares an exponential and a power-law fit of k against
// the secondary observable. The power law wins ties within TieRatio.
type FormulationTest struct {
	cfg    config.FormulationConfig
	subset config.CorrelationConfig
}

// NewFormulationTest creates a new formulation test. The candidate subset is
// the same one the correlation test uses.
func NewFormulationTest(cfg config.FormulationConfig, subset config.CorrelationConfig) *FormulationTest {
	return &FormulationTest{cfg: cfg, subset: subset}
}

// Name returns the test name
func (t *FormulationTest) Name() verdict.TestName {
	return verdict.TestFormulation
}

// Description returns a human-readable description
func (t *FormulationTest) Description() string {
	return "Exponential vs power-law least squares fit of k against " + t.subset.Observable
}

// Run fits both models and picks the winner
func (t *FormulationTest) Run(ctx context.Context, ds *star.Dataset) verdict.TestVerdict {
	xs, ks := secondarySubset(ds, t.subset.Observable, t.subset.Ceiling)
	if len(xs) <= t.cfg.MinSamples {
		return skippedVerdict(t.Name(), errors.InsufficientSample(string(t.Name()), len(xs), t.cfg.MinSamples+1))
	}

	fx, fk := make([]float64, 0, len(xs)), make([]float64, 0, len(ks))
	for i := range xs {
		if xs[i] < t.cfg.ObservableCeiling && ks[i] < t.cfg.KCeiling {
			fx = append(fx, xs[i])
			fk = append(fk, ks[i])
		}
	}
	if len(fx) < 3 {
		return skippedVerdict(t.Name(), errors.InsufficientSample(string(t.Name())+" after guard", len(fx), 3))
	}

	ev := &verdict.FormulationEvidence{N: len(fx), TieRatio: t.cfg.TieRatio}
	var fitErr error
	ev.Complex, fitErr = Fit(ComplexModel(t.cfg.ComplexStart), fx, fk, t.cfg.MaxEvaluations)
	if fitErr == nil {
		ev.Real, fitErr = Fit(RealModel(t.cfg.RealStart), fx, fk, t.cfg.MaxEvaluations)
	}
	if fitErr != nil {
		ev.FitFailed = fitErr.Error()
		v := errorVerdict(t.Name(), fitErr)
		v.Formulation = ev
		return v
	}

	tag := Decide(ev.Complex.R2, ev.Real.R2, t.cfg.TieRatio)
	if tag == verdict.TagReal {
		ev.Winner = ModelReal
	} else {
		ev.Winner = ModelComplex
	}
	return verdict.TestVerdict{
		Test:        t.Name(),
		Tag:         tag,
		Reason:      fmt.Sprintf("R2 exponential=%.4f power=%.4f (tie ratio %g)", ev.Complex.R2, ev.Real.R2, t.cfg.TieRatio),
		Formulation: ev,
	}
}

// Decide picks REAL when the power-law R² reaches tieRatio times the exponential R²
func Decide(r2Complex, r2Real, tieRatio float64) verdict.Tag {
	if r2Real >= tieRatio*r2Complex {
		return verdict.TagReal
	}
	return verdict.TagComplex
}

// Fit is a separable least-squares fit. For each candidate exponent, a and b
// come from a linear regression of ys on Basis(xs, c), so only c is searched:
// a log-spaced grid first, then Nelder-Mead from the best grid point. The
// configured start exponent is one more candidate. Every candidate counts as
// a function evaluation against maxEvaluations; running out before the search
// converges is a FitDivergence.
func Fit(m Model, xs, ys []float64, maxEvaluations int) (verdict.ModelFit, error) {
	fit := verdict.ModelFit{Model: m.Name}
	if len(xs) < 3 || len(xs) != len(ys) {
		return fit, errors.FitDivergence(m.Name, fmt.Errorf("need at least 3 paired points, have %d", len(xs)))
	}
	p := newProfile(m, xs, ys)

	limit := m.Limit(xs)
	best, bestRSS := m.Start[2], math.Inf(1)
	for _, c := range append([]float64{m.Start[2]}, exponentGrid(limit)...) {
		if p.evals >= maxEvaluations {
			fit.Evaluations = p.evals
			return fit, errors.FitDivergence(m.Name, fmt.Errorf("evaluation budget of %d spent scanning exponents", maxEvaluations))
		}
		if rss := p.rss(c); rss < bestRSS {
			best, bestRSS = c, rss
		}
	}
	if bestRSS >= penalty {
		fit.Evaluations = p.evals
		return fit, errors.FitDivergence(m.Name, fmt.Errorf("no finite residuals"))
	}

	remaining := maxEvaluations - p.evals
	if remaining <= 0 {
		fit.Evaluations = p.evals
		return fit, errors.FitDivergence(m.Name, fmt.Errorf("evaluation budget of %d spent scanning exponents", maxEvaluations))
	}
	problem := optimize.Problem{
		Func: func(c []float64) float64 { return p.rss(c[0]) },
	}
	settings := &optimize.Settings{
		FuncEvaluations: remaining,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-10,
			Iterations: 20,
		},
	}
	method := &optimize.NelderMead{SimplexSize: gridStep(best, limit)}

	result, err := optimize.Minimize(problem, []float64{best}, settings, method)
	fit.Evaluations = p.evals
	if err != nil {
		return fit, errors.FitDivergence(m.Name, err)
	}
	if !converged(result.Status) {
		return fit, errors.FitDivergence(m.Name, fmt.Errorf("optimizer stopped with %s after %d evaluations", result.Status, fit.Evaluations))
	}

	c := best
	if result.Location.F < bestRSS {
		c = result.Location.X[0]
	}
	a, b, _ := p.solve(c)
	fit.Params = []float64{a, b, c}
	fit.Converged = true
	fit.R2 = RSquared(m, fit.Params, xs, ys)
	return fit, nil
}

// exponentGrid returns 0 and ±limit*10^(-gridDecades..0) in log steps
func exponentGrid(limit float64) []float64 {
	grid := []float64{0}
	for i := 0; i < gridSide; i++ {
		mag := limit * math.Pow(10, -gridDecades*float64(gridSide-1-i)/float64(gridSide-1))
		grid = append(grid, mag, -mag)
	}
	return grid
}

// gridStep is the spacing of the exponent grid around c
func gridStep(c, limit float64) float64 {
	ratio := math.Pow(10, gridDecades/float64(gridSide-1))
	return math.Max(math.Abs(c), limit*math.Pow(10, -gridDecades)) * (ratio - 1)
}

// profile solves the linear part of a model for fixed exponents
type profile struct {
	m      Model
	xs, ys []float64
	basis  []float64
	evals  int
}

func newProfile(m Model, xs, ys []float64) *profile {
	return &profile{m: m, xs: xs, ys: ys, basis: make([]float64, len(xs))}
}

// rss is the residual sum of squares of the best (a, b) for exponent c
func (p *profile) rss(c float64) float64 {
	p.evals++
	_, _, rss := p.solve(c)
	return rss
}

func (p *profile) solve(c float64) (a, b, rss float64) {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, 0, penalty
	}
	for i, x := range p.xs {
		v := p.m.Basis(x, c)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, penalty
		}
		p.basis[i] = v
	}

	// A constant regressor leaves only the mean
	if v := stat.Variance(p.basis, nil); !(v > 0) || math.IsInf(v, 0) {
		a = stat.Mean(p.ys, nil)
	} else {
		a, b = stat.LinearRegression(p.basis, p.ys, nil, false)
	}
	for i, y := range p.ys {
		d := y - (a + b*p.basis[i])
		rss += d * d
	}
	if math.IsNaN(rss) || math.IsInf(rss, 0) {
		return 0, 0, penalty
	}
	return a, b, rss
}

// RSquared is 1 - SS_res/SS_tot for a model against the data
func RSquared(m Model, p, xs, ys []float64) float64 {
	mean := stat.Mean(ys, nil)
	ssTot := 0.0
	for _, y := range ys {
		ssTot += (y - mean) * (y - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - residualSum(m, p, xs, ys)/ssTot
}

func residualSum(m Model, p, xs, ys []float64) float64 {
	sum := 0.0
	for i, x := range xs {
		d := ys[i] - m.Eval(x, p)
		sum += d * d
	}
	return sum
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}
	return false
}
