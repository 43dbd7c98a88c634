package app

import (
	"fmt"
	"strings"

	"goharmonic/domain/verdict"
	"goharmonic/internal/derive"
)

var rule = strings.Repeat("=", 70)

func (w *writer) banner(title string) {
	w.log(rule)
	w.log(title)
	w.log(rule)
}

func (w *writer) kStatistics(s derive.KStatistics) {
	w.log("k-value statistics:")
	w.log(fmt.Sprintf("  Valid stars: %d", s.N))
	if s.N == 0 {
		return
	}
	w.log(fmt.Sprintf("  Range: %.2f - %.2f", s.Min, s.Max))
	w.log(fmt.Sprintf("  Median: %.2f", s.Median))
	w.log(fmt.Sprintf("  Mean: %.2f +/- %.2f", s.Mean, s.Std))
}

func (w *writer) verdict(v verdict.TestVerdict) {
	w.log("")
	w.banner(strings.ToUpper(strings.ReplaceAll(string(v.Test), "_", " ")))

	switch {
	case v.Threshold != nil:
		t := v.Threshold
		w.log(fmt.Sprintf("  k < %g: %5d stars (%5.1f%%)", t.Boundary, t.Below, t.PercentBelow))
		w.log(fmt.Sprintf("  k >= %g: %5d stars (%5.1f%%)", t.Boundary, t.Above, t.PercentAbove))
	case v.Clustering != nil:
		c := v.Clustering
		for _, p := range c.Peaks {
			w.log(fmt.Sprintf("  n=%2d: k=%5.1f -> %5d stars", p.N, p.KPred, p.Count))
		}
		w.log(fmt.Sprintf("  Uniformity test (chi2): %.1f over %d stars in window", c.ChiSquared, c.InWindow))
	case v.Correlation != nil:
		c := v.Correlation
		w.log(fmt.Sprintf("  k vs %s: Pearson r = %.3f, p-value = %.2e", c.Observable, c.PearsonR, c.PValue))
		w.log(fmt.Sprintf("  Sample: %d stars", c.N))
	case v.Formulation != nil:
		f := v.Formulation
		if f.FitFailed != "" {
			w.log("  Fitting error: " + f.FitFailed)
			break
		}
		w.log(fmt.Sprintf("  Complex exp: R2 = %.4f", f.Complex.R2))
		w.log(fmt.Sprintf("  Real power:  R2 = %.4f", f.Real.R2))
		w.log(fmt.Sprintf("  %s formulation wins", f.Winner))
	}
	w.log(fmt.Sprintf("  Verdict: %s (%s)", v.Tag, v.Reason))
}

func (w *writer) phase(p *verdict.PhaseEvidence) {
	w.log("")
	w.banner("PHASE ANALYSIS")
	for _, ps := range p.Phases {
		name := ps.Phase
		if ps.Label != "" {
			name = ps.Label
		}
		w.log(fmt.Sprintf("  %s stars: %d, k median %.2f, k mean %.2f", name, ps.Count, ps.KMedian, ps.KMean))
	}
}

func (w *writer) score(r verdict.ScoreReport) {
	w.log("")
	w.banner("FINAL READINESS SCORE")
	for _, c := range r.Contributions {
		w.log(fmt.Sprintf("  %-16s %-9s +%.1f", c.Item, c.Tag, c.Points))
	}
	for _, name := range r.Omitted {
		w.log(fmt.Sprintf("  %-16s omitted", name))
	}
	w.log(fmt.Sprintf("TOTAL SCORE: %.1f/%.1f", r.Score, r.MaxScore))
	w.log(strings.ToUpper(string(r.Readiness)))
}
