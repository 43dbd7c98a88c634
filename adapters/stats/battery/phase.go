package battery

import (
	"sort"

	"github.com/montanaflynn/stats"

	"goharmonic/domain/star"
	"goharmonic/domain/verdict"
	"goharmonic/internal/config"
)

// PhaseAnalysis stratifies k by a categorical phase field. It produces
// evidence only and is never scored.
type PhaseAnalysis struct {
	cfg config.PhaseConfig
}

// NewPhaseAnalysis returns nil when no phase field is configured
func NewPhaseAnalysis(cfg config.PhaseConfig) *PhaseAnalysis {
	if cfg.Field == "" {
		return nil
	}
	return &PhaseAnalysis{cfg: cfg}
}

// Analyze groups stars by phase value. It returns nil when no star carries the field.
func (a *PhaseAnalysis) Analyze(ds *star.Dataset) *verdict.PhaseEvidence {
	if a == nil || ds.Len() == 0 {
		return nil
	}

	groups := make(map[string][]float64)
	for _, r := range ds.Records {
		v, ok := r.Observables[a.cfg.Field]
		if !ok || v.IsNull() {
			continue
		}
		groups[v.String()] = append(groups[v.String()], r.K)
	}
	if len(groups) == 0 {
		return nil
	}

	phases := make([]string, 0, len(groups))
	for p := range groups {
		phases = append(phases, p)
	}
	sort.Strings(phases)

	ev := &verdict.PhaseEvidence{Field: a.cfg.Field}
	for _, p := range phases {
		ks := groups[p]
		median, _ := stats.Median(ks)
		mean, _ := stats.Mean(ks)
		ev.Phases = append(ev.Phases, verdict.PhaseStats{
			Phase:   p,
			Label:   a.cfg.Labels[p],
			Count:   len(ks),
			KMedian: median,
			KMean:   mean,
		})
	}
	return ev
}
