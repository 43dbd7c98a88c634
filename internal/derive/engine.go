// Package derive computes the k-index for merged stars and filters out
// stars where it is undefined.
package derive

import (
	"math"

	"github.com/montanaflynn/stats"

	"goharmonic/domain/catalog"
	"goharmonic/domain/star"
	"goharmonic/internal"
	"goharmonic/internal/config"
	"goharmonic/internal/errors"
)

// Rejection reasons
const (
	ReasonMissingIdentifier = "missing_identifier"
	ReasonMissingObservable = "missing_observable"
	ReasonNonPositive       = "non_positive"
	ReasonNonFinite         = "non_finite"
	ReasonOutOfRange        = "out_of_range"
)

// Engine derives k = Constant / (Numerator / Denominator)
type Engine struct {
	cfg    config.DeriveConfig
	logger *internal.Logger
}

// NewEngine creates a derivation engine
func NewEngine(cfg config.DeriveConfig, logger *internal.Logger) *Engine {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// K computes the k-index for one pair of observables. The reason is empty when k is admissible.
func (e *Engine) K(a, b float64) (float64, string) {
	if a <= 0 || b <= 0 {
		return 0, ReasonNonPositive
	}
	ratio := a / b
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio == 0 {
		return 0, ReasonNonFinite
	}
	k := e.cfg.Constant / ratio
	if math.IsNaN(k) || math.IsInf(k, 0) {
		return 0, ReasonNonFinite
	}
	if k <= e.cfg.KMin || k >= e.cfg.KMax {
		return k, ReasonOutOfRange
	}
	return k, ""
}

// Derive builds the filtered dataset from a merged record set. An empty
// result is returned with an EmptyDataset error so callers can record it and
// carry on with degraded verdicts.
func (e *Engine) Derive(set *catalog.RecordSet) (*star.Dataset, error) {
	ds := &star.Dataset{
		Constant:    e.cfg.Constant,
		Numerator:   e.cfg.Numerator,
		Denominator: e.cfg.Denominator,
		Rejections:  make(map[string]int),
	}
	if set == nil {
		return ds, errors.EmptyDataset("derivation")
	}

	for _, rec := range set.Records {
		id, ok := rec[set.IDField].Int64()
		if !ok {
			ds.Reject(ReasonMissingIdentifier)
			continue
		}
		a, okA := rec[e.cfg.Numerator].Float64()
		b, okB := rec[e.cfg.Denominator].Float64()
		if !okA || !okB {
			ds.Reject(ReasonMissingObservable)
			continue
		}
		k, reason := e.K(a, b)
		if reason != "" {
			ds.Reject(reason)
			continue
		}

		observables := make(map[string]catalog.Value, len(rec))
		for name, v := range rec {
			if name == set.IDField {
				continue
			}
			observables[name] = v
		}
		ds.Records = append(ds.Records, star.Record{ID: id, Observables: observables, K: k})
	}

	e.logger.Info("derived k for %d stars, rejected %d %v", ds.Len(), ds.Rejected, ds.Rejections)
	if ds.Len() == 0 {
		return ds, errors.EmptyDataset("derivation")
	}
	return ds, nil
}

// KStatistics summarises the k distribution
type KStatistics struct {
	N      int     `json:"n"`
	Min    float64 `json:"k_min"`
	Max    float64 `json:"k_max"`
	Median float64 `json:"k_median"`
	Mean   float64 `json:"k_mean"`
	Std    float64 `json:"k_std"`
}

// Summarize computes k statistics; the standard deviation is the sample one
// and is zero below two stars
func Summarize(ds *star.Dataset) KStatistics {
	ks := ds.KValues()
	out := KStatistics{N: len(ks)}
	if len(ks) == 0 {
		return out
	}
	out.Min, _ = stats.Min(ks)
	out.Max, _ = stats.Max(ks)
	out.Median, _ = stats.Median(ks)
	out.Mean, _ = stats.Mean(ks)
	if len(ks) > 1 {
		out.Std, _ = stats.StandardDeviationSample(ks)
	}
	return out
}
