package battery

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"goharmonic/domain/star"
	"goharmonic/domain/verdict"
	"goharmonic/internal/config"
)

// ClusteringTest looks for excess k near the predicted harmonics C/n and
// measures non-uniformity of k inside the window with a chi-squared statistic
type ClusteringTest struct {
	cfg config.ClusteringConfig
}

// NewClusteringTest creates a new clustering test
func NewClusteringTest(cfg config.ClusteringConfig) *ClusteringTest {
	return &ClusteringTest{cfg: cfg}
}

// Name returns the test name
func (t *ClusteringTest) Name() verdict.TestName {
	return verdict.TestClustering
}

// Description returns a human-readable description
func (t *ClusteringTest) Description() string {
	return fmt.Sprintf("Harmonic peaks for n in [%d, %d] and uniformity of k in [%g, %g]",
		t.cfg.NMin, t.cfg.NMax, t.cfg.WindowMin, t.cfg.WindowMax)
}

// HarmonicPredictions returns C/n for each n in [nMin, nMax] that falls strictly inside the window
func HarmonicPredictions(constant float64, nMin, nMax int, windowMin, windowMax float64) []verdict.HarmonicPeak {
	var peaks []verdict.HarmonicPeak
	for n := nMin; n <= nMax; n++ {
		kPred := constant / float64(n)
		if kPred > windowMin && kPred < windowMax {
			peaks = append(peaks, verdict.HarmonicPeak{N: n, KPred: kPred})
		}
	}
	return peaks
}

// Run counts stars within the tolerance of each harmonic and bins the window
func (t *ClusteringTest) Run(ctx context.Context, ds *star.Dataset) verdict.TestVerdict {
	ks := ds.KValues()
	peaks := HarmonicPredictions(ds.Constant, t.cfg.NMin, t.cfg.NMax, t.cfg.WindowMin, t.cfg.WindowMax)
	for i := range peaks {
		for _, k := range ks {
			if math.Abs(k-peaks[i].KPred) <= t.cfg.Tolerance {
				peaks[i].Count++
			}
		}
	}

	histogram := t.histogram(ks)
	inWindow := int(floats.Sum(histogram))
	expected := float64(inWindow) / float64(t.cfg.Bins)
	chi2 := 0.0
	for _, observed := range histogram {
		d := observed - expected
		chi2 += d * d / (expected + t.cfg.Epsilon)
	}

	tag := verdict.TagWeak
	if chi2 > t.cfg.ChiSquaredCutoff {
		tag = verdict.TagClustered
	}
	return verdict.TestVerdict{
		Test:   t.Name(),
		Tag:    tag,
		Reason: fmt.Sprintf("chi2=%.2f over %d bins (%d stars in window, cutoff %g)", chi2, t.cfg.Bins, inWindow, t.cfg.ChiSquaredCutoff),
		Clustering: &verdict.ClusteringEvidence{
			Peaks:      peaks,
			Bins:       t.cfg.Bins,
			InWindow:   inWindow,
			Expected:   expected,
			ChiSquared: chi2,
			Histogram:  histogram,
		},
	}
}

// histogram bins k in the closed window into equal bins; the right edge
// belongs to the last bin
func (t *ClusteringTest) histogram(ks []float64) []float64 {
	counts := make([]float64, t.cfg.Bins)
	window := make([]float64, 0, len(ks))
	for _, k := range ks {
		if k >= t.cfg.WindowMin && k <= t.cfg.WindowMax {
			window = append(window, k)
		}
	}
	if len(window) == 0 {
		return counts
	}
	sort.Float64s(window)

	dividers := floats.Span(make([]float64, t.cfg.Bins+1), t.cfg.WindowMin, t.cfg.WindowMax)
	dividers[t.cfg.Bins] = math.Nextafter(t.cfg.WindowMax, math.Inf(1))
	return stat.Histogram(counts, dividers, window, nil)
}
