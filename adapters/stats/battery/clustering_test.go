package battery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goharmonic/domain/verdict"
	"goharmonic/internal/config"
)

func TestHarmonicPredictions(t *testing.T) {
	peaks := HarmonicPredictions(456, 6, 12, 30, 80)
	require.Len(t, peaks, 7)
	assert.Equal(t, 6, peaks[0].N)
	assert.InDelta(t, 76.0, peaks[0].KPred, 1e-12)
	assert.InDelta(t, 38.0, peaks[6].KPred, 1e-12)

	// 456/5 = 91.2 and 456/16 = 28.5 fall outside the window
	assert.Empty(t, HarmonicPredictions(456, 5, 5, 30, 80))
	assert.Empty(t, HarmonicPredictions(456, 16, 16, 30, 80))
	assert.Len(t, HarmonicPredictions(456, 5, 16, 30, 80), 10)
}

func TestClusteringTest_UniformWindowIsWeak(t *testing.T) {
	ks := make([]float64, 0, 50)
	for i := 0; i < 50; i++ {
		ks = append(ks, 30.5+float64(i))
	}

	v := NewClusteringTest(config.DefaultRunConfig().Clustering).Run(context.Background(), dataset(ks, nil))
	assert.Equal(t, verdict.TagWeak, v.Tag)
	assert.InDelta(t, 0.0, v.Clustering.ChiSquared, 1e-6)
	assert.Equal(t, 50, v.Clustering.InWindow)
	assert.InDelta(t, 1.0, v.Clustering.Expected, 1e-12)
}

func TestClusteringTest_SingleBinIsClustered(t *testing.T) {
	v := NewClusteringTest(config.DefaultRunConfig().Clustering).Run(context.Background(), dataset(repeat(50.5, 200), nil))

	assert.Equal(t, verdict.TagClustered, v.Tag)
	assert.InDelta(t, 9800.0, v.Clustering.ChiSquared, 1e-3)
	assert.Equal(t, 200.0, v.Clustering.Histogram[20])
}

func TestClusteringTest_WindowIsClosed(t *testing.T) {
	v := NewClusteringTest(config.DefaultRunConfig().Clustering).Run(context.Background(), dataset([]float64{29.99, 30, 80, 80.01}, nil))

	require.Len(t, v.Clustering.Histogram, 50)
	assert.Equal(t, 2, v.Clustering.InWindow)
	assert.Equal(t, 1.0, v.Clustering.Histogram[0])
	assert.Equal(t, 1.0, v.Clustering.Histogram[49])
}

func TestClusteringTest_PeakCountsUseInclusiveTolerance(t *testing.T) {
	v := NewClusteringTest(config.DefaultRunConfig().Clustering).Run(context.Background(), dataset([]float64{55, 57, 59, 59.5}, nil))

	var peak verdict.HarmonicPeak
	for _, p := range v.Clustering.Peaks {
		if p.N == 8 {
			peak = p
		}
	}
	assert.InDelta(t, 57.0, peak.KPred, 1e-12)
	assert.Equal(t, 3, peak.Count)
}

func TestClusteringTest_EmptyWindow(t *testing.T) {
	v := NewClusteringTest(config.DefaultRunConfig().Clustering).Run(context.Background(), dataset([]float64{10, 100}, nil))
	assert.Equal(t, verdict.TagWeak, v.Tag)
	assert.Zero(t, v.Clustering.ChiSquared)
}
