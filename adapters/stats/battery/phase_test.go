package battery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goharmonic/domain/catalog"
	"goharmonic/internal/config"
)

func TestPhaseAnalysis(t *testing.T) {
	ds := dataset([]float64{10, 20, 30, 40, 50}, nil)
	phases := []catalog.Value{catalog.CodeValue("1"), catalog.CodeValue("1"), catalog.CodeValue("2"), catalog.Null(), catalog.CodeValue("2")}
	for i := range ds.Records {
		ds.Records[i].Observables["Phase"] = phases[i]
	}

	ev := NewPhaseAnalysis(config.DefaultRunConfig().Phase).Analyze(ds)
	require.NotNil(t, ev)
	assert.Equal(t, "Phase", ev.Field)
	require.Len(t, ev.Phases, 2)

	assert.Equal(t, "RGB", ev.Phases[0].Label)
	assert.Equal(t, 2, ev.Phases[0].Count)
	assert.InDelta(t, 15.0, ev.Phases[0].KMedian, 1e-12)

	assert.Equal(t, "HeB", ev.Phases[1].Label)
	assert.InDelta(t, 40.0, ev.Phases[1].KMean, 1e-12)
}

func TestPhaseAnalysis_Disabled(t *testing.T) {
	assert.Nil(t, NewPhaseAnalysis(config.PhaseConfig{}))

	var a *PhaseAnalysis
	assert.Nil(t, a.Analyze(dataset([]float64{1}, nil)))
}

func TestPhaseAnalysis_UnlabelledPhase(t *testing.T) {
	ds := dataset([]float64{10}, nil)
	ds.Records[0].Observables["Phase"] = catalog.CodeValue("3")

	ev := NewPhaseAnalysis(config.DefaultRunConfig().Phase).Analyze(ds)
	require.Len(t, ev.Phases, 1)
	assert.Empty(t, ev.Phases[0].Label)
}
