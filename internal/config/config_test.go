package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goharmonic/domain/catalog"
	"goharmonic/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RESULTS_FILE", "")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "outputs/analysis_results.json", cfg.Results.ResultsFile)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "analysis_results", cfg.Database.Table)
}

func TestLoadRejectsBadTable(t *testing.T) {
	t.Setenv("RESULTS_TABLE", "results; drop table x")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestDefaultRunConfigIsValid(t *testing.T) {
	cfg := DefaultRunConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 456.0, cfg.Derive.Constant)
	assert.Equal(t, 35.0, cfg.Threshold.Boundary)
	assert.Equal(t, 0.95, cfg.Formulation.TieRatio)

	t1, ok := cfg.Source("table1")
	require.True(t, ok)
	assert.Equal(t, catalog.FieldSpec{Name: "numax", Start: 28, End: 34, Type: catalog.FieldFloat}, t1.Layout.Fields[1])
}

func TestLoadRunOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CATALOG_DIR", "/data/kepler")

	yaml := `
name: heartbeat
sources:
  - name: ogle
    format: votable
    path: ${CATALOG_DIR}/ogle.vot
    id_field: ID
  - name: periods
    format: tsv
    path: periods.tsv
    id_field: ID
derive:
  numerator: Freq
  denominator: Spacing
  k_max: 120
clustering:
  chi_squared_cutoff: 250
formulation:
  real_start: [10, 2, 0.25]
phase:
  labels:
    "1": RGB
`
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadRun(path)
	require.NoError(t, err)

	assert.Equal(t, "heartbeat", cfg.Name)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "/data/kepler/ogle.vot", cfg.Sources[0].Path)
	assert.Equal(t, "ID", cfg.Sources[0].Layout.IDField)
	assert.Equal(t, "Freq", cfg.Derive.Numerator)
	assert.Equal(t, 456.0, cfg.Derive.Constant, "unset keys keep defaults")
	assert.Equal(t, 120.0, cfg.Derive.KMax)
	assert.Equal(t, 250.0, cfg.Clustering.ChiSquaredCutoff)
	assert.Equal(t, 50, cfg.Clustering.Bins)
	assert.Equal(t, [3]float64{10, 2, 0.25}, cfg.Formulation.RealStart)
	assert.Equal(t, [3]float64{40, 1, 0.1}, cfg.Formulation.ComplexStart)
	assert.Equal(t, map[string]string{"1": "RGB"}, cfg.Phase.Labels)
	assert.Equal(t, "Phase", cfg.Phase.Field)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := DefaultRunConfig()
	cfg.Derive.KMin = 300
	cfg.Clustering.Bins = 0
	cfg.Formulation.TieRatio = 1.5
	cfg.Sources[1].Name = "table1"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
	assert.Contains(t, err.Error(), "k_min must be below k_max")
	assert.Contains(t, err.Error(), "bins must be positive")
	assert.Contains(t, err.Error(), "tie_ratio")
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestLoadRunMissingFile(t *testing.T) {
	_, err := LoadRun(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestShippedRunConfigMatchesDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "data")

	cfg, err := LoadRun(filepath.Join("..", "..", "configs", "yu2018.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRunConfig(), cfg)
}
