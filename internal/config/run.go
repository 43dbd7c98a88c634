package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"goharmonic/domain/catalog"
	"goharmonic/internal/errors"
)

// Source formats understood by the catalog adapters
const (
	FormatFixed     = "fixed"
	FormatCSV       = "csv"
	FormatTSV       = "tsv"
	FormatDelimited = "delimited"
	FormatVOTable   = "votable"
	FormatXLSX      = "xlsx"
)

// RunConfig parameterises one pipeline run. Nothing about the hypothesis is
// hard-coded downstream; every constant lives here.
type RunConfig struct {
	Name        string            `mapstructure:"name"`
	Sources     []SourceConfig    `mapstructure:"sources"`
	Derive      DeriveConfig      `mapstructure:"derive"`
	Threshold   ThresholdConfig   `mapstructure:"threshold"`
	Clustering  ClusteringConfig  `mapstructure:"clustering"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Formulation FormulationConfig `mapstructure:"formulation"`
	Phase       PhaseConfig       `mapstructure:"phase"`
}

// SourceConfig locates and describes one catalog
type SourceConfig struct {
	Name      string         `mapstructure:"name"`
	Format    string         `mapstructure:"format"`
	Path      string         `mapstructure:"path"`
	IDField   string         `mapstructure:"id_field"`
	Delimiter string         `mapstructure:"delimiter"`
	Sheet     string         `mapstructure:"sheet"`
	Layout    catalog.Layout `mapstructure:"layout"`
}

// DeriveConfig defines k = Constant / (Numerator / Denominator) and its admissible range
type DeriveConfig struct {
	Numerator   string  `mapstructure:"numerator"`
	Denominator string  `mapstructure:"denominator"`
	Constant    float64 `mapstructure:"constant"`
	KMin        float64 `mapstructure:"k_min"`
	KMax        float64 `mapstructure:"k_max"`
}

// ThresholdConfig sets the deep-mode boundary and verdict cutoffs (percent above)
type ThresholdConfig struct {
	Boundary      float64 `mapstructure:"boundary"`
	StrongPercent float64 `mapstructure:"strong_percent"`
	GoodPercent   float64 `mapstructure:"good_percent"`
}

// ClusteringConfig sets the harmonic scan and the uniformity histogram.
// ChiSquaredCutoff is a heuristic; it is not tied to degrees of freedom.
type ClusteringConfig struct {
	NMin             int     `mapstructure:"n_min"`
	NMax             int     `mapstructure:"n_max"`
	WindowMin        float64 `mapstructure:"window_min"`
	WindowMax        float64 `mapstructure:"window_max"`
	Tolerance        float64 `mapstructure:"tolerance"`
	Bins             int     `mapstructure:"bins"`
	ChiSquaredCutoff float64 `mapstructure:"chi_squared_cutoff"`
	Epsilon          float64 `mapstructure:"epsilon"`
}

// CorrelationConfig restricts the k/secondary-observable correlation
type CorrelationConfig struct {
	Observable string  `mapstructure:"observable"`
	Ceiling    float64 `mapstructure:"ceiling"`
	// The test runs only with more than MinSamples stars in the subset
	MinSamples int     `mapstructure:"min_samples"`
	StrongR    float64 `mapstructure:"strong_r"`
	StrongP    float64 `mapstructure:"strong_p"`
	ModerateR  float64 `mapstructure:"moderate_r"`
}

// FormulationConfig drives the exponential vs power-law comparison.
// The power law wins when its R² reaches TieRatio times the exponential R².
type FormulationConfig struct {
	MinSamples        int        `mapstructure:"min_samples"`
	ObservableCeiling float64    `mapstructure:"observable_ceiling"`
	KCeiling          float64    `mapstructure:"k_ceiling"`
	MaxEvaluations    int        `mapstructure:"max_evaluations"`
	TieRatio          float64    `mapstructure:"tie_ratio"`
	// Starting points [a, b, c]. Only c seeds the exponent search; a and b
	// are solved exactly for every exponent tried.
	ComplexStart      [3]float64 `mapstructure:"complex_start"`
	RealStart         [3]float64 `mapstructure:"real_start"`
}

// PhaseConfig names the categorical phase field. Empty Field disables the sub-analysis.
type PhaseConfig struct {
	Field  string            `mapstructure:"field"`
	Labels map[string]string `mapstructure:"labels"`
}

// DefaultRunConfig returns the Yu et al. (2018) red giant setup: two fixed-width
// tables joined on KIC, k = 456 / (numax / Delnu).
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Name: "yu2018_red_giants",
		Sources: []SourceConfig{
			{
				Name:    "table1",
				Format:  FormatFixed,
				Path:    "data/table1.dat",
				IDField: "KIC",
				Layout: catalog.Layout{
					IDField: "KIC",
					Fields: []catalog.FieldSpec{
						{Name: "KIC", Start: 1, End: 9, Type: catalog.FieldInt},
						{Name: "numax", Start: 28, End: 34, Type: catalog.FieldFloat},
						{Name: "Delnu", Start: 41, End: 47, Type: catalog.FieldFloat},
					},
				},
			},
			{
				Name:    "table2",
				Format:  FormatFixed,
				Path:    "data/table2.dat",
				IDField: "KIC",
				Layout: catalog.Layout{
					IDField: "KIC",
					Fields: []catalog.FieldSpec{
						{Name: "KIC", Start: 0, End: 8, Type: catalog.FieldInt},
						{Name: "Mass", Start: 41, End: 45, Type: catalog.FieldFloat},
						{Name: "Radius", Start: 51, End: 56, Type: catalog.FieldFloat},
						{Name: "Phase", Start: 105, End: 106, Type: catalog.FieldCode},
					},
				},
			},
		},
		Derive: DeriveConfig{
			Numerator:   "numax",
			Denominator: "Delnu",
			Constant:    456,
			KMin:        0,
			KMax:        200,
		},
		Threshold: ThresholdConfig{
			Boundary:      35,
			StrongPercent: 90,
			GoodPercent:   70,
		},
		Clustering: ClusteringConfig{
			NMin:             6,
			NMax:             12,
			WindowMin:        30,
			WindowMax:        80,
			Tolerance:        2,
			Bins:             50,
			ChiSquaredCutoff: 100,
			Epsilon:          1e-10,
		},
		Correlation: CorrelationConfig{
			Observable: "Radius",
			Ceiling:    30,
			MinSamples: 100,
			StrongR:    0.5,
			StrongP:    0.001,
			ModerateR:  0.3,
		},
		Formulation: FormulationConfig{
			MinSamples:        100,
			ObservableCeiling: 25,
			KCeiling:          100,
			MaxEvaluations:    5000,
			TieRatio:          0.95,
			ComplexStart:      [3]float64{40, 1, 0.1},
			RealStart:         [3]float64{30, 1, 0.5},
		},
		Phase: PhaseConfig{
			Field:  "Phase",
			Labels: map[string]string{"1": "RGB", "2": "HeB"},
		},
	}
}

// LoadRun reads a YAML run configuration on top of DefaultRunConfig and validates it
func LoadRun(path string) (*RunConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), fmt.Sprintf("failed to read run config %s", path))
	}
	return LoadRunFromViper(v)
}

// LoadRunFromViper decodes an already populated viper instance
func LoadRunFromViper(v *viper.Viper) (*RunConfig, error) {
	cfg := DefaultRunConfig()

	// Lists and maps from the file replace the defaults instead of merging into them
	if v.IsSet("sources") {
		cfg.Sources = nil
	}
	if v.IsSet("phase.labels") {
		cfg.Phase.Labels = nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(errors.ConfigInvalid(err.Error()), "failed to decode run config")
	}
	for i := range cfg.Sources {
		cfg.Sources[i].Path = expandEnvVar(cfg.Sources[i].Path)
		if cfg.Sources[i].Layout.IDField == "" {
			cfg.Sources[i].Layout.IDField = cfg.Sources[i].IDField
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make a test meaningless
func (c *RunConfig) Validate() error {
	var problems []string

	if len(c.Sources) == 0 {
		problems = append(problems, "at least one source is required")
	}
	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" {
			problems = append(problems, fmt.Sprintf("sources[%d]: name is required", i))
		} else if seen[s.Name] {
			problems = append(problems, fmt.Sprintf("sources[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.IDField == "" {
			problems = append(problems, fmt.Sprintf("source %s: id_field is required", s.Name))
		}
		switch s.Format {
		case FormatFixed:
			if len(s.Layout.Fields) == 0 {
				problems = append(problems, fmt.Sprintf("source %s: fixed format needs layout fields", s.Name))
			}
			for _, f := range s.Layout.Fields {
				if f.Start < 0 || f.End <= f.Start {
					problems = append(problems, fmt.Sprintf("source %s: field %s has invalid range [%d,%d)", s.Name, f.Name, f.Start, f.End))
				}
			}
		case FormatCSV, FormatTSV, FormatDelimited, FormatVOTable, FormatXLSX:
		default:
			problems = append(problems, fmt.Sprintf("source %s: unknown format %q", s.Name, s.Format))
		}
	}

	if c.Derive.Numerator == "" || c.Derive.Denominator == "" {
		problems = append(problems, "derive: numerator and denominator are required")
	}
	if c.Derive.Constant <= 0 {
		problems = append(problems, "derive: constant must be positive")
	}
	if c.Derive.KMin >= c.Derive.KMax {
		problems = append(problems, "derive: k_min must be below k_max")
	}
	if c.Clustering.NMin <= 0 || c.Clustering.NMax < c.Clustering.NMin {
		problems = append(problems, "clustering: invalid harmonic scan range")
	}
	if c.Clustering.WindowMin >= c.Clustering.WindowMax {
		problems = append(problems, "clustering: window_min must be below window_max")
	}
	if c.Clustering.Bins <= 0 {
		problems = append(problems, "clustering: bins must be positive")
	}
	if c.Correlation.MinSamples < 3 {
		problems = append(problems, "correlation: min_samples must be at least 3")
	}
	if c.Formulation.MaxEvaluations <= 0 {
		problems = append(problems, "formulation: max_evaluations must be positive")
	}
	if c.Formulation.TieRatio <= 0 || c.Formulation.TieRatio > 1 {
		problems = append(problems, "formulation: tie_ratio must be in (0, 1]")
	}

	if len(problems) > 0 {
		return errors.ConfigInvalid(strings.Join(problems, "; "))
	}
	return nil
}

// Source returns the named source configuration
func (c *RunConfig) Source(name string) (*SourceConfig, bool) {
	for i := range c.Sources {
		if c.Sources[i].Name == name {
			return &c.Sources[i], true
		}
	}
	return nil, false
}
