package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"goharmonic/adapters/stats/battery"
	"goharmonic/domain/catalog"
	"goharmonic/domain/core"
	"goharmonic/domain/star"
	"goharmonic/domain/verdict"
	"goharmonic/internal"
	"goharmonic/internal/config"
	"goharmonic/internal/derive"
	"goharmonic/internal/errors"
	"goharmonic/internal/merge"
	"goharmonic/internal/scoring"
	"goharmonic/ports"
)

// Result keys written to the sink
const (
	KeyRunID              = "run_id"
	KeyRunName            = "run_name"
	KeyInputHashes        = "input_hashes"
	KeyMerged             = "n_merged"
	KeyMergeSummary       = "merge_summary"
	KeyValid              = "n_valid"
	KeyRejected           = "n_rejected"
	KeyRejections         = "rejections"
	KeyKStatistics        = "k_statistics"
	KeyHarmonicPeaks      = "harmonic_peaks"
	KeyPhaseAnalysis      = "phase_analysis"
	KeyFinalScore         = "final_score"
	KeyMaxScore           = "max_score"
	KeyFinalVerdict       = "final_verdict"
	KeyScoreReport        = "score_report"
	KeyTimestampCompleted = "timestamp_completed"
)

// RecordsKey and MalformedKey name the per-source counts
func RecordsKey(source string) string   { return "n_records_" + source }
func MalformedKey(source string) string { return "malformed_" + source }

// SourceSummary is the load outcome of one catalog
type SourceSummary struct {
	Name      string `json:"name"`
	Records   int    `json:"records"`
	Malformed int    `json:"malformed"`
	Error     string `json:"error,omitempty"`
}

// AnalysisResult is everything one run produced
type AnalysisResult struct {
	RunID      core.RunID          `json:"run_id"`
	Name       string              `json:"name"`
	Sources    []SourceSummary     `json:"sources"`
	Merge      *merge.Summary      `json:"merge"`
	Valid      int                 `json:"n_valid"`
	Rejected   int                 `json:"n_rejected"`
	KStats     derive.KStatistics  `json:"k_statistics"`
	Battery    battery.Report      `json:"battery"`
	Score      verdict.ScoreReport `json:"score_report"`
	Degraded   []string            `json:"degraded,omitempty"`
	SinkErrors int                 `json:"sink_errors,omitempty"`
	Started    time.Time           `json:"started"`
	Completed  time.Time           `json:"completed"`
	Dataset    *star.Dataset       `json:"-"`
}

// AnalysisService runs the pipeline: load, merge, derive, test, score
type AnalysisService struct {
	cfg        *config.RunConfig
	readers    []ports.CatalogReader
	merger     *merge.Merger
	engine     *derive.Engine
	battery    *battery.Battery
	aggregator *scoring.Aggregator
	logger     *internal.Logger
}

// NewAnalysisService wires the pipeline for a run configuration
func NewAnalysisService(cfg *config.RunConfig, readers []ports.CatalogReader, logger *internal.Logger) *AnalysisService {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &AnalysisService{
		cfg:        cfg,
		readers:    readers,
		merger:     merge.NewMerger(logger.With("stage", "merge")),
		engine:     derive.NewEngine(cfg.Derive, logger.With("stage", "derive")),
		battery:    battery.New(cfg, logger.With("stage", "battery")),
		aggregator: scoring.NewAggregator(logger.With("stage", "scoring")),
		logger:     logger,
	}
}

// Run executes the whole pipeline against sink. Source, merge and test
// failures degrade the result; only a scoring invariant violation is
// returned as an error. Results already saved stay in the sink either way.
func (s *AnalysisService) Run(ctx context.Context, runID core.RunID, sink ports.ResultSink) (*AnalysisResult, error) {
	if runID.IsEmpty() {
		runID = core.NewRunID()
	}
	res := &AnalysisResult{RunID: runID, Name: s.cfg.Name, Started: time.Now().UTC()}
	w := &writer{sink: sink, logger: s.logger, result: res}

	w.save(KeyRunID, runID.String())
	w.save(KeyRunName, s.cfg.Name)
	w.banner(fmt.Sprintf("K-INDEX ANALYSIS: %s", s.cfg.Name))

	// load
	w.log("")
	w.log("[1/5] Loading catalogs...")
	sets := s.load(ctx, w)

	// merge
	merged, summary, err := s.merger.Merge(ctx, sets...)
	if err != nil {
		w.degrade("merge", err)
		merged = catalog.Empty(merge.MergedSource, "", err)
		summary = &merge.Summary{EmptyMerge: true}
	}
	res.Merge = summary
	w.save(KeyMerged, merged.Len())
	w.save(KeyMergeSummary, summary)
	if summary.EmptyMerge {
		w.log(fmt.Sprintf("x Merged: 0 stars (empty inputs: %v)", summary.EmptySources))
	} else {
		w.log(fmt.Sprintf("+ Merged: %d stars total", merged.Len()))
	}

	// derive
	w.log("")
	w.log("[2/5] Calculating k values...")
	ds, err := s.engine.Derive(merged)
	if err != nil {
		w.degrade("derive", err)
	}
	res.Dataset = ds
	res.Valid = ds.Len()
	res.Rejected = ds.Rejected
	res.KStats = derive.Summarize(ds)
	w.save(KeyValid, res.Valid)
	w.save(KeyRejected, res.Rejected)
	w.save(KeyRejections, ds.Rejections)
	w.save(KeyKStatistics, res.KStats)
	w.kStatistics(res.KStats)

	// test battery
	w.log("")
	w.log("[3/5] Running statistical tests...")
	report := s.battery.Run(ctx, ds)
	res.Battery = report
	for _, v := range report.Verdicts {
		if v.Test == verdict.TestClustering && v.Clustering != nil {
			w.save(KeyHarmonicPeaks, v.Clustering.Peaks)
		}
		w.save(string(v.Test), v)
		w.verdict(v)
		if v.Tag == verdict.TagError {
			w.degrade(string(v.Test), fmt.Errorf("%s", v.Reason))
		}
	}
	if report.Phase != nil {
		w.save(KeyPhaseAnalysis, report.Phase)
		w.phase(report.Phase)
	}

	// score
	w.log("")
	w.log("[4/5] Scoring...")
	score, err := s.aggregator.Score(report.Verdicts, ds.Len())
	if err != nil {
		w.log(fmt.Sprintf("x %v", err))
		res.Completed = time.Now().UTC()
		return res, err
	}
	res.Score = score
	w.save(KeyFinalScore, score.Score)
	w.save(KeyMaxScore, score.MaxScore)
	w.save(KeyFinalVerdict, string(score.Readiness))
	w.save(KeyScoreReport, score)
	w.score(score)

	res.Completed = time.Now().UTC()
	w.save(KeyTimestampCompleted, res.Completed.Format(time.RFC3339))
	w.log("")
	w.log("[5/5] Analysis complete")
	s.logger.Info("run %s finished in %s: %.1f/%.1f %s (%d degraded stages)",
		runID, res.Completed.Sub(res.Started).Round(time.Millisecond), score.Score, score.MaxScore, score.Readiness, len(res.Degraded))
	return res, nil
}

// load reads every source concurrently. A failing source becomes an empty set.
func (s *AnalysisService) load(ctx context.Context, w *writer) []*catalog.RecordSet {
	sets := make([]*catalog.RecordSet, len(s.readers))
	errs := make([]error, len(s.readers))
	hashes := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range s.readers {
		g.Go(func() error {
			set, err := r.Read(gctx)
			if set == nil {
				set = catalog.Empty(r.Name(), "", err)
			}
			sets[i], errs[i] = set, err
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range s.readers {
		set := sets[i]
		summary := SourceSummary{Name: r.Name(), Records: set.Len(), Malformed: set.Malformed}
		if errs[i] != nil {
			summary.Error = errs[i].Error()
			w.degrade("load "+r.Name(), errs[i])
			w.log(fmt.Sprintf("x %s unavailable: %v", r.Name(), errs[i]))
		} else {
			w.log(fmt.Sprintf("+ Loaded %d stars from %s (%d malformed rows)", set.Len(), r.Name(), set.Malformed))
		}
		w.result.Sources = append(w.result.Sources, summary)
		w.save(RecordsKey(r.Name()), set.Len())
		w.save(MalformedKey(r.Name()), set.Malformed)

		if fs, ok := r.(interface{ Path() string }); ok && errs[i] == nil {
			if h, err := core.HashFile(fs.Path()); err == nil {
				hashes[r.Name()] = h.String()
			}
		}
	}
	if len(hashes) > 0 {
		w.save(KeyInputHashes, hashes)
	}
	return sets
}

// writer funnels results and transcript lines into the sink. Sink failures
// are logged and counted; they never stop the run.
type writer struct {
	sink   ports.ResultSink
	logger *internal.Logger
	result *AnalysisResult
}

func (w *writer) save(key string, value interface{}) {
	if err := w.sink.Save(key, value); err != nil {
		w.result.SinkErrors++
		w.logger.Warn("failed to save %s: %v", key, err)
	}
}

func (w *writer) log(line string) {
	if err := w.sink.Log(line); err != nil {
		w.result.SinkErrors++
		w.logger.Warn("failed to append transcript: %v", err)
	}
}

func (w *writer) degrade(stage string, err error) {
	w.result.Degraded = append(w.result.Degraded, fmt.Sprintf("%s: [%s] %v", stage, errors.GetCode(err), err))
	w.logger.Warn("%s degraded: %v", stage, err)
}
