// Package evaluation orchestrates scoring runs: it fans one content version
// out to every enabled AI-likeness detector plus the AEO scorer, collects
// whatever succeeds, finalizes the run envelope, and checks for score
// regressions against the blog's previous run.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"redline/internal/aeo"
	"redline/internal/config"
	"redline/internal/detector"
	"redline/internal/fault"
	"redline/internal/logging"
	"redline/internal/rubric"
	"redline/internal/store"
	"redline/internal/workflow"
)

// DefaultQueryIntent is the intent AEO scores are recorded under when the
// caller does not supply one.
const DefaultQueryIntent = "informational"

// Pipeline wires the store, the detector registry and the task runner.
type Pipeline struct {
	store    *store.ContentStore
	registry *detector.Registry
	runner   *workflow.Runner
	cfg      config.EvaluationConfig
	workflow config.WorkflowConfig
}

// New builds a pipeline.
func New(s *store.ContentStore, reg *detector.Registry, runner *workflow.Runner,
	cfg config.EvaluationConfig, wf config.WorkflowConfig) *Pipeline {
	return &Pipeline{store: s, registry: reg, runner: runner, cfg: cfg, workflow: wf}
}

// modelConfig is the frozen scorer configuration snapshot stored on the run.
type modelConfig struct {
	Detectors   []detectorConfig `json:"detectors"`
	AEOVersion  string           `json:"aeo_rubric_version"`
	QueryIntent string           `json:"query_intent"`
}

type detectorConfig struct {
	ID           string `json:"id"`
	ModelVersion string `json:"model_version"`
}

// detectorDetails is the persisted envelope around one provider's verdict.
// The provider's own breakdown rides inside raw_response untouched.
type detectorDetails struct {
	ModelVersion string          `json:"model_version"`
	Timestamp    string          `json:"timestamp"`
	Score        float64         `json:"score"`
	RawResponse  json.RawMessage `json:"raw_response,omitempty"`
}

func encodeDetectorDetails(score *detector.Score) (string, error) {
	env := detectorDetails{
		ModelVersion: score.ModelVersion,
		Timestamp:    score.ScoredAt,
		Score:        score.Value,
	}
	if env.Timestamp == "" {
		env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if score.Details != "" {
		env.RawResponse = json.RawMessage(score.Details)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fault.Wrap(fault.Internal, err, "failed to encode detector details")
	}
	return string(data), nil
}

// Evaluate scores one version end to end and returns the finalized run.
//
// Starting is idempotent: a run already processing for this version is
// returned as-is instead of opening a second one. Evaluating the currently
// approved version is refused; approved content is frozen and re-scoring it
// can only invite automated meddling.
func (p *Pipeline) Evaluate(ctx context.Context, versionID, triggeredBy string) (*store.EvaluationRun, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "Evaluate")
	defer timer.Stop()

	version, err := p.store.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	approvedID, err := p.store.ApprovedVersionID(version.BlogID)
	if err != nil {
		return nil, err
	}
	if approvedID == versionID {
		return nil, fault.New(fault.ApprovedContent,
			"version %s is the approved version of blog %s; revoke approval before re-evaluating",
			versionID, version.BlogID)
	}

	if open, err := p.store.ProcessingRunForVersion(versionID); err != nil {
		return nil, err
	} else if open != nil {
		logging.Pipeline("Evaluation already in flight for version %s (run %s)", versionID, open.ID)
		return open, nil
	}

	detectors, err := p.registry.Select(p.cfg.EnabledDetectors)
	if err != nil {
		return nil, err
	}

	// The run before this one is the regression baseline; capture it now,
	// before this run can become the latest itself.
	baseline, err := p.store.LatestCompletedRunForBlog(version.BlogID)
	if err != nil {
		return nil, err
	}

	snapshot := modelConfig{AEOVersion: aeo.Version, QueryIntent: DefaultQueryIntent}
	for _, d := range detectors {
		snapshot.Detectors = append(snapshot.Detectors, detectorConfig{
			ID: d.ID(), ModelVersion: d.ModelVersion(),
		})
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "failed to encode model config")
	}

	run, err := p.store.CreateEvaluationRun(versionID, triggeredBy, string(snapshotJSON))
	if err != nil {
		return nil, err
	}
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditEvaluationStarted,
		ActorID:   triggeredBy,
		BlogID:    version.BlogID,
		VersionID: versionID,
		Target:    run.ID,
		Success:   true,
	})

	succeeded, failed := p.fanOut(ctx, run, version, detectors)

	status := store.RunCompleted
	switch {
	case succeeded == 0:
		status = store.RunFailed
	case failed > 0:
		status = store.RunPartialFailure
	}
	if err := p.store.FinalizeRun(run.ID, status); err != nil {
		return nil, err
	}
	logging.Pipeline("Run %s finalized: %s (%d scored, %d failed)", run.ID, status, succeeded, failed)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditEvaluationFinalized,
		BlogID:    version.BlogID,
		VersionID: versionID,
		Target:    run.ID,
		Success:   status != store.RunFailed,
		Reason:    status,
	})

	if status != store.RunFailed {
		if err := p.checkRegression(run.ID, version, baseline); err != nil {
			logging.Pipeline("Regression check failed for run %s: %v", run.ID, err)
		}
	}
	return p.store.GetEvaluationRun(run.ID)
}

// fanOut runs every scorer concurrently and reports how many succeeded and
// failed. Individual scorer failures never abort the others; partial results
// are the point of the partial_failure status.
func (p *Pipeline) fanOut(ctx context.Context, run *store.EvaluationRun,
	version *store.Version, detectors []detector.Detector) (succeeded, failed int) {

	type outcome struct{ err error }
	results := make([]outcome, len(detectors)+1)

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range detectors {
		g.Go(func() error {
			results[i].err = p.runner.RunSync(gctx, workflow.Task{
				Kind:           "detector:" + d.ID(),
				IdempotencyKey: fmt.Sprintf("detect/%s/%s", run.ID, d.ID()),
				MaxRetries:     p.workflow.ScorerMaxRetries,
				Timeout:        p.cfg.DetectorTimeout(),
				Run: func(taskCtx context.Context) error {
					score, err := d.Detect(taskCtx, version.Content)
					if err != nil {
						return err
					}
					details, err := encodeDetectorDetails(score)
					if err != nil {
						return err
					}
					_, err = p.store.InsertDetectorScore(run.ID, d.ID(), score.Value, details)
					return err
				},
			})
			return nil
		})
	}
	g.Go(func() error {
		results[len(detectors)].err = p.runner.RunSync(gctx, workflow.Task{
			Kind:           "aeo",
			IdempotencyKey: fmt.Sprintf("aeo/%s/%s", run.ID, DefaultQueryIntent),
			MaxRetries:     p.workflow.ScorerMaxRetries,
			Timeout:        p.cfg.DetectorTimeout(),
			Run: func(taskCtx context.Context) error {
				result, err := aeo.Score(version.Content)
				if err != nil {
					return err
				}
				details, err := json.Marshal(result)
				if err != nil {
					return fault.Wrap(fault.Internal, err, "failed to encode aeo details")
				}
				rationale := rationaleFromPillars(result)
				_, err = p.store.InsertAEOScore(run.ID, DefaultQueryIntent, result.TotalScore, rationale, string(details))
				return err
			},
		})
		return nil
	})
	// Goroutines only record outcomes; Wait cannot fail.
	_ = g.Wait()

	for _, r := range results {
		if r.err == nil {
			succeeded++
		} else {
			failed++
			logging.Pipeline("Scorer failed on run %s: %v", run.ID, r.err)
		}
	}
	return succeeded, failed
}

func rationaleFromPillars(r *aeo.Result) string {
	var weakest string
	gap := 0.0
	for _, key := range aeo.PillarOrder {
		p := r.Pillars[key]
		if d := p.MaxScore - p.Score; d > gap {
			gap = d
			weakest = key
		}
	}
	if weakest == "" {
		return "All pillars at maximum."
	}
	p := r.Pillars[weakest]
	return fmt.Sprintf("Weakest pillar %s (%g/%g): %s", weakest, p.Score, p.MaxScore, firstReason(p))
}

func firstReason(p aeo.PillarScore) string {
	if len(p.Reasons) == 0 {
		return ""
	}
	return p.Reasons[0]
}

// checkRegression compares this run's aggregate metrics against the baseline
// run: the AEO total and the mean detector score. A metric regresses when
// quality moves the wrong way past the threshold, which is the AEO total
// falling or the detector mean rising. Each metric is only compared under
// matching model versions; a mismatched metric is skipped with a warning,
// since a version bump moving numbers is drift, not regression. Any
// regressing metric on a blog with no active approval opens a single
// score_regression escalation.
func (p *Pipeline) checkRegression(runID string, version *store.Version, baseline *store.EvaluationRun) error {
	if baseline == nil {
		return nil
	}
	run, err := p.store.GetEvaluationRun(runID)
	if err != nil {
		return err
	}
	current, err := p.AggregateRun(runID)
	if err != nil {
		return err
	}
	previous, err := p.AggregateRun(baseline.ID)
	if err != nil {
		return err
	}

	type regressed struct {
		Metric   string  `json:"metric"`
		Previous float64 `json:"previous_score"`
		Current  float64 `json:"current_score"`
		Delta    float64 `json:"delta"` // current minus previous
	}
	var regressions []regressed

	if current.AEOScore != nil && previous.AEOScore != nil {
		if current.AEOVersion != previous.AEOVersion {
			logging.Pipeline("Skipping AEO metric on run %s: rubric version changed %s -> %s",
				runID, previous.AEOVersion, current.AEOVersion)
		} else if drop := *previous.AEOScore - *current.AEOScore; drop > p.cfg.RegressionThreshold {
			regressions = append(regressions, regressed{"aeo_total", *previous.AEOScore, *current.AEOScore, -drop})
		}
	}

	if curMean, ok := detectorMean(current); ok {
		if prevMean, ok := detectorMean(previous); ok {
			if !sameDetectorVersions(run.ModelConfig, baseline.ModelConfig) {
				logging.Pipeline("Skipping detector metric on run %s: model versions changed since run %s",
					runID, baseline.ID)
			} else if rise := curMean - prevMean; rise > p.cfg.RegressionThreshold {
				regressions = append(regressions, regressed{"ai_likeness_mean", prevMean, curMean, rise})
			}
		}
	}
	if len(regressions) == 0 {
		return nil
	}

	approvedID, err := p.store.ApprovedVersionID(version.BlogID)
	if err != nil {
		return err
	}
	if approvedID != "" {
		// An approved blog is already under human control; no escalation.
		return nil
	}

	names := make([]string, len(regressions))
	for i, r := range regressions {
		names[i] = r.Metric
	}
	details, _ := json.Marshal(map[string]any{
		"run_id":          runID,
		"baseline_run_id": baseline.ID,
		"regressions":     regressions,
	})
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditRegressionDetected,
		BlogID:    version.BlogID,
		VersionID: version.ID,
		Target:    runID,
		Success:   true,
		Reason:    fmt.Sprintf("regressed metrics: %s", strings.Join(names, ", ")),
	})
	_, err = p.store.OpenEscalation(version.BlogID, version.ID, store.EscalationScoreRegression, string(details))
	return err
}

// detectorMean averages a run's detector scores. The second return is false
// when the run recorded no detector rows at all.
func detectorMean(agg *Aggregate) (float64, bool) {
	if len(agg.DetectorScores) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range agg.DetectorScores {
		sum += v
	}
	return sum / float64(len(agg.DetectorScores)), true
}

// sameDetectorVersions reports whether two model_config snapshots ran the
// same detector set under the same model versions.
func sameDetectorVersions(a, b string) bool {
	var ca, cb modelConfig
	if json.Unmarshal([]byte(a), &ca) != nil || json.Unmarshal([]byte(b), &cb) != nil {
		return false
	}
	if len(ca.Detectors) != len(cb.Detectors) {
		return false
	}
	versions := make(map[string]string, len(ca.Detectors))
	for _, d := range ca.Detectors {
		versions[d.ID] = d.ModelVersion
	}
	for _, d := range cb.Detectors {
		if v, ok := versions[d.ID]; !ok || v != d.ModelVersion {
			return false
		}
	}
	return true
}

// Aggregate is the flattened score view of one run, used by the rewrite
// orchestrator and the CLI.
type Aggregate struct {
	RunID          string             `json:"run_id"`
	Status         string             `json:"status"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	DetectorScores map[string]float64 `json:"detector_scores"`
	AIScore        *float64           `json:"ai_score,omitempty"` // built-in rubric detector, when present
	AEOScore       *float64           `json:"aeo_score,omitempty"`
	AEOVersion     string             `json:"aeo_rubric_version,omitempty"`
	Pillars        map[string]aeo.PillarScore
	Rubric         *rubric.Result `json:"-"` // category breakdown of the built-in detector
}

// AggregateRun assembles the flattened view from the run's score rows.
func (p *Pipeline) AggregateRun(runID string) (*Aggregate, error) {
	run, err := p.store.GetEvaluationRun(runID)
	if err != nil {
		return nil, err
	}
	agg := &Aggregate{
		RunID:          run.ID,
		Status:         run.Status,
		CompletedAt:    run.CompletedAt,
		DetectorScores: map[string]float64{},
	}

	detScores, err := p.store.DetectorScoresForRun(runID)
	if err != nil {
		return nil, err
	}
	for _, ds := range detScores {
		agg.DetectorScores[ds.Provider] = ds.Score
		if ds.Provider == detector.RubricDetectorID {
			v := ds.Score
			agg.AIScore = &v
			if ds.Details == "" {
				continue
			}
			var env detectorDetails
			if err := json.Unmarshal([]byte(ds.Details), &env); err != nil || len(env.RawResponse) == 0 {
				continue
			}
			var breakdown rubric.Result
			if err := json.Unmarshal(env.RawResponse, &breakdown); err == nil {
				agg.Rubric = &breakdown
			}
		}
	}

	aeoScores, err := p.store.AEOScoresForRun(runID)
	if err != nil {
		return nil, err
	}
	for _, as := range aeoScores {
		if as.QueryIntent != DefaultQueryIntent {
			continue
		}
		v := as.Score
		agg.AEOScore = &v
		var details aeo.Result
		if as.Details != "" {
			if err := json.Unmarshal([]byte(as.Details), &details); err == nil {
				agg.Pillars = details.Pillars
				agg.AEOVersion = details.RubricVersion
			}
		}
	}
	return agg, nil
}

// LatestAggregateForBlog returns the flattened view of the blog's newest
// usable run, or nil when the blog has never been scored.
func (p *Pipeline) LatestAggregateForBlog(blogID string) (*Aggregate, error) {
	run, err := p.store.LatestCompletedRunForBlog(blogID)
	if err != nil || run == nil {
		return nil, err
	}
	return p.AggregateRun(run.ID)
}
