package evaluation

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/config"
	"redline/internal/detector"
	"redline/internal/fault"
	"redline/internal/store"
	"redline/internal/workflow"
)

// failingDetector always errors, standing in for an external provider outage.
type failingDetector struct{}

func (failingDetector) ID() string           { return "flaky_external" }
func (failingDetector) ModelVersion() string { return "ext_v1" }
func (failingDetector) Detect(ctx context.Context, text string) (*detector.Score, error) {
	return nil, fault.New(fault.Unavailable, "provider is down")
}

// settableDetector lets a test move an external provider's verdict and model
// version between runs.
type settableDetector struct {
	id      string
	version string
	value   float64
}

func (d *settableDetector) ID() string           { return d.id }
func (d *settableDetector) ModelVersion() string { return d.version }
func (d *settableDetector) Detect(ctx context.Context, text string) (*detector.Score, error) {
	return &detector.Score{Provider: d.id, Value: d.value, ModelVersion: d.version}, nil
}

type testEnv struct {
	store    *store.ContentStore
	pipeline *Pipeline
	writer   *store.Actor
	reviewer *store.Actor
	blog     *store.Blog
}

func newTestEnv(t *testing.T, detectors ...detector.Detector) *testEnv {
	t.Helper()
	s, err := store.NewContentStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	reg := detector.NewRegistry()
	enabled := make([]string, 0, len(detectors))
	for _, d := range detectors {
		require.NoError(t, reg.Register(d))
		enabled = append(enabled, d.ID())
	}

	runner := workflow.NewRunner(config.WorkflowConfig{Workers: 2, BackoffBaseMillis: 1})
	runner.Start()
	t.Cleanup(runner.Stop)

	evalCfg := config.EvaluationConfig{
		EnabledDetectors:    enabled,
		DetectorTimeoutSecs: 5,
		RegressionThreshold: 10,
	}
	wfCfg := config.WorkflowConfig{Workers: 2, ScorerMaxRetries: 0, BackoffBaseMillis: 1}

	writer, err := s.CreateActor("writer@example.com", store.RoleWriter, true)
	require.NoError(t, err)
	reviewer, err := s.CreateActor("reviewer@example.com", store.RoleReviewer, true)
	require.NoError(t, err)
	blog, err := s.CreateBlog("Pipeline Fixtures", "", writer.ID)
	require.NoError(t, err)

	return &testEnv{
		store:    s,
		pipeline: New(s, reg, runner, evalCfg, wfCfg),
		writer:   writer,
		reviewer: reviewer,
		blog:     blog,
	}
}

func (e *testEnv) appendVersion(t *testing.T, parentID, content string) *store.Version {
	t.Helper()
	v, err := e.store.AppendVersion(store.AppendVersionParams{
		BlogID:          e.blog.ID,
		ParentVersionID: parentID,
		Content:         content,
		Source:          store.SourceHumanPaste,
		CreatedBy:       e.writer.ID,
	})
	require.NoError(t, err)
	return v
}

// strongContent scores well on the AEO rubric: heading hierarchy, lists,
// citations, links, and enough depth to clear the coverage tiers.
func strongContent() string {
	var b strings.Builder
	b.WriteString("# How Connection Pooling Cut Our Query Latency by 38%\n\n")
	b.WriteString("Connection pooling reduced our p95 query latency from 480ms to 297ms in 2025. ")
	b.WriteString("This post shows the exact pool settings, the benchmark method, and the three failure modes we hit along the way.\n\n")
	b.WriteString("## Pool Configuration\n\n")
	b.WriteString("- Max open connections set to 25 per service instance.\n")
	b.WriteString("- Idle timeout lowered to 90 seconds after the 2024 incident.\n")
	b.WriteString("- Health checks run every 15 seconds against a sentinel table.\n\n")
	b.WriteString("### Benchmark Method\n\n")
	b.WriteString("We replayed 14 days of production traffic with [pgbench](https://example.com/pgbench) ")
	b.WriteString("and tracked results in [our dashboard](https://example.com/dash).\n\n")
	b.WriteString("1. Warm the pool for 5 minutes.\n")
	b.WriteString("2. Replay at 2x production rate.\n")
	b.WriteString("3. Record p50, p95, and p99 latency.\n\n")
	for i := 0; i < 40; i++ {
		b.WriteString("The replay run surfaced contention on the lock table when more than 40 workers ")
		b.WriteString("fought over the same hot rows, so we sharded the counter into 16 buckets. ")
	}
	return b.String()
}

func weakContent() string {
	return "In today's digital landscape, our cutting-edge solution is a game-changer. " +
		"It is best-in-class and world-class. That is really all there is to say about it."
}

func TestEvaluate_Completed(t *testing.T) {
	env := newTestEnv(t, detector.NewRubricDetector())
	v := env.appendVersion(t, "", strongContent())

	run, err := env.pipeline.Evaluate(context.Background(), v.ID, env.writer.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)

	agg, err := env.pipeline.AggregateRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, agg.AIScore)
	require.NotNil(t, agg.AEOScore)
	assert.Greater(t, *agg.AEOScore, 50.0)
	assert.NotEmpty(t, agg.Pillars)
	assert.NotEmpty(t, agg.AEOVersion)
}

func TestEvaluate_PartialFailure(t *testing.T) {
	env := newTestEnv(t, detector.NewRubricDetector(), failingDetector{})
	v := env.appendVersion(t, "", strongContent())

	run, err := env.pipeline.Evaluate(context.Background(), v.ID, env.writer.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunPartialFailure, run.Status)

	// The surviving scorers still landed their rows.
	agg, err := env.pipeline.AggregateRun(run.ID)
	require.NoError(t, err)
	assert.NotNil(t, agg.AIScore)
	assert.NotNil(t, agg.AEOScore)
	assert.NotContains(t, agg.DetectorScores, "flaky_external")
}

func TestEvaluate_IdempotentWhileProcessing(t *testing.T) {
	env := newTestEnv(t, detector.NewRubricDetector())
	v := env.appendVersion(t, "", strongContent())

	open, err := env.store.CreateEvaluationRun(v.ID, env.writer.ID, "{}")
	require.NoError(t, err)

	run, err := env.pipeline.Evaluate(context.Background(), v.ID, env.writer.ID)
	require.NoError(t, err)
	assert.Equal(t, open.ID, run.ID, "an in-flight run must be reused, not duplicated")
	assert.Equal(t, store.RunProcessing, run.Status)
}

func TestEvaluate_ApprovedVersionRefused(t *testing.T) {
	env := newTestEnv(t, detector.NewRubricDetector())
	v := env.appendVersion(t, "", strongContent())

	_, err := env.store.RecordApproval(store.RecordApprovalParams{
		BlogID:     env.blog.ID,
		VersionID:  v.ID,
		ApproverID: env.reviewer.ID,
	})
	require.NoError(t, err)

	_, err = env.pipeline.Evaluate(context.Background(), v.ID, env.writer.ID)
	require.Error(t, err)
	assert.Equal(t, fault.ApprovedContent, fault.KindOf(err))
}

func TestEvaluate_RegressionOpensEscalation(t *testing.T) {
	env := newTestEnv(t, detector.NewRubricDetector())
	v1 := env.appendVersion(t, "", strongContent())

	_, err := env.pipeline.Evaluate(context.Background(), v1.ID, env.writer.ID)
	require.NoError(t, err)
	escalated, err := env.store.IsEscalated(env.blog.ID)
	require.NoError(t, err)
	assert.False(t, escalated, "first run has no baseline to regress from")

	v2 := env.appendVersion(t, v1.ID, weakContent())
	_, err = env.pipeline.Evaluate(context.Background(), v2.ID, env.writer.ID)
	require.NoError(t, err)

	escalated, err = env.store.IsEscalated(env.blog.ID)
	require.NoError(t, err)
	assert.True(t, escalated)

	open, err := env.store.ListEscalations(store.EscalationPending)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, store.EscalationScoreRegression, open[0].Reason)
	assert.Equal(t, v2.ID, open[0].VersionID)
	assert.Contains(t, open[0].Details, "baseline_run_id")
}

func TestEvaluate_DetectorDetailsEnvelope(t *testing.T) {
	env := newTestEnv(t, detector.NewRubricDetector())
	v := env.appendVersion(t, "", strongContent())

	run, err := env.pipeline.Evaluate(context.Background(), v.ID, env.writer.ID)
	require.NoError(t, err)

	scores, err := env.store.DetectorScoresForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, scores, 1)

	var persisted map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(scores[0].Details), &persisted))
	assert.Contains(t, persisted, "model_version")
	assert.Contains(t, persisted, "timestamp")
	assert.Contains(t, persisted, "score")
	assert.Contains(t, persisted, "raw_response")
	assert.Contains(t, string(persisted["raw_response"]), "rubric_version")

	// The aggregate recovers the category breakdown through the envelope.
	agg, err := env.pipeline.AggregateRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, agg.Rubric)
	assert.Equal(t, *agg.AIScore, agg.Rubric.TotalScore)
}

func TestEvaluate_AILikenessRiseIsRegression(t *testing.T) {
	judge := &settableDetector{id: "external_judge", version: "judge_v1", value: 20}
	env := newTestEnv(t, judge)
	v1 := env.appendVersion(t, "", strongContent())
	_, err := env.pipeline.Evaluate(context.Background(), v1.ID, env.writer.ID)
	require.NoError(t, err)

	// Same content holds the AEO total flat while the detector verdict jumps.
	judge.value = 40
	v2 := env.appendVersion(t, v1.ID, strongContent())
	_, err = env.pipeline.Evaluate(context.Background(), v2.ID, env.writer.ID)
	require.NoError(t, err)

	open, err := env.store.ListEscalations(store.EscalationPending)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, store.EscalationScoreRegression, open[0].Reason)
	assert.Contains(t, open[0].Details, "ai_likeness_mean")
	assert.NotContains(t, open[0].Details, "aeo_total")
}

func TestEvaluate_ModelVersionMismatchSkipsMetric(t *testing.T) {
	judge := &settableDetector{id: "external_judge", version: "judge_v1", value: 20}
	env := newTestEnv(t, judge)
	v1 := env.appendVersion(t, "", strongContent())
	_, err := env.pipeline.Evaluate(context.Background(), v1.ID, env.writer.ID)
	require.NoError(t, err)

	// The verdict jumps, but under a new model version the detector metric is
	// drift, not regression.
	judge.version = "judge_v2"
	judge.value = 40
	v2 := env.appendVersion(t, v1.ID, strongContent())
	_, err = env.pipeline.Evaluate(context.Background(), v2.ID, env.writer.ID)
	require.NoError(t, err)

	escalated, err := env.store.IsEscalated(env.blog.ID)
	require.NoError(t, err)
	assert.False(t, escalated)
}

func TestEvaluate_SmallDropIsNotRegression(t *testing.T) {
	env := newTestEnv(t, detector.NewRubricDetector())
	v1 := env.appendVersion(t, "", strongContent())
	_, err := env.pipeline.Evaluate(context.Background(), v1.ID, env.writer.ID)
	require.NoError(t, err)

	// Same content scores identically, so the drop is zero.
	v2 := env.appendVersion(t, v1.ID, strongContent())
	_, err = env.pipeline.Evaluate(context.Background(), v2.ID, env.writer.ID)
	require.NoError(t, err)

	escalated, err := env.store.IsEscalated(env.blog.ID)
	require.NoError(t, err)
	assert.False(t, escalated)
}

func TestEvaluate_ModelConfigSnapshot(t *testing.T) {
	env := newTestEnv(t, detector.NewRubricDetector())
	v := env.appendVersion(t, "", strongContent())

	run, err := env.pipeline.Evaluate(context.Background(), v.ID, env.writer.ID)
	require.NoError(t, err)
	assert.Contains(t, run.ModelConfig, detector.RubricDetectorID)
	assert.Contains(t, run.ModelConfig, "aeo_rubric_version")
	assert.Contains(t, run.ModelConfig, DefaultQueryIntent)
}

func TestLatestAggregateForBlog(t *testing.T) {
	env := newTestEnv(t, detector.NewRubricDetector())

	agg, err := env.pipeline.LatestAggregateForBlog(env.blog.ID)
	require.NoError(t, err)
	assert.Nil(t, agg, "unscored blog has no aggregate")

	v := env.appendVersion(t, "", strongContent())
	run, err := env.pipeline.Evaluate(context.Background(), v.ID, env.writer.ID)
	require.NoError(t, err)

	agg, err = env.pipeline.LatestAggregateForBlog(env.blog.ID)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, run.ID, agg.RunID)
}
