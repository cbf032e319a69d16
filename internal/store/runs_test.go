package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/fault"
)

func runFixture(t *testing.T) (*ContentStore, *Blog, *Version, *Actor) {
	t.Helper()
	s := newTestStore(t)
	b, writer := testBlog(t, s)
	v, err := s.AppendVersion(AppendVersionParams{
		BlogID: b.ID, Content: "evaluate me", Source: SourceHumanPaste, CreatedBy: writer.ID,
	})
	require.NoError(t, err)
	return s, b, v, writer
}

func TestProcessingRunForVersion(t *testing.T) {
	s, _, v, writer := runFixture(t)

	open, err := s.ProcessingRunForVersion(v.ID)
	require.NoError(t, err)
	assert.Nil(t, open)

	run, err := s.CreateEvaluationRun(v.ID, writer.ID, "")
	require.NoError(t, err)

	open, err = s.ProcessingRunForVersion(v.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, run.ID, open.ID)

	require.NoError(t, s.FinalizeRun(run.ID, RunPartialFailure))
	open, err = s.ProcessingRunForVersion(v.ID)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestLatestCompletedRunForBlog(t *testing.T) {
	s, b, v, writer := runFixture(t)

	latest, err := s.LatestCompletedRunForBlog(b.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	r1, err := s.CreateEvaluationRun(v.ID, writer.ID, "")
	require.NoError(t, err)
	require.NoError(t, s.FinalizeRun(r1.ID, RunCompleted))

	// A failed run never becomes the latest usable run.
	r2, err := s.CreateEvaluationRun(v.ID, writer.ID, "")
	require.NoError(t, err)
	require.NoError(t, s.FinalizeRun(r2.ID, RunFailed))

	latest, err = s.LatestCompletedRunForBlog(b.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, r1.ID, latest.ID)
}

func TestFinalizeRun_InvalidStatus(t *testing.T) {
	s, _, v, writer := runFixture(t)
	run, err := s.CreateEvaluationRun(v.ID, writer.ID, "")
	require.NoError(t, err)

	err = s.FinalizeRun(run.ID, RunProcessing)
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	err = s.FinalizeRun("no-such-run", RunCompleted)
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestInsertDetectorScore_Idempotent(t *testing.T) {
	s, _, v, writer := runFixture(t)
	run, err := s.CreateEvaluationRun(v.ID, writer.ID, "")
	require.NoError(t, err)

	first, err := s.InsertDetectorScore(run.ID, "internal_rubric", 42.5, `{"model_version":"rubric_v1.0.0"}`)
	require.NoError(t, err)

	// Retried task hits the same (run, provider); the original row wins.
	second, err := s.InsertDetectorScore(run.ID, "internal_rubric", 99.0, "{}")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 42.5, second.Score)

	scores, err := s.DetectorScoresForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, scores, 1)
}

func TestInsertAEOScore_Idempotent(t *testing.T) {
	s, _, v, writer := runFixture(t)
	run, err := s.CreateEvaluationRun(v.ID, writer.ID, "")
	require.NoError(t, err)

	first, err := s.InsertAEOScore(run.ID, "informational", 71.25, "strong structure", "{}")
	require.NoError(t, err)
	second, err := s.InsertAEOScore(run.ID, "informational", 10.0, "", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 71.25, second.Score)

	// A different intent is a separate row.
	_, err = s.InsertAEOScore(run.ID, "transactional", 55.0, "", "")
	require.NoError(t, err)
	scores, err := s.AEOScoresForRun(run.ID)
	require.NoError(t, err)
	assert.Len(t, scores, 2)
}

func TestScoreRangeChecks(t *testing.T) {
	s, _, v, writer := runFixture(t)
	run, err := s.CreateEvaluationRun(v.ID, writer.ID, "")
	require.NoError(t, err)

	_, err = s.InsertDetectorScore(run.ID, "p", 100.01, "")
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	_, err = s.InsertAEOScore(run.ID, "informational", -1, "", "")
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestScoresAreWriteOnce(t *testing.T) {
	s, _, v, writer := runFixture(t)
	run, err := s.CreateEvaluationRun(v.ID, writer.ID, "")
	require.NoError(t, err)
	ds, err := s.InsertDetectorScore(run.ID, "internal_rubric", 30, "")
	require.NoError(t, err)

	_, err = s.DB().Exec(`UPDATE ai_detector_scores SET score = 0 WHERE id = ?`, ds.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
}

func TestRewriteCycleLifecycle(t *testing.T) {
	s, b, v, writer := runFixture(t)

	c, err := s.InsertRewriteCycle(InsertRewriteCycleParams{
		ParentVersionID: v.ID,
		CycleNumber:     1,
		TriggerReasons:  `["aeo_below_threshold"]`,
		RewritePrompt:   "rewrite instructions",
		ParentScores:    `{"aeo_total":55}`,
	})
	require.NoError(t, err)
	assert.Equal(t, CyclePending, c.RewriteStatus)

	child, err := s.AppendVersion(AppendVersionParams{
		BlogID: b.ID, ParentVersionID: v.ID, Content: "rewritten",
		Source: SourceAIRewrite, SourceRewriteCycleID: c.ID, CreatedBy: writer.ID,
	})
	require.NoError(t, err)

	require.NoError(t, s.CompleteCycle(c.ID, child.ID, `{"aeo_total":72}`, "improving", 1))

	got, err := s.GetRewriteCycle(c.ID)
	require.NoError(t, err)
	assert.Equal(t, CycleCompleted, got.RewriteStatus)
	assert.Equal(t, child.ID, got.ChildVersionID)
	assert.Equal(t, 1, got.TrendCode)

	// Closed cycles do not close twice.
	err = s.CompleteCycle(c.ID, child.ID, "", "improving", 1)
	require.Error(t, err)
	assert.Equal(t, fault.InvalidState, fault.KindOf(err))
	err = s.MarkCycleTerminal(c.ID, "late stop")
	require.Error(t, err)
	assert.Equal(t, fault.InvalidState, fault.KindOf(err))

	count, err := s.CycleCountForBlog(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	maxNum, err := s.MaxCycleNumber(v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, maxNum)
}

func TestMarkCycleTerminal(t *testing.T) {
	s, _, v, _ := runFixture(t)
	c, err := s.InsertRewriteCycle(InsertRewriteCycleParams{
		ParentVersionID: v.ID, CycleNumber: 1,
		TriggerReasons: `["ai_above_threshold"]`, RewritePrompt: "p",
	})
	require.NoError(t, err)

	err = s.MarkCycleTerminal(c.ID, "")
	require.Error(t, err)

	require.NoError(t, s.MarkCycleTerminal(c.ID, "rewriter timeout"))
	got, err := s.GetRewriteCycle(c.ID)
	require.NoError(t, err)
	assert.Equal(t, CycleTerminal, got.RewriteStatus)
	assert.Equal(t, "rewriter timeout", got.StopReason)
}

func TestCyclePromptIsWriteOnce(t *testing.T) {
	s, _, v, _ := runFixture(t)
	c, err := s.InsertRewriteCycle(InsertRewriteCycleParams{
		ParentVersionID: v.ID, CycleNumber: 1,
		TriggerReasons: `[]`, RewritePrompt: "original prompt",
	})
	require.NoError(t, err)

	_, err = s.DB().Exec(`UPDATE rewrite_cycles SET rewrite_prompt = 'edited' WHERE id = ?`, c.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
}
