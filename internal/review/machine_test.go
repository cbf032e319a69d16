package review

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/config"
	"redline/internal/fault"
	"redline/internal/store"
)

func testConfig() config.ReviewConfig {
	return config.ReviewConfig{
		MinReviewDurationSeconds:  60,
		FastApprovalThresholdSecs: 30,
		MaxReviewCyclesPerBlog:    5,
		MaxRejectionsPerReviewer:  3,
		RejectionWindowDays:       7,
		StaleReviewDays:           7,
		CosignFastApprovalLimit:   3,
	}
}

type reviewEnv struct {
	store    *store.ContentStore
	machine  *Machine
	writer   *store.Actor
	reviewer *store.Actor
	admin    *store.Actor
	bot      *store.Actor
	blog     *store.Blog
}

func newReviewEnv(t *testing.T, cfg config.ReviewConfig) *reviewEnv {
	t.Helper()
	s, err := store.NewContentStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	writer, err := s.CreateActor("writer@example.com", store.RoleWriter, true)
	require.NoError(t, err)
	reviewer, err := s.CreateActor("reviewer@example.com", store.RoleReviewer, true)
	require.NoError(t, err)
	admin, err := s.CreateActor("admin@example.com", store.RoleAdmin, true)
	require.NoError(t, err)
	bot, err := s.CreateActor("bot@example.com", store.RoleSystem, false)
	require.NoError(t, err)
	blog, err := s.CreateBlog("Review Fixtures", "", writer.ID)
	require.NoError(t, err)

	return &reviewEnv{
		store: s, machine: NewMachine(s, cfg),
		writer: writer, reviewer: reviewer, admin: admin, bot: bot, blog: blog,
	}
}

func (e *reviewEnv) draftVersion(t *testing.T, blogID, parentID string) *store.Version {
	t.Helper()
	v, err := e.store.AppendVersion(store.AppendVersionParams{
		BlogID:          blogID,
		ParentVersionID: parentID,
		Content:         "A draft body with enough words to be a plausible article.",
		Source:          store.SourceHumanPaste,
		CreatedBy:       e.writer.ID,
	})
	require.NoError(t, err)
	return v
}

// inReview submits a version and moves the machine clock past the review
// timer so approve/reject gates pass by default.
func (e *reviewEnv) inReview(t *testing.T, v *store.Version) {
	t.Helper()
	_, err := e.machine.SubmitForReview(v.ID, e.writer.ID)
	require.NoError(t, err)
	e.machine.now = func() time.Time { return time.Now().Add(5 * time.Minute) }
}

const goodRationale = "Checked structure, facts, and tone; reads well."

func TestSubmitForReview(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")

	state, err := env.machine.SubmitForReview(v.ID, env.writer.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateInReview, state.State)
	require.NotNil(t, state.ReviewStartedAt)

	// Submitting again is not a legal transition.
	_, err = env.machine.SubmitForReview(v.ID, env.writer.ID)
	require.Error(t, err)
	assert.Equal(t, fault.InvalidState, fault.KindOf(err))
}

func TestSubmitForReview_CycleCapEscalates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReviewCyclesPerBlog = 1
	env := newReviewEnv(t, cfg)

	v1 := env.draftVersion(t, env.blog.ID, "")
	_, err := env.machine.SubmitForReview(v1.ID, env.writer.ID)
	require.NoError(t, err)

	v2 := env.draftVersion(t, env.blog.ID, v1.ID)
	_, err = env.machine.SubmitForReview(v2.ID, env.writer.ID)
	require.Error(t, err)
	assert.Equal(t, fault.CapExceeded, fault.KindOf(err))

	escalated, err := env.store.IsEscalated(env.blog.ID)
	require.NoError(t, err)
	assert.True(t, escalated)
}

func TestApprove_TimerGate(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")
	_, err := env.machine.SubmitForReview(v.ID, env.writer.ID)
	require.NoError(t, err)

	_, err = env.machine.Approve(v.ID, env.reviewer.ID, goodRationale, "")
	require.Error(t, err)
	assert.Equal(t, fault.InvalidState, fault.KindOf(err))
	assert.Contains(t, err.Error(), "seconds remaining")

	attempts, err := env.store.ApprovalAttempts(env.blog.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, store.AttemptInvalidState, attempts[0].Result)
	assert.Equal(t, "timer", attempts[0].FailureReason)

	// Once the timer elapses the same call succeeds.
	env.machine.now = func() time.Time { return time.Now().Add(5 * time.Minute) }
	approval, err := env.machine.Approve(v.ID, env.reviewer.ID, goodRationale, "")
	require.NoError(t, err)
	assert.Equal(t, v.ID, approval.ApprovedVersionID)
	assert.Equal(t, goodRationale, approval.Notes, "an unhurried approval carries no fast-approval marker")

	state, err := env.store.GetReviewState(v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateApproved, state.State)
}

func TestApprove_RequiresInReview(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")

	_, err := env.machine.Approve(v.ID, env.reviewer.ID, goodRationale, "")
	require.Error(t, err)
	assert.Equal(t, fault.InvalidState, fault.KindOf(err))
}

func TestApprove_NonHumanForbidden(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")
	env.inReview(t, v)

	_, err := env.machine.Approve(v.ID, env.bot.ID, goodRationale, "")
	require.Error(t, err)
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))

	attempts, err := env.store.ApprovalAttempts(env.blog.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, store.AttemptForbidden, attempts[0].Result)
}

func TestApprove_ShortRationaleRejected(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")
	env.inReview(t, v)

	_, err := env.machine.Approve(v.ID, env.reviewer.ID, "looks fine", "")
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestApprove_FastApprovalFlagged(t *testing.T) {
	cfg := testConfig()
	cfg.MinReviewDurationSeconds = 0
	env := newReviewEnv(t, cfg)
	v := env.draftVersion(t, env.blog.ID, "")
	_, err := env.machine.SubmitForReview(v.ID, env.writer.ID)
	require.NoError(t, err)

	approval, err := env.machine.Approve(v.ID, env.reviewer.ID, goodRationale, "")
	require.NoError(t, err)
	assert.Contains(t, approval.Notes, store.FastApprovalNote)

	count, err := env.store.CountFastApprovals(env.reviewer.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApprove_CosignGate(t *testing.T) {
	cfg := testConfig()
	cfg.MinReviewDurationSeconds = 0
	env := newReviewEnv(t, cfg)

	// Three rubber-stamp approvals put the reviewer on the streak list.
	for i := 0; i < 3; i++ {
		blog, err := env.store.CreateBlog(fmt.Sprintf("Streak %d", i), "", env.writer.ID)
		require.NoError(t, err)
		v := env.draftVersion(t, blog.ID, "")
		_, err = env.machine.SubmitForReview(v.ID, env.writer.ID)
		require.NoError(t, err)
		_, err = env.machine.Approve(v.ID, env.reviewer.ID, goodRationale, "")
		require.NoError(t, err)
	}

	v := env.draftVersion(t, env.blog.ID, "")
	_, err := env.machine.SubmitForReview(v.ID, env.writer.ID)
	require.NoError(t, err)

	_, err = env.machine.Approve(v.ID, env.reviewer.ID, goodRationale, "")
	require.Error(t, err)
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))
	assert.Contains(t, err.Error(), "co-signature")

	// A writer cannot co-sign.
	_, err = env.machine.Approve(v.ID, env.reviewer.ID, goodRationale, env.writer.ID)
	require.Error(t, err)
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))

	// A human admin can.
	approval, err := env.machine.Approve(v.ID, env.reviewer.ID, goodRationale, env.admin.ID)
	require.NoError(t, err)
	assert.Contains(t, approval.Notes, "co-signed by admin@example.com")
}

func TestReject_IsTerminal(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")
	env.inReview(t, v)

	require.NoError(t, env.machine.Reject(v.ID, env.reviewer.ID, "Structure is missing and claims lack sources."))

	state, err := env.store.GetReviewState(v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateRejected, state.State)

	_, err = env.machine.Approve(v.ID, env.reviewer.ID, goodRationale, "")
	require.Error(t, err)
	assert.Equal(t, fault.InvalidState, fault.KindOf(err))
}

func TestReject_StreakEscalates(t *testing.T) {
	cfg := testConfig()
	cfg.MinReviewDurationSeconds = 0
	cfg.MaxRejectionsPerReviewer = 2
	env := newReviewEnv(t, cfg)

	v1 := env.draftVersion(t, env.blog.ID, "")
	_, err := env.machine.SubmitForReview(v1.ID, env.writer.ID)
	require.NoError(t, err)
	require.NoError(t, env.machine.Reject(v1.ID, env.reviewer.ID, "First pass misses the point entirely."))

	escalated, err := env.store.IsEscalated(env.blog.ID)
	require.NoError(t, err)
	assert.False(t, escalated, "one rejection is not a streak")

	v2 := env.draftVersion(t, env.blog.ID, v1.ID)
	_, err = env.machine.SubmitForReview(v2.ID, env.writer.ID)
	require.NoError(t, err)
	require.NoError(t, env.machine.Reject(v2.ID, env.reviewer.ID, "Second pass still misses the point."))

	escalated, err = env.store.IsEscalated(env.blog.ID)
	require.NoError(t, err)
	assert.True(t, escalated)
}

func TestOverride(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")
	_, err := env.machine.SubmitForReview(v.ID, env.writer.ID)
	require.NoError(t, err)

	// No timer wait needed, but only an admin may take this path.
	_, err = env.machine.Override(v.ID, env.reviewer.ID, "launch deadline", "risk accepted by VP")
	require.Error(t, err)
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))

	_, err = env.machine.Override(v.ID, env.admin.ID, "launch deadline", "")
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	approval, err := env.machine.Override(v.ID, env.admin.ID, "launch deadline", "risk accepted by VP")
	require.NoError(t, err)
	assert.Contains(t, approval.Notes, "override")

	state, err := env.store.GetReviewState(v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateApproved, state.State)

	actions, err := env.store.ReviewActions(v.ID)
	require.NoError(t, err)
	var override *store.ReviewAction
	for _, a := range actions {
		if a.IsOverride {
			override = a
		}
	}
	require.NotNil(t, override)
	assert.Contains(t, override.Comments, "risk acceptance: risk accepted by VP")
}

func TestOverride_TerminalStateRefused(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")
	env.inReview(t, v)

	_, err := env.machine.Approve(v.ID, env.reviewer.ID, goodRationale, "")
	require.NoError(t, err)

	_, err = env.machine.Override(v.ID, env.admin.ID, "second thoughts", "noted")
	require.Error(t, err)
	assert.Equal(t, fault.InvalidState, fault.KindOf(err))
}

func TestEditDuringReview(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")
	env.inReview(t, v)

	edited, err := env.machine.EditDuringReview(v.ID, env.writer.ID, "A corrected body with the fix applied.", "fixed the broken example")
	require.NoError(t, err)
	assert.Equal(t, store.SourceHumanEdit, edited.Source)
	assert.Equal(t, v.ID, edited.ParentVersionID)

	editedState, err := env.store.GetReviewState(edited.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateDraft, editedState.State)

	// The in-review original is untouched.
	originalState, err := env.store.GetReviewState(v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateInReview, originalState.State)
}

func TestEditDuringReview_RequiresInReview(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")

	_, err := env.machine.EditDuringReview(v.ID, env.writer.ID, "New body.", "")
	require.Error(t, err)
	assert.Equal(t, fault.InvalidState, fault.KindOf(err))
}

func TestArchiveStale(t *testing.T) {
	env := newReviewEnv(t, testConfig())
	v := env.draftVersion(t, env.blog.ID, "")
	_, err := env.machine.SubmitForReview(v.ID, env.writer.ID)
	require.NoError(t, err)

	archived, err := env.machine.ArchiveStale()
	require.NoError(t, err)
	assert.Empty(t, archived, "a fresh review is not stale")

	env.machine.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	archived, err = env.machine.ArchiveStale()
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, store.StateArchived, archived[0].State)

	state, err := env.store.GetReviewState(v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateArchived, state.State)
}
