package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redline/internal/fault"
)

func TestSetReviewState(t *testing.T) {
	s, _, v, _ := runFixture(t)

	rs, err := s.SetReviewState(v.ID, StateInReview)
	require.NoError(t, err)
	assert.Equal(t, StateInReview, rs.State)
	require.NotNil(t, rs.ReviewStartedAt)

	rs, err = s.SetReviewState(v.ID, StateApproved)
	require.NoError(t, err)
	assert.Equal(t, StateApproved, rs.State)
	assert.Nil(t, rs.ReviewStartedAt)
}

func TestLogReviewActionAndCounts(t *testing.T) {
	s, b, v, writer := runFixture(t)
	reviewer := testActor(t, s, "r@example.com", RoleReviewer, true)

	_, err := s.LogReviewAction(v.ID, writer.ID, ActionSubmitForReview, "", false)
	require.NoError(t, err)
	_, err = s.LogReviewAction(v.ID, reviewer.ID, ActionReject, "needs concrete numbers in the intro", false)
	require.NoError(t, err)
	_, err = s.LogReviewAction(v.ID, writer.ID, ActionSubmitForReview, "", false)
	require.NoError(t, err)

	actions, err := s.ReviewActions(v.ID)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, ActionSubmitForReview, actions[0].Action)

	submits, err := s.CountSubmitEvents(b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, submits)

	rejections, err := s.CountRejectionsByReviewer(reviewer.ID, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rejections)

	rejections, err = s.CountRejectionsByReviewer(reviewer.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, rejections)
}

func TestReviewActionsAreAppendOnly(t *testing.T) {
	s, _, v, writer := runFixture(t)
	ra, err := s.LogReviewAction(v.ID, writer.ID, ActionComment, "note", false)
	require.NoError(t, err)

	_, err = s.DB().Exec(`UPDATE human_review_actions SET comments = 'edited' WHERE id = ?`, ra.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")

	_, err = s.DB().Exec(`DELETE FROM human_review_actions WHERE id = ?`, ra.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
}

func TestListStaleInReview(t *testing.T) {
	s, _, v, _ := runFixture(t)
	_, err := s.SetReviewState(v.ID, StateInReview)
	require.NoError(t, err)

	stale, err := s.ListStaleInReview(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = s.ListStaleInReview(time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, v.ID, stale[0].VersionID)
}

func TestEscalationLifecycle(t *testing.T) {
	s, b, v, _ := runFixture(t)
	admin := testActor(t, s, "admin@example.com", RoleAdmin, true)

	escalated, err := s.IsEscalated(b.ID)
	require.NoError(t, err)
	assert.False(t, escalated)

	e, err := s.OpenEscalation(b.ID, v.ID, EscalationScoreRegression, `{"drop":14.2}`)
	require.NoError(t, err)
	assert.Equal(t, EscalationPending, e.Status)

	// Re-detecting the same condition reuses the open row.
	again, err := s.OpenEscalation(b.ID, v.ID, EscalationScoreRegression, `{"drop":15.0}`)
	require.NoError(t, err)
	assert.Equal(t, e.ID, again.ID)

	escalated, err = s.IsEscalated(b.ID)
	require.NoError(t, err)
	assert.True(t, escalated)

	t.Run("non-human cannot resolve", func(t *testing.T) {
		bot, err := s.CreateActor("esc-bot@example.com", RoleSystem, false)
		require.NoError(t, err)
		err = s.ResolveEscalation(e.ID, bot.ID, EscalationResolved)
		require.Error(t, err)
		assert.Equal(t, fault.Forbidden, fault.KindOf(err))
	})

	require.NoError(t, s.ResolveEscalation(e.ID, admin.ID, EscalationResolved))
	escalated, err = s.IsEscalated(b.ID)
	require.NoError(t, err)
	assert.False(t, escalated)

	// Resolution is final.
	err = s.ResolveEscalation(e.ID, admin.ID, EscalationDismissed)
	require.Error(t, err)
	assert.Equal(t, fault.InvalidState, fault.KindOf(err))

	// A new occurrence opens a fresh row.
	e2, err := s.OpenEscalation(b.ID, v.ID, EscalationScoreRegression, "{}")
	require.NoError(t, err)
	assert.NotEqual(t, e.ID, e2.ID)
}

func TestListEscalations(t *testing.T) {
	s, b, v, _ := runFixture(t)
	admin := testActor(t, s, "admin@example.com", RoleAdmin, true)

	e1, err := s.OpenEscalation(b.ID, v.ID, EscalationLowQuality, "")
	require.NoError(t, err)
	_, err = s.OpenEscalation(b.ID, v.ID, EscalationAmbiguity, "")
	require.NoError(t, err)
	require.NoError(t, s.ResolveEscalation(e1.ID, admin.ID, EscalationDismissed))

	pending, err := s.ListEscalations(EscalationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, EscalationAmbiguity, pending[0].Reason)

	all, err := s.ListEscalations("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
