// Package review implements the human review state machine: submit, approve,
// reject, admin override, edits during review, and the stale-review sweep.
// Every gate that protects an approval lives here or lower; nothing above
// this package can mint one.
package review

import (
	"fmt"
	"strings"
	"time"

	"redline/internal/config"
	"redline/internal/fault"
	"redline/internal/logging"
	"redline/internal/store"
)

// MinRationaleLength is the minimum length of an approve/reject rationale.
const MinRationaleLength = 20

// Machine drives per-version review transitions.
type Machine struct {
	store *store.ContentStore
	cfg   config.ReviewConfig

	// now is swappable so tests can move the review clock.
	now func() time.Time
}

// NewMachine builds the state machine.
func NewMachine(s *store.ContentStore, cfg config.ReviewConfig) *Machine {
	return &Machine{store: s, cfg: cfg, now: time.Now}
}

// legal transitions. Terminal states have no outgoing edges; a rejected or
// archived version is edited by appending a new version, never by reviving
// the old one.
var transitions = map[string][]string{
	store.StateDraft:    {store.StateInReview},
	store.StateInReview: {store.StateApproved, store.StateRejected, store.StateArchived},
}

func canTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SubmitForReview moves a DRAFT version into IN_REVIEW and starts its review
// clock. The per-blog review cycle cap is enforced here: a blog bouncing
// between draft and review more than the cap allows is escalated instead of
// looping forever.
func (m *Machine) SubmitForReview(versionID, actorID string) (*store.ReviewState, error) {
	version, err := m.store.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	if _, err := m.store.GetActor(actorID); err != nil {
		return nil, err
	}
	state, err := m.store.GetReviewState(versionID)
	if err != nil {
		return nil, err
	}
	if !canTransition(state.State, store.StateInReview) {
		return nil, fault.New(fault.InvalidState,
			"version %s is %s; only DRAFT versions can be submitted for review", versionID, state.State)
	}

	submits, err := m.store.CountSubmitEvents(version.BlogID)
	if err != nil {
		return nil, err
	}
	if submits >= m.cfg.MaxReviewCyclesPerBlog {
		if _, err := m.store.OpenEscalation(version.BlogID, versionID, store.EscalationAmbiguity,
			fmt.Sprintf(`{"submit_events": %d, "cap": %d}`, submits, m.cfg.MaxReviewCyclesPerBlog)); err != nil {
			return nil, err
		}
		return nil, fault.New(fault.CapExceeded,
			"blog %s has been submitted for review %d times; cap is %d",
			version.BlogID, submits, m.cfg.MaxReviewCyclesPerBlog)
	}

	if _, err := m.store.LogReviewAction(versionID, actorID, store.ActionSubmitForReview, "", false); err != nil {
		return nil, err
	}
	updated, err := m.store.SetReviewState(versionID, store.StateInReview)
	if err != nil {
		return nil, err
	}
	logging.Review("Version %s submitted for review by %s", versionID, actorID)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditReviewStarted,
		ActorID:   actorID,
		BlogID:    version.BlogID,
		VersionID: versionID,
		Success:   true,
	})
	return updated, nil
}

// Approve records a human approval of an IN_REVIEW version.
//
// The gates run in a fixed order and every failure is logged as an
// ApprovalAttempt: humanity, state, review timer, rationale, rubber-stamp
// detection, and the co-signature gate for reviewers on a fast-approval
// streak.
func (m *Machine) Approve(versionID, reviewerID, rationale, cosignerID string) (*store.ApprovalState, error) {
	version, err := m.store.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	reviewer, err := m.store.GetActor(reviewerID)
	if err != nil {
		return nil, err
	}
	if !reviewer.IsHuman {
		// RecordApproval would refuse this too; failing here keeps the
		// attempt log's failure reason aligned with the gate order.
		if err := m.store.LogApprovalAttempt(version.BlogID, reviewerID, store.AttemptForbidden, "non-human actor"); err != nil {
			return nil, err
		}
		return nil, fault.New(fault.Forbidden, "actor %s is not human; approvals require a human reviewer", reviewerID)
	}

	if err := m.gateStateAndTimer(version, reviewerID); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(rationale)) < MinRationaleLength {
		return nil, fault.New(fault.Validation,
			"approval rationale must be at least %d characters", MinRationaleLength)
	}

	now := m.now()
	notes := rationale
	fast := now.Sub(version.CreatedAt) < m.cfg.FastApprovalThreshold()
	if fast {
		notes = store.FastApprovalNote + ": " + rationale
		logging.Review("Fast approval flagged: version %s approved %.0fs after creation",
			versionID, now.Sub(version.CreatedAt).Seconds())
		logging.Audit(logging.AuditEvent{
			EventType: logging.AuditFastApproval,
			ActorID:   reviewerID,
			BlogID:    version.BlogID,
			VersionID: versionID,
			Success:   true,
			Reason:    fmt.Sprintf("approved %.0fs after creation", now.Sub(version.CreatedAt).Seconds()),
		})
	}

	fastCount, err := m.store.CountFastApprovals(reviewerID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	if fastCount >= m.cfg.CosignFastApprovalLimit {
		if cosignerID == "" {
			if err := m.store.LogApprovalAttempt(version.BlogID, reviewerID, store.AttemptForbidden, "cosign_required"); err != nil {
				return nil, err
			}
			return nil, fault.New(fault.Forbidden,
				"reviewer %s has %d fast approvals in 24h; a co-signature from an admin is required",
				reviewerID, fastCount)
		}
		cosigner, err := m.store.GetActor(cosignerID)
		if err != nil {
			return nil, err
		}
		if !cosigner.IsHuman || cosigner.Role != store.RoleAdmin {
			if err := m.store.LogApprovalAttempt(version.BlogID, reviewerID, store.AttemptForbidden, "cosign_required"); err != nil {
				return nil, err
			}
			return nil, fault.New(fault.Forbidden, "co-signer %s must be a human admin", cosignerID)
		}
		notes += " (co-signed by " + cosigner.Email + ")"
	}

	approval, err := m.store.RecordApproval(store.RecordApprovalParams{
		BlogID:     version.BlogID,
		VersionID:  versionID,
		ApproverID: reviewerID,
		Notes:      notes,
	})
	if err != nil {
		return nil, err
	}
	if _, err := m.store.LogReviewAction(versionID, reviewerID, store.ActionApprove, rationale, false); err != nil {
		return nil, err
	}
	if _, err := m.store.SetReviewState(versionID, store.StateApproved); err != nil {
		return nil, err
	}
	logging.Review("Version %s approved by %s", versionID, reviewerID)
	return approval, nil
}

// Reject records a terminal rejection. A reviewer who keeps rejecting the
// same blog's work gets escalated for reassignment instead of silently
// blocking the pipeline.
func (m *Machine) Reject(versionID, reviewerID, rationale string) error {
	version, err := m.store.GetVersion(versionID)
	if err != nil {
		return err
	}
	reviewer, err := m.store.GetActor(reviewerID)
	if err != nil {
		return err
	}
	if !reviewer.IsHuman {
		if err := m.store.LogApprovalAttempt(version.BlogID, reviewerID, store.AttemptForbidden, "non-human actor"); err != nil {
			return err
		}
		return fault.New(fault.Forbidden, "actor %s is not human; rejections require a human reviewer", reviewerID)
	}
	if err := m.gateStateAndTimer(version, reviewerID); err != nil {
		return err
	}
	if len(strings.TrimSpace(rationale)) < MinRationaleLength {
		return fault.New(fault.Validation,
			"rejection rationale must be at least %d characters", MinRationaleLength)
	}

	if _, err := m.store.LogReviewAction(versionID, reviewerID, store.ActionReject, rationale, false); err != nil {
		return err
	}
	if _, err := m.store.SetReviewState(versionID, store.StateRejected); err != nil {
		return err
	}
	logging.Review("Version %s rejected by %s", versionID, reviewerID)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditReviewAction,
		ActorID:   reviewerID,
		BlogID:    version.BlogID,
		VersionID: versionID,
		Success:   true,
		Reason:    store.ActionReject,
	})

	window := time.Duration(m.cfg.RejectionWindowDays) * 24 * time.Hour
	rejections, err := m.store.CountRejectionsByReviewer(reviewerID, m.now().Add(-window))
	if err != nil {
		return err
	}
	if rejections >= m.cfg.MaxRejectionsPerReviewer {
		if _, err := m.store.OpenEscalation(version.BlogID, versionID, store.EscalationAmbiguity,
			fmt.Sprintf(`{"reviewer_id": %q, "rejections": %d, "window_days": %d}`,
				reviewerID, rejections, m.cfg.RejectionWindowDays)); err != nil {
			return err
		}
		logging.Review("Reviewer %s has %d rejections in %d days; escalated for reassignment",
			reviewerID, rejections, m.cfg.RejectionWindowDays)
	}
	return nil
}

// Override approves outside the normal gates. Admins only, and both the
// justification and the risk acceptance note are required and preserved
// verbatim in the action log.
func (m *Machine) Override(versionID, adminID, justification, riskAcceptanceNote string) (*store.ApprovalState, error) {
	version, err := m.store.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	admin, err := m.store.GetActor(adminID)
	if err != nil {
		return nil, err
	}
	if !admin.IsHuman || admin.Role != store.RoleAdmin {
		if err := m.store.LogApprovalAttempt(version.BlogID, adminID, store.AttemptForbidden, "override requires a human admin"); err != nil {
			return nil, err
		}
		return nil, fault.New(fault.Forbidden, "override requires a human admin, got role %q", admin.Role)
	}
	if strings.TrimSpace(justification) == "" || strings.TrimSpace(riskAcceptanceNote) == "" {
		return nil, fault.New(fault.Validation, "override requires a justification and a risk acceptance note")
	}
	state, err := m.store.GetReviewState(versionID)
	if err != nil {
		return nil, err
	}
	if state.State == store.StateApproved || state.State == store.StateRejected || state.State == store.StateArchived {
		if err := m.store.LogApprovalAttempt(version.BlogID, adminID, store.AttemptInvalidState, "terminal state "+state.State); err != nil {
			return nil, err
		}
		return nil, fault.New(fault.InvalidState, "version %s is %s; terminal states cannot be overridden", versionID, state.State)
	}

	comments := "justification: " + justification + "\nrisk acceptance: " + riskAcceptanceNote
	if _, err := m.store.LogReviewAction(versionID, adminID, store.ActionApprove, comments, true); err != nil {
		return nil, err
	}
	approval, err := m.store.RecordApproval(store.RecordApprovalParams{
		BlogID:     version.BlogID,
		VersionID:  versionID,
		ApproverID: adminID,
		Notes:      "override: " + justification,
	})
	if err != nil {
		return nil, err
	}
	if _, err := m.store.SetReviewState(versionID, store.StateApproved); err != nil {
		return nil, err
	}
	logging.Review("Version %s approved by admin override (%s)", versionID, adminID)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditOverride,
		ActorID:   adminID,
		BlogID:    version.BlogID,
		VersionID: versionID,
		Success:   true,
		Reason:    justification,
	})
	return approval, nil
}

// EditDuringReview appends a corrected version while the original sits
// IN_REVIEW. The original's state is untouched; the new version starts its
// own review clock at DRAFT.
func (m *Machine) EditDuringReview(versionID, actorID, content, changeReason string) (*store.Version, error) {
	state, err := m.store.GetReviewState(versionID)
	if err != nil {
		return nil, err
	}
	if state.State != store.StateInReview {
		return nil, fault.New(fault.InvalidState,
			"version %s is %s; in-review edits only apply to IN_REVIEW versions", versionID, state.State)
	}
	version, err := m.store.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	return m.store.AppendVersion(store.AppendVersionParams{
		BlogID:          version.BlogID,
		ParentVersionID: versionID,
		Content:         content,
		Source:          store.SourceHumanEdit,
		ChangeReason:    changeReason,
		CreatedBy:       actorID,
	})
}

// ArchiveStale archives every version that has sat IN_REVIEW longer than the
// configured limit. Returns the archived states.
func (m *Machine) ArchiveStale() ([]*store.ReviewState, error) {
	cutoff := m.now().Add(-time.Duration(m.cfg.StaleReviewDays) * 24 * time.Hour)
	stale, err := m.store.ListStaleInReview(cutoff)
	if err != nil {
		return nil, err
	}
	archived := make([]*store.ReviewState, 0, len(stale))
	for _, s := range stale {
		updated, err := m.store.SetReviewState(s.VersionID, store.StateArchived)
		if err != nil {
			return archived, err
		}
		logging.Review("Version %s auto-archived after %d days in review", s.VersionID, m.cfg.StaleReviewDays)
		logging.Audit(logging.AuditEvent{
			EventType: logging.AuditAutoArchive,
			BlogID:    s.BlogID,
			VersionID: s.VersionID,
			Success:   true,
			Reason:    fmt.Sprintf("in review longer than %d days", m.cfg.StaleReviewDays),
		})
		archived = append(archived, updated)
	}
	return archived, nil
}

// gateStateAndTimer enforces the IN_REVIEW requirement and the minimum
// review duration for approve and reject.
func (m *Machine) gateStateAndTimer(version *store.Version, reviewerID string) error {
	state, err := m.store.GetReviewState(version.ID)
	if err != nil {
		return err
	}
	if state.State != store.StateInReview {
		if err := m.store.LogApprovalAttempt(version.BlogID, reviewerID, store.AttemptInvalidState, "state "+state.State); err != nil {
			return err
		}
		return fault.New(fault.InvalidState,
			"version %s is %s; approve and reject require IN_REVIEW", version.ID, state.State)
	}
	if state.ReviewStartedAt == nil {
		return fault.New(fault.Internal, "version %s is IN_REVIEW without a review clock", version.ID)
	}
	elapsed := m.now().Sub(*state.ReviewStartedAt)
	if min := m.cfg.MinReviewDuration(); elapsed < min {
		remaining := int((min - elapsed).Seconds() + 0.5)
		if err := m.store.LogApprovalAttempt(version.BlogID, reviewerID, store.AttemptInvalidState, "timer"); err != nil {
			return err
		}
		return fault.New(fault.InvalidState,
			"review timer has not elapsed; %d seconds remaining", remaining)
	}
	return nil
}
