package store

// Schema for the content quality database. Write-once semantics are enforced
// at the storage layer with triggers: application bugs cannot silently mutate
// audit rows, and the guarantees hold for any process sharing the file.

const schemaSQL = `
CREATE TABLE IF NOT EXISTS actors (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	role       TEXT NOT NULL DEFAULT 'writer'
		CHECK (role IN ('writer', 'reviewer', 'admin', 'system')),
	is_human   INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	CHECK (role != 'system' OR is_human = 0)
);

CREATE TABLE IF NOT EXISTS blogs (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	project_id TEXT,
	created_by TEXT NOT NULL REFERENCES actors(id),
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_blogs_created_by ON blogs(created_by);

CREATE TABLE IF NOT EXISTS blog_versions (
	id                      TEXT PRIMARY KEY,
	blog_id                 TEXT NOT NULL REFERENCES blogs(id),
	parent_version_id       TEXT REFERENCES blog_versions(id),
	content                 TEXT NOT NULL,
	content_hash            TEXT NOT NULL,
	version_number          INTEGER NOT NULL,
	source                  TEXT NOT NULL DEFAULT 'human_paste'
		CHECK (source IN ('human_paste', 'ai_rewrite', 'human_edit')),
	source_rewrite_cycle_id TEXT,
	change_reason           TEXT,
	created_by              TEXT NOT NULL REFERENCES actors(id),
	created_at              TEXT NOT NULL,
	UNIQUE (blog_id, version_number)
);
CREATE INDEX IF NOT EXISTS idx_blog_versions_blog ON blog_versions(blog_id);
CREATE INDEX IF NOT EXISTS idx_blog_versions_parent ON blog_versions(parent_version_id);

CREATE TABLE IF NOT EXISTS evaluation_runs (
	id              TEXT PRIMARY KEY,
	blog_version_id TEXT NOT NULL REFERENCES blog_versions(id),
	run_at          TEXT NOT NULL,
	triggered_by    TEXT REFERENCES actors(id),
	model_config    TEXT,
	status          TEXT NOT NULL DEFAULT 'processing'
		CHECK (status IN ('processing', 'completed', 'partial_failure', 'failed')),
	completed_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_eval_runs_version ON evaluation_runs(blog_version_id);

CREATE TABLE IF NOT EXISTS ai_detector_scores (
	id       TEXT PRIMARY KEY,
	run_id   TEXT NOT NULL REFERENCES evaluation_runs(id),
	provider TEXT NOT NULL,
	score    REAL NOT NULL CHECK (score >= 0 AND score <= 100),
	details  TEXT,
	UNIQUE (run_id, provider)
);
CREATE INDEX IF NOT EXISTS idx_detector_scores_run ON ai_detector_scores(run_id);

CREATE TABLE IF NOT EXISTS aeo_scores (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES evaluation_runs(id),
	query_intent TEXT NOT NULL,
	score        REAL NOT NULL CHECK (score >= 0 AND score <= 100),
	rationale    TEXT,
	details      TEXT,
	UNIQUE (run_id, query_intent)
);
CREATE INDEX IF NOT EXISTS idx_aeo_scores_run ON aeo_scores(run_id);

CREATE TABLE IF NOT EXISTS rewrite_cycles (
	id                TEXT PRIMARY KEY,
	parent_version_id TEXT NOT NULL REFERENCES blog_versions(id),
	child_version_id  TEXT REFERENCES blog_versions(id),
	cycle_number      INTEGER NOT NULL,
	trigger_reasons   TEXT NOT NULL,
	trigger_data      TEXT,
	rewrite_prompt    TEXT NOT NULL,
	parent_scores     TEXT,
	child_scores      TEXT,
	trend_outcome     TEXT
		CHECK (trend_outcome IS NULL OR trend_outcome IN
			('improving', 'partial_improvement', 'stagnant', 'regressing')),
	trend_code        INTEGER,
	rewrite_status    TEXT NOT NULL DEFAULT 'pending'
		CHECK (rewrite_status IN ('pending', 'completed', 'terminal')),
	stop_reason       TEXT,
	created_at        TEXT NOT NULL,
	UNIQUE (parent_version_id, cycle_number)
);
CREATE INDEX IF NOT EXISTS idx_rewrite_cycles_parent ON rewrite_cycles(parent_version_id);

CREATE TABLE IF NOT EXISTS approval_states (
	id                  TEXT PRIMARY KEY,
	blog_id             TEXT NOT NULL REFERENCES blogs(id),
	approved_version_id TEXT NOT NULL REFERENCES blog_versions(id),
	approver_id         TEXT NOT NULL REFERENCES actors(id),
	approved_at         TEXT NOT NULL,
	revoked_at          TEXT,
	revoked_by          TEXT REFERENCES actors(id),
	revocation_reason   TEXT,
	notes               TEXT
);
CREATE INDEX IF NOT EXISTS idx_approval_states_blog ON approval_states(blog_id);

CREATE TABLE IF NOT EXISTS approval_attempts (
	id             TEXT PRIMARY KEY,
	blog_id        TEXT NOT NULL REFERENCES blogs(id),
	attempted_by   TEXT NOT NULL REFERENCES actors(id),
	is_human       INTEGER NOT NULL,
	result         TEXT NOT NULL
		CHECK (result IN ('success', 'forbidden', 'invalid_state', 'invalid_version')),
	attempted_at   TEXT NOT NULL,
	failure_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_approval_attempts_blog ON approval_attempts(blog_id);
CREATE INDEX IF NOT EXISTS idx_approval_attempts_actor ON approval_attempts(attempted_by);

CREATE TABLE IF NOT EXISTS human_review_actions (
	id              TEXT PRIMARY KEY,
	blog_version_id TEXT NOT NULL REFERENCES blog_versions(id),
	reviewer_id     TEXT NOT NULL REFERENCES actors(id),
	action          TEXT NOT NULL
		CHECK (action IN ('APPROVE', 'REJECT', 'COMMENT', 'REQUEST_CHANGES',
			'APPROVE_INTENT', 'SUBMIT_FOR_REVIEW')),
	comments        TEXT,
	is_override     INTEGER NOT NULL DEFAULT 0,
	performed_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_review_actions_version ON human_review_actions(blog_version_id);
CREATE INDEX IF NOT EXISTS idx_review_actions_reviewer ON human_review_actions(reviewer_id);

CREATE TABLE IF NOT EXISTS review_states (
	version_id        TEXT PRIMARY KEY REFERENCES blog_versions(id),
	blog_id           TEXT NOT NULL REFERENCES blogs(id),
	state             TEXT NOT NULL DEFAULT 'DRAFT'
		CHECK (state IN ('DRAFT', 'IN_REVIEW', 'APPROVED', 'REJECTED', 'ARCHIVED')),
	review_started_at TEXT,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_review_states_blog ON review_states(blog_id);

CREATE TABLE IF NOT EXISTS escalations (
	id          TEXT PRIMARY KEY,
	blog_id     TEXT NOT NULL REFERENCES blogs(id),
	version_id  TEXT NOT NULL REFERENCES blog_versions(id),
	reason      TEXT NOT NULL
		CHECK (reason IN ('score_regression', 'policy_violation', 'ambiguity', 'low_quality')),
	details     TEXT,
	status      TEXT NOT NULL DEFAULT 'pending_review'
		CHECK (status IN ('pending_review', 'resolved', 'dismissed')),
	created_at  TEXT NOT NULL,
	resolved_at TEXT,
	resolved_by TEXT REFERENCES actors(id)
);
CREATE INDEX IF NOT EXISTS idx_escalations_blog ON escalations(blog_id);
CREATE INDEX IF NOT EXISTS idx_escalations_status ON escalations(status);
`

// Write-once and partial-immutability triggers. RAISE(ABORT) surfaces as a
// constraint error at the driver; mapErr turns trigger aborts into internal
// faults because reaching one means application code tried to break an
// invariant.
const triggerSQL = `
-- blog_versions: write-once
CREATE TRIGGER IF NOT EXISTS trg_blog_versions_no_update
BEFORE UPDATE ON blog_versions
BEGIN
	SELECT RAISE(ABORT, 'immutable: blog_versions rows are write-once');
END;
CREATE TRIGGER IF NOT EXISTS trg_blog_versions_no_delete
BEFORE DELETE ON blog_versions
BEGIN
	SELECT RAISE(ABORT, 'immutable: blog_versions rows cannot be deleted');
END;

-- ai_detector_scores: write-once
CREATE TRIGGER IF NOT EXISTS trg_detector_scores_no_update
BEFORE UPDATE ON ai_detector_scores
BEGIN
	SELECT RAISE(ABORT, 'immutable: ai_detector_scores rows are write-once');
END;
CREATE TRIGGER IF NOT EXISTS trg_detector_scores_no_delete
BEFORE DELETE ON ai_detector_scores
BEGIN
	SELECT RAISE(ABORT, 'immutable: ai_detector_scores rows cannot be deleted');
END;

-- aeo_scores: write-once
CREATE TRIGGER IF NOT EXISTS trg_aeo_scores_no_update
BEFORE UPDATE ON aeo_scores
BEGIN
	SELECT RAISE(ABORT, 'immutable: aeo_scores rows are write-once');
END;
CREATE TRIGGER IF NOT EXISTS trg_aeo_scores_no_delete
BEFORE DELETE ON aeo_scores
BEGIN
	SELECT RAISE(ABORT, 'immutable: aeo_scores rows cannot be deleted');
END;

-- human_review_actions: append-only
CREATE TRIGGER IF NOT EXISTS trg_review_actions_no_update
BEFORE UPDATE ON human_review_actions
BEGIN
	SELECT RAISE(ABORT, 'immutable: human_review_actions rows are write-once');
END;
CREATE TRIGGER IF NOT EXISTS trg_review_actions_no_delete
BEFORE DELETE ON human_review_actions
BEGIN
	SELECT RAISE(ABORT, 'immutable: human_review_actions rows cannot be deleted');
END;

-- approval_states: write-once; revocation is modeled as a new row
CREATE TRIGGER IF NOT EXISTS trg_approval_states_no_update
BEFORE UPDATE ON approval_states
BEGIN
	SELECT RAISE(ABORT, 'immutable: approval_states rows are write-once');
END;
CREATE TRIGGER IF NOT EXISTS trg_approval_states_no_delete
BEFORE DELETE ON approval_states
BEGIN
	SELECT RAISE(ABORT, 'immutable: approval_states rows cannot be deleted');
END;

-- approval_attempts: append-only, inserted with final result
CREATE TRIGGER IF NOT EXISTS trg_approval_attempts_no_update
BEFORE UPDATE ON approval_attempts
BEGIN
	SELECT RAISE(ABORT, 'immutable: approval_attempts rows are write-once');
END;
CREATE TRIGGER IF NOT EXISTS trg_approval_attempts_no_delete
BEFORE DELETE ON approval_attempts
BEGIN
	SELECT RAISE(ABORT, 'immutable: approval_attempts rows cannot be deleted');
END;

-- evaluation_runs: partial immutability. Only status and completed_at may
-- change; status only advances from processing; completed_at is write-once.
CREATE TRIGGER IF NOT EXISTS trg_eval_runs_core_immutable
BEFORE UPDATE ON evaluation_runs
WHEN NEW.id IS NOT OLD.id
	OR NEW.blog_version_id IS NOT OLD.blog_version_id
	OR NEW.run_at IS NOT OLD.run_at
	OR NEW.triggered_by IS NOT OLD.triggered_by
	OR NEW.model_config IS NOT OLD.model_config
BEGIN
	SELECT RAISE(ABORT, 'immutable: evaluation_runs core columns cannot change');
END;
CREATE TRIGGER IF NOT EXISTS trg_eval_runs_status_forward
BEFORE UPDATE ON evaluation_runs
WHEN OLD.status != 'processing' AND NEW.status IS NOT OLD.status
BEGIN
	SELECT RAISE(ABORT, 'immutable: evaluation_runs status only advances from processing');
END;
CREATE TRIGGER IF NOT EXISTS trg_eval_runs_completed_once
BEFORE UPDATE ON evaluation_runs
WHEN OLD.completed_at IS NOT NULL AND NEW.completed_at IS NOT OLD.completed_at
BEGIN
	SELECT RAISE(ABORT, 'immutable: evaluation_runs completed_at is write-once');
END;
CREATE TRIGGER IF NOT EXISTS trg_eval_runs_no_delete
BEFORE DELETE ON evaluation_runs
BEGIN
	SELECT RAISE(ABORT, 'immutable: evaluation_runs rows cannot be deleted');
END;

-- rewrite_cycles: prompt, triggers, parent linkage and snapshots are
-- write-once; status may only leave pending.
CREATE TRIGGER IF NOT EXISTS trg_rewrite_cycles_core_immutable
BEFORE UPDATE ON rewrite_cycles
WHEN NEW.id IS NOT OLD.id
	OR NEW.parent_version_id IS NOT OLD.parent_version_id
	OR NEW.cycle_number IS NOT OLD.cycle_number
	OR NEW.trigger_reasons IS NOT OLD.trigger_reasons
	OR NEW.trigger_data IS NOT OLD.trigger_data
	OR NEW.rewrite_prompt IS NOT OLD.rewrite_prompt
	OR NEW.parent_scores IS NOT OLD.parent_scores
	OR NEW.created_at IS NOT OLD.created_at
BEGIN
	SELECT RAISE(ABORT, 'immutable: rewrite_cycles core columns cannot change');
END;
CREATE TRIGGER IF NOT EXISTS trg_rewrite_cycles_status_forward
BEFORE UPDATE ON rewrite_cycles
WHEN OLD.rewrite_status != 'pending' AND NEW.rewrite_status IS NOT OLD.rewrite_status
BEGIN
	SELECT RAISE(ABORT, 'immutable: rewrite_cycles status only advances from pending');
END;
CREATE TRIGGER IF NOT EXISTS trg_rewrite_cycles_no_delete
BEFORE DELETE ON rewrite_cycles
BEGIN
	SELECT RAISE(ABORT, 'immutable: rewrite_cycles rows cannot be deleted');
END;

-- escalations: identity and reason are immutable; resolution fields may be
-- set once.
CREATE TRIGGER IF NOT EXISTS trg_escalations_core_immutable
BEFORE UPDATE ON escalations
WHEN NEW.id IS NOT OLD.id
	OR NEW.blog_id IS NOT OLD.blog_id
	OR NEW.version_id IS NOT OLD.version_id
	OR NEW.reason IS NOT OLD.reason
	OR NEW.details IS NOT OLD.details
	OR NEW.created_at IS NOT OLD.created_at
BEGIN
	SELECT RAISE(ABORT, 'immutable: escalations core columns cannot change');
END;
CREATE TRIGGER IF NOT EXISTS trg_escalations_no_delete
BEFORE DELETE ON escalations
BEGIN
	SELECT RAISE(ABORT, 'immutable: escalations rows cannot be deleted');
END;
`

// initialize creates tables and triggers. Idempotent.
func (s *ContentStore) initialize() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return err
	}
	if _, err := s.db.Exec(triggerSQL); err != nil {
		return err
	}
	return nil
}
