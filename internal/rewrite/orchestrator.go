package rewrite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"redline/internal/config"
	"redline/internal/evaluation"
	"redline/internal/fault"
	"redline/internal/logging"
	"redline/internal/store"
	"redline/internal/workflow"
)

// Decision actions.
const (
	ActionNoRewriteRequired = "no_rewrite_required"
	ActionStopped           = "stopped"
	ActionRewritten         = "rewritten"
)

// Decision is the outcome of one orchestration request.
type Decision struct {
	Action   string
	Reason   string // stop reason when Action is stopped
	Triggers []Trigger
	Cycle    *store.RewriteCycle // set when a cycle was opened
}

// Orchestrator drives rewrite cycles end to end.
type Orchestrator struct {
	store    *store.ContentStore
	pipeline *evaluation.Pipeline
	rewriter Rewriter
	runner   *workflow.Runner
	cfg      config.RewriteConfig
	wf       config.WorkflowConfig
}

// New wires the orchestrator.
func New(s *store.ContentStore, p *evaluation.Pipeline, rw Rewriter,
	runner *workflow.Runner, cfg config.RewriteConfig, wf config.WorkflowConfig) *Orchestrator {
	return &Orchestrator{store: s, pipeline: p, rewriter: rw, runner: runner, cfg: cfg, wf: wf}
}

// snapshot is the aggregate score record frozen onto cycle rows.
type snapshot struct {
	RunID    string             `json:"run_id"`
	AITotal  *float64           `json:"ai_likeness_total,omitempty"`
	AEOTotal *float64           `json:"aeo_total,omitempty"`
	Pillars  map[string]float64 `json:"pillars,omitempty"`
}

func snapshotOf(agg *evaluation.Aggregate) snapshot {
	s := snapshot{RunID: agg.RunID, AITotal: agg.AIScore, AEOTotal: agg.AEOScore}
	if len(agg.Pillars) > 0 {
		s.Pillars = make(map[string]float64, len(agg.Pillars))
		for key, p := range agg.Pillars {
			s.Pillars[key] = p.Score
		}
	}
	return s
}

// Orchestrate runs one bounded rewrite cycle for the given parent version.
//
// The sequence is deterministic except for the Rewriter call: evaluate
// triggers, re-check approval and caps inside the task, freeze the prompt on
// a pending cycle row, call the Rewriter, append the child version, evaluate
// it, and classify the trend. Every refusal and stop is audited.
func (o *Orchestrator) Orchestrate(ctx context.Context, versionID, actorID string) (*Decision, error) {
	timer := logging.StartTimer(logging.CategoryRewrite, "Orchestrate")
	defer timer.Stop()

	parent, err := o.store.GetVersion(versionID)
	if err != nil {
		return nil, err
	}
	run, err := o.store.LatestCompletedRunForVersion(versionID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fault.New(fault.Validation,
			"version %s has never been evaluated; run an evaluation first", versionID)
	}
	parentAgg, err := o.pipeline.AggregateRun(run.ID)
	if err != nil {
		return nil, err
	}

	triggers, err := EvaluateTriggers(parentAgg)
	if err != nil {
		return nil, err
	}
	if len(triggers) == 0 {
		logging.Rewrite("No rewrite required for version %s (run %s)", versionID, run.ID)
		o.auditDecision(parent, actorID, ActionNoRewriteRequired, "")
		return &Decision{Action: ActionNoRewriteRequired}, nil
	}

	// An open escalation is an automation hard-stop: a human has to resolve
	// it before any further machine-driven change to the blog.
	escalated, err := o.store.IsEscalated(parent.BlogID)
	if err != nil {
		return nil, err
	}
	if escalated {
		return nil, fault.New(fault.InvalidState,
			"blog %s has an open escalation; resolve it before rewriting", parent.BlogID)
	}

	// TOCTOU re-check: the blog may have been approved while this request
	// was queued. The refusal leaves a terminal cycle row so the audit trail
	// shows why the fired triggers produced no child.
	if approval, err := o.store.CurrentApproval(parent.BlogID); err != nil {
		return nil, err
	} else if approval != nil {
		o.recordRefusedCycle(parent, actorID, triggers, parentAgg, StopApprovedContent)
		o.auditDecision(parent, actorID, "refused", "blog is approved")
		return nil, fault.New(fault.ApprovedContent,
			"blog %s is approved at version %s; rewrites are frozen",
			parent.BlogID, approval.ApprovedVersionID)
	}

	// Cap re-check inside the task, in case of direct invocation.
	blogCycles, err := o.store.CycleCountForBlog(parent.BlogID)
	if err != nil {
		return nil, err
	}
	if blogCycles >= o.cfg.MaxCyclesPerBlog {
		o.recordRefusedCycle(parent, actorID, triggers, parentAgg, StopMaxCycles)
		return nil, fault.New(fault.CapExceeded,
			"blog %s has %d rewrite cycles; cap is %d", parent.BlogID, blogCycles, o.cfg.MaxCyclesPerBlog)
	}

	maxCycle, err := o.store.MaxCycleNumber(versionID)
	if err != nil {
		return nil, err
	}
	if maxCycle >= o.cfg.MaxCyclesPerParent {
		o.recordRefusedCycle(parent, actorID, triggers, parentAgg, StopMaxCycles)
		return nil, fault.New(fault.CapExceeded,
			"parent %s already has cycle %d; per-parent cap is %d",
			versionID, maxCycle, o.cfg.MaxCyclesPerParent)
	}

	if stop, err := o.loopBreaker(parent.BlogID); err != nil {
		return nil, err
	} else if stop != "" {
		logging.Rewrite("Rewrite stopped for blog %s: %s", parent.BlogID, stop)
		logging.Audit(logging.AuditEvent{
			EventType: logging.AuditRewriteStopped,
			ActorID:   actorID,
			BlogID:    parent.BlogID,
			VersionID: versionID,
			Success:   true,
			Reason:    stop,
		})
		return &Decision{Action: ActionStopped, Reason: stop, Triggers: triggers}, nil
	}

	// Only one cycle in flight per parent.
	existing, err := o.store.CyclesForParent(versionID)
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if c.RewriteStatus == store.CyclePending {
			return nil, fault.New(fault.Conflict,
				"parent %s already has pending cycle %s", versionID, c.ID)
		}
	}

	prompt := BuildPrompt(parent.Content, triggers, parentAgg.Pillars)
	triggerIDs := make([]string, len(triggers))
	for i, t := range triggers {
		triggerIDs[i] = t.ID
	}
	reasonsJSON, _ := json.Marshal(triggerIDs)
	dataJSON, _ := json.Marshal(triggers)
	parentJSON, _ := json.Marshal(snapshotOf(parentAgg))

	cycle, err := o.store.InsertRewriteCycle(store.InsertRewriteCycleParams{
		ParentVersionID: versionID,
		CycleNumber:     maxCycle + 1,
		TriggerReasons:  string(reasonsJSON),
		TriggerData:     string(dataJSON),
		RewritePrompt:   prompt,
		ParentScores:    string(parentJSON),
	})
	if err != nil {
		return nil, err
	}
	logging.Rewrite("Cycle %s opened for version %s (cycle %d, triggers %v)",
		cycle.ID, versionID, cycle.CycleNumber, triggerIDs)

	rewritten, err := o.generate(ctx, prompt)
	if err != nil {
		stop := StopRewriterError
		if fault.IsKind(err, fault.Timeout) {
			stop = StopTimeout
		}
		if termErr := o.store.MarkCycleTerminal(cycle.ID, stop); termErr != nil {
			logging.Rewrite("Failed to mark cycle %s terminal: %v", cycle.ID, termErr)
		}
		o.auditCycle(parent, actorID, cycle.ID, false, stop)
		return nil, err
	}

	child, err := o.store.AppendVersion(store.AppendVersionParams{
		BlogID:               parent.BlogID,
		ParentVersionID:      versionID,
		Content:              rewritten,
		Source:               store.SourceAIRewrite,
		SourceRewriteCycleID: cycle.ID,
		ChangeReason:         fmt.Sprintf("automated rewrite, cycle %d: %s", cycle.CycleNumber, strings.Join(triggerIDs, ", ")),
		CreatedBy:            actorID,
	})
	if err != nil {
		if termErr := o.store.MarkCycleTerminal(cycle.ID, StopRewriterError); termErr != nil {
			logging.Rewrite("Failed to mark cycle %s terminal: %v", cycle.ID, termErr)
		}
		return nil, err
	}

	childRun, err := o.pipeline.Evaluate(ctx, child.ID, actorID)
	if err != nil {
		if termErr := o.store.MarkCycleTerminal(cycle.ID, StopEvaluationFailed); termErr != nil {
			logging.Rewrite("Failed to mark cycle %s terminal: %v", cycle.ID, termErr)
		}
		return nil, err
	}
	childAgg, err := o.pipeline.AggregateRun(childRun.ID)
	if err != nil {
		return nil, err
	}
	childJSON, _ := json.Marshal(snapshotOf(childAgg))

	if parentAgg.AEOScore == nil || childAgg.AEOScore == nil ||
		parentAgg.AIScore == nil || childAgg.AIScore == nil {
		if err := o.store.MarkCycleTerminal(cycle.ID, StopEvaluationFailed); err != nil {
			return nil, err
		}
		o.auditCycle(parent, actorID, cycle.ID, false, StopEvaluationFailed)
		return nil, fault.New(fault.Unavailable,
			"child version %s could not be fully scored; cycle %s is terminal", child.ID, cycle.ID)
	}

	outcome, code := ClassifyTrend(*parentAgg.AEOScore, *childAgg.AEOScore,
		*parentAgg.AIScore, *childAgg.AIScore)
	if err := o.store.CompleteCycle(cycle.ID, child.ID, string(childJSON), outcome, code); err != nil {
		return nil, err
	}
	logging.Rewrite("Cycle %s completed: child %s, trend %s (%d)", cycle.ID, child.ID, outcome, code)
	o.auditCycle(parent, actorID, cycle.ID, true, outcome)

	completed, err := o.store.GetRewriteCycle(cycle.ID)
	if err != nil {
		return nil, err
	}
	return &Decision{Action: ActionRewritten, Triggers: triggers, Cycle: completed}, nil
}

// recordRefusedCycle freezes a terminal cycle row for a refusal that arrived
// after triggers fired. Recording is best-effort: the refusal fault is what
// the caller gets either way.
func (o *Orchestrator) recordRefusedCycle(parent *store.Version, actorID string,
	triggers []Trigger, parentAgg *evaluation.Aggregate, stopReason string) {

	maxCycle, err := o.store.MaxCycleNumber(parent.ID)
	if err != nil {
		logging.Rewrite("Failed to number refused cycle on version %s: %v", parent.ID, err)
		return
	}
	triggerIDs := make([]string, len(triggers))
	for i, t := range triggers {
		triggerIDs[i] = t.ID
	}
	reasonsJSON, _ := json.Marshal(triggerIDs)
	dataJSON, _ := json.Marshal(triggers)
	parentJSON, _ := json.Marshal(snapshotOf(parentAgg))

	cycle, err := o.store.InsertRewriteCycle(store.InsertRewriteCycleParams{
		ParentVersionID: parent.ID,
		CycleNumber:     maxCycle + 1,
		TriggerReasons:  string(reasonsJSON),
		TriggerData:     string(dataJSON),
		RewritePrompt:   BuildPrompt(parent.Content, triggers, parentAgg.Pillars),
		ParentScores:    string(parentJSON),
	})
	if err != nil {
		logging.Rewrite("Failed to record refused cycle on version %s: %v", parent.ID, err)
		return
	}
	if err := o.store.MarkCycleTerminal(cycle.ID, stopReason); err != nil {
		logging.Rewrite("Failed to mark cycle %s terminal: %v", cycle.ID, err)
		return
	}
	o.auditCycle(parent, actorID, cycle.ID, false, stopReason)
}

// generate runs the external call through the runner so it gets the standard
// timeout and single-retry treatment.
func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := o.runner.RunSync(ctx, workflow.Task{
		Kind:       "rewrite:" + o.rewriter.Name(),
		MaxRetries: o.wf.RewriteMaxRetries,
		Timeout:    o.cfg.RewriterTimeout(),
		Run: func(taskCtx context.Context) error {
			text, err := o.rewriter.Generate(taskCtx, prompt)
			if err != nil {
				return err
			}
			if text == "" {
				return fault.New(fault.Unavailable, "rewriter returned empty output")
			}
			out = text
			return nil
		},
	})
	return out, err
}

// loopBreaker inspects the blog's finished cycles and returns a stop reason
// when continuing would be pointless or harmful.
func (o *Orchestrator) loopBreaker(blogID string) (string, error) {
	cycles, err := o.store.CyclesForBlog(blogID)
	if err != nil {
		return "", err
	}
	var finished []*store.RewriteCycle
	for _, c := range cycles {
		if c.RewriteStatus == store.CycleCompleted {
			finished = append(finished, c)
		}
	}
	if len(finished) == 0 {
		return "", nil
	}

	if finished[len(finished)-1].TrendOutcome == TrendRegressing {
		return StopQualityDegradation, nil
	}

	if len(finished) >= o.cfg.StagnantStopCount {
		stagnant := true
		for _, c := range finished[len(finished)-o.cfg.StagnantStopCount:] {
			if c.TrendOutcome != TrendStagnant {
				stagnant = false
				break
			}
		}
		if stagnant {
			return StopNoImprovement, nil
		}
	}

	if len(finished) >= o.cfg.OscillationWindowSize {
		var totals []float64
		for _, c := range finished[len(finished)-o.cfg.OscillationWindowSize:] {
			var snap snapshot
			if err := json.Unmarshal([]byte(c.ChildScores), &snap); err != nil || snap.AEOTotal == nil {
				continue
			}
			totals = append(totals, *snap.AEOTotal)
		}
		if len(totals) == o.cfg.OscillationWindowSize {
			lo, hi := totals[0], totals[0]
			for _, v := range totals[1:] {
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			if hi-lo < o.cfg.OscillationSpan {
				return StopOscillation, nil
			}
		}
	}
	return "", nil
}

func (o *Orchestrator) auditDecision(parent *store.Version, actorID, decision, reason string) {
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditRewriteDecision,
		ActorID:   actorID,
		BlogID:    parent.BlogID,
		VersionID: parent.ID,
		Success:   true,
		Reason:    reason,
		Message:   decision,
	})
}

func (o *Orchestrator) auditCycle(parent *store.Version, actorID, cycleID string, success bool, reason string) {
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditRewriteCycle,
		ActorID:   actorID,
		BlogID:    parent.BlogID,
		VersionID: parent.ID,
		Target:    cycleID,
		Success:   success,
		Reason:    reason,
	})
}
