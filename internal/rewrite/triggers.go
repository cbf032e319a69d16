// Package rewrite orchestrates bounded AI rewrite cycles: deterministic
// trigger evaluation over the latest scores, canonical prompt construction,
// one external Rewriter call, trend classification of the child version, and
// loop-breaking so cycles cannot run away.
package rewrite

import (
	"fmt"

	"redline/internal/aeo"
	"redline/internal/evaluation"
	"redline/internal/fault"
	"redline/internal/rubric"
)

// Trigger types.
const (
	TypeAEOTotalLow        = "aeo_total_low"
	TypeAEOPillarCritical  = "aeo_pillar_critical"
	TypeAILikenessHigh     = "ai_likeness_high"
	TypeAICategoryCritical = "ai_category_critical"
)

// Trigger thresholds.
const (
	aeoTotalFloor        = 70.0
	answerabilityFloor   = 15.0
	structureFloor       = 12.0
	aiLikenessCeiling    = 60.0
	categoryCriticalFrac = 0.70
)

// Trigger is one fired rewrite rule.
type Trigger struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// EvaluateTriggers applies the rewrite trigger rules to a run aggregate.
//
// A partial run that is missing either the AEO breakdown or the rubric
// breakdown is refused: a trigger that cannot be evaluated must not fire,
// and silently skipping it would make "no rewrite required" a lie.
func EvaluateTriggers(agg *evaluation.Aggregate) ([]Trigger, error) {
	if agg.AEOScore == nil || len(agg.Pillars) == 0 {
		return nil, fault.New(fault.Validation,
			"run %s has no AEO breakdown; triggers are not evaluable", agg.RunID)
	}
	if agg.AIScore == nil || agg.Rubric == nil {
		return nil, fault.New(fault.Validation,
			"run %s has no AI-likeness breakdown; triggers are not evaluable", agg.RunID)
	}

	var fired []Trigger
	if *agg.AEOScore < aeoTotalFloor {
		fired = append(fired, Trigger{
			ID:     "T1",
			Type:   TypeAEOTotalLow,
			Detail: fmt.Sprintf("aeo_total %.2f < %.0f", *agg.AEOScore, aeoTotalFloor),
		})
	}
	if p, ok := agg.Pillars[aeo.PillarAnswerability]; ok && p.Score < answerabilityFloor {
		fired = append(fired, Trigger{
			ID:     "T2",
			Type:   TypeAEOPillarCritical,
			Detail: fmt.Sprintf("answerability %.2f < %.0f", p.Score, answerabilityFloor),
		})
	}
	if p, ok := agg.Pillars[aeo.PillarStructure]; ok && p.Score < structureFloor {
		fired = append(fired, Trigger{
			ID:     "T3",
			Type:   TypeAEOPillarCritical,
			Detail: fmt.Sprintf("structure %.2f < %.0f", p.Score, structureFloor),
		})
	}
	if *agg.AIScore > aiLikenessCeiling {
		fired = append(fired, Trigger{
			ID:     "T4",
			Type:   TypeAILikenessHigh,
			Detail: fmt.Sprintf("ai_likeness_total %.2f > %.0f", *agg.AIScore, aiLikenessCeiling),
		})
	}
	for _, c := range rubricCategories(agg.Rubric) {
		if c.score.MaxScore > 0 && c.score.Score > categoryCriticalFrac*c.score.MaxScore {
			fired = append(fired, Trigger{
				ID:   "T5",
				Type: TypeAICategoryCritical,
				Detail: fmt.Sprintf("%s %.1f/%.0f exceeds 70%% of max",
					c.name, c.score.Score, c.score.MaxScore),
			})
			break
		}
	}
	return fired, nil
}

type namedCategory struct {
	name  string
	score rubric.CategoryScore
}

func rubricCategories(r *rubric.Result) []namedCategory {
	return []namedCategory{
		{"predictability_entropy", r.PredictabilityEntropy},
		{"sentence_uniformity", r.SentenceUniformity},
		{"generic_language", r.GenericLanguage},
		{"structural_templates", r.StructuralTemplates},
		{"lack_of_friction", r.LackOfFriction},
		{"over_polish", r.OverPolish},
	}
}
