package rewrite

// Trend outcomes with their numeric codes.
const (
	TrendImproving          = "improving"           // 1
	TrendPartialImprovement = "partial_improvement" // 2
	TrendStagnant           = "stagnant"            // 3
	TrendRegressing         = "regressing"          // 4
)

// Stop reasons recorded on terminal cycles and stop decisions.
const (
	StopApprovedContent    = "approved_content"
	StopMaxCycles          = "max_cycles_reached"
	StopNoImprovement      = "no_improvement"
	StopQualityDegradation = "quality_degradation"
	StopOscillation        = "oscillation_detected"
	StopTimeout            = "timeout"
	StopRewriterError      = "rewriter_error"
	StopEvaluationFailed   = "evaluation_failed"
)

const trendBand = 5.0

// ClassifyTrend compares a child version's scores against its parent.
// AEO delta is child minus parent; AI delta is parent minus child, so both
// deltas read "positive is better".
//
// Regression on either axis wins over everything else: a rewrite that tanks
// one metric is a degradation no matter what the other did.
func ClassifyTrend(parentAEO, childAEO, parentAI, childAI float64) (string, int) {
	aeoDelta := childAEO - parentAEO
	aiDelta := parentAI - childAI

	switch {
	case aeoDelta <= -trendBand || aiDelta <= -trendBand:
		return TrendRegressing, 4
	case aeoDelta >= trendBand && aiDelta >= trendBand:
		return TrendImproving, 1
	case aeoDelta >= trendBand:
		return TrendPartialImprovement, 2
	default:
		return TrendStagnant, 3
	}
}
