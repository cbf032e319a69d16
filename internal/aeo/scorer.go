package aeo

import (
	"fmt"
	"math"

	"redline/internal/fault"
)

// Pillar keys, in priority order. The rewrite instruction generator walks
// them in this order so the most impactful fixes come first.
const (
	PillarAnswerability = "aeo_answerability"
	PillarStructure     = "aeo_structure"
	PillarSpecificity   = "aeo_specificity"
	PillarTrust         = "aeo_trust"
	PillarCoverage      = "aeo_coverage"
	PillarFreshness     = "aeo_freshness"
	PillarReadability   = "aeo_readability"
)

// PillarOrder is the canonical priority order of the seven pillars.
var PillarOrder = []string{
	PillarAnswerability,
	PillarStructure,
	PillarSpecificity,
	PillarTrust,
	PillarCoverage,
	PillarFreshness,
	PillarReadability,
}

// PillarScore is one pillar's result.
type PillarScore struct {
	Score    float64  `json:"score"`
	MaxScore float64  `json:"max_score"`
	Reasons  []string `json:"reason"`
}

// Result is the full seven-pillar breakdown for one document.
type Result struct {
	TotalScore    float64                `json:"total_score"`
	RubricVersion string                 `json:"rubric_version"`
	Pillars       map[string]PillarScore `json:"pillars"`
	Signals       Signals                `json:"signals"`
}

// Score runs the AEO rubric over markdown content. The total is rounded to
// two decimals; a total above 100 is a rubric bug and raises an internal
// fault instead of clamping.
func Score(content string) (*Result, error) {
	signals := ExtractSignals(content)

	pillars := map[string]PillarScore{
		PillarAnswerability: scoreAnswerability(signals),
		PillarStructure:     scoreStructure(signals),
		PillarSpecificity:   scoreSpecificity(signals),
		PillarTrust:         scoreTrust(signals),
		PillarCoverage:      scoreCoverage(signals),
		PillarFreshness:     scoreFreshness(signals),
		PillarReadability:   scoreReadability(signals),
	}

	var total float64
	for _, p := range pillars {
		total += p.Score
	}
	total = math.Round(total*100) / 100
	if total > 100.0 {
		return nil, fault.New(fault.Internal, "calculated AEO score %.2f exceeds 100.0", total)
	}

	return &Result{
		TotalScore:    total,
		RubricVersion: Version,
		Pillars:       pillars,
		Signals:       signals,
	}, nil
}

// Pillar 1: Answerability & Intent Match (max 25). A substantive lead plus
// an H1 stating the topic.
func scoreAnswerability(s Signals) PillarScore {
	score := 0.0
	var reasons []string

	if wordCount(s.FirstWords) > 20 {
		score += 15.0
		reasons = append(reasons, "Content present in 'Answer First' window (First 120 words).")
	} else {
		reasons = append(reasons, "Introductory content is too sparse (< 20 words).")
	}

	if s.Structure.H1Count > 0 {
		score += 10.0
		reasons = append(reasons, "H1 detected, signaling clear topic intent.")
	} else {
		reasons = append(reasons, "No H1 detected; topic intent unclear.")
	}

	return pillar(score, 25.0, reasons)
}

// Pillar 2: Structural Extractability (max 20).
func scoreStructure(s Signals) PillarScore {
	score := 0.0
	var reasons []string

	if s.Structure.HasProperHierarchy {
		score += 10.0
		reasons = append(reasons, "Proper header hierarchy detected (H1 -> H2/H3).")
	} else {
		reasons = append(reasons, "Weak header hierarchy.")
	}

	switch lists := s.Structure.ListItemCount; {
	case lists > 5:
		score += 10.0
		reasons = append(reasons, fmt.Sprintf("Strong use of lists (%d items).", lists))
	case lists > 0:
		score += 5.0
		reasons = append(reasons, fmt.Sprintf("Moderate use of lists (%d items).", lists))
	default:
		reasons = append(reasons, "No lists detected.")
	}

	return pillar(score, 20.0, reasons)
}

// Pillar 3: Specificity & Factual Density (max 20).
func scoreSpecificity(s Signals) PillarScore {
	score := 0.0
	var reasons []string

	switch facts := s.Authority.NumericDataPoints; {
	case facts >= 3:
		score += 10.0
		reasons = append(reasons, fmt.Sprintf("High density of numeric facts (%d).", facts))
	case facts > 0:
		score += 5.0
		reasons = append(reasons, fmt.Sprintf("Some numeric facts detected (%d).", facts))
	default:
		reasons = append(reasons, "No numeric data points found.")
	}

	if len(s.Authority.YearsCited) > 0 {
		score += 10.0
		reasons = append(reasons, "Specific temporal entities (years) detected.")
	} else if s.Meta.WordCount > 600 {
		score += 5.0
		reasons = append(reasons, "Content length suggests detail, though specific entities low.")
	} else {
		reasons = append(reasons, "Low specificity/entity density.")
	}

	return pillar(score, 20.0, reasons)
}

// Pillar 4: Trust & Authority Signals (max 15).
func scoreTrust(s Signals) PillarScore {
	score := 0.0
	var reasons []string

	switch links := s.Authority.LinkCount; {
	case links >= 2:
		score += 10.0
		reasons = append(reasons, fmt.Sprintf("Strong citation profile (%d external links).", links))
	case links == 1:
		score += 5.0
		reasons = append(reasons, "Single citation detected.")
	default:
		reasons = append(reasons, "No external citations.")
	}

	if s.Quality.FluffPhraseHits == 0 {
		score += 5.0
		reasons = append(reasons, "Clean, concise language (0 fluff phrases).")
	} else {
		reasons = append(reasons, fmt.Sprintf("Fluff detected (%d instances). Penalty applied.", s.Quality.FluffPhraseHits))
	}

	return pillar(score, 15.0, reasons)
}

// Pillar 5: Query Coverage Breadth (max 10).
func scoreCoverage(s Signals) PillarScore {
	var score float64
	var reasons []string

	switch wc := s.Meta.WordCount; {
	case wc > 800:
		score = 10.0
		reasons = append(reasons, "Comprehensive depth (>800 words).")
	case wc > 400:
		score = 6.0
		reasons = append(reasons, "Moderate depth (>400 words).")
	default:
		score = 2.0
		reasons = append(reasons, fmt.Sprintf("Shallow coverage (%d words).", wc))
	}

	return pillar(score, 10.0, reasons)
}

// Pillar 6: Freshness & Temporal Clarity (max 5).
func scoreFreshness(s Signals) PillarScore {
	var score float64
	var reasons []string

	if n := len(s.Authority.YearsCited); n > 0 {
		score = 5.0
		reasons = append(reasons, fmt.Sprintf("Explicit temporal anchoring (%d years detected).", n))
	} else {
		reasons = append(reasons, "No specific years mentioned.")
	}

	return pillar(score, 5.0, reasons)
}

// Pillar 7: Machine Readability (max 5).
func scoreReadability(s Signals) PillarScore {
	var score float64
	var reasons []string

	switch avg := s.Meta.AvgSentenceLength; {
	case avg >= 10 && avg <= 20:
		score = 5.0
		reasons = append(reasons, fmt.Sprintf("Optimal sentence length (%g words).", avg))
	case avg > 5 && avg < 30:
		score = 3.0
		reasons = append(reasons, fmt.Sprintf("Acceptable sentence length (%g words).", avg))
	default:
		score = 1.0
		reasons = append(reasons, fmt.Sprintf("Sentence length suboptimal (%g words).", avg))
	}

	return pillar(score, 5.0, reasons)
}

func pillar(score, max float64, reasons []string) PillarScore {
	return PillarScore{Score: math.Min(score, max), MaxScore: max, Reasons: reasons}
}

func wordCount(s string) int {
	if s == "" {
		return 0
	}
	count := 1
	for _, r := range s {
		if r == ' ' {
			count++
		}
	}
	return count
}
