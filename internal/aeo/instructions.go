package aeo

import (
	"fmt"
	"strings"
)

// Per-pillar rewrite directives. Each block maps a scoring deficit to a
// concrete edit; no model involvement, just prompt construction.
var pillarPrompts = map[string][]string{
	PillarAnswerability: {
		"**Action:** Move the direct answer to the very first paragraph.",
		"**Why:** The core answer was not found in the first 120 words (Pillar 1).",
		"**Fix:** Start immediately with 'The answer is X' or 'X is Y'. Remove introductory fluff.",
	},
	PillarStructure: {
		"**Action:** Restructure content using H2/H3 headers and lists.",
		"**Why:** Structural extractability score is low (Pillar 2).",
		"**Fix:** Break long text into bullet points. Ensure a clear hierarchy of headers.",
	},
	PillarSpecificity: {
		"**Action:** Add specific data points, numbers, and entities.",
		"**Why:** Specificity and factual density is insufficient (Pillar 3).",
		"**Fix:** Replace generic terms (\"many\", \"some\") with exact numbers, percentages, or proper nouns.",
	},
	PillarTrust: {
		"**Action:** Add citations and remove filler content.",
		"**Why:** Trust signals are weak or fluff is high (Pillar 4).",
		"**Fix:** Cite reputable external sources. Delete phrases like 'In today's world' or 'It is important to note'.",
	},
	PillarCoverage: {
		"**Action:** Expand depth of coverage.",
		"**Why:** Content length suggests shallow coverage (Pillar 5).",
		"**Fix:** Expand on key subtopics. Target a higher word count with substantive analysis.",
	},
	PillarFreshness: {
		"**Action:** Add explicit temporal anchoring.",
		"**Why:** No specific years or timelines detected (Pillar 6).",
		"**Fix:** Mention relevant years (e.g., 2024, 2025) to signal currency.",
	},
	PillarReadability: {
		"**Action:** Simplify sentence structure.",
		"**Why:** Machine readability score is low (Pillar 7).",
		"**Fix:** Shorten sentences to 10-20 words. Split complex compound sentences.",
	},
}

// AllClearInstruction is returned when every pillar is at its maximum.
const AllClearInstruction = "**Status:** Content meets all AEO requirements. No rewriting necessary."

// RewriteInstructions maps weak pillars to instruction blocks, in pillar
// priority order. Any deduction triggers the pillar's block.
func RewriteInstructions(r *Result) []string {
	var instructions []string
	for _, key := range PillarOrder {
		p, ok := r.Pillars[key]
		if !ok || p.Score >= p.MaxScore {
			continue
		}
		block := strings.Join(pillarPrompts[key], "\n")
		block += fmt.Sprintf("\n(Score: %g/%g)", p.Score, p.MaxScore)
		instructions = append(instructions, block)
	}
	if len(instructions) == 0 {
		return []string{AllClearInstruction}
	}
	return instructions
}
