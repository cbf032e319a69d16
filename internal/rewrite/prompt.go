package rewrite

import (
	"fmt"
	"strings"

	"redline/internal/aeo"
)

// Fix instructions per trigger type. The mapping is fixed so the same
// triggers always produce the same prompt.
var triggerFixes = map[string]string{
	TypeAEOTotalLow:        "Raise overall answer-engine readiness: open with the direct answer, tighten the structure, and replace vague claims with concrete facts.",
	TypeAEOPillarCritical:  "Repair the critical pillar named below before anything else.",
	TypeAILikenessHigh:     "Vary sentence structure and length, use contractions where natural, and ground abstract statements in first-hand specifics.",
	TypeAICategoryCritical: "Rework the flagged stylistic category: cut stock phrasing, hedging qualifiers, and formulaic transitions.",
}

const promptPreamble = `You are revising an internal draft article. Improve it according to the required fixes below while preserving every factual claim exactly as written.`

const strictProhibitions = `STRICT PROHIBITIONS:
- Do not invent facts, statistics, quotes, dates, or sources.
- Do not change the meaning of any claim in the original.
- Do not add introductions, conclusions, or commentary about the revision itself.
- Do not pad the text with filler phrases or marketing language.`

const outputRequirements = `OUTPUT REQUIREMENTS:
- Return only the revised article body in Markdown.
- Keep the original language and roughly the original length.
- Preserve code blocks, URLs, and quoted material unchanged.`

// BuildPrompt fills the canonical rewrite template. The result is stored
// verbatim on the cycle row before the external call, so the exact
// instruction set behind every AI rewrite is reconstructable.
func BuildPrompt(parentContent string, triggers []Trigger, pillars map[string]aeo.PillarScore) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nREQUIRED FIXES:\n")

	seen := make(map[string]bool)
	for _, t := range triggers {
		line := fmt.Sprintf("- [%s] %s (%s)\n", t.ID, triggerFixes[t.Type], t.Detail)
		if seen[line] {
			continue
		}
		seen[line] = true
		b.WriteString(line)
	}

	if len(pillars) > 0 {
		instructions := aeo.RewriteInstructions(&aeo.Result{Pillars: pillars})
		if len(instructions) != 1 || instructions[0] != aeo.AllClearInstruction {
			b.WriteString("\nPILLAR GUIDANCE:\n\n")
			b.WriteString(strings.Join(instructions, "\n\n"))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(strictProhibitions)
	b.WriteString("\n\n")
	b.WriteString(outputRequirements)
	b.WriteString("\n\nORIGINAL CONTENT:\n")
	b.WriteString(parentContent)
	return b.String()
}
