package aeo

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A well-structured markdown document that should score highly.
var strongContent = buildStrongContent()

func buildStrongContent() string {
	var b strings.Builder
	b.WriteString("# How Caching Cut Our API Latency by 42%\n\n")
	b.WriteString("The answer is simple: a two-tier cache dropped p99 latency from 480ms to 278ms ")
	b.WriteString("in 2024, saving roughly 31% of compute spend across 12 services. ")
	b.WriteString("This post walks through the exact configuration and the numbers behind it.\n\n")
	b.WriteString("## The Setup\n\n")
	b.WriteString("- Redis 7.2 as the hot tier\n")
	b.WriteString("- A 512MB in-process LRU as the near tier\n")
	b.WriteString("- TTLs of 30s and 300s respectively\n")
	b.WriteString("- Invalidation via https://example.com/docs/streams events\n")
	b.WriteString("- Metrics shipped to https://grafana.example.com dashboards\n")
	b.WriteString("- Rollout finished in March 2025\n\n")
	b.WriteString("### Results\n\n")
	for i := 0; i < 40; i++ {
		b.WriteString("Each service saw a measurable drop in tail latency after the cache warmed. ")
		b.WriteString("The hit rate stabilized near 87% within two hours of deploy. ")
	}
	return b.String()
}

const weakContent = `In today's world content is king. It is important to note that things change. Needless to say we should all adapt and without further ado here are thoughts.`

func TestScore_Deterministic(t *testing.T) {
	first, err := Score(strongContent)
	require.NoError(t, err)
	second, err := Score(strongContent)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("same input produced different results (-first +second):\n%s", diff)
	}
}

func TestScore_StrongContent(t *testing.T) {
	r, err := Score(strongContent)
	require.NoError(t, err)

	assert.Equal(t, Version, r.RubricVersion)
	assert.Greater(t, r.TotalScore, 70.0)
	assert.LessOrEqual(t, r.TotalScore, 100.0)

	assert.Equal(t, 25.0, r.Pillars[PillarAnswerability].Score)
	assert.Equal(t, 20.0, r.Pillars[PillarStructure].Score)
	assert.Equal(t, 15.0, r.Pillars[PillarTrust].Score)
	assert.Equal(t, 5.0, r.Pillars[PillarFreshness].Score)
	assert.Equal(t, 10.0, r.Pillars[PillarCoverage].Score)
}

func TestScore_WeakContent(t *testing.T) {
	r, err := Score(weakContent)
	require.NoError(t, err)

	assert.Less(t, r.TotalScore, 40.0)
	// No H1, sparse lead only gets the answer-first credit.
	assert.Equal(t, 15.0, r.Pillars[PillarAnswerability].Score)
	assert.Zero(t, r.Pillars[PillarStructure].Score)
	assert.Zero(t, r.Pillars[PillarTrust].Score)
	assert.Zero(t, r.Pillars[PillarFreshness].Score)
	assert.Equal(t, 2.0, r.Pillars[PillarCoverage].Score)
}

func TestScore_EmptyContent(t *testing.T) {
	r, err := Score("")
	require.NoError(t, err)
	assert.Zero(t, r.Pillars[PillarAnswerability].Score)
	// Empty content still earns the floor points of coverage and readability.
	assert.Equal(t, 2.0, r.Pillars[PillarCoverage].Score)
	assert.Equal(t, 1.0, r.Pillars[PillarReadability].Score)
}

func TestExtractSignals(t *testing.T) {
	s := ExtractSignals(strongContent)

	assert.Equal(t, 1, s.Structure.H1Count)
	assert.Equal(t, 1, s.Structure.H2Count)
	assert.Equal(t, 1, s.Structure.H3Count)
	assert.True(t, s.Structure.HasProperHierarchy)
	assert.Equal(t, 6, s.Structure.ListItemCount)
	assert.Equal(t, 2, s.Authority.LinkCount)
	assert.GreaterOrEqual(t, s.Authority.NumericDataPoints, 3)
	assert.Contains(t, s.Authority.YearsCited, "2024")
	assert.Contains(t, s.Authority.YearsCited, "2025")
	assert.Greater(t, s.Meta.WordCount, 800)
	assert.Zero(t, s.Quality.FluffPhraseHits)
}

func TestExtractSignals_Fluff(t *testing.T) {
	s := ExtractSignals(weakContent)
	assert.Equal(t, 4, s.Quality.FluffPhraseHits)
	assert.Equal(t, 1, s.Quality.FluffDetails["in today's world"])
	assert.Equal(t, 1, s.Quality.FluffDetails["needless to say"])
}

func TestExtractSignals_YearsAreUniqueAndSorted(t *testing.T) {
	s := ExtractSignals("In 2025 and again in 2025 we looked back at 1999.")
	assert.Equal(t, []string{"1999", "2025"}, s.Authority.YearsCited)
}

func TestExtractSignals_FirstWordsWindow(t *testing.T) {
	long := strings.Repeat("word ", 300)
	s := ExtractSignals(long)
	assert.Equal(t, 120, len(strings.Fields(s.FirstWords)))
}

func TestRewriteInstructions(t *testing.T) {
	t.Run("weak content gets prioritized blocks", func(t *testing.T) {
		r, err := Score(weakContent)
		require.NoError(t, err)

		instructions := RewriteInstructions(r)
		require.NotEmpty(t, instructions)
		// Answerability deficit comes first.
		assert.Contains(t, instructions[0], "Pillar 1")
		assert.Contains(t, instructions[0], "**Action:**")
		assert.Contains(t, instructions[0], "(Score: ")
	})

	t.Run("perfect pillars produce no blocks", func(t *testing.T) {
		r := &Result{Pillars: map[string]PillarScore{}}
		for _, key := range PillarOrder {
			r.Pillars[key] = PillarScore{Score: 10, MaxScore: 10}
		}
		assert.Equal(t, []string{AllClearInstruction}, RewriteInstructions(r))
	})
}
