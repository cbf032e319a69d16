// Package aeo scores Answer Engine Optimization readiness of markdown
// content. Signal extraction and scoring are split: signals.go extracts raw
// structural and statistical facts with regexes only, scorer.go maps them to
// the seven-pillar rubric. Everything is deterministic with no external
// calls.
package aeo

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Version identifies the AEO rubric. Any change to pillars, weights or
// signal patterns requires a bump and re-audit.
const Version = "1.0.0"

// Filler phrases that drag down trust signals.
var fluffPhrases = []string{
	"in today's world",
	"it is important to note",
	"needless to say",
	"at the end of the day",
	"all things considered",
	"last but not least",
	"in conclusion",
	"without further ado",
	"let's dive in",
	"game changer",
}

var (
	h1Re       = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	h2Re       = regexp.MustCompile(`(?m)^##\s+(.+)$`)
	h3Re       = regexp.MustCompile(`(?m)^###\s+(.+)$`)
	listItemRe = regexp.MustCompile(`(?m)^(\s*[-*]|\s*\d+\.)\s+(.+)$`)
	yearRe     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	urlRe      = regexp.MustCompile(`https?://[^\s)]+`)
	numericRe  = regexp.MustCompile(`\b\d+(\.\d+)?%?`)
	sentSplit  = regexp.MustCompile(`[.!?]+`)
)

// Signals is the raw fact sheet extracted from one markdown document.
type Signals struct {
	Meta       MetaSignals      `json:"meta"`
	Structure  StructureSignals `json:"structure"`
	FirstWords string           `json:"first_120_words"`
	Authority  AuthoritySignals `json:"authority"`
	Quality    QualitySignals   `json:"quality"`
}

type MetaSignals struct {
	WordCount         int     `json:"word_count"`
	SentenceCount     int     `json:"sentence_count"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
}

type StructureSignals struct {
	H1Count            int  `json:"h1_count"`
	H2Count            int  `json:"h2_count"`
	H3Count            int  `json:"h3_count"`
	ListItemCount      int  `json:"list_item_count"`
	HasProperHierarchy bool `json:"has_proper_hierarchy"`
}

type AuthoritySignals struct {
	LinkCount         int      `json:"link_count"`
	NumericDataPoints int      `json:"numeric_data_points"`
	YearsCited        []string `json:"years_cited"`
}

type QualitySignals struct {
	FluffPhraseHits    int            `json:"fluff_phrase_hits"`
	FluffDetails       map[string]int `json:"fluff_details,omitempty"`
	LongParagraphCount int            `json:"long_paragraph_count"`
}

// ExtractSignals pulls raw deterministic signals out of markdown content.
// Empty content yields zeroed signals, never an error.
func ExtractSignals(content string) Signals {
	if content == "" {
		return Signals{Authority: AuthoritySignals{YearsCited: []string{}}}
	}

	lines := strings.Split(content, "\n")
	words := strings.Fields(content)

	// Answer-first window: the first 120 words.
	firstWindow := words
	if len(firstWindow) > 120 {
		firstWindow = firstWindow[:120]
	}

	contentLower := strings.ToLower(content)
	fluffDetails := map[string]int{}
	totalFluff := 0
	for _, phrase := range fluffPhrases {
		hits := strings.Count(contentLower, phrase)
		if hits > 0 {
			fluffDetails[phrase] = hits
			totalFluff += hits
		}
	}

	// Unique years, sorted so the output is stable.
	yearSet := map[string]struct{}{}
	for _, y := range yearRe.FindAllString(content, -1) {
		yearSet[y] = struct{}{}
	}
	years := make([]string, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Strings(years)

	var sentences []string
	for _, s := range sentSplit.Split(content, -1) {
		if strings.TrimSpace(s) != "" {
			sentences = append(sentences, s)
		}
	}
	var avgSentence float64
	if len(sentences) > 0 {
		avgSentence = math.Round(float64(len(words))/float64(len(sentences))*100) / 100
	}

	longParagraphs := 0
	for _, line := range lines {
		if len(strings.Fields(line)) > 60 {
			longParagraphs++
		}
	}

	return Signals{
		Meta: MetaSignals{
			WordCount:         len(words),
			SentenceCount:     len(sentences),
			AvgSentenceLength: avgSentence,
		},
		Structure: StructureSignals{
			H1Count:       len(h1Re.FindAllString(content, -1)),
			H2Count:       len(h2Re.FindAllString(content, -1)),
			H3Count:       len(h3Re.FindAllString(content, -1)),
			ListItemCount: len(listItemRe.FindAllString(content, -1)),
			HasProperHierarchy: len(h1Re.FindAllString(content, -1)) > 0 &&
				(len(h2Re.FindAllString(content, -1)) > 0 || len(h3Re.FindAllString(content, -1)) > 0),
		},
		FirstWords: strings.Join(firstWindow, " "),
		Authority: AuthoritySignals{
			LinkCount:         len(urlRe.FindAllString(content, -1)),
			NumericDataPoints: len(numericRe.FindAllString(content, -1)),
			YearsCited:        years,
		},
		Quality: QualitySignals{
			FluffPhraseHits:    totalFluff,
			FluffDetails:       fluffDetails,
			LongParagraphCount: longParagraphs,
		},
	}
}
