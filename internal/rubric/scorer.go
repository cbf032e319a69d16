// Package rubric scores AI-likeness of prose with a deterministic,
// explainable heuristic rubric. The same input always yields the same
// output; no network, no models, no clocks.
//
// Six categories sum to at most 100 (higher means more AI-like):
//
//	1. Predictability & Entropy      0-25
//	2. Sentence & Paragraph Uniformity 0-20
//	3. Generic Language & Clichés    0-20
//	4. Structural Template Signals   0-15
//	5. Lack of Human Friction        0-10
//	6. Over-Polish & Safety Tone     0-10
package rubric

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"redline/internal/fault"
)

// CategoryScore is the result of one rubric category.
type CategoryScore struct {
	Score       float64  `json:"score"`
	MaxScore    float64  `json:"max_score"`
	Percentage  float64  `json:"percentage"`
	Explanation string   `json:"explanation"`
	Evidence    []string `json:"evidence,omitempty"`
}

// Result is the full rubric breakdown for one text.
type Result struct {
	RubricVersion         string        `json:"rubric_version"`
	TotalScore            float64       `json:"total_score"`
	PredictabilityEntropy CategoryScore `json:"predictability_entropy"`
	SentenceUniformity    CategoryScore `json:"sentence_uniformity"`
	GenericLanguage       CategoryScore `json:"generic_language"`
	StructuralTemplates   CategoryScore `json:"structural_templates"`
	LackOfFriction        CategoryScore `json:"lack_of_friction"`
	OverPolish            CategoryScore `json:"over_polish"`
	TextLength            int           `json:"text_length"`
	WordCount             int           `json:"word_count"`
}

// Score runs the rubric over the text. Empty input and texts under five
// words are validation faults. A total above 100 is a scoring bug and is
// raised as an internal fault rather than clamped.
func Score(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fault.New(fault.Validation, "text cannot be empty")
	}

	words := wordRe.FindAllString(text, -1)
	if len(words) < 5 {
		return nil, fault.New(fault.Validation, "text too short (minimum 5 words required)")
	}

	r := &Result{
		RubricVersion:         Version,
		PredictabilityEntropy: scorePredictabilityEntropy(words),
		SentenceUniformity:    scoreSentenceUniformity(text),
		GenericLanguage:       scoreGenericLanguage(text),
		StructuralTemplates:   scoreStructuralTemplates(text),
		LackOfFriction:        scoreLackOfFriction(text, words),
		OverPolish:            scoreOverPolish(text),
		TextLength:            len(text),
		WordCount:             len(words),
	}
	r.TotalScore = r.PredictabilityEntropy.Score +
		r.SentenceUniformity.Score +
		r.GenericLanguage.Score +
		r.StructuralTemplates.Score +
		r.LackOfFriction.Score +
		r.OverPolish.Score

	// A broken rubric must fail loudly, never clamp.
	if r.TotalScore > 100.0 {
		return nil, fault.New(fault.Internal,
			"rubric scoring error: total_score=%.2f exceeds maximum of 100.0", r.TotalScore)
	}
	return r, nil
}

// Category 1: Predictability & Entropy (0-25).
func scorePredictabilityEntropy(words []string) CategoryScore {
	const maxScore = 25.0
	if len(words) < 10 {
		return CategoryScore{
			MaxScore:    maxScore,
			Explanation: "Text too short to analyze entropy (< 10 words)",
		}
	}

	var signals, evidence []string
	score := 0.0

	// Lexical diversity (10 points)
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[strings.ToLower(w)] = struct{}{}
	}
	diversity := float64(len(unique)) / float64(len(words))
	switch {
	case diversity < 0.4:
		score += 10.0
		signals = append(signals, fmt.Sprintf("Very low lexical diversity (%.2f)", diversity))
	case diversity < 0.5:
		score += 7.0
		signals = append(signals, fmt.Sprintf("Low lexical diversity (%.2f)", diversity))
	case diversity < 0.6:
		score += 4.0
		signals = append(signals, fmt.Sprintf("Moderate lexical diversity (%.2f)", diversity))
	default:
		signals = append(signals, fmt.Sprintf("High lexical diversity (%.2f)", diversity))
	}

	// Word length variance (8 points)
	var sum float64
	for _, w := range words {
		sum += float64(len(w))
	}
	mean := sum / float64(len(words))
	var variance float64
	for _, w := range words {
		d := float64(len(w)) - mean
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(len(words)))
	switch {
	case stdDev < 2.0:
		score += 8.0
		signals = append(signals, fmt.Sprintf("Very uniform word lengths (σ=%.2f)", stdDev))
	case stdDev < 2.5:
		score += 5.0
		signals = append(signals, fmt.Sprintf("Low word length variance (σ=%.2f)", stdDev))
	default:
		signals = append(signals, fmt.Sprintf("Natural word length variance (σ=%.2f)", stdDev))
	}

	// Repetition patterns (7 points)
	freq := make(map[string]int, len(words))
	for _, w := range words {
		freq[strings.ToLower(w)]++
	}
	topWord, topCount := mostFrequent(freq)
	repetition := float64(topCount) / float64(len(words))
	switch {
	case repetition > 0.05:
		score += 7.0
		signals = append(signals, fmt.Sprintf("High word repetition: '%s' (%.2f%%)", topWord, repetition*100))
		evidence = append(evidence, fmt.Sprintf("Most repeated: '%s' (%dx)", topWord, topCount))
	case repetition > 0.03:
		score += 4.0
		signals = append(signals, fmt.Sprintf("Moderate word repetition: '%s' (%.2f%%)", topWord, repetition*100))
		evidence = append(evidence, fmt.Sprintf("Most repeated: '%s' (%dx)", topWord, topCount))
	default:
		signals = append(signals, fmt.Sprintf("Low word repetition (%.2f%%)", repetition*100))
	}

	return category(score, maxScore, signals, evidence)
}

// Category 2: Sentence & Paragraph Uniformity (0-20).
func scoreSentenceUniformity(text string) CategoryScore {
	const maxScore = 20.0
	sentences := splitSentences(text)
	if len(sentences) < 3 {
		return CategoryScore{
			MaxScore:    maxScore,
			Explanation: "Text too short to analyze uniformity (< 3 sentences)",
		}
	}

	var signals, evidence []string
	score := 0.0

	// Sentence length uniformity (12 points)
	lengths := make([]int, len(sentences))
	for i, s := range sentences {
		lengths[i] = len(strings.Fields(s))
	}
	avg, cv := coefficientOfVariation(lengths)
	switch {
	case cv < 0.3:
		score += 12.0
		signals = append(signals, fmt.Sprintf("Very uniform sentence lengths (CV=%.2f)", cv))
		evidence = append(evidence, fmt.Sprintf("Sentence lengths: %v (avg=%.1f)", head(lengths, 5), avg))
	case cv < 0.5:
		score += 7.0
		signals = append(signals, fmt.Sprintf("Moderately uniform sentences (CV=%.2f)", cv))
	default:
		signals = append(signals, fmt.Sprintf("Natural sentence length variance (CV=%.2f)", cv))
	}

	// Paragraph uniformity (8 points)
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) >= 3 {
		paraLengths := make([]int, len(paragraphs))
		for i, p := range paragraphs {
			paraLengths[i] = len(strings.Fields(p))
		}
		paraAvg, paraCV := coefficientOfVariation(paraLengths)
		switch {
		case paraCV < 0.3:
			score += 8.0
			signals = append(signals, fmt.Sprintf("Very uniform paragraph lengths (CV=%.2f)", paraCV))
			evidence = append(evidence, fmt.Sprintf("Paragraph lengths: %v (avg=%.1f)", head(paraLengths, 3), paraAvg))
		case paraCV < 0.5:
			score += 4.0
			signals = append(signals, fmt.Sprintf("Moderately uniform paragraphs (CV=%.2f)", paraCV))
		default:
			signals = append(signals, fmt.Sprintf("Natural paragraph variance (CV=%.2f)", paraCV))
		}
	} else {
		signals = append(signals, "Too few paragraphs to analyze uniformity")
	}

	return category(score, maxScore, signals, evidence)
}

// Category 3: Generic Language & Clichés (0-20).
//
// Transition adverbs (firstly, secondly, ...) count both here (adverb
// overuse) and in category 4 (transitions): they signal generic language
// and templated structure at the same time.
func scoreGenericLanguage(text string) CategoryScore {
	const maxScore = 20.0
	textLower := strings.ToLower(text)
	var signals, evidence []string
	score := 0.0

	// AI phrase detection (15 points)
	var found []string
	for _, phrase := range aiPhrases {
		if strings.Contains(textLower, phrase) {
			found = append(found, phrase)
		}
	}
	switch {
	case len(found) >= 5:
		score += 15.0
		signals = append(signals, fmt.Sprintf("Found %d AI-like phrases: %s...", len(found), quoteJoin(head(found, 3))))
		evidence = append(evidence, head(found, 5)...)
	case len(found) >= 3:
		score += 10.0
		signals = append(signals, fmt.Sprintf("Found %d AI-like phrases: %s", len(found), quoteJoin(found)))
		evidence = append(evidence, found...)
	case len(found) >= 1:
		score += 5.0
		signals = append(signals, fmt.Sprintf("Found %d AI-like phrase(s): %s", len(found), quoteJoin(found)))
		evidence = append(evidence, found...)
	default:
		signals = append(signals, "No common AI phrases detected")
	}

	// Adverb overuse (5 points)
	adverbs := adverbRe.FindAllString(textLower, -1)
	fields := strings.Fields(textLower)
	var adverbRatio float64
	if len(fields) > 0 {
		adverbRatio = float64(len(adverbs)) / float64(len(fields))
	}
	switch {
	case adverbRatio > 0.05:
		score += 5.0
		sample := strings.Join(head(adverbs, 5), ", ")
		signals = append(signals, fmt.Sprintf("High adverb usage (%.2f%%): %s...", adverbRatio*100, sample))
		evidence = append(evidence, "Adverbs: "+sample)
	case adverbRatio > 0.03:
		score += 2.0
		signals = append(signals, fmt.Sprintf("Moderate adverb usage (%.2f%%)", adverbRatio*100))
	default:
		signals = append(signals, fmt.Sprintf("Normal adverb usage (%.2f%%)", adverbRatio*100))
	}

	return category(score, maxScore, signals, evidence)
}

// Category 4: Structural Template Signals (0-15).
func scoreStructuralTemplates(text string) CategoryScore {
	const maxScore = 15.0
	var signals, evidence []string
	score := 0.0

	// Formulaic openings (8 points)
	firstSentence := text
	if i := strings.Index(text, "."); i >= 0 {
		firstSentence = text[:i]
	} else if len([]rune(text)) > 200 {
		firstSentence = string([]rune(text)[:200])
	}
	matched := false
	for _, re := range templateOpenings {
		if re.MatchString(firstSentence) {
			matched = true
			break
		}
	}
	if matched {
		score += 8.0
		snippet := firstSentence
		if len([]rune(snippet)) > 60 {
			snippet = string([]rune(snippet)[:60]) + "..."
		}
		signals = append(signals, fmt.Sprintf("Formulaic opening: '%s'", snippet))
		evidence = append(evidence, fmt.Sprintf("Opening: '%s'", snippet))
	} else {
		signals = append(signals, "Natural opening")
	}

	// Numbered lists (4 points)
	numbered := numberedRe.FindAllString(text, -1)
	switch {
	case len(numbered) >= 5:
		score += 4.0
		signals = append(signals, fmt.Sprintf("Heavy list structure (%d items)", len(numbered)))
		evidence = append(evidence, fmt.Sprintf("Numbered list items: %d", len(numbered)))
	case len(numbered) >= 3:
		score += 2.0
		signals = append(signals, fmt.Sprintf("Moderate list structure (%d items)", len(numbered)))
		evidence = append(evidence, fmt.Sprintf("Numbered list items: %d", len(numbered)))
	default:
		signals = append(signals, "Minimal list structure")
	}

	// Transition phrases (3 points)
	textLower := strings.ToLower(text)
	var foundTransitions []string
	for _, tr := range transitionPhrases {
		if strings.Contains(textLower, tr) {
			foundTransitions = append(foundTransitions, tr)
		}
	}
	switch {
	case len(foundTransitions) >= 4:
		score += 3.0
		signals = append(signals, "Heavy transition usage: "+quoteJoin(head(foundTransitions, 4)))
		evidence = append(evidence, head(foundTransitions, 4)...)
	case len(foundTransitions) >= 2:
		score += 1.5
		signals = append(signals, "Moderate transition usage: "+quoteJoin(foundTransitions))
		evidence = append(evidence, foundTransitions...)
	default:
		signals = append(signals, "Minimal transition usage")
	}

	return category(score, maxScore, signals, evidence)
}

// Category 5: Lack of Human Friction (0-10).
func scoreLackOfFriction(text string, words []string) CategoryScore {
	const maxScore = 10.0
	var signals, evidence []string
	score := 0.0

	// Perfect capitalization (4 points)
	sentences := splitSentences(text)
	if len(sentences) > 0 {
		capitalized := 0
		for _, s := range sentences {
			r := []rune(s)
			if len(r) > 0 && r[0] >= 'A' && r[0] <= 'Z' {
				capitalized++
			}
		}
		capRatio := float64(capitalized) / float64(len(sentences))
		if capRatio == 1.0 && len(sentences) >= 3 {
			score += 4.0
			signals = append(signals, "Perfect sentence capitalization")
			evidence = append(evidence, fmt.Sprintf("All %d sentences capitalized", len(sentences)))
		} else {
			signals = append(signals, fmt.Sprintf("Natural capitalization (%.0f%%)", capRatio*100))
		}
	} else {
		signals = append(signals, "No sentences to analyze")
	}

	// Lack of contractions (3 points)
	contractions := contractionRe.FindAllString(text, -1)
	var contractionRatio float64
	if len(words) > 0 {
		contractionRatio = float64(len(contractions)) / float64(len(words))
	}
	switch {
	case contractionRatio < 0.01:
		score += 3.0
		signals = append(signals, "Very few contractions (formal)")
		evidence = append(evidence, fmt.Sprintf("Contractions: %d/%d words", len(contractions), len(words)))
	case contractionRatio < 0.02:
		score += 1.5
		signals = append(signals, "Few contractions")
	default:
		signals = append(signals, fmt.Sprintf("Natural contraction usage (%.2f%%)", contractionRatio*100))
	}

	// Lack of informal markers (3 points)
	textLower := strings.ToLower(text)
	var foundInformal []string
	for _, m := range informalMarkers {
		if strings.Contains(textLower, m) {
			foundInformal = append(foundInformal, m)
		}
	}
	if len(foundInformal) == 0 && len(words) > 50 {
		score += 3.0
		signals = append(signals, "No informal markers (very formal)")
		evidence = append(evidence, "No informal markers found")
	} else if len(foundInformal) > 0 {
		signals = append(signals, "Natural informality: "+quoteJoin(head(foundInformal, 3)))
	}

	return category(score, maxScore, signals, evidence)
}

// Category 6: Over-Polish & Safety Tone (0-10).
func scoreOverPolish(text string) CategoryScore {
	const maxScore = 10.0
	textLower := strings.ToLower(text)
	var signals, evidence []string
	score := 0.0

	// Safety/hedging phrases (7 points)
	var foundSafety []string
	for _, phrase := range safetyPhrases {
		if strings.Contains(textLower, phrase) {
			foundSafety = append(foundSafety, phrase)
		}
	}
	switch {
	case len(foundSafety) >= 4:
		score += 7.0
		signals = append(signals, "Heavy hedging language: "+quoteJoin(head(foundSafety, 4)))
		evidence = append(evidence, head(foundSafety, 4)...)
	case len(foundSafety) >= 2:
		score += 4.0
		signals = append(signals, "Moderate hedging: "+quoteJoin(foundSafety))
		evidence = append(evidence, foundSafety...)
	case len(foundSafety) >= 1:
		score += 2.0
		signals = append(signals, "Some hedging: "+quoteJoin(foundSafety))
		evidence = append(evidence, foundSafety...)
	default:
		signals = append(signals, "No hedging detected")
	}

	// Disclaimer patterns (3 points)
	var foundDisclaimers []string
	for _, d := range disclaimerPhrases {
		if strings.Contains(textLower, d) {
			foundDisclaimers = append(foundDisclaimers, d)
		}
	}
	switch {
	case len(foundDisclaimers) >= 2:
		score += 3.0
		signals = append(signals, "Multiple disclaimers: "+quoteJoin(foundDisclaimers))
		evidence = append(evidence, foundDisclaimers...)
	case len(foundDisclaimers) >= 1:
		score += 1.5
		signals = append(signals, "Some disclaimers: "+quoteJoin(foundDisclaimers))
		evidence = append(evidence, foundDisclaimers...)
	default:
		signals = append(signals, "No disclaimers")
	}

	return category(score, maxScore, signals, evidence)
}

func category(score, max float64, signals, evidence []string) CategoryScore {
	return CategoryScore{
		Score:       score,
		MaxScore:    max,
		Percentage:  score / max * 100,
		Explanation: strings.Join(signals, " | "),
		Evidence:    evidence,
	}
}

func splitSentences(text string) []string {
	var sentences []string
	for _, s := range sentenceRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func coefficientOfVariation(lengths []int) (avg, cv float64) {
	var sum float64
	for _, l := range lengths {
		sum += float64(l)
	}
	avg = sum / float64(len(lengths))
	var variance float64
	for _, l := range lengths {
		d := float64(l) - avg
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(len(lengths)))
	if avg > 0 {
		cv = stdDev / avg
	}
	return avg, cv
}

// mostFrequent returns the most common key; ties break alphabetically so
// the output stays deterministic.
func mostFrequent(freq map[string]int) (string, int) {
	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var topWord string
	var topCount int
	for _, k := range keys {
		if freq[k] > topCount {
			topWord, topCount = k, freq[k]
		}
	}
	return topWord, topCount
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = "'" + it + "'"
	}
	return strings.Join(quoted, ", ")
}
