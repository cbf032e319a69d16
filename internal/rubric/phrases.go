package rubric

import "regexp"

// Version identifies the rubric for auditability and drift tracking. Any
// change to the phrase lists or thresholds must bump this.
const Version = "1.0.0"

// Phrases that AI-generated prose reaches for. All entries are lowercase;
// matching lowercases the input first.
var aiPhrases = []string{
	"it's important to note",
	"it's worth noting",
	"it's crucial to",
	"it's essential to",
	"in today's world",
	"in today's digital age",
	"in conclusion",
	"to summarize",
	"in summary",
	"as an ai",
	"i don't have personal",
	"i cannot provide",
	"delve into",
	"dive into",
	"navigate the",
	"landscape of",
	"realm of",
	"tapestry of",
	"myriad of",
	"plethora of",
	"it's no secret that",
	"the fact of the matter",
	"at the end of the day",
	"game changer",
	"paradigm shift",
	"cutting edge",
	"state of the art",
	"leverage",
	"utilize",
	"facilitate",
	"optimize",
	"streamline",
	"robust",
	"comprehensive",
	"holistic",
	"synergy",
	"ecosystem",
}

// Formulaic opening patterns, checked against the first sentence only.
var templateOpenings = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^In this (article|post|guide|blog)`),
	regexp.MustCompile(`(?i)^(Welcome to|Introduction to)`),
	regexp.MustCompile(`(?i)^(Have you ever|Are you|Do you)`),
	regexp.MustCompile(`(?i)^(Imagine|Picture this|Consider)`),
	regexp.MustCompile(`(?i)^(Let's|Let us) (explore|discuss|examine|dive into)`),
}

// Hedging phrases signalling safety tone.
var safetyPhrases = []string{
	"generally speaking",
	"in most cases",
	"typically",
	"usually",
	"often",
	"may be",
	"might be",
	"could be",
	"it depends",
	"varies depending",
	"consult a professional",
	"seek expert advice",
}

var disclaimerPhrases = []string{
	"please note",
	"keep in mind",
	"be aware",
	"remember that",
	"it is important",
	"you should know",
}

var transitionPhrases = []string{
	"firstly",
	"secondly",
	"thirdly",
	"finally",
	"moreover",
	"furthermore",
	"additionally",
	"in addition",
	"however",
	"nevertheless",
}

var informalMarkers = []string{
	"lol", "haha", "omg", "btw", "tbh", "...", "!!", "??",
}

var (
	wordRe        = regexp.MustCompile(`\b\w+\b`)
	sentenceRe    = regexp.MustCompile(`[.!?]+`)
	adverbRe      = regexp.MustCompile(`\b\w+ly\b`)
	contractionRe = regexp.MustCompile(`\b\w+'\w+\b`)
	numberedRe    = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+`)
)
