package memory

import (
	"strings"
	"unicode/utf8"
)

// Importance scoring is a fixed heuristic: deterministic for identical
// inputs and always clamped to [0,1]. Tunables live here rather than in
// config because the tests pin the exact arithmetic.
const (
	scoreBase          = 0.5
	scoreLongMessage   = 0.2 // user message > 300 chars
	scoreMediumMessage = 0.1 // user message > 100 chars
	scoreKeyword       = 0.15
	scoreContextClue   = 0.1
	scoreEmotionalEach = 0.05
	scoreEmotionalCap  = 0.15
	scoreLongResponse  = 0.1 // bot response > 200 chars
	longMessageChars   = 300
	mediumMessageChars = 100
	longResponseChars  = 200
	CoreThreshold      = 0.8
	ImportantThreshold = 0.7
)

// importantKeywords score once on first match, no stacking.
var importantKeywords = []string{
	"remember", "important", "promise", "decision",
	"success", "achievement", "breakthrough", "learned",
	"thank you", "love", "grateful", "treasure",
	"birthday", "anniversary", "milestone", "turning point",
}

// emotionalIndicators are punctuation and intensifiers; every
// occurrence adds a small bonus, capped.
var emotionalIndicators = []string{
	"!", "?", "...", "very", "really", "truly", "especially", "definitely",
}

// Score computes the importance of a conversational turn in [0,1].
// contextClues are caller-supplied strings that mark a turn as notable
// when they appear in the combined text.
func Score(userMessage, botResponse string, contextClues []string) float64 {
	score := scoreBase
	fullText := userMessage + " " + botResponse
	lowerText := strings.ToLower(fullText)

	switch msgLen := utf8.RuneCountInString(userMessage); {
	case msgLen > longMessageChars:
		score += scoreLongMessage
	case msgLen > mediumMessageChars:
		score += scoreMediumMessage
	}

	for _, kw := range importantKeywords {
		if strings.Contains(lowerText, kw) {
			score += scoreKeyword
			break
		}
	}

	for _, clue := range contextClues {
		if clue != "" && strings.Contains(lowerText, strings.ToLower(clue)) {
			score += scoreContextClue
		}
	}

	emotional := 0
	for _, ind := range emotionalIndicators {
		emotional += strings.Count(lowerText, ind)
	}
	bonus := float64(emotional) * scoreEmotionalEach
	if bonus > scoreEmotionalCap {
		bonus = scoreEmotionalCap
	}
	score += bonus

	if utf8.RuneCountInString(botResponse) > longResponseChars {
		score += scoreLongResponse
	}

	return clamp01(score)
}

// Categorize assigns a coarse category from the combined text.
func Categorize(userMessage, botResponse string) string {
	text := strings.ToLower(userMessage + " " + botResponse)
	switch {
	case containsAny(text, "birthday", "anniversary", "holiday", "festival"):
		return "important_date"
	case containsAny(text, "success", "achievement", "breakthrough", "finished"):
		return "achievement"
	case containsAny(text, "promise", "decision", "goal", "plan"):
		return "commitment"
	case containsAny(text, "love", "thank", "grateful", "treasure"):
		return "emotional"
	default:
		return "general"
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
