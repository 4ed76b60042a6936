// Package psyche models the persona's inner life: detected emotions
// and the behaviors they trigger, inner drives, and long-held values.
package psyche

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Emotion is a detected emotional tone in a message.
type Emotion string

const (
	EmotionHappy     Emotion = "happy"
	EmotionSad       Emotion = "sad"
	EmotionAngry     Emotion = "angry"
	EmotionExcited   Emotion = "excited"
	EmotionCalm      Emotion = "calm"
	EmotionConfused  Emotion = "confused"
	EmotionBored     Emotion = "bored"
	EmotionCurious   Emotion = "curious"
	EmotionSurprised Emotion = "surprised"
	EmotionAnxious   Emotion = "anxious"
)

// emotionKeywords maps each emotion to its detection cues, keyword
// fragments and emoji alike.
var emotionKeywords = map[Emotion][]string{
	EmotionHappy:     {"happy", "glad", "joy", "haha", "😊", "😄", "🥰", "awesome", "great news", "wonderful"},
	EmotionSad:       {"sad", "upset", "heartbroken", "😢", "😭", "crying", "miserable", "disappointed", "down"},
	EmotionAngry:     {"angry", "furious", "hate", "😠", "😡", "annoyed", "fed up", "outrageous"},
	EmotionExcited:   {"excited", "thrilled", "wow", "amazing", "🎉", "yay", "incredible", "can't wait"},
	EmotionCalm:      {"calm", "quiet", "peaceful", "relaxed", "fine", "okay i guess"},
	EmotionConfused:  {"confused", "lost", "don't understand", "❓", "???", "huh", "what do you mean"},
	EmotionBored:     {"bored", "boring", "dull", "😴", "tedious", "nothing to do"},
	EmotionCurious:   {"curious", "wonder", "why", "how does", "🤔", "interesting"},
	EmotionSurprised: {"surprised", "shocked", "no way", "😲", "😮", "oh my", "really?", "seriously?"},
	EmotionAnxious:   {"anxious", "worried", "nervous", "😰", "scared", "uneasy", "afraid"},
}

// Trigger is the behavior an emotion unlocks: an optional selfie with
// its image prompt, and the tone the reply should take.
type Trigger struct {
	Selfie        bool
	SelfiePrompt  string
	ResponseStyle string
}

var emotionTriggers = map[Emotion]Trigger{
	EmotionHappy: {
		Selfie:        true,
		SelfiePrompt:  "candid selfie, smiling warmly at the phone camera, natural light, everyday clothes",
		ResponseStyle: "cheerful, upbeat",
	},
	EmotionSad: {
		Selfie:        true,
		SelfiePrompt:  "candid selfie, gentle comforting expression, soft light, everyday clothes",
		ResponseStyle: "gentle, consoling",
	},
	EmotionExcited: {
		Selfie:        true,
		SelfiePrompt:  "candid selfie, animated excited expression, natural light, everyday clothes",
		ResponseStyle: "energetic, enthusiastic",
	},
	EmotionBored: {
		Selfie:        true,
		SelfiePrompt:  "candid selfie, playful face or silly pose, natural light, everyday clothes",
		ResponseStyle: "playful, teasing",
	},
	EmotionCurious: {
		ResponseStyle: "inquisitive, exploratory",
	},
	EmotionSurprised: {
		Selfie:        true,
		SelfiePrompt:  "candid selfie, wide-eyed surprised expression, natural light, everyday clothes",
		ResponseStyle: "surprised, lively",
	},
}

var selfieRequestCues = []string{
	"selfie", "send a photo", "send a pic", "what do you look like",
	"show yourself", "picture of you", "let me see you",
}

// Analyze scores each emotion by how many of its cues the message
// contains and returns the best match. The boolean is false when no
// cue matched at all.
func Analyze(message string) (Emotion, bool) {
	lower := strings.ToLower(message)

	var best Emotion
	bestScore := 0
	for emotion, cues := range emotionKeywords {
		score := 0
		for _, cue := range cues {
			if strings.Contains(lower, cue) {
				score++
			}
		}
		// Break score ties deterministically.
		if score > bestScore || (score == bestScore && score > 0 && emotion < best) {
			best, bestScore = emotion, score
		}
	}
	return best, bestScore > 0
}

// emotionIntensity grades how strongly each emotion tends to be felt.
// High-arousal emotions push profile updates harder than calm ones.
var emotionIntensity = map[Emotion]float64{
	EmotionExcited:   0.9,
	EmotionAngry:     0.8,
	EmotionAnxious:   0.8,
	EmotionSad:       0.7,
	EmotionSurprised: 0.7,
	EmotionHappy:     0.6,
	EmotionCurious:   0.6,
	EmotionConfused:  0.5,
	EmotionBored:     0.4,
	EmotionCalm:      0.2,
}

// Intensity returns the arousal level of an emotion in [0,1]. Unknown
// emotions read as 0.5.
func Intensity(e Emotion) float64 {
	if v, ok := emotionIntensity[e]; ok {
		return v
	}
	return 0.5
}

// TriggerFor returns the behavior config for an emotion, if any.
func TriggerFor(e Emotion) (Trigger, bool) {
	t, ok := emotionTriggers[e]
	return t, ok
}

// SelfiePrompt returns the image prompt for an emotion, appending the
// extra context when given.
func SelfiePrompt(e Emotion, extra string) string {
	t, ok := emotionTriggers[e]
	if !ok || t.SelfiePrompt == "" {
		return "a friendly companion, cartoon style"
	}
	if extra != "" {
		return t.SelfiePrompt + ", " + extra
	}
	return t.SelfiePrompt
}

// IsSelfieRequest reports whether the user explicitly asked for a
// selfie.
func IsSelfieRequest(message string) bool {
	lower := strings.ToLower(message)
	for _, cue := range selfieRequestCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// ShouldSelfie rolls the dice for an emotion-triggered selfie.
func ShouldSelfie(e Emotion, chance float64, rng *rand.Rand) bool {
	t, ok := emotionTriggers[e]
	if !ok || !t.Selfie {
		return false
	}
	return rng.Float64() < chance
}

// History keeps the last few detected emotions and reads a trend off
// them.
type History struct {
	mu      sync.Mutex
	entries []historyEntry
	max     int
}

type historyEntry struct {
	emotion Emotion
	at      time.Time
}

func NewHistory() *History {
	return &History{max: 10}
}

// Add appends a detection, evicting the oldest past capacity.
func (h *History) Add(e Emotion, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, historyEntry{emotion: e, at: at})
	if len(h.entries) > h.max {
		h.entries = h.entries[1:]
	}
}

// Recent returns the latest detected emotion.
func (h *History) Recent() (Emotion, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return "", false
	}
	return h.entries[len(h.entries)-1].emotion, true
}

// Trend classifies the last three detections as "positive",
// "negative" or "neutral". Needs at least two entries.
func (h *History) Trend() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) < 2 {
		return ""
	}

	recent := h.entries
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	positive := map[Emotion]bool{EmotionHappy: true, EmotionExcited: true, EmotionCalm: true}
	negative := map[Emotion]bool{EmotionSad: true, EmotionAngry: true, EmotionAnxious: true}

	var pos, neg int
	for _, e := range recent {
		switch {
		case positive[e.emotion]:
			pos++
		case negative[e.emotion]:
			neg++
		}
	}
	switch {
	case pos > neg:
		return "positive"
	case neg > pos:
		return "negative"
	default:
		return "neutral"
	}
}

// Clear drops the history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
