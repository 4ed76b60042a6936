package psyche

import (
	"math/rand"
	"testing"
	"time"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		message string
		want    Emotion
		ok      bool
	}{
		{"haha that's awesome, I'm so happy today 😊", EmotionHappy, true},
		{"I'm really sad and disappointed 😢", EmotionSad, true},
		{"no way!! 😲 seriously?", EmotionSurprised, true},
		{"I'm worried and nervous about tomorrow", EmotionAnxious, true},
		{"the meeting is at three", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Analyze(tt.message)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("Analyze(%q) = %v, %v; want %v, %v", tt.message, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAnalyzePicksHighestScore(t *testing.T) {
	// Two sad cues against one happy cue.
	got, ok := Analyze("I'm sad and disappointed but trying to be happy")
	if !ok || got != EmotionSad {
		t.Errorf("got %v, %v; want sad", got, ok)
	}
}

func TestIntensity(t *testing.T) {
	if got := Intensity(EmotionExcited); got != 0.9 {
		t.Errorf("excited: got %v, want 0.9", got)
	}
	if got := Intensity(EmotionCalm); got != 0.2 {
		t.Errorf("calm: got %v, want 0.2", got)
	}
	if got := Intensity(Emotion("wistful")); got != 0.5 {
		t.Errorf("unknown emotion: got %v, want 0.5", got)
	}
}

func TestTriggerFor(t *testing.T) {
	tr, ok := TriggerFor(EmotionHappy)
	if !ok || !tr.Selfie || tr.SelfiePrompt == "" {
		t.Errorf("happy trigger: got %+v, %v", tr, ok)
	}
	tr, ok = TriggerFor(EmotionCurious)
	if !ok || tr.Selfie {
		t.Errorf("curious trigger should not selfie: got %+v, %v", tr, ok)
	}
	if _, ok := TriggerFor(EmotionAngry); ok {
		t.Error("angry has no trigger configured")
	}
}

func TestSelfiePrompt(t *testing.T) {
	if got := SelfiePrompt(EmotionAngry, ""); got != "a friendly companion, cartoon style" {
		t.Errorf("fallback prompt: got %q", got)
	}
	got := SelfiePrompt(EmotionHappy, "at a cafe")
	if got[len(got)-len(", at a cafe"):] != ", at a cafe" {
		t.Errorf("extra context not appended: got %q", got)
	}
}

func TestIsSelfieRequest(t *testing.T) {
	if !IsSelfieRequest("can you send a photo of yourself?") {
		t.Error("explicit request not detected")
	}
	if IsSelfieRequest("what's the weather like") {
		t.Error("false positive")
	}
}

func TestShouldSelfie(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if ShouldSelfie(EmotionCurious, 1.0, rng) {
		t.Error("curious never selfies")
	}
	if !ShouldSelfie(EmotionHappy, 1.0, rng) {
		t.Error("probability 1.0 must fire")
	}
	if ShouldSelfie(EmotionHappy, 0, rng) {
		t.Error("probability 0 must not fire")
	}
}

func TestHistoryTrend(t *testing.T) {
	h := NewHistory()
	if got := h.Trend(); got != "" {
		t.Errorf("empty history trend: got %q", got)
	}

	now := time.Now()
	h.Add(EmotionSad, now)
	h.Add(EmotionHappy, now)
	h.Add(EmotionExcited, now)
	h.Add(EmotionCalm, now)
	// Last three are all positive.
	if got := h.Trend(); got != "positive" {
		t.Errorf("trend: got %q, want positive", got)
	}

	h.Add(EmotionSad, now)
	h.Add(EmotionAngry, now)
	if got := h.Trend(); got != "negative" {
		t.Errorf("trend: got %q, want negative", got)
	}

	recent, ok := h.Recent()
	if !ok || recent != EmotionAngry {
		t.Errorf("recent: got %v, %v", recent, ok)
	}

	h.Clear()
	if _, ok := h.Recent(); ok {
		t.Error("cleared history still has entries")
	}
}

func TestHistoryCapped(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 30; i++ {
		h.Add(EmotionCalm, time.Now())
	}
	h.mu.Lock()
	n := len(h.entries)
	h.mu.Unlock()
	if n != 10 {
		t.Errorf("history length: got %d, want 10", n)
	}
}
