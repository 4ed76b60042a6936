package memory

import (
	"strings"
	"testing"
)

func TestScoreBaseline(t *testing.T) {
	got := Score("", "", nil)
	if got != 0.5 {
		t.Errorf("empty turn: got %v, want 0.5", got)
	}
}

func TestScoreDeterministic(t *testing.T) {
	msg := "I want you to remember this day forever!"
	resp := "I will, it matters to me too."
	clues := []string{"forever"}

	first := Score(msg, resp, clues)
	for i := 0; i < 10; i++ {
		if got := Score(msg, resp, clues); got != first {
			t.Fatalf("call %d: got %v, want %v", i, got, first)
		}
	}
}

func TestScoreBounds(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		resp string
	}{
		{"empty", "", ""},
		{"huge message", strings.Repeat("important! really very promise ", 200), strings.Repeat("x", 1000)},
		{"punctuation storm", strings.Repeat("!?...", 500), ""},
		{"plain", "hello", "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(tc.msg, tc.resp, []string{"promise", "really"})
			if got < 0 || got > 1 {
				t.Errorf("got %v, want within [0,1]", got)
			}
		})
	}
}

func TestScoreLongEmphaticPromiseClamps(t *testing.T) {
	// 350-char message with a promise keyword and three exclamation
	// marks: 0.5 base + 0.2 length + 0.15 keyword + 0.15 emotional cap.
	msg := "I promise!!! " + strings.Repeat("a", 340)
	got := Score(msg, "", nil)
	if got != 1.0 {
		t.Errorf("got %v, want 1.0", got)
	}
}

func TestScoreLengthTiers(t *testing.T) {
	medium := Score(strings.Repeat("a", 150), "", nil)
	if medium != 0.6 {
		t.Errorf("medium message: got %v, want 0.6", medium)
	}
	long := Score(strings.Repeat("a", 301), "", nil)
	if long != 0.7 {
		t.Errorf("long message: got %v, want 0.7", long)
	}
}

func TestScoreKeywordNoStacking(t *testing.T) {
	one := Score("remember this", "", nil)
	many := Score("remember this important promise", "", nil)
	if one != 0.65 {
		t.Errorf("single keyword: got %v, want 0.65", one)
	}
	if many != one {
		t.Errorf("multiple keywords: got %v, want %v (first match only)", many, one)
	}
}

func TestScoreContextClues(t *testing.T) {
	base := Score("we talked about the garden", "", nil)
	withClue := Score("we talked about the garden", "", []string{"garden"})
	if withClue-base < 0.099 || withClue-base > 0.101 {
		t.Errorf("clue delta: got %v, want 0.1", withClue-base)
	}
	// A clue that does not appear contributes nothing.
	miss := Score("we talked about the garden", "", []string{"ocean"})
	if miss != base {
		t.Errorf("missing clue: got %v, want %v", miss, base)
	}
}

func TestScoreLongResponse(t *testing.T) {
	short := Score("hi", "ok", nil)
	long := Score("hi", strings.Repeat("b", 201), nil)
	if long-short < 0.099 || long-short > 0.101 {
		t.Errorf("response delta: got %v, want 0.1", long-short)
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{"it's my birthday next week", "important_date"},
		{"huge breakthrough at work today", "achievement"},
		{"I made a promise to myself", "commitment"},
		{"thank you for being here", "emotional"},
		{"what's for dinner", "general"},
	}
	for _, tc := range cases {
		if got := Categorize(tc.msg, ""); got != tc.want {
			t.Errorf("Categorize(%q): got %q, want %q", tc.msg, got, tc.want)
		}
	}
}
