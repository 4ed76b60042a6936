package scheduler

import (
	"math/rand"
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		start   int
		end     int
		clock   bool
		wantErr bool
	}{
		{in: "9-12", start: 9 * 60, end: 12 * 60},
		{in: "0-24", start: 0, end: 24 * 60},
		{in: "20:00-20:20", start: 20 * 60, end: 20*60 + 20, clock: true},
		{in: "23:30-01:30", start: 23*60 + 30, end: 90, clock: true},
		{in: "12-9", wantErr: true},
		{in: "9-9", wantErr: true},
		{in: "-1-5", wantErr: true},
		{in: "9", wantErr: true},
		{in: "25:00-26:00", wantErr: true},
		{in: "10:60-11:00", wantErr: true},
		{in: "abc-def", wantErr: true},
	}
	for _, tt := range tests {
		w, err := parseWindow(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseWindow(%q): want error, got %+v", tt.in, w)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseWindow(%q): %v", tt.in, err)
			continue
		}
		if w.start != tt.start || w.end != tt.end || w.clock != tt.clock {
			t.Errorf("parseWindow(%q) = %+v, want start=%d end=%d clock=%v",
				tt.in, w, tt.start, tt.end, tt.clock)
		}
	}
}

func TestRandomMinuteStaysInside(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, in := range []string{"9-12", "14-18", "20:00-20:20", "23:30-01:30"} {
		w, err := parseWindow(in)
		if err != nil {
			t.Fatalf("parseWindow(%q): %v", in, err)
		}
		for i := 0; i < 500; i++ {
			m := w.randomMinute(rng)
			if !w.contains(m) {
				t.Fatalf("window %q: minute %d outside window", in, m)
			}
		}
	}
}

func TestContainsWraparound(t *testing.T) {
	w, err := parseWindow("23:30-01:30")
	if err != nil {
		t.Fatalf("parseWindow: %v", err)
	}
	for m, want := range map[int]bool{
		23*60 + 30: true,
		0:          true,
		90:         true,
		91:         false,
		23*60 + 29: false,
		12 * 60:    false,
	} {
		if got := w.contains(m); got != want {
			t.Errorf("contains(%d) = %v, want %v", m, got, want)
		}
	}
}

func TestAtMinute(t *testing.T) {
	day := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	got := atMinute(day, 9*60+30)
	want := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("atMinute: got %v, want %v", got, want)
	}
}
