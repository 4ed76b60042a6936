package scheduler

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// window is a time-of-day range in minutes since midnight. End may be
// numerically smaller than Start for clock windows that wrap past
// midnight ("23:30-01:30").
type window struct {
	start int
	end   int
	clock bool // "HH:MM-HH:MM" form; hour form is "H-H"
}

// parseWindow accepts "9-12" hour ranges and "HH:MM-HH:MM" clock
// ranges. Hour ranges must have start < end; clock ranges may wrap
// across midnight.
func parseWindow(s string) (window, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return window{}, fmt.Errorf("window %q: want start-end", s)
	}

	if strings.Contains(s, ":") {
		start, err := parseClock(parts[0])
		if err != nil {
			return window{}, fmt.Errorf("window %q: %w", s, err)
		}
		end, err := parseClock(parts[1])
		if err != nil {
			return window{}, fmt.Errorf("window %q: %w", s, err)
		}
		return window{start: start, end: end, clock: true}, nil
	}

	startHour, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return window{}, fmt.Errorf("window %q: bad start hour", s)
	}
	endHour, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return window{}, fmt.Errorf("window %q: bad end hour", s)
	}
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return window{}, fmt.Errorf("window %q: hours out of order", s)
	}
	return window{start: startHour * 60, end: endHour * 60}, nil
}

func parseClock(s string) (int, error) {
	hm := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(hm) != 2 {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour %q", s)
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute %q", s)
	}
	return h*60 + m, nil
}

// randomMinute draws a uniformly random minute-of-day inside the
// window. For hour windows the end hour is exclusive; for clock windows
// both ends are inclusive and wraparound is handled.
func (w window) randomMinute(rng *rand.Rand) int {
	if w.clock {
		span := w.end - w.start
		if span < 0 {
			span += minutesPerDay
		}
		return (w.start + rng.Intn(span+1)) % minutesPerDay
	}
	hours := (w.end - w.start) / 60
	h := w.start/60 + rng.Intn(hours)
	return h*60 + rng.Intn(60)
}

// contains reports whether the minute-of-day lies inside the window.
func (w window) contains(minute int) bool {
	if w.clock && w.end < w.start {
		return minute >= w.start || minute <= w.end
	}
	if w.clock {
		return minute >= w.start && minute <= w.end
	}
	return minute >= w.start && minute < w.end
}

// atMinute places a minute-of-day on the given day in its location.
func atMinute(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, day.Location())
}
