package relay

import (
	"testing"
	"time"
)

func TestNextRetryTimeSchedule(t *testing.T) {
	now := time.Now().UTC()
	wantDelays := []time.Duration{1 * time.Minute, 5 * time.Minute, 15 * time.Minute}

	var prev time.Time
	for attempt := 1; attempt <= 3; attempt++ {
		next := NextRetryTime(attempt, DefaultRetrySchedule)
		if next == nil {
			t.Fatalf("attempt %d: expected a retry time", attempt)
		}
		delay := next.Sub(now)
		want := wantDelays[attempt-1]
		if delay < want-time.Second || delay > want+time.Second {
			t.Fatalf("attempt %d: delay %v, want ~%v", attempt, delay, want)
		}
		if !prev.IsZero() && !next.After(prev) {
			t.Fatalf("attempt %d: retry times not strictly increasing", attempt)
		}
		prev = *next
	}
}

func TestNextRetryTimeExhausted(t *testing.T) {
	if next := NextRetryTime(4, DefaultRetrySchedule); next != nil {
		t.Fatalf("attempt 4 should be terminal, got retry at %v", next)
	}
	if next := NextRetryTime(0, DefaultRetrySchedule); next != nil {
		t.Fatal("attempt 0 should not schedule a retry")
	}
}

func TestIsSuccess(t *testing.T) {
	cases := map[int]bool{
		199: false,
		200: true,
		204: true,
		299: true,
		300: false,
		404: false,
		500: false,
		0:   false,
	}
	for code, want := range cases {
		if got := IsSuccess(code); got != want {
			t.Errorf("IsSuccess(%d) = %v, want %v", code, got, want)
		}
	}
}
