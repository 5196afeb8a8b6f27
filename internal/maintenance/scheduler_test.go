package maintenance

import (
	"context"
	"testing"
	"time"
)

func TestNextHourlyAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)

	got := nextHourlyAt(now, 28)
	want := time.Date(2026, 1, 1, 10, 28, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("nextHourlyAt(10:15, :28) = %v, want %v", got, want)
	}

	// Past the target minute within the current hour: roll to next hour.
	got = nextHourlyAt(now, 0)
	want = time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("nextHourlyAt(10:15, :00) = %v, want %v", got, want)
	}
}

func TestNextDailyAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)

	got := nextDailyAt(now, 0, 30)
	want := time.Date(2026, 1, 2, 0, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("nextDailyAt(00:30) = %v, want %v", got, want)
	}

	now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got = nextDailyAt(now, 0, 30)
	want = time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("nextDailyAt same-day = %v, want %v", got, want)
	}
}

func TestSleepUntilPastDeadline(t *testing.T) {
	if !sleepUntil(context.Background(), time.Now().Add(-time.Second)) {
		t.Fatal("sleepUntil should return true immediately for a past deadline")
	}
}
