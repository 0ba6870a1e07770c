package reports

import (
	"testing"
	"time"
)

func TestNextExecutionFiveField(t *testing.T) {
	from := time.Date(2026, 3, 2, 12, 4, 59, 0, time.UTC)
	next, err := NextExecution("*/5 * * * *", "", from)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2026, 3, 2, 12, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextExecutionSixFieldSeconds(t *testing.T) {
	from := time.Date(2026, 3, 2, 12, 4, 59, 0, time.UTC)
	next, err := NextExecution("0 */5 * * * *", "", from)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2026, 3, 2, 12, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextExecutionHonorsTimezone(t *testing.T) {
	// 09:00 in New York is 14:00 UTC during EST.
	from := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	next, err := NextExecution("0 9 * * *", "America/New_York", from)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)
	if !next.UTC().Equal(want) {
		t.Fatalf("next = %v, want %v", next.UTC(), want)
	}
}

func TestNextExecutionMonotonic(t *testing.T) {
	t1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(37 * time.Minute)

	n1, err := NextExecution("15 */2 * * *", "", t1)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	n2, err := NextExecution("15 */2 * * *", "", t2)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if n1.After(n2) {
		t.Fatalf("monotonicity violated: next(%v)=%v > next(%v)=%v", t1, n1, t2, n2)
	}
}

func TestNextExecutionSpringForwardFiresOnce(t *testing.T) {
	// 2026-03-08 02:30 does not exist in New York; the schedule must resolve
	// to a single real instant rather than firing twice or never.
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	from := time.Date(2026, 3, 8, 1, 0, 0, 0, loc)

	next, err := NextExecution("30 2 * * *", "America/New_York", from)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.After(from) {
		t.Fatalf("next %v not after from %v", next, from)
	}

	after, err := NextExecution("30 2 * * *", "America/New_York", next)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !after.After(next) {
		t.Fatal("schedule must advance past the transition")
	}
	if after.Sub(next) < 12*time.Hour {
		t.Fatalf("nominal time fired twice around DST: %v then %v", next, after)
	}
}

func TestParseScheduleRejectsGarbage(t *testing.T) {
	if _, _, err := ParseSchedule("not cron", ""); err == nil {
		t.Fatal("expected parse error")
	}
	if _, _, err := ParseSchedule("* * * * *", "Mars/Olympus"); err == nil {
		t.Fatal("expected timezone error")
	}
}
