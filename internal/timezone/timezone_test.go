package timezone

import (
	"testing"
	"time"
)

func TestLoad_Unknown(t *testing.T) {
	if _, err := Load("Mars/Olympus"); err == nil {
		t.Fatal("expected error for unknown zone")
	}
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty zone")
	}
}

func TestToUTC_Plain(t *testing.T) {
	loc, err := Load("Europe/Paris")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Mid-January, far from any transition: Paris is UTC+1.
	got := ToUTC(2025, time.January, 15, 9, 0, loc)
	want := time.Date(2025, time.January, 15, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestToUTC_FoldPicksEarlier(t *testing.T) {
	loc, err := Load("Europe/Paris")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// 2025-10-26: clocks fall back at 03:00 CEST to 02:00 CET, so 02:30
	// happens twice. The earlier instant is 00:30 UTC (CEST, +2).
	got := ToUTC(2025, time.October, 26, 2, 30, loc)
	want := time.Date(2025, time.October, 26, 0, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected earlier offset %s, got %s", want, got)
	}
}

func TestToUTC_GapPushesForward(t *testing.T) {
	loc, err := Load("Europe/Paris")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// 2025-03-30: clocks jump from 02:00 CET to 03:00 CEST, so 02:30 never
	// happens. The window edge is pushed to the instant after the jump.
	got := ToUTC(2025, time.March, 30, 2, 30, loc)
	if got.Before(time.Date(2025, time.March, 30, 1, 0, 0, 0, time.UTC)) {
		t.Fatalf("gap wall time resolved backwards: %s", got)
	}
	// Whatever instant is chosen, rendering it back must not land before
	// the requested wall clock.
	local := got.In(loc)
	if local.Hour() < 2 || (local.Hour() == 2 && local.Minute() < 30) {
		t.Fatalf("resolved instant %s is before requested wall time", local)
	}
}

func TestDayWindowToUTC(t *testing.T) {
	loc, err := Load("America/New_York")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	start, end, err := DayWindowToUTC("2025-06-02", "09:00", "17:00", loc)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	// EDT is UTC-4 in June.
	if !start.Equal(time.Date(2025, time.June, 2, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", start)
	}
	if !end.Equal(time.Date(2025, time.June, 2, 21, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %s", end)
	}
}

func TestDayWindowToUTC_BadClock(t *testing.T) {
	if _, _, err := DayWindowToUTC("2025-06-02", "9am", "17:00", time.UTC); err == nil {
		t.Fatal("expected error for malformed clock")
	}
}
