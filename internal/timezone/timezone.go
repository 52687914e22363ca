// Package timezone converts civil wall-clock times in named IANA zones to
// absolute UTC instants with a deterministic DST policy: a repeated local hour
// resolves to the earlier UTC instant, a skipped local hour pushes forward to
// the later valid instant.
package timezone

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownZone = errors.New("unknown timezone")

// Load resolves an IANA zone name. Empty or invalid names are an error,
// never a silent fallback to UTC.
func Load(name string) (*time.Location, error) {
	if name == "" {
		return nil, ErrUnknownZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, name)
	}
	return loc, nil
}

// ToUTC returns the UTC instant whose local rendering in loc equals the given
// civil time. The zone's UTC offsets in effect around the target day are
// probed as candidates; a candidate is valid when it renders back to the same
// wall clock.
func ToUTC(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	naive := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)

	var valid []time.Time
	for _, off := range offsetsAround(naive, loc) {
		cand := naive.Add(-time.Duration(off) * time.Second)
		ly, lm, ld := cand.In(loc).Date()
		lh, lmin, _ := cand.In(loc).Clock()
		if ly == year && lm == month && ld == day && lh == hour && lmin == minute {
			valid = append(valid, cand)
		}
	}

	switch len(valid) {
	case 0:
		// Skipped hour. The interpretation under the pre-transition offset
		// lands after the gap, which is the later of the candidate instants.
		latest := naive.Add(-15 * time.Hour)
		for _, off := range offsetsAround(naive, loc) {
			cand := naive.Add(-time.Duration(off) * time.Second)
			if cand.After(latest) {
				latest = cand
			}
		}
		return latest
	case 1:
		return valid[0]
	default:
		// Repeated hour: earlier UTC instant wins.
		earliest := valid[0]
		for _, cand := range valid[1:] {
			if cand.Before(earliest) {
				earliest = cand
			}
		}
		return earliest
	}
}

// offsetsAround returns the distinct UTC offsets (seconds) the zone uses
// within a day either side of t, which covers any transition on the target
// date.
func offsetsAround(t time.Time, loc *time.Location) []int {
	var offs []int
	for _, d := range []time.Duration{-26 * time.Hour, 0, 26 * time.Hour} {
		_, off := t.Add(d).In(loc).Zone()
		seen := false
		for _, o := range offs {
			if o == off {
				seen = true
				break
			}
		}
		if !seen {
			offs = append(offs, off)
		}
	}
	return offs
}

// DayWindowToUTC converts a local [start,end) wall-clock window on a calendar
// date to UTC instants. Times are "15:04" strings as stored on rules.
func DayWindowToUTC(date string, startHHMM, endHHMM string, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	sh, sm, err := parseHHMM(startHHMM)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := parseHHMM(endHHMM)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := ToUTC(day.Year(), day.Month(), day.Day(), sh, sm, loc)
	end := ToUTC(day.Year(), day.Month(), day.Day(), eh, em, loc)
	return start, end, nil
}

func parseHHMM(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
