// Package availability expands recurring weekly rules and date-specific
// exceptions into concrete bookable slots, and filters candidates against
// existing bookings. Everything here is pure: output depends only on the
// arguments, including the caller-supplied "now".
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/bookwell/bookwell/internal/model"
	"github.com/bookwell/bookwell/internal/timezone"
)

// Step is the slot start granularity. Candidate slots begin on quarter-hour
// boundaries regardless of event-type duration.
const Step = 15 * time.Minute

type Interval struct {
	Start time.Time
	End   time.Time
}

// GenerateSlots expands rules and exceptions into candidate slots for every
// calendar date in [startDate, endDate], sorted ascending by UTC start with
// no duplicate windows. Dates are "2006-01-02" strings; displayLoc only
// affects the local renderings on the returned slots.
func GenerateSlots(
	et model.EventType,
	rules []model.AvailabilityRule,
	exceptions []model.AvailabilityException,
	startDate, endDate string,
	displayLoc *time.Location,
	now time.Time,
) ([]model.Slot, error) {
	first, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	last, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
	}

	excByDate := make(map[string]model.AvailabilityException, len(exceptions))
	for _, ex := range exceptions {
		excByDate[ex.Date] = ex
	}

	duration := et.Duration()
	leadCutoff := now.Add(time.Duration(et.MinLeadTimeHours) * time.Hour)
	horizon := now.AddDate(0, 0, et.MaxAdvanceDays)

	var slots []model.Slot
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		date := day.Format("2006-01-02")

		windows, err := dayWindows(date, int(day.Weekday()), rules, excByDate)
		if err != nil {
			return nil, err
		}
		if len(windows) == 0 {
			continue
		}
		windows = mergeIntervals(windows)

		for _, win := range windows {
			for t := win.Start; !t.Add(duration).After(win.End); t = t.Add(Step) {
				end := t.Add(duration)
				if !end.After(leadCutoff) {
					continue
				}
				if et.MaxAdvanceDays > 0 && !t.Before(horizon) {
					continue
				}
				slots = append(slots, model.Slot{
					StartUTC:   t,
					EndUTC:     end,
					StartLocal: t.In(displayLoc).Format(time.RFC3339),
					EndLocal:   end.In(displayLoc).Format(time.RFC3339),
				})
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].StartUTC.Before(slots[j].StartUTC) })
	return dedupeSlots(slots), nil
}

// dayWindows resolves one calendar date to its UTC availability windows.
// An "unavailable" exception voids the date; "custom_hours" replaces the
// rule-derived windows rather than merging with them.
func dayWindows(date string, weekday int, rules []model.AvailabilityRule, exc map[string]model.AvailabilityException) ([]Interval, error) {
	if ex, ok := exc[date]; ok {
		switch ex.Kind {
		case model.ExceptionUnavailable:
			return nil, nil
		case model.ExceptionCustomHours:
			loc, err := timezone.Load(ex.Timezone)
			if err != nil {
				return nil, err
			}
			start, end, err := timezone.DayWindowToUTC(date, ex.StartTime, ex.EndTime, loc)
			if err != nil {
				return nil, err
			}
			if !end.After(start) {
				return nil, nil
			}
			return []Interval{{Start: start, End: end}}, nil
		}
	}

	var windows []Interval
	for _, rule := range rules {
		if !rule.Active || rule.Weekday != weekday {
			continue
		}
		loc, err := timezone.Load(rule.Timezone)
		if err != nil {
			return nil, err
		}
		start, end, err := timezone.DayWindowToUTC(date, rule.StartTime, rule.EndTime, loc)
		if err != nil {
			return nil, err
		}
		if !end.After(start) {
			continue
		}
		windows = append(windows, Interval{Start: start, End: end})
	}
	return windows, nil
}

// mergeIntervals folds overlapping or touching intervals into their union.
func mergeIntervals(in []Interval) []Interval {
	if len(in) <= 1 {
		return in
	}
	sort.Slice(in, func(i, j int) bool {
		if in[i].Start.Equal(in[j].Start) {
			return in[i].End.Before(in[j].End)
		}
		return in[i].Start.Before(in[j].Start)
	})
	merged := in[:1]
	for _, cur := range in[1:] {
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return merged
}

func dedupeSlots(slots []model.Slot) []model.Slot {
	out := slots[:0]
	for i, s := range slots {
		if i > 0 && s.StartUTC.Equal(slots[i-1].StartUTC) && s.EndUTC.Equal(slots[i-1].EndUTC) {
			continue
		}
		out = append(out, s)
	}
	return out
}
