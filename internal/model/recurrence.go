package model

import (
	"sort"
	"time"
)

// NextOccurrences returns the future fire instants of a in ascending order.
//
// A one-shot alarm yields a single instant: today at a.Time if that is
// strictly after now, otherwise tomorrow. A repeating alarm yields one
// instant per member of RepeatDays, each the first slot on that weekday
// strictly after now. The calculation uses now's location and never reads
// the clock.
func NextOccurrences(a Alarm, now time.Time) []time.Time {
	if a.RepeatDays.Empty() {
		return []time.Time{nextOneShot(a.Time, now)}
	}

	seen := make(map[string]bool, 7)
	out := make([]time.Time, 0, a.RepeatDays.Len())
	for _, d := range a.RepeatDays.Days() {
		next := nextOnWeekday(a.Time, d, now)
		key := next.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, next)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// NextFire returns the earliest occurrence of a after now.
func NextFire(a Alarm, now time.Time) time.Time {
	return NextOccurrences(a, now)[0]
}

// Preview lists the next count fire instants in order, walking forward past
// each returned instant.
func Preview(a Alarm, now time.Time, count int) []time.Time {
	if count <= 0 {
		return []time.Time{}
	}
	out := make([]time.Time, 0, count)
	cursor := now
	for len(out) < count {
		next := NextFire(a, cursor)
		out = append(out, next)
		cursor = next
	}
	return out
}

func nextOneShot(t TimeOfDay, now time.Time) time.Time {
	candidate := atClock(now, t)
	if !candidate.After(now) {
		candidate = atClock(now.AddDate(0, 0, 1), t)
	}
	return candidate
}

func nextOnWeekday(t TimeOfDay, d time.Weekday, now time.Time) time.Time {
	ahead := (int(d) - int(now.Weekday()) + 7) % 7
	candidate := atClock(now.AddDate(0, 0, ahead), t)
	if !candidate.After(now) {
		candidate = atClock(now.AddDate(0, 0, ahead+7), t)
	}
	return candidate
}

func atClock(date time.Time, t TimeOfDay) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, date.Location())
}
