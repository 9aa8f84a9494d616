package schedule

import "time"

// SlotsForDate generates the bookable slot start times for a calendar
// date. Within each effective range the walk advances by slot duration
// plus buffer, emitting a start whenever a full slot still fits in the
// range. Explicitly blocked start times are dropped (they still consume
// their position in the walk). Output is ascending and deterministic:
// the same template and date always produce the same slots.
func (t *Template) SlotsForDate(date time.Time) []Minutes {
	ranges := t.EffectiveRanges(date)
	if len(ranges) == 0 {
		return nil
	}

	blocked := t.BlockedMinutes(date)
	step := Minutes(t.SlotDurationMinutes + t.BufferMinutes)
	duration := Minutes(t.SlotDurationMinutes)

	var slots []Minutes
	for _, r := range ranges {
		for start := r.Start; start+duration <= r.End; start += step {
			if blocked[start] {
				continue
			}
			slots = append(slots, start)
			if t.MaxSlotsPerDay > 0 && len(slots) >= t.MaxSlotsPerDay {
				return slots
			}
		}
	}
	return slots
}

// SlotTimes formats generated slots as "HH:MM" strings for the API surface.
func (t *Template) SlotTimes(date time.Time) []string {
	slots := t.SlotsForDate(date)
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.HHMM())
	}
	return out
}
