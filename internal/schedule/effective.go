package schedule

import "time"

const dateLayout = "2006-01-02"

// EffectiveRanges resolves the open time ranges for a calendar date after
// applying precedence: an all-day block yields no ranges, a date override
// replaces the weekly pattern, otherwise the weekly pattern applies.
// Exactly one source contributes ranges for any date. The result is a
// sorted copy; callers may mutate it freely.
func (t *Template) EffectiveRanges(date time.Time) []TimeRange {
	key := date.Format(dateLayout)

	for _, b := range t.Blocked {
		if b.Date == key && b.AllDay {
			return nil
		}
	}

	for _, o := range t.Overrides {
		if o.Date == key {
			return sortedRanges(o.Ranges)
		}
	}

	day := t.Weekly.ForWeekday(date.Weekday())
	if day == nil {
		return nil
	}
	return sortedRanges(day.Ranges)
}

// BlockedMinutes returns the blocked slot start times for a date, in
// minutes since midnight. All-day blocks are handled by EffectiveRanges
// and contribute nothing here.
func (t *Template) BlockedMinutes(date time.Time) map[Minutes]bool {
	key := date.Format(dateLayout)
	var blocked map[Minutes]bool
	for _, b := range t.Blocked {
		if b.Date != key || b.AllDay {
			continue
		}
		for _, ts := range b.Times {
			m, err := ParseHHMM(ts)
			if err != nil {
				continue // rejected by Validate before save
			}
			if blocked == nil {
				blocked = make(map[Minutes]bool)
			}
			blocked[m] = true
		}
	}
	return blocked
}
