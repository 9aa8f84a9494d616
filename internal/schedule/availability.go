package schedule

import (
	"fmt"
	"time"
)

// IsAvailableAt reports whether the provider's declared schedule is open
// at the given instant. The instant is resolved into the template's time
// zone before the blocked/override/weekly precedence is applied. This
// answers only "is the declared schedule open"; occupancy by existing
// bookings is the conflict detector's concern.
func (t *Template) IsAvailableAt(instant time.Time) (bool, error) {
	loc, err := t.Location()
	if err != nil {
		return false, err
	}
	local := instant.In(loc)

	ranges := t.EffectiveRanges(local)
	if len(ranges) == 0 {
		return false, nil
	}

	minute := Minutes(local.Hour()*60 + local.Minute())

	// A blocked slot start removes the whole slot interval, not just the
	// single minute it names.
	duration := Minutes(t.SlotDurationMinutes)
	for bt := range t.BlockedMinutes(local) {
		if minute >= bt && minute < bt+duration {
			return false, nil
		}
	}

	for _, r := range ranges {
		if minute >= r.Start && minute < r.End {
			return true, nil
		}
	}
	return false, nil
}

// DayStart returns midnight of the instant's calendar date in the
// template's zone, used to anchor slot times onto absolute timestamps.
func (t *Template) DayStart(instant time.Time) (time.Time, error) {
	loc, err := t.Location()
	if err != nil {
		return time.Time{}, err
	}
	local := instant.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc), nil
}

// SlotInstant converts a minute-of-day slot on a date into an absolute instant.
func (t *Template) SlotInstant(date time.Time, slot Minutes) (time.Time, error) {
	start, err := t.DayStart(date)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(slot) * time.Minute), nil
}

// ParseDate interprets a "YYYY-MM-DD" string as midnight in the template's zone.
func (t *Template) ParseDate(s string) (time.Time, error) {
	loc, err := t.Location()
	if err != nil {
		return time.Time{}, err
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: parse date %q: %w", s, err)
	}
	return d, nil
}
