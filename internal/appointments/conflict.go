package appointments

import "time"

// Overlaps reports whether the half-open intervals [aStart, aStart+aDur)
// and [bStart, bStart+bDur) overlap: each must start before the other
// ends. Touching endpoints are not a conflict; any desired gap between
// consecutive appointments is baked into slot generation as buffer, not
// into conflict checking.
func Overlaps(aStart time.Time, aDur time.Duration, bStart time.Time, bDur time.Duration) bool {
	aEnd := aStart.Add(aDur)
	bEnd := bStart.Add(bDur)
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// HasConflict scans existing appointments for an overlap with the
// candidate interval. Only active (pending, confirmed, in-progress)
// appointments can conflict; terminal rows never do. excludeID skips one
// appointment so a reschedule does not conflict with itself.
func HasConflict(existing []Appointment, start time.Time, dur time.Duration, excludeID string) bool {
	for i := range existing {
		a := &existing[i]
		if a.ID == excludeID {
			continue
		}
		if !a.Status.Active() {
			continue
		}
		if Overlaps(start, dur, a.ScheduledAt, a.Duration()) {
			return true
		}
	}
	return false
}
