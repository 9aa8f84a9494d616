// Package schedule models a provider's declared availability: the
// recurring weekly pattern, one-off blocked dates, and one-off date
// overrides, plus the slot generation derived from them.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	minSlotDuration  = 15
	maxSlotDuration  = 120
	slotGranularity  = 15
	maxBufferMinutes = 60
	minutesPerDay    = 24 * 60
)

var (
	// ErrInvalidTemplate is returned when template validation fails.
	ErrInvalidTemplate = errors.New("invalid schedule template")

	// ErrTemplateNotFound is returned when no template exists for a provider.
	ErrTemplateNotFound = errors.New("schedule template not found")
)

// Minutes is a minute-of-day offset (0 <= m <= 1440).
type Minutes int

// HHMM formats the offset as a 24-hour clock string, e.g. 540 -> "09:00".
func (m Minutes) HHMM() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// ParseHHMM parses a 24-hour "HH:MM" string into a minute-of-day
// offset. The whole string must be the time; trailing text is rejected.
func ParseHHMM(s string) (Minutes, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("schedule: parse time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("schedule: parse time %q: %w", s, err)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("schedule: parse time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("schedule: time %q out of range", s)
	}
	return Minutes(h*60 + m), nil
}

// TimeRange is a half-open [Start, End) window within a single day,
// expressed in minutes since midnight.
type TimeRange struct {
	Start Minutes `json:"start"`
	End   Minutes `json:"end"`
}

// DayPattern holds the open ranges for one weekday. A nil *DayPattern in
// WeeklyPattern means the provider is unavailable that day.
type DayPattern struct {
	Ranges []TimeRange `json:"time_ranges"`
}

// WeeklyPattern maps weekdays to their open ranges.
type WeeklyPattern struct {
	Monday    *DayPattern `json:"monday,omitempty"`
	Tuesday   *DayPattern `json:"tuesday,omitempty"`
	Wednesday *DayPattern `json:"wednesday,omitempty"`
	Thursday  *DayPattern `json:"thursday,omitempty"`
	Friday    *DayPattern `json:"friday,omitempty"`
	Saturday  *DayPattern `json:"saturday,omitempty"`
	Sunday    *DayPattern `json:"sunday,omitempty"`
}

// ForWeekday returns the pattern for the given weekday, nil when closed.
func (w *WeeklyPattern) ForWeekday(day time.Weekday) *DayPattern {
	switch day {
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	case time.Sunday:
		return w.Sunday
	}
	return nil
}

// BlockedDate declares provider unavailability for a calendar date.
// AllDay removes the whole date; otherwise Times lists blocked slot
// start times ("HH:MM") that are dropped from generation.
type BlockedDate struct {
	Date   string   `json:"date"` // "2006-01-02"
	AllDay bool     `json:"all_day"`
	Times  []string `json:"times,omitempty"`
}

// DateOverride replaces the weekly pattern entirely for one date.
type DateOverride struct {
	Date   string      `json:"date"` // "2006-01-02"
	Ranges []TimeRange `json:"time_ranges"`
}

// Template is a provider's full schedule declaration. Precedence when
// resolving a date: blocked > override > weekly pattern.
type Template struct {
	ProviderID          string         `json:"provider_id"`
	Timezone            string         `json:"timezone"` // IANA zone, e.g. "America/New_York"
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	BufferMinutes       int            `json:"buffer_minutes"`
	MaxSlotsPerDay      int            `json:"max_slots_per_day,omitempty"`
	Weekly              WeeklyPattern  `json:"weekly_pattern"`
	Blocked             []BlockedDate  `json:"blocked_dates,omitempty"`
	Overrides           []DateOverride `json:"date_overrides,omitempty"`
	// ConsultationKinds lists the kinds this provider offers. Empty means
	// every kind is offered.
	ConsultationKinds []string  `json:"consultation_kinds,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`
}

// OffersKind reports whether the provider offers the given consultation kind.
func (t *Template) OffersKind(kind string) bool {
	if len(t.ConsultationKinds) == 0 {
		return true
	}
	for _, k := range t.ConsultationKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// DefaultTemplate returns a sensible starting schedule for a new provider.
func DefaultTemplate(providerID string) *Template {
	weekdays := &DayPattern{Ranges: []TimeRange{{Start: 9 * 60, End: 17 * 60}}}
	return &Template{
		ProviderID:          providerID,
		Timezone:            "America/New_York",
		SlotDurationMinutes: 30,
		BufferMinutes:       0,
		Weekly: WeeklyPattern{
			Monday:    weekdays,
			Tuesday:   weekdays,
			Wednesday: weekdays,
			Thursday:  weekdays,
			Friday:    weekdays,
		},
	}
}

// Location resolves the template's IANA time zone.
func (t *Template) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: load timezone %q: %w", t.Timezone, err)
	}
	return loc, nil
}

// Validate checks structural invariants of the template.
func (t *Template) Validate() error {
	if t.ProviderID == "" {
		return fmt.Errorf("%w: provider_id is required", ErrInvalidTemplate)
	}
	if _, err := time.LoadLocation(t.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidTemplate, t.Timezone)
	}
	if t.SlotDurationMinutes < minSlotDuration || t.SlotDurationMinutes > maxSlotDuration {
		return fmt.Errorf("%w: slot duration must be %d-%d minutes", ErrInvalidTemplate, minSlotDuration, maxSlotDuration)
	}
	if t.SlotDurationMinutes%slotGranularity != 0 {
		return fmt.Errorf("%w: slot duration must be a multiple of %d minutes", ErrInvalidTemplate, slotGranularity)
	}
	if t.BufferMinutes < 0 || t.BufferMinutes > maxBufferMinutes {
		return fmt.Errorf("%w: buffer must be 0-%d minutes", ErrInvalidTemplate, maxBufferMinutes)
	}
	if t.MaxSlotsPerDay < 0 {
		return fmt.Errorf("%w: max slots per day cannot be negative", ErrInvalidTemplate)
	}

	for _, day := range []struct {
		name    string
		pattern *DayPattern
	}{
		{"monday", t.Weekly.Monday},
		{"tuesday", t.Weekly.Tuesday},
		{"wednesday", t.Weekly.Wednesday},
		{"thursday", t.Weekly.Thursday},
		{"friday", t.Weekly.Friday},
		{"saturday", t.Weekly.Saturday},
		{"sunday", t.Weekly.Sunday},
	} {
		if day.pattern == nil {
			continue
		}
		if err := validateRanges(day.pattern.Ranges); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidTemplate, day.name, err)
		}
	}

	for _, b := range t.Blocked {
		if _, err := time.Parse("2006-01-02", b.Date); err != nil {
			return fmt.Errorf("%w: blocked date %q is not YYYY-MM-DD", ErrInvalidTemplate, b.Date)
		}
		for _, ts := range b.Times {
			if _, err := ParseHHMM(ts); err != nil {
				return fmt.Errorf("%w: blocked time %q is not HH:MM", ErrInvalidTemplate, ts)
			}
		}
	}

	for _, o := range t.Overrides {
		if _, err := time.Parse("2006-01-02", o.Date); err != nil {
			return fmt.Errorf("%w: override date %q is not YYYY-MM-DD", ErrInvalidTemplate, o.Date)
		}
		if err := validateRanges(o.Ranges); err != nil {
			return fmt.Errorf("%w: override %s: %v", ErrInvalidTemplate, o.Date, err)
		}
	}

	return nil
}

func validateRanges(ranges []TimeRange) error {
	sorted := sortedRanges(ranges)
	for i, r := range sorted {
		if r.Start < 0 || r.End > minutesPerDay {
			return fmt.Errorf("range %s-%s outside the day", r.Start.HHMM(), r.End.HHMM())
		}
		if r.Start >= r.End {
			return fmt.Errorf("range start %s must precede end %s", r.Start.HHMM(), r.End.HHMM())
		}
		if i > 0 && sorted[i-1].End > r.Start {
			return fmt.Errorf("ranges %s-%s and %s-%s overlap",
				sorted[i-1].Start.HHMM(), sorted[i-1].End.HHMM(), r.Start.HHMM(), r.End.HHMM())
		}
	}
	return nil
}

func sortedRanges(ranges []TimeRange) []TimeRange {
	out := make([]TimeRange, len(ranges))
	copy(out, ranges)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
