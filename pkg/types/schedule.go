package types

import "time"

// FrequencyKind represents how often a schedule recurs
type FrequencyKind string

const (
	FrequencyDaily           FrequencyKind = "daily"
	FrequencyTwiceDaily      FrequencyKind = "twice_daily"
	FrequencyThreeTimesDaily FrequencyKind = "three_times_daily"
	FrequencyWeekly          FrequencyKind = "weekly"
	FrequencyCustom          FrequencyKind = "custom"
	FrequencyAsNeeded        FrequencyKind = "as_needed"
)

// DoseCount returns the number of wall-clock times the frequency requires
func (f FrequencyKind) DoseCount() int {
	switch f {
	case FrequencyTwiceDaily:
		return 2
	case FrequencyThreeTimesDaily:
		return 3
	default:
		return 1
	}
}

// Valid reports whether the frequency kind is one of the known values
func (f FrequencyKind) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyTwiceDaily, FrequencyThreeTimesDaily,
		FrequencyWeekly, FrequencyCustom, FrequencyAsNeeded:
		return true
	}
	return false
}

// TimeOfDay represents a wall-clock time without a date
type TimeOfDay struct {
	Hour   int `json:"hour" db:"hour"`
	Minute int `json:"minute" db:"minute"`
}

// On anchors the wall-clock time to the given calendar day
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// Before reports whether t is earlier in the day than other
func (t TimeOfDay) Before(other TimeOfDay) bool {
	if t.Hour != other.Hour {
		return t.Hour < other.Hour
	}
	return t.Minute < other.Minute
}

// ScheduleDefinition represents a recurring medication schedule
type ScheduleDefinition struct {
	ID                 string        `json:"id" db:"id"`
	MedicineID         string        `json:"medicine_id" db:"medicine_id"`
	Frequency          FrequencyKind `json:"frequency" db:"frequency"`
	TimesOfDay         []TimeOfDay   `json:"times_of_day" db:"times_of_day"`
	DaysOfWeek         []int         `json:"days_of_week,omitempty" db:"days_of_week"`
	CustomIntervalDays int           `json:"custom_interval_days,omitempty" db:"custom_interval_days"`
	StartDate          time.Time     `json:"start_date" db:"start_date"`
	EndDate            *time.Time    `json:"end_date,omitempty" db:"end_date"`
	Active             bool          `json:"active" db:"active"`
	Notes              string        `json:"notes,omitempty" db:"notes"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

// Validate checks the schedule invariants. Invalid schedules are rejected
// at the mutation boundary, never repaired.
func (s *ScheduleDefinition) Validate() error {
	if s.MedicineID == "" {
		return NewValidationError("SCHEDULE_MEDICINE_REQUIRED", "medicine id is required", nil)
	}

	if !s.Frequency.Valid() {
		return NewValidationError("SCHEDULE_FREQUENCY_INVALID", "unknown frequency kind", map[string]interface{}{
			"frequency": string(s.Frequency),
		})
	}

	if len(s.TimesOfDay) == 0 {
		return NewValidationError("SCHEDULE_TIMES_REQUIRED", "at least one time of day is required", nil)
	}

	if want := s.Frequency.DoseCount(); len(s.TimesOfDay) != want {
		return NewValidationError("SCHEDULE_TIMES_MISMATCH", "time of day count does not match frequency", map[string]interface{}{
			"frequency": string(s.Frequency),
			"expected":  want,
			"actual":    len(s.TimesOfDay),
		})
	}

	for _, tod := range s.TimesOfDay {
		if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 {
			return NewValidationError("SCHEDULE_TIME_INVALID", "time of day out of range", map[string]interface{}{
				"hour":   tod.Hour,
				"minute": tod.Minute,
			})
		}
	}

	if s.Frequency == FrequencyWeekly {
		if len(s.DaysOfWeek) == 0 {
			return NewValidationError("SCHEDULE_WEEKDAYS_REQUIRED", "weekly schedules require at least one weekday", nil)
		}
		for _, d := range s.DaysOfWeek {
			if d < 1 || d > 7 {
				return NewValidationError("SCHEDULE_WEEKDAY_INVALID", "weekday must be 1 (Monday) through 7 (Sunday)", map[string]interface{}{
					"weekday": d,
				})
			}
		}
	}

	if s.Frequency == FrequencyCustom && s.CustomIntervalDays < 1 {
		return NewValidationError("SCHEDULE_INTERVAL_INVALID", "custom schedules require a positive interval in days", map[string]interface{}{
			"interval_days": s.CustomIntervalDays,
		})
	}

	if s.StartDate.IsZero() {
		return NewValidationError("SCHEDULE_START_REQUIRED", "start date is required", nil)
	}

	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return NewValidationError("SCHEDULE_END_BEFORE_START", "end date must not precede start date", map[string]interface{}{
			"start_date": s.StartDate,
			"end_date":   *s.EndDate,
		})
	}

	return nil
}

// ScheduleUpdates represents a partial update to a schedule definition
type ScheduleUpdates struct {
	Frequency          *FrequencyKind `json:"frequency,omitempty"`
	TimesOfDay         []TimeOfDay    `json:"times_of_day,omitempty"`
	DaysOfWeek         []int          `json:"days_of_week,omitempty"`
	CustomIntervalDays *int           `json:"custom_interval_days,omitempty"`
	StartDate          *time.Time     `json:"start_date,omitempty"`
	EndDate            *time.Time     `json:"end_date,omitempty"`
	ClearEndDate       bool           `json:"clear_end_date,omitempty"`
	Active             *bool          `json:"active,omitempty"`
	Notes              *string        `json:"notes,omitempty"`
}
