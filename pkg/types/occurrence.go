package types

import "time"

// MatchStatus represents the state of an occurrence after dose matching
type MatchStatus string

const (
	MatchDue     MatchStatus = "due"
	MatchTaken   MatchStatus = "taken"
	MatchMissed  MatchStatus = "missed"
	MatchSkipped MatchStatus = "skipped"
)

// Occurrence is a single derived due-moment produced by applying a
// schedule's recurrence rule to a day. Occurrences are computed on demand
// and never persisted.
type Occurrence struct {
	MedicineID    string      `json:"medicine_id"`
	ScheduleID    string      `json:"schedule_id"`
	ScheduledTime time.Time   `json:"scheduled_time"`
	MatchStatus   MatchStatus `json:"match_status"`
	MatchedDoseID string      `json:"matched_dose_id,omitempty"`
}

// OccurrenceView is an occurrence decorated with medicine display data
// for consumption by the presentation layer.
type OccurrenceView struct {
	Occurrence
	MedicineName string `json:"medicine_name"`
	MedicineType string `json:"medicine_type,omitempty"`
}

// DayOccurrences groups a day's occurrences for range queries
type DayOccurrences struct {
	Day         time.Time    `json:"day"`
	Occurrences []Occurrence `json:"occurrences"`
}

// AdherenceReport summarizes expected versus taken doses over a window
type AdherenceReport struct {
	MedicineID string    `json:"medicine_id,omitempty"`
	WindowFrom time.Time `json:"window_from"`
	WindowTo   time.Time `json:"window_to"`
	Expected   int       `json:"expected"`
	Taken      int       `json:"taken"`
	Rate       float64   `json:"rate"`
	Streak     int       `json:"streak"`
}
