package types

import "time"

// DoseStatus represents the recorded outcome of a dose
type DoseStatus string

const (
	DoseTaken   DoseStatus = "taken"
	DoseMissed  DoseStatus = "missed"
	DoseSkipped DoseStatus = "skipped"
)

// Valid reports whether the dose status is one of the known values
func (d DoseStatus) Valid() bool {
	switch d {
	case DoseTaken, DoseMissed, DoseSkipped:
		return true
	}
	return false
}

// DoseEvent represents a recorded dose for a medicine
type DoseEvent struct {
	ID            string     `json:"id" db:"id"`
	MedicineID    string     `json:"medicine_id" db:"medicine_id"`
	Timestamp     time.Time  `json:"timestamp" db:"timestamp"`
	Status        DoseStatus `json:"status" db:"status"`
	Notes         string     `json:"notes,omitempty" db:"notes"`
	SkippedReason string     `json:"skipped_reason,omitempty" db:"skipped_reason"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Validate checks the dose event invariants
func (d *DoseEvent) Validate() error {
	if d.MedicineID == "" {
		return NewValidationError("DOSE_MEDICINE_REQUIRED", "medicine id is required", nil)
	}

	if d.Timestamp.IsZero() {
		return NewValidationError("DOSE_TIMESTAMP_REQUIRED", "timestamp is required", nil)
	}

	if !d.Status.Valid() {
		return NewValidationError("DOSE_STATUS_INVALID", "unknown dose status", map[string]interface{}{
			"status": string(d.Status),
		})
	}

	return nil
}

// DoseUpdates represents a partial update to a dose event
type DoseUpdates struct {
	Timestamp     *time.Time  `json:"timestamp,omitempty"`
	Status        *DoseStatus `json:"status,omitempty"`
	Notes         *string     `json:"notes,omitempty"`
	SkippedReason *string     `json:"skipped_reason,omitempty"`
}
