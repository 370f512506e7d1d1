package types

import "time"

// Medicine represents the display data of an externally-owned medicine
// record. The tracking core references medicines by id only and never
// mutates them.
type Medicine struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Type         string    `json:"type" db:"type"`
	Manufacturer string    `json:"manufacturer" db:"manufacturer"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
