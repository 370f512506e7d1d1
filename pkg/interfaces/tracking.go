package interfaces

import (
	"github.com/medtrack/adherence/pkg/types"
)

// TrackingStore defines the persistence contract for schedules and dose
// events. Implementations may fail on any call; failures are non-fatal to
// the tracking core, which treats its in-memory collections as
// authoritative.
type TrackingStore interface {
	LoadAllSchedules() ([]*types.ScheduleDefinition, error)
	LoadAllDoses() ([]*types.DoseEvent, error)
	SaveSchedule(schedule *types.ScheduleDefinition) error
	DeleteSchedule(id string) error
	SaveDose(dose *types.DoseEvent) error
	DeleteDose(id string) error
	DeleteAllForMedicine(medicineID string) error
}

// MedicineCatalog defines the read-only medicine lookup used to decorate
// projections with display data. Lookups are never used for recurrence
// or adherence computation.
type MedicineCatalog interface {
	LookupMedicine(id string) (*types.Medicine, error)
}

// TrackingService defines the in-process API exposed to the presentation
// layer.
type TrackingService interface {
	// Schedule mutations
	AddSchedule(schedule *types.ScheduleDefinition) (*types.ScheduleDefinition, error)
	UpdateSchedule(id string, updates *types.ScheduleUpdates) (*types.ScheduleDefinition, error)
	DeleteSchedule(id string) error

	// Dose mutations
	RecordDose(dose *types.DoseEvent) (*types.DoseEvent, error)
	UpdateDose(id string, updates *types.DoseUpdates) (*types.DoseEvent, error)
	DeleteDose(id string) error

	// Projections
	TodayOccurrences() []types.OccurrenceView
	UpcomingOccurrences() []types.OccurrenceView
	NextOccurrence(scheduleID string) (*types.Occurrence, error)

	// Queries
	Schedules() []*types.ScheduleDefinition
	DoseEvents() []*types.DoseEvent
	Adherence(medicineID string, days int) (*types.AdherenceReport, error)

	// State
	IsLoading() bool
	LastError() error
	RefreshAll() error

	// Service management
	Start(addr string) error
	Stop() error
}
