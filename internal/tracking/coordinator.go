package tracking

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/adherence/pkg/interfaces"
	"github.com/medtrack/adherence/pkg/logger"
	"github.com/medtrack/adherence/pkg/monitoring"
	"github.com/medtrack/adherence/pkg/types"
)

// CoordinatorConfig holds the tunable knobs of the tracking coordinator
type CoordinatorConfig struct {
	MatchTolerance time.Duration
	UpcomingLimit  int
	HorizonDays    int
}

// projection is an immutable read-optimized view of the tracking state.
// A new projection is always computed fully before being published, so
// readers observe either the pre- or post-mutation view, never a partial
// one.
type projection struct {
	Today      []types.OccurrenceView
	Upcoming   []types.OccurrenceView
	Schedules  []*types.ScheduleDefinition
	Doses      []*types.DoseEvent
	ComputedAt time.Time
}

// Coordinator owns the authoritative in-memory collections of schedules
// and dose events. All mutations and projection recomputations run on a
// single worker goroutine; reads are served from the last published
// projection snapshot. Persistence is best-effort and never rolls back
// an in-memory mutation.
type Coordinator struct {
	store      interfaces.TrackingStore
	catalog    interfaces.MedicineCatalog
	evaluator  *Evaluator
	calculator *Calculator
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector

	tolerance     time.Duration
	upcomingLimit int
	horizonDays   int
	now           func() time.Time

	commands chan func()
	stopOnce sync.Once
	stopped  chan struct{}

	// Worker-owned collections. Entries are replaced, never mutated in
	// place, so pointers shared with published projections stay stable.
	schedules []*types.ScheduleDefinition
	doses     []*types.DoseEvent

	snapshot atomic.Pointer[projection]
	loading  atomic.Bool

	errMu   sync.Mutex
	lastErr error
}

// NewCoordinator creates a new tracking coordinator. The medicine catalog
// is an explicit dependency rather than ambient state so the core stays
// testable in isolation.
func NewCoordinator(
	store interfaces.TrackingStore,
	catalog interfaces.MedicineCatalog,
	cfg CoordinatorConfig,
	log *logger.Logger,
	metrics *monitoring.MetricsCollector,
) *Coordinator {
	if cfg.MatchTolerance <= 0 {
		cfg.MatchTolerance = DefaultMatchTolerance
	}
	if cfg.UpcomingLimit <= 0 {
		cfg.UpcomingLimit = 5
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 730
	}

	evaluator := NewEvaluator(log)

	c := &Coordinator{
		store:         store,
		catalog:       catalog,
		evaluator:     evaluator,
		calculator:    NewCalculator(evaluator, cfg.MatchTolerance),
		logger:        log,
		metrics:       metrics,
		tolerance:     cfg.MatchTolerance,
		upcomingLimit: cfg.UpcomingLimit,
		horizonDays:   cfg.HorizonDays,
		now:           time.Now,
		commands:      make(chan func()),
		stopped:       make(chan struct{}),
	}
	c.snapshot.Store(&projection{})
	return c
}

// Start loads the authoritative collections from the store and begins
// processing mutations. A failed initial load leaves the coordinator
// running with empty collections and lastError set.
func (c *Coordinator) Start() {
	c.loading.Store(true)
	c.loadFromStore()
	c.recompute("startup")
	c.loading.Store(false)

	go c.run()
}

// Stop drains the worker. The coordinator cannot be restarted.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.commands)
		<-c.stopped
	})
}

func (c *Coordinator) run() {
	for fn := range c.commands {
		fn()
	}
	close(c.stopped)
}

// do runs fn on the worker goroutine and waits for it to finish
func (c *Coordinator) do(fn func()) {
	done := make(chan struct{})
	c.commands <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// AddSchedule validates and adds a new schedule definition
func (c *Coordinator) AddSchedule(schedule *types.ScheduleDefinition) (*types.ScheduleDefinition, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	var created *types.ScheduleDefinition
	c.do(func() {
		s := *schedule
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		now := c.now()
		s.CreatedAt = now
		s.UpdatedAt = now

		c.schedules = append(c.schedules, &s)
		c.persistAsync("save_schedule", func() error { return c.store.SaveSchedule(&s) })
		c.recompute("mutation")
		created = &s
	})

	c.logger.WithSchedule(created.ID).WithField("medicine_id", created.MedicineID).Info("Schedule added")
	return created, nil
}

// UpdateSchedule applies a partial update to an existing schedule. The
// updated definition is validated before it replaces the current one.
func (c *Coordinator) UpdateSchedule(id string, updates *types.ScheduleUpdates) (*types.ScheduleDefinition, error) {
	var updated *types.ScheduleDefinition
	var opErr error

	c.do(func() {
		idx := c.scheduleIndex(id)
		if idx < 0 {
			opErr = types.NewNotFoundError(types.ErrCodeNotFound, "schedule not found: "+id)
			return
		}

		s := *c.schedules[idx]
		applyScheduleUpdates(&s, updates)
		if err := s.Validate(); err != nil {
			opErr = err
			return
		}
		s.UpdatedAt = c.now()

		c.schedules[idx] = &s
		c.persistAsync("save_schedule", func() error { return c.store.SaveSchedule(&s) })
		c.recompute("mutation")
		updated = &s
	})

	if opErr != nil {
		return nil, opErr
	}
	c.logger.WithSchedule(id).Info("Schedule updated")
	return updated, nil
}

// DeleteSchedule removes a schedule and cascades to every dose event
// recorded for the same medicine.
func (c *Coordinator) DeleteSchedule(id string) error {
	var opErr error

	c.do(func() {
		idx := c.scheduleIndex(id)
		if idx < 0 {
			opErr = types.NewNotFoundError(types.ErrCodeNotFound, "schedule not found: "+id)
			return
		}

		medicineID := c.schedules[idx].MedicineID
		c.schedules = append(c.schedules[:idx:idx], c.schedules[idx+1:]...)

		kept := c.doses[:0:0]
		for _, dose := range c.doses {
			if dose.MedicineID != medicineID {
				kept = append(kept, dose)
			}
		}
		c.doses = kept

		c.persistAsync("delete_schedule", func() error { return c.store.DeleteSchedule(id) })
		c.persistAsync("delete_medicine_doses", func() error { return c.store.DeleteAllForMedicine(medicineID) })
		c.recompute("mutation")

		c.logger.WithSchedule(id).WithField("medicine_id", medicineID).Info("Schedule deleted with dose cascade")
	})

	return opErr
}

// RecordDose validates and records a new dose event
func (c *Coordinator) RecordDose(dose *types.DoseEvent) (*types.DoseEvent, error) {
	if err := dose.Validate(); err != nil {
		return nil, err
	}

	var created *types.DoseEvent
	c.do(func() {
		d := *dose
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		now := c.now()
		d.CreatedAt = now
		d.UpdatedAt = now

		c.doses = append(c.doses, &d)
		c.persistAsync("save_dose", func() error { return c.store.SaveDose(&d) })
		c.recompute("mutation")
		created = &d
	})

	c.logger.WithMedicine(created.MedicineID).WithField("dose_id", created.ID).Info("Dose recorded")
	return created, nil
}

// UpdateDose applies a partial update to an existing dose event
func (c *Coordinator) UpdateDose(id string, updates *types.DoseUpdates) (*types.DoseEvent, error) {
	var updated *types.DoseEvent
	var opErr error

	c.do(func() {
		idx := c.doseIndex(id)
		if idx < 0 {
			opErr = types.NewNotFoundError(types.ErrCodeNotFound, "dose event not found: "+id)
			return
		}

		d := *c.doses[idx]
		if updates.Timestamp != nil {
			d.Timestamp = *updates.Timestamp
		}
		if updates.Status != nil {
			d.Status = *updates.Status
		}
		if updates.Notes != nil {
			d.Notes = *updates.Notes
		}
		if updates.SkippedReason != nil {
			d.SkippedReason = *updates.SkippedReason
		}
		if err := d.Validate(); err != nil {
			opErr = err
			return
		}
		d.UpdatedAt = c.now()

		c.doses[idx] = &d
		c.persistAsync("save_dose", func() error { return c.store.SaveDose(&d) })
		c.recompute("mutation")
		updated = &d
	})

	if opErr != nil {
		return nil, opErr
	}
	return updated, nil
}

// DeleteDose removes a dose event
func (c *Coordinator) DeleteDose(id string) error {
	var opErr error

	c.do(func() {
		idx := c.doseIndex(id)
		if idx < 0 {
			opErr = types.NewNotFoundError(types.ErrCodeNotFound, "dose event not found: "+id)
			return
		}

		c.doses = append(c.doses[:idx:idx], c.doses[idx+1:]...)
		c.persistAsync("delete_dose", func() error { return c.store.DeleteDose(id) })
		c.recompute("mutation")
	})

	return opErr
}

// RefreshAll forces a full reload from the store followed by a
// projection recompute. A failed reload keeps the current in-memory
// collections authoritative.
func (c *Coordinator) RefreshAll() error {
	var opErr error
	c.do(func() {
		schedules, err := c.store.LoadAllSchedules()
		if err != nil {
			opErr = types.NewPersistenceError(types.ErrCodeLoadFailed, "failed to reload schedules", err)
			c.setLastError(opErr)
			c.recompute("refresh")
			return
		}
		doses, err := c.store.LoadAllDoses()
		if err != nil {
			opErr = types.NewPersistenceError(types.ErrCodeLoadFailed, "failed to reload dose events", err)
			c.setLastError(opErr)
			c.recompute("refresh")
			return
		}

		c.schedules = schedules
		c.doses = doses
		c.setLastError(nil)
		c.recompute("refresh")
	})
	return opErr
}

// TodayOccurrences returns the current day's matched occurrences
func (c *Coordinator) TodayOccurrences() []types.OccurrenceView {
	return c.snapshot.Load().Today
}

// UpcomingOccurrences returns the next occurrence per schedule, soonest
// first, capped at the configured limit
func (c *Coordinator) UpcomingOccurrences() []types.OccurrenceView {
	return c.snapshot.Load().Upcoming
}

// NextOccurrence returns the earliest occurrence of the schedule
// strictly after now, or nil for as-needed and expired schedules
func (c *Coordinator) NextOccurrence(scheduleID string) (*types.Occurrence, error) {
	for _, schedule := range c.snapshot.Load().Schedules {
		if schedule.ID == scheduleID {
			return c.evaluator.NextOccurrence(schedule, c.now(), c.horizonDays), nil
		}
	}
	return nil, types.NewNotFoundError(types.ErrCodeNotFound, "schedule not found: "+scheduleID)
}

// Schedules returns the schedules in the current snapshot
func (c *Coordinator) Schedules() []*types.ScheduleDefinition {
	return c.snapshot.Load().Schedules
}

// DoseEvents returns the dose events in the current snapshot
func (c *Coordinator) DoseEvents() []*types.DoseEvent {
	return c.snapshot.Load().Doses
}

// Adherence computes the adherence report for a medicine over the last
// `days` calendar days ending today
func (c *Coordinator) Adherence(medicineID string, days int) (*types.AdherenceReport, error) {
	if days <= 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "adherence window must cover at least one day", map[string]interface{}{
			"days": days,
		})
	}

	snap := c.snapshot.Load()
	today := c.now()
	from := startOfDay(today).AddDate(0, 0, -(days - 1))
	return c.calculator.Adherence(medicineID, snap.Schedules, snap.Doses, from, today), nil
}

// IsLoading reports whether the initial load is still in progress
func (c *Coordinator) IsLoading() bool {
	return c.loading.Load()
}

// LastError returns the most recent non-fatal failure surfaced to the
// presentation layer, or nil
func (c *Coordinator) LastError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

func (c *Coordinator) setLastError(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}

func (c *Coordinator) scheduleIndex(id string) int {
	for i, s := range c.schedules {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (c *Coordinator) doseIndex(id string) int {
	for i, d := range c.doses {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// loadFromStore populates the collections from the persistence
// collaborator. Failures degrade to empty collections plus lastError;
// they never crash the coordinator.
func (c *Coordinator) loadFromStore() {
	schedules, err := c.store.LoadAllSchedules()
	if err != nil {
		c.logger.WithError(err).Error("Initial schedule load failed, starting empty")
		c.setLastError(types.NewPersistenceError(types.ErrCodeLoadFailed, "failed to load schedules", err))
		c.schedules = nil
		c.doses = nil
		return
	}

	doses, err := c.store.LoadAllDoses()
	if err != nil {
		c.logger.WithError(err).Error("Initial dose load failed, starting empty")
		c.setLastError(types.NewPersistenceError(types.ErrCodeLoadFailed, "failed to load dose events", err))
		c.schedules = schedules
		c.doses = nil
		return
	}

	c.schedules = schedules
	c.doses = doses
	c.logger.WithFields(map[string]interface{}{
		"schedules": len(schedules),
		"doses":     len(doses),
	}).Info("Tracking state loaded")
}

// persistAsync writes through to the store off the worker goroutine with
// best-effort retries. The in-memory state is the source of truth, so a
// persistence failure is logged and counted but never rolled back.
func (c *Coordinator) persistAsync(operation string, fn func() error) {
	go func() {
		var err error
		for attempt := 1; attempt <= 3; attempt++ {
			if err = fn(); err == nil {
				return
			}
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"operation": operation,
				"attempt":   attempt,
			}).Warn("Persistence operation failed")
			if c.metrics != nil {
				c.metrics.RecordPersistenceRetry(operation)
			}
			time.Sleep(time.Duration(attempt) * 250 * time.Millisecond)
		}

		if c.metrics != nil {
			c.metrics.RecordPersistenceFailure(operation)
		}
		c.setLastError(types.NewPersistenceError(types.ErrCodeSaveFailed, "persistence operation failed: "+operation, err))
	}()
}

// recompute rebuilds both projections from the full current state and
// publishes them atomically. Recomputing from scratch after every
// mutation is deliberate: it is idempotent and cannot drift, unlike
// incremental patching.
func (c *Coordinator) recompute(trigger string) {
	start := time.Now()
	now := c.now()

	medicines := make(map[string]*types.Medicine)

	var todayOccurrences []types.Occurrence
	for _, schedule := range c.schedules {
		todayOccurrences = append(todayOccurrences, c.evaluator.OccurrencesOnDay(schedule, now)...)
	}

	today := make([]types.OccurrenceView, 0, len(todayOccurrences))
	for _, occ := range MatchDoses(todayOccurrences, c.doses, c.tolerance) {
		med := c.lookupMedicine(medicines, occ.MedicineID)
		if med == nil {
			continue
		}
		today = append(today, types.OccurrenceView{
			Occurrence:   occ,
			MedicineName: med.Name,
			MedicineType: med.Type,
		})
	}

	upcoming := make([]types.OccurrenceView, 0, len(c.schedules))
	for _, schedule := range c.schedules {
		next := c.evaluator.NextOccurrence(schedule, now, c.horizonDays)
		if next == nil {
			continue
		}
		med := c.lookupMedicine(medicines, next.MedicineID)
		if med == nil {
			continue
		}
		upcoming = append(upcoming, types.OccurrenceView{
			Occurrence:   *next,
			MedicineName: med.Name,
			MedicineType: med.Type,
		})
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].ScheduledTime.Before(upcoming[j].ScheduledTime)
	})
	if len(upcoming) > c.upcomingLimit {
		upcoming = upcoming[:c.upcomingLimit]
	}

	schedules := make([]*types.ScheduleDefinition, len(c.schedules))
	copy(schedules, c.schedules)
	doses := make([]*types.DoseEvent, len(c.doses))
	copy(doses, c.doses)

	c.snapshot.Store(&projection{
		Today:      today,
		Upcoming:   upcoming,
		Schedules:  schedules,
		Doses:      doses,
		ComputedAt: now,
	})

	if c.metrics != nil {
		c.metrics.RecordRecompute(trigger, time.Since(start))
	}
}

// lookupMedicine resolves display data through the catalog, memoizing
// per recompute pass. A miss excludes the schedule from projections but
// never removes it from the authoritative collection; the lookup is
// retried on the next recompute.
func (c *Coordinator) lookupMedicine(seen map[string]*types.Medicine, medicineID string) *types.Medicine {
	if med, ok := seen[medicineID]; ok {
		return med
	}

	med, err := c.catalog.LookupMedicine(medicineID)
	if err != nil {
		c.logger.WithMedicine(medicineID).WithError(err).Debug("Catalog lookup miss, excluding from projection")
		if c.metrics != nil {
			c.metrics.RecordCatalogMiss()
		}
		seen[medicineID] = nil
		return nil
	}

	seen[medicineID] = med
	return med
}

// applyScheduleUpdates copies the non-nil update fields onto the schedule
func applyScheduleUpdates(s *types.ScheduleDefinition, updates *types.ScheduleUpdates) {
	if updates.Frequency != nil {
		s.Frequency = *updates.Frequency
	}
	if updates.TimesOfDay != nil {
		s.TimesOfDay = updates.TimesOfDay
	}
	if updates.DaysOfWeek != nil {
		s.DaysOfWeek = updates.DaysOfWeek
	}
	if updates.CustomIntervalDays != nil {
		s.CustomIntervalDays = *updates.CustomIntervalDays
	}
	if updates.StartDate != nil {
		s.StartDate = *updates.StartDate
	}
	if updates.ClearEndDate {
		s.EndDate = nil
	} else if updates.EndDate != nil {
		end := *updates.EndDate
		s.EndDate = &end
	}
	if updates.Active != nil {
		s.Active = *updates.Active
	}
	if updates.Notes != nil {
		s.Notes = *updates.Notes
	}
}
