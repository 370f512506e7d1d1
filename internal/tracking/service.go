package tracking

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/medtrack/adherence/pkg/config"
	"github.com/medtrack/adherence/pkg/database"
	"github.com/medtrack/adherence/pkg/interfaces"
	"github.com/medtrack/adherence/pkg/logger"
	"github.com/medtrack/adherence/pkg/monitoring"
	"github.com/medtrack/adherence/pkg/types"
)

const serviceName = "tracking-service"
const serviceVersion = "1.0.0"

// Service exposes the tracking coordinator over HTTP. All recurrence,
// matching, and adherence semantics live in the coordinator and the pure
// functions it drives; this layer only decodes, delegates, and encodes.
type Service struct {
	config      *config.Config
	logger      *logger.Logger
	db          *database.DB
	coordinator *Coordinator
	refresher   *Refresher
	metrics     *monitoring.MetricsCollector
	health      *monitoring.HealthManager
	server      *http.Server
}

// New creates a new tracking service wired to PostgreSQL
func New(cfg *config.Config, log *logger.Logger) (*Service, error) {
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	store := NewStore(db.DB, log)
	cache := NewMedicineCache(15 * time.Minute)
	catalog := NewCatalog(db.DB, cache, log)

	var metrics *monitoring.MetricsCollector
	if cfg.Monitoring.Enabled {
		metrics = monitoring.NewMetricsCollector(serviceName)
	}

	coordinator := NewCoordinator(store, catalog, CoordinatorConfig{
		MatchTolerance: time.Duration(cfg.Tracking.MatchToleranceMinutes) * time.Minute,
		UpcomingLimit:  cfg.Tracking.UpcomingLimit,
		HorizonDays:    cfg.Tracking.ScanHorizonDays,
	}, log, metrics)

	health := monitoring.NewHealthManager(serviceName, serviceVersion)
	health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	health.RegisterChecker("tracking", trackingHealthChecker(coordinator))

	return &Service{
		config:      cfg,
		logger:      log,
		db:          db,
		coordinator: coordinator,
		refresher:   NewRefresher(coordinator, log),
		metrics:     metrics,
		health:      health,
	}, nil
}

// trackingHealthChecker reports the coordinator's state: degraded while
// the initial load runs or after a persistence failure, since the
// in-memory collections keep serving either way.
func trackingHealthChecker(coordinator *Coordinator) monitoring.HealthChecker {
	return monitoring.NewCustomHealthChecker(func(ctx context.Context) monitoring.HealthCheck {
		start := time.Now()
		check := monitoring.HealthCheck{
			LastChecked: start,
			Status:      monitoring.HealthStatusHealthy,
		}

		if coordinator.IsLoading() {
			check.Status = monitoring.HealthStatusDegraded
			check.Message = "initial load in progress"
		} else if err := coordinator.LastError(); err != nil {
			check.Status = monitoring.HealthStatusDegraded
			check.Message = err.Error()
		}

		check.Duration = time.Since(start)
		return check
	})
}

// Start loads the tracking state, begins the refresh cycle, and serves
// the HTTP API
func (s *Service) Start(addr string) error {
	s.coordinator.Start()

	if err := s.refresher.Start(s.config.Tracking.RefreshSpec); err != nil {
		return fmt.Errorf("failed to start refresh cycle: %w", err)
	}

	router := mux.NewRouter()
	s.setupRoutes(router)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.config.Server.IdleTimeout) * time.Second,
	}

	s.logger.WithField("addr", addr).Info("Starting tracking service")
	return s.server.ListenAndServe()
}

// Stop shuts the service down in reverse start order
func (s *Service) Stop() error {
	s.logger.Info("Stopping tracking service")

	var firstErr error
	if s.server != nil {
		if err := s.server.Close(); err != nil {
			firstErr = err
		}
	}

	s.refresher.Stop()
	s.coordinator.Stop()

	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// AddSchedule validates and adds a new schedule definition
func (s *Service) AddSchedule(schedule *types.ScheduleDefinition) (*types.ScheduleDefinition, error) {
	return s.coordinator.AddSchedule(schedule)
}

// UpdateSchedule applies a partial update to a schedule definition
func (s *Service) UpdateSchedule(id string, updates *types.ScheduleUpdates) (*types.ScheduleDefinition, error) {
	return s.coordinator.UpdateSchedule(id, updates)
}

// DeleteSchedule removes a schedule and its medicine's dose events
func (s *Service) DeleteSchedule(id string) error {
	return s.coordinator.DeleteSchedule(id)
}

// RecordDose records a new dose event
func (s *Service) RecordDose(dose *types.DoseEvent) (*types.DoseEvent, error) {
	return s.coordinator.RecordDose(dose)
}

// UpdateDose applies a partial update to a dose event
func (s *Service) UpdateDose(id string, updates *types.DoseUpdates) (*types.DoseEvent, error) {
	return s.coordinator.UpdateDose(id, updates)
}

// DeleteDose removes a dose event
func (s *Service) DeleteDose(id string) error {
	return s.coordinator.DeleteDose(id)
}

// TodayOccurrences returns today's matched occurrences
func (s *Service) TodayOccurrences() []types.OccurrenceView {
	return s.coordinator.TodayOccurrences()
}

// UpcomingOccurrences returns the soonest next occurrences across schedules
func (s *Service) UpcomingOccurrences() []types.OccurrenceView {
	return s.coordinator.UpcomingOccurrences()
}

// NextOccurrence returns a schedule's next due moment
func (s *Service) NextOccurrence(scheduleID string) (*types.Occurrence, error) {
	return s.coordinator.NextOccurrence(scheduleID)
}

// Schedules returns the current schedule collection
func (s *Service) Schedules() []*types.ScheduleDefinition {
	return s.coordinator.Schedules()
}

// DoseEvents returns the current dose event collection
func (s *Service) DoseEvents() []*types.DoseEvent {
	return s.coordinator.DoseEvents()
}

// Adherence computes an adherence report over the last days
func (s *Service) Adherence(medicineID string, days int) (*types.AdherenceReport, error) {
	return s.coordinator.Adherence(medicineID, days)
}

// IsLoading reports whether the initial load is in progress
func (s *Service) IsLoading() bool {
	return s.coordinator.IsLoading()
}

// LastError returns the most recent non-fatal failure
func (s *Service) LastError() error {
	return s.coordinator.LastError()
}

// RefreshAll forces a full reload and recompute
func (s *Service) RefreshAll() error {
	return s.coordinator.RefreshAll()
}

var _ interfaces.TrackingService = (*Service)(nil)
