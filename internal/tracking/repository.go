package tracking

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/medtrack/adherence/pkg/interfaces"
	"github.com/medtrack/adherence/pkg/logger"
	"github.com/medtrack/adherence/pkg/types"
)

// Store implements the TrackingStore interface on PostgreSQL
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStore creates a new tracking store
func NewStore(db *sql.DB, log *logger.Logger) interfaces.TrackingStore {
	return &Store{
		db:     db,
		logger: log,
	}
}

// LoadAllSchedules loads every schedule definition
func (s *Store) LoadAllSchedules() ([]*types.ScheduleDefinition, error) {
	query := `
		SELECT id, medicine_id, frequency, times_of_day, days_of_week,
		       custom_interval_days, start_date, end_date, active, notes,
		       created_at, updated_at
		FROM schedules
		ORDER BY created_at`

	rows, err := s.db.Query(query)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load schedules")
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*types.ScheduleDefinition
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}
	return schedules, nil
}

// LoadAllDoses loads every recorded dose event
func (s *Store) LoadAllDoses() ([]*types.DoseEvent, error) {
	query := `
		SELECT id, medicine_id, timestamp, status, notes, skipped_reason,
		       created_at, updated_at
		FROM dose_events
		ORDER BY timestamp`

	rows, err := s.db.Query(query)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load dose events")
		return nil, fmt.Errorf("failed to load dose events: %w", err)
	}
	defer rows.Close()

	var doses []*types.DoseEvent
	for rows.Next() {
		dose := &types.DoseEvent{}
		if err := rows.Scan(
			&dose.ID,
			&dose.MedicineID,
			&dose.Timestamp,
			&dose.Status,
			&dose.Notes,
			&dose.SkippedReason,
			&dose.CreatedAt,
			&dose.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dose event: %w", err)
		}
		doses = append(doses, dose)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dose events: %w", err)
	}
	return doses, nil
}

// SaveSchedule inserts or replaces a schedule definition
func (s *Store) SaveSchedule(schedule *types.ScheduleDefinition) error {
	times, err := json.Marshal(schedule.TimesOfDay)
	if err != nil {
		return fmt.Errorf("failed to encode times of day: %w", err)
	}

	var days []byte
	if schedule.DaysOfWeek != nil {
		if days, err = json.Marshal(schedule.DaysOfWeek); err != nil {
			return fmt.Errorf("failed to encode days of week: %w", err)
		}
	}

	query := `
		INSERT INTO schedules (
			id, medicine_id, frequency, times_of_day, days_of_week,
			custom_interval_days, start_date, end_date, active, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			medicine_id = EXCLUDED.medicine_id,
			frequency = EXCLUDED.frequency,
			times_of_day = EXCLUDED.times_of_day,
			days_of_week = EXCLUDED.days_of_week,
			custom_interval_days = EXCLUDED.custom_interval_days,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			active = EXCLUDED.active,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at`

	_, err = s.db.Exec(query,
		schedule.ID,
		schedule.MedicineID,
		schedule.Frequency,
		times,
		days,
		schedule.CustomIntervalDays,
		schedule.StartDate,
		schedule.EndDate,
		schedule.Active,
		schedule.Notes,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		s.logger.WithSchedule(schedule.ID).WithError(err).Error("Failed to save schedule")
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule definition
func (s *Store) DeleteSchedule(id string) error {
	if _, err := s.db.Exec(`DELETE FROM schedules WHERE id = $1`, id); err != nil {
		s.logger.WithSchedule(id).WithError(err).Error("Failed to delete schedule")
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}

// SaveDose inserts or replaces a dose event
func (s *Store) SaveDose(dose *types.DoseEvent) error {
	query := `
		INSERT INTO dose_events (
			id, medicine_id, timestamp, status, notes, skipped_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			medicine_id = EXCLUDED.medicine_id,
			timestamp = EXCLUDED.timestamp,
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			skipped_reason = EXCLUDED.skipped_reason,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.Exec(query,
		dose.ID,
		dose.MedicineID,
		dose.Timestamp,
		dose.Status,
		dose.Notes,
		dose.SkippedReason,
		dose.CreatedAt,
		dose.UpdatedAt,
	)
	if err != nil {
		s.logger.WithError(err).WithField("dose_id", dose.ID).Error("Failed to save dose event")
		return fmt.Errorf("failed to save dose event: %w", err)
	}
	return nil
}

// DeleteDose removes a dose event
func (s *Store) DeleteDose(id string) error {
	if _, err := s.db.Exec(`DELETE FROM dose_events WHERE id = $1`, id); err != nil {
		s.logger.WithError(err).WithField("dose_id", id).Error("Failed to delete dose event")
		return fmt.Errorf("failed to delete dose event: %w", err)
	}
	return nil
}

// DeleteAllForMedicine removes every dose event recorded for a medicine
func (s *Store) DeleteAllForMedicine(medicineID string) error {
	if _, err := s.db.Exec(`DELETE FROM dose_events WHERE medicine_id = $1`, medicineID); err != nil {
		s.logger.WithMedicine(medicineID).WithError(err).Error("Failed to delete dose events for medicine")
		return fmt.Errorf("failed to delete dose events for medicine: %w", err)
	}
	return nil
}

// scanSchedule reads one schedule row, decoding the JSON-encoded time
// and weekday columns
func scanSchedule(rows *sql.Rows) (*types.ScheduleDefinition, error) {
	schedule := &types.ScheduleDefinition{}
	var times []byte
	var days []byte
	var endDate sql.NullTime

	if err := rows.Scan(
		&schedule.ID,
		&schedule.MedicineID,
		&schedule.Frequency,
		&times,
		&days,
		&schedule.CustomIntervalDays,
		&schedule.StartDate,
		&endDate,
		&schedule.Active,
		&schedule.Notes,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	if err := json.Unmarshal(times, &schedule.TimesOfDay); err != nil {
		return nil, fmt.Errorf("failed to decode times of day: %w", err)
	}
	if len(days) > 0 {
		if err := json.Unmarshal(days, &schedule.DaysOfWeek); err != nil {
			return nil, fmt.Errorf("failed to decode days of week: %w", err)
		}
	}
	if endDate.Valid {
		schedule.EndDate = &endDate.Time
	}

	return schedule, nil
}
