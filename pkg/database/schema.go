package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the database schema for medication tracking
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	tables := []string{
		createMedicinesTable,
		createSchedulesTable,
		createDoseEventsTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createSchedulesIndexes,
		createDoseEventsIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

const createMedicinesTable = `
CREATE TABLE IF NOT EXISTS medicines (
	id VARCHAR(64) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	type VARCHAR(64) NOT NULL DEFAULT '',
	manufacturer VARCHAR(255) NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createSchedulesTable = `
CREATE TABLE IF NOT EXISTS schedules (
	id VARCHAR(64) PRIMARY KEY,
	medicine_id VARCHAR(64) NOT NULL,
	frequency VARCHAR(32) NOT NULL,
	times_of_day JSONB NOT NULL,
	days_of_week JSONB,
	custom_interval_days INTEGER NOT NULL DEFAULT 0,
	start_date DATE NOT NULL,
	end_date DATE,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createDoseEventsTable = `
CREATE TABLE IF NOT EXISTS dose_events (
	id VARCHAR(64) PRIMARY KEY,
	medicine_id VARCHAR(64) NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	status VARCHAR(16) NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	skipped_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createSchedulesIndexes = `
CREATE INDEX IF NOT EXISTS idx_schedules_medicine_id ON schedules(medicine_id);
CREATE INDEX IF NOT EXISTS idx_schedules_active ON schedules(active);`

const createDoseEventsIndexes = `
CREATE INDEX IF NOT EXISTS idx_dose_events_medicine_id ON dose_events(medicine_id);
CREATE INDEX IF NOT EXISTS idx_dose_events_timestamp ON dose_events(timestamp);`
