// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

// Package history persists visitor interaction events and serves the
// per-fingerprint lookback windows every detector analyzes against.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/models"
)

// Store is the persistence surface for events, activity records and the
// suspicion ledger.
type Store interface {
	SaveEvent(ctx context.Context, event *models.Event) error
	EventsForWindow(ctx context.Context, fingerprint, caseID string, since time.Time, limit int) ([]models.Event, error)
	EventsForFingerprint(ctx context.Context, fingerprint string, since time.Time, limit int) ([]models.Event, error)
	ActiveFingerprintsForCase(ctx context.Context, caseID string, since time.Time) ([]string, error)
	FirstSeen(ctx context.Context, fingerprint string) (time.Time, bool, error)

	SaveActivityRecord(ctx context.Context, record *models.ActivityRecord) error
	ListActivityRecords(ctx context.Context, filter ActivityFilter) ([]models.ActivityRecord, error)

	GetSuspicion(ctx context.Context, fingerprint string) (*models.SuspicionScore, error)
	RecordViolation(ctx context.Context, fingerprint string, points int) (*models.SuspicionScore, error)
	ListSuspicion(ctx context.Context, limit int) ([]models.SuspicionScore, error)
	DecaySuspicion(ctx context.Context, points int) (int64, error)
}

// ActivityFilter narrows ListActivityRecords results.
type ActivityFilter struct {
	Fingerprint    string
	CaseID         string
	Classification models.ActivityClass
	MinSeverity    int
	Since          time.Time
	Limit          int
}

// DuckDBStore implements Store on an embedded DuckDB database.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore wraps an open DuckDB handle.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

const eventSelectColumns = `
		id,
		fingerprint,
		case_id,
		ip_address,
		path,
		kind,
		COALESCE(session_id, '') as session_id,
		timestamp,
		payload,
		network,
		device,
		COALESCE(latitude, 0) as latitude,
		COALESCE(longitude, 0) as longitude,
		COALESCE(city, '') as city,
		COALESCE(country, '') as country`

// InitSchema creates the tables if they don't exist.
func (s *DuckDBStore) InitSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS visitor_events (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			case_id TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			path TEXT NOT NULL,
			kind TEXT NOT NULL,
			session_id TEXT,
			timestamp TIMESTAMP NOT NULL,
			payload JSON,
			network JSON,
			device JSON,
			latitude DOUBLE,
			longitude DOUBLE,
			city TEXT,
			country TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS activity_records (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			case_id TEXT NOT NULL,
			classification TEXT NOT NULL,
			severity INTEGER NOT NULL,
			confidence DOUBLE NOT NULL,
			evidence JSON,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS suspicion_scores (
			fingerprint TEXT PRIMARY KEY,
			score INTEGER DEFAULT 0,
			violations_count INTEGER DEFAULT 0,
			last_violation_at TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_events_fingerprint_case ON visitor_events(fingerprint, case_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_fingerprint ON visitor_events(fingerprint, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_case ON visitor_events(case_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_fingerprint ON activity_records(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_case ON activity_records(case_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_records(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_suspicion_score ON suspicion_scores(score DESC)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	// Flush the WAL after schema creation to avoid replay issues on restart.
	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after history schema initialization")
	}

	return nil
}

// SaveEvent persists one event. Duplicate IDs are ignored so batch replay
// stays idempotent at the storage layer.
func (s *DuckDBStore) SaveEvent(ctx context.Context, event *models.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	network, err := json.Marshal(event.Network)
	if err != nil {
		return fmt.Errorf("failed to marshal network flags: %w", err)
	}
	device, err := json.Marshal(event.Device)
	if err != nil {
		return fmt.Errorf("failed to marshal device info: %w", err)
	}

	query := `INSERT INTO visitor_events
		(id, fingerprint, case_id, ip_address, path, kind, session_id, timestamp,
		 payload, network, device, latitude, longitude, city, country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.Fingerprint,
		event.CaseID,
		event.IPAddress,
		event.Path,
		string(event.Kind),
		event.SessionID,
		event.Timestamp,
		payload,
		network,
		device,
		event.Latitude,
		event.Longitude,
		event.City,
		event.Country,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// scanEvent scans a single row into an Event, decoding the JSON columns.
func scanEvent(scanner interface {
	Scan(dest ...interface{}) error
}, event *models.Event) error {
	var payload, network, device interface{}
	var kind string

	if err := scanner.Scan(
		&event.ID,
		&event.Fingerprint,
		&event.CaseID,
		&event.IPAddress,
		&event.Path,
		&kind,
		&event.SessionID,
		&event.Timestamp,
		&payload,
		&network,
		&device,
		&event.Latitude,
		&event.Longitude,
		&event.City,
		&event.Country,
	); err != nil {
		return err
	}
	event.Kind = models.EventKind(kind)

	// DuckDB returns JSON columns as decoded values; round-trip through
	// bytes to land them in the typed fields.
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			_ = json.Unmarshal(b, &event.Payload)
		}
	}
	if network != nil {
		if b, err := json.Marshal(network); err == nil {
			_ = json.Unmarshal(b, &event.Network)
		}
	}
	if device != nil {
		if b, err := json.Marshal(device); err == nil {
			_ = json.Unmarshal(b, &event.Device)
		}
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		var event models.Event
		if err := scanEvent(rows, &event); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// EventsForWindow returns the fingerprint's events on one case since the
// given time, newest first, capped at limit.
func (s *DuckDBStore) EventsForWindow(ctx context.Context, fingerprint, caseID string, since time.Time, limit int) ([]models.Event, error) {
	query := fmt.Sprintf(`SELECT %s
		FROM visitor_events
		WHERE fingerprint = ? AND case_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?`, eventSelectColumns)

	rows, err := s.db.QueryContext(ctx, query, fingerprint, caseID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query event window: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventsForFingerprint returns the fingerprint's events across all cases
// since the given time, newest first.
func (s *DuckDBStore) EventsForFingerprint(ctx context.Context, fingerprint string, since time.Time, limit int) ([]models.Event, error) {
	query := fmt.Sprintf(`SELECT %s
		FROM visitor_events
		WHERE fingerprint = ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?`, eventSelectColumns)

	rows, err := s.db.QueryContext(ctx, query, fingerprint, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprint events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ActiveFingerprintsForCase returns the distinct fingerprints that touched
// a case since the given time. Used for coordinated-activity checks.
func (s *DuckDBStore) ActiveFingerprintsForCase(ctx context.Context, caseID string, since time.Time) ([]string, error) {
	query := `SELECT DISTINCT fingerprint
		FROM visitor_events
		WHERE case_id = ? AND timestamp >= ?`

	rows, err := s.db.QueryContext(ctx, query, caseID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query case fingerprints: %w", err)
	}
	defer rows.Close()

	var fingerprints []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}
	return fingerprints, rows.Err()
}

// FirstSeen returns the timestamp of the fingerprint's earliest event.
func (s *DuckDBStore) FirstSeen(ctx context.Context, fingerprint string) (time.Time, bool, error) {
	query := `SELECT MIN(timestamp) FROM visitor_events WHERE fingerprint = ?`

	var first sql.NullTime
	err := s.db.QueryRowContext(ctx, query, fingerprint).Scan(&first)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query first seen: %w", err)
	}
	if !first.Valid {
		return time.Time{}, false, nil
	}
	return first.Time, true, nil
}

// SaveActivityRecord persists a durable activity record.
func (s *DuckDBStore) SaveActivityRecord(ctx context.Context, record *models.ActivityRecord) error {
	evidence, err := json.Marshal(record.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}

	query := `INSERT INTO activity_records
		(id, event_id, fingerprint, case_id, classification, severity, confidence, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.EventID,
		record.Fingerprint,
		record.CaseID,
		string(record.Classification),
		record.Severity,
		record.Confidence,
		evidence,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity record: %w", err)
	}
	return nil
}

// ListActivityRecords retrieves activity records with optional filtering,
// newest first. All filter values bind as query parameters.
func (s *DuckDBStore) ListActivityRecords(ctx context.Context, filter ActivityFilter) ([]models.ActivityRecord, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, event_id, fingerprint, case_id, classification, severity, confidence, evidence, created_at
		FROM activity_records WHERE 1=1`)
	args := make([]interface{}, 0, 6)

	if filter.Fingerprint != "" {
		sb.WriteString(" AND fingerprint = ?")
		args = append(args, filter.Fingerprint)
	}
	if filter.CaseID != "" {
		sb.WriteString(" AND case_id = ?")
		args = append(args, filter.CaseID)
	}
	if filter.Classification != "" {
		sb.WriteString(" AND classification = ?")
		args = append(args, string(filter.Classification))
	}
	if filter.MinSeverity > 0 {
		sb.WriteString(" AND severity >= ?")
		args = append(args, filter.MinSeverity)
	}
	if !filter.Since.IsZero() {
		sb.WriteString(" AND created_at >= ?")
		args = append(args, filter.Since)
	}

	sb.WriteString(" ORDER BY created_at DESC")
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity records: %w", err)
	}
	defer rows.Close()

	var records []models.ActivityRecord
	for rows.Next() {
		var record models.ActivityRecord
		var classification string
		var evidence interface{}
		if err := rows.Scan(
			&record.ID,
			&record.EventID,
			&record.Fingerprint,
			&record.CaseID,
			&classification,
			&record.Severity,
			&record.Confidence,
			&evidence,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan activity record: %w", err)
		}
		record.Classification = models.ActivityClass(classification)
		if evidence != nil {
			if b, err := json.Marshal(evidence); err == nil {
				_ = json.Unmarshal(b, &record.Evidence)
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetSuspicion returns the suspicion ledger entry for a fingerprint, or
// nil when none exists yet.
func (s *DuckDBStore) GetSuspicion(ctx context.Context, fingerprint string) (*models.SuspicionScore, error) {
	query := `SELECT fingerprint, score, violations_count, last_violation_at, updated_at
		FROM suspicion_scores WHERE fingerprint = ?`

	score := &models.SuspicionScore{}
	var lastViolation sql.NullTime
	err := s.db.QueryRowContext(ctx, query, fingerprint).Scan(
		&score.Fingerprint,
		&score.Score,
		&score.ViolationsCount,
		&lastViolation,
		&score.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suspicion score: %w", err)
	}
	if lastViolation.Valid {
		t := lastViolation.Time
		score.LastViolationAt = &t
	}
	return score, nil
}

// RecordViolation adds points to a fingerprint's suspicion score, clamped
// to 100, and returns the updated entry.
func (s *DuckDBStore) RecordViolation(ctx context.Context, fingerprint string, points int) (*models.SuspicionScore, error) {
	now := time.Now().UTC()
	query := `INSERT INTO suspicion_scores (fingerprint, score, violations_count, last_violation_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			score = LEAST(100, suspicion_scores.score + excluded.score),
			violations_count = suspicion_scores.violations_count + 1,
			last_violation_at = excluded.last_violation_at,
			updated_at = excluded.updated_at`

	if points > 100 {
		points = 100
	}
	if _, err := s.db.ExecContext(ctx, query, fingerprint, points, now, now); err != nil {
		return nil, fmt.Errorf("failed to record violation: %w", err)
	}
	return s.GetSuspicion(ctx, fingerprint)
}

// ListSuspicion returns ledger entries ordered by score, highest first.
func (s *DuckDBStore) ListSuspicion(ctx context.Context, limit int) ([]models.SuspicionScore, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT fingerprint, score, violations_count, last_violation_at, updated_at
		FROM suspicion_scores ORDER BY score DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suspicion scores: %w", err)
	}
	defer rows.Close()

	var scores []models.SuspicionScore
	for rows.Next() {
		var score models.SuspicionScore
		var lastViolation sql.NullTime
		if err := rows.Scan(&score.Fingerprint, &score.Score, &score.ViolationsCount, &lastViolation, &score.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suspicion score: %w", err)
		}
		if lastViolation.Valid {
			t := lastViolation.Time
			score.LastViolationAt = &t
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

// DecaySuspicion subtracts points from every non-zero entry, flooring at
// zero. Run once per day by the maintenance job. Returns rows touched.
func (s *DuckDBStore) DecaySuspicion(ctx context.Context, points int) (int64, error) {
	query := `UPDATE suspicion_scores
		SET score = GREATEST(0, score - ?), updated_at = CURRENT_TIMESTAMP
		WHERE score > 0`

	result, err := s.db.ExecContext(ctx, query, points)
	if err != nil {
		return 0, fmt.Errorf("failed to decay suspicion scores: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
