package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
)

// InsertStartStop stores a start or stop event.
// Returns false without error when the identity already exists.
func (s *Store) InsertStartStop(ctx context.Context, e model.StartStopEvent) (bool, error) {
	if !e.Kind.Valid() {
		return false, fault.Errorf(fault.KindValidation, "insert_start_stop", "invalid kind %q", e.Kind)
	}

	var inserted bool
	err := s.do(ctx, "insert_start_stop", func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO start_stop_events (employee_id, kind, latitude, longitude, timestamp, address, uploaded)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, e.EmployeeID, string(e.Kind), e.Latitude, e.Longitude, e.Timestamp, e.Address, boolInt(e.Uploaded))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = n > 0
		return err
	})
	return inserted, err
}

// PendingStartStops returns unuploaded start/stop events oldest first.
// An empty employeeID matches every employee; limit <= 0 means no limit.
func (s *Store) PendingStartStops(ctx context.Context, employeeID string, limit int) ([]model.StartStopEvent, error) {
	return s.startStops(ctx, "pending_start_stops", `
		SELECT id, employee_id, kind, latitude, longitude, timestamp, address, uploaded
		FROM start_stop_events
		WHERE uploaded = 0 AND (? = '' OR employee_id = ?)
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, employeeID, employeeID, sqlLimit(limit))
}

// StartStopByIdentity returns the event with the given identity.
func (s *Store) StartStopByIdentity(ctx context.Context, employeeID string, kind model.EventKind, timestamp string) (model.StartStopEvent, bool, error) {
	events, err := s.startStops(ctx, "start_stop_by_identity", `
		SELECT id, employee_id, kind, latitude, longitude, timestamp, address, uploaded
		FROM start_stop_events
		WHERE employee_id = ? AND kind = ? AND timestamp = ?
	`, employeeID, string(kind), timestamp)
	if err != nil || len(events) == 0 {
		return model.StartStopEvent{}, false, err
	}
	return events[0], true, nil
}

func (s *Store) startStops(ctx context.Context, desc, query string, args ...any) ([]model.StartStopEvent, error) {
	var out []model.StartStopEvent
	err := s.do(ctx, desc, func(ctx context.Context, db *sql.DB) error {
		out = out[:0]
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				e    model.StartStopEvent
				kind string
			)
			if err := rows.Scan(&e.ID, &e.EmployeeID, &kind, &e.Latitude, &e.Longitude, &e.Timestamp, &e.Address, &e.Uploaded); err != nil {
				return err
			}
			e.Kind = model.EventKind(kind)
			if !e.Kind.Valid() {
				return fmt.Errorf("row %d: invalid kind %q", e.ID, kind)
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// MarkStartStopUploaded sets uploaded=1 for ids in one transaction.
func (s *Store) MarkStartStopUploaded(ctx context.Context, ids []int64) error {
	return s.markUploaded(ctx, "start_stop_events", ids)
}
