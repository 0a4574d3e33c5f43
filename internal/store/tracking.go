package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/fieldsync/internal/model"
)

// InsertTrackingPoint stores an accepted position.
// Returns false without error when the identity already exists.
func (s *Store) InsertTrackingPoint(ctx context.Context, p model.TrackingPoint) (bool, error) {
	var inserted bool
	err := s.do(ctx, "insert_tracking_point", func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO tracking_points (employee_id, latitude, longitude, timestamp, uploaded)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, p.EmployeeID, p.Latitude, p.Longitude, p.Timestamp, boolInt(p.Uploaded))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = n > 0
		return err
	})
	return inserted, err
}

// PendingTrackingPoints returns unuploaded points oldest first.
// An empty employeeID matches every employee; limit <= 0 means no limit.
func (s *Store) PendingTrackingPoints(ctx context.Context, employeeID string, limit int) ([]model.TrackingPoint, error) {
	return s.trackingPoints(ctx, "pending_tracking_points", `
		SELECT id, employee_id, latitude, longitude, timestamp, uploaded
		FROM tracking_points
		WHERE uploaded = 0 AND (? = '' OR employee_id = ?)
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, employeeID, employeeID, sqlLimit(limit))
}

// TrackingPoints returns every point of an employee on a civil date, oldest first.
func (s *Store) TrackingPoints(ctx context.Context, employeeID, date string) ([]model.TrackingPoint, error) {
	return s.trackingPoints(ctx, "tracking_points", `
		SELECT id, employee_id, latitude, longitude, timestamp, uploaded
		FROM tracking_points
		WHERE employee_id = ? AND substr(timestamp, 1, 10) = ?
		ORDER BY timestamp ASC, id ASC
	`, employeeID, date)
}

func (s *Store) trackingPoints(ctx context.Context, desc, query string, args ...any) ([]model.TrackingPoint, error) {
	var out []model.TrackingPoint
	err := s.do(ctx, desc, func(ctx context.Context, db *sql.DB) error {
		out = out[:0]
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p model.TrackingPoint
			if err := rows.Scan(&p.ID, &p.EmployeeID, &p.Latitude, &p.Longitude, &p.Timestamp, &p.Uploaded); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

// HasPendingTracking reports whether the employee has unuploaded points.
func (s *Store) HasPendingTracking(ctx context.Context, employeeID string) (bool, error) {
	var n int
	err := s.do(ctx, "has_pending_tracking", func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tracking_points WHERE uploaded = 0 AND employee_id = ?`,
			employeeID,
		).Scan(&n)
	})
	return n > 0, err
}

// MarkTrackingUploaded sets uploaded=1 for ids in one transaction.
func (s *Store) MarkTrackingUploaded(ctx context.Context, ids []int64) error {
	return s.markUploaded(ctx, "tracking_points", ids)
}

// markUploaded flips the uploaded flag of ids in table.
// table must be one of the core event tables.
func (s *Store) markUploaded(ctx context.Context, table string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE %s SET uploaded = 1 WHERE id IN (%s)", table, placeholders(len(ids)))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.inTx(ctx, "mark_uploaded_"+table, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
