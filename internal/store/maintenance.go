package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/fieldsync/internal/model"
)

// eventTables are the three event streams, in deletion order.
var eventTables = []string{"tracking_points", "start_stop_events", "contract_checkins"}

// PruneStats counts deleted rows per stream.
type PruneStats struct {
	Tracking  int64 `json:"tracking"`
	StartStop int64 `json:"start_stop"`
	Checkins  int64 `json:"checkins"`
}

// Total returns the number of deleted rows.
func (p PruneStats) Total() int64 {
	return p.Tracking + p.StartStop + p.Checkins
}

func (p *PruneStats) add(table string, n int64) {
	switch table {
	case "tracking_points":
		p.Tracking += n
	case "start_stop_events":
		p.StartStop += n
	case "contract_checkins":
		p.Checkins += n
	}
}

// PruneBefore deletes every event whose civil date is before date (YYYY-MM-DD),
// uploaded or not.
func (s *Store) PruneBefore(ctx context.Context, date string) (PruneStats, error) {
	return s.deleteEvents(ctx, "prune_before",
		`substr(timestamp, 1, 10) < ?`, date)
}

// CountBefore reports what PruneBefore(date) would delete without deleting.
func (s *Store) CountBefore(ctx context.Context, date string) (PruneStats, error) {
	var stats PruneStats
	err := s.do(ctx, "count_before", func(ctx context.Context, db *sql.DB) error {
		stats = PruneStats{}
		for _, table := range eventTables {
			var n int64
			err := db.QueryRowContext(ctx,
				fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE substr(timestamp, 1, 10) < ?", table), date).Scan(&n)
			if err != nil {
				return fmt.Errorf("count %s: %w", table, err)
			}
			stats.add(table, n)
		}
		return nil
	})
	return stats, err
}

// PurgeUploaded deletes uploaded events. An empty employeeID matches every
// employee; a non-empty before limits deletion to civil dates before it.
func (s *Store) PurgeUploaded(ctx context.Context, employeeID, before string) (PruneStats, error) {
	return s.deleteEvents(ctx, "purge_uploaded",
		`uploaded = 1 AND (?1 = '' OR employee_id = ?1) AND (?2 = '' OR substr(timestamp, 1, 10) < ?2)`,
		employeeID, before)
}

func (s *Store) deleteEvents(ctx context.Context, desc, where string, args ...any) (PruneStats, error) {
	var stats PruneStats
	err := s.inTx(ctx, desc, func(ctx context.Context, tx *sql.Tx) error {
		stats = PruneStats{}
		for _, table := range eventTables {
			res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args...)
			if err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			stats.add(table, n)
		}
		return nil
	})
	if err == nil && stats.Total() > 0 {
		slog.Info("events deleted", "op", desc, "tracking", stats.Tracking, "start_stop", stats.StartStop, "checkins", stats.Checkins)
	}
	return stats, err
}

// ServerRecords is the authoritative event list returned by the server for
// one employee.
type ServerRecords struct {
	Tracking   []model.TrackingPoint
	StartStops []model.StartStopEvent
	Checkins   []model.ContractCheckin
}

// ReplaceStats reports the effect of ReplaceWithServerRecords.
type ReplaceStats struct {
	Deleted  PruneStats `json:"deleted"`
	Inserted PruneStats `json:"inserted"`
}

// ReplaceWithServerRecords swaps the employee's uploaded rows for the server's
// rows in one transaction. Unuploaded rows are never touched; server rows are
// stored as uploaded and skip any identity already present locally.
func (s *Store) ReplaceWithServerRecords(ctx context.Context, employeeID string, recs ServerRecords) (ReplaceStats, error) {
	var stats ReplaceStats
	err := s.inTx(ctx, "replace_with_server_records", func(ctx context.Context, tx *sql.Tx) error {
		stats = ReplaceStats{}
		for _, table := range eventTables {
			res, err := tx.ExecContext(ctx,
				fmt.Sprintf("DELETE FROM %s WHERE employee_id = ? AND uploaded = 1", table), employeeID)
			if err != nil {
				return fmt.Errorf("delete uploaded %s: %w", table, err)
			}
			n, _ := res.RowsAffected()
			stats.Deleted.add(table, n)
		}

		for _, p := range recs.Tracking {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO tracking_points (employee_id, latitude, longitude, timestamp, uploaded)
				VALUES (?, ?, ?, ?, 1)
				ON CONFLICT DO NOTHING
			`, employeeID, p.Latitude, p.Longitude, p.Timestamp)
			if err != nil {
				return fmt.Errorf("insert server tracking: %w", err)
			}
			n, _ := res.RowsAffected()
			stats.Inserted.Tracking += n
		}

		for _, e := range recs.StartStops {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO start_stop_events (employee_id, kind, latitude, longitude, timestamp, address, uploaded)
				VALUES (?, ?, ?, ?, ?, ?, 1)
				ON CONFLICT DO NOTHING
			`, employeeID, string(e.Kind), e.Latitude, e.Longitude, e.Timestamp, e.Address)
			if err != nil {
				return fmt.Errorf("insert server start/stop: %w", err)
			}
			n, _ := res.RowsAffected()
			stats.Inserted.StartStop += n
		}

		for _, c := range recs.Checkins {
			contractID := c.ContractID
			if contractID == "" {
				contractID = model.SentinelContractID
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO contract_checkins
				(contract_id, employee_id, latitude, longitude, timestamp, comment, address, uploaded)
				VALUES (?, ?, ?, ?, ?, ?, ?, 1)
				ON CONFLICT DO NOTHING
			`, contractID, employeeID, c.Latitude, c.Longitude, c.Timestamp, c.Comment, c.Address)
			if err != nil {
				return fmt.Errorf("insert server check-in: %w", err)
			}
			n, _ := res.RowsAffected()
			stats.Inserted.Checkins += n
		}
		return nil
	})
	return stats, err
}

// Counts summarizes table sizes.
type Counts struct {
	Tracking         int64 `json:"tracking"`
	TrackingPending  int64 `json:"tracking_pending"`
	StartStop        int64 `json:"start_stop"`
	StartStopPending int64 `json:"start_stop_pending"`
	Checkins         int64 `json:"checkins"`
	CheckinsPending  int64 `json:"checkins_pending"`
	Contracts        int64 `json:"contracts"`
}

// Pending returns the number of unuploaded events.
func (c Counts) Pending() int64 {
	return c.TrackingPending + c.StartStopPending + c.CheckinsPending
}

// Counts returns row counts for every table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.do(ctx, "counts", func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, `
			SELECT
				(SELECT COUNT(*) FROM tracking_points),
				(SELECT COUNT(*) FROM tracking_points WHERE uploaded = 0),
				(SELECT COUNT(*) FROM start_stop_events),
				(SELECT COUNT(*) FROM start_stop_events WHERE uploaded = 0),
				(SELECT COUNT(*) FROM contract_checkins),
				(SELECT COUNT(*) FROM contract_checkins WHERE uploaded = 0),
				(SELECT COUNT(*) FROM contracts)
		`).Scan(&c.Tracking, &c.TrackingPending, &c.StartStop, &c.StartStopPending,
			&c.Checkins, &c.CheckinsPending, &c.Contracts)
	})
	return c, err
}
