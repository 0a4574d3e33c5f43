package store

import (
	"context"
	"database/sql"

	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
)

// InsertCheckin stores a contract check-in.
//
// For a real contract at most one check-in per (contract, employee, civil date)
// is allowed: a second one with a different timestamp fails with
// ErrDuplicateCheckin (fault.KindDuplicate). Re-inserting the exact same
// identity returns false without error. Sentinel check-ins are exempt from
// the per-day rule.
func (s *Store) InsertCheckin(ctx context.Context, c model.ContractCheckin) (bool, error) {
	if c.ContractID == "" {
		c.ContractID = model.SentinelContractID
	}
	day := model.CivilDate(c.Timestamp)

	var inserted bool
	err := s.inTx(ctx, "insert_checkin", func(ctx context.Context, tx *sql.Tx) error {
		inserted = false

		var same int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM contract_checkins
			WHERE contract_id = ? AND employee_id = ? AND timestamp = ?
		`, c.ContractID, c.EmployeeID, c.Timestamp).Scan(&same); err != nil {
			return err
		}
		if same > 0 {
			return nil
		}

		if c.ContractID != model.SentinelContractID {
			var sameDay int
			if err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM contract_checkins
				WHERE contract_id = ? AND employee_id = ? AND substr(timestamp, 1, 10) = ?
			`, c.ContractID, c.EmployeeID, day).Scan(&sameDay); err != nil {
				return err
			}
			if sameDay > 0 {
				return fault.New(fault.KindDuplicate, "insert_checkin", ErrDuplicateCheckin)
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO contract_checkins
			(contract_id, employee_id, latitude, longitude, timestamp, comment, address, uploaded)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ContractID, c.EmployeeID, c.Latitude, c.Longitude, c.Timestamp, c.Comment, c.Address, boolInt(c.Uploaded))
		if err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// HasCheckinOn reports whether the contract has a check-in by the employee on date.
func (s *Store) HasCheckinOn(ctx context.Context, contractID, employeeID, date string) (bool, error) {
	var n int
	err := s.do(ctx, "has_checkin_on", func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM contract_checkins
			WHERE contract_id = ? AND employee_id = ? AND substr(timestamp, 1, 10) = ?
		`, contractID, employeeID, date).Scan(&n)
	})
	return n > 0, err
}

// PendingCheckins returns unuploaded check-ins oldest first.
// An empty employeeID matches every employee; limit <= 0 means no limit.
func (s *Store) PendingCheckins(ctx context.Context, employeeID string, limit int) ([]model.ContractCheckin, error) {
	return s.checkins(ctx, "pending_checkins", `
		SELECT id, contract_id, employee_id, latitude, longitude, timestamp, comment, address, uploaded
		FROM contract_checkins
		WHERE uploaded = 0 AND (? = '' OR employee_id = ?)
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, employeeID, employeeID, sqlLimit(limit))
}

func (s *Store) checkins(ctx context.Context, desc, query string, args ...any) ([]model.ContractCheckin, error) {
	var out []model.ContractCheckin
	err := s.do(ctx, desc, func(ctx context.Context, db *sql.DB) error {
		out = out[:0]
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				c       model.ContractCheckin
				comment sql.NullString
				address sql.NullString
			)
			if err := rows.Scan(&c.ID, &c.ContractID, &c.EmployeeID, &c.Latitude, &c.Longitude, &c.Timestamp, &comment, &address, &c.Uploaded); err != nil {
				return err
			}
			c.Comment = comment.String
			c.Address = address.String
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// MarkCheckinsUploaded sets uploaded=1 for ids in one transaction.
func (s *Store) MarkCheckinsUploaded(ctx context.Context, ids []int64) error {
	return s.markUploaded(ctx, "contract_checkins", ids)
}
