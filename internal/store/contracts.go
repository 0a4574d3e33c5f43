package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/fieldsync/internal/model"
)

// SaveContracts replaces the employee's contract snapshot wholesale.
func (s *Store) SaveContracts(ctx context.Context, snap model.ContractSnapshot) error {
	payload, err := json.Marshal(snap.Contracts)
	if err != nil {
		return fmt.Errorf("save contracts: encode: %w", err)
	}
	return s.do(ctx, "save_contracts", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO contracts (employee_id, payload, refreshed_at) VALUES (?, ?, ?)
			ON CONFLICT(employee_id) DO UPDATE SET
				payload = excluded.payload,
				refreshed_at = excluded.refreshed_at
		`, snap.EmployeeID, string(payload), snap.RefreshedAt)
		return err
	})
}

// Contracts returns the employee's snapshot and whether one exists.
func (s *Store) Contracts(ctx context.Context, employeeID string) (model.ContractSnapshot, bool, error) {
	var (
		snap  model.ContractSnapshot
		found bool
	)
	err := s.do(ctx, "contracts", func(ctx context.Context, db *sql.DB) error {
		var err error
		snap, found, err = readContracts(ctx, db, employeeID)
		return err
	})
	return snap, found, err
}

// MarkContractCheckedIn flags one contract of the snapshot as checked in.
// Returns false when there is no snapshot or the contract is not in it.
func (s *Store) MarkContractCheckedIn(ctx context.Context, employeeID, contractID, comment, checkinTime string) (bool, error) {
	var updated bool
	err := s.inTx(ctx, "mark_contract_checked_in", func(ctx context.Context, tx *sql.Tx) error {
		updated = false
		snap, found, err := readContracts(ctx, tx, employeeID)
		if err != nil || !found {
			return err
		}
		for i := range snap.Contracts {
			c := &snap.Contracts[i]
			if c.LeaseNo != contractID {
				continue
			}
			c.CheckedIn = true
			c.CheckinDate = checkinTime
			if comment != "" {
				c.Comment = comment
			}
			updated = true
		}
		if !updated {
			return nil
		}
		payload, err := json.Marshal(snap.Contracts)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE contracts SET payload = ? WHERE employee_id = ?`, string(payload), employeeID)
		return err
	})
	return updated, err
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readContracts(ctx context.Context, q rowQuerier, employeeID string) (model.ContractSnapshot, bool, error) {
	snap := model.ContractSnapshot{EmployeeID: employeeID}
	var payload string
	err := q.QueryRowContext(ctx,
		`SELECT payload, refreshed_at FROM contracts WHERE employee_id = ?`, employeeID,
	).Scan(&payload, &snap.RefreshedAt)
	if err == sql.ErrNoRows {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}
	if err := json.Unmarshal([]byte(payload), &snap.Contracts); err != nil {
		return snap, false, fmt.Errorf("decode contracts of %s: %w", employeeID, err)
	}
	return snap, true, nil
}
