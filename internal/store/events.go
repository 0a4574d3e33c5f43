package store

import (
	"context"
	"database/sql"

	"github.com/roach88/fieldsync/internal/model"
)

// LocalEvents returns the employee's three event streams merged into one list
// ordered by timestamp. An empty date returns every date.
func (s *Store) LocalEvents(ctx context.Context, employeeID, date string) ([]model.DisplayEvent, error) {
	var out []model.DisplayEvent
	err := s.do(ctx, "local_events", func(ctx context.Context, db *sql.DB) error {
		out = out[:0]
		rows, err := db.QueryContext(ctx, `
			SELECT 'tracking' AS source, id, employee_id, '' AS contract_id, latitude, longitude,
				timestamp, '' AS address, '' AS comment, uploaded, '' AS kind
			FROM tracking_points
			WHERE employee_id = ?1 AND (?2 = '' OR substr(timestamp, 1, 10) = ?2)
			UNION ALL
			SELECT 'start_stop', id, employee_id, '', latitude, longitude,
				timestamp, address, '', uploaded, kind
			FROM start_stop_events
			WHERE employee_id = ?1 AND (?2 = '' OR substr(timestamp, 1, 10) = ?2)
			UNION ALL
			SELECT 'checkin', id, employee_id, contract_id, latitude, longitude,
				timestamp, COALESCE(address, ''), COALESCE(comment, ''), uploaded, ''
			FROM contract_checkins
			WHERE employee_id = ?1 AND (?2 = '' OR substr(timestamp, 1, 10) = ?2)
			ORDER BY timestamp ASC, source ASC, id ASC
		`, employeeID, date)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				e    model.DisplayEvent
				kind string
			)
			if err := rows.Scan(&e.Source, &e.ID, &e.EmployeeID, &e.ContractID, &e.Latitude, &e.Longitude,
				&e.Timestamp, &e.Address, &e.Comment, &e.Uploaded, &kind); err != nil {
				return err
			}
			e.Label = displayLabel(e.Source, kind, e.ContractID)
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

func displayLabel(source, kind, contractID string) string {
	switch source {
	case model.SourceStartStop:
		if model.EventKind(kind) == model.KindStop {
			return model.LabelStop
		}
		return model.LabelStart
	case model.SourceCheckin:
		if contractID == model.SentinelContractID {
			return model.LabelTracking
		}
		return model.LabelContract
	default:
		return model.LabelTracking
	}
}
