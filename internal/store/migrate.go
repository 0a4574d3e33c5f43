package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
)

// migrate brings the schema to currentSchemaVersion in one transaction.
// Every step is idempotent, so running it on an up-to-date database is a no-op.
func migrate(ctx context.Context, db *sql.DB) error {
	return runInTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, baseSchema); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}

		from, err := readVersion(ctx, tx)
		if err != nil {
			return err
		}

		if err := ensureColumn(ctx, tx, "contract_checkins", "address", "TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}

		for _, stmt := range dedupStatements {
			res, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("dedup: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				slog.Warn("removed duplicate rows during migration", "rows", n)
			}
		}

		if _, err := tx.ExecContext(ctx, indexSchema); err != nil {
			return fmt.Errorf("create indexes: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metadata (key, value) VALUES ('db_version', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			strconv.Itoa(currentSchemaVersion),
		); err != nil {
			return fmt.Errorf("set db_version: %w", err)
		}

		if from != currentSchemaVersion {
			slog.Info("database migrated", "from", from, "to", currentSchemaVersion)
		}
		return nil
	})
}

func readVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = 'db_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get db_version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse db_version %q: %w", raw, err)
	}
	return v, nil
}

// ensureColumn adds column to table when PRAGMA table_info does not list it.
func ensureColumn(ctx context.Context, tx *sql.Tx, table, column, decl string) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("table_info %s: %w", table, err)
	}
	found := false
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scan table_info %s: %w", table, err)
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if found {
		return nil
	}

	slog.Info("adding column", "table", table, "column", column)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// SchemaVersion returns the stored db_version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.inTx(ctx, "schema_version", func(ctx context.Context, tx *sql.Tx) error {
		var err error
		v, err = readVersion(ctx, tx)
		return err
	})
	return v, err
}

// Reset drops every core table and recreates the schema. All data is lost.
func (s *Store) Reset(ctx context.Context) error {
	return s.do(ctx, "reset", func(ctx context.Context, db *sql.DB) error {
		err := runInTx(ctx, db, func(tx *sql.Tx) error {
			for _, table := range coreTables {
				if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
					return fmt.Errorf("drop %s: %w", table, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		slog.Warn("database reset, all local data dropped")
		return migrate(ctx, db)
	})
}
