package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GetState returns the value of key and whether it exists.
func (s *Store) GetState(ctx context.Context, key string) (string, bool, error) {
	var (
		value sql.NullString
		found bool
	)
	err := s.do(ctx, "get_state", func(ctx context.Context, db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			found = false
			return nil
		}
		found = err == nil
		return err
	})
	return value.String, found, err
}

// SetState upserts key.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	return s.do(ctx, "set_state", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO app_state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value)
		return err
	})
}

// DeleteState removes keys. Missing keys are ignored.
func (s *Store) DeleteState(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return s.do(ctx, "delete_state", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM app_state WHERE key IN (%s)`, placeholders(len(keys))), args...)
		return err
	})
}

// DeleteStatePrefix removes every key starting with prefix and returns how many.
func (s *Store) DeleteStatePrefix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	err := s.do(ctx, "delete_state_prefix", func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `DELETE FROM app_state WHERE key LIKE ? ESCAPE '\'`, escaped+"%")
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// GetBool reads a boolean state key. Missing keys read as false.
func (s *Store) GetBool(ctx context.Context, key string) (bool, error) {
	v, ok, err := s.GetState(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return v == "true", nil
}

// SetBool writes a boolean state key as "true" or "false".
func (s *Store) SetBool(ctx context.Context, key string, v bool) error {
	return s.SetState(ctx, key, strconv.FormatBool(v))
}

// GetInt reads an integer state key. Missing or malformed keys read as 0.
func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	v, ok, err := s.GetState(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// SetInt writes an integer state key.
func (s *Store) SetInt(ctx context.Context, key string, v int64) error {
	return s.SetState(ctx, key, strconv.FormatInt(v, 10))
}

// GetJSON decodes a JSON state key into dst. Returns false when the key is missing.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	v, ok, err := s.GetState(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(v), dst); err != nil {
		return false, fmt.Errorf("decode state %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v as JSON into key.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode state %q: %w", key, err)
	}
	return s.SetState(ctx, key, string(b))
}
