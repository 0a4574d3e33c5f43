package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
)

// MigrateMode selects which legacy entries are adopted.
type MigrateMode string

const (
	// MigrateAll adopts every entry.
	MigrateAll MigrateMode = "all"

	// MigrateToday adopts entries of today's civil date and leaves the rest in
	// the file.
	MigrateToday MigrateMode = "today"
)

// MigrateOptions tune MigrateLegacy.
type MigrateOptions struct {
	// Mode defaults to MigrateToday.
	Mode MigrateMode

	// Employee is used for entries without an employee name.
	Employee string

	// DryRun reports what would happen without writing anything.
	DryRun bool

	// PruneAfterDays prunes the store after a successful MigrateAll run.
	// Zero disables pruning.
	PruneAfterDays int
}

// MigrateReport summarizes one MigrateLegacy run.
type MigrateReport struct {
	Path        string            `json:"path"`
	Found       int               `json:"found"`
	Migrated    int               `json:"migrated"`
	Duplicates  int               `json:"duplicates"`
	Deferred    int               `json:"deferred"`
	Invalid     int               `json:"invalid"`
	Failed      int               `json:"failed"`
	Remaining   int               `json:"remaining"`
	FileRemoved bool              `json:"file_removed"`
	DryRun      bool              `json:"dry_run,omitempty"`
	Pruned      *store.PruneStats `json:"pruned,omitempty"`
}

// legacyEntry is one element of the legacy pending list. Timestamp is either
// unix milliseconds or a civil string.
type legacyEntry struct {
	Latitude     *float64        `json:"latitude"`
	Longitude    *float64        `json:"longitude"`
	Timestamp    json.RawMessage `json:"timestamp"`
	EmployeeName string          `json:"employee_name"`
}

// MigrateLegacy adopts the legacy flat pending list at path into the store
// through the idempotent tracking insert. A missing file is not an error.
//
// Entries that can never be adopted (bad coordinates or timestamp, no
// employee) are dropped. Entries whose insert failed stay in the file, as do
// deferred entries in MigrateToday mode. The file is removed once nothing
// remains, so the call can be repeated until it is gone.
func (r *Reconciler) MigrateLegacy(ctx context.Context, path string, opts MigrateOptions) (MigrateReport, error) {
	rep := MigrateReport{Path: path, DryRun: opts.DryRun}
	if opts.Mode == "" {
		opts.Mode = MigrateToday
	}
	if opts.Mode != MigrateAll && opts.Mode != MigrateToday {
		return rep, fault.Errorf(fault.KindValidation, "reconcile.migrate", "unknown mode %q", opts.Mode)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return rep, nil
	}
	if err != nil {
		return rep, fmt.Errorf("read legacy list: %w", err)
	}

	var raw []json.RawMessage
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return rep, fault.New(fault.KindValidation, "reconcile.migrate", fmt.Errorf("parse %s: %w", path, err))
		}
	}
	rep.Found = len(raw)

	today := r.today()
	var keep []json.RawMessage
	for i, msg := range raw {
		if err := ctx.Err(); err != nil {
			keep = append(keep, raw[i:]...)
			rep.Failed += len(raw) - i
			break
		}

		p, err := r.legacyPoint(msg, opts.Employee)
		if err != nil {
			slog.Warn("legacy entry dropped", "index", i, "error", err)
			rep.Invalid++
			continue
		}
		if opts.Mode == MigrateToday && model.CivilDate(p.Timestamp) != today {
			rep.Deferred++
			keep = append(keep, msg)
			continue
		}
		if opts.DryRun {
			rep.Migrated++
			continue
		}

		inserted, err := r.deps.Store.InsertTrackingPoint(ctx, p)
		switch {
		case err != nil:
			slog.Warn("legacy entry not migrated", "index", i, "timestamp", p.Timestamp, "error", err)
			rep.Failed++
			keep = append(keep, msg)
		case inserted:
			rep.Migrated++
		default:
			rep.Duplicates++
		}
	}
	rep.Remaining = len(keep)

	if opts.DryRun {
		slog.Info("legacy migration dry run", "path", path, "found", rep.Found,
			"would_migrate", rep.Migrated, "deferred", rep.Deferred, "invalid", rep.Invalid)
		return rep, nil
	}

	if err := rewriteLegacy(path, keep, len(raw)); err != nil {
		return rep, err
	}
	rep.FileRemoved = len(keep) == 0

	if opts.Mode == MigrateAll && opts.PruneAfterDays > 0 && rep.Failed == 0 {
		pr, err := r.Prune(ctx, opts.PruneAfterDays)
		if err != nil {
			return rep, err
		}
		rep.Pruned = &pr.Stats
	}

	slog.Info("legacy migration finished", "path", path, "found", rep.Found, "migrated", rep.Migrated,
		"duplicates", rep.Duplicates, "deferred", rep.Deferred, "invalid", rep.Invalid,
		"failed", rep.Failed, "file_removed", rep.FileRemoved)
	return rep, nil
}

func (r *Reconciler) legacyPoint(msg json.RawMessage, fallbackEmployee string) (model.TrackingPoint, error) {
	var e legacyEntry
	if err := json.Unmarshal(msg, &e); err != nil {
		return model.TrackingPoint{}, err
	}
	if e.Latitude == nil || e.Longitude == nil {
		return model.TrackingPoint{}, errors.New("missing coordinates")
	}
	if err := (model.Location{Latitude: *e.Latitude, Longitude: *e.Longitude}).Validate(); err != nil {
		return model.TrackingPoint{}, err
	}
	ts, err := r.legacyTimestamp(e.Timestamp)
	if err != nil {
		return model.TrackingPoint{}, err
	}
	emp := e.EmployeeName
	if emp == "" {
		emp = fallbackEmployee
	}
	if emp == "" {
		return model.TrackingPoint{}, errors.New("no employee")
	}
	return model.TrackingPoint{
		EmployeeID: emp,
		Latitude:   *e.Latitude,
		Longitude:  *e.Longitude,
		Timestamp:  ts,
	}, nil
}

// legacyTimestamp accepts unix milliseconds or a civil string with optional
// fraction and Z suffix, and returns a civil timestamp.
func (r *Reconciler) legacyTimestamp(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("missing timestamp")
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return model.FormatCivil(time.UnixMilli(int64(ms)), r.loc), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("timestamp %s is neither a number nor a string", raw)
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	if len(s) > len(model.CivilLayout) {
		s = s[:len(model.CivilLayout)]
	}
	if _, err := model.ParseCivil(s, r.loc); err != nil {
		return "", err
	}
	return s, nil
}

// rewriteLegacy removes the file when nothing is left and otherwise replaces
// it with the remaining entries. An unchanged list is left alone.
func rewriteLegacy(path string, keep []json.RawMessage, found int) error {
	if len(keep) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove legacy list: %w", err)
		}
		return nil
	}
	if len(keep) == found {
		return nil
	}

	data, err := json.Marshal(keep)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".legacy-*.json")
	if err != nil {
		return fmt.Errorf("rewrite legacy list: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("rewrite legacy list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rewrite legacy list: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rewrite legacy list: %w", err)
	}
	return nil
}
