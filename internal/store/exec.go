package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Op selects the kind of a generic store request.
type Op int

const (
	// OpExec runs one or more statements without a result.
	OpExec Op = iota + 1
	// OpRun runs one statement and reports LastInsertID and RowsAffected.
	OpRun
	// OpQueryAll returns every row.
	OpQueryAll
	// OpQueryFirst returns the first row, or none.
	OpQueryFirst
)

func (o Op) String() string {
	switch o {
	case OpExec:
		return "exec"
	case OpRun:
		return "run"
	case OpQueryAll:
		return "query_all"
	case OpQueryFirst:
		return "query_first"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Row is one result row keyed by column name. TEXT and BLOB values are strings.
type Row map[string]any

// RunResult reports the effect of an OpRun.
type RunResult struct {
	LastInsertID int64
	RowsAffected int64
}

// Request is a generic store request.
type Request struct {
	Op    Op
	SQL   string
	Args  []any
	UseTx bool   // wrap the statement in its own transaction
	Desc  string // log label, defaults to the op name
}

// Result carries the output of a Request. Only the field matching the Op is set.
type Result struct {
	Run   RunResult
	Rows  []Row
	First Row
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execute runs a generic request through the single-writer queue.
func (s *Store) Execute(ctx context.Context, req Request) (Result, error) {
	desc := req.Desc
	if desc == "" {
		desc = req.Op.String()
	}

	var res Result
	run := func(ctx context.Context, q querier) error {
		var err error
		res, err = dispatch(ctx, q, req)
		return err
	}

	err := s.submit(ctx, desc, func(ctx context.Context, db *sql.DB) error {
		if !req.UseTx {
			return run(ctx, db)
		}
		return runInTx(ctx, db, func(tx *sql.Tx) error {
			return run(ctx, tx)
		})
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", desc, err)
	}
	return res, nil
}

// Exec runs statements that return no rows.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.Execute(ctx, Request{Op: OpExec, SQL: query, Args: args})
	return err
}

// Run runs one statement and reports its effect.
func (s *Store) Run(ctx context.Context, query string, args ...any) (RunResult, error) {
	res, err := s.Execute(ctx, Request{Op: OpRun, SQL: query, Args: args})
	return res.Run, err
}

// QueryAll returns all rows of a query.
func (s *Store) QueryAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	res, err := s.Execute(ctx, Request{Op: OpQueryAll, SQL: query, Args: args})
	return res.Rows, err
}

// QueryFirst returns the first row of a query, or nil when there is none.
func (s *Store) QueryFirst(ctx context.Context, query string, args ...any) (Row, error) {
	res, err := s.Execute(ctx, Request{Op: OpQueryFirst, SQL: query, Args: args})
	return res.First, err
}

// Tx is a transaction handle passed to Transaction callbacks.
// Its methods run directly on the open transaction and must not be used
// after the callback returns.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// Exec runs statements that return no rows.
func (t *Tx) Exec(query string, args ...any) error {
	_, err := dispatch(t.ctx, t.tx, Request{Op: OpExec, SQL: query, Args: args})
	return err
}

// Run runs one statement and reports its effect.
func (t *Tx) Run(query string, args ...any) (RunResult, error) {
	res, err := dispatch(t.ctx, t.tx, Request{Op: OpRun, SQL: query, Args: args})
	return res.Run, err
}

// QueryAll returns all rows of a query.
func (t *Tx) QueryAll(query string, args ...any) ([]Row, error) {
	res, err := dispatch(t.ctx, t.tx, Request{Op: OpQueryAll, SQL: query, Args: args})
	return res.Rows, err
}

// QueryFirst returns the first row of a query, or nil when there is none.
func (t *Tx) QueryFirst(query string, args ...any) (Row, error) {
	res, err := dispatch(t.ctx, t.tx, Request{Op: OpQueryFirst, SQL: query, Args: args})
	return res.First, err
}

// Transaction runs fn inside BEGIN/COMMIT in a single queue slot.
// Any error returned by fn, or a panic, rolls the transaction back.
func (s *Store) Transaction(ctx context.Context, desc string, fn func(tx *Tx) error) error {
	err := s.submit(ctx, desc, func(ctx context.Context, db *sql.DB) error {
		return runInTx(ctx, db, func(tx *sql.Tx) error {
			return fn(&Tx{ctx: ctx, tx: tx})
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", desc, err)
	}
	return nil
}

// inTx runs fn in a queued transaction. Used by the typed store methods.
func (s *Store) inTx(ctx context.Context, desc string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	err := s.submit(ctx, desc, func(ctx context.Context, db *sql.DB) error {
		return runInTx(ctx, db, func(tx *sql.Tx) error {
			return fn(ctx, tx)
		})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", desc, err)
	}
	return nil
}

// do runs fn on the database in a queue slot without a transaction.
func (s *Store) do(ctx context.Context, desc string, fn func(ctx context.Context, db *sql.DB) error) error {
	if err := s.submit(ctx, desc, fn); err != nil {
		return fmt.Errorf("%s: %w", desc, err)
	}
	return nil
}

func runInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func dispatch(ctx context.Context, q querier, req Request) (Result, error) {
	switch req.Op {
	case OpExec:
		_, err := q.ExecContext(ctx, req.SQL, req.Args...)
		return Result{}, err
	case OpRun:
		r, err := q.ExecContext(ctx, req.SQL, req.Args...)
		if err != nil {
			return Result{}, err
		}
		id, _ := r.LastInsertId()
		n, err := r.RowsAffected()
		if err != nil {
			return Result{}, err
		}
		return Result{Run: RunResult{LastInsertID: id, RowsAffected: n}}, nil
	case OpQueryAll, OpQueryFirst:
		rows, err := q.QueryContext(ctx, req.SQL, req.Args...)
		if err != nil {
			return Result{}, err
		}
		defer rows.Close()
		all, err := scanRows(rows, req.Op == OpQueryFirst)
		if err != nil {
			return Result{}, err
		}
		if req.Op == OpQueryFirst {
			if len(all) == 0 {
				return Result{}, nil
			}
			return Result{First: all[0]}, nil
		}
		return Result{Rows: all}, nil
	default:
		return Result{}, fmt.Errorf("unknown store op %v", req.Op)
	}
}

func scanRows(rows *sql.Rows, firstOnly bool) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		out = append(out, row)
		if firstOnly {
			break
		}
	}
	return out, rows.Err()
}
