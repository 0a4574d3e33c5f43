package syncer

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/fault"
)

// Uploader is the batched-retry uploader shared by every stream.
//
// Rows are split into batches of BatchSize. Within a batch every row is
// uploaded concurrently and retried up to MaxAttempts times with a fixed
// RetryDelay. When the batch settles, exactly the rows that succeeded are
// passed to Mark in one call. A row that exhausts its attempts stays pending.
type Uploader[T any] struct {
	Stream      string
	BatchSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	Clock       clock.Clock

	ID   func(T) int64
	Save func(ctx context.Context, row T) error
	Mark func(ctx context.Context, ids []int64) error
}

// Report summarizes one stream run.
type Report[T any] struct {
	Stream    string
	Attempted int
	Failed    int
	Offline   bool // a row reported no connectivity; later batches were skipped
	Uploaded  []T
}

// Run uploads rows in order, batch by batch. The only error it returns is a
// Mark failure: upload failures are counted, logged and left pending.
func (u *Uploader[T]) Run(ctx context.Context, rows []T) (Report[T], error) {
	rep := Report[T]{Stream: u.Stream}
	size := u.BatchSize
	if size < 1 {
		size = 1
	}

	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batch := rows[start:end]

		ok, offline := u.uploadBatch(ctx, batch)
		rep.Attempted += len(batch)

		var ids []int64
		for i, row := range batch {
			if ok[i] {
				ids = append(ids, u.ID(row))
				rep.Uploaded = append(rep.Uploaded, row)
			} else {
				rep.Failed++
			}
		}
		if len(ids) > 0 {
			if err := u.Mark(ctx, ids); err != nil {
				return rep, err
			}
		}
		slog.Debug("batch settled", "stream", u.Stream, "size", len(batch), "uploaded", len(ids))

		if offline {
			rep.Offline = true
			break
		}
	}
	return rep, nil
}

func (u *Uploader[T]) uploadBatch(ctx context.Context, batch []T) (ok []bool, offline bool) {
	ok = make([]bool, len(batch))
	off := make([]bool, len(batch))

	var g errgroup.Group
	g.SetLimit(len(batch))
	for i, row := range batch {
		i, row := i, row
		g.Go(func() error {
			err := u.uploadRow(ctx, row)
			ok[i] = err == nil
			off[i] = fault.Is(err, fault.KindOffline)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range off {
		offline = offline || o
	}
	return ok, offline
}

// uploadRow retries retryable failures. Validation, rejection and offline
// results end the attempts early.
func (u *Uploader[T]) uploadRow(ctx context.Context, row T) error {
	attempts := max(u.MaxAttempts, 1)
	clk := clock.OrSystem(u.Clock)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = u.Save(ctx, row)
		if err == nil {
			return nil
		}
		if !fault.Retryable(err) {
			break
		}
		if attempt < attempts {
			if serr := clk.Sleep(ctx, u.RetryDelay); serr != nil {
				return serr
			}
		}
	}
	slog.Warn("row left pending",
		"stream", u.Stream, "id", u.ID(row), "kind", fault.KindOf(err), "error", err)
	return err
}
