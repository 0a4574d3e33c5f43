package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file should exist")
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.InsertTrackingPoint(ctx, testPoint("emp", "2025-03-14T08:00:00", 1, 2))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	counts, err := s2.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Tracking)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
}

func TestClose_Idempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestClose_RejectsNewWork(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.InsertTrackingPoint(context.Background(), testPoint("emp", "2025-03-14T08:00:00", 1, 2))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStore_ConcurrentWritersSerialized(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const writers = 64
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := fmt.Sprintf("2025-03-14T08:%02d:%02d", i/60, i%60)
			if _, err := s.InsertTrackingPoint(ctx, testPoint("emp", ts, -6.2, 106.8)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent insert failed: %v", err)
	}

	pending, err := s.PendingTrackingPoints(ctx, "emp", 0)
	require.NoError(t, err)
	assert.Len(t, pending, writers, "every write must land exactly once")
}

func TestStore_ConcurrentDuplicateInserts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.InsertTrackingPoint(ctx, testPoint("emp", "2025-03-14T08:00:00", -6.2, 106.8))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Tracking)
}

func TestStore_CancelledContextSkipsQueuedOp(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.InsertTrackingPoint(ctx, testPoint("emp", "2025-03-14T08:00:00", 1, 2))
	assert.ErrorIs(t, err, context.Canceled)

	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Tracking)
}
