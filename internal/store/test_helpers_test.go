package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/testutil"
)

// createTestStore creates a new file-backed store in a temp dir.
// Lock backoff runs on a fake clock so retries never sleep.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(testutil.NewFakeClock(time.Unix(0, 0))))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPoint(employee, ts string, lat, lng float64) model.TrackingPoint {
	return model.TrackingPoint{EmployeeID: employee, Latitude: lat, Longitude: lng, Timestamp: ts}
}

func testCheckin(contract, employee, ts string) model.ContractCheckin {
	return model.ContractCheckin{
		ContractID: contract,
		EmployeeID: employee,
		Latitude:   -6.2,
		Longitude:  106.8,
		Timestamp:  ts,
		Comment:    "visited",
		Address:    "Jl. Sudirman 1",
	}
}
