package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/api"
	"github.com/roach88/fieldsync/internal/capture"
	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

const emp = "EMP001"

// 2025-03-14 08:30:00 WIB
var t0 = time.Date(2025, 3, 14, 1, 30, 0, 0, time.UTC)

type fakeRemote struct {
	mu      sync.Mutex
	records []api.Record
	offline bool
	fail    bool
	dates   []string
}

func (f *fakeRemote) GetRecords(ctx context.Context, employee, createdDate string) fault.Result[[]api.Record] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dates = append(f.dates, createdDate)
	if f.offline {
		return fault.Offline[[]api.Record]()
	}
	if f.fail {
		return fault.Fail[[]api.Record]("fake.get_records", fault.Errorf(fault.KindTransient, "fake.get_records", "503"))
	}
	return fault.Ok(f.records)
}

// fakeSyncer marks every pending tracking row uploaded.
type fakeSyncer struct {
	st    *store.Store
	calls int
}

func (f *fakeSyncer) SyncTracking(ctx context.Context, employee string) error {
	f.calls++
	rows, err := f.st.PendingTrackingPoints(ctx, employee, 0)
	if err != nil {
		return err
	}
	ids := make([]int64, len(rows))
	for i, p := range rows {
		ids[i] = p.ID
	}
	return f.st.MarkTrackingUploaded(ctx, ids)
}

type harness struct {
	rec     *Reconciler
	store   *store.Store
	remote  *fakeRemote
	syncer  *fakeSyncer
	net     *api.Switch
	capture *capture.Controller
	clock   *testutil.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := testutil.NewFakeClock(t0)
	st, err := store.Open(filepath.Join(t.TempDir(), "reconcile.db"), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := &harness{
		store:   st,
		remote:  &fakeRemote{},
		syncer:  &fakeSyncer{st: st},
		net:     &api.Switch{},
		capture: &capture.Controller{},
		clock:   clk,
	}
	h.net.Set(true)
	h.rec = New(Deps{
		Store:        st,
		Remote:       h.remote,
		Syncer:       h.syncer,
		Connectivity: h.net,
		Capture:      h.capture,
		Clock:        clk,
	}, Config{})
	return h
}

func (h *harness) addPoint(t *testing.T, ts string, uploaded bool) {
	t.Helper()
	ctx := context.Background()
	_, err := h.store.InsertTrackingPoint(ctx, model.TrackingPoint{
		EmployeeID: emp, Latitude: -6.2, Longitude: 106.8, Timestamp: ts,
	})
	require.NoError(t, err)
	if uploaded {
		pts, err := h.store.TrackingPoints(ctx, emp, model.CivilDate(ts))
		require.NoError(t, err)
		for _, p := range pts {
			if p.Timestamp == ts {
				require.NoError(t, h.store.MarkTrackingUploaded(ctx, []int64{p.ID}))
			}
		}
	}
}

func (h *harness) counts(t *testing.T) store.Counts {
	t.Helper()
	c, err := h.store.Counts(context.Background())
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pendingLocations.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
