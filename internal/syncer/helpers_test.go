package syncer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/api"
	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/session"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

const emp = "EMP001"

// 2025-03-14 08:30:00 WIB
var t0 = time.Date(2025, 3, 14, 1, 30, 0, 0, time.UTC)

// fakeRemote records saves and fails the rows whose CreatedDate is listed.
type fakeRemote struct {
	mu       sync.Mutex
	saves    []api.SaveRequest
	updates  []api.UpdateCheckRequest
	attempts map[string]int
	failing  map[string]fault.Kind
	offline  bool
	action   string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		attempts: make(map[string]int),
		failing:  make(map[string]fault.Kind),
		action:   api.NextActionStop,
	}
}

func (r *fakeRemote) Save(ctx context.Context, req api.SaveRequest) fault.Result[api.SaveResponse] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[req.CreatedDate]++
	if r.offline {
		return fault.Offline[api.SaveResponse]()
	}
	if k, ok := r.failing[req.CreatedDate]; ok {
		return fault.Fail[api.SaveResponse]("fake.save", fault.Errorf(k, "fake.save", "injected"))
	}
	r.saves = append(r.saves, req)
	return fault.Ok(api.SaveResponse{Status: api.StatusOK})
}

func (r *fakeRemote) UpdateStatus(ctx context.Context, req api.UpdateCheckRequest) fault.Result[api.SaveResponse] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline {
		return fault.Offline[api.SaveResponse]()
	}
	r.updates = append(r.updates, req)
	return fault.Ok(api.SaveResponse{Status: api.StatusOK})
}

func (r *fakeRemote) TrackingStatus(ctx context.Context, employee string) fault.Result[api.TrackingStatus] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.offline {
		return fault.Offline[api.TrackingStatus]()
	}
	return fault.Ok(api.TrackingStatus{NextAction: r.action})
}

func (r *fakeRemote) savedDates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.saves))
	for i, s := range r.saves {
		out[i] = s.CreatedDate
	}
	return out
}

func (r *fakeRemote) attemptsFor(ts string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[ts]
}

func openStore(t *testing.T, clk *testutil.FakeClock) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sync.db"), store.WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

type harness struct {
	engine *Engine
	store  *store.Store
	remote *fakeRemote
	clock  *testutil.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := testutil.NewFakeClock(t0)
	st := openStore(t, clk)
	remote := newFakeRemote()
	e := New(Deps{
		Store:    st,
		Remote:   remote,
		Identity: session.StaticIdentity(emp),
		Clock:    clk,
		IDs:      testutil.NewFixedIDs("cycle-1", "cycle-2", "cycle-3", "cycle-4"),
	}, DefaultConfig())
	return &harness{engine: e, store: st, remote: remote, clock: clk}
}

func (h *harness) addPoints(t *testing.T, timestamps ...string) {
	t.Helper()
	for i, ts := range timestamps {
		_, err := h.store.InsertTrackingPoint(context.Background(), model.TrackingPoint{
			EmployeeID: emp,
			Latitude:   -6.2 + float64(i)*0.001,
			Longitude:  106.8,
			Timestamp:  ts,
		})
		require.NoError(t, err)
	}
}

func (h *harness) counts(t *testing.T) store.Counts {
	t.Helper()
	c, err := h.store.Counts(context.Background())
	require.NoError(t, err)
	return c
}

var fiveStamps = []string{
	"2025-03-14T08:00:00",
	"2025-03-14T08:02:00",
	"2025-03-14T08:04:00",
	"2025-03-14T08:06:00",
	"2025-03-14T08:08:00",
}
