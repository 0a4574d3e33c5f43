package syncer

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/api"
	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/mockapi"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/session"
	"github.com/roach88/fieldsync/internal/testutil"
)

func TestEngine_OfflineThenOnline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clk := testutil.NewFakeClock(t0)
	st := openStore(t, clk)

	srv := mockapi.New(mockapi.Config{ClientID: "cid", ClientSecret: "secret", Clock: clk})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	net := &api.Switch{}
	client := api.NewClient(api.Config{
		BaseURL: ts.URL, ClientID: "cid", ClientSecret: "secret",
		Timeout: 5 * time.Second, Connectivity: net, Clock: clk,
	})
	e := New(Deps{
		Store: st, Remote: client, Identity: session.StaticIdentity(emp),
		Connectivity: net, Clock: clk,
	}, DefaultConfig())

	net.Set(false)
	h := &harness{engine: e, store: st, clock: clk}
	h.addPoints(t, fiveStamps...)

	rep, err := e.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "offline", rep.Skipped)
	assert.Equal(t, int64(5), h.counts(t).TrackingPending)

	net.Set(true)
	rep, err = e.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Skipped)
	assert.Equal(t, 5, rep.Uploaded())

	c := h.counts(t)
	assert.Equal(t, int64(0), c.TrackingPending)
	assert.Equal(t, int64(5), c.Tracking)
	assert.Len(t, srv.Saves(emp), 5)
}

func TestEngine_PartialFailureLeavesRowsPending(t *testing.T) {
	h := newHarness(t)
	h.addPoints(t, fiveStamps...)
	h.remote.failing[fiveStamps[1]] = fault.KindTransient
	h.remote.failing[fiveStamps[3]] = fault.KindTransient

	rep, err := h.engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Uploaded())
	assert.Equal(t, 2, rep.Failed())
	assert.Equal(t, int64(2), h.counts(t).TrackingPending)
	assert.Equal(t, 3, h.remote.attemptsFor(fiveStamps[1]))

	// Next cycle: the failing rows succeed, nothing is uploaded twice.
	delete(h.remote.failing, fiveStamps[1])
	delete(h.remote.failing, fiveStamps[3])
	rep, err = h.engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Uploaded())
	assert.Equal(t, int64(0), h.counts(t).TrackingPending)
	assert.Equal(t, 1, h.remote.attemptsFor(fiveStamps[0]))
	assert.ElementsMatch(t, fiveStamps, h.remote.savedDates())
}

func TestEngine_UploadsOldestFirst(t *testing.T) {
	h := newHarness(t)
	h.engine.cfg.BatchSize = 1
	h.addPoints(t, fiveStamps[4], fiveStamps[0], fiveStamps[2])

	_, err := h.engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{fiveStamps[0], fiveStamps[2], fiveStamps[4]}, h.remote.savedDates())
}

func TestEngine_TrackingUploadRecordsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addPoints(t, fiveStamps[:2]...)

	_, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)

	last, err := h.store.GetInt(ctx, model.StateLastUpload)
	require.NoError(t, err)
	assert.Equal(t, t0.UnixMilli(), last)

	sent, _, err := h.store.GetState(ctx, model.StateLastSentTime)
	require.NoError(t, err)
	assert.Equal(t, fiveStamps[1], sent)
}

func TestEngine_FirstUploadOfDayPurgesOlderUploaded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.addPoints(t, "2025-03-13T17:00:00", "2025-03-13T17:05:00")
	old, err := h.store.PendingTrackingPoints(ctx, emp, 0)
	require.NoError(t, err)
	require.NoError(t, h.store.MarkTrackingUploaded(ctx, []int64{old[0].ID}))

	h.addPoints(t, fiveStamps[0])
	h.remote.failing["2025-03-13T17:05:00"] = fault.KindTransient

	_, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)

	pts, err := h.store.TrackingPoints(ctx, emp, "2025-03-13")
	require.NoError(t, err)
	require.Len(t, pts, 1, "uploaded row of yesterday purged, pending row kept")
	assert.False(t, pts[0].Uploaded)

	first, _, err := h.store.GetState(ctx, model.StateFirstSyncDate)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", first)
}

func TestEngine_StartStopStream(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.InsertStartStop(ctx, model.StartStopEvent{
		EmployeeID: emp, Kind: model.KindStart, Latitude: -6.2, Longitude: 106.8,
		Timestamp: "2025-03-14T08:00:00", Address: "Kantor",
	})
	require.NoError(t, err)
	_, err = h.store.InsertStartStop(ctx, model.StartStopEvent{
		EmployeeID: emp, Kind: model.KindStop, Latitude: -6.2, Longitude: 106.8,
		Timestamp: "2025-03-14T17:00:00",
	})
	require.NoError(t, err)

	rep, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Uploaded())

	require.Len(t, h.remote.saves, 2)
	byDate := map[string]api.SaveRequest{}
	for _, s := range h.remote.saves {
		byDate[s.CreatedDate] = s
	}
	assert.True(t, byDate["2025-03-14T08:00:00"].Start)
	assert.Equal(t, "Kantor", byDate["2025-03-14T08:00:00"].Address)
	assert.True(t, byDate["2025-03-14T17:00:00"].Stop)
	assert.Equal(t, int64(0), h.counts(t).StartStopPending)
}

func TestEngine_UploadsRowsOfEveryEmployee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const prev = "EMP002"

	h.addPoints(t, "2025-03-14T08:00:00")
	_, err := h.store.InsertTrackingPoint(ctx, model.TrackingPoint{
		EmployeeID: prev, Latitude: -6.3, Longitude: 106.9, Timestamp: "2025-03-14T07:00:00",
	})
	require.NoError(t, err)
	_, err = h.store.InsertStartStop(ctx, model.StartStopEvent{
		EmployeeID: prev, Kind: model.KindStop, Latitude: -6.3, Longitude: 106.9,
		Timestamp: "2025-03-14T07:05:00",
	})
	require.NoError(t, err)
	_, err = h.store.InsertCheckin(ctx, model.ContractCheckin{
		ContractID: "L-7", EmployeeID: prev, Latitude: -6.3, Longitude: 106.9,
		Timestamp: "2025-03-14T07:10:00",
	})
	require.NoError(t, err)

	rep, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, emp, rep.Employee)
	assert.Equal(t, 4, rep.Uploaded())
	assert.Zero(t, h.counts(t).Pending())

	byDate := map[string]string{}
	for _, s := range h.remote.saves {
		byDate[s.CreatedDate] = s.EmployeeName
	}
	assert.Equal(t, map[string]string{
		"2025-03-14T08:00:00": emp,
		"2025-03-14T07:00:00": prev,
		"2025-03-14T07:05:00": prev,
		"2025-03-14T07:10:00": prev,
	}, byDate)
	require.Len(t, h.remote.updates, 1)
	assert.Equal(t, prev, h.remote.updates[0].EmployeeName)
}

func TestEngine_CheckinSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.SaveContracts(ctx, model.ContractSnapshot{
		EmployeeID:  emp,
		Contracts:   []model.Contract{{LeaseNo: "L-1", CustName: "Budi"}, {LeaseNo: "L-2", CustName: "Sari"}},
		RefreshedAt: "2025-03-14T07:00:00",
	}))
	_, err := h.store.InsertCheckin(ctx, model.ContractCheckin{
		ContractID: "L-1", EmployeeID: emp, Latitude: -6.2, Longitude: 106.8,
		Timestamp: "2025-03-14T09:00:00", Comment: "paid", Address: "Jl. Melati",
	})
	require.NoError(t, err)
	require.NoError(t, h.store.SetState(ctx, model.CheckinInProgressKey("L-1"), "1"))

	rep, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Uploaded())

	require.Len(t, h.remote.saves, 1)
	save := h.remote.saves[0]
	assert.True(t, save.CheckIn)
	assert.Equal(t, "L-1", save.LeaseNo)
	assert.Equal(t, "paid", save.Comment)

	require.Len(t, h.remote.updates, 1)
	assert.Equal(t, "2025-03-14T09:00:00", h.remote.updates[0].CheckIn)
	assert.Equal(t, "-6.2", h.remote.updates[0].Latitude)

	snap, _, err := h.store.Contracts(ctx, emp)
	require.NoError(t, err)
	assert.True(t, snap.Contracts[0].CheckedIn)
	assert.Equal(t, "paid", snap.Contracts[0].Comment)
	assert.False(t, snap.Contracts[1].CheckedIn)

	_, found, err := h.store.GetState(ctx, model.CheckinInProgressKey("L-1"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEngine_SentinelCheckinUploadsAsTracking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.InsertCheckin(ctx, model.ContractCheckin{
		ContractID: model.SentinelContractID, EmployeeID: emp, Latitude: -6.2, Longitude: 106.8,
		Timestamp: "2025-03-14T09:00:00",
	})
	require.NoError(t, err)

	_, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)
	require.Len(t, h.remote.saves, 1)
	assert.False(t, h.remote.saves[0].CheckIn)
	assert.Empty(t, h.remote.saves[0].LeaseNo)
	assert.Empty(t, h.remote.updates)
}

func TestEngine_FailedCheckinKeepsIndicator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.store.InsertCheckin(ctx, model.ContractCheckin{
		ContractID: "L-1", EmployeeID: emp, Timestamp: "2025-03-14T09:00:00",
	})
	require.NoError(t, err)
	require.NoError(t, h.store.SetState(ctx, model.CheckinInProgressKey("L-1"), "1"))
	h.remote.failing["2025-03-14T09:00:00"] = fault.KindTransient

	_, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)

	_, found, err := h.store.GetState(ctx, model.CheckinInProgressKey("L-1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), h.counts(t).CheckinsPending)
}

func TestEngine_SkipsWhenBusy(t *testing.T) {
	h := newHarness(t)
	h.engine.cycleMu.Lock()
	defer h.engine.cycleMu.Unlock()

	rep, err := h.engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "busy", rep.Skipped)
	assert.NoError(t, h.engine.SyncTracking(context.Background(), emp))
}

func TestEngine_SkipsWithoutIdentity(t *testing.T) {
	h := newHarness(t)
	h.engine.deps.Identity = session.StaticIdentity("")

	rep, err := h.engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "no_identity", rep.Skipped)
}

func TestEngine_StatusRecordsCycles(t *testing.T) {
	h := newHarness(t)
	h.addPoints(t, fiveStamps[0])

	rep, err := h.engine.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", rep.ID)

	st := h.engine.Status()
	assert.Equal(t, int64(1), st.Cycles)
	assert.Equal(t, "cycle-1", st.LastReport.ID)
	assert.Empty(t, st.LastError)
}

func TestEngine_SyncStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	active, err := h.engine.SyncStatus(ctx, emp)
	require.NoError(t, err)
	assert.True(t, active)
	stored, err := h.store.GetBool(ctx, model.StateTrackingActive)
	require.NoError(t, err)
	assert.True(t, stored)

	h.remote.offline = true
	active, err = h.engine.SyncStatus(ctx, emp)
	require.NoError(t, err)
	assert.True(t, active, "offline keeps the local flag")

	h.remote.offline = false
	h.remote.action = api.NextActionStart
	active, err = h.engine.SyncStatus(ctx, emp)
	require.NoError(t, err)
	assert.False(t, active)

	c := h.counts(t)
	assert.Zero(t, c.Tracking+c.StartStop+c.Checkins, "event tables untouched")
}

func TestEngine_StartStop(t *testing.T) {
	h := newHarness(t)
	h.engine.cfg.Interval = time.Hour
	h.addPoints(t, fiveStamps[0])

	require.NoError(t, h.engine.Start(context.Background()))
	assert.ErrorIs(t, h.engine.Start(context.Background()), ErrAlreadyRunning)
	assert.True(t, h.engine.Running())

	require.Eventually(t, func() bool {
		return h.engine.Status().Cycles >= 1
	}, 2*time.Second, 10*time.Millisecond, "first cycle runs immediately")

	h.engine.Stop()
	assert.False(t, h.engine.Running())
	assert.Equal(t, int64(0), h.counts(t).TrackingPending)

	h.engine.Stop() // idempotent
}
