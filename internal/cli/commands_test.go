package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/mockapi"
)

var officeArgs = []string{"--lat", "-6.2", "--lng", "106.8"}

func recordArgs(sub string, extra ...string) []string {
	args := append([]string{"record", sub}, officeArgs...)
	return append(args, extra...)
}

func TestInvalidFormatRejected(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "--format", "xml", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")

	_, err = e.run(t, "--log-format", "logfmt", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestMissingConfigIsCommandError(t *testing.T) {
	e := newEnv(t)
	_, err := e.runWith(t, filepath.Join(e.dir, "absent.yaml"), "status")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestStatus_Golden(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, recordArgs("start", "--address", "Office")...)
	require.NoError(t, err)

	out, err := e.run(t, "status")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "status", []byte(out))
}

func TestStatus_JSON(t *testing.T) {
	e := newEnv(t)
	resp, data, err := e.runJSON(t, "status")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, emp, data["employee"])
	assert.Equal(t, float64(2), data["schema_version"])
	assert.Equal(t, false, data["tracking_active"])
	assert.Equal(t, float64(0), data["pending"])
}

func TestDBFlagOverridesConfig(t *testing.T) {
	e := newEnv(t)
	other := filepath.Join(e.dir, "other.db")
	_, data, err := e.runJSON(t, "--db", other, "status")
	require.NoError(t, err)
	assert.Equal(t, other, data["database"])
	assert.FileExists(t, other)
}

func TestRecordStart_OnlineUploads(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, recordArgs("start", "--address", "Office")...)
	require.NoError(t, err)
	assert.Equal(t, "start recorded at 2025-03-14T08:30:00: uploaded\n", out)

	saves := e.server.Saves(emp)
	require.Len(t, saves, 1)
	assert.True(t, saves[0].Start)
	assert.Equal(t, "Office", saves[0].Address)
}

func TestRecordStart_OfflineThenSync(t *testing.T) {
	e := newEnv(t)
	out, err := e.runWith(t, e.offlineConfig, recordArgs("start")...)
	require.NoError(t, err)
	assert.Contains(t, out, "stored offline, will sync later")
	assert.Empty(t, e.server.Saves(emp))

	_, data, err := e.runJSON(t, "sync")
	require.NoError(t, err)
	assert.Empty(t, data["skipped"])
	assert.Len(t, e.server.Saves(emp), 1)

	_, data, err = e.runJSON(t, "status")
	require.NoError(t, err)
	assert.Equal(t, float64(0), data["pending"])
}

func TestSync_OfflineSkipped(t *testing.T) {
	e := newEnv(t)
	out, err := e.runWith(t, e.offlineConfig, "sync")
	require.NoError(t, err)
	assert.Equal(t, "sync skipped: offline\n", out)
}

func TestRecordStart_MissingCoordinates(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "record", "start", "--lat", "-6.2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lng")
}

func TestRecordStart_OutOfRangeCoordinates(t *testing.T) {
	e := newEnv(t)
	resp, _, err := e.runJSON(t, "record", "start", "--lat", "95", "--lng", "106.8")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Empty(t, e.server.Saves(emp))
}

func TestRecordLocation_ServerStopAcrossInvocations(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, recordArgs("start", "--address", "Office")...)
	require.NoError(t, err)

	e.server.SetNextAction(emp, "Start")
	e.clock.Advance(time.Minute)
	_, data, err := e.runJSON(t, "record", "location", "--lat", "-6.25", "--lng", "106.85", "--accuracy", "5")
	require.NoError(t, err)
	assert.Equal(t, "stopped_by_server", data["outcome"])

	_, data, err = e.runJSON(t, "status")
	require.NoError(t, err)
	assert.Equal(t, false, data["tracking_active"])
	assert.Equal(t, float64(0), data["counts"].(map[string]any)["tracking"])
}

func TestRecordCheckin_OncePerDay(t *testing.T) {
	e := newEnv(t)
	e.server.SetContracts(emp, []mockapi.Contract{{LeaseNo: "L-100", CustName: "PT Maju"}})

	out, err := e.run(t, recordArgs("checkin", "--contract", "L-100", "--comment", "met customer")...)
	require.NoError(t, err)
	assert.Contains(t, out, "check-in recorded at 2025-03-14T08:30:00: uploaded")
	require.Len(t, e.server.Updates(), 1)

	e.clock.Advance(time.Hour)
	resp, _, err := e.runJSON(t, recordArgs("checkin", "--contract", "L-100")...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDuplicate, resp.Error.Code)
}

func TestRecordLocation(t *testing.T) {
	e := newEnv(t)
	_, data, err := e.runJSON(t, recordArgs("location", "--accuracy", "5", "--at", "2025-03-14T08:31:00+07:00")...)
	require.NoError(t, err)
	assert.Contains(t, []any{"persisted", "persisted_and_synced"}, data["outcome"])

	_, data, err = e.runJSON(t, recordArgs("location", "--accuracy", "80")...)
	require.NoError(t, err)
	assert.Equal(t, "low_accuracy", data["outcome"])

	_, err = e.run(t, recordArgs("location", "--at", "yesterday")...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_OnceFeedsFixesAndSyncs(t *testing.T) {
	e := newEnv(t)
	fixes := filepath.Join(e.dir, "fixes.jsonl")
	require.NoError(t, os.WriteFile(fixes, []byte(`
{"latitude":-6.2000,"longitude":106.8,"accuracy":5,"timestamp":"2025-03-14T08:30:00+07:00"}
{"latitude":-6.2100,"longitude":106.8,"accuracy":5,"timestamp":"2025-03-14T08:31:00+07:00"}
{"latitude":-6.2200,"longitude":106.8,"accuracy":90,"timestamp":"2025-03-14T08:32:00+07:00"}
`), 0o600))

	_, data, err := e.runJSON(t, "run", "--fixes", fixes, "--once")
	require.NoError(t, err)
	assert.Equal(t, float64(3), data["fixes"])
	outcomes, ok := data["outcomes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), outcomes["low_accuracy"])
	assert.NotNil(t, data["sync"])

	_, data, err = e.runJSON(t, "status")
	require.NoError(t, err)
	counts := data["counts"].(map[string]any)
	assert.Equal(t, float64(2), counts["tracking"])
	assert.Equal(t, float64(0), data["pending"])
}

func TestRun_BadFixLine(t *testing.T) {
	e := newEnv(t)
	fixes := filepath.Join(e.dir, "fixes.jsonl")
	require.NoError(t, os.WriteFile(fixes, []byte("{not json}\n"), 0o600))

	_, err := e.run(t, "run", "--fixes", fixes, "--once")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "line 1")
}

func TestEvents_LocalAndServer(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, recordArgs("start", "--address", "Office")...)
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	_, err = e.runWith(t, e.offlineConfig, recordArgs("stop")...)
	require.NoError(t, err)

	out, err := e.run(t, "events")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-03-14T08:30:00  Start")
	assert.Contains(t, out, "2025-03-14T08:31:00  Stop")
	assert.Contains(t, out, "uploaded\n")
	assert.Contains(t, out, "pending\n")

	_, data, err := e.runJSON(t, "events", "--server")
	require.NoError(t, err)
	assert.Equal(t, "server", data["source"])
	events, ok := data["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 2)
	assert.Equal(t, true, events[0].(map[string]any)["uploaded"], "server copy of the start")
	assert.Equal(t, false, events[1].(map[string]any)["uploaded"], "pending stop is kept")
}

func TestEvents_ServerUnreachableFallsBackToLocal(t *testing.T) {
	e := newEnv(t)
	out, err := e.runWith(t, e.offlineConfig, "events", "--server")
	require.NoError(t, err)
	assert.Equal(t, "EMP001 2025-03-14 (local: offline)\nno events\n", out)
}

func TestContracts_Refresh(t *testing.T) {
	e := newEnv(t)
	e.server.SetContracts(emp, []mockapi.Contract{
		{LeaseNo: "L-100", CustName: "PT Maju"},
		{LeaseNo: "L-200", CustName: "CV Jaya"},
	})

	out, err := e.run(t, "contracts", "--refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] L-100        PT Maju")
	assert.Contains(t, out, "[ ] L-200        CV Jaya")

	_, err = e.run(t, recordArgs("checkin", "--contract", "L-200")...)
	require.NoError(t, err)

	out, err = e.run(t, "contracts")
	require.NoError(t, err)
	assert.Contains(t, out, "[x] L-200        CV Jaya")
}

func TestPrune_DryRunThenDelete(t *testing.T) {
	e := newEnv(t)
	_, err := e.runWith(t, e.offlineConfig, recordArgs("start")...)
	require.NoError(t, err)

	// The start event is 40 days old from here.
	e.clock.Advance(40 * 24 * time.Hour)

	out, err := e.run(t, "prune", "--days", "30", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "events before 2025-03-24: would delete 1")

	_, data, err := e.runJSON(t, "status")
	require.NoError(t, err)
	assert.Equal(t, float64(1), data["counts"].(map[string]any)["start_stop"])

	_, data, err = e.runJSON(t, "prune", "--days", "30")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-24", data["cutoff"])

	_, data, err = e.runJSON(t, "status")
	require.NoError(t, err)
	assert.Equal(t, float64(0), data["counts"].(map[string]any)["start_stop"])
}

func TestPrune_NegativeDaysUsesRetention(t *testing.T) {
	e := newEnv(t)
	_, data, err := e.runJSON(t, "prune", "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-12", data["cutoff"], "default retention is 30 days")
}

func TestMaintain_OncePerDay(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "maintain")
	require.NoError(t, err)
	assert.Contains(t, out, "maintenance ran on 2025-03-14")

	out, err = e.run(t, "maintain")
	require.NoError(t, err)
	assert.Equal(t, "maintenance already ran on 2025-03-14\n", out)
}

func TestMigrateLegacy_FromConfigPath(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.legacyPath, []byte(`[
		{"latitude": -6.2, "longitude": 106.8, "timestamp": 1741915800000, "employee_name": "EMP001"},
		{"latitude": -6.3, "longitude": 106.9, "timestamp": "2025-03-14T08:31:00.000Z"},
		{"latitude": null, "longitude": 106.9, "timestamp": 1741915900000}
	]`), 0o600))

	out, err := e.run(t, "migrate-legacy", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "3 entries, would migrate 2")
	assert.FileExists(t, e.legacyPath)

	_, data, err := e.runJSON(t, "migrate-legacy")
	require.NoError(t, err)
	assert.Equal(t, float64(2), data["migrated"])
	assert.Equal(t, float64(1), data["invalid"])
	assert.Equal(t, true, data["file_removed"])
	assert.NoFileExists(t, e.legacyPath)

	out, err = e.run(t, "migrate-legacy")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to migrate")
}

func TestMigrateLegacy_BadMode(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.legacyPath, []byte(`[]`), 0o600))
	_, err := e.run(t, "migrate-legacy", "--mode", "sometimes")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestReset_RequiresConfirmation(t *testing.T) {
	e := newEnv(t)
	_, err := e.runWith(t, e.offlineConfig, recordArgs("start")...)
	require.NoError(t, err)

	_, err = e.run(t, "reset")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := e.run(t, "reset", "--yes")
	require.NoError(t, err)
	assert.Equal(t, "local store reset (1 pending events dropped)\n", out)

	_, data, err := e.runJSON(t, "status")
	require.NoError(t, err)
	assert.Equal(t, float64(0), data["counts"].(map[string]any)["start_stop"])
}

func TestSeedContracts(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.dir, "contracts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"EMP009": [{"LeaseNo": "L-9", "CustName": "PT Sembilan"}]}`), 0o600))

	srv := mockapi.New(mockapi.Config{ClientID: "cid", ClientSecret: "secret"})
	require.NoError(t, seedContracts(srv, path))

	require.Error(t, seedContracts(srv, filepath.Join(e.dir, "absent.json")))
}
