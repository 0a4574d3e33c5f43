package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/mockapi"
	"github.com/roach88/fieldsync/internal/testutil"
)

const emp = "EMP001"

// 2025-03-14 08:30:00 WIB
var t0 = time.Date(2025, 3, 14, 1, 30, 0, 0, time.UTC)

// cliEnv is a temp database, a config file and a mock API behind httptest.
type cliEnv struct {
	dir           string
	config        string
	offlineConfig string
	legacyPath    string
	server        *mockapi.Server
	clock         *testutil.FakeClock
}

func newEnv(t *testing.T) *cliEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := testutil.NewFakeClock(t0)
	srv := mockapi.New(mockapi.Config{ClientID: "cid", ClientSecret: "secret", Clock: clk})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	e := &cliEnv{
		dir:        dir,
		legacyPath: filepath.Join(dir, "pendingLocations.json"),
		server:     srv,
		clock:      clk,
	}
	e.config = e.writeConfig(t, "fieldsync.yaml", ts.URL)
	e.offlineConfig = e.writeConfig(t, "offline.yaml", "http://"+closedAddr(t))
	return e
}

func (e *cliEnv) writeConfig(t *testing.T, name, baseURL string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	content := fmt.Sprintf(`database:
  path: %s
api:
  base_url: %s
  client_id: cid
  client_secret: secret
  timeout: 2s
identity:
  employee_id: %s
maintenance:
  legacy_path: %s
`, filepath.Join(e.dir, "agent.db"), baseURL, emp, e.legacyPath)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// closedAddr returns a local address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// run executes the root command with the online config.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runWith(t, e.config, args...)
}

func (e *cliEnv) runWith(t *testing.T, config string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(&RootOptions{Clock: e.clock})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// runJSON executes a command with --format json and decodes the envelope.
func (e *cliEnv) runJSON(t *testing.T, args ...string) (CLIResponse, map[string]any, error) {
	t.Helper()
	out, err := e.run(t, append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	data, _ := resp.Data.(map[string]any)
	return resp, data, err
}
