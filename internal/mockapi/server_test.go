package mockapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/session"
	"github.com/roach88/fieldsync/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *testutil.FakeClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := testutil.NewFakeClock(time.Date(2025, 3, 14, 1, 30, 0, 0, time.UTC))
	return New(Config{ClientID: "cid", ClientSecret: "secret", Clock: clk}), clk
}

func issueToken(t *testing.T, s *Server) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, PathToken, bytes.NewBufferString(`{"ClientId":"cid","ClientSecret":"secret"}`))
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status int
		Data   struct{ AccessToken, ClientId, ValidTo string }
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Status)
	assert.Equal(t, "2025-03-14T02:30:00Z", resp.Data.ValidTo)
	return resp.Data.AccessToken
}

func signedRequest(method, path, token, ts string, body []byte, secret string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-PARTNER-ID", "cid")
	req.Header.Set("X-TIMESTAMP", ts)
	req.Header.Set("X-SIGNATURE", session.Sign(session.SigningInput{
		Method: method, Path: path, Token: token, Body: body, Timestamp: ts,
	}, secret))
	return req
}

func TestServer_TokenRejectsBadSecret(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, PathToken, bytes.NewBufferString(`{"ClientId":"cid","ClientSecret":"nope"}`))
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, s.TokensIssued())
}

func TestServer_SaveRequiresValidSignature(t *testing.T) {
	s, _ := newTestServer(t)
	token := issueToken(t, s)
	body := []byte(`{"CreatedDate":"2025-03-14T08:30:00","EmployeeName":"E1","Lattitude":-6.2,"Longtitude":106.8}`)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, signedRequest(http.MethodPost, PathSave, token, "2025-03-14T01:30:00.000Z", body, "wrong"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.Saves("E1"))

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, signedRequest(http.MethodPost, PathSave, token, "2025-03-14T01:30:00.000Z", body, "secret"))
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, s.Saves("E1"), 1)
	assert.Equal(t, "tracking", s.Saves("E1")[0].Type())
}

func TestServer_ExpiredTokenRejected(t *testing.T) {
	s, clk := newTestServer(t)
	token := issueToken(t, s)
	clk.Advance(2 * time.Hour)

	body := []byte(`{"EmployeeName":"E1"}`)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, signedRequest(http.MethodPost, PathIsStarted, token, "2025-03-14T03:30:00.000Z", body, "secret"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_NextActionFollowsStartStop(t *testing.T) {
	s, _ := newTestServer(t)
	token := issueToken(t, s)
	ts := "2025-03-14T01:30:00.000Z"

	nextAction := func() string {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, signedRequest(http.MethodPost, PathIsStarted, token, ts,
			[]byte(`{"CreatedDate":"2025-03-14T08:30:00","EmployeeName":"E1"}`), "secret"))
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct{ Data struct{ NextAction string } }
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.Data.NextAction
	}
	save := func(body string) {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, signedRequest(http.MethodPost, PathSave, token, ts, []byte(body), "secret"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, "Start", nextAction())
	save(`{"CreatedDate":"2025-03-14T08:00:00","EmployeeName":"E1","Start":true}`)
	assert.Equal(t, "Stop", nextAction())
	save(`{"CreatedDate":"2025-03-14T17:00:00","EmployeeName":"E1","Stop":true}`)
	assert.Equal(t, "Start", nextAction())

	s.SetNextAction("E1", "Stop")
	assert.Equal(t, "Stop", nextAction())
}

func TestServer_FailNextRecordsCall(t *testing.T) {
	s, _ := newTestServer(t)
	token := issueToken(t, s)
	s.FailNext(PathSave, http.StatusBadGateway, 1)

	body := []byte(`{"CreatedDate":"2025-03-14T08:30:00","EmployeeName":"E1"}`)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, signedRequest(http.MethodPost, PathSave, token, "t1", body, "secret"))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	calls := s.Calls(PathSave)
	require.Len(t, calls, 1)
	assert.Equal(t, http.StatusBadGateway, calls[0].Status)
	assert.Equal(t, "t1", calls[0].Timestamp)
}
