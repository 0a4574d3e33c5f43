package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/roach88/fieldsync/internal/canonical"
	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/session"
)

// Request headers.
const (
	HeaderPartnerID  = "X-PARTNER-ID"
	HeaderTimestamp  = "X-TIMESTAMP"
	HeaderSignature  = "X-SIGNATURE"
	HeaderExternalID = "X-EXTERNAL-ID"
)

// Transport performs signed HTTP calls against the remote API.
type Transport struct {
	BaseURL      string
	Secret       string
	HTTPClient   *http.Client
	Sessions     *session.Manager
	Locks        *session.EndpointLocks
	Connectivity Connectivity
	Clock        clock.Clock
}

// NewTransport creates a transport with default HTTP client and lock set.
func NewTransport(baseURL, secret string, sessions *session.Manager, clk clock.Clock) *Transport {
	return &Transport{
		BaseURL:      baseURL,
		Secret:       secret,
		HTTPClient:   &http.Client{},
		Sessions:     sessions,
		Locks:        session.NewEndpointLocks(),
		Connectivity: AlwaysOnline{},
		Clock:        clock.OrSystem(clk),
	}
}

// signed is a request ready to send: body, timestamp and signature fixed.
type signed struct {
	method    string
	path      string
	body      []byte
	cred      session.Credential
	timestamp string
	signature string
}

// Do sends an authenticated request and decodes the JSON response into out.
//
// On 401 the credential is refreshed once and the request is re-signed with
// the original timestamp. A second 401 is returned as KindAuth.
func (t *Transport) Do(ctx context.Context, method, path string, body any, out any) error {
	op := "api." + path

	var payload []byte
	if body != nil {
		b, err := canonical.Marshal(body)
		if err != nil {
			return fault.New(fault.KindValidation, op, err)
		}
		payload = b
	}

	if t.Connectivity != nil && !t.Connectivity.Online(ctx) {
		return fault.New(fault.KindOffline, op, fault.ErrOffline)
	}

	cred, err := t.Sessions.Credential(ctx)
	if err != nil {
		return err
	}

	req := signed{method: method, path: path, body: payload, cred: cred}
	if err := t.sign(ctx, &req, ""); err != nil {
		return err
	}

	status, respBody, err := t.send(ctx, req)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		slog.Info("request unauthorized, refreshing credential", "path", path)
		fresh, err := t.Sessions.Refresh(ctx)
		if err != nil {
			return err
		}
		req.cred = fresh
		if err := t.sign(ctx, &req, req.timestamp); err != nil {
			return err
		}
		status, respBody, err = t.send(ctx, req)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return fault.Errorf(fault.KindAuth, op, "unauthorized after credential refresh")
		}
	}

	if err := classifyStatus(op, status, respBody); err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fault.New(fault.KindRejected, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// sign captures the timestamp (unless reused) and signs under the endpoint lock.
func (t *Transport) sign(ctx context.Context, req *signed, timestamp string) error {
	release, err := t.Locks.Acquire(ctx, req.path)
	if err != nil {
		return fault.New(fault.KindTransient, "api."+req.path, err)
	}
	defer release()

	if timestamp == "" {
		timestamp = session.FormatTimestamp(t.Clock.Now())
	}
	req.timestamp = timestamp
	req.signature = session.Sign(session.SigningInput{
		Method:    req.method,
		Path:      req.path,
		Token:     req.cred.AccessToken,
		Body:      req.body,
		Timestamp: timestamp,
	}, t.Secret)
	return nil
}

func (t *Transport) send(ctx context.Context, req signed) (int, []byte, error) {
	op := "api." + req.path

	var reader io.Reader
	if len(req.body) > 0 {
		reader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, t.buildURL(req.path), reader)
	if err != nil {
		return 0, nil, fault.New(fault.KindValidation, op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", req.cred.AuthorizationHeader())
	httpReq.Header.Set(HeaderPartnerID, req.cred.ClientID)
	httpReq.Header.Set(HeaderTimestamp, req.timestamp)
	httpReq.Header.Set(HeaderSignature, req.signature)
	if id, err := uuid.NewV7(); err == nil {
		httpReq.Header.Set(HeaderExternalID, id.String())
	}

	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, nil, classifyNetError(op, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fault.New(fault.KindTransient, op, err)
	}
	slog.Debug("api response", "method", req.method, "path", req.path, "status", resp.StatusCode)
	return resp.StatusCode, b, nil
}

func (t *Transport) buildURL(path string) string {
	u, err := url.JoinPath(t.BaseURL, path)
	if err != nil {
		return t.BaseURL + path
	}
	return u
}

// classifyNetError maps a transport-level failure to a fault kind: dial and
// DNS failures are offline, everything else is transient.
func classifyNetError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fault.New(fault.KindTransient, op, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fault.New(fault.KindOffline, op, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fault.New(fault.KindOffline, op, err)
	}
	return fault.New(fault.KindTransient, op, err)
}

// classifyStatus maps a non-2xx HTTP status to a fault kind.
func classifyStatus(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fault.Errorf(fault.KindAuth, op, "status %d: %s", status, truncate(body))
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return fault.Errorf(fault.KindTransient, op, "status %d: %s", status, truncate(body))
	default:
		return fault.Errorf(fault.KindRejected, op, "status %d: %s", status, truncate(body))
	}
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
