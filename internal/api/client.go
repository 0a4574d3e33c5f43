package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/model"
	"github.com/roach88/fieldsync/internal/session"
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	Location     *time.Location // civil zone of CreatedDate fields
	Connectivity Connectivity
	Clock        clock.Clock
}

// Client is the typed remote API.
type Client struct {
	transport *Transport
	validate  *validator.Validate
	probe     *StatusProbe
	loc       *time.Location
	clock     clock.Clock
}

// NewClient wires a token authenticator, a session manager and a transport.
func NewClient(cfg Config) *Client {
	clk := clock.OrSystem(cfg.Clock)
	httpClient := &http.Client{Timeout: cfg.Timeout}

	auth := &TokenAuthenticator{
		BaseURL:      cfg.BaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		HTTPClient:   httpClient,
	}
	t := NewTransport(cfg.BaseURL, cfg.ClientSecret, session.NewManager(auth, clk), clk)
	t.HTTPClient = httpClient
	if cfg.Connectivity != nil {
		t.Connectivity = cfg.Connectivity
	}
	return NewClientWithTransport(t, cfg.Location)
}

// NewClientWithTransport builds a Client over an existing transport.
func NewClientWithTransport(t *Transport, loc *time.Location) *Client {
	if loc == nil {
		loc = model.WIB
	}
	c := &Client{
		transport: t,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		loc:       loc,
		clock:     clock.OrSystem(t.Clock),
	}
	c.probe = NewStatusProbe(c.fetchStatus, c.clock, StatusCacheTTL)
	return c
}

// SaveResponse is the Data of an accepted save or update.
type SaveResponse = StatusResponse[json.RawMessage]

// Save uploads one tracking point, start/stop event or check-in.
func (c *Client) Save(ctx context.Context, req SaveRequest) fault.Result[SaveResponse] {
	return call[SaveRequest, json.RawMessage](ctx, c, http.MethodPost, PathSave, req)
}

// UpdateStatus marks a contract as checked in on the server.
func (c *Client) UpdateStatus(ctx context.Context, req UpdateCheckRequest) fault.Result[SaveResponse] {
	return call[UpdateCheckRequest, json.RawMessage](ctx, c, http.MethodPut, PathUpdateCheck, req)
}

// TrackingStatus reports whether the server has an active session for
// employee today. Answers are cached for StatusCacheTTL.
func (c *Client) TrackingStatus(ctx context.Context, employee string) fault.Result[TrackingStatus] {
	return c.probe.Status(ctx, employee)
}

// IsTrackingAuthorized reports whether background tracking may continue. It
// is false only when the server says the next action is a start, meaning no
// session is open.
func (c *Client) IsTrackingAuthorized(ctx context.Context, employee string) fault.Result[bool] {
	res := c.TrackingStatus(ctx, employee)
	if !res.IsOk() {
		return passthrough[TrackingStatus, bool](res)
	}
	return fault.Ok(res.Value.NextAction != NextActionStart)
}

// ForgetStatus drops the cached tracking status so the next query goes remote.
func (c *Client) ForgetStatus(employee string) {
	c.probe.Forget(employee)
}

func (c *Client) fetchStatus(ctx context.Context, employee string) fault.Result[TrackingStatus] {
	req := StatusRequest{EmployeeName: employee, CreatedDate: model.FormatCivil(c.clock.Now(), c.loc)}
	res := call[StatusRequest, TrackingStatus](ctx, c, http.MethodPost, PathIsStarted, req)
	if !res.IsOk() {
		return passthrough[StatusResponse[TrackingStatus], TrackingStatus](res)
	}
	return fault.Ok(res.Value.Data)
}

// GetRecords returns the server's events for employee on the date of createdDate.
func (c *Client) GetRecords(ctx context.Context, employee, createdDate string) fault.Result[[]Record] {
	req := RecordRequest{EmployeeName: employee, CreatedDate: createdDate}
	res := call[RecordRequest, []Record](ctx, c, http.MethodPost, PathGetRecord, req)
	if !res.IsOk() {
		return passthrough[StatusResponse[[]Record], []Record](res)
	}
	return fault.Ok(res.Value.Data)
}

// FetchContracts returns the employee's assigned contracts.
func (c *Client) FetchContracts(ctx context.Context, employee string) fault.Result[[]model.Contract] {
	req := ListRequest{EmployeeName: employee}
	res := call[ListRequest, []ContractDTO](ctx, c, http.MethodPost, PathListDtl, req)
	if !res.IsOk() {
		return passthrough[StatusResponse[[]ContractDTO], []model.Contract](res)
	}
	out := make([]model.Contract, 0, len(res.Value.Data))
	for _, d := range res.Value.Data {
		out = append(out, d.ToModel())
	}
	return fault.Ok(out)
}

// call validates req, sends it and requires an accepted envelope.
func call[Req any, Data any](ctx context.Context, c *Client, method, path string, req Req) fault.Result[StatusResponse[Data]] {
	op := "api." + path
	if err := c.validate.Struct(req); err != nil {
		return fault.Fail[StatusResponse[Data]](op, fault.New(fault.KindValidation, op, err))
	}

	var out StatusResponse[Data]
	if err := c.transport.Do(ctx, method, path, req, &out); err != nil {
		if fault.Is(err, fault.KindOffline) {
			return fault.Offline[StatusResponse[Data]]()
		}
		return fault.Fail[StatusResponse[Data]](op, err)
	}
	if !out.Accepted() {
		return fault.Fail[StatusResponse[Data]](op,
			fault.Errorf(fault.KindRejected, op, "status %d: %s", out.Status, out.Message))
	}
	return fault.Ok(out)
}

// passthrough converts a non-ok result to another value type.
func passthrough[From, To any](res fault.Result[From]) fault.Result[To] {
	if res.IsOffline() {
		return fault.Offline[To]()
	}
	return fault.Fail[To]("", res.Err())
}
