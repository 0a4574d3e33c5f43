package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/roach88/fieldsync/internal/fault"
	"github.com/roach88/fieldsync/internal/session"
)

// TokenAuthenticator exchanges client credentials for an access token.
type TokenAuthenticator struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

var _ session.Authenticator = (*TokenAuthenticator)(nil)

// Authenticate posts to PathToken. The token request itself is not signed.
func (a *TokenAuthenticator) Authenticate(ctx context.Context) (session.Credential, error) {
	const op = "api.authenticate"

	body, err := json.Marshal(TokenRequest{ClientID: a.ClientID, ClientSecret: a.ClientSecret})
	if err != nil {
		return session.Credential{}, fault.New(fault.KindValidation, op, err)
	}
	endpoint, err := url.JoinPath(a.BaseURL, PathToken)
	if err != nil {
		return session.Credential{}, fault.New(fault.KindValidation, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return session.Credential{}, fault.New(fault.KindValidation, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderPartnerID, a.ClientID)

	client := a.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return session.Credential{}, classifyNetError(op, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return session.Credential{}, fault.New(fault.KindTransient, op, err)
	}
	if err := classifyStatus(op, resp.StatusCode, b); err != nil {
		return session.Credential{}, err
	}

	var out StatusResponse[TokenResponse]
	if err := json.Unmarshal(b, &out); err != nil {
		return session.Credential{}, fault.New(fault.KindAuth, op, fmt.Errorf("decode token response: %w", err))
	}
	if !out.Accepted() || out.Data.AccessToken == "" {
		return session.Credential{}, fault.Errorf(fault.KindAuth, op, "token rejected: %s", out.Message)
	}
	return session.Credential{
		AccessToken: out.Data.AccessToken,
		ClientID:    out.Data.ClientID,
		ValidTo:     parseValidTo(out.Data.ValidTo),
	}, nil
}
