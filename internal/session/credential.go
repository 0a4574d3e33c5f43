package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpirySkew is how long before ValidTo a credential is already treated as expired.
const ExpirySkew = 60 * time.Second

// Credential is an access token issued by the remote API.
type Credential struct {
	AccessToken string    `json:"AccessToken"`
	ClientID    string    `json:"ClientId"`
	ValidTo     time.Time `json:"ValidTo"`
}

// Expiry returns ValidTo, or the token's JWT exp claim when ValidTo is unset.
// The zero time means the expiry is unknown.
func (c Credential) Expiry() time.Time {
	if !c.ValidTo.IsZero() {
		return c.ValidTo
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(StripBearer(c.AccessToken), claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Expired reports whether the credential must be refreshed at now.
// A credential without a known expiry is always expired.
func (c Credential) Expired(now time.Time) bool {
	if c.AccessToken == "" {
		return true
	}
	exp := c.Expiry()
	if exp.IsZero() {
		return true
	}
	return now.After(exp.Add(-ExpirySkew))
}

// AuthorizationHeader returns the Authorization header value.
func (c Credential) AuthorizationHeader() string {
	if hasBearer(c.AccessToken) {
		return c.AccessToken
	}
	return "Bearer " + c.AccessToken
}

// StripBearer removes a case-insensitive "Bearer " prefix and surrounding space.
func StripBearer(token string) string {
	token = strings.TrimSpace(token)
	if hasBearer(token) {
		return strings.TrimSpace(token[len("bearer"):])
	}
	return token
}

func hasBearer(token string) bool {
	return len(token) > len("bearer ") && strings.EqualFold(token[:len("bearer ")], "bearer ")
}
