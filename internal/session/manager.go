package session

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/fault"
)

// Authenticator obtains a fresh credential from the remote API.
type Authenticator interface {
	Authenticate(ctx context.Context) (Credential, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context) (Credential, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// Manager caches the credential and de-duplicates refreshes.
//
// While a refresh is in flight every other caller joins it: all of them
// receive the same credential or the same error, and the Authenticator is
// called exactly once.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	auth  Authenticator
	clock clock.Clock

	group singleflight.Group

	mu   sync.RWMutex
	cred Credential
}

// NewManager creates a manager with no cached credential.
func NewManager(auth Authenticator, clk clock.Clock) *Manager {
	return &Manager{auth: auth, clock: clock.OrSystem(clk)}
}

// Credential returns the cached credential, refreshing it when missing or expired.
func (m *Manager) Credential(ctx context.Context) (Credential, error) {
	cred := m.cached()
	if !cred.Expired(m.clock.Now()) {
		return cred, nil
	}
	return m.Refresh(ctx)
}

// Refresh obtains a new credential, joining an in-flight refresh if any.
func (m *Manager) Refresh(ctx context.Context) (Credential, error) {
	v, err, shared := m.group.Do("refresh", func() (any, error) {
		slog.Debug("refreshing credential")
		cred, err := m.auth.Authenticate(ctx)
		if err != nil {
			if fault.KindOf(err) == "" {
				err = fault.New(fault.KindAuth, "session.refresh", err)
			}
			if fault.KindOf(err) == fault.KindAuth {
				// Rejected client credentials invalidate the token they issued.
				m.invalidate()
			}
			return Credential{}, err
		}
		m.mu.Lock()
		m.cred = cred
		m.mu.Unlock()
		slog.Info("credential refreshed", "client_id", cred.ClientID, "valid_to", cred.Expiry())
		return cred, nil
	})
	if shared {
		slog.Debug("joined in-flight credential refresh")
	}
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

// invalidate drops the cached credential.
func (m *Manager) invalidate() {
	m.mu.Lock()
	m.cred = Credential{}
	m.mu.Unlock()
}

// cached returns the cached credential without refreshing.
func (m *Manager) cached() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred
}
