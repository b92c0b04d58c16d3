// Package identity resolves "who is asking": a durable anonymous device
// token before login, an authenticated account id after.
package identity

import (
	"fmt"
	"log/slog"
	"sync"

	"duit/internal/core"

	"github.com/google/uuid"
)

// TokenKey is the key the anonymous device token is stored under.
const TokenKey = "device_token"

// Store is the durable key-value storage the resolver persists the device
// token in. Get returns "" with a nil error when the key is absent.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Resolver produces a stable identity for a session. Before an account is
// attached it generates an anonymous token once and reuses it; afterwards it
// resolves to the account while retaining the token so migration can still
// reference it.
type Resolver struct {
	mu        sync.Mutex
	store     Store
	accountID string
	token     string
	persisted bool
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the current owner. Storage failure on first read is soft:
// the error is returned, nothing is cached, and the next call retries.
func (r *Resolver) Resolve() (core.Owner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.accountID != "" {
		return core.AccountOwner(r.accountID), nil
	}

	if err := r.ensureToken(); err != nil {
		return core.Owner{}, err
	}
	return core.AnonymousOwner(r.token), nil
}

// SetAccount attaches the authenticated account id supplied by the auth
// provider. The device token is kept for migration, not discarded.
func (r *Resolver) SetAccount(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accountID = id
}

// ClearAccount drops the authenticated identity, e.g. on logout. Resolution
// falls back to the anonymous token.
func (r *Resolver) ClearAccount() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accountID = ""
}

// DeviceToken returns the anonymous token if one has been established,
// generating it on first use like Resolve does. Callers use it to drive
// ownership migration after login.
func (r *Resolver) DeviceToken() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureToken(); err != nil {
		return "", err
	}
	return r.token, nil
}

// ensureToken loads or generates the device token. Requires r.mu held.
// A generated token that could not be persisted is kept in memory and the
// write retried on the next call, so one storage outage never produces a
// second token.
func (r *Resolver) ensureToken() error {
	if r.token != "" {
		if !r.persisted {
			if err := r.store.Set(TokenKey, r.token); err == nil {
				r.persisted = true
			}
		}
		return nil
	}

	stored, err := r.store.Get(TokenKey)
	if err != nil {
		return fmt.Errorf("read device token: %w", err)
	}
	if stored != "" {
		r.token = stored
		r.persisted = true
		return nil
	}

	r.token = uuid.NewString()
	if err := r.store.Set(TokenKey, r.token); err != nil {
		slog.Warn("Device token not persisted, keeping in memory", "error", err)
		return nil
	}
	r.persisted = true
	return nil
}
