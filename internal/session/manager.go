// Package session owns the one live credential bundle: it decides when to
// reuse, proactively refresh, or discard it, and serializes the expensive
// portal login so it never runs more than once concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/subwatch/subwatch/internal/model"
)

// Manager guards a single session bundle. A bundle past the staleness
// threshold (model.StaleFraction of its TTL) is refreshed before hard expiry
// so downstream calls rarely observe a dead token. Concurrent callers during
// an in-flight refresh await its result instead of starting a second login.
type Manager struct {
	exchanger model.CredentialExchanger
	store     model.SessionStore
	logger    *slog.Logger

	mu       sync.Mutex
	bundle   *model.SessionBundle
	restored bool

	group singleflight.Group
}

// NewManager creates a session manager. store may be a MemoryStore when
// persistence across restarts is not wanted.
func NewManager(exchanger model.CredentialExchanger, store model.SessionStore, logger *slog.Logger) *Manager {
	return &Manager{
		exchanger: exchanger,
		store:     store,
		logger:    logger,
	}
}

// loginResult is what one singleflight login flight produced: the bundle,
// and whether it came from a fresh credential exchange or a reuse.
type loginResult struct {
	bundle *model.SessionBundle
	fresh  bool
}

// Ensure returns a valid session bundle, logging in if none exists, the
// current one is stale or expired, or force is true. All login failures are
// reported as *model.AuthError.
func (m *Manager) Ensure(ctx context.Context, force bool) (*model.SessionBundle, error) {
	if !force {
		if b := m.current(); b != nil && !b.Stale() {
			return b, nil
		}
	}

	for {
		v, err, _ := m.group.Do("login", func() (any, error) {
			// Re-check inside the flight: a caller that queued behind a
			// refresh reuses the bundle that refresh just produced.
			if b := m.current(); b != nil && !b.Stale() {
				return loginResult{bundle: b}, nil
			}
			b, err := m.login(ctx)
			if err != nil {
				return nil, err
			}
			return loginResult{bundle: b, fresh: true}, nil
		})
		if err != nil {
			var authErr *model.AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			return nil, &model.AuthError{Err: err}
		}

		res := v.(loginResult)
		if res.fresh || !force {
			return res.bundle, nil
		}
		// A forced caller joined a flight that reused an existing bundle.
		// Force means a fresh exchange: discard the reuse and go again.
		m.Invalidate()
	}
}

// Invalidate discards the current bundle, in memory and in the side-channel
// store. It implements the forced transition after a downstream 401: the
// next Ensure call re-authenticates from scratch.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.bundle = nil
	m.restored = true
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("failed to clear persisted session", "error", err)
	}
	m.logger.Info("session invalidated")
}

// current returns the in-memory bundle, restoring from the side-channel
// store on first use so a restart within the TTL window skips login.
func (m *Manager) current() *model.SessionBundle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.restored {
		m.restored = true
		b, ok, err := m.store.Load()
		switch {
		case err != nil:
			m.logger.Warn("failed to load persisted session", "error", err)
		case ok && !b.Expired():
			m.logger.Info("restored persisted session",
				"identity", b.Identity,
				"age", b.Age().Round(0).String(),
			)
			m.bundle = b
		case ok:
			m.logger.Info("persisted session expired, ignoring", "age", b.Age().Round(0).String())
		}
	}
	return m.bundle
}

// login discards the previous bundle, performs the credential exchange, and
// persists the fresh bundle. Discarding first guarantees a corrupt bundle is
// never reused after a failed refresh.
func (m *Manager) login(ctx context.Context) (*model.SessionBundle, error) {
	m.mu.Lock()
	prev := m.bundle
	m.bundle = nil
	m.restored = true
	m.mu.Unlock()

	if prev != nil {
		m.logger.Info("refreshing session",
			"age", prev.Age().Round(0).String(),
			"ttl", prev.TTL.String(),
			"expired", prev.Expired(),
		)
	}
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("failed to clear persisted session", "error", err)
	}

	b, err := m.exchanger.Login(ctx)
	if err != nil {
		return nil, fmt.Errorf("credential exchange: %w", err)
	}

	m.mu.Lock()
	m.bundle = b
	m.mu.Unlock()

	if err := m.store.Save(b); err != nil {
		// The live bundle is still usable; only restart resumption is lost.
		m.logger.Warn("failed to persist session", "error", err)
	}

	m.logger.Info("session established", "identity", b.Identity, "ttl", b.TTL.String())
	return b, nil
}
