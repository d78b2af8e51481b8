// Package credential resolves and caches the upstream bearer credential for
// each caller session. Handlers receive a Provider by injection and never
// read ambient session state.
package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Credential is an upstream bearer token together with its expiry instant.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Usable reports whether the credential carries a token whose remaining
// lifetime at now exceeds the refresh skew. A credential with no token is
// treated identically to an expired one.
func (c Credential) Usable(now time.Time, skew time.Duration) bool {
	if strings.TrimSpace(c.Token) == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.Sub(now) > skew
}

// Source produces a fresh credential for a caller session key.
type Source interface {
	Session(ctx context.Context, sessionKey string) (Credential, error)
}

var errEmptyToken = errors.New("session provider returned an empty token")

// Provider caches credentials per caller session and refreshes them through
// its Source before they expire. Concurrent refreshes for the same session
// collapse into a single source call.
type Provider struct {
	source Source
	skew   time.Duration
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[string]Credential

	group singleflight.Group
	now   func() time.Time
}

// NewProvider builds a Provider around source. skew is how long before
// expiry a cached credential is refreshed proactively; ttl is the assumed
// lifetime when the source reports none.
func NewProvider(source Source, skew, ttl time.Duration) *Provider {
	return &Provider{
		source: source,
		skew:   skew,
		ttl:    ttl,
		cache:  make(map[string]Credential),
		now:    time.Now,
	}
}

// Resolve returns the bearer token for the caller session. A cached token
// outside the skew window is returned immediately; otherwise the source is
// asked for a fresh session and the cache entry is recomputed. The second
// return is false when no credential could be resolved; source errors are
// logged here and never propagated, so callers treat false purely as
// "unauthenticated".
func (p *Provider) Resolve(ctx context.Context, sessionKey string) (string, bool) {
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return "", false
	}

	now := p.now()
	p.mu.RLock()
	cred, ok := p.cache[key]
	p.mu.RUnlock()
	if ok && cred.Usable(now, p.skew) {
		return cred.Token, true
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		// Recheck under the flight so followers of a just-finished refresh
		// do not hit the source again.
		p.mu.RLock()
		cached, exists := p.cache[key]
		p.mu.RUnlock()
		if exists && cached.Usable(p.now(), p.skew) {
			return cached, nil
		}

		fresh, sessionErr := p.source.Session(ctx, key)
		if sessionErr != nil {
			return Credential{}, sessionErr
		}
		if strings.TrimSpace(fresh.Token) == "" {
			return Credential{}, errEmptyToken
		}
		if fresh.ExpiresAt.IsZero() {
			fresh.ExpiresAt = p.now().Add(p.ttl)
		}

		p.mu.Lock()
		p.cache[key] = fresh
		p.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		log.Debugf("credential resolve failed for session: %v", err)
		return "", false
	}

	resolved, ok := v.(Credential)
	if !ok || strings.TrimSpace(resolved.Token) == "" {
		return "", false
	}
	return resolved.Token, true
}

// Invalidate drops the cached credential for a session so the next Resolve
// goes back to the source.
func (p *Provider) Invalidate(sessionKey string) {
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return
	}
	p.mu.Lock()
	delete(p.cache, key)
	p.mu.Unlock()
}
