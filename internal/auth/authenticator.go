package auth

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/config"
)

// KeyStore resolves an API key to the name of its owner; "" means unknown.
type KeyStore interface {
	GetAPIKey(ctx context.Context, apiKey string) (string, error)
}

type cacheEntry struct {
	owner     string
	expiresAt time.Time
}

type Authenticator struct {
	localCache sync.Map
	keys       KeyStore
	ttl        time.Duration
	staticKeys map[string]bool
	log        logrus.FieldLogger
}

func NewAuthenticator(cfg *config.Config, keys KeyStore, log logrus.FieldLogger) *Authenticator {
	staticKeys := make(map[string]bool, len(cfg.ValidAPIKeys))
	for _, k := range cfg.ValidAPIKeys {
		if k != "" {
			staticKeys[k] = true
		}
	}

	return &Authenticator{
		keys:       keys,
		ttl:        time.Duration(cfg.AuthCacheTTLSeconds) * time.Second,
		staticKeys: staticKeys,
		log:        log.WithField("component", "auth"),
	}
}

// Validate returns the key owner and whether the key is accepted. Static
// keys are owned by "static".
func (a *Authenticator) Validate(ctx context.Context, apiKey string) (string, bool) {
	if apiKey == "" {
		return "", false
	}

	// Level 0: static config keys
	if a.staticKeys[apiKey] {
		return "static", true
	}

	// Level 1: in-memory cache
	if raw, ok := a.localCache.Load(apiKey); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.owner, true
		}
		a.localCache.Delete(apiKey)
	}

	if a.keys == nil {
		return "", false
	}

	// Level 2: Redis lookup
	owner, err := a.keys.GetAPIKey(ctx, apiKey)
	if err != nil {
		a.log.WithError(err).Warn("api key lookup failed")
		return "", false
	}
	if owner == "" {
		return "", false
	}

	a.localCache.Store(apiKey, cacheEntry{
		owner:     owner,
		expiresAt: time.Now().Add(a.ttl),
	})

	return owner, true
}
