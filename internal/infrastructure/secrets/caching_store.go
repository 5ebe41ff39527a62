package secrets

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// CachingStore fronts another Store with a short-lived in-process cache for Get.
// Writes and disables evict the name before returning.
type CachingStore struct {
	next  Store
	cache *gocache.Cache
}

// NewCachingStore wraps next. A non-positive ttl disables caching.
func NewCachingStore(next Store, ttl time.Duration) Store {
	if ttl <= 0 {
		return next
	}
	return &CachingStore{next: next, cache: gocache.New(ttl, 2*ttl)}
}

func (c *CachingStore) Put(ctx context.Context, name, value string) error {
	c.cache.Delete(name)
	return c.next.Put(ctx, name, value)
}

func (c *CachingStore) Get(ctx context.Context, name string) (string, error) {
	if v, ok := c.cache.Get(name); ok {
		return v.(string), nil
	}
	value, err := c.next.Get(ctx, name)
	if err != nil {
		return "", err
	}
	c.cache.SetDefault(name, value)
	return value, nil
}

func (c *CachingStore) Disable(ctx context.Context, name string) error {
	c.cache.Delete(name)
	return c.next.Disable(ctx, name)
}

func (c *CachingStore) List(ctx context.Context) ([]SecretInfo, error) {
	return c.next.List(ctx)
}

// NewFromConfig builds the store selected by configuration.
func NewFromConfig(cfg *config.Config, log logger.Logger) (Store, error) {
	var base Store
	switch cfg.Secrets.Backend {
	case "vault":
		vs, err := NewVaultStore(&cfg.Vault, log)
		if err != nil {
			return nil, err
		}
		base = vs
	default:
		log.Warn(context.Background(), "Using in-memory secret store; credentials will not survive a restart")
		base = NewMemoryStore()
	}
	return NewCachingStore(base, time.Duration(cfg.Secrets.CacheTTL)*time.Second), nil
}
