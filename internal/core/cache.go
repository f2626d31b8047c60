package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/target/bulkmailer/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// The data layer provides the Redis implementation.
type CacheRepository interface {
	// Set stores a value with the given TTL. A zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil when the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether a key was removed.
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}

// TemplateBodyCache stores resolved per-language template bodies in a shared cache so
// several runner processes do not each re-read the template store.
type TemplateBodyCache struct {
	cache CacheRepository
	ttl   time.Duration
}

// TemplateBodyCacheOptions bundles dependencies for NewTemplateBodyCache.
type TemplateBodyCacheOptions struct {
	Cache CacheRepository
	TTL   time.Duration
}

// DefaultTemplateCacheTTL is used when no TTL is configured.
const DefaultTemplateCacheTTL = 30 * time.Minute

// NewTemplateBodyCache creates a TemplateBodyCache. It returns nil when no cache is configured.
func NewTemplateBodyCache(opts TemplateBodyCacheOptions) *TemplateBodyCache {
	if opts.Cache == nil {
		return nil
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTemplateCacheTTL
	}
	return &TemplateBodyCache{cache: opts.Cache, ttl: ttl}
}

// Get returns the cached body or nil when absent.
func (c *TemplateBodyCache) Get(ctx context.Context, tenant model.Tenant, language string) (*model.TemplateBody, error) {
	raw, err := c.cache.Get(ctx, templateBodyKey(tenant, language))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var body model.TemplateBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode cached template body: %w", err)
	}
	return &body, nil
}

// Put stores a body for the tenant and requested language.
func (c *TemplateBodyCache) Put(ctx context.Context, tenant model.Tenant, language string, body model.TemplateBody) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode template body: %w", err)
	}
	return c.cache.Set(ctx, templateBodyKey(tenant, language), raw, c.ttl)
}

// TemplateBodyKeyPrefix prefixes every cached template body key.
const TemplateBodyKeyPrefix = "template:body:"

func templateBodyKey(tenant model.Tenant, language string) string {
	return TemplateBodyKeyPrefix + tenant.Key() + ":" + language
}
