package usecase

import (
	"context"
	"time"

	"SentiGate/internal/domain/repository"
	"SentiGate/pkg/cache"
)

// CacheDedup is a redelivery suppression set over a shared cache backend:
// Redis in production so suppression survives restarts, the in-memory cache
// otherwise. SETNX with a TTL bounds the set; a key evicted early at worst
// lets a very late redelivery through, which downstream CAS and candle
// ordering absorb.
type CacheDedup struct {
	svc    cache.Service
	prefix string
	ttl    time.Duration
}

// NewCacheDedup creates a cache-backed dedup set with the given key TTL.
func NewCacheDedup(svc cache.Service, prefix string, ttl time.Duration) *CacheDedup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CacheDedup{svc: svc, prefix: prefix, ttl: ttl}
}

// Seen records the key and reports whether it was already present.
func (d *CacheDedup) Seen(ctx context.Context, key string) (bool, error) {
	set, err := d.svc.SetNX(ctx, d.prefix+key, 1, d.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

var _ repository.DedupSet = (*CacheDedup)(nil)
