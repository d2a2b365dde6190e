// Package cache provides per-tenant dashboard report caching so repeat
// dashboard loads do not re-run the analytics engine.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tmajkow/coursepulse/internal/analytics"
)

// keyPrefix namespaces report keys in a shared redis instance.
const keyPrefix = "coursepulse:report:"

// ReportCache stores the most recent dashboard report per company.
type ReportCache interface {
	// Get returns the cached report for a company. The second return
	// is false on a miss.
	Get(ctx context.Context, companyID string) (*analytics.DashboardReport, bool, error)

	// Set stores a report for a company, replacing any previous one.
	Set(ctx context.Context, companyID string, report *analytics.DashboardReport) error

	// Invalidate drops the cached report for a company.
	Invalidate(ctx context.Context, companyID string) error
}

// InMemoryReportCache implements ReportCache with in-process storage.
// Used for testing and development. Entries expire lazily on Get.
type InMemoryReportCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]inMemoryEntry
}

type inMemoryEntry struct {
	report    *analytics.DashboardReport
	expiresAt time.Time
}

// NewInMemoryReportCache creates an in-memory report cache.
// A zero or negative TTL means entries never expire.
func NewInMemoryReportCache(ttl time.Duration) *InMemoryReportCache {
	return &InMemoryReportCache{
		ttl:     ttl,
		entries: make(map[string]inMemoryEntry),
	}
}

// Get returns the cached report for a company.
func (c *InMemoryReportCache) Get(_ context.Context, companyID string) (*analytics.DashboardReport, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[companyID]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, companyID)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.report, true, nil
}

// Set stores a report for a company.
func (c *InMemoryReportCache) Set(_ context.Context, companyID string, report *analytics.DashboardReport) error {
	entry := inMemoryEntry{report: report}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[companyID] = entry
	c.mu.Unlock()
	return nil
}

// Invalidate drops the cached report for a company.
func (c *InMemoryReportCache) Invalidate(_ context.Context, companyID string) error {
	c.mu.Lock()
	delete(c.entries, companyID)
	c.mu.Unlock()
	return nil
}

// RedisReportCache implements ReportCache on redis with CBOR-encoded
// values. CBOR keeps hot dashboard payloads roughly a third smaller
// than JSON without losing the time fields.
type RedisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReportCache creates a redis-backed report cache.
func NewRedisReportCache(client *redis.Client, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns the cached report for a company.
func (c *RedisReportCache) Get(ctx context.Context, companyID string) (*analytics.DashboardReport, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+companyID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cached report: %w", err)
	}

	var report analytics.DashboardReport
	if err := cbor.Unmarshal(data, &report); err != nil {
		// A corrupt entry is treated as a miss; the caller recomputes
		// and overwrites it.
		return nil, false, nil
	}
	return &report, true, nil
}

// Set stores a report for a company.
func (c *RedisReportCache) Set(ctx context.Context, companyID string, report *analytics.DashboardReport) error {
	data, err := cbor.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+companyID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache report: %w", err)
	}
	return nil
}

// Invalidate drops the cached report for a company.
func (c *RedisReportCache) Invalidate(ctx context.Context, companyID string) error {
	if err := c.client.Del(ctx, keyPrefix+companyID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached report: %w", err)
	}
	return nil
}
