// Package admin provides cache administration for crashpull: status and verification of the
// on-disk cache and a Redis-backed cache of acquisition summaries for the HTTP surface.
package admin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/ethpandaops/crashpull/pkg/acquire"
	"github.com/ethpandaops/crashpull/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// SummaryRequest identifies a cached summary
type SummaryRequest struct {
	Source  string `json:"source"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Preview int    `json:"preview"`
}

// CachedSummary is a summary as stored in Redis
type CachedSummary struct {
	Request  SummaryRequest   `json:"request"`
	Summary  *acquire.Summary `json:"summary"`
	StoredAt time.Time        `json:"stored_at"`
}

// Refresh triggers
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// RefreshRecord describes the last scheduled or manual refresh
type RefreshRecord struct {
	RequestID string               `json:"request_id"`
	Trigger   string               `json:"trigger"`
	Success   bool                 `json:"success"`
	Source    string               `json:"source,omitempty"`
	Rows      int                  `json:"rows"`
	Error     string               `json:"error,omitempty"`
	At        time.Time            `json:"at"`
	Duration  acquire.JSONDuration `json:"duration"`
}

// CacheManager manages Redis-based caching of acquisition summaries
type CacheManager struct {
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
}

// NewCacheManager creates a new cache manager instance. prefix namespaces every key.
func NewCacheManager(redisClient *redis.Client, prefix string, ttl time.Duration) *CacheManager {
	if prefix == "" {
		prefix = "crashpull"
	}

	return &CacheManager{
		redisClient: redisClient,
		keyPrefix:   prefix + ":",
		ttl:         ttl,
	}
}

func (c *CacheManager) summaryKey(req SummaryRequest) string {
	h := sha256.New()
	for _, part := range []string{req.Source, req.Start, req.End, strconv.Itoa(req.Preview)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}

	return c.keyPrefix + "summary:" + hex.EncodeToString(h.Sum(nil))[:32]
}

func (c *CacheManager) refreshKey() string {
	return c.keyPrefix + "refresh:last"
}

// GetSummary retrieves a cached summary. A miss returns nil without error.
func (c *CacheManager) GetSummary(ctx context.Context, req SummaryRequest) (*CachedSummary, error) {
	data, err := c.redisClient.Get(ctx, c.summaryKey(req)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observability.RecordSummaryCacheMiss()
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached CachedSummary
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		_ = c.redisClient.Del(ctx, c.summaryKey(req)) // Drop undecodable entries
		observability.RecordSummaryCacheMiss()
		return nil, nil
	}

	observability.RecordSummaryCacheHit()

	return &cached, nil
}

// SetSummary stores a summary for the configured TTL
func (c *CacheManager) SetSummary(ctx context.Context, req SummaryRequest, summary *acquire.Summary, now time.Time) error {
	data, err := json.Marshal(CachedSummary{Request: req, Summary: summary, StoredAt: now.UTC()})
	if err != nil {
		return err
	}

	return c.redisClient.Set(ctx, c.summaryKey(req), data, c.ttl).Err()
}

// InvalidateSummaries removes every cached summary and returns how many were dropped
func (c *CacheManager) InvalidateSummaries(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := c.redisClient.Scan(ctx, cursor, c.keyPrefix+"summary:*", 100).Result()
		if err != nil {
			return removed, err
		}

		if len(keys) > 0 {
			n, err := c.redisClient.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}

			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// SetLastRefresh records the outcome of the latest refresh. It does not expire.
func (c *CacheManager) SetLastRefresh(ctx context.Context, rec RefreshRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return c.redisClient.Set(ctx, c.refreshKey(), data, 0).Err()
}

// GetLastRefresh returns the latest refresh record, or nil when none was recorded
func (c *CacheManager) GetLastRefresh(ctx context.Context) (*RefreshRecord, error) {
	data, err := c.redisClient.Get(ctx, c.refreshKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec RefreshRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}

	return &rec, nil
}
