package cache

import "time"

// FreshnessThreshold is the maximum age of a cache before it must be refreshed
const FreshnessThreshold = 7 * 24 * time.Hour

// NeedsRefresh reports whether the cache described by meta must be refreshed at now.
// A missing metadata record always needs a refresh.
func NeedsRefresh(meta *Metadata, now time.Time) bool {
	if meta == nil {
		return true
	}

	return now.Sub(meta.CacheTimestamp) > FreshnessThreshold
}

// Age returns how old the cache is at now
func Age(meta *Metadata, now time.Time) time.Duration {
	if meta == nil {
		return 0
	}

	return now.Sub(meta.CacheTimestamp)
}
