package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// localLimiter keeps one token bucket per destination. Buckets idle for a
// cleanup period are swept; when MaxKeys buckets exist the least recently
// used one makes room for a new destination.
type localLimiter struct {
	mu        sync.Mutex
	config    Config
	buckets   map[string]*bucket
	nextSweep time.Time
	rejected  int64
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
	rejected int64
}

// NewLocalLimiter creates an in-memory limiter
func NewLocalLimiter(config Config) (KeyedLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &localLimiter{
		config:    config,
		buckets:   make(map[string]*bucket),
		nextSweep: time.Now().Add(config.CleanupPeriod),
	}, nil
}

// TryAcquireForKey takes one token from the bucket of destination
func (rl *localLimiter) TryAcquireForKey(destination string) bool {
	if !rl.config.Enabled {
		return true
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.bucketLocked(destination, now)
	if b.limiter.AllowN(now, 1) {
		return true
	}
	b.rejected++
	rl.rejected++
	return false
}

func (rl *localLimiter) bucketLocked(destination string, now time.Time) *bucket {
	if now.After(rl.nextSweep) {
		rl.sweepLocked(now)
	}

	b, ok := rl.buckets[destination]
	if !ok {
		if len(rl.buckets) >= rl.config.MaxKeys {
			rl.evictOldestLocked()
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)}
		rl.buckets[destination] = b
	}
	b.lastUsed = now
	return b
}

func (rl *localLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-rl.config.CleanupPeriod)
	for key, b := range rl.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
	rl.nextSweep = now.Add(rl.config.CleanupPeriod)
}

func (rl *localLimiter) evictOldestLocked() {
	var oldest string
	var oldestUsed time.Time
	for key, b := range rl.buckets {
		if oldest == "" || b.lastUsed.Before(oldestUsed) {
			oldest, oldestUsed = key, b.lastUsed
		}
	}
	delete(rl.buckets, oldest)
}

// Stats reports the limiter settings, the live buckets and how many copies
// each destination had refused
func (rl *localLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	byDestination := make(map[string]int64, len(rl.buckets))
	for key, b := range rl.buckets {
		if b.rejected > 0 {
			byDestination[key] = b.rejected
		}
	}

	return map[string]interface{}{
		"type":                    string(BackendLocal),
		"enabled":                 rl.config.Enabled,
		"requests_per_second":     rl.config.RequestsPerSecond,
		"burst_size":              rl.config.BurstSize,
		"active_keys":             len(rl.buckets),
		"max_keys":                rl.config.MaxKeys,
		"rejected":                rl.rejected,
		"rejected_by_destination": byDestination,
	}
}
