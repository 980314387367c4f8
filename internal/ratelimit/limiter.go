// Package ratelimit provides fixed-window request limiting with named
// buckets, backed by either an in-process counter store or Redis.
package ratelimit

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// Bucket defines one fixed-window limit.
type Bucket struct {
	Name   string
	Max    int
	Window time.Duration
}

// DefaultBucket applies to any limiter name without an explicit bucket.
var DefaultBucket = Bucket{Name: "default", Max: 60, Window: time.Minute}

// Buckets are the named limits, brute-force-sensitive endpoints tightest.
var Buckets = map[string]Bucket{
	"login":          {Name: "login", Max: 5, Window: time.Minute},
	"2fa":            {Name: "2fa", Max: 5, Window: 5 * time.Minute},
	"password-reset": {Name: "password-reset", Max: 3, Window: time.Hour},
	"oauth-token":    {Name: "oauth-token", Max: 10, Window: time.Minute},
}

// BucketFor resolves a limiter name to its bucket, falling back to the
// default limit.
func BucketFor(name string) Bucket {
	if bucket, ok := Buckets[name]; ok {
		return bucket
	}
	return DefaultBucket
}

// Key derives the counter key for one caller in one bucket. Unauthenticated
// callers share the "guest" principal, so the ip and user agent carry the
// differentiation.
func Key(bucket, ip, userAgent, userID string) string {
	if userID == "" {
		userID = "guest"
	}
	sum := sha1.Sum([]byte(strings.Join([]string{bucket, ip, userAgent, userID}, "|")))
	return hex.EncodeToString(sum[:])
}

// CounterStore is a fixed-window hit counter. Incr records one hit and
// returns the window's running count and the time until it resets.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetIn time.Duration, err error)
}
