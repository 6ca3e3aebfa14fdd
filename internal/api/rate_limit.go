package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Reset values above this are epoch seconds; smaller ones count from now.
const epochCutoff = 1_000_000_000

// RateLimitInfo is the quota a response reported. The client never waits or
// retries on it; it is surfaced to the caller as-is.
type RateLimitInfo struct {
	Limit      *int
	Remaining  *int
	ResetAt    *time.Time
	RetryAfter time.Duration
}

// Meta returns the fields that were present, keyed for printing.
func (r *RateLimitInfo) Meta() map[string]any {
	if r == nil {
		return nil
	}
	meta := make(map[string]any, 4)
	if r.Limit != nil {
		meta["limit"] = *r.Limit
	}
	if r.Remaining != nil {
		meta["remaining"] = *r.Remaining
	}
	if r.ResetAt != nil {
		meta["reset_at"] = r.ResetAt.Format(time.RFC3339)
	}
	if r.RetryAfter > 0 {
		meta["retry_after_seconds"] = int(r.RetryAfter / time.Second)
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// parseRateLimitInfo reads the X-RateLimit-* family (or the unprefixed
// draft names) and Retry-After. Unparseable values are ignored; nil means
// nothing usable was sent.
func parseRateLimitInfo(h http.Header, now time.Time) *RateLimitInfo {
	var info RateLimitInfo
	found := false

	if n, ok := headerInt(h, "X-RateLimit-Limit", "RateLimit-Limit"); ok {
		info.Limit, found = &n, true
	}
	if n, ok := headerInt(h, "X-RateLimit-Remaining", "RateLimit-Remaining"); ok {
		info.Remaining, found = &n, true
	}
	if t, ok := resetTime(headerValue(h, "X-RateLimit-Reset", "RateLimit-Reset"), now); ok {
		info.ResetAt, found = &t, true
	}
	if t, ok := resetTime(headerValue(h, "Retry-After"), now); ok && t.After(now) {
		info.RetryAfter, found = t.Sub(now), true
	}

	if !found {
		return nil
	}
	return &info
}

func headerValue(h http.Header, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

func headerInt(h http.Header, names ...string) (int, bool) {
	v := headerValue(h, names...)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

// resetTime accepts delta seconds, epoch seconds, or an HTTP date.
func resetTime(v string, now time.Time) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs < 0 {
			return time.Time{}, false
		}
		if secs > epochCutoff {
			return time.Unix(secs, 0).UTC(), true
		}
		return now.Add(time.Duration(secs) * time.Second).UTC(), true
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
