package cache

import (
	"math"
	"time"
)

// NoExpiration keeps an entry fresh until it is cleared.
const NoExpiration time.Duration = math.MaxInt64

type GetOptions struct {
	// SkipCache ignores any stored entry. The fetched value still replaces it.
	SkipCache bool
	// TTL is the maximum entry age accepted by this call. Zero or negative
	// values never match a stored entry.
	TTL time.Duration
}

type GetOption func(*GetOptions)

func WithSkipCache() GetOption {
	return func(o *GetOptions) {
		o.SkipCache = true
	}
}

func WithTTL(ttl time.Duration) GetOption {
	return func(o *GetOptions) {
		o.TTL = ttl
	}
}

func (o GetOptions) fresh(storedAt, now time.Time) bool {
	if o.TTL == NoExpiration {
		return true
	}
	return o.TTL > 0 && now.Sub(storedAt) < o.TTL
}
