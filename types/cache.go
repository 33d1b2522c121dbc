package types

import (
	"time"
)

type CacheEntry[V any] struct {
	Key      string    `json:"key"`
	Value    V         `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

type CacheStats struct {
	Entries  int    `json:"entries"`
	Pending  int    `json:"pending"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Shared   uint64 `json:"shared"`
	Fetches  uint64 `json:"fetches"`
	Failures uint64 `json:"failures"`
}
