package health

import (
	"context"

	"github.com/saiset-co/sai-request-cache/types"
)

type statsSource interface {
	Stats() types.CacheStats
}

type breakerSource interface {
	IsRunning() bool
	BreakerState() string
}

// CacheChecker reports the counters of a request cache. A cache never
// reports itself unhealthy.
func CacheChecker(cache statsSource) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		stats := cache.Stats()
		return types.HealthCheck{
			Status: types.StatusHealthy,
			Details: map[string]interface{}{
				"entries":  stats.Entries,
				"pending":  stats.Pending,
				"hits":     stats.Hits,
				"misses":   stats.Misses,
				"shared":   stats.Shared,
				"fetches":  stats.Fetches,
				"failures": stats.Failures,
			},
		}
	}
}

// ClientChecker is unhealthy while the client is closed or its circuit
// breaker is open.
func ClientChecker(client breakerSource) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		state := client.BreakerState()
		check := types.HealthCheck{
			Status:  types.StatusHealthy,
			Details: map[string]interface{}{"circuit_breaker": state},
		}

		switch {
		case !client.IsRunning():
			check.Status = types.StatusUnhealthy
			check.Message = "client is closed"
		case state == "open":
			check.Status = types.StatusUnhealthy
			check.Message = "circuit breaker is open"
		}

		return check
	}
}
