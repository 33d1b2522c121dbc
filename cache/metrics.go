package cache

import (
	"time"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0}

func (c *RequestCache[V]) recordMetric(operation, result string, duration time.Duration) {
	c.metrics.Counter("request_cache_operations_total", map[string]string{
		"cache":     c.name,
		"operation": operation,
		"result":    result,
	}).Inc()

	if duration > 0 {
		c.metrics.Histogram("request_cache_operation_duration_seconds", durationBuckets, map[string]string{
			"cache":     c.name,
			"operation": operation,
		}).Observe(duration.Seconds())
	}
}

// recordSizeLocked must be called with c.mu held.
func (c *RequestCache[V]) recordSizeLocked() {
	labels := map[string]string{"cache": c.name}
	c.metrics.Gauge("request_cache_entries", labels).Set(float64(len(c.entries)))
	c.metrics.Gauge("request_cache_pending", labels).Set(float64(len(c.pending)))
}

func resultOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
