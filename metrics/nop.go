package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-request-cache/types"
)

type NopMetrics struct {
	running atomic.Bool
}

func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) Start() error {
	n.running.Store(true)
	return nil
}

func (n *NopMetrics) Stop() error {
	n.running.Store(false)
	return nil
}

func (n *NopMetrics) IsRunning() bool { return n.running.Load() }

func (n *NopMetrics) Counter(string, map[string]string) types.Counter { return nopMetric{} }

func (n *NopMetrics) Gauge(string, map[string]string) types.Gauge { return nopMetric{} }

func (n *NopMetrics) Histogram(string, []float64, map[string]string) types.Histogram {
	return nopMetric{}
}

func (n *NopMetrics) GetMetrics() ([]byte, error) { return []byte("[]"), nil }

func (n *NopMetrics) Handler() http.Handler { return http.NotFoundHandler() }

func (n *NopMetrics) FastHTTPHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

type nopMetric struct{}

func (nopMetric) Inc()                      {}
func (nopMetric) Dec()                      {}
func (nopMetric) Add(float64)               {}
func (nopMetric) Sub(float64)               {}
func (nopMetric) Set(float64)               {}
func (nopMetric) Get() float64              { return 0 }
func (nopMetric) Observe(float64)           {}
func (nopMetric) ObserveDuration(time.Time) {}
func (nopMetric) GetCount() uint64          { return 0 }
func (nopMetric) GetSum() float64           { return 0 }
