package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-request-cache/types"
	"github.com/saiset-co/sai-request-cache/utils"
)

type product struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func newUpstream(t *testing.T, hits *atomic.Int32) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			hits.Add(1)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`[{"id":1,"name":"lamp"}]`)
		},
	}
	go func() {
		_ = server.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = server.Shutdown()
	})

	return "http://" + ln.Addr().String()
}

func writeConfig(t *testing.T, baseURL string) string {
	content := fmt.Sprintf(`
name: catalog
version: 1.0.0
logger:
  type: nop
  level: info
client:
  base_url: %s
  timeout: 2s
cache:
  name: products
  default_ttl: 1m
metrics:
  enabled: true
  type: prometheus
  listen: 127.0.0.1:0
`, baseURL)

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func startService(t *testing.T, svc *Service) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Start()
	}()

	require.Eventually(t, svc.IsRunning, 2*time.Second, 5*time.Millisecond)
	return errCh
}

func TestNewService_InvalidPath(t *testing.T) {
	_, err := NewService(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrConfigInvalidPath)

	_, err = NewService(context.Background(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestService_Lifecycle(t *testing.T) {
	var hits atomic.Int32
	svc, err := NewService(context.Background(), writeConfig(t, newUpstream(t, &hits)))
	require.NoError(t, err)

	errCh := startService(t, svc)
	assert.ErrorIs(t, svc.Start(), types.ErrServerAlreadyRunning)

	products, err := NewRequestCache[[]product](svc, "")
	require.NoError(t, err)
	assert.Equal(t, "products", products.Name())

	for i := 0; i < 3; i++ {
		items, err := products.Get(context.Background(), "/products")
		require.NoError(t, err)
		assert.Equal(t, []product{{ID: 1, Name: "lamp"}}, items)
	}
	assert.Equal(t, int32(1), hits.Load())

	raw, err := NewResponseCache(svc, "raw")
	require.NoError(t, err)
	resp, err := raw.Get(context.Background(), "/products")
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())

	metricsResp, err := http.Get("http://" + svc.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	_ = metricsResp.Body.Close()
	assert.Contains(t, string(body), "request_cache_operations_total")
	assert.Contains(t, string(body), "http_client_requests_total")

	healthResp, err := http.Get("http://" + svc.MetricsAddr() + "/health")
	require.NoError(t, err)
	body, err = io.ReadAll(healthResp.Body)
	require.NoError(t, err)
	_ = healthResp.Body.Close()
	assert.Equal(t, http.StatusOK, healthResp.StatusCode)
	report, err := utils.Decode[types.HealthReport](body)
	require.NoError(t, err)
	assert.Equal(t, types.StatusHealthy, report.Status)
	assert.Contains(t, report.Checks, "cache.products")
	assert.Contains(t, report.Checks, "cache.raw")
	assert.Contains(t, report.Checks, "client")

	require.NoError(t, svc.Stop())
	require.NoError(t, <-errCh)

	select {
	case <-svc.Done():
	default:
		t.Fatal("done channel not closed")
	}

	assert.False(t, svc.IsRunning())
	assert.False(t, svc.Client().IsRunning())
	assert.Empty(t, svc.MetricsAddr())
	assert.ErrorIs(t, svc.Stop(), types.ErrServiceIsNotRunning)
	assert.ErrorIs(t, svc.Start(), types.ErrServiceIsNotRunning)
}

func TestService_StopsWithParentContext(t *testing.T) {
	var hits atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	svc, err := NewService(ctx, writeConfig(t, newUpstream(t, &hits)))
	require.NoError(t, err)

	errCh := startService(t, svc)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.False(t, svc.IsRunning())
}

func TestService_Accessors(t *testing.T) {
	var hits atomic.Int32
	svc, err := NewService(context.Background(), writeConfig(t, newUpstream(t, &hits)))
	require.NoError(t, err)

	assert.Equal(t, "catalog", svc.Config().GetConfig().Name)
	assert.Equal(t, time.Minute, svc.Config().GetConfig().Cache.DefaultTTL)
	assert.Equal(t, "products", svc.Config().GetValue("cache.name", ""))
	assert.NotNil(t, svc.Logger())
	assert.NotNil(t, svc.Metrics())
	assert.NotNil(t, svc.Health())
	assert.Empty(t, svc.MetricsAddr())

	svc.Cancel()
}
