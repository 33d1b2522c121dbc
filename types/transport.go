package types

import (
	"context"
	"time"
)

// Transport performs the network I/O behind a request cache. Values are
// passed through verbatim; callers never depend on their shape.
type Transport[V any] interface {
	Get(ctx context.Context, url string) (V, error)
	Post(ctx context.Context, url string, body interface{}) (V, error)
	Put(ctx context.Context, url string, body interface{}) (V, error)
	Delete(ctx context.Context, url string) (V, error)
}

type Response struct {
	StatusCode int
	Header     map[string]string
	Body       []byte
}

type CallOptions struct {
	Timeout time.Duration
	Retry   int
	Headers map[string]string
}
