package client

import (
	"context"

	"github.com/saiset-co/sai-request-cache/types"
	"github.com/saiset-co/sai-request-cache/utils"
)

// JSONTransport decodes response bodies of a raw transport into V. Errors
// from the raw transport are returned unchanged.
type JSONTransport[V any] struct {
	raw types.Transport[*types.Response]
}

func NewJSONTransport[V any](raw types.Transport[*types.Response]) *JSONTransport[V] {
	return &JSONTransport[V]{raw: raw}
}

func (t *JSONTransport[V]) Get(ctx context.Context, url string) (V, error) {
	return decode[V](t.raw.Get(ctx, url))
}

func (t *JSONTransport[V]) Post(ctx context.Context, url string, body interface{}) (V, error) {
	return decode[V](t.raw.Post(ctx, url, body))
}

func (t *JSONTransport[V]) Put(ctx context.Context, url string, body interface{}) (V, error) {
	return decode[V](t.raw.Put(ctx, url, body))
}

func (t *JSONTransport[V]) Delete(ctx context.Context, url string) (V, error) {
	return decode[V](t.raw.Delete(ctx, url))
}

func decode[V any](resp *types.Response, err error) (V, error) {
	if err != nil || resp == nil {
		var zero V
		return zero, err
	}
	return utils.Decode[V](resp.Body)
}
