package cache

// call is a fetch in flight. val and err are written once before done is
// closed and only read after it.
type call[V any] struct {
	done    chan struct{}
	val     V
	err     error
	waiters int
}

func newCall[V any]() *call[V] {
	return &call[V]{done: make(chan struct{}), waiters: 1}
}
