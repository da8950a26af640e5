package events

import (
	"context"
	"sync"
)

// Future is the result of a one-shot subscription.
type Future struct {
	conn Connection
	done chan struct{}
	once sync.Once

	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Connection returns the handle of the one-shot subscription; pass it to Off to
// cancel the subscription before it fires.
func (f *Future) Connection() Connection {
	return f.conn
}

// Done is closed once the event fired.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the event fired or ctx ends. The value is nil for an emission
// without arguments, the argument itself for one, and []any for more.
// The error is the one returned by the one-shot listener, if any.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(args []any, err error) {
	f.once.Do(func() {
		switch len(args) {
		case 0:
			f.value = nil
		case 1:
			f.value = args[0]
		default:
			f.value = append([]any(nil), args...)
		}
		f.err = err
		close(f.done)
	})
}
