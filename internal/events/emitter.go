// Package events implements the per-object publish/subscribe primitive used by
// every domain object and by the bot itself.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tgbotkit/internal/safe"
)

// Listener handles one emitted event. args are the values passed to Emit.
type Listener func(ctx context.Context, args ...any) error

// Connection is the handle returned by On. It is only meaningful to the emitter
// that created it; other emitters ignore it.
type Connection struct {
	owner *Emitter
	id    uint64
	event string
}

// Event returns the event name the connection listens on.
func (c Connection) Event() string {
	return c.event
}

// subscription is one registered listener.
type subscription struct {
	id       uint64
	listener Listener
	once     bool
	future   *Future
}

// Emitter dispatches named events to registered listeners.
//
// Listeners run concurrently and always outside the emitter lock, so a listener may
// subscribe or unsubscribe freely.
type Emitter struct {
	name   string
	id     uuid.UUID
	logger *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	byEvent  map[string][]*subscription
	total    int
	activity func(active bool)
}

// New creates an emitter identified by name in logs.
func New(name string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Emitter{
		name:    name,
		id:      uuid.New(),
		logger:  logger,
		byEvent: make(map[string][]*subscription),
	}
}

// Name returns the emitter display name.
func (e *Emitter) Name() string {
	return e.name
}

// ID returns the per-instance identifier. Two emitters with the same name, for
// example a reclaimed and a recreated chat, have different ids.
func (e *Emitter) ID() string {
	return e.id.String()
}

// On registers a persistent listener for event.
func (e *Emitter) On(event string, listener Listener) Connection {
	if listener == nil {
		panic(fmt.Sprintf("events: nil listener for %q", event))
	}

	return e.add(event, &subscription{listener: listener})
}

// Once registers a one-shot listener and returns a future resolved with the first
// emission's arguments. listener may be nil.
func (e *Emitter) Once(event string, listener Listener) *Future {
	future := newFuture()
	future.conn = e.add(event, &subscription{listener: listener, once: true, future: future})

	return future
}

// Off removes the listener behind conn. Unknown, already removed, or foreign
// handles are ignored.
func (e *Emitter) Off(conn Connection) {
	if conn.owner != e {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.byEvent[conn.event]
	for index, sub := range subs {
		if sub.id != conn.id {
			continue
		}
		e.removeLocked(conn.event, index)
		return
	}
}

// ListenerCount returns the number of listeners registered for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.byEvent[event])
}

// HasListeners reports whether at least one listener is registered for event.
func (e *Emitter) HasListeners(event string) bool {
	return e.ListenerCount(event) > 0
}

// WatchActivity installs fn to be called with true when the emitter gains its first
// listener and with false when it loses its last one. Calls are serialized.
// If the emitter already has listeners, fn(true) is called immediately.
func (e *Emitter) WatchActivity(fn func(active bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.activity = fn
	if fn != nil && e.total > 0 {
		fn(true)
	}
}

// Emit runs every listener registered for event with args and returns how many were
// started. One-shot listeners are removed before they run. The returned emission
// completes once all listeners returned and reports the first listener error.
func (e *Emitter) Emit(ctx context.Context, event string, args ...any) (int, *Emission) {
	subs := e.snapshot(event)
	emission := &Emission{}
	for _, sub := range subs {
		sub := sub
		emission.group.Go(func() error {
			return e.invoke(ctx, event, sub, args)
		})
	}

	return len(subs), emission
}

// SafeEmit is Emit with per-listener error isolation: failures and panics are logged
// with the event name and emitter identity and never reported to the caller.
func (e *Emitter) SafeEmit(ctx context.Context, event string, args ...any) (int, *Emission) {
	subs := e.snapshot(event)
	emission := &Emission{}
	for _, sub := range subs {
		sub := sub
		emission.group.Go(func() error {
			if err := e.invoke(ctx, event, sub, args); err != nil {
				e.logger.Error("event listener failed",
					"event", event,
					"emitter", e.name,
					"emitter_id", e.id.String(),
					"error", err,
				)
			}
			return nil
		})
	}

	return len(subs), emission
}

func (e *Emitter) add(event string, sub *subscription) Connection {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	sub.id = e.nextID
	e.byEvent[event] = append(e.byEvent[event], sub)
	e.total++
	if e.total == 1 && e.activity != nil {
		e.activity(true)
	}

	return Connection{owner: e, id: sub.id, event: event}
}

// removeLocked deletes byEvent[event][index]. Caller holds e.mu.
func (e *Emitter) removeLocked(event string, index int) {
	subs := e.byEvent[event]
	copy(subs[index:], subs[index+1:])
	subs[len(subs)-1] = nil
	subs = subs[:len(subs)-1]
	if len(subs) == 0 {
		delete(e.byEvent, event)
	} else {
		e.byEvent[event] = subs
	}

	e.total--
	if e.total == 0 && e.activity != nil {
		e.activity(false)
	}
}

// snapshot copies the listeners for event and drops one-shot entries in the same
// critical section, so a one-shot listener fires at most once.
func (e *Emitter) snapshot(event string) []*subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.byEvent[event]
	if len(subs) == 0 {
		return nil
	}

	snapshot := append([]*subscription(nil), subs...)
	for index := len(subs) - 1; index >= 0; index-- {
		if subs[index].once {
			e.removeLocked(event, index)
		}
	}

	return snapshot
}

func (e *Emitter) invoke(ctx context.Context, event string, sub *subscription, args []any) error {
	err := safe.Run(fmt.Sprintf("%s %s", e.name, event), func() error {
		if sub.listener == nil {
			return nil
		}
		return sub.listener(ctx, args...)
	})
	if sub.future != nil {
		sub.future.resolve(args, err)
	}

	return err
}

// Emission tracks the listeners started by one Emit call.
type Emission struct {
	group errgroup.Group
}

// Wait blocks until every listener returned and reports the first error.
func (em *Emission) Wait() error {
	return em.group.Wait()
}
