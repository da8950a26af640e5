// Package identity keeps at most one live wrapper object per upstream entity.
//
// The store never owns the objects it hands out: entries are weak pointers, and a
// runtime cleanup drops the slot once the garbage collector reclaims the object.
// Objects that report subscription activity are pinned while they have listeners,
// so a chat someone subscribed to stays the same object even if nothing else holds it.
package identity

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"weak"

	"github.com/pkg/errors"
)

// Adapter describes how a store derives keys from and builds objects for one entity kind.
type Adapter[T any, R any] struct {
	// Kind names the entity kind in logs and metrics, for example "chat".
	Kind string
	// Key derives the entity key of a live object.
	Key func(obj *T) string
	// RawKey derives the entity key of a raw record. It must agree with Key.
	RawKey func(raw R) string
	// New builds a fresh object from a raw record.
	New func(raw R) *T
	// Merge folds a later sighting of the same entity into the live object.
	Merge func(obj *T, raw R)
}

// ActivityWatcher is implemented by objects whose liveness depends on subscriptions.
type ActivityWatcher interface {
	WatchActivity(fn func(active bool))
}

type entry[T any] struct {
	ref        weak.Pointer[T]
	generation uint64
}

type reclaimToken struct {
	key        string
	generation uint64
}

// Store is an identity cache for one entity kind.
type Store[T any, R any] struct {
	adapter Adapter[T, R]
	logger  *slog.Logger

	mu         sync.Mutex
	entries    map[string]entry[T]
	generation uint64

	pinMu  sync.Mutex
	pinned map[*T]struct{}
}

// NewStore validates adapter and creates an empty store.
func NewStore[T any, R any](adapter Adapter[T, R], logger *slog.Logger) (*Store[T, R], error) {
	if adapter.Kind == "" {
		return nil, fmt.Errorf("new identity store: missing kind")
	}
	if adapter.Key == nil || adapter.RawKey == nil || adapter.New == nil || adapter.Merge == nil {
		return nil, fmt.Errorf("new identity store %s: adapter functions are required", adapter.Kind)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store[T, R]{
		adapter: adapter,
		logger:  logger.With("store", adapter.Kind),
		entries: make(map[string]entry[T]),
		pinned:  make(map[*T]struct{}),
	}, nil
}

// Kind returns the entity kind of the store.
func (s *Store[T, R]) Kind() string {
	return s.adapter.Kind
}

// Receive returns the unique live object for raw, merging raw into it when it
// already exists and constructing it otherwise.
func (s *Store[T, R]) Receive(raw R) *T {
	key := s.adapter.RawKey(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	if obj := s.liveLocked(key); obj != nil {
		s.adapter.Merge(obj, raw)
		return obj
	}

	obj := s.adapter.New(raw)
	s.registerLocked(key, obj)

	return obj
}

// Lookup returns the live object for key without constructing anything.
func (s *Store[T, R]) Lookup(key string) (*T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := s.liveLocked(key)

	return obj, obj != nil
}

// Register installs an object built outside Receive under its key. Registering
// over a key that still has a live object is a logic error in the caller; it is
// logged with a stack trace and the new object replaces the old one.
func (s *Store[T, R]) Register(obj *T) {
	key := s.adapter.Key(obj)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.registerLocked(key, obj)
}

// Key derives the entity key of obj.
func (s *Store[T, R]) Key(obj *T) string {
	return s.adapter.Key(obj)
}

// RawKey derives the entity key of raw.
func (s *Store[T, R]) RawKey(raw R) string {
	return s.adapter.RawKey(raw)
}

// Len returns the number of physical slots, including slots whose object was
// reclaimed but whose cleanup has not run yet.
func (s *Store[T, R]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

// Live returns the number of slots whose object is still reachable.
func (s *Store[T, R]) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := 0
	for _, slot := range s.entries {
		if slot.ref.Value() != nil {
			live++
		}
	}

	return live
}

// Pinned returns the number of objects currently kept alive by subscriptions.
func (s *Store[T, R]) Pinned() int {
	s.pinMu.Lock()
	defer s.pinMu.Unlock()

	return len(s.pinned)
}

// liveLocked resolves key to a live object. A slot whose weak pointer is empty
// is treated as absent. Caller holds s.mu.
func (s *Store[T, R]) liveLocked(key string) *T {
	slot, ok := s.entries[key]
	if !ok {
		return nil
	}

	return slot.ref.Value()
}

// registerLocked installs obj under key. Caller holds s.mu.
func (s *Store[T, R]) registerLocked(key string, obj *T) {
	if existing := s.liveLocked(key); existing != nil && existing != obj {
		trace := errors.Errorf("duplicate %s registration for key %s", s.adapter.Kind, key)
		s.logger.Warn("identity store registered a live key as new",
			"key", key,
			"trace", fmt.Sprintf("%+v", trace),
		)
	}

	s.generation++
	generation := s.generation
	s.entries[key] = entry[T]{ref: weak.Make(obj), generation: generation}
	runtime.AddCleanup(obj, s.reclaim, reclaimToken{key: key, generation: generation})

	if watcher, ok := any(obj).(ActivityWatcher); ok {
		watcher.WatchActivity(func(active bool) {
			s.setPinned(obj, active)
		})
	}
}

// reclaim runs after the object registered under token was collected. A newer
// object under the same key has a different generation and is left alone.
func (s *Store[T, R]) reclaim(token reclaimToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.entries[token.key]
	if !ok || slot.generation != token.generation {
		return
	}
	delete(s.entries, token.key)
}

func (s *Store[T, R]) setPinned(obj *T, active bool) {
	s.pinMu.Lock()
	defer s.pinMu.Unlock()

	if active {
		s.pinned[obj] = struct{}{}
		return
	}
	delete(s.pinned, obj)
}
