// Package longpoll drives the getUpdates loop.
package longpoll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tgbotkit/internal/botapi"
	"tgbotkit/internal/safe"
)

// DefaultTimeout is the server-side long-poll timeout.
const DefaultTimeout = 40 * time.Second

var (
	// ErrAlreadyStarted is returned by Start on a fetcher that is not idle.
	ErrAlreadyStarted = errors.New("long poll already started")
	// ErrNilHandler is returned by New when no handler is given.
	ErrNilHandler = errors.New("long poll: nil handler")
)

// State is the fetcher lifecycle state.
type State int

const (
	// StateIdle is a fetcher that was never started.
	StateIdle State = iota
	// StatePolling is a running loop.
	StatePolling
	// StateStopping is a loop asked to stop that has not exited yet.
	StateStopping
	// StateStopped is a loop that exited. It can not be restarted.
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// UpdatesAPI fetches one batch of updates.
type UpdatesAPI interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]botapi.RawUpdate, error)
}

// Handler processes one update. Handlers of a batch run concurrently.
type Handler func(ctx context.Context, update botapi.RawUpdate)

// Observer receives loop-level signals, typically a metrics collector.
type Observer interface {
	ObserveFetch(duration time.Duration, updates int)
}

// Option mutates fetcher configuration.
type Option func(*Fetcher)

// WithTimeout overrides the long-poll timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(fetcher *Fetcher) {
		if timeout > 0 {
			fetcher.timeout = timeout
		}
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(fetcher *Fetcher) {
		if logger != nil {
			fetcher.logger = logger
		}
	}
}

// WithObserver registers an observer for fetch latency and batch sizes.
func WithObserver(observer Observer) Option {
	return func(fetcher *Fetcher) {
		fetcher.observer = observer
	}
}

// Fetcher keeps exactly one getUpdates request in flight and hands every batch to
// the handler before asking for the next one.
//
// The offset is advanced before a batch is dispatched, so an update whose handler
// crashes the process is not delivered again after a restart. Updates in a batch
// with an id below the requested offset were already dispatched and are dropped
// instead of being handed to the handler a second time.
type Fetcher struct {
	api      UpdatesAPI
	handler  Handler
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer

	mu     sync.Mutex
	state  State
	offset int64
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle fetcher.
func New(api UpdatesAPI, handler Handler, options ...Option) (*Fetcher, error) {
	if api == nil {
		return nil, fmt.Errorf("long poll: nil updates api")
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	fetcher := &Fetcher{
		api:     api,
		handler: handler,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, option := range options {
		option(fetcher)
	}

	return fetcher, nil
}

// State returns the current lifecycle state.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

// Offset returns the next update id the fetcher will ask for. Zero means no
// update was received yet.
func (f *Fetcher) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.offset
}

// Start runs the loop until Stop, ctx cancellation, or a fetch failure. A stop
// or cancellation ends the loop with a nil error.
func (f *Fetcher) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateIdle {
		state := f.state
		f.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrAlreadyStarted, state)
	}
	pollCtx, cancel := context.WithCancel(ctx)
	f.state = StatePolling
	f.cancel = cancel
	f.mu.Unlock()

	defer func() {
		cancel()
		f.mu.Lock()
		f.state = StateStopped
		f.mu.Unlock()
		close(f.done)
	}()

	f.logger.Info("long poll started", "timeout", f.timeout)
	dispatchCtx := context.WithoutCancel(ctx)

	for pollCtx.Err() == nil {
		startedAt := time.Now()
		offset := f.Offset()
		updates, err := f.api.GetUpdates(pollCtx, offset, f.timeout)
		if err != nil {
			if pollCtx.Err() != nil {
				break
			}
			return fmt.Errorf("long poll fetch at offset %d: %w", offset, err)
		}
		if f.observer != nil {
			f.observer.ObserveFetch(time.Since(startedAt), len(updates))
		}

		fresh := f.advance(offset, updates)
		f.dispatch(dispatchCtx, fresh)
	}

	f.logger.Info("long poll stopped", "offset", f.Offset())

	return nil
}

// Stop asks the loop to exit and waits until it did or ctx ended. Stopping an idle
// fetcher moves it straight to StateStopped.
func (f *Fetcher) Stop(ctx context.Context) error {
	f.mu.Lock()
	switch f.state {
	case StateIdle:
		f.state = StateStopped
		f.mu.Unlock()
		close(f.done)
		return nil
	case StatePolling:
		f.state = StateStopping
		f.cancel()
	}
	f.mu.Unlock()

	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop long poll: %w", ctx.Err())
	}
}

// advance raises the offset past every update at or above the requested offset and
// returns those updates. Older ids were already consumed and are dropped.
func (f *Fetcher) advance(requested int64, updates []botapi.RawUpdate) []botapi.RawUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()

	fresh := updates[:0:0]
	for _, update := range updates {
		if requested != 0 && update.ID < requested {
			f.logger.Debug("skipping already consumed update", "update_id", update.ID, "offset", requested)
			continue
		}
		if update.ID >= f.offset {
			f.offset = update.ID + 1
		}
		fresh = append(fresh, update)
	}

	return fresh
}

func (f *Fetcher) dispatch(ctx context.Context, updates []botapi.RawUpdate) {
	var wg sync.WaitGroup
	for _, update := range updates {
		wg.Go(func() {
			err := safe.Run("long poll handler", func() error {
				f.handler(ctx, update)
				return nil
			})
			if err != nil {
				f.logger.Error("update handler failed", "update_id", update.ID, "error", err)
			}
		})
	}
	wg.Wait()
}
