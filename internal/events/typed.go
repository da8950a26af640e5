package events

import (
	"context"
	"fmt"
)

// Listener0 adapts a listener for events emitted without arguments.
func Listener0(fn func(ctx context.Context) error) Listener {
	return func(ctx context.Context, _ ...any) error {
		return fn(ctx)
	}
}

// Listener1 adapts a listener for events emitted with a single argument of type T.
func Listener1[T any](fn func(ctx context.Context, value T) error) Listener {
	return func(ctx context.Context, args ...any) error {
		if len(args) != 1 {
			return fmt.Errorf("listener: got %d arguments, want 1", len(args))
		}
		value, ok := args[0].(T)
		if !ok {
			return fmt.Errorf("listener: argument has type %T, want %T", args[0], value)
		}
		return fn(ctx, value)
	}
}

// Listener2 adapts a listener for events emitted with two arguments of types A and B.
func Listener2[A, B any](fn func(ctx context.Context, first A, second B) error) Listener {
	return func(ctx context.Context, args ...any) error {
		if len(args) != 2 {
			return fmt.Errorf("listener: got %d arguments, want 2", len(args))
		}
		first, ok := args[0].(A)
		if !ok {
			return fmt.Errorf("listener: first argument has type %T, want %T", args[0], first)
		}
		second, ok := args[1].(B)
		if !ok {
			return fmt.Errorf("listener: second argument has type %T, want %T", args[1], second)
		}
		return fn(ctx, first, second)
	}
}
