// Package safe converts handler panics into errors at goroutine boundaries.
package safe

import (
	"fmt"
)

// Run executes fn and converts a panic into a returned error tagged with scope.
// Errors returned by fn are wrapped with the same scope.
func Run(scope string, fn func() error) (err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		err = &PanicError{Scope: scope, Value: recovered}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}

// PanicError reports a recovered panic.
type PanicError struct {
	Scope string
	Value any
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic recovered: %v", e.Scope, e.Value)
}
