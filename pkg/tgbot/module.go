package tgbot

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrModuleAlreadyRegistered is returned when a module name is registered twice.
var ErrModuleAlreadyRegistered = errors.New("module already registered")

// Module bundles commands, callbacks and listeners registered together.
//
// Register is called once. Handlers a module installs can run on several
// goroutines at the same time.
type Module interface {
	// Name returns a stable module identifier.
	Name() string
	// Register installs the module on bot.
	Register(ctx context.Context, bot *Bot) error
}

// RegisterModule registers module under its name. A failed Register frees the name.
func (b *Bot) RegisterModule(ctx context.Context, module Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}

	b.modulesMu.Lock()
	if _, exists := b.modules[name]; exists {
		b.modulesMu.Unlock()
		return fmt.Errorf("register module %s: %w", name, ErrModuleAlreadyRegistered)
	}
	b.modules[name] = module
	b.modulesMu.Unlock()

	if err := module.Register(ctx, b); err != nil {
		b.modulesMu.Lock()
		delete(b.modules, name)
		b.modulesMu.Unlock()
		return fmt.Errorf("register module %s: %w", name, err)
	}
	b.logger.Debug("module registered", "module", name)

	return nil
}

// Modules returns the names of registered modules, sorted.
func (b *Bot) Modules() []string {
	b.modulesMu.Lock()
	defer b.modulesMu.Unlock()

	names := make([]string, 0, len(b.modules))
	for name := range b.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
