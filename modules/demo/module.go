package demo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"tgbotkit/pkg/tgbot"
)

const counterCommandName = "counter"

// Option mutates demo module configuration.
type Option func(*Module)

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// Module posts a counter message with inline buttons that edit it in place.
type Module struct {
	logger *slog.Logger

	increment *tgbot.InlineCallback
	decrement *tgbot.InlineCallback

	mu       sync.Mutex
	counters map[string]int
	presses  int
}

// New creates the demo module.
func New(options ...Option) *Module {
	module := &Module{
		logger:   slog.Default(),
		counters: make(map[string]int),
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "demo"
}

// Register installs /counter, its button callbacks and lifecycle logging.
func (m *Module) Register(_ context.Context, bot *tgbot.Bot) error {
	m.increment = bot.Callback("demo increment", func(ctx context.Context, query tgbot.CallbackQuery) (tgbot.CallbackAnswer, error) {
		return m.press(ctx, query, 1)
	})
	m.decrement = bot.Callback("demo decrement", func(ctx context.Context, query tgbot.CallbackQuery) (tgbot.CallbackAnswer, error) {
		return m.press(ctx, query, -1)
	})

	bot.OnStart(func(ctx context.Context) error {
		m.logger.InfoContext(ctx, "demo module started", "module", m.Name())
		return nil
	})
	bot.OnShutdown(func(ctx context.Context) error {
		m.mu.Lock()
		counters, presses := len(m.counters), m.presses
		m.mu.Unlock()

		m.logger.InfoContext(ctx, "demo module shutdown", "module", m.Name(), "counters", counters, "presses", presses)
		return nil
	})

	return bot.RegisterCommand(tgbot.Command{
		Name:        counterCommandName,
		Description: "post a counter with buttons",
		Handler:     m.handleCommand,
	})
}

func (m *Module) handleCommand(ctx context.Context, message *tgbot.Message) error {
	keyboard, err := m.keyboard(0)
	if err != nil {
		return fmt.Errorf("demo build keyboard: %w", err)
	}

	_, err = message.Reply(ctx, tgbot.MessageInit{Text: renderCounter(0), Keyboard: keyboard})
	if err != nil {
		return fmt.Errorf("demo send counter: %w", err)
	}

	return nil
}

func (m *Module) press(ctx context.Context, query tgbot.CallbackQuery, delta int) (tgbot.CallbackAnswer, error) {
	if query.Message == nil {
		return tgbot.AnswerText("This counter is gone."), nil
	}

	value := m.bump(query.Message.String(), delta)
	keyboard, err := m.keyboard(value)
	if err != nil {
		return tgbot.CallbackAnswer{}, fmt.Errorf("demo build keyboard: %w", err)
	}
	if _, err := query.Message.Edit(ctx, tgbot.EditInit{Text: renderCounter(value), Keyboard: keyboard}); err != nil {
		return tgbot.CallbackAnswer{}, fmt.Errorf("demo edit counter: %w", err)
	}

	m.logger.DebugContext(ctx, "demo counter pressed", "message", query.Message.String(), "from", query.From, "value", value)

	return tgbot.AnswerText("Counter is " + strconv.Itoa(value)), nil
}

// bump adds delta to the counter of key and returns the new value.
func (m *Module) bump(key string, delta int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[key] += delta
	m.presses++

	return m.counters[key]
}

func (m *Module) keyboard(value int) (*tgbot.InlineKeyboard, error) {
	return tgbot.NewInlineKeyboard().
		Row().Callback("-1", m.decrement).Callback("+1", m.increment).
		Row().CopyText("Copy value", strconv.Itoa(value)).
		Build()
}

func renderCounter(value int) string {
	return "Counter: " + strconv.Itoa(value)
}

var _ tgbot.Module = (*Module)(nil)
