package pingpong

import (
	"context"
	"fmt"

	"tgbotkit/pkg/tgbot"
)

const pingCommandName = "ping"

// replier is the part of *tgbot.Message the handler needs.
type replier interface {
	ReplyText(ctx context.Context, text string) (*tgbot.Message, error)
}

// Module replies with "pong!" to /ping.
type Module struct{}

// New creates a ping-pong module.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "pingpong"
}

// Register installs the /ping command.
func (m *Module) Register(_ context.Context, bot *tgbot.Bot) error {
	return bot.RegisterCommand(tgbot.Command{
		Name:        pingCommandName,
		Description: "reply with pong!",
		Handler: func(ctx context.Context, message *tgbot.Message) error {
			return m.handleCommand(ctx, message)
		},
	})
}

func (m *Module) handleCommand(ctx context.Context, message replier) error {
	if _, err := message.ReplyText(ctx, "pong!"); err != nil {
		return fmt.Errorf("pingpong send pong message: %w", err)
	}

	return nil
}

var _ tgbot.Module = (*Module)(nil)
