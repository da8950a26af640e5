package help

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tgbotkit/pkg/tgbot"
)

const helpCommandName = "help"

type replier interface {
	ReplyText(ctx context.Context, text string) (*tgbot.Message, error)
}

// commandLister is the part of *tgbot.Bot the handler needs.
type commandLister interface {
	Commands() []tgbot.Command
}

// Module replies with the command reference to /help.
type Module struct {
	commands commandLister
}

// New creates a help module.
func New() *Module {
	return &Module{}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "help"
}

// Register installs the /help command and answers unknown commands sent in
// private chats.
func (m *Module) Register(_ context.Context, bot *tgbot.Bot) error {
	m.commands = bot

	if err := bot.RegisterCommand(tgbot.Command{
		Name:        helpCommandName,
		Description: "show all available commands",
		Handler: func(ctx context.Context, message *tgbot.Message) error {
			return m.handleCommand(ctx, message)
		},
	}); err != nil {
		return err
	}

	bot.OnUnknownCommand(func(ctx context.Context, name string, message *tgbot.Message) error {
		if message.Chat().Type() != tgbot.ChatTypePrivate {
			return nil
		}
		return m.handleUnknown(ctx, name, message)
	})

	return nil
}

func (m *Module) handleCommand(ctx context.Context, message replier) error {
	if m.commands == nil {
		return fmt.Errorf("help handle command: command list not configured")
	}

	if _, err := message.ReplyText(ctx, renderHelp(m.commands.Commands())); err != nil {
		return fmt.Errorf("help send help message: %w", err)
	}

	return nil
}

// handleUnknown points the sender at /help.
func (m *Module) handleUnknown(ctx context.Context, name string, message replier) error {
	text := fmt.Sprintf("Unknown command /%s. Send /%s to list commands.", name, helpCommandName)
	if _, err := message.ReplyText(ctx, text); err != nil {
		return fmt.Errorf("help reply to unknown command: %w", err)
	}

	return nil
}

func renderHelp(commands []tgbot.Command) string {
	if len(commands) == 0 {
		return "Available commands:\n(none)"
	}

	sorted := append([]tgbot.Command(nil), commands...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	lines := make([]string, 0, len(sorted)*3+1)
	lines = append(lines, "Available commands:\n")
	for index, command := range sorted {
		if index > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "/"+strings.TrimSpace(command.Name))
		if description := strings.TrimSpace(command.Description); description != "" {
			lines = append(lines, description)
		}
	}

	return strings.Join(lines, "\n")
}

var _ tgbot.Module = (*Module)(nil)
