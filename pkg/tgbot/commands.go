package tgbot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgbotkit/internal/events"
)

const entityBotCommand = "bot_command"

// CommandFunc handles a command message.
type CommandFunc func(ctx context.Context, message *Message) error

// Command is a registered /command.
type Command struct {
	// Name is matched case-sensitively, without the leading slash.
	Name        string
	Description string
	Handler     CommandFunc
}

// RegisterCommand adds command. Names must be unique.
func (b *Bot) RegisterCommand(command Command) error {
	name := strings.TrimSpace(command.Name)
	switch {
	case name == "":
		return fmt.Errorf("register command: empty name")
	case strings.HasPrefix(name, "/"):
		return fmt.Errorf("register command %s: name must not start with /", name)
	case strings.ContainsAny(name, " @"):
		return fmt.Errorf("register command %s: name must not contain spaces or @", name)
	case command.Handler == nil:
		return fmt.Errorf("register command %s: nil handler", name)
	}
	command.Name = name

	b.commandsMu.Lock()
	defer b.commandsMu.Unlock()

	if _, exists := b.commands[name]; exists {
		return fmt.Errorf("register command %s: %w", name, ErrDuplicateCommand)
	}
	b.commands[name] = command

	return nil
}

// UnregisterCommand removes the command called name and reports whether it existed.
func (b *Bot) UnregisterCommand(name string) bool {
	b.commandsMu.Lock()
	defer b.commandsMu.Unlock()

	_, exists := b.commands[name]
	delete(b.commands, name)

	return exists
}

// Commands lists registered commands sorted by name.
func (b *Bot) Commands() []Command {
	b.commandsMu.RLock()
	defer b.commandsMu.RUnlock()

	commands := make([]Command, 0, len(b.commands))
	for _, command := range b.commands {
		commands = append(commands, command)
	}
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].Name < commands[j].Name
	})

	return commands
}

// OnCommand subscribes fn to every command seen in messages.
func (b *Bot) OnCommand(fn func(ctx context.Context, name string, message *Message) error) Connection {
	return b.emitter.On(EventCommand, events.Listener2(fn))
}

// OnUnknownCommand subscribes fn to commands without a registered handler.
func (b *Bot) OnUnknownCommand(fn func(ctx context.Context, name string, message *Message) error) Connection {
	return b.emitter.On(EventUnknownCommand, events.Listener2(fn))
}

func (b *Bot) command(name string) (Command, bool) {
	b.commandsMu.RLock()
	defer b.commandsMu.RUnlock()

	command, ok := b.commands[name]

	return command, ok
}

// extractCommands returns the names of all bot_command entities in text, without
// the slash and without an @botname suffix. Entity offsets count UTF-16 code units.
func extractCommands(text string, entities []tgbotapi.MessageEntity) []string {
	var units []uint16
	var names []string
	for _, entity := range entities {
		if entity.Type != entityBotCommand {
			continue
		}
		if units == nil {
			units = utf16.Encode([]rune(text))
		}
		if entity.Offset < 0 || entity.Length < 2 || entity.Offset+entity.Length > len(units) {
			continue
		}

		token := string(utf16.Decode(units[entity.Offset+1 : entity.Offset+entity.Length]))
		if at := strings.IndexByte(token, '@'); at >= 0 {
			token = token[:at]
		}
		if token != "" {
			names = append(names, token)
		}
	}

	return names
}
