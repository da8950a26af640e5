package tgbot

import (
	"context"
	"errors"
	"reflect"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestExtractCommands(t *testing.T) {
	t.Parallel()

	command := func(offset, length int) tgbotapi.MessageEntity {
		return tgbotapi.MessageEntity{Type: entityBotCommand, Offset: offset, Length: length}
	}

	tests := []struct {
		name     string
		text     string
		entities []tgbotapi.MessageEntity
		want     []string
	}{
		{name: "plain", text: "/start", entities: []tgbotapi.MessageEntity{command(0, 6)}, want: []string{"start"}},
		{name: "bot suffix stripped", text: "/help@some_bot", entities: []tgbotapi.MessageEntity{command(0, 14)}, want: []string{"help"}},
		{
			name:     "utf16 offsets after astral rune",
			text:     "héllo 🎉 /start now",
			entities: []tgbotapi.MessageEntity{command(9, 6)},
			want:     []string{"start"},
		},
		{
			name: "several commands and other entities",
			text: "/a #tag /b",
			entities: []tgbotapi.MessageEntity{
				command(0, 2),
				{Type: "hashtag", Offset: 3, Length: 4},
				command(8, 2),
			},
			want: []string{"a", "b"},
		},
		{name: "out of range entity", text: "/x", entities: []tgbotapi.MessageEntity{command(0, 9)}},
		{name: "bare slash", text: "/", entities: []tgbotapi.MessageEntity{command(0, 1)}},
		{name: "only bot suffix", text: "/@bot", entities: []tgbotapi.MessageEntity{command(0, 5)}},
		{name: "no entities", text: "/start"},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := extractCommands(testCase.text, testCase.entities)
			if !reflect.DeepEqual(got, testCase.want) {
				t.Fatalf("commands = %#v, want %#v", got, testCase.want)
			}
		})
	}
}

func TestRegisterCommand(t *testing.T) {
	t.Parallel()

	fake := newFakeTelegram(t)
	bot, _ := newTestBot(t, fake)
	handler := func(context.Context, *Message) error { return nil }

	for _, command := range []Command{
		{Name: "", Handler: handler},
		{Name: "/slash", Handler: handler},
		{Name: "two words", Handler: handler},
		{Name: "at@bot", Handler: handler},
		{Name: "nohandler"},
	} {
		if err := bot.RegisterCommand(command); err == nil {
			t.Fatalf("register %q: expected error", command.Name)
		}
	}

	if err := bot.RegisterCommand(Command{Name: "start", Description: "Start", Handler: handler}); err != nil {
		t.Fatalf("register start: %v", err)
	}
	if err := bot.RegisterCommand(Command{Name: "help", Handler: handler}); err != nil {
		t.Fatalf("register help: %v", err)
	}
	if err := bot.RegisterCommand(Command{Name: "start", Handler: handler}); !errors.Is(err, ErrDuplicateCommand) {
		t.Fatalf("duplicate error = %v, want ErrDuplicateCommand", err)
	}

	commands := bot.Commands()
	if len(commands) != 2 || commands[0].Name != "help" || commands[1].Name != "start" {
		t.Fatalf("commands = %+v, want help, start", commands)
	}

	if !bot.UnregisterCommand("start") {
		t.Fatal("unregister start reported missing")
	}
	if bot.UnregisterCommand("start") {
		t.Fatal("second unregister reported present")
	}
	if _, ok := bot.command("start"); ok {
		t.Fatal("start still resolvable")
	}
}
