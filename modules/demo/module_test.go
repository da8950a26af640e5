package demo

import (
	"context"
	"sync"
	"testing"

	"tgbotkit/pkg/tgbot"
)

func TestModuleRegister(t *testing.T) {
	bot, err := tgbot.New("123:abc")
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	module := New()
	if err := bot.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module: %v", err)
	}

	commands := bot.Commands()
	if len(commands) != 1 || commands[0].Name != counterCommandName {
		t.Fatalf("commands = %+v, want counter", commands)
	}

	keyboard, err := module.keyboard(3)
	if err != nil {
		t.Fatalf("keyboard: %v", err)
	}
	if len(keyboard.Rows) != 2 || len(keyboard.Rows[0]) != 2 {
		t.Fatalf("rows = %+v", keyboard.Rows)
	}
	if got := keyboard.Rows[1][0].Action; got != (tgbot.CopyTextAction{Text: "3"}) {
		t.Fatalf("copy action = %#v", got)
	}
	if got := keyboard.Rows[0][1].Action; got != (tgbot.CallbackAction{Callback: module.increment}) {
		t.Fatalf("increment action = %#v", got)
	}
}

func TestKeyboardBeforeRegisterFails(t *testing.T) {
	if _, err := New().keyboard(0); err == nil {
		t.Fatal("expected error without registered callbacks")
	}
}

func TestPressWithoutMessage(t *testing.T) {
	module := New()

	answer, err := module.press(context.Background(), tgbot.CallbackQuery{ID: "q"}, 1)
	if err != nil {
		t.Fatalf("press: %v", err)
	}
	if answer.Text == "" || answer.Alert {
		t.Fatalf("answer = %+v, want a toast", answer)
	}
	if module.presses != 0 {
		t.Fatalf("presses = %d, want 0", module.presses)
	}
}

func TestBumpIsPerKeyAndConcurrent(t *testing.T) {
	module := New()

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			module.bump("a", 1)
		})
	}
	wg.Wait()
	module.bump("b", -1)

	if got := module.bump("a", 0); got != 50 {
		t.Fatalf("counter a = %d, want 50", got)
	}
	if got := module.bump("b", 0); got != -1 {
		t.Fatalf("counter b = %d, want -1", got)
	}
	if renderCounter(-1) != "Counter: -1" {
		t.Fatalf("render = %q", renderCounter(-1))
	}
}
