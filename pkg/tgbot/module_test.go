package tgbot

import (
	"context"
	"errors"
	"testing"
)

type stubModule struct {
	name string
	err  error
	hits int
}

func (m *stubModule) Name() string {
	return m.name
}

func (m *stubModule) Register(_ context.Context, bot *Bot) error {
	m.hits++
	if m.err != nil {
		return m.err
	}
	return bot.RegisterCommand(Command{Name: m.name, Handler: func(context.Context, *Message) error { return nil }})
}

func TestRegisterModule(t *testing.T) {
	t.Parallel()

	fake := newFakeTelegram(t)
	bot, _ := newTestBot(t, fake)
	ctx := context.Background()

	if err := bot.RegisterModule(ctx, nil); err == nil {
		t.Fatal("expected error for nil module")
	}
	if err := bot.RegisterModule(ctx, &stubModule{}); err == nil {
		t.Fatal("expected error for empty name")
	}

	ping := &stubModule{name: "ping"}
	if err := bot.RegisterModule(ctx, ping); err != nil {
		t.Fatalf("register ping: %v", err)
	}
	if err := bot.RegisterModule(ctx, &stubModule{name: "ping"}); !errors.Is(err, ErrModuleAlreadyRegistered) {
		t.Fatalf("duplicate error = %v, want ErrModuleAlreadyRegistered", err)
	}

	broken := &stubModule{name: "broken", err: errors.New("boom")}
	if err := bot.RegisterModule(ctx, broken); err == nil {
		t.Fatal("expected register failure")
	}
	broken.err = nil
	if err := bot.RegisterModule(ctx, broken); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}

	if got := bot.Modules(); len(got) != 2 || got[0] != "broken" || got[1] != "ping" {
		t.Fatalf("modules = %v, want [broken ping]", got)
	}
	if ping.hits != 1 || broken.hits != 2 {
		t.Fatalf("register hits = %d, %d, want 1, 2", ping.hits, broken.hits)
	}
}
