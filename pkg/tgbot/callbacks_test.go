package tgbot

import (
	"context"
	"strings"
	"testing"
)

func TestRandomKeyGenerator(t *testing.T) {
	t.Parallel()

	generate := randomKeyGenerator(DefaultCallbackKeyLength)
	seen := make(map[string]struct{})
	for range 100 {
		key, err := generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(key) != DefaultCallbackKeyLength {
			t.Fatalf("key length = %d, want %d", len(key), DefaultCallbackKeyLength)
		}
		for _, char := range key {
			if !strings.ContainsRune(callbackKeyAlphabet, char) {
				t.Fatalf("key %q has %q outside the alphabet", key, char)
			}
		}
		seen[key] = struct{}{}
	}
	if len(seen) != 100 {
		t.Fatalf("unique keys = %d, want 100", len(seen))
	}
}

func TestCallbackRegistryRetriesCollisions(t *testing.T) {
	t.Parallel()

	keys := []string{"same", "same", "same", "other"}
	registry := newCallbackRegistry(func() (string, error) {
		key := keys[0]
		keys = keys[1:]
		return key, nil
	})
	noop := func(context.Context, CallbackQuery) (CallbackAnswer, error) { return CallbackAnswer{}, nil }
	first := &InlineCallback{name: "first", fn: noop}
	second := &InlineCallback{name: "second", fn: noop}

	firstKey, err := registry.keyFor(first)
	if err != nil {
		t.Fatalf("first key: %v", err)
	}
	again, err := registry.keyFor(first)
	if err != nil || again != firstKey {
		t.Fatalf("reused key = %q, %v, want %q", again, err, firstKey)
	}
	secondKey, err := registry.keyFor(second)
	if err != nil {
		t.Fatalf("second key: %v", err)
	}
	if firstKey != "same" || secondKey != "other" {
		t.Fatalf("keys = %q, %q, want same, other", firstKey, secondKey)
	}
	if got, ok := registry.resolve("other"); !ok || got != second {
		t.Fatal("other does not resolve to the second callback")
	}
	if registry.len() != 2 {
		t.Fatalf("registry len = %d, want 2", registry.len())
	}
}

func TestDecodeCallbackData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "valid", data: "0;abc", want: "abc"},
		{name: "key keeps later separators", data: "0;a;b", want: "a;b"},
		{name: "missing separator", data: "0abc", wantErr: true},
		{name: "empty key", data: "0;", wantErr: true},
		{name: "future version", data: "1;abc", wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := decodeCallbackData(testCase.data)
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != testCase.want {
				t.Fatalf("key = %q, want %q", got, testCase.want)
			}
		})
	}
	if got := encodeCallbackData("abc"); got != "0;abc" {
		t.Fatalf("encoded = %q, want 0;abc", got)
	}
}

func TestCallbackKeyLengthOption(t *testing.T) {
	t.Parallel()

	fake := newFakeTelegram(t)
	bot, _ := newTestBot(t, fake, WithCallbackKeyLength(16))
	callback := bot.Callback("short", func(context.Context, CallbackQuery) (CallbackAnswer, error) {
		return CallbackAnswer{}, nil
	})

	key, err := bot.callbacks.keyFor(callback)
	if err != nil {
		t.Fatalf("key for: %v", err)
	}
	if len(key) != 16 {
		t.Fatalf("key length = %d, want 16", len(key))
	}
}
