package tgbot

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInlineKeyboardBuilderValidation(t *testing.T) {
	t.Parallel()

	noop := &InlineCallback{name: "noop", fn: func(context.Context, CallbackQuery) (CallbackAnswer, error) {
		return CallbackAnswer{}, nil
	}}
	wide := NewInlineKeyboard().Row()
	for range MaxButtonsPerRow + 1 {
		wide.URL("x", "https://example.com")
	}

	tests := []struct {
		name    string
		builder *InlineKeyboardBuilder
	}{
		{name: "no rows", builder: NewInlineKeyboard()},
		{name: "button before row", builder: NewInlineKeyboard().URL("x", "https://example.com")},
		{name: "empty middle row", builder: NewInlineKeyboard().Row().Row().URL("x", "https://example.com")},
		{name: "empty last row", builder: NewInlineKeyboard().Row().Callback("a", noop).Row()},
		{name: "too wide", builder: wide},
		{name: "nil callback", builder: NewInlineKeyboard().Row().Callback("a", nil)},
		{name: "nil action", builder: NewInlineKeyboard().Row().Button("a", nil)},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			keyboard, err := testCase.builder.Build()
			require.ErrorIs(t, err, ErrInvalidKeyboard)
			require.Nil(t, keyboard)
		})
	}
}

func TestInlineKeyboardBuilderBuild(t *testing.T) {
	t.Parallel()

	noop := &InlineCallback{name: "noop", fn: func(context.Context, CallbackQuery) (CallbackAnswer, error) {
		return CallbackAnswer{}, nil
	}}
	builder := NewInlineKeyboard().
		Row().URL("Site", "https://example.com").CopyText("Copy", "secret").
		Row().Callback("Press", noop)

	keyboard, err := builder.Build()
	require.NoError(t, err)
	require.Len(t, keyboard.Rows, 2)
	require.Equal(t, []InlineButton{
		{Text: "Site", Action: URLAction{URL: "https://example.com"}},
		{Text: "Copy", Action: CopyTextAction{Text: "secret"}},
	}, keyboard.Rows[0])
	require.Equal(t, CallbackAction{Callback: noop}, keyboard.Rows[1][0].Action)

	builder.Row().URL("Later", "https://example.org")
	require.Len(t, keyboard.Rows, 2, "built keyboard must not alias the builder")
}

func TestReplyKeyboardBuilder(t *testing.T) {
	t.Parallel()

	keyboard, err := NewReplyKeyboard().Row().Button("a").Button("b").Row().Button("c").
		Resize().OneTime().Placeholder("pick").Build()
	require.NoError(t, err)
	require.Equal(t, &ReplyKeyboard{
		Rows:        [][]ReplyButton{{{Text: "a"}, {Text: "b"}}, {{Text: "c"}}},
		Resize:      true,
		OneTime:     true,
		Placeholder: "pick",
	}, keyboard)

	_, err = NewReplyKeyboard().Button("a").Build()
	require.ErrorIs(t, err, ErrInvalidKeyboard)
	_, err = NewReplyKeyboard().Row().Build()
	require.ErrorIs(t, err, ErrInvalidKeyboard)
}

func TestRenderInlineKeyboard(t *testing.T) {
	t.Parallel()

	fake := newFakeTelegram(t)
	bot, _ := newTestBot(t, fake)
	press := bot.Callback("press", func(context.Context, CallbackQuery) (CallbackAnswer, error) {
		return CallbackAnswer{}, nil
	})
	keyboard, err := NewInlineKeyboard().
		Row().URL("Site", "https://example.com").CopyText("Copy", "secret").
		Row().Callback("One", press).Callback("Two", press).
		Build()
	require.NoError(t, err)

	markup, err := bot.renderKeyboard(keyboard)
	require.NoError(t, err)
	encoded, err := json.Marshal(markup)
	require.NoError(t, err)

	var decoded struct {
		InlineKeyboard [][]map[string]any `json:"inline_keyboard"`
	}
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Len(t, decoded.InlineKeyboard, 2)

	first := decoded.InlineKeyboard[0]
	require.Equal(t, map[string]any{"text": "Site", "url": "https://example.com"}, first[0])
	require.Equal(t, map[string]any{"text": "Copy", "copy_text": map[string]any{"text": "secret"}}, first[1])

	second := decoded.InlineKeyboard[1]
	require.Equal(t, second[0]["callback_data"], second[1]["callback_data"], "one callback keeps one key")
	require.Len(t, second[0]["callback_data"], 2+DefaultCallbackKeyLength)
	require.Equal(t, 1, bot.callbacks.len())
}

func TestRenderOtherKeyboards(t *testing.T) {
	t.Parallel()

	fake := newFakeTelegram(t)
	bot, _ := newTestBot(t, fake)

	none, err := bot.renderKeyboard(nil)
	require.NoError(t, err)
	require.Nil(t, none)

	removed, err := bot.renderKeyboard(&RemoveKeyboard{})
	require.NoError(t, err)
	encoded, err := json.Marshal(removed)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(encoded, &fields))
	require.Equal(t, true, fields["remove_keyboard"])
}
