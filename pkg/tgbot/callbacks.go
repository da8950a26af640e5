package tgbot

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
)

const (
	// DefaultCallbackKeyLength is the length of generated callback keys.
	DefaultCallbackKeyLength = 64

	callbackKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-0123456789"
	callbackDataVersion = "0"
)

// CallbackAnswer is shown to the user who pressed a callback button. The zero value
// acknowledges the press silently.
type CallbackAnswer struct {
	Text  string
	Alert bool
}

// AnswerText is a toast notification with text.
func AnswerText(text string) CallbackAnswer {
	return CallbackAnswer{Text: text}
}

// AnswerAlert is a modal alert with text.
func AnswerAlert(text string) CallbackAnswer {
	return CallbackAnswer{Text: text, Alert: true}
}

// CallbackQuery is one press of a callback button.
type CallbackQuery struct {
	ID string
	// From is the user who pressed the button.
	From *User
	// Message is the message carrying the keyboard. Nil for inline-mode messages.
	Message *Message
	// Chat is the chat of Message, nil when Message is.
	Chat *Chat
}

// CallbackFunc handles a button press.
type CallbackFunc func(ctx context.Context, query CallbackQuery) (CallbackAnswer, error)

// InlineCallback is a callback handle placed on keyboard buttons. Reusing a handle
// across keyboards reuses its key.
type InlineCallback struct {
	name string
	fn   CallbackFunc
}

// Callback creates a handle for fn. name is only used in logs.
func (b *Bot) Callback(name string, fn CallbackFunc) *InlineCallback {
	if fn == nil {
		panic("tgbot: nil callback func")
	}

	return &InlineCallback{name: name, fn: fn}
}

// callbackRegistry maps random keys to callback handles and back.
type callbackRegistry struct {
	generate func() (string, error)

	mu         sync.Mutex
	byKey      map[string]*InlineCallback
	byCallback map[*InlineCallback]string
}

func newCallbackRegistry(generate func() (string, error)) *callbackRegistry {
	return &callbackRegistry{
		generate:   generate,
		byKey:      make(map[string]*InlineCallback),
		byCallback: make(map[*InlineCallback]string),
	}
}

// keyFor returns the key of callback, generating a fresh unused one on first use.
func (r *callbackRegistry) keyFor(callback *InlineCallback) (string, error) {
	if callback == nil {
		return "", fmt.Errorf("%w: nil callback", ErrInvalidKeyboard)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if key, ok := r.byCallback[callback]; ok {
		return key, nil
	}

	for {
		key, err := r.generate()
		if err != nil {
			return "", fmt.Errorf("generate callback key: %w", err)
		}
		if _, taken := r.byKey[key]; taken {
			continue
		}
		r.byKey[key] = callback
		r.byCallback[callback] = key
		return key, nil
	}
}

func (r *callbackRegistry) resolve(key string) (*InlineCallback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	callback, ok := r.byKey[key]

	return callback, ok
}

func (r *callbackRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.byKey)
}

// randomKeyGenerator draws length characters uniformly from callbackKeyAlphabet.
func randomKeyGenerator(length int) func() (string, error) {
	return func() (string, error) {
		raw := make([]byte, length)
		if _, err := rand.Read(raw); err != nil {
			return "", err
		}
		for index, value := range raw {
			raw[index] = callbackKeyAlphabet[int(value)%len(callbackKeyAlphabet)]
		}
		return string(raw), nil
	}
}

func encodeCallbackData(key string) string {
	return callbackDataVersion + ";" + key
}

func decodeCallbackData(data string) (string, error) {
	version, key, ok := strings.Cut(data, ";")
	if !ok || key == "" {
		return "", fmt.Errorf("malformed callback data %q", data)
	}
	if version != callbackDataVersion {
		return "", fmt.Errorf("unsupported callback data version %q", version)
	}

	return key, nil
}
