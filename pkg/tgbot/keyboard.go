package tgbot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxButtonsPerRow is the widest row Telegram renders.
const MaxButtonsPerRow = 8

// Keyboard is the markup attached to an outgoing message: *InlineKeyboard,
// *ReplyKeyboard or *RemoveKeyboard.
type Keyboard interface {
	keyboard()
}

// InlineAction is what an inline button does: URLAction, CallbackAction or CopyTextAction.
type InlineAction interface {
	inlineAction()
}

// URLAction opens a link.
type URLAction struct {
	URL string
}

// CallbackAction runs a registered callback on press.
type CallbackAction struct {
	Callback *InlineCallback
}

// CopyTextAction copies Text to the user's clipboard.
type CopyTextAction struct {
	Text string
}

func (URLAction) inlineAction()      {}
func (CallbackAction) inlineAction() {}
func (CopyTextAction) inlineAction() {}

// InlineButton is one button of an inline keyboard.
type InlineButton struct {
	Text   string
	Action InlineAction
}

// InlineKeyboard is a keyboard attached below a message.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// ReplyButton is one button of a reply keyboard. Pressing it sends Text.
type ReplyButton struct {
	Text string
}

// ReplyKeyboard replaces the user's system keyboard.
type ReplyKeyboard struct {
	Rows        [][]ReplyButton
	Resize      bool
	OneTime     bool
	Placeholder string
}

// RemoveKeyboard hides a previously sent reply keyboard.
type RemoveKeyboard struct{}

func (*InlineKeyboard) keyboard() {}
func (*ReplyKeyboard) keyboard()  {}
func (*RemoveKeyboard) keyboard() {}

// InlineKeyboardBuilder assembles an inline keyboard row by row. The first layout
// error sticks and is returned by Build.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
	err  error
}

// NewInlineKeyboard starts an inline keyboard.
func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{}
}

// Row starts a new row. The previous row must not be empty.
func (b *InlineKeyboardBuilder) Row() *InlineKeyboardBuilder {
	if b.err != nil {
		return b
	}
	if len(b.rows) > 0 && len(b.rows[len(b.rows)-1]) == 0 {
		b.err = fmt.Errorf("%w: row %d is empty", ErrInvalidKeyboard, len(b.rows)-1)
		return b
	}
	b.rows = append(b.rows, nil)

	return b
}

// URL appends a link button.
func (b *InlineKeyboardBuilder) URL(text string, url string) *InlineKeyboardBuilder {
	return b.Button(text, URLAction{URL: url})
}

// Callback appends a button running callback on press.
func (b *InlineKeyboardBuilder) Callback(text string, callback *InlineCallback) *InlineKeyboardBuilder {
	if callback == nil {
		b.fail(fmt.Errorf("%w: button %q has a nil callback", ErrInvalidKeyboard, text))
		return b
	}
	return b.Button(text, CallbackAction{Callback: callback})
}

// CopyText appends a button copying value to the clipboard.
func (b *InlineKeyboardBuilder) CopyText(text string, value string) *InlineKeyboardBuilder {
	return b.Button(text, CopyTextAction{Text: value})
}

// Button appends a button with an explicit action to the current row.
func (b *InlineKeyboardBuilder) Button(text string, action InlineAction) *InlineKeyboardBuilder {
	if b.err != nil {
		return b
	}
	if len(b.rows) == 0 {
		b.err = fmt.Errorf("%w: insert a row before button %q", ErrInvalidKeyboard, text)
		return b
	}
	if action == nil {
		b.err = fmt.Errorf("%w: inline button %q needs an action", ErrInvalidKeyboard, text)
		return b
	}

	last := len(b.rows) - 1
	b.rows[last] = append(b.rows[last], InlineButton{Text: text, Action: action})

	return b
}

// Build validates the layout and returns the keyboard.
func (b *InlineKeyboardBuilder) Build() (*InlineKeyboard, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := validateRows(len(b.rows), func(index int) int { return len(b.rows[index]) }); err != nil {
		return nil, err
	}

	rows := make([][]InlineButton, len(b.rows))
	for index, row := range b.rows {
		rows[index] = append([]InlineButton(nil), row...)
	}

	return &InlineKeyboard{Rows: rows}, nil
}

func (b *InlineKeyboardBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// ReplyKeyboardBuilder assembles a reply keyboard row by row.
type ReplyKeyboardBuilder struct {
	keyboard ReplyKeyboard
	err      error
}

// NewReplyKeyboard starts a reply keyboard.
func NewReplyKeyboard() *ReplyKeyboardBuilder {
	return &ReplyKeyboardBuilder{}
}

// Row starts a new row. The previous row must not be empty.
func (b *ReplyKeyboardBuilder) Row() *ReplyKeyboardBuilder {
	if b.err != nil {
		return b
	}
	rows := b.keyboard.Rows
	if len(rows) > 0 && len(rows[len(rows)-1]) == 0 {
		b.err = fmt.Errorf("%w: row %d is empty", ErrInvalidKeyboard, len(rows)-1)
		return b
	}
	b.keyboard.Rows = append(rows, nil)

	return b
}

// Button appends a text button to the current row.
func (b *ReplyKeyboardBuilder) Button(text string) *ReplyKeyboardBuilder {
	if b.err != nil {
		return b
	}
	if len(b.keyboard.Rows) == 0 {
		b.err = fmt.Errorf("%w: insert a row before button %q", ErrInvalidKeyboard, text)
		return b
	}

	last := len(b.keyboard.Rows) - 1
	b.keyboard.Rows[last] = append(b.keyboard.Rows[last], ReplyButton{Text: text})

	return b
}

// Resize asks clients to shrink the keyboard to fit its buttons.
func (b *ReplyKeyboardBuilder) Resize() *ReplyKeyboardBuilder {
	b.keyboard.Resize = true
	return b
}

// OneTime hides the keyboard after one press.
func (b *ReplyKeyboardBuilder) OneTime() *ReplyKeyboardBuilder {
	b.keyboard.OneTime = true
	return b
}

// Placeholder sets the input field placeholder shown with the keyboard.
func (b *ReplyKeyboardBuilder) Placeholder(text string) *ReplyKeyboardBuilder {
	b.keyboard.Placeholder = text
	return b
}

// Build validates the layout and returns the keyboard.
func (b *ReplyKeyboardBuilder) Build() (*ReplyKeyboard, error) {
	if b.err != nil {
		return nil, b.err
	}
	rows := b.keyboard.Rows
	if err := validateRows(len(rows), func(index int) int { return len(rows[index]) }); err != nil {
		return nil, err
	}

	built := b.keyboard
	built.Rows = make([][]ReplyButton, len(rows))
	for index, row := range rows {
		built.Rows[index] = append([]ReplyButton(nil), row...)
	}

	return &built, nil
}

func validateRows(count int, width func(index int) int) error {
	if count == 0 {
		return fmt.Errorf("%w: keyboard has no rows", ErrInvalidKeyboard)
	}
	for index := range count {
		switch buttons := width(index); {
		case buttons == 0:
			return fmt.Errorf("%w: row %d is empty", ErrInvalidKeyboard, index)
		case buttons > MaxButtonsPerRow:
			return fmt.Errorf("%w: row %d has %d buttons, at most %d allowed",
				ErrInvalidKeyboard, index, buttons, MaxButtonsPerRow)
		}
	}

	return nil
}

// inlineButtonMarkup extends the library button with copy_text, which it lacks.
type inlineButtonMarkup struct {
	tgbotapi.InlineKeyboardButton
	CopyText *copyTextMarkup `json:"copy_text,omitempty"`
}

type copyTextMarkup struct {
	Text string `json:"text"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineButtonMarkup `json:"inline_keyboard"`
}

// renderKeyboard turns keyboard into wire markup, registering callback buttons
// with the bot's callback registry.
func (b *Bot) renderKeyboard(keyboard Keyboard) (any, error) {
	switch typed := keyboard.(type) {
	case nil:
		return nil, nil
	case *InlineKeyboard:
		return b.renderInline(typed)
	case *ReplyKeyboard:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(typed.Rows))
		for _, row := range typed.Rows {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, button := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(button.Text))
			}
			rows = append(rows, buttons)
		}
		return tgbotapi.ReplyKeyboardMarkup{
			Keyboard:              rows,
			ResizeKeyboard:        typed.Resize,
			OneTimeKeyboard:       typed.OneTime,
			InputFieldPlaceholder: typed.Placeholder,
		}, nil
	case *RemoveKeyboard:
		return tgbotapi.NewRemoveKeyboard(false), nil
	default:
		return nil, fmt.Errorf("%w: unsupported keyboard %T", ErrInvalidKeyboard, keyboard)
	}
}

func (b *Bot) renderInline(keyboard *InlineKeyboard) (*inlineKeyboardMarkup, error) {
	if keyboard == nil {
		return nil, nil
	}

	markup := &inlineKeyboardMarkup{InlineKeyboard: make([][]inlineButtonMarkup, 0, len(keyboard.Rows))}
	for _, row := range keyboard.Rows {
		buttons := make([]inlineButtonMarkup, 0, len(row))
		for _, button := range row {
			rendered := inlineButtonMarkup{InlineKeyboardButton: tgbotapi.InlineKeyboardButton{Text: button.Text}}
			switch action := button.Action.(type) {
			case URLAction:
				url := action.URL
				rendered.URL = &url
			case CallbackAction:
				key, err := b.callbacks.keyFor(action.Callback)
				if err != nil {
					return nil, err
				}
				data := encodeCallbackData(key)
				rendered.CallbackData = &data
			case CopyTextAction:
				rendered.CopyText = &copyTextMarkup{Text: action.Text}
			default:
				return nil, fmt.Errorf("%w: button %q has unsupported action %T", ErrInvalidKeyboard, button.Text, button.Action)
			}
			buttons = append(buttons, rendered)
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}

	return markup, nil
}
