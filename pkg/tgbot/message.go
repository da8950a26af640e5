package tgbot

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgbotkit/internal/botapi"
	"tgbotkit/internal/events"
	"tgbotkit/internal/identity"
)

// Entity marks a span of message text, for example a bot_command or a url.
// Offset and Length count UTF-16 code units.
type Entity struct {
	Type   string
	Offset int
	Length int
	URL    string
}

// MessageContent is the type-specific part of a message: TextContent,
// PhotoContent or UnknownContent.
type MessageContent interface {
	messageContent()
}

// TextContent is a text message.
type TextContent struct {
	Text     string
	Entities []Entity
}

// PhotoContent is a photo with an optional caption.
type PhotoContent struct {
	Photo           Photo
	Caption         string
	CaptionEntities []Entity
}

// UnknownContent is any content this package does not model.
type UnknownContent struct{}

func (TextContent) messageContent()    {}
func (PhotoContent) messageContent()   {}
func (UnknownContent) messageContent() {}

// MessageInit describes an outgoing message.
type MessageInit struct {
	// Text is the message text, or the caption when Photo is set.
	Text      string
	ParseMode string
	// Photo is a file_id or URL. When set, a photo message is sent.
	Photo    string
	Keyboard Keyboard
	// ReplyTo marks the message as a reply. It may belong to another chat.
	ReplyTo *Message
}

// EditInit describes an edit. Only inline keyboards can be attached to edits.
type EditInit struct {
	Text      string
	ParseMode string
	// Photo replaces the media with the given file_id or URL; Text becomes its caption.
	Photo    string
	Keyboard *InlineKeyboard
}

// Message is the unique live object for one message of one chat.
type Message struct {
	eventSource
	bot  *Bot
	id   int
	chat *Chat

	mu         sync.RWMutex
	sender     *User
	date       time.Time
	editDate   time.Time
	content    MessageContent
	replyTo    *Message
	mediaGroup *MediaGroup
	accessible bool
}

// ID returns the message id, unique within its chat.
func (m *Message) ID() int {
	return m.id
}

// Chat returns the chat the message belongs to.
func (m *Message) Chat() *Chat {
	return m.chat
}

// Sender returns the author, nil for channel posts.
func (m *Message) Sender() *User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sender
}

// Date returns when the message was sent.
func (m *Message) Date() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.date
}

// EditDate returns when the message was last edited, zero if never.
func (m *Message) EditDate() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.editDate
}

// Content returns the type-specific message data.
func (m *Message) Content() MessageContent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.content
}

// Text returns the text of a text message or the caption of a photo.
func (m *Message) Text() string {
	switch content := m.Content().(type) {
	case TextContent:
		return content.Text
	case PhotoContent:
		return content.Caption
	default:
		return ""
	}
}

// ReplyTo returns the message this one replies to, if any.
func (m *Message) ReplyTo() *Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.replyTo
}

// MediaGroup returns the album the message belongs to, if any.
func (m *Message) MediaGroup() *MediaGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.mediaGroup
}

// Accessible reports whether the message still exists as far as the bot knows.
func (m *Message) Accessible() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.accessible
}

// String returns a log-friendly name such as "Message@42_7".
func (m *Message) String() string {
	return "Message@" + messageKey(m.chat.id, m.id)
}

// OnReply subscribes fn to replies to this message.
func (m *Message) OnReply(fn func(ctx context.Context, reply *Message) error) Connection {
	return onMessage(m.eventSource, EventReply, fn)
}

// OnEdit subscribes fn to edits of this message.
func (m *Message) OnEdit(fn func(ctx context.Context) error) Connection {
	return m.emitter.On(EventEdit, events.Listener0(fn))
}

// OnDelete subscribes fn to the deletion of this message.
func (m *Message) OnDelete(fn func(ctx context.Context) error) Connection {
	return m.emitter.On(EventDelete, events.Listener0(fn))
}

// Reply sends init to the message's chat as a reply to it.
func (m *Message) Reply(ctx context.Context, init MessageInit) (*Message, error) {
	init.ReplyTo = m
	return m.chat.Send(ctx, init)
}

// ReplyText replies with plain text.
func (m *Message) ReplyText(ctx context.Context, text string) (*Message, error) {
	return m.Reply(ctx, MessageInit{Text: text})
}

// Edit changes the media, the text or caption, and the keyboard of the message, in
// that order, with one call per changed part. The message is updated in place.
func (m *Message) Edit(ctx context.Context, init EditInit) (*Message, error) {
	if !m.Accessible() {
		return nil, fmt.Errorf("edit %s: %w", m, ErrInaccessible)
	}
	if init.Text == "" && init.Photo == "" && init.Keyboard == nil {
		return nil, fmt.Errorf("edit %s: %w: nothing to change", m, ErrNotEditable)
	}
	if _, isText := m.Content().(TextContent); isText && init.Photo != "" {
		return nil, fmt.Errorf("edit %s: %w: text messages can not take a photo", m, ErrNotEditable)
	}

	markup, err := m.bot.renderInline(init.Keyboard)
	if err != nil {
		return nil, fmt.Errorf("edit %s: %w", m, err)
	}
	params := botapi.EditMessageParams{
		ChatID:    m.chat.id,
		MessageID: m.id,
		ParseMode: init.ParseMode,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	var result *tgbotapi.Message
	text := init.Text
	if init.Photo != "" {
		params.Media = &botapi.InputMediaPhoto{Type: "photo", Media: init.Photo, Caption: text, ParseMode: init.ParseMode}
		edited, err := m.bot.api.EditMessageMedia(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("edit %s media: %w", m, err)
		}
		result = &edited
		text = ""
		params.Media = nil
		params.ReplyMarkup = nil
	}

	if text != "" {
		params.Text = text
		var edited tgbotapi.Message
		if _, isPhoto := m.Content().(PhotoContent); isPhoto {
			edited, err = m.bot.api.EditMessageCaption(ctx, params)
		} else {
			edited, err = m.bot.api.EditMessageText(ctx, params)
		}
		if err != nil {
			return nil, fmt.Errorf("edit %s text: %w", m, err)
		}
		result = &edited
		params.ReplyMarkup = nil
	}

	if params.ReplyMarkup != nil {
		edited, err := m.bot.api.EditMessageReplyMarkup(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("edit %s keyboard: %w", m, err)
		}
		result = &edited
	}

	return m.bot.hydrateMessage(*result), nil
}

// Delete deletes the message, marks it inaccessible and emits EventDelete.
func (m *Message) Delete(ctx context.Context) error {
	if err := m.bot.api.DeleteMessage(ctx, m.chat.id, m.id); err != nil {
		return fmt.Errorf("delete %s: %w", m, err)
	}

	m.mu.Lock()
	m.accessible = false
	m.mu.Unlock()

	m.emit(ctx, EventDelete)

	return nil
}

func (m *Message) setReplyTo(replyTo *Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replyTo = replyTo
}

// merge folds raw into m. Chat and id never change. Fields raw does not carry
// keep their cached value.
func (m *Message) merge(raw tgbotapi.Message, sender *User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sender != nil {
		m.sender = sender
	}
	if raw.Date != 0 {
		m.date = time.Unix(int64(raw.Date), 0)
	}
	if raw.EditDate != 0 {
		m.editDate = time.Unix(int64(raw.EditDate), 0)
	}
	content := contentFromWire(raw)
	if _, unknown := content.(UnknownContent); !unknown || m.content == nil {
		m.content = content
	}
}

func contentFromWire(raw tgbotapi.Message) MessageContent {
	switch {
	case len(raw.Photo) > 0:
		return PhotoContent{
			Photo:           photoFromWire(raw.Photo),
			Caption:         raw.Caption,
			CaptionEntities: entitiesFromWire(raw.CaptionEntities),
		}
	case raw.Text != "":
		return TextContent{Text: raw.Text, Entities: entitiesFromWire(raw.Entities)}
	default:
		return UnknownContent{}
	}
}

func entitiesFromWire(raw []tgbotapi.MessageEntity) []Entity {
	if len(raw) == 0 {
		return nil
	}

	entities := make([]Entity, 0, len(raw))
	for _, entity := range raw {
		entities = append(entities, Entity{
			Type:   entity.Type,
			Offset: entity.Offset,
			Length: entity.Length,
			URL:    entity.URL,
		})
	}

	return entities
}

func messageKey(chatID int64, messageID int) string {
	return strconv.FormatInt(chatID, 10) + "_" + strconv.Itoa(messageID)
}

func (b *Bot) messageAdapter() identity.Adapter[Message, tgbotapi.Message] {
	return identity.Adapter[Message, tgbotapi.Message]{
		Kind:   "message",
		Key:    func(message *Message) string { return messageKey(message.chat.id, message.id) },
		RawKey: func(raw tgbotapi.Message) string { return messageKey(raw.Chat.ID, raw.MessageID) },
		New: func(raw tgbotapi.Message) *Message {
			chat := b.chats.Receive(*raw.Chat)
			message := &Message{
				eventSource: eventSource{emitter: events.New("Message@"+messageKey(raw.Chat.ID, raw.MessageID), b.logger)},
				bot:         b,
				id:          raw.MessageID,
				chat:        chat,
				accessible:  true,
			}
			message.merge(raw, b.receiveSender(raw))
			if raw.MediaGroupID != "" {
				group := b.groups.Receive(raw.MediaGroupID)
				message.mediaGroup = group
				group.add(message)
			}
			return message
		},
		Merge: func(message *Message, raw tgbotapi.Message) {
			b.chats.Receive(*raw.Chat)
			if inaccessibleSighting(raw) {
				return
			}
			message.merge(raw, b.receiveSender(raw))
		},
	}
}

// inaccessibleSighting reports a message Telegram no longer serves, such as an old
// message under a callback query. Only chat, message_id and date=0 are set.
func inaccessibleSighting(raw tgbotapi.Message) bool {
	return raw.Date == 0
}

func (b *Bot) receiveSender(raw tgbotapi.Message) *User {
	if raw.From == nil {
		return nil
	}

	return b.users.Receive(*raw.From)
}

// hydrateMessage resolves raw, and the message it replies to, into cached objects.
// raw.Chat must be set.
func (b *Bot) hydrateMessage(raw tgbotapi.Message) *Message {
	var replyTo *Message
	if parent := raw.ReplyToMessage; parent != nil && parent.Chat != nil {
		replyTo = b.hydrateMessage(*parent)
	}

	message := b.messages.Receive(raw)
	if replyTo != nil {
		message.setReplyTo(replyTo)
	}

	return message
}

// Message returns the cached message messageID of chat chatID.
func (b *Bot) Message(chatID int64, messageID int) (*Message, bool) {
	return b.messages.Lookup(messageKey(chatID, messageID))
}
