package tgbot

import (
	"context"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgbotkit/internal/events"
	"tgbotkit/internal/identity"
)

// Wire chat types.
const (
	ChatTypePrivate    = "private"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
	ChatTypeChannel    = "channel"
)

// ChatDetails is the type-specific part of a chat: PrivateChat, GroupChat,
// SupergroupChat, ChannelChat or UnknownChat.
type ChatDetails interface {
	chatDetails()
}

// PrivateChat is a one-to-one chat with a user.
type PrivateChat struct {
	FirstName string
	LastName  string
	Username  string
}

// GroupChat is a basic group.
type GroupChat struct {
	Title string
}

// SupergroupChat is a supergroup. Username is empty for private supergroups.
type SupergroupChat struct {
	Title    string
	Username string
}

// ChannelChat is a broadcast channel.
type ChannelChat struct {
	Title    string
	Username string
}

// UnknownChat is a chat type this package does not model.
type UnknownChat struct {
	Type  string
	Title string
}

func (PrivateChat) chatDetails()    {}
func (GroupChat) chatDetails()      {}
func (SupergroupChat) chatDetails() {}
func (ChannelChat) chatDetails()    {}
func (UnknownChat) chatDetails()    {}

// Chat is the unique live object for one Telegram chat.
type Chat struct {
	eventSource
	bot *Bot
	id  int64

	mu      sync.RWMutex
	details ChatDetails
}

// ID returns the chat id.
func (c *Chat) ID() int64 {
	return c.id
}

// Details returns the type-specific chat data.
func (c *Chat) Details() ChatDetails {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.details
}

// Type returns the wire chat type.
func (c *Chat) Type() string {
	return chatType(c.Details())
}

// Title returns the chat title, or the user's name for private chats.
func (c *Chat) Title() string {
	switch details := c.Details().(type) {
	case PrivateChat:
		return strings.TrimSpace(details.FirstName + " " + details.LastName)
	case GroupChat:
		return details.Title
	case SupergroupChat:
		return details.Title
	case ChannelChat:
		return details.Title
	case UnknownChat:
		return details.Title
	default:
		return ""
	}
}

// String returns a log-friendly name such as "PrivateChat@42".
func (c *Chat) String() string {
	return chatObjectName(c.Details(), c.id)
}

// OnMessage subscribes fn to messages posted in this chat. While a chat has message
// listeners, its messages are not emitted on the bot.
func (c *Chat) OnMessage(fn func(ctx context.Context, message *Message) error) Connection {
	return onMessage(c.eventSource, EventMessage, fn)
}

// SendText sends a plain text message.
func (c *Chat) SendText(ctx context.Context, text string) (*Message, error) {
	return c.Send(ctx, MessageInit{Text: text})
}

// Send sends a text or photo message to the chat.
func (c *Chat) Send(ctx context.Context, init MessageInit) (*Message, error) {
	return c.bot.send(ctx, c, init)
}

func chatType(details ChatDetails) string {
	switch typed := details.(type) {
	case PrivateChat:
		return ChatTypePrivate
	case GroupChat:
		return ChatTypeGroup
	case SupergroupChat:
		return ChatTypeSupergroup
	case ChannelChat:
		return ChatTypeChannel
	case UnknownChat:
		return typed.Type
	default:
		return ""
	}
}

func chatObjectName(details ChatDetails, id int64) string {
	var kind string
	switch details.(type) {
	case PrivateChat:
		kind = "PrivateChat"
	case GroupChat:
		kind = "GroupChat"
	case SupergroupChat:
		kind = "SupergroupChat"
	case ChannelChat:
		kind = "ChannelChat"
	default:
		kind = "Chat"
	}

	return kind + "@" + strconv.FormatInt(id, 10)
}

func chatDetailsFromWire(raw tgbotapi.Chat) ChatDetails {
	switch raw.Type {
	case ChatTypePrivate:
		return PrivateChat{FirstName: raw.FirstName, LastName: raw.LastName, Username: raw.UserName}
	case ChatTypeGroup:
		return GroupChat{Title: raw.Title}
	case ChatTypeSupergroup:
		return SupergroupChat{Title: raw.Title, Username: raw.UserName}
	case ChatTypeChannel:
		return ChannelChat{Title: raw.Title, Username: raw.UserName}
	default:
		return UnknownChat{Type: raw.Type, Title: raw.Title}
	}
}

func chatKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (b *Bot) chatAdapter() identity.Adapter[Chat, tgbotapi.Chat] {
	return identity.Adapter[Chat, tgbotapi.Chat]{
		Kind:   "chat",
		Key:    func(chat *Chat) string { return chatKey(chat.id) },
		RawKey: func(raw tgbotapi.Chat) string { return chatKey(raw.ID) },
		New: func(raw tgbotapi.Chat) *Chat {
			details := chatDetailsFromWire(raw)
			return &Chat{
				eventSource: eventSource{emitter: events.New(chatObjectName(details, raw.ID), b.logger)},
				bot:         b,
				id:          raw.ID,
				details:     details,
			}
		},
		Merge: func(chat *Chat, raw tgbotapi.Chat) {
			details := chatDetailsFromWire(raw)

			chat.mu.Lock()
			previous := chat.details
			chat.details = details
			chat.mu.Unlock()

			if chatType(previous) != chatType(details) {
				b.logger.Warn("chat type changed",
					"chat_id", raw.ID,
					"from", chatType(previous),
					"to", chatType(details),
				)
			}
		},
	}
}

// Chat returns the cached chat with id.
func (b *Bot) Chat(id int64) (*Chat, bool) {
	return b.chats.Lookup(chatKey(id))
}

