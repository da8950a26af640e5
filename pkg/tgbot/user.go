package tgbot

import (
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgbotkit/internal/events"
	"tgbotkit/internal/identity"
)

// User is the unique live object for one Telegram user.
type User struct {
	eventSource
	bot *Bot
	id  int64

	mu           sync.RWMutex
	isBot        bool
	firstName    string
	lastName     string
	username     string
	languageCode string
}

// ID returns the user id.
func (u *User) ID() int64 {
	return u.id
}

// IsBot reports whether the user is a bot.
func (u *User) IsBot() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.isBot
}

// FirstName returns the first name.
func (u *User) FirstName() string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.firstName
}

// LastName returns the last name, possibly empty.
func (u *User) LastName() string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.lastName
}

// Username returns the username without @, possibly empty.
func (u *User) Username() string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.username
}

// LanguageCode returns the IETF language tag of the user's client, possibly empty.
func (u *User) LanguageCode() string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.languageCode
}

// FullName joins first and last name.
func (u *User) FullName() string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return strings.TrimSpace(u.firstName + " " + u.lastName)
}

// String returns a log-friendly name such as "User@42".
func (u *User) String() string {
	return "User@" + strconv.FormatInt(u.id, 10)
}

// PrivateChat returns the private chat with this user. Private chat ids equal user ids.
func (u *User) PrivateChat() *Chat {
	u.mu.RLock()
	raw := tgbotapi.Chat{
		ID:        u.id,
		Type:      ChatTypePrivate,
		FirstName: u.firstName,
		LastName:  u.lastName,
		UserName:  u.username,
	}
	u.mu.RUnlock()

	return u.bot.chats.Receive(raw)
}

func (u *User) merge(raw tgbotapi.User) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.isBot = raw.IsBot
	u.firstName = raw.FirstName
	u.lastName = raw.LastName
	u.username = raw.UserName
	u.languageCode = raw.LanguageCode
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (b *Bot) userAdapter() identity.Adapter[User, tgbotapi.User] {
	return identity.Adapter[User, tgbotapi.User]{
		Kind:   "user",
		Key:    func(user *User) string { return userKey(user.id) },
		RawKey: func(raw tgbotapi.User) string { return userKey(raw.ID) },
		New: func(raw tgbotapi.User) *User {
			user := &User{
				eventSource: eventSource{emitter: events.New("User@"+userKey(raw.ID), b.logger)},
				bot:         b,
				id:          raw.ID,
			}
			user.merge(raw)
			return user
		},
		Merge: func(user *User, raw tgbotapi.User) {
			user.merge(raw)
		},
	}
}

// User returns the cached user with id.
func (b *Bot) User(id int64) (*User, bool) {
	return b.users.Lookup(userKey(id))
}
