// Package tgbot is a long-polling Telegram bot runtime.
//
// Every chat, user, message and media group seen in updates is represented by one
// live object per upstream entity. Objects are reclaimed once nothing references
// them and nobody listens to their events.
package tgbot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"tgbotkit/internal/botapi"
	"tgbotkit/internal/events"
	"tgbotkit/internal/identity"
	"tgbotkit/internal/longpoll"
)

const (
	infoRefreshSpec    = "@every 6h"
	infoRefreshTimeout = 30 * time.Second
)

// Observer receives runtime signals, typically the Prometheus collector.
type Observer interface {
	botapi.Observer
	longpoll.Observer
	ObserveUpdate(kind string)
	ObserveUnknownUpdate(kind string)
	ObserveHandlerFailure(handler string)
	TrackObjects(kind string, live func() int) error
}

// Info is the bot's own account as reported by getMe.
type Info struct {
	ID                      int64
	Username                string
	FirstName               string
	CanJoinGroups           bool
	CanReadAllGroupMessages bool
	SupportsInlineQueries   bool
}

// Option mutates bot configuration.
type Option func(*settings)

type settings struct {
	logger         *slog.Logger
	observer       Observer
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	pollTimeout    time.Duration
	callbackKeyLen int
	apiOptions     []botapi.Option
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers an observer for metrics.
func WithObserver(observer Observer) Option {
	return func(s *settings) {
		s.observer = observer
	}
}

// WithBaseURL points the bot at another Bot API server.
func WithBaseURL(baseURL string) Option {
	return func(s *settings) {
		s.baseURL = baseURL
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// WithRateLimit limits outgoing calls to perSecond with burst. perSecond <= 0
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *settings) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithPollTimeout overrides the long-poll timeout.
func WithPollTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.pollTimeout = timeout
	}
}

// WithCallbackKeyLength overrides the length of generated callback keys.
func WithCallbackKeyLength(length int) Option {
	return func(s *settings) {
		if length > 0 {
			s.callbackKeyLen = length
		}
	}
}

// WithAPIOptions passes extra options to the transport.
func WithAPIOptions(options ...botapi.Option) Option {
	return func(s *settings) {
		s.apiOptions = append(s.apiOptions, options...)
	}
}

// Bot owns the transport, the poll loop, the identity caches and the handler tables.
type Bot struct {
	eventSource

	api      *botapi.Client
	logger   *slog.Logger
	observer Observer
	fetcher  *longpoll.Fetcher
	cron     *cron.Cron
	started  atomic.Bool

	chats    *identity.Store[Chat, tgbotapi.Chat]
	users    *identity.Store[User, tgbotapi.User]
	messages *identity.Store[Message, tgbotapi.Message]
	groups   *identity.Store[MediaGroup, string]

	callbacks *callbackRegistry
	handlers  map[string]updateHandler

	commandsMu sync.RWMutex
	commands   map[string]Command

	modulesMu sync.Mutex
	modules   map[string]Module

	infoMu sync.RWMutex
	info   *Info
}

// New creates a bot for token. Nothing is sent until Start.
func New(token string, options ...Option) (*Bot, error) {
	s := settings{
		logger:         slog.Default(),
		limiter:        rate.NewLimiter(rate.Limit(30), 30),
		pollTimeout:    longpoll.DefaultTimeout,
		callbackKeyLen: DefaultCallbackKeyLength,
	}
	for _, option := range options {
		option(&s)
	}

	apiOptions := []botapi.Option{
		botapi.WithLogger(s.logger),
		botapi.WithLimiter(s.limiter),
	}
	if s.baseURL != "" {
		apiOptions = append(apiOptions, botapi.WithBaseURL(s.baseURL))
	}
	if s.httpClient != nil {
		apiOptions = append(apiOptions, botapi.WithHTTPClient(s.httpClient))
	}
	if s.observer != nil {
		apiOptions = append(apiOptions, botapi.WithObserver(s.observer))
	}
	api, err := botapi.New(token, append(apiOptions, s.apiOptions...)...)
	if err != nil {
		return nil, fmt.Errorf("new bot: %w", err)
	}

	bot := &Bot{
		eventSource: eventSource{emitter: events.New("Bot", s.logger)},
		api:         api,
		logger:      s.logger,
		observer:    s.observer,
		cron:        cron.New(),
		callbacks:   newCallbackRegistry(randomKeyGenerator(s.callbackKeyLen)),
		commands:    make(map[string]Command),
		modules:     make(map[string]Module),
	}
	bot.handlers = bot.updateHandlers()

	if err := bot.initStores(); err != nil {
		return nil, fmt.Errorf("new bot: %w", err)
	}

	fetcherOptions := []longpoll.Option{
		longpoll.WithLogger(s.logger),
		longpoll.WithTimeout(s.pollTimeout),
	}
	if s.observer != nil {
		fetcherOptions = append(fetcherOptions, longpoll.WithObserver(s.observer))
	}
	bot.fetcher, err = longpoll.New(api, bot.handleUpdate, fetcherOptions...)
	if err != nil {
		return nil, fmt.Errorf("new bot: %w", err)
	}

	if _, err := bot.cron.AddFunc(infoRefreshSpec, bot.refreshInfo); err != nil {
		return nil, fmt.Errorf("new bot: schedule info refresh: %w", err)
	}

	return bot, nil
}

func (b *Bot) initStores() error {
	var err error
	if b.chats, err = identity.NewStore(b.chatAdapter(), b.logger); err != nil {
		return err
	}
	if b.users, err = identity.NewStore(b.userAdapter(), b.logger); err != nil {
		return err
	}
	if b.messages, err = identity.NewStore(b.messageAdapter(), b.logger); err != nil {
		return err
	}
	if b.groups, err = identity.NewStore(mediaGroupAdapter(), b.logger); err != nil {
		return err
	}

	if b.observer == nil {
		return nil
	}
	for kind, live := range map[string]func() int{
		b.chats.Kind():    b.chats.Live,
		b.users.Kind():    b.users.Live,
		b.messages.Kind(): b.messages.Live,
		b.groups.Kind():   b.groups.Live,
	} {
		if err := b.observer.TrackObjects(kind, live); err != nil {
			return err
		}
	}

	return nil
}

// Start fetches bot info, emits EventStart, polls until Stop or ctx ends, and emits
// EventShutdown. A nil error means the loop was stopped.
func (b *Bot) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("start bot: %w", ErrAlreadyStarted)
	}
	if err := b.updateInfo(ctx); err != nil {
		b.started.Store(false)
		return fmt.Errorf("start bot: %w", err)
	}

	b.cron.Start()
	defer func() {
		<-b.cron.Stop().Done()
	}()

	info, _ := b.Info()
	b.logger.Info("bot started", "bot_id", info.ID, "username", info.Username)
	b.emit(ctx, EventStart)

	runErr := b.fetcher.Start(ctx)

	b.emit(context.WithoutCancel(ctx), EventShutdown)
	b.logger.Info("bot stopped", "error", runErr)
	if runErr != nil {
		return fmt.Errorf("run bot: %w", runErr)
	}

	return nil
}

// Stop ends polling started by Start and waits for the loop to exit.
func (b *Bot) Stop(ctx context.Context) error {
	return b.fetcher.Stop(ctx)
}

// OnStart subscribes fn to EventStart.
func (b *Bot) OnStart(fn func(ctx context.Context) error) Connection {
	return b.emitter.On(EventStart, events.Listener0(fn))
}

// OnShutdown subscribes fn to EventShutdown.
func (b *Bot) OnShutdown(fn func(ctx context.Context) error) Connection {
	return b.emitter.On(EventShutdown, events.Listener0(fn))
}

// OnMessage subscribes fn to messages of chats without their own message listeners.
func (b *Bot) OnMessage(fn func(ctx context.Context, message *Message) error) Connection {
	return onMessage(b.eventSource, EventMessage, fn)
}

// Info returns the bot account. ok is false before Start fetched it.
func (b *Bot) Info() (Info, bool) {
	b.infoMu.RLock()
	defer b.infoMu.RUnlock()

	if b.info == nil {
		return Info{}, false
	}

	return *b.info, true
}

func (b *Bot) updateInfo(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}

	b.infoMu.Lock()
	b.info = &Info{
		ID:                      me.ID,
		Username:                me.UserName,
		FirstName:               me.FirstName,
		CanJoinGroups:           me.CanJoinGroups,
		CanReadAllGroupMessages: me.CanReadAllGroupMessages,
		SupportsInlineQueries:   me.SupportsInlineQueries,
	}
	b.infoMu.Unlock()

	return nil
}

// refreshInfo is the scheduled getMe refresh.
func (b *Bot) refreshInfo() {
	ctx, cancel := context.WithTimeout(context.Background(), infoRefreshTimeout)
	defer cancel()

	if err := b.updateInfo(ctx); err != nil {
		b.logger.Warn("refresh bot info failed", "error", err)
	}
}

func (b *Bot) send(ctx context.Context, chat *Chat, init MessageInit) (*Message, error) {
	markup, err := b.renderKeyboard(init.Keyboard)
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", chat, err)
	}

	var replyTo *botapi.ReplyParameters
	if init.ReplyTo != nil {
		replyTo = &botapi.ReplyParameters{MessageID: init.ReplyTo.id}
		if init.ReplyTo.chat != chat {
			replyTo.ChatID = init.ReplyTo.chat.id
		}
	}

	var raw tgbotapi.Message
	if init.Photo != "" {
		raw, err = b.api.SendPhoto(ctx, botapi.SendPhotoParams{
			ChatID:      chat.id,
			Photo:       init.Photo,
			Caption:     init.Text,
			ParseMode:   init.ParseMode,
			ReplyTo:     replyTo,
			ReplyMarkup: markup,
		})
	} else {
		raw, err = b.api.SendMessage(ctx, botapi.SendMessageParams{
			ChatID:      chat.id,
			Text:        init.Text,
			ParseMode:   init.ParseMode,
			ReplyTo:     replyTo,
			ReplyMarkup: markup,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", chat, err)
	}
	if raw.Chat == nil {
		return nil, fmt.Errorf("send to %s: response without chat", chat)
	}

	return b.hydrateMessage(raw), nil
}
