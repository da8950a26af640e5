package tgbot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"tgbotkit/internal/botapi"
	"tgbotkit/internal/safe"
)

// Update payload kinds with a handler.
const (
	UpdateMessage           = "message"
	UpdateEditedMessage     = "edited_message"
	UpdateChannelPost       = "channel_post"
	UpdateEditedChannelPost = "edited_channel_post"
	UpdateCallbackQuery     = "callback_query"
)

type updateHandler func(ctx context.Context, update botapi.RawUpdate) error

func (b *Bot) updateHandlers() map[string]updateHandler {
	return map[string]updateHandler{
		UpdateMessage: func(ctx context.Context, update botapi.RawUpdate) error {
			return b.handleMessage(ctx, update.Update.Message)
		},
		UpdateChannelPost: func(ctx context.Context, update botapi.RawUpdate) error {
			return b.handleMessage(ctx, update.Update.ChannelPost)
		},
		UpdateEditedMessage: func(ctx context.Context, update botapi.RawUpdate) error {
			return b.handleEdited(ctx, update.Update.EditedMessage)
		},
		UpdateEditedChannelPost: func(ctx context.Context, update botapi.RawUpdate) error {
			return b.handleEdited(ctx, update.Update.EditedChannelPost)
		},
		UpdateCallbackQuery: func(ctx context.Context, update botapi.RawUpdate) error {
			return b.handleCallbackQuery(ctx, update.Update.CallbackQuery)
		},
	}
}

// handleUpdate routes every payload kind of update to its handler concurrently and
// returns once all of them finished.
func (b *Bot) handleUpdate(ctx context.Context, update botapi.RawUpdate) {
	if update.DecodeErr != nil {
		b.logger.Error("decode update failed",
			"update_id", update.ID,
			"kinds", update.Kinds,
			"error", update.DecodeErr,
		)
		return
	}

	var group errgroup.Group
	var unknown []string
	for _, kind := range update.Kinds {
		if b.observer != nil {
			b.observer.ObserveUpdate(kind)
		}

		handler, ok := b.handlers[kind]
		if !ok {
			unknown = append(unknown, kind)
			continue
		}
		group.Go(func() error {
			b.runHandler("update:"+kind, func() error {
				return handler(ctx, update)
			}, "update_id", update.ID)
			return nil
		})
	}
	if len(unknown) > 0 {
		b.reportUnknown(update.ID, unknown)
	}
	_ = group.Wait()
}

// reportUnknown logs one warning for an update carrying payload kinds without a
// handler.
func (b *Bot) reportUnknown(updateID int64, kinds []string) {
	if b.observer != nil {
		for _, kind := range kinds {
			b.observer.ObserveUnknownUpdate(kind)
		}
	}
	b.logger.Warn("unknown update type", "update_id", updateID, "kinds", kinds)
}

// runHandler runs fn, logging and counting an error or panic under name.
func (b *Bot) runHandler(name string, fn func() error, attrs ...any) {
	err := safe.Run(name, fn)
	if err == nil {
		return
	}

	if b.observer != nil {
		b.observer.ObserveHandlerFailure(name)
	}
	b.logger.Error("handler failed", append(attrs, slog.String("handler", name), slog.Any("error", err))...)
}

func (b *Bot) handleMessage(ctx context.Context, raw *tgbotapi.Message) error {
	if raw == nil || raw.Chat == nil {
		b.logger.Warn("message update without chat")
		return nil
	}

	message := b.hydrateMessage(*raw)
	chat := message.Chat()

	var group errgroup.Group
	group.Go(func() error {
		if chat.emitter.HasListeners(EventMessage) {
			chat.emit(ctx, EventMessage, message)
		} else {
			b.emit(ctx, EventMessage, message)
		}
		return nil
	})

	if parent := message.ReplyTo(); parent != nil {
		group.Go(func() error {
			parent.emit(ctx, EventReply, message)
			return nil
		})
	}

	text, entities := raw.Text, raw.Entities
	if text == "" {
		text, entities = raw.Caption, raw.CaptionEntities
	}
	for _, name := range extractCommands(text, entities) {
		group.Go(func() error {
			b.emit(ctx, EventCommand, name, message)
			return nil
		})

		command, ok := b.command(name)
		if !ok {
			b.logger.Debug("no handler for command", "command", name, "chat", chat.String())
			group.Go(func() error {
				b.emit(ctx, EventUnknownCommand, name, message)
				return nil
			})
			continue
		}
		group.Go(func() error {
			b.runHandler("command:"+command.Name, func() error {
				return command.Handler(ctx, message)
			}, "chat", chat.String(), "message_id", message.ID())
			return nil
		})
	}

	return group.Wait()
}

func (b *Bot) handleEdited(ctx context.Context, raw *tgbotapi.Message) error {
	if raw == nil || raw.Chat == nil {
		b.logger.Warn("edited message update without chat")
		return nil
	}

	message := b.hydrateMessage(*raw)
	message.emit(ctx, EventEdit)

	return nil
}

func (b *Bot) handleCallbackQuery(ctx context.Context, raw *tgbotapi.CallbackQuery) error {
	if raw == nil || raw.Data == "" {
		return nil
	}

	key, err := decodeCallbackData(raw.Data)
	if err != nil {
		b.logger.Warn("ignoring callback query", "query_id", raw.ID, "error", err)
		return nil
	}
	callback, ok := b.callbacks.resolve(key)
	if !ok {
		b.logger.Warn("unknown callback key", "query_id", raw.ID, "key", key)
		return nil
	}

	query := CallbackQuery{ID: raw.ID}
	if raw.From != nil {
		query.From = b.users.Receive(*raw.From)
	}
	if raw.Message != nil && raw.Message.Chat != nil {
		query.Message = b.hydrateMessage(*raw.Message)
		query.Chat = query.Message.Chat()
	}

	var answer CallbackAnswer
	b.runHandler("callback:"+callback.name, func() error {
		var callbackErr error
		answer, callbackErr = callback.fn(ctx, query)
		return callbackErr
	}, "query_id", raw.ID)

	err = b.api.AnswerCallbackQuery(ctx, botapi.AnswerCallbackParams{
		QueryID:   raw.ID,
		Text:      answer.Text,
		ShowAlert: answer.Alert,
	})
	if err != nil {
		return fmt.Errorf("answer callback query %s: %w", raw.ID, err)
	}

	return nil
}
