package tgbot

import (
	"context"

	"tgbotkit/internal/events"
)

// Event names emitted on bots, chats and messages.
const (
	// EventStart fires on the bot once bot info was fetched, before polling.
	EventStart = "start"
	// EventShutdown fires on the bot after polling ended.
	EventShutdown = "shutdown"
	// EventMessage fires with a *Message on the chat when the chat has message
	// listeners, and on the bot otherwise.
	EventMessage = "message"
	// EventReply fires with the reply *Message on the message that was replied to.
	EventReply = "reply"
	// EventEdit fires without arguments on a message after it was edited.
	EventEdit = "edit"
	// EventDelete fires without arguments on a message after Delete succeeded.
	EventDelete = "delete"
	// EventCommand fires on the bot with the command name and the *Message for every
	// bot_command in a message, registered or not.
	EventCommand = "command"
	// EventUnknownCommand fires on the bot with the command name and the *Message for
	// a command without a registered handler.
	EventUnknownCommand = "unknown_command"
)

type (
	// Listener handles an event with its raw arguments.
	Listener = events.Listener
	// Connection identifies a listener registered with On.
	Connection = events.Connection
	// Future resolves when a one-shot listener fired.
	Future = events.Future
)

// eventSource gives an object its own emitter.
type eventSource struct {
	emitter *events.Emitter
}

// On registers a persistent listener for event.
func (s eventSource) On(event string, listener Listener) Connection {
	return s.emitter.On(event, listener)
}

// Once registers a one-shot listener for event. listener may be nil.
func (s eventSource) Once(event string, listener Listener) *Future {
	return s.emitter.Once(event, listener)
}

// Off removes a listener. Unknown connections are ignored.
func (s eventSource) Off(conn Connection) {
	s.emitter.Off(conn)
}

// WatchActivity reports 0 to 1 and 1 to 0 listener transitions to fn.
func (s eventSource) WatchActivity(fn func(active bool)) {
	s.emitter.WatchActivity(fn)
}

func (s eventSource) emit(ctx context.Context, event string, args ...any) {
	_, emission := s.emitter.SafeEmit(ctx, event, args...)
	_ = emission.Wait()
}

func onMessage(s eventSource, event string, fn func(ctx context.Context, message *Message) error) Connection {
	return s.emitter.On(event, events.Listener1(fn))
}
