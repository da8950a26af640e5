package tgbot

import (
	"errors"

	"tgbotkit/internal/botapi"
	"tgbotkit/internal/longpoll"
)

// APIError is a Bot API call answered with ok=false.
type APIError = botapi.APIError

var (
	// ErrInvalidKeyboard is returned by keyboard builders on a malformed layout.
	ErrInvalidKeyboard = errors.New("invalid keyboard")
	// ErrNotEditable is returned when an edit asks for something the message can not take.
	ErrNotEditable = errors.New("message not editable")
	// ErrInaccessible is returned for operations on a deleted message.
	ErrInaccessible = errors.New("message is no longer accessible")
	// ErrDuplicateCommand is returned when a command name is registered twice.
	ErrDuplicateCommand = errors.New("command already registered")
	// ErrAlreadyStarted is returned by a second Start. A bot runs at most once.
	ErrAlreadyStarted = longpoll.ErrAlreadyStarted
)
