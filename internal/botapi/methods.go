package botapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// httpTimeoutMargin is added to the long-poll timeout for the HTTP deadline.
const httpTimeoutMargin = 10 * time.Second

// Me is the getMe result: the bot user plus bot-only capability flags.
type Me struct {
	tgbotapi.User
	CanConnectToBusiness bool `json:"can_connect_to_business,omitempty"`
	HasMainWebApp        bool `json:"has_main_web_app,omitempty"`
}

// ReplyParameters marks an outgoing message as a reply.
type ReplyParameters struct {
	MessageID int   `json:"message_id"`
	ChatID    int64 `json:"chat_id,omitempty"`
}

// InputMediaPhoto is the media payload of editMessageMedia.
type InputMediaPhoto struct {
	Type      string `json:"type"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// SendMessageParams are the sendMessage arguments.
type SendMessageParams struct {
	ChatID      int64
	Text        string
	ParseMode   string
	ReplyTo     *ReplyParameters
	ReplyMarkup any
}

// SendPhotoParams are the sendPhoto arguments. Photo is a file_id or URL.
type SendPhotoParams struct {
	ChatID      int64
	Photo       string
	Caption     string
	ParseMode   string
	ReplyTo     *ReplyParameters
	ReplyMarkup any
}

// EditMessageParams target an existing chat message. Text is used as the caption by
// EditMessageCaption. Media is only used by EditMessageMedia.
type EditMessageParams struct {
	ChatID      int64
	MessageID   int
	Text        string
	ParseMode   string
	Media       *InputMediaPhoto
	ReplyMarkup any
}

// AnswerCallbackParams are the answerCallbackQuery arguments.
type AnswerCallbackParams struct {
	QueryID   string
	Text      string
	ShowAlert bool
}

// GetUpdates long-polls for updates starting at offset. The HTTP deadline is the
// poll timeout plus a margin.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]RawUpdate, error) {
	args := Args{"timeout": int64(timeout / time.Second)}
	if offset > 0 {
		args["offset"] = offset
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout+httpTimeoutMargin)
	defer cancel()

	var raw []json.RawMessage
	if err := c.Call(callCtx, methodGetUpdates, args, &raw); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("get updates: %w", ctx.Err())
		}
		return nil, err
	}

	updates := make([]RawUpdate, 0, len(raw))
	for _, entry := range raw {
		update, err := DecodeUpdate(entry)
		if err != nil {
			c.logger.Warn("dropping undecodable update", "error", err)
			continue
		}
		updates = append(updates, update)
	}

	return updates, nil
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (Me, error) {
	var me Me
	if err := c.Call(ctx, "getMe", nil, &me); err != nil {
		return Me{}, err
	}

	return me, nil
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (tgbotapi.Message, error) {
	args := Args{
		"chat_id":          params.ChatID,
		"text":             params.Text,
		"reply_parameters": params.ReplyTo,
		"reply_markup":     params.ReplyMarkup,
	}
	setString(args, "parse_mode", params.ParseMode)

	var message tgbotapi.Message
	if err := c.Call(ctx, "sendMessage", args, &message); err != nil {
		return tgbotapi.Message{}, err
	}

	return message, nil
}

// SendPhoto sends a photo message.
func (c *Client) SendPhoto(ctx context.Context, params SendPhotoParams) (tgbotapi.Message, error) {
	args := Args{
		"chat_id":          params.ChatID,
		"photo":            params.Photo,
		"reply_parameters": params.ReplyTo,
		"reply_markup":     params.ReplyMarkup,
	}
	setString(args, "caption", params.Caption)
	setString(args, "parse_mode", params.ParseMode)

	var message tgbotapi.Message
	if err := c.Call(ctx, "sendPhoto", args, &message); err != nil {
		return tgbotapi.Message{}, err
	}

	return message, nil
}

// EditMessageText replaces the text of a text message.
func (c *Client) EditMessageText(ctx context.Context, params EditMessageParams) (tgbotapi.Message, error) {
	args := editArgs(params)
	args["text"] = params.Text
	setString(args, "parse_mode", params.ParseMode)

	return c.edit(ctx, "editMessageText", args)
}

// EditMessageCaption replaces the caption of a media message.
func (c *Client) EditMessageCaption(ctx context.Context, params EditMessageParams) (tgbotapi.Message, error) {
	args := editArgs(params)
	args["caption"] = params.Text
	setString(args, "parse_mode", params.ParseMode)

	return c.edit(ctx, "editMessageCaption", args)
}

// EditMessageMedia replaces the media of a media message.
func (c *Client) EditMessageMedia(ctx context.Context, params EditMessageParams) (tgbotapi.Message, error) {
	if params.Media == nil {
		return tgbotapi.Message{}, fmt.Errorf("edit message media: media is required")
	}
	args := editArgs(params)
	args["media"] = params.Media

	return c.edit(ctx, "editMessageMedia", args)
}

// EditMessageReplyMarkup replaces only the inline keyboard of a message.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, params EditMessageParams) (tgbotapi.Message, error) {
	return c.edit(ctx, "editMessageReplyMarkup", editArgs(params))
}

// DeleteMessage deletes a chat message.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.Call(ctx, "deleteMessage", Args{"chat_id": chatID, "message_id": messageID}, nil)
}

// AnswerCallbackQuery acknowledges a callback query.
func (c *Client) AnswerCallbackQuery(ctx context.Context, params AnswerCallbackParams) error {
	args := Args{"callback_query_id": params.QueryID}
	setString(args, "text", params.Text)
	if params.ShowAlert {
		args["show_alert"] = true
	}

	return c.Call(ctx, "answerCallbackQuery", args, nil)
}

// GetFile resolves a file_id into a downloadable file path.
func (c *Client) GetFile(ctx context.Context, fileID string) (tgbotapi.File, error) {
	var file tgbotapi.File
	if err := c.Call(ctx, "getFile", Args{"file_id": fileID}, &file); err != nil {
		return tgbotapi.File{}, err
	}

	return file, nil
}

func (c *Client) edit(ctx context.Context, method string, args Args) (tgbotapi.Message, error) {
	var message tgbotapi.Message
	if err := c.Call(ctx, method, args, &message); err != nil {
		return tgbotapi.Message{}, err
	}

	return message, nil
}

func editArgs(params EditMessageParams) Args {
	return Args{
		"chat_id":      params.ChatID,
		"message_id":   params.MessageID,
		"reply_markup": params.ReplyMarkup,
	}
}

func setString(args Args, key string, value string) {
	if value != "" {
		args[key] = value
	}
}
