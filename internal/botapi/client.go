// Package botapi is the HTTP transport for the Telegram Bot API.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"

	defaultRateLimit = 30
	defaultRateBurst = 30

	methodGetUpdates = "getUpdates"
)

// Args are the parameters of one Bot API call. Nil values are dropped, strings
// are sent verbatim, scalars are formatted and everything else is JSON-encoded.
type Args map[string]any

// Observer receives transport-level signals, typically a metrics collector.
type Observer interface {
	ObserveRateLimitRetry(method string)
	ObserveAPIError(method string, code int)
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option mutates client configuration.
type Option func(*Client)

// WithBaseURL points the client at another Bot API server.
func WithBaseURL(baseURL string) Option {
	return func(client *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			client.baseURL = trimmed
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.http = httpClient
		}
	}
}

// WithLogger injects a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// WithLimiter replaces the outbound limiter. A nil limiter disables limiting.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(client *Client) {
		client.limiter = limiter
	}
}

// WithSleeper replaces the wait used between rate-limit retries.
func WithSleeper(sleeper Sleeper) Option {
	return func(client *Client) {
		if sleeper != nil {
			client.sleep = sleeper
		}
	}
}

// WithObserver registers an observer for retries and API errors.
func WithObserver(observer Observer) Option {
	return func(client *Client) {
		client.observer = observer
	}
}

// Client calls Bot API methods for one bot token.
type Client struct {
	token    string
	baseURL  string
	http     *http.Client
	logger   *slog.Logger
	limiter  *rate.Limiter
	sleep    Sleeper
	observer Observer
}

// New creates a client for token.
func New(token string, options ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("new bot api client: empty token")
	}

	client := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		http:    &http.Client{},
		logger:  slog.Default(),
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultRateBurst),
		sleep:   sleepContext,
	}
	for _, option := range options {
		option(client)
	}

	return client, nil
}

// Call invokes method with args and decodes the result into out, which may be nil.
//
// A response carrying retry_after is retried with identical arguments after the
// advertised delay, without an attempt limit. Context cancellation is returned as
// an error wrapping ctx.Err().
func (c *Client) Call(ctx context.Context, method string, args Args, out any) error {
	form, err := encodeArgs(args)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}

	for attempt := 1; ; attempt++ {
		if c.limiter != nil && method != methodGetUpdates {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("call %s: wait for limiter: %w", method, err)
			}
		}

		response, err := c.post(ctx, method, form)
		if err != nil {
			return err
		}
		if response.Ok {
			if out == nil || len(response.Result) == 0 {
				return nil
			}
			if err := json.Unmarshal(response.Result, out); err != nil {
				return fmt.Errorf("call %s: decode result: %w", method, err)
			}
			return nil
		}

		apiErr := newAPIError(method, args, response)
		if apiErr.Parameters.RetryAfter <= 0 {
			if c.observer != nil {
				c.observer.ObserveAPIError(method, apiErr.Code)
			}
			return apiErr
		}

		delay := time.Duration(apiErr.Parameters.RetryAfter) * time.Second
		c.logger.Warn("telegram rate limit hit, retrying",
			"method", method,
			"retry_after", delay,
			"attempt", attempt,
		)
		if c.observer != nil {
			c.observer.ObserveRateLimitRetry(method)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return fmt.Errorf("call %s: wait for retry: %w", method, err)
		}
	}
}

// post performs one HTTP round trip.
func (c *Client) post(ctx context.Context, method string, form url.Values) (tgbotapi.APIResponse, error) {
	endpoint := c.baseURL + "/bot" + c.token + "/" + method
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return tgbotapi.APIResponse{}, fmt.Errorf("call %s: build request: %w", method, err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.http.Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return tgbotapi.APIResponse{}, fmt.Errorf("call %s: %w", method, ctxErr)
		}
		return tgbotapi.APIResponse{}, fmt.Errorf("call %s: %w", method, redactToken(err, c.token))
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return tgbotapi.APIResponse{}, fmt.Errorf("call %s: read response: %w", method, err)
	}

	var decoded tgbotapi.APIResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tgbotapi.APIResponse{}, fmt.Errorf("call %s: decode response (status %d): %w", method, response.StatusCode, err)
	}

	return decoded, nil
}

// DownloadFile streams the file stored at filePath (from getFile) into w.
func (c *Client) DownloadFile(ctx context.Context, filePath string, w io.Writer) error {
	if strings.TrimSpace(filePath) == "" {
		return fmt.Errorf("download file: empty file path")
	}

	endpoint := c.baseURL + "/file/bot" + c.token + "/" + strings.TrimLeft(filePath, "/")
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("download file: build request: %w", err)
	}

	response, err := c.http.Do(request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("download file: %w", ctxErr)
		}
		return fmt.Errorf("download file: %w", redactToken(err, c.token))
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("download file: unexpected status %d", response.StatusCode)
	}
	if _, err := io.Copy(w, response.Body); err != nil {
		return fmt.Errorf("download file: copy body: %w", err)
	}

	return nil
}

func newAPIError(method string, args Args, response tgbotapi.APIResponse) *APIError {
	apiErr := &APIError{
		Method:      method,
		Args:        maps.Clone(args),
		Code:        response.ErrorCode,
		Description: response.Description,
	}
	if response.Parameters != nil {
		apiErr.Parameters = ResponseParameters{
			MigrateToChatID: response.Parameters.MigrateToChatID,
			RetryAfter:      response.Parameters.RetryAfter,
		}
	}

	return apiErr
}

// encodeArgs renders args into a form body.
func encodeArgs(args Args) (url.Values, error) {
	form := make(url.Values, len(args))
	for key, value := range args {
		if isNil(value) {
			continue
		}

		switch typed := value.(type) {
		case string:
			form.Set(key, typed)
		case bool:
			form.Set(key, strconv.FormatBool(typed))
		case int:
			form.Set(key, strconv.Itoa(typed))
		case int64:
			form.Set(key, strconv.FormatInt(typed, 10))
		case float64:
			form.Set(key, strconv.FormatFloat(typed, 'f', -1, 64))
		default:
			encoded, err := encodeJSON(typed)
			if err != nil {
				return nil, fmt.Errorf("encode argument %s: %w", key, err)
			}
			form.Set(key, encoded)
		}
	}

	return form, nil
}

func isNil(value any) bool {
	if value == nil {
		return true
	}

	reflected := reflect.ValueOf(value)
	switch reflected.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return reflected.IsNil()
	default:
		return false
	}
}

// redactToken strips the bot token from transport errors, which embed the URL.
func redactToken(err error, token string) error {
	message := err.Error()
	if !strings.Contains(message, token) {
		return err
	}

	return &redactedError{message: strings.ReplaceAll(message, token, "<token>"), cause: err}
}

type redactedError struct {
	message string
	cause   error
}

func (e *redactedError) Error() string { return e.message }

func (e *redactedError) Unwrap() error { return e.cause }

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// encodeJSON marshals without HTML escaping so URLs in markup stay readable.
func encodeJSON(value any) (string, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return "", err
	}

	return strings.TrimSuffix(buffer.String(), "\n"), nil
}
