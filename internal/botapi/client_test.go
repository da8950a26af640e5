package botapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testToken = "123:secret"

type recordedCall struct {
	method string
	form   url.Values
}

type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	calls     []recordedCall
	responses map[string][]string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	server := &fakeServer{responses: make(map[string][]string)}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := "/bot" + testToken + "/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		method := strings.TrimPrefix(r.URL.Path, prefix)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		server.mu.Lock()
		server.calls = append(server.calls, recordedCall{method: method, form: r.PostForm})
		queue := server.responses[method]
		body := `{"ok":true,"result":true}`
		if len(queue) > 0 {
			body = queue[0]
			if len(queue) > 1 {
				server.responses[method] = queue[1:]
			}
		}
		server.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server
}

func (s *fakeServer) respond(method string, bodies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responses[method] = bodies
}

func (s *fakeServer) recorded() []recordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]recordedCall(nil), s.calls...)
}

func newTestClient(t *testing.T, server *fakeServer, options ...Option) *Client {
	t.Helper()

	options = append([]Option{WithBaseURL(server.URL), WithLimiter(nil)}, options...)
	client, err := New(testToken, options...)
	require.NoError(t, err)

	return client
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	_, err := New("  ")
	require.Error(t, err)
}

func TestClientCallEncodesArgs(t *testing.T) {
	t.Parallel()

	server := newFakeServer(t)
	server.respond("sendMessage", `{"ok":true,"result":{"message_id":7,"chat":{"id":42,"type":"private"},"text":"hi"}}`)
	client := newTestClient(t, server)

	message, err := client.SendMessage(context.Background(), SendMessageParams{
		ChatID:      42,
		Text:        "hi",
		ReplyTo:     &ReplyParameters{MessageID: 3},
		ReplyMarkup: map[string]any{"remove_keyboard": true},
	})
	require.NoError(t, err)
	require.Equal(t, 7, message.MessageID)
	require.Equal(t, int64(42), message.Chat.ID)

	calls := server.recorded()
	require.Len(t, calls, 1)
	form := calls[0].form
	require.Equal(t, "42", form.Get("chat_id"))
	require.Equal(t, "hi", form.Get("text"))
	require.JSONEq(t, `{"message_id":3}`, form.Get("reply_parameters"))
	require.JSONEq(t, `{"remove_keyboard":true}`, form.Get("reply_markup"))
	require.NotContains(t, form, "parse_mode")
}

func TestClientCallDropsNilArgs(t *testing.T) {
	t.Parallel()

	server := newFakeServer(t)
	client := newTestClient(t, server)

	var typedNil *ReplyParameters
	err := client.Call(context.Background(), "anything", Args{"a": nil, "b": typedNil, "c": false}, nil)
	require.NoError(t, err)

	form := server.recorded()[0].form
	require.NotContains(t, form, "a")
	require.NotContains(t, form, "b")
	require.Equal(t, "false", form.Get("c"))
}

func TestClientCallReturnsAPIError(t *testing.T) {
	t.Parallel()

	server := newFakeServer(t)
	server.respond("sendMessage", `{"ok":false,"error_code":400,"description":"Bad Request: group chat was upgraded","parameters":{"migrate_to_chat_id":-100123}}`)
	client := newTestClient(t, server)

	_, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 1, Text: "x"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "sendMessage", apiErr.Method)
	require.Equal(t, 400, apiErr.Code)
	require.Equal(t, "Bad Request: group chat was upgraded", apiErr.Description)
	require.Equal(t, int64(-100123), apiErr.Parameters.MigrateToChatID)
	require.Equal(t, int64(1), apiErr.Args["chat_id"])
	require.ErrorIs(t, err, ErrBadRequest)
	require.ErrorIs(t, err, ErrChatMigrated)
	require.NotErrorIs(t, err, ErrTooManyRequests)
}

func TestClientCallRetriesAfterRateLimit(t *testing.T) {
	t.Parallel()

	server := newFakeServer(t)
	server.respond("sendMessage",
		`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`,
		`{"ok":true,"result":{"message_id":1,"chat":{"id":5,"type":"private"}}}`,
	)

	var slept []time.Duration
	client := newTestClient(t, server, WithSleeper(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))

	message, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 5, Text: "again"})
	require.NoError(t, err)
	require.Equal(t, 1, message.MessageID)
	require.Equal(t, []time.Duration{3 * time.Second}, slept)

	calls := server.recorded()
	require.Len(t, calls, 2)
	require.Equal(t, calls[0].form, calls[1].form)
}

func TestClientCallRetryIsCancellable(t *testing.T) {
	t.Parallel()

	server := newFakeServer(t)
	server.respond("getMe", `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":60}}`)
	client := newTestClient(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.GetMe(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClientRedactsTokenFromTransportErrors(t *testing.T) {
	t.Parallel()

	client, err := New(testToken, WithBaseURL("http://127.0.0.1:1"), WithLimiter(nil))
	require.NoError(t, err)

	err = client.Call(context.Background(), "getMe", nil, nil)
	require.Error(t, err)
	require.NotContains(t, err.Error(), "secret")
}

func TestClientGetUpdates(t *testing.T) {
	t.Parallel()

	server := newFakeServer(t)
	server.respond("getUpdates",
		`{"ok":true,"result":[{"update_id":10,"message":{"message_id":1,"chat":{"id":1,"type":"private"},"text":"a"}},{"update_id":11,"poll":{"id":"x"}}]}`,
	)
	client := newTestClient(t, server)

	updates, err := client.GetUpdates(context.Background(), 0, 40*time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	require.Equal(t, int64(10), updates[0].ID)
	require.Equal(t, []string{"message"}, updates[0].Kinds)
	require.NotNil(t, updates[0].Update.Message)
	require.Equal(t, "a", updates[0].Update.Message.Text)
	require.True(t, updates[1].Has("poll"))

	form := server.recorded()[0].form
	require.Equal(t, "40", form.Get("timeout"))
	require.NotContains(t, form, "offset")

	_, err = client.GetUpdates(context.Background(), 12, time.Second)
	require.NoError(t, err)
	require.Equal(t, "12", server.recorded()[1].form.Get("offset"))
}

func TestDecodeUpdate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantKinds []string
		wantTyped bool
	}{
		{name: "missing id", input: `{"message":{}}`, wantErr: true},
		{name: "not an object", input: `[]`, wantErr: true},
		{
			name:      "several kinds sorted",
			input:     `{"update_id":1,"message":{"message_id":1},"callback_query":{"id":"q"}}`,
			wantKinds: []string{"callback_query", "message"},
			wantTyped: true,
		},
		{
			name:      "typed view fails but update survives",
			input:     `{"update_id":2,"message":{"message_id":"not a number"}}`,
			wantKinds: []string{"message"},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			update, err := DecodeUpdate([]byte(testCase.input))
			if testCase.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, testCase.wantKinds, update.Kinds)
			if testCase.wantTyped {
				require.NoError(t, update.DecodeErr)
			} else {
				require.Error(t, update.DecodeErr)
			}
		})
	}
}

func TestClientDownloadFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/bot"+testToken+"/photos/file_1.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(server.Close)

	client, err := New(testToken, WithBaseURL(server.URL))
	require.NoError(t, err)

	var buffer bytes.Buffer
	require.NoError(t, client.DownloadFile(context.Background(), "photos/file_1.jpg", &buffer))
	require.Equal(t, "jpeg-bytes", buffer.String())

	err = client.DownloadFile(context.Background(), "missing", &buffer)
	require.Error(t, err)
	require.False(t, errors.Is(err, context.Canceled))
}
