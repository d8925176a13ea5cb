package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Hara602/regmon/internal/config"
	"github.com/Hara602/regmon/pkg/event"
	"github.com/Hara602/regmon/pkg/standard"
)

type mockChannel struct {
	mock.Mock
	name string
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Notify(ctx context.Context, n Notification) (bool, error) {
	args := m.Called(ctx, n)
	return args.Bool(0), args.Error(1)
}

func updatesNotification() Notification {
	return Notification{
		Kind: KindUpdates,
		At:   "2025-07-28 09:00:00",
		Updates: []event.ChangeEvent{{
			StandardID: "RSS-247",
			Name:       "RSS-247 Digital Transmission",
			Type:       standard.TypeISED,
			OldVersion: "Issue 3 (August 2023)",
			NewVersion: "Issue 4 (July 24, 2025)",
			DetectedAt: "2025-07-28 09:00:00",
		}},
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	n := updatesNotification()

	failing := &mockChannel{name: "failing"}
	failing.On("Notify", mock.Anything, n).Return(false, errors.New("connection refused"))
	ok := &mockChannel{name: "ok"}
	ok.On("Notify", mock.Anything, n).Return(true, nil)
	off := &mockChannel{name: "off"}
	off.On("Notify", mock.Anything, n).Return(false, nil)

	d := NewDispatcher(nil, failing, ok, off)
	res := d.Dispatch(context.Background(), n)

	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
	off.AssertExpectations(t)

	assert.Equal(t, []string{"ok"}, res.Sent)
	assert.Equal(t, []string{"off"}, res.Skipped)

	var nerr *NotificationError
	require.True(t, errors.As(res.Err, &nerr))
	assert.Equal(t, "failing", nerr.Channel)
	assert.Equal(t, KindUpdates, nerr.Kind)
}

type panicChannel struct{}

func (panicChannel) Name() string { return "panic" }

func (panicChannel) Notify(context.Context, Notification) (bool, error) { panic("boom") }

func TestDispatchRecoversPanic(t *testing.T) {
	ok := &mockChannel{name: "ok"}
	ok.On("Notify", mock.Anything, mock.Anything).Return(true, nil)

	res := NewDispatcher(nil, panicChannel{}, ok).Dispatch(context.Background(), Notification{Kind: KindHeartbeat})
	assert.Equal(t, []string{"ok"}, res.Sent)
	assert.Error(t, res.Err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "unlimited", Truncate("unlimited", 0))
	assert.Equal(t, "abc"+TruncationMarker, Truncate("abcdef", 3))
	// 按字符而不是字节截断
	assert.Equal(t, "監測"+TruncationMarker, Truncate("監測系統", 2))
}

func TestChannelsWithoutCredentialsAreNoop(t *testing.T) {
	called := false
	email := NewEmail(config.EmailConfig{Host: "smtp.example.test", Port: 587}).
		WithSendMail(func(string, smtp.Auth, string, []string, []byte) error {
			called = true
			return nil
		})
	sent, err := email.Notify(context.Background(), updatesNotification())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.False(t, called)

	tg := NewTelegram(config.TelegramConfig{Token: "123:abc"})
	sent, err = tg.Notify(context.Background(), updatesNotification())
	require.NoError(t, err)
	assert.False(t, sent)
}

func emailConfig() config.EmailConfig {
	cfg := config.Default().Notify.Email
	cfg.User = "bot@example.test"
	cfg.Password = "secret"
	cfg.Recipients = []string{"a@example.test", "b@example.test"}
	return cfg
}

func TestEmailUpdates(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	email := NewEmail(emailConfig()).WithSendMail(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	})

	sent, err := email.Notify(context.Background(), updatesNotification())
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "smtp.gmail.com:587", gotAddr)
	assert.Equal(t, "bot@example.test", gotFrom)
	assert.Equal(t, []string{"a@example.test", "b@example.test"}, gotTo)
	assert.Contains(t, gotMsg, "To: a@example.test, b@example.test\r\n")
	assert.Contains(t, gotMsg, "Subject: =?utf-8?q?")
	assert.Contains(t, gotMsg, "Content-Type: text/html; charset=utf-8")
	assert.Contains(t, gotMsg, "RSS-247")
}

func TestEmailError(t *testing.T) {
	cfg := emailConfig()
	cfg.MaxErrorLength = 10
	var gotMsg string
	email := NewEmail(cfg).WithSendMail(func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = string(msg)
		return errors.New("535 auth failed")
	})

	sent, err := email.Notify(context.Background(), Notification{
		Kind:  KindError,
		At:    "2025-07-28 09:00:00",
		Error: "history: write history.json: <disk full> and more",
	})
	require.Error(t, err)
	assert.False(t, sent)
	assert.Contains(t, err.Error(), "535 auth failed")
	// 模板转义 HTML，且错误文本被截断
	assert.Contains(t, gotMsg, "history: ")
	assert.NotContains(t, gotMsg, "disk full")
}

type telegramRecorder struct {
	path string
	req  sendMessageRequest
}

func telegramServer(t *testing.T, status int, rec *telegramRecorder) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec.req))
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func telegramConfig(apiBase string) config.TelegramConfig {
	cfg := config.Default().Notify.Telegram
	cfg.Token = "123:abc"
	cfg.ChatID = "-100"
	cfg.APIBase = apiBase
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestTelegramUpdates(t *testing.T) {
	rec := &telegramRecorder{}
	srv := telegramServer(t, http.StatusOK, rec)

	sent, err := NewTelegram(telegramConfig(srv.URL)).Notify(context.Background(), updatesNotification())
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "/bot123:abc/sendMessage", rec.path)
	assert.Equal(t, "-100", rec.req.ChatID)
	assert.Equal(t, "Markdown", rec.req.ParseMode)
	assert.Contains(t, rec.req.Text, "(1)")
	assert.Contains(t, rec.req.Text, "*RSS-247 Digital Transmission* (RSS-247)")
	assert.Contains(t, rec.req.Text, "`Issue 3 (August 2023)`")
	assert.Contains(t, rec.req.Text, "`Issue 4 (July 24, 2025)`")
}

func TestTelegramErrorTruncated(t *testing.T) {
	rec := &telegramRecorder{}
	srv := telegramServer(t, http.StatusOK, rec)

	long := strings.Repeat("x", 2000)
	sent, err := NewTelegram(telegramConfig(srv.URL)).Notify(context.Background(), Notification{
		Kind:  KindError,
		At:    "2025-07-28 09:00:00",
		Error: long,
	})
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Contains(t, rec.req.Text, strings.Repeat("x", 1500)+TruncationMarker)
	assert.NotContains(t, rec.req.Text, strings.Repeat("x", 1501))
}

func TestTelegramHeartbeat(t *testing.T) {
	rec := &telegramRecorder{}
	srv := telegramServer(t, http.StatusOK, rec)

	_, err := NewTelegram(telegramConfig(srv.URL)).Notify(context.Background(), Notification{
		Kind:             KindHeartbeat,
		At:               "2025-07-28 09:00:00",
		StandardsChecked: 12,
		Status:           "partial",
		Host:             &HostInfo{Hostname: "runner-1", Uptime: time.Hour},
	})
	require.NoError(t, err)
	assert.Contains(t, rec.req.Text, "*12*")
	assert.Contains(t, rec.req.Text, "*PARTIAL*")
	assert.Contains(t, rec.req.Text, "runner-1")
}

func TestTelegramAPIError(t *testing.T) {
	rec := &telegramRecorder{}
	srv := telegramServer(t, http.StatusBadRequest, rec)

	sent, err := NewTelegram(telegramConfig(srv.URL)).Notify(context.Background(), updatesNotification())
	require.Error(t, err)
	assert.False(t, sent)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramRedactsToken(t *testing.T) {
	cfg := telegramConfig("http://127.0.0.1:1")
	_, err := NewTelegram(cfg).Notify(context.Background(), updatesNotification())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "123:abc")
}
