package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Hara602/regmon/internal/config"
)

// Telegram 通过 Bot API sendMessage 发送 Markdown 消息
type Telegram struct {
	cfg    config.TelegramConfig
	client *http.Client
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
	return &Telegram{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (t *Telegram) Name() string { return "telegram" }

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Notify(ctx context.Context, n Notification) (bool, error) {
	if !t.cfg.Enabled() {
		return false, nil
	}
	text, err := t.render(n)
	if err != nil {
		return false, err
	}
	body, err := json.Marshal(sendMessageRequest{ChatID: t.cfg.ChatID, Text: text, ParseMode: "Markdown"})
	if err != nil {
		return false, err
	}

	endpoint := strings.TrimRight(t.cfg.APIBase, "/") + "/bot" + t.cfg.Token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		// 不把带 token 的地址写进错误
		return false, fmt.Errorf("build request: invalid api base %q", t.cfg.APIBase)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return false, redact(err, t.cfg.Token)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var r sendMessageResponse
		if json.Unmarshal(raw, &r) == nil && r.Description != "" {
			return false, fmt.Errorf("telegram: status %d: %s", resp.StatusCode, r.Description)
		}
		return false, fmt.Errorf("telegram: status %d", resp.StatusCode)
	}
	return true, nil
}

func (t *Telegram) render(n Notification) (string, error) {
	var b strings.Builder
	switch n.Kind {
	case KindUpdates:
		fmt.Fprintf(&b, "📋 *Regulatory standard updates* (%d)\n\n", len(n.Updates))
		for _, u := range n.Updates {
			fmt.Fprintf(&b, "🔹 *%s* (%s)\n", u.Name, u.StandardID)
			fmt.Fprintf(&b, "   Old: `%s`\n", u.OldVersion)
			fmt.Fprintf(&b, "   New: `%s`\n\n", u.NewVersion)
		}
		fmt.Fprintf(&b, "⏰ Detected at: %s", n.At)
	case KindError:
		b.WriteString("🚨 *Monitor run failed*\n\n")
		fmt.Fprintf(&b, "```\n%s\n```\n\n", Truncate(n.Error, t.cfg.MaxErrorLength))
		fmt.Fprintf(&b, "⏰ Occurred at: %s", n.At)
	case KindHeartbeat:
		b.WriteString("✅ *Weekly health report*\n\n")
		b.WriteString("🟢 Monitor is running\n\n")
		fmt.Fprintf(&b, "📊 Standards checked: *%d*\n", n.StandardsChecked)
		fmt.Fprintf(&b, "📈 Status: *%s*\n", strings.ToUpper(n.Status))
		if n.Host != nil {
			fmt.Fprintf(&b, "🖥 Runner: %s\n", n.Host)
		}
		fmt.Fprintf(&b, "\n⏰ Reported at: %s", n.At)
	default:
		return "", fmt.Errorf("telegram: unknown notification kind %q", n.Kind)
	}
	return b.String(), nil
}

// redact 去掉错误文本中的 bot token（*url.Error 会带上完整地址）
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<token>"))
}
