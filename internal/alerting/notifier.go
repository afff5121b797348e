package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification 封装一次 ETL 运行告警的上下文。
type Notification struct {
	Trigger    string
	FiredAt    time.Time
	Status     string
	Detail     string
	DegradedFX bool
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 发送 ETL 运行失败或降级通知。
func (t *TelegramNotifier) Notify(ctx context.Context, notification Notification) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("telegram notifier not configured")
	}

	text := formatMessage(notification)
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	t.logger.Debug().Str("trigger", notification.Trigger).Msg("alert dispatched")
	return nil
}

func formatMessage(n Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "sugarwatch ETL %s\n", n.Status)
	fmt.Fprintf(&b, "trigger: %s\n", n.Trigger)
	fmt.Fprintf(&b, "fired at: %s\n", n.FiredAt.Format(time.RFC3339))
	if n.DegradedFX {
		b.WriteString("exchange rate: degraded fallback in use\n")
	}
	if n.Detail != "" {
		fmt.Fprintf(&b, "detail: %s", n.Detail)
	}
	return b.String()
}
