package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SignalAlert 封装单个信号的告警上下文。
type SignalAlert struct {
	Ticker       string
	Entry        decimal.Decimal
	Target       decimal.Decimal
	Stop         decimal.Decimal
	PositionSize decimal.Decimal
	RSI          float64
	News         []string
	EarningsDate *time.Time
}

// Notifier 定义告警输送接口。
type Notifier interface {
	NotifySignal(ctx context.Context, alert SignalAlert) error
	NotifySystemDown(ctx context.Context, reason string) error
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

// NotifySignal 推送单个交易信号。
func (n *TelegramNotifier) NotifySignal(ctx context.Context, alert SignalAlert) error {
	if err := n.send(ctx, renderSignalMessage(alert), "HTML"); err != nil {
		return err
	}
	n.logger.Info().Str("ticker", alert.Ticker).Msg("告警已发送 (Telegram)")
	return nil
}

// NotifySystemDown 推送系统级故障通知，与交易信号区分开。
func (n *TelegramNotifier) NotifySystemDown(ctx context.Context, reason string) error {
	return n.send(ctx, "System Down: "+reason, "")
}

func (n *TelegramNotifier) send(ctx context.Context, text, parseMode string) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}
	return nil
}

func renderSignalMessage(alert SignalAlert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("<b>Signal: %s</b>\n", alert.Ticker))
	builder.WriteString(fmt.Sprintf("Link: https://finance.yahoo.com/quote/%s\n", alert.Ticker))
	builder.WriteString(fmt.Sprintf("Entry: %s\n", alert.Entry.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Target (+25%%): %s\n", alert.Target.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Hard Stop (ATR): %s\n", alert.Stop.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Position Size: %s shares\n", alert.PositionSize.StringFixed(2)))
	builder.WriteString("Catalyst (News):\n")
	if len(alert.News) == 0 {
		builder.WriteString("- None\n")
	} else {
		for _, headline := range alert.News {
			builder.WriteString("- " + headline + "\n")
		}
	}
	earnings := "Unknown"
	if alert.EarningsDate != nil {
		earnings = alert.EarningsDate.UTC().Format("2006-01-02")
	}
	builder.WriteString("Next Earnings: " + earnings + "\n")
	builder.WriteString("Risk Warning: Position size capped to 5% risk of capital.")
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
