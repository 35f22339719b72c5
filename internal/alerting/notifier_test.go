package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func sampleAlert() SignalAlert {
	earnings := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	return SignalAlert{
		Ticker:       "ACME",
		Entry:        decimal.RequireFromString("100"),
		Target:       decimal.RequireFromString("125"),
		Stop:         decimal.RequireFromString("92.5"),
		PositionSize: decimal.RequireFromString("13.33"),
		RSI:          68.4,
		News:         []string{"Acme wins contract", "Acme raises guidance"},
		EarningsDate: &earnings,
	}
}

func TestTelegramNotifySignalSuccess(t *testing.T) {
	var captured struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken123/sendMessage") {
			t.Fatalf("请求路径不正确: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("请求体解析失败: %v", err)
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token123", "chat456", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.NotifySignal(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("发送不应失败: %v", err)
	}

	if captured.ChatID != "chat456" {
		t.Fatalf("chat_id 不正确: %s", captured.ChatID)
	}
	if captured.ParseMode != "HTML" {
		t.Fatalf("信号消息应使用 HTML 解析模式: %s", captured.ParseMode)
	}
	for _, want := range []string{
		"<b>Signal: ACME</b>",
		"Entry: 100.00",
		"Target (+25%): 125.00",
		"Hard Stop (ATR): 92.50",
		"Position Size: 13.33 shares",
		"- Acme wins contract",
		"Next Earnings: 2026-09-15",
	} {
		if !strings.Contains(captured.Text, want) {
			t.Fatalf("消息缺少片段 %q:\n%s", want, captured.Text)
		}
	}
}

func TestTelegramNotifySignalNoNews(t *testing.T) {
	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		text = payload["text"]
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	alert := sampleAlert()
	alert.News = nil
	alert.EarningsDate = nil

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.NotifySignal(context.Background(), alert); err != nil {
		t.Fatalf("发送不应失败: %v", err)
	}
	if !strings.Contains(text, "- None") {
		t.Fatalf("无新闻时应显示 None:\n%s", text)
	}
	if !strings.Contains(text, "Next Earnings: Unknown") {
		t.Fatalf("无财报日期时应显示 Unknown:\n%s", text)
	}
}

func TestTelegramNotifySignalAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false}`)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.NotifySignal(context.Background(), sampleAlert()); err == nil {
		t.Fatal("ok=false 应返回错误")
	}
}

func TestTelegramNotifySignalHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.NotifySignal(context.Background(), sampleAlert()); err == nil {
		t.Fatal("非 2xx 响应应返回错误")
	}
}

func TestTelegramNotifySystemDown(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.NotifySystemDown(context.Background(), "universe refresh failed"); err != nil {
		t.Fatalf("发送不应失败: %v", err)
	}
	if payload["text"] != "System Down: universe refresh failed" {
		t.Fatalf("系统故障消息不正确: %s", payload["text"])
	}
	if _, ok := payload["parse_mode"]; ok {
		t.Fatal("系统故障消息不应设置 parse_mode")
	}
}
