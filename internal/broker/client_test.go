package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:   baseURL,
		APIKey:    "key",
		APISecret: "secret",
		Timeout:   time.Second,
		UserAgent: "test",
	}, zerolog.Nop())
}

func TestFetchInstrumentsMissingCredentials(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://localhost"}, zerolog.Nop())
	_, err := c.FetchInstruments(context.Background())
	if err == nil {
		t.Fatal("缺少凭证时应返回错误")
	}
	if KindOf(err) != NonRetryable {
		t.Fatalf("缺少凭证应为 NonRetryable, 实际 %s", KindOf(err))
	}
}

func TestFetchInstrumentsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchInstruments(context.Background())
	if err == nil {
		t.Fatal("401 应返回错误")
	}
	if KindOf(err) != NonRetryable {
		t.Fatalf("401 应为 NonRetryable, 实际 %s", KindOf(err))
	}
}

func TestFetchInstrumentsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "try later"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchInstruments(context.Background())
	if err == nil {
		t.Fatal("500 应返回错误")
	}
	if KindOf(err) != Transient {
		t.Fatalf("500 应为 Transient, 实际 %s", KindOf(err))
	}
}

func TestFetchInstrumentsMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchInstruments(context.Background())
	if err == nil {
		t.Fatal("非法负载应返回错误")
	}
	if KindOf(err) != DataInvalid {
		t.Fatalf("非法负载应为 DataInvalid, 实际 %s", KindOf(err))
	}
}

func TestFetchInstrumentsSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if !strings.HasSuffix(r.URL.Path, "/equity/metadata/instruments") {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[
            {"ticker":"AAPL_US","name":"Apple","type":"EQUITY","workingScheduleId":"US_EQUITY"},
            {"ticker":"VOD_LSE","name":"Vodafone","type":"EQUITY","workingScheduleId":{"id":"LSE_EQUITY"}}
        ]`))
	}))
	defer srv.Close()

	instruments, err := testClient(srv.URL).FetchInstruments(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(instruments) != 2 {
		t.Fatalf("应返回 2 条记录, 实际 %d", len(instruments))
	}
	if !strings.HasPrefix(gotAuth, "Basic ") {
		t.Fatalf("应使用 Basic 认证, 实际 %q", gotAuth)
	}
	if got := instruments[0].NormalizedScheduleID(); got != "US_EQUITY" {
		t.Fatalf("字符串形态 schedule 解析失败: %q", got)
	}
	if got := instruments[1].NormalizedScheduleID(); got != "LSE_EQUITY" {
		t.Fatalf("对象形态 schedule 解析失败: %q", got)
	}
}

func TestTickerSymbolFallback(t *testing.T) {
	rec := RawInstrument{Symbol: "AAPL"}
	if rec.TickerSymbol() != "AAPL" {
		t.Fatal("ticker 缺失时应回退到 symbol")
	}
	rec.Ticker = "AAPL_US"
	if rec.TickerSymbol() != "AAPL_US" {
		t.Fatal("ticker 存在时应优先使用 ticker")
	}
}
