package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testYahoo(baseURL string) *Yahoo {
	return NewYahoo(YahooOptions{
		BaseURL:        baseURL,
		Timeout:        time.Second,
		UserAgent:      "test",
		RequestsPerSec: 1000,
	}, zerolog.Nop())
}

func chartBody() string {
	return `{"chart":{"result":[{
        "timestamp":[1700000000,1700086400,1700172800],
        "indicators":{"quote":[{
            "open":[10,11,null],
            "high":[12,13,14],
            "low":[9,10,11],
            "close":[11,12,13],
            "volume":[1000,2000,3000]
        }]}
    }],"error":null}}`
}

func TestFetchDailyParsesBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/v8/finance/chart/") {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		fmt.Fprint(w, chartBody())
	}))
	defer srv.Close()

	series, err := testYahoo(srv.URL).FetchDaily(context.Background(), []string{"ACME"}, 365)
	if err != nil {
		t.Fatalf("FetchDaily 不应报错: %v", err)
	}

	bars := series["ACME"]
	// The third bar has a null open and must be skipped whole.
	if len(bars) != 2 {
		t.Fatalf("应返回 2 根有效 K 线, 实际 %d", len(bars))
	}
	if bars[0].Close != 11 || bars[1].Close != 12 {
		t.Fatalf("收盘价解析错误: %+v", bars)
	}
	if !bars[0].Date.Before(bars[1].Date) {
		t.Fatal("K 线应按日期升序")
	}
}

func TestFetchDailyDropsFailedTickers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "BAD") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, chartBody())
	}))
	defer srv.Close()

	series, err := testYahoo(srv.URL).FetchDaily(context.Background(), []string{"GOOD", "BAD"}, 365)
	if err != nil {
		t.Fatalf("部分失败不应中断批次: %v", err)
	}
	if _, ok := series["GOOD"]; !ok {
		t.Fatal("成功的代码应在结果中")
	}
	if _, ok := series["BAD"]; ok {
		t.Fatal("失败的代码应被静默丢弃")
	}
}

func TestFetchDailyChartAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":{"code":"Not Found","description":"no data"}}}`)
	}))
	defer srv.Close()

	series, err := testYahoo(srv.URL).FetchDaily(context.Background(), []string{"GONE"}, 365)
	if err != nil {
		t.Fatalf("API 级错误应按缺数据处理: %v", err)
	}
	if len(series) != 0 {
		t.Fatalf("无数据时结果应为空: %+v", series)
	}
}

func TestNewsLimitsHeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"news":[
            {"title":"one"},{"title":""},{"title":"two"},{"title":"three"},{"title":"four"}
        ]}`)
	}))
	defer srv.Close()

	news, err := testYahoo(srv.URL).News(context.Background(), "ACME")
	if err != nil {
		t.Fatalf("News 不应报错: %v", err)
	}
	if len(news) != 3 {
		t.Fatalf("最多返回 3 条标题, 实际 %d", len(news))
	}
	if news[0] != "one" || news[1] != "two" || news[2] != "three" {
		t.Fatalf("空标题应被跳过: %v", news)
	}
}

func TestNextEarnings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteSummary":{"result":[{
            "calendarEvents":{"earnings":{"earningsDate":[{"raw":1700000000}]}}
        }]}}`)
	}))
	defer srv.Close()

	date, err := testYahoo(srv.URL).NextEarnings(context.Background(), "ACME")
	if err != nil {
		t.Fatalf("NextEarnings 不应报错: %v", err)
	}
	if date == nil || date.Unix() != 1700000000 {
		t.Fatalf("财报日期解析错误: %v", date)
	}
}

func TestNextEarningsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteSummary":{"result":[]}}`)
	}))
	defer srv.Close()

	date, err := testYahoo(srv.URL).NextEarnings(context.Background(), "ACME")
	if err != nil {
		t.Fatalf("无财报安排不应报错: %v", err)
	}
	if date != nil {
		t.Fatalf("无数据时应返回 nil, 实际 %v", date)
	}
}
