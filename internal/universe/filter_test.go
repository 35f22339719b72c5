package universe

import (
	"encoding/json"
	"testing"

	"momentum-alerts/internal/broker"
)

func rawInstrument(ticker, typ, schedule string) broker.RawInstrument {
	rec := broker.RawInstrument{Ticker: ticker, Name: ticker + " plc", Type: typ}
	if schedule != "" {
		rec.WorkingScheduleID = json.RawMessage(`"` + schedule + `"`)
	}
	return rec
}

func TestFilterKeepsOnlyEquities(t *testing.T) {
	result := Filter([]broker.RawInstrument{
		rawInstrument("AAPL_US", "EQUITY", "US_EQUITY"),
		rawInstrument("GLD_ETF", "ETF", "US_EQUITY"),
		rawInstrument("BTCUSD", "CRYPTO", "US_EQUITY"),
	})

	if len(result.Instruments) != 1 {
		t.Fatalf("只应保留 1 只股票, 实际 %d", len(result.Instruments))
	}
	if result.Instruments[0].Ticker != "AAPL_US" {
		t.Fatalf("unexpected ticker %q", result.Instruments[0].Ticker)
	}
	if result.Instruments[0].Exchange != ExchangeUS {
		t.Fatalf("exchange 应为 %s, 实际 %s", ExchangeUS, result.Instruments[0].Exchange)
	}
}

func TestFilterUnknownScheduleCountedNotGuessed(t *testing.T) {
	result := Filter([]broker.RawInstrument{
		rawInstrument("MYST", "EQUITY", "TOKYO_EQUITY_MORNING"),
		rawInstrument("MYST2", "EQUITY", "TOKYO_EQUITY_MORNING"),
	})

	if len(result.Instruments) != 0 {
		t.Fatalf("未知交易所不应被匹配: %+v", result.Instruments)
	}
	if result.UnknownSchedules["TOKYO_EQUITY_MORNING"] != 2 {
		t.Fatalf("未知 schedule 应被计数: %+v", result.UnknownSchedules)
	}
}

func TestFilterSubstringScheduleMatch(t *testing.T) {
	result := Filter([]broker.RawInstrument{
		rawInstrument("VOD", "EQUITY", "LSE_EQUITY_EXTENDED_V2"),
	})
	if len(result.Instruments) != 1 || result.Instruments[0].Exchange != ExchangeLSE {
		t.Fatalf("子串匹配失败: %+v", result.Instruments)
	}
}

func TestFilterTickerSuffixFallback(t *testing.T) {
	cases := []struct {
		ticker string
		want   string
	}{
		{"VOD.L", ExchangeLSE},
		{"SAP.DE", ExchangeXetra},
		{"TSLA_US_EQ", ExchangeUS},
		{"BARC_LSE", ExchangeLSE},
	}
	for _, tc := range cases {
		result := Filter([]broker.RawInstrument{rawInstrument(tc.ticker, "EQUITY", "")})
		if len(result.Instruments) != 1 {
			t.Fatalf("%s 应通过后缀推断匹配", tc.ticker)
		}
		if got := result.Instruments[0].Exchange; got != tc.want {
			t.Fatalf("%s 应映射到 %s, 实际 %s", tc.ticker, tc.want, got)
		}
	}
}

func TestFilterObjectShapedSchedule(t *testing.T) {
	rec := broker.RawInstrument{
		Ticker:            "AAPL_US",
		Name:              "Apple",
		Type:              "EQUITY",
		WorkingScheduleID: json.RawMessage(`{"id":"us_equity"}`),
	}
	result := Filter([]broker.RawInstrument{rec})
	if len(result.Instruments) != 1 || result.Instruments[0].Exchange != ExchangeUS {
		t.Fatalf("对象形态的 schedule 应被展开: %+v", result)
	}
}

func TestFilterDropsMissingTickerAndDefaultsName(t *testing.T) {
	noTicker := broker.RawInstrument{Type: "EQUITY", WorkingScheduleID: json.RawMessage(`"US_EQUITY"`)}
	noName := broker.RawInstrument{Ticker: "XYZ_US", Type: "EQUITY", WorkingScheduleID: json.RawMessage(`"US_EQUITY"`)}

	result := Filter([]broker.RawInstrument{noTicker, noName})
	if len(result.Instruments) != 1 {
		t.Fatalf("无代码的记录应被丢弃: %+v", result.Instruments)
	}
	if result.Instruments[0].Name != "Unknown" {
		t.Fatalf("缺失名称应回退为 Unknown, 实际 %q", result.Instruments[0].Name)
	}
}
