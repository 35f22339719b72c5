package universe

import (
	"strings"

	"momentum-alerts/internal/broker"
	"momentum-alerts/internal/storage"
)

const equityType = "EQUITY"

// Exchange labels for the supported (ISA-eligible) venues.
const (
	ExchangeUS    = "NYSE/NASDAQ"
	ExchangeLSE   = "LSE"
	ExchangeXetra = "XETRA"
)

// scheduleExchanges maps exact working-schedule identifiers to venues.
var scheduleExchanges = map[string]string{
	"US_EQUITY":    ExchangeUS,
	"LSE_EQUITY":   ExchangeLSE,
	"XETRA_EQUITY": ExchangeXetra,
}

// FilterResult carries the filtered universe plus diagnostics about records
// that could not be mapped to a supported venue.
type FilterResult struct {
	Instruments      []storage.Instrument
	UnknownSchedules map[string]int
}

// Filter keeps equities on supported exchanges. Instruments whose schedule
// identifier cannot be mapped are excluded and counted, never guessed.
func Filter(raw []broker.RawInstrument) FilterResult {
	result := FilterResult{
		Instruments:      make([]storage.Instrument, 0, len(raw)),
		UnknownSchedules: make(map[string]int),
	}

	for _, rec := range raw {
		if rec.Type != equityType {
			continue
		}
		ticker := rec.TickerSymbol()
		if ticker == "" {
			continue
		}

		exchange := inferExchange(rec.NormalizedScheduleID(), ticker)
		if exchange == "" {
			if id := rec.NormalizedScheduleID(); id != "" {
				result.UnknownSchedules[id]++
			}
			continue
		}

		name := rec.Name
		if name == "" {
			name = "Unknown"
		}
		result.Instruments = append(result.Instruments, storage.Instrument{
			Ticker:         ticker,
			Name:           name,
			Exchange:       exchange,
			InstrumentType: rec.Type,
		})
	}

	return result
}

// inferExchange resolves the venue from the schedule identifier, falling
// back to ticker-suffix heuristics. Upstream identifiers are not stable
// across API generations, so exact match, substring match, and embedded
// exchange tokens are all accepted.
func inferExchange(scheduleID, ticker string) string {
	if exchange, ok := scheduleExchanges[scheduleID]; ok {
		return exchange
	}
	if scheduleID != "" {
		for key, exchange := range scheduleExchanges {
			if strings.Contains(scheduleID, key) {
				return exchange
			}
		}
		switch {
		case strings.Contains(scheduleID, "LSE"):
			return ExchangeLSE
		case strings.Contains(scheduleID, "XETR"), strings.Contains(scheduleID, "XET"):
			return ExchangeXetra
		case strings.Contains(scheduleID, "NYSE"), strings.Contains(scheduleID, "NASDAQ"), strings.Contains(scheduleID, "US"):
			return ExchangeUS
		}
	}

	upper := strings.ToUpper(ticker)
	switch {
	case strings.HasSuffix(upper, ".L"), strings.Contains(upper, "_LSE"):
		return ExchangeLSE
	case strings.HasSuffix(upper, ".DE"), strings.Contains(upper, "_XETRA"), strings.Contains(upper, "_XET"):
		return ExchangeXetra
	case strings.Contains(upper, "_US"), strings.Contains(upper, "_NYSE"), strings.Contains(upper, "_NASDAQ"):
		return ExchangeUS
	}
	return ""
}
