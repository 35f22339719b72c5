package marketdata

import (
	"context"
	"time"
)

// PriceBar is one daily OHLCV observation.
type PriceBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Source retrieves daily price history and advisory context. FetchDaily may
// return partial results; tickers without data are absent from the map.
type Source interface {
	FetchDaily(ctx context.Context, tickers []string, lookbackDays int) (map[string][]PriceBar, error)
	News(ctx context.Context, ticker string) ([]string, error)
	NextEarnings(ctx context.Context, ticker string) (*time.Time, error)
}
