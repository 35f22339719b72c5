package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	chartPathFmt = "/v8/finance/chart/%s"
	searchPath   = "/v1/finance/search"

	maxNewsHeadlines = 3
)

// YahooOptions parameterise the chart-API client.
type YahooOptions struct {
	BaseURL        string
	Timeout        time.Duration
	UserAgent      string
	RequestsPerSec float64
}

// Yahoo fetches daily OHLCV history from the chart API. One request per
// ticker; the limiter paces individual requests while chunk-level pacing is
// the batcher's job.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewYahoo constructs a market-data client.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 2.0
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "marketdata").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// FetchDaily retrieves ascending daily bars for each ticker. Tickers that
// fail or return no data are dropped from the result, not surfaced as
// errors.
func (y *Yahoo) FetchDaily(ctx context.Context, tickers []string, lookbackDays int) (map[string][]PriceBar, error) {
	if lookbackDays <= 0 {
		lookbackDays = 365
	}

	series := make(map[string][]PriceBar, len(tickers))
	for _, ticker := range tickers {
		bars, err := y.fetchChart(ctx, ticker, lookbackDays)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			y.logger.Debug().Err(err).Str("ticker", ticker).Msg("no price history")
			continue
		}
		if len(bars) == 0 {
			continue
		}
		series[ticker] = bars
	}
	return series, nil
}

func (y *Yahoo) fetchChart(ctx context.Context, ticker string, lookbackDays int) ([]PriceBar, error) {
	query := url.Values{}
	query.Set("range", rangeParam(lookbackDays))
	query.Set("interval", "1d")
	query.Set("events", "history")

	var payload chartResponse
	endpoint := y.baseURL + fmt.Sprintf(chartPathFmt, url.PathEscape(ticker)) + "?" + query.Encode()
	if err := y.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("chart api: %s", payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, errors.New("chart api: empty result")
	}

	result := payload.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		// Null quote fields mark holidays/halts; skip the whole bar.
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil || quote.Volume[i] == nil {
			continue
		}
		bars = append(bars, PriceBar{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   *quote.Open[i],
			High:   *quote.High[i],
			Low:    *quote.Low[i],
			Close:  *quote.Close[i],
			Volume: *quote.Volume[i],
		})
	}
	return bars, nil
}

// News returns up to 3 recent headlines. Best effort only.
func (y *Yahoo) News(ctx context.Context, ticker string) ([]string, error) {
	query := url.Values{}
	query.Set("q", ticker)
	query.Set("newsCount", fmt.Sprintf("%d", maxNewsHeadlines))
	query.Set("quotesCount", "0")

	var payload searchResponse
	endpoint := y.baseURL + searchPath + "?" + query.Encode()
	if err := y.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	headlines := make([]string, 0, maxNewsHeadlines)
	for _, item := range payload.News {
		if item.Title == "" {
			continue
		}
		headlines = append(headlines, item.Title)
		if len(headlines) == maxNewsHeadlines {
			break
		}
	}
	return headlines, nil
}

// NextEarnings returns the next scheduled earnings date if published.
func (y *Yahoo) NextEarnings(ctx context.Context, ticker string) (*time.Time, error) {
	query := url.Values{}
	query.Set("modules", "calendarEvents")

	var payload quoteSummaryResponse
	endpoint := y.baseURL + "/v10/finance/quoteSummary/" + url.PathEscape(ticker) + "?" + query.Encode()
	if err := y.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	for _, result := range payload.QuoteSummary.Result {
		for _, raw := range result.CalendarEvents.Earnings.EarningsDate {
			if raw.Raw == 0 {
				continue
			}
			date := time.Unix(raw.Raw, 0).UTC()
			return &date, nil
		}
	}
	return nil, nil
}

func (y *Yahoo) getJSON(ctx context.Context, endpoint string, out any) error {
	if err := y.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market data api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	return json.Unmarshal(payload, out)
}

// rangeParam maps a lookback in days onto the chart API's range buckets.
func rangeParam(lookbackDays int) string {
	switch {
	case lookbackDays <= 365:
		return "1y"
	case lookbackDays <= 730:
		return "2y"
	default:
		return "5y"
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type searchResponse struct {
	News []struct {
		Title string `json:"title"`
	} `json:"news"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			CalendarEvents struct {
				Earnings struct {
					EarningsDate []struct {
						Raw int64 `json:"raw"`
					} `json:"earningsDate"`
				} `json:"earnings"`
			} `json:"calendarEvents"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

var _ Source = (*Yahoo)(nil)
