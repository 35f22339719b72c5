package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const instrumentsPath = "/equity/metadata/instruments"

// RawInstrument is one record as returned by the metadata API. Schedule
// identifiers upstream are inconsistently shaped, hence the alternates.
type RawInstrument struct {
	Ticker            string          `json:"ticker"`
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Type              string          `json:"type"`
	WorkingScheduleID json.RawMessage `json:"workingScheduleId"`
	ScheduleID        json.RawMessage `json:"scheduleId"`
}

// InstrumentFetcher retrieves the raw tradable universe.
type InstrumentFetcher interface {
	FetchInstruments(ctx context.Context) ([]RawInstrument, error)
}

// Options parameterise the metadata client.
type Options struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	UserAgent string
}

// Client calls the broker instrument-metadata API.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a metadata client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://live.trading212.com/api/v1"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "broker_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchInstruments retrieves every listed instrument. A 401 is tagged
// NonRetryable; other failures are Transient.
func (c *Client) FetchInstruments(ctx context.Context) ([]RawInstrument, error) {
	if c.opts.APIKey == "" || c.opts.APISecret == "" {
		return nil, NewError(NonRetryable, errors.New("broker api credentials not configured"))
	}

	endpoint := c.baseURL + instrumentsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewError(NonRetryable, err)
	}
	req.Header.Set("Authorization", "Basic "+c.basicCredentials())
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	c.logger.Info().Str("endpoint", endpoint).Msg("fetching instrument metadata")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewError(Transient, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(Transient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, NewError(NonRetryable, errors.New("broker api unauthorized; check api key and secret"))
	case resp.StatusCode != http.StatusOK:
		return nil, NewError(Transient, parseHTTPError(resp.StatusCode, payload))
	}

	var instruments []RawInstrument
	if err := json.Unmarshal(payload, &instruments); err != nil {
		return nil, NewError(DataInvalid, fmt.Errorf("decode instruments: %w", err))
	}

	c.logger.Info().Int("count", len(instruments)).Msg("instrument metadata fetched")
	return instruments, nil
}

func (c *Client) basicCredentials() string {
	return base64.StdEncoding.EncodeToString([]byte(c.opts.APIKey + ":" + c.opts.APISecret))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("broker api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Code != "" {
			return fmt.Errorf("broker api error (%d): %s", status, apiErr.Code)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("broker api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("broker api error (%d)", status)
}

// NormalizedScheduleID flattens the schedule identifier to an upper-case
// string. Upstream sends either a bare string, a number, or an object with
// an id/name field.
func (r RawInstrument) NormalizedScheduleID() string {
	for _, raw := range []json.RawMessage{r.WorkingScheduleID, r.ScheduleID} {
		if id := normalizeSchedule(raw); id != "" {
			return id
		}
	}
	return ""
}

func normalizeSchedule(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.ToUpper(strings.TrimSpace(s))
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	var obj struct {
		ID   json.RawMessage `json:"id"`
		Name json.RawMessage `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if id := normalizeSchedule(obj.ID); id != "" {
			return id
		}
		return normalizeSchedule(obj.Name)
	}
	return ""
}

// TickerSymbol prefers ticker over symbol, mirroring upstream field drift.
func (r RawInstrument) TickerSymbol() string {
	if r.Ticker != "" {
		return r.Ticker
	}
	return r.Symbol
}

var _ InstrumentFetcher = (*Client)(nil)
