package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is one scannable equity in the cached universe.
type Instrument struct {
	Ticker         string
	Name           string
	Exchange       string
	InstrumentType string
}

// SignalRecord is the persisted trace of an emitted signal, keyed by
// (ticker, date) for de-duplication.
type SignalRecord struct {
	Ticker    string
	Date      time.Time
	Price     decimal.Decimal
	CreatedAt time.Time
}

// BlacklistEntry excludes a ticker from scanning until Expiry.
type BlacklistEntry struct {
	Ticker    string
	Reason    string
	Expiry    time.Time
	UpdatedAt time.Time
}
