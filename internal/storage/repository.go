package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS universe (
        ticker          TEXT PRIMARY KEY,
        name            TEXT NOT NULL DEFAULT '',
        exchange        TEXT NOT NULL,
        instrument_type TEXT NOT NULL DEFAULT 'EQUITY'
    );
    CREATE TABLE IF NOT EXISTS universe_meta (
        id           SMALLINT PRIMARY KEY DEFAULT 1,
        refreshed_at TIMESTAMPTZ NOT NULL,
        CHECK (id = 1)
    );
    CREATE TABLE IF NOT EXISTS signals (
        ticker      TEXT NOT NULL,
        signal_date DATE NOT NULL,
        price       NUMERIC NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (ticker, signal_date)
    );
    CREATE TABLE IF NOT EXISTS blacklist (
        ticker      TEXT PRIMARY KEY,
        reason      TEXT NOT NULL DEFAULT '',
        expiry_date TIMESTAMPTZ NOT NULL,
        updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertSignalSQL = `INSERT INTO signals (ticker, signal_date, price)
    VALUES ($1, $2, $3)
    ON CONFLICT (ticker, signal_date) DO UPDATE
    SET price = EXCLUDED.price;`

	wasAlertedSinceSQL = `SELECT EXISTS (
        SELECT 1 FROM signals WHERE ticker = $1 AND signal_date > $2
    );`

	alertedOnSQL = `SELECT EXISTS (
        SELECT 1 FROM signals WHERE ticker = $1 AND signal_date = $2
    );`

	listRecentSignalsSQL = `SELECT ticker, signal_date, price, created_at
    FROM signals
    ORDER BY signal_date DESC, ticker
    LIMIT $1;`

	listSignalsBetweenSQL = `SELECT ticker, signal_date, price, created_at
    FROM signals
    WHERE signal_date >= $1 AND signal_date < $2
    ORDER BY signal_date, ticker;`

	isBlacklistedSQL = `SELECT EXISTS (
        SELECT 1 FROM blacklist WHERE ticker = $1 AND expiry_date > $2
    );`

	upsertBlacklistSQL = `INSERT INTO blacklist (ticker, reason, expiry_date, updated_at)
    VALUES ($1, $2, $3, now())
    ON CONFLICT (ticker) DO UPDATE
    SET reason      = EXCLUDED.reason,
        expiry_date = EXCLUDED.expiry_date,
        updated_at  = now();`

	removeBlacklistSQL = `DELETE FROM blacklist WHERE ticker = $1;`

	listBlacklistSQL = `SELECT ticker, reason, expiry_date, updated_at
    FROM blacklist
    ORDER BY ticker;`

	deleteUniverseSQL = `DELETE FROM universe;`

	insertInstrumentSQL = `INSERT INTO universe (ticker, name, exchange, instrument_type)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (ticker) DO UPDATE
    SET name            = EXCLUDED.name,
        exchange        = EXCLUDED.exchange,
        instrument_type = EXCLUDED.instrument_type;`

	upsertUniverseMetaSQL = `INSERT INTO universe_meta (id, refreshed_at)
    VALUES (1, $1)
    ON CONFLICT (id) DO UPDATE SET refreshed_at = EXCLUDED.refreshed_at;`

	loadUniverseSQL = `SELECT ticker, name, exchange, instrument_type
    FROM universe
    ORDER BY ticker;`

	loadUniverseMetaSQL = `SELECT refreshed_at FROM universe_meta WHERE id = 1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SignalLedger answers cooldown/dedup queries and records emitted signals.
type SignalLedger interface {
	WasAlertedRecently(ctx context.Context, ticker string, cooldownDays int) (bool, error)
	AlertedOn(ctx context.Context, ticker string, date time.Time) (bool, error)
	RecordSignal(ctx context.Context, rec SignalRecord) error
	ListRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error)
	ListSignalsBetween(ctx context.Context, from, to time.Time) ([]SignalRecord, error)
}

// BlacklistStore manages explicit ticker exclusions.
type BlacklistStore interface {
	IsBlacklisted(ctx context.Context, ticker string) (bool, error)
	UpsertBlacklist(ctx context.Context, entry BlacklistEntry) error
	RemoveBlacklist(ctx context.Context, ticker string) error
	ListBlacklist(ctx context.Context) ([]BlacklistEntry, error)
}

// UniverseStore persists the filtered instrument universe wholesale.
type UniverseStore interface {
	ReplaceUniverse(ctx context.Context, instruments []Instrument, refreshedAt time.Time) error
	LoadUniverse(ctx context.Context) ([]Instrument, time.Time, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to the ledger, blacklist, and universe cache.
type Store struct {
	pool *pgxpool.Pool
	// now is swappable in tests.
	now func() time.Time
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// RecordSignal upserts the (ticker, date) ledger entry. Duplicate calls for
// the same ticker/day overwrite the price and leave a single row.
func (s *Store) RecordSignal(ctx context.Context, rec SignalRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	date := rec.Date.UTC().Truncate(24 * time.Hour)
	if _, execErr := pool.Exec(ctx, upsertSignalSQL, rec.Ticker, date, rec.Price.String()); execErr != nil {
		return fmt.Errorf("record signal: %w", execErr)
	}
	return nil
}

// WasAlertedRecently reports whether the ticker alerted inside the cooldown
// window.
func (s *Store) WasAlertedRecently(ctx context.Context, ticker string, cooldownDays int) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	since := s.now().UTC().AddDate(0, 0, -cooldownDays)
	var alerted bool
	if scanErr := pool.QueryRow(ctx, wasAlertedSinceSQL, ticker, since).Scan(&alerted); scanErr != nil {
		return false, fmt.Errorf("was alerted recently: %w", scanErr)
	}
	return alerted, nil
}

// AlertedOn reports whether the ticker already has a ledger entry for date.
func (s *Store) AlertedOn(ctx context.Context, ticker string, date time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var alerted bool
	day := date.UTC().Truncate(24 * time.Hour)
	if scanErr := pool.QueryRow(ctx, alertedOnSQL, ticker, day).Scan(&alerted); scanErr != nil {
		return false, fmt.Errorf("alerted on: %w", scanErr)
	}
	return alerted, nil
}

// ListRecentSignals lists the most recent ledger entries.
func (s *Store) ListRecentSignals(ctx context.Context, limit int) ([]SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSignalsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent signals: %w", queryErr)
	}
	defer rows.Close()

	return scanSignalRecords(rows)
}

// ListSignalsBetween lists ledger entries within [from, to).
func (s *Store) ListSignalsBetween(ctx context.Context, from, to time.Time) ([]SignalRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSignalsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list signals between: %w", queryErr)
	}
	defer rows.Close()

	return scanSignalRecords(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSignalRecords(rows pgxRows) ([]SignalRecord, error) {
	records := make([]SignalRecord, 0)
	for rows.Next() {
		var rec SignalRecord
		var priceStr string
		if err := rows.Scan(&rec.Ticker, &rec.Date, &priceStr, &rec.CreatedAt); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse signal price: %w", convErr)
		}
		rec.Price = price
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// IsBlacklisted is true only while an entry exists with a future expiry.
func (s *Store) IsBlacklisted(ctx context.Context, ticker string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var blacklisted bool
	if scanErr := pool.QueryRow(ctx, isBlacklistedSQL, ticker, s.now().UTC()).Scan(&blacklisted); scanErr != nil {
		return false, fmt.Errorf("is blacklisted: %w", scanErr)
	}
	return blacklisted, nil
}

// UpsertBlacklist adds or refreshes a blacklist entry.
func (s *Store) UpsertBlacklist(ctx context.Context, entry BlacklistEntry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertBlacklistSQL, entry.Ticker, entry.Reason, entry.Expiry.UTC()); execErr != nil {
		return fmt.Errorf("upsert blacklist: %w", execErr)
	}
	return nil
}

// RemoveBlacklist deletes a blacklist entry if present.
func (s *Store) RemoveBlacklist(ctx context.Context, ticker string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, removeBlacklistSQL, ticker); execErr != nil {
		return fmt.Errorf("remove blacklist: %w", execErr)
	}
	return nil
}

// ListBlacklist lists all blacklist entries, expired included.
func (s *Store) ListBlacklist(ctx context.Context) ([]BlacklistEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listBlacklistSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list blacklist: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]BlacklistEntry, 0)
	for rows.Next() {
		var entry BlacklistEntry
		if err := rows.Scan(&entry.Ticker, &entry.Reason, &entry.Expiry, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// ReplaceUniverse swaps the cached universe in one transaction so readers
// never observe a partially written snapshot.
func (s *Store) ReplaceUniverse(ctx context.Context, instruments []Instrument, refreshedAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin universe replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, deleteUniverseSQL); err != nil {
		return fmt.Errorf("clear universe: %w", err)
	}
	for _, inst := range instruments {
		if _, err := tx.Exec(ctx, insertInstrumentSQL, inst.Ticker, inst.Name, inst.Exchange, inst.InstrumentType); err != nil {
			return fmt.Errorf("insert instrument %s: %w", inst.Ticker, err)
		}
	}
	if _, err := tx.Exec(ctx, upsertUniverseMetaSQL, refreshedAt.UTC()); err != nil {
		return fmt.Errorf("update universe meta: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit universe replace: %w", err)
	}
	return nil
}

// LoadUniverse returns the cached universe and its refresh timestamp. A
// zero timestamp means no snapshot has ever been written.
func (s *Store) LoadUniverse(ctx context.Context) ([]Instrument, time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, time.Time{}, err
	}

	var refreshedAt time.Time
	if scanErr := pool.QueryRow(ctx, loadUniverseMetaSQL).Scan(&refreshedAt); scanErr != nil {
		// No meta row yet: treat as an absent snapshot rather than an error.
		refreshedAt = time.Time{}
	}

	rows, queryErr := pool.Query(ctx, loadUniverseSQL)
	if queryErr != nil {
		return nil, time.Time{}, fmt.Errorf("load universe: %w", queryErr)
	}
	defer rows.Close()

	instruments := make([]Instrument, 0)
	for rows.Next() {
		var inst Instrument
		if err := rows.Scan(&inst.Ticker, &inst.Name, &inst.Exchange, &inst.InstrumentType); err != nil {
			return nil, time.Time{}, err
		}
		instruments = append(instruments, inst)
	}
	if rows.Err() != nil {
		return nil, time.Time{}, rows.Err()
	}
	return instruments, refreshedAt, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}
