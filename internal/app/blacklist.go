package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"momentum-alerts/internal/storage"
)

// BlacklistAdd excludes a ticker from scanning until expiry.
func (a *App) BlacklistAdd(ctx context.Context, ticker, reason string, days int) error {
	if ticker == "" {
		return errors.New("ticker is required")
	}
	if days <= 0 {
		return errors.New("--days must be greater than zero")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	entry := storage.BlacklistEntry{
		Ticker: ticker,
		Reason: reason,
		Expiry: time.Now().UTC().AddDate(0, 0, days),
	}
	if err := store.UpsertBlacklist(ctx, entry); err != nil {
		return err
	}
	a.Logger.Info().Str("ticker", ticker).Time("expiry", entry.Expiry).Msg("ticker blacklisted")
	return nil
}

// BlacklistRemove lifts a blacklist entry early.
func (a *App) BlacklistRemove(ctx context.Context, ticker string) error {
	if ticker == "" {
		return errors.New("ticker is required")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.RemoveBlacklist(ctx, ticker); err != nil {
		return err
	}
	a.Logger.Info().Str("ticker", ticker).Msg("ticker removed from blacklist")
	return nil
}

// BlacklistList prints all blacklist entries, expired ones included.
func (a *App) BlacklistList(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	entries, err := store.ListBlacklist(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "blacklist is empty")
		return nil
	}

	now := time.Now().UTC()
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Ticker\tReason\tExpiry (UTC)\tActive")
	for _, entry := range entries {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%t\n",
			entry.Ticker,
			entry.Reason,
			entry.Expiry.UTC().Format("2006-01-02"),
			entry.Expiry.After(now),
		)
	}
	return writer.Flush()
}
