package universe

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"momentum-alerts/internal/broker"
	"momentum-alerts/internal/retry"
	"momentum-alerts/internal/storage"
)

// Options tune cache behaviour.
type Options struct {
	MaxAge time.Duration
	// ServeStale keeps a run alive on an expired snapshot when the
	// upstream refresh fails. When false the refresh error surfaces.
	ServeStale bool
}

// Cache serves the filtered instrument universe, refreshing from the broker
// when the persisted snapshot is missing, empty, or older than MaxAge.
type Cache struct {
	opts    Options
	fetcher broker.InstrumentFetcher
	store   storage.UniverseStore
	policy  retry.Policy
	logger  zerolog.Logger
	now     func() time.Time
}

// NewCache constructs a universe cache.
func NewCache(opts Options, fetcher broker.InstrumentFetcher, store storage.UniverseStore, policy retry.Policy, logger zerolog.Logger) *Cache {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * 24 * time.Hour
	}
	return &Cache{
		opts:    opts,
		fetcher: fetcher,
		store:   store,
		policy:  policy,
		logger:  logger.With().Str("component", "universe_cache").Logger(),
		now:     time.Now,
	}
}

// GetUniverse returns the cached universe, refreshing when stale. An empty
// cached snapshot is treated as invalid and forces a refresh.
func (c *Cache) GetUniverse(ctx context.Context) ([]storage.Instrument, error) {
	cached, refreshedAt, err := c.store.LoadUniverse(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cached universe: %w", err)
	}

	age := c.now().UTC().Sub(refreshedAt)
	if !refreshedAt.IsZero() && age < c.opts.MaxAge && len(cached) > 0 {
		c.logger.Info().Int("instruments", len(cached)).Dur("age", age).Msg("serving cached universe")
		return cached, nil
	}
	if !refreshedAt.IsZero() && len(cached) == 0 {
		c.logger.Warn().Msg("cached universe snapshot is empty, forcing refresh")
	}

	fresh, refreshErr := c.refresh(ctx)
	if refreshErr == nil {
		return fresh, nil
	}

	if c.opts.ServeStale && len(cached) > 0 {
		c.logger.Warn().Err(refreshErr).
			Dur("age", age).
			Int("instruments", len(cached)).
			Msg("universe refresh failed, serving stale snapshot")
		return cached, nil
	}
	return nil, refreshErr
}

func (c *Cache) refresh(ctx context.Context) ([]storage.Instrument, error) {
	var raw []broker.RawInstrument
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		raw, fetchErr = c.fetcher.FetchInstruments(ctx)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("refresh universe: %w", err)
	}

	result := Filter(raw)
	c.logger.Info().
		Int("raw", len(raw)).
		Int("filtered", len(result.Instruments)).
		Msg("universe filtered")

	if len(result.Instruments) == 0 {
		c.logUnknownSchedules(result.UnknownSchedules)
		// Do not overwrite a possibly useful snapshot with nothing.
		return nil, fmt.Errorf("universe filter matched zero instruments")
	}

	if err := c.store.ReplaceUniverse(ctx, result.Instruments, c.now().UTC()); err != nil {
		return nil, fmt.Errorf("persist universe snapshot: %w", err)
	}
	return result.Instruments, nil
}

func (c *Cache) logUnknownSchedules(unknown map[string]int) {
	if len(unknown) == 0 {
		return
	}
	type entry struct {
		id    string
		count int
	}
	entries := make([]entry, 0, len(unknown))
	for id, count := range unknown {
		entries = append(entries, entry{id: id, count: count})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].count > entries[j].count })
	if len(entries) > 5 {
		entries = entries[:5]
	}
	evt := c.logger.Warn()
	for _, e := range entries {
		evt = evt.Int(e.id, e.count)
	}
	evt.Msg("unknown working-schedule identifiers")
}
