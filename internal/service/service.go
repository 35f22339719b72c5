package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"momentum-alerts/internal/alerting"
	"momentum-alerts/internal/config"
	"momentum-alerts/internal/marketdata"
	"momentum-alerts/internal/scanner"
	"momentum-alerts/internal/scheduler"
	"momentum-alerts/internal/storage"
)

// UniverseSource provides the filtered instrument universe.
type UniverseSource interface {
	GetUniverse(ctx context.Context) ([]storage.Instrument, error)
}

// Pipeline orchestrates a scan run: universe load, eligibility filtering,
// batched scanning, duplicate gating, notification, and ledger recording.
type Pipeline struct {
	scheduler *scheduler.Scheduler
	universe  UniverseSource
	market    marketdata.Source
	engine    *scanner.Engine
	batcher   *scanner.Batcher
	ledger    storage.SignalLedger
	blacklist storage.BlacklistStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	cooldownDays int
	lookbackDays int
	alertsOn     bool
	locker       storage.AdvisoryLocker
	lockKey      int64
}

// New constructs the scan pipeline.
func New(cfg *config.Config, sched *scheduler.Scheduler, universe UniverseSource, market marketdata.Source, engine *scanner.Engine, batcher *scanner.Batcher, ledger storage.SignalLedger, blacklist storage.BlacklistStore, notifier alerting.Notifier, logger zerolog.Logger) *Pipeline {
	var locker storage.AdvisoryLocker
	if l, ok := ledger.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Pipeline{
		scheduler:    sched,
		universe:     universe,
		market:       market,
		engine:       engine,
		batcher:      batcher,
		ledger:       ledger,
		blacklist:    blacklist,
		notifier:     notifier,
		logger:       logger.With().Str("component", "pipeline").Logger(),
		cooldownDays: cfg.Scanner.CooldownDays,
		lookbackDays: cfg.MarketData.LookbackDays,
		alertsOn:     cfg.Alerting.Enabled,
		locker:       locker,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the scheduled scan loop.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return p.scheduler.Run(ctx, p.ProcessRun)
}

// ProcessRun 执行单次扫描。持有方锁失败时直接跳过本轮。
func (p *Pipeline) ProcessRun(ctx context.Context, runDate time.Time) error {
	unlock, proceed, err := p.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		p.logger.Debug().Time("run", runDate).Msg("skip run because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	runID := uuid.NewString()
	logger := p.logger.With().Str("run_id", runID).Logger()

	runErr := p.executeRun(ctx, runDate, logger)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		p.reportSystemDown(fmt.Errorf("run %s: %w", runID, runErr))
	}
	return runErr
}

func (p *Pipeline) executeRun(ctx context.Context, runDate time.Time, logger zerolog.Logger) error {
	instruments, err := p.universe.GetUniverse(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}
	if len(instruments) == 0 {
		logger.Warn().Msg("universe is empty, nothing to scan")
		return nil
	}

	// Cheap local eligibility before any market-data spend.
	eligible, err := p.filterEligible(ctx, instruments)
	if err != nil {
		return err
	}
	logger.Info().
		Int("universe", len(instruments)).
		Int("eligible", len(eligible)).
		Msg("eligibility filter applied")

	signals, err := p.batchScan(ctx, eligible, logger)
	if err != nil {
		return err
	}
	logger.Info().Int("signals", len(signals)).Msg("batch scan complete")

	emitted := 0
	for _, sig := range signals {
		sent, err := p.emit(ctx, sig, runDate, logger)
		if err != nil {
			return err
		}
		if sent {
			emitted++
		}
	}

	logger.Info().Int("emitted", emitted).Int("qualified", len(signals)).Msg("scan run complete")
	return nil
}

// filterEligible drops blacklisted tickers and those still inside the
// cooldown window. Ledger errors are fatal: there is no safe partial mode
// when the store is unreachable.
func (p *Pipeline) filterEligible(ctx context.Context, instruments []storage.Instrument) ([]string, error) {
	eligible := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		blacklisted, err := p.blacklist.IsBlacklisted(ctx, inst.Ticker)
		if err != nil {
			return nil, fmt.Errorf("blacklist check for %s: %w", inst.Ticker, err)
		}
		if blacklisted {
			continue
		}

		alerted, err := p.ledger.WasAlertedRecently(ctx, inst.Ticker, p.cooldownDays)
		if err != nil {
			return nil, fmt.Errorf("cooldown check for %s: %w", inst.Ticker, err)
		}
		if alerted {
			continue
		}
		eligible = append(eligible, inst.Ticker)
	}
	return eligible, nil
}

func (p *Pipeline) batchScan(ctx context.Context, tickers []string, logger zerolog.Logger) ([]*scanner.Signal, error) {
	signals := make([]*scanner.Signal, 0)
	err := p.batcher.ForEachChunk(ctx, tickers, func(ctx context.Context, chunk []string) error {
		logger.Info().Int("tickers", len(chunk)).Msg("fetching market data for chunk")
		series, err := p.market.FetchDaily(ctx, chunk, p.lookbackDays)
		if err != nil {
			return fmt.Errorf("fetch market data: %w", err)
		}

		for _, ticker := range chunk {
			bars, ok := series[ticker]
			if !ok || len(bars) == 0 {
				logger.Debug().Str("ticker", ticker).Msg("no data for ticker")
				continue
			}
			sig := p.engine.Evaluate(ticker, bars)
			if sig == nil {
				continue
			}
			p.attachContext(ctx, sig, logger)
			signals = append(signals, sig)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return signals, nil
}

// attachContext adds news headlines and the next earnings date. Best
// effort: lookup failures never reject the signal.
func (p *Pipeline) attachContext(ctx context.Context, sig *scanner.Signal, logger zerolog.Logger) {
	news, err := p.market.News(ctx, sig.Ticker)
	if err != nil {
		logger.Warn().Err(err).Str("ticker", sig.Ticker).Msg("news lookup failed")
	} else {
		sig.News = news
	}

	earnings, err := p.market.NextEarnings(ctx, sig.Ticker)
	if err != nil {
		logger.Warn().Err(err).Str("ticker", sig.Ticker).Msg("earnings lookup failed")
	} else {
		sig.EarningsDate = earnings
	}
}

// emit records and delivers one signal. The same-day dedup gate is
// re-checked here to defend against concurrent runs; the ledger write lands
// before delivery so a failed notification cannot cause a re-alert.
func (p *Pipeline) emit(ctx context.Context, sig *scanner.Signal, runDate time.Time, logger zerolog.Logger) (bool, error) {
	already, err := p.ledger.AlertedOn(ctx, sig.Ticker, runDate)
	if err != nil {
		return false, fmt.Errorf("dedup check for %s: %w", sig.Ticker, err)
	}
	if already {
		logger.Info().Str("ticker", sig.Ticker).Msg("skipping duplicate signal")
		return false, nil
	}

	rec := storage.SignalRecord{
		Ticker: sig.Ticker,
		Date:   runDate,
		Price:  sig.Entry,
	}
	if err := p.ledger.RecordSignal(ctx, rec); err != nil {
		return false, fmt.Errorf("record signal for %s: %w", sig.Ticker, err)
	}

	if !p.alertsOn || p.notifier == nil {
		return true, nil
	}

	alert := alerting.SignalAlert{
		Ticker:       sig.Ticker,
		Entry:        sig.Entry,
		Target:       sig.Target,
		Stop:         sig.Stop,
		PositionSize: sig.PositionSize,
		RSI:          sig.RSI,
		News:         sig.News,
		EarningsDate: sig.EarningsDate,
	}
	if err := p.notifier.NotifySignal(ctx, alert); err != nil {
		// Already on the ledger; the user misses one message rather than
		// the run aborting.
		logger.Error().Err(err).Str("ticker", sig.Ticker).Msg("failed to dispatch alert")
	}
	return true, nil
}

// reportSystemDown sends the terminal "system down" notification. Delivery
// here is best effort; it must not mask the original error.
func (p *Pipeline) reportSystemDown(runErr error) {
	if !p.alertsOn || p.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.notifier.NotifySystemDown(ctx, runErr.Error()); err != nil {
		p.logger.Error().Err(err).Msg("failed to dispatch system-down alert")
	}
}

func (p *Pipeline) acquireLock(ctx context.Context) (func(), bool, error) {
	if p.lockKey == 0 || p.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := p.locker.TryAdvisoryLock(ctx, p.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
