package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"momentum-alerts/internal/alerting"
	"momentum-alerts/internal/broker"
	"momentum-alerts/internal/config"
	"momentum-alerts/internal/marketdata"
	"momentum-alerts/internal/retry"
	"momentum-alerts/internal/scanner"
	"momentum-alerts/internal/scheduler"
	"momentum-alerts/internal/service"
	"momentum-alerts/internal/storage"
	"momentum-alerts/internal/universe"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newPipeline(store *storage.Store, sched *scheduler.Scheduler) *service.Pipeline {
	brokerClient := broker.NewClient(broker.Options{
		BaseURL:   a.Config.Broker.BaseURL,
		APIKey:    a.Config.Broker.APIKey,
		APISecret: a.Config.Broker.APISecret,
		Timeout:   a.Config.Broker.RequestTimeout,
		UserAgent: a.Config.Broker.UserAgent,
	}, a.Logger)

	policy := retry.NewPolicy(a.Config.Broker.MaxAttempts, a.Config.Broker.RetryBaseDelay, a.Logger)

	cache := universe.NewCache(universe.Options{
		MaxAge:     a.Config.Universe.MaxAge,
		ServeStale: a.Config.Universe.ServeStale,
	}, brokerClient, store, policy, a.Logger)

	market := marketdata.NewYahoo(marketdata.YahooOptions{
		BaseURL:        a.Config.MarketData.BaseURL,
		Timeout:        a.Config.MarketData.RequestTimeout,
		UserAgent:      a.Config.MarketData.UserAgent,
		RequestsPerSec: a.Config.MarketData.RequestsPerSec,
	}, a.Logger)

	engine := scanner.NewEngine(scanner.EngineOptions{
		Capital:            a.Config.Scanner.Capital,
		RiskFraction:       a.Config.Scanner.RiskFraction,
		TargetUpside:       a.Config.Scanner.TargetUpside,
		ATRStopMultiple:    a.Config.Scanner.ATRStopMultiple,
		LiquidityThreshold: a.Config.Scanner.LiquidityThreshold,
	})

	batcher := scanner.NewBatcher(a.Config.Scanner.ChunkSize, a.Config.Scanner.ChunkPause, a.Logger)

	return service.New(a.Config, sched, cache, market, engine, batcher, store, store, a.newNotifier(), a.Logger)
}

// Run executes the long-running scan service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	pipeline := a.newPipeline(store, sched)

	a.Logger.Info().Msg("starting scan service")
	err = pipeline.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("scan service terminated with error")
		a.writeCrashLog(err)
		return err
	}

	a.Logger.Info().Msg("scan service stopped")
	return nil
}

// ScanOnce performs a single scan run and exits, the cron-friendly mode.
func (a *App) ScanOnce(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	pipeline := a.newPipeline(store, nil)

	runDate := time.Now().UTC().Truncate(24 * time.Hour)
	if err := pipeline.ProcessRun(ctx, runDate); err != nil {
		if !errors.Is(err, context.Canceled) {
			a.writeCrashLog(err)
		}
		return err
	}
	return nil
}

// writeCrashLog appends the terminal error to crash.log so a failure
// survives even when stdout goes nowhere (cron).
func (a *App) writeCrashLog(runErr error) {
	file, err := os.OpenFile("crash.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		a.Logger.Error().Err(err).Msg("cannot open crash log")
		return
	}
	defer file.Close()
	fmt.Fprintf(file, "%s %v\n", time.Now().UTC().Format(time.RFC3339), runErr)
}

// ExportOptions hold parameters for exporting signal history.
type ExportOptions struct {
	From    *time.Time
	To      *time.Time
	PNGPath string
	CSVPath string
	MaxRows int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
