package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"momentum-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Universe   UniverseConfig   `mapstructure:"universe"`
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs scan cadence for the long-running service.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// BrokerConfig covers the instrument-metadata API.
type BrokerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MarketDataConfig covers the daily OHLCV source.
type MarketDataConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LookbackDays   int           `mapstructure:"lookback_days"`
	// RequestsPerSec throttles the per-ticker news/earnings lookups.
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	UserAgent      string  `mapstructure:"user_agent"`
}

// UniverseConfig tunes the instrument cache.
type UniverseConfig struct {
	MaxAge     time.Duration `mapstructure:"max_age"`
	ServeStale bool          `mapstructure:"serve_stale"`
}

// ScannerConfig parameterises the signal engine and batcher.
type ScannerConfig struct {
	Capital            float64       `mapstructure:"capital"`
	RiskFraction       float64       `mapstructure:"risk_fraction"`
	TargetUpside       float64       `mapstructure:"target_upside"`
	ATRStopMultiple    float64       `mapstructure:"atr_stop_multiple"`
	LiquidityThreshold float64       `mapstructure:"liquidity_threshold"`
	CooldownDays       int           `mapstructure:"cooldown_days"`
	ChunkSize          int           `mapstructure:"chunk_size"`
	ChunkPause         time.Duration `mapstructure:"chunk_pause"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MOMALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "momentum-alerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6d6f6d41))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("broker.base_url", "https://live.trading212.com/api/v1")
	v.SetDefault("broker.request_timeout", "30s")
	v.SetDefault("broker.max_attempts", 5)
	v.SetDefault("broker.retry_base_delay", "1s")
	v.SetDefault("broker.user_agent", "momentum-alerts/1.0")

	v.SetDefault("marketdata.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("marketdata.request_timeout", "30s")
	v.SetDefault("marketdata.lookback_days", 365)
	v.SetDefault("marketdata.requests_per_sec", 2.0)
	v.SetDefault("marketdata.user_agent", "momentum-alerts/1.0")

	v.SetDefault("universe.max_age", "168h")
	v.SetDefault("universe.serve_stale", true)

	v.SetDefault("scanner.capital", 1000.0)
	v.SetDefault("scanner.risk_fraction", 0.05)
	v.SetDefault("scanner.target_upside", 0.25)
	v.SetDefault("scanner.atr_stop_multiple", 2.0)
	v.SetDefault("scanner.liquidity_threshold", 500000.0)
	v.SetDefault("scanner.cooldown_days", 21)
	v.SetDefault("scanner.chunk_size", 40)
	v.SetDefault("scanner.chunk_pause", "3s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_rows", 10000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scanner.Capital <= 0 {
		return fmt.Errorf("scanner.capital must be greater than zero")
	}
	if c.Scanner.RiskFraction <= 0 || c.Scanner.RiskFraction >= 1 {
		return fmt.Errorf("scanner.risk_fraction must be in (0, 1)")
	}
	if c.Scanner.TargetUpside <= 0 {
		return fmt.Errorf("scanner.target_upside must be greater than zero")
	}
	if c.Scanner.ATRStopMultiple <= 0 {
		return fmt.Errorf("scanner.atr_stop_multiple must be greater than zero")
	}
	if c.Scanner.ChunkSize <= 0 {
		return fmt.Errorf("scanner.chunk_size must be greater than zero")
	}
	if c.Scanner.CooldownDays < 0 {
		return fmt.Errorf("scanner.cooldown_days cannot be negative")
	}
	if c.Universe.MaxAge <= 0 {
		return fmt.Errorf("universe.max_age must be greater than zero")
	}
	if c.Broker.MaxAttempts <= 0 {
		return fmt.Errorf("broker.max_attempts must be greater than zero")
	}
	if c.MarketData.LookbackDays < 220 {
		return fmt.Errorf("marketdata.lookback_days must cover the 200-day average plus indicator lookback")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
