package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"fuel-fraud-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Baseline  BaselineConfig  `mapstructure:"baseline"`
	Detection DetectionConfig `mapstructure:"detection"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
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
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the daily analysis cadence.
type SchedulerConfig struct {
	RunAt           string        `mapstructure:"run_at"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// BaselineConfig shapes the trailing-history window used as comparison point.
type BaselineConfig struct {
	WindowDays   int `mapstructure:"window_days"`
	MinSamples   int `mapstructure:"min_samples"`
	DefaultPumps int `mapstructure:"default_pumps"`
}

// DetectionConfig carries every rule threshold so runs are reproducible.
type DetectionConfig struct {
	Workers        int            `mapstructure:"workers"`
	RepoTimeout    time.Duration  `mapstructure:"repo_timeout"`
	Timezone       string         `mapstructure:"timezone"`
	SigmaMultiple  float64        `mapstructure:"sigma_multiple"`
	Velocity       VelocityConfig `mapstructure:"velocity"`
	OffHoursGrace  time.Duration  `mapstructure:"off_hours_grace"`
	Round          RoundConfig    `mapstructure:"round"`
	PricePrecision int32          `mapstructure:"price_precision"`
	RunLength      int            `mapstructure:"run_length"`
}

// VelocityConfig bounds physically possible dispensing volume.
type VelocityConfig struct {
	Window     time.Duration `mapstructure:"window"`
	MaxFlowLPM float64       `mapstructure:"max_flow_lpm"`
}

// RoundConfig tunes the round-number clustering rule.
type RoundConfig struct {
	Multiple int     `mapstructure:"multiple"`
	MinShare float64 `mapstructure:"min_share"`
	Factor   float64 `mapstructure:"factor"`
	MinSales int     `mapstructure:"min_sales"`
}

// AlertingConfig defines run-summary notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram Bot API parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDays int `mapstructure:"max_days"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FUELWATCH")
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
	v.SetDefault("app.name", "fuelwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.run_at", "02:30")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6675656c))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("baseline.window_days", 30)
	v.SetDefault("baseline.min_samples", 50)
	v.SetDefault("baseline.default_pumps", 4)

	v.SetDefault("detection.workers", 8)
	v.SetDefault("detection.repo_timeout", "15s")
	v.SetDefault("detection.timezone", "UTC")
	v.SetDefault("detection.sigma_multiple", 3.0)
	v.SetDefault("detection.velocity.window", "10m")
	v.SetDefault("detection.velocity.max_flow_lpm", 45.0)
	v.SetDefault("detection.off_hours_grace", "30m")
	v.SetDefault("detection.round.multiple", 10)
	v.SetDefault("detection.round.min_share", 0.6)
	v.SetDefault("detection.round.factor", 2.0)
	v.SetDefault("detection.round.min_sales", 20)
	v.SetDefault("detection.price_precision", 3)
	v.SetDefault("detection.run_length", 5)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_days", 90)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if _, err := time.Parse("15:04", c.Scheduler.RunAt); err != nil {
		return fmt.Errorf("scheduler.run_at must be HH:MM: %w", err)
	}
	if c.Baseline.WindowDays <= 0 {
		return fmt.Errorf("baseline.window_days must be greater than zero")
	}
	if c.Baseline.DefaultPumps <= 0 {
		return fmt.Errorf("baseline.default_pumps must be greater than zero")
	}
	if c.Detection.Workers <= 0 {
		return fmt.Errorf("detection.workers must be greater than zero")
	}
	if c.Detection.SigmaMultiple <= 0 {
		return fmt.Errorf("detection.sigma_multiple must be greater than zero")
	}
	if c.Detection.Velocity.Window <= 0 {
		return fmt.Errorf("detection.velocity.window must be greater than zero")
	}
	if c.Detection.Velocity.MaxFlowLPM <= 0 {
		return fmt.Errorf("detection.velocity.max_flow_lpm must be greater than zero")
	}
	if c.Detection.Round.MinShare <= 0 || c.Detection.Round.MinShare > 1 {
		return fmt.Errorf("detection.round.min_share must be in (0,1]")
	}
	if c.Detection.RunLength < 2 {
		return fmt.Errorf("detection.run_length must be at least 2")
	}
	if c.Export.MaxDays <= 0 {
		return fmt.Errorf("export.max_days must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxDays returns either the CLI override or config default.
func (c *Config) ResolveMaxDays(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDays
}
