package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"sugarwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	ETL       ETLConfig       `mapstructure:"etl"`
	Server    ServerConfig    `mapstructure:"server"`
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
	RunMigrations   bool          `mapstructure:"run_migrations"`
}

// SchedulerConfig governs the daily ETL cadence.
type SchedulerConfig struct {
	CronSpec        string `mapstructure:"cron_spec"`
	Timezone        string `mapstructure:"timezone"`
	CatchupOnStart  bool   `mapstructure:"catchup_on_start"`
	AdvisoryLockKey int64  `mapstructure:"advisory_lock_key"`
}

// SourcesConfig groups the per-provider fetch settings.
type SourcesConfig struct {
	Sugar   SugarSourceConfig   `mapstructure:"sugar"`
	FX      FXSourceConfig      `mapstructure:"fx"`
	Freight FreightSourceConfig `mapstructure:"freight"`
}

// SugarSourceConfig covers the futures quote provider.
type SugarSourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Symbol         string        `mapstructure:"symbol"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// FXSourceConfig covers the exchange-rate provider and its degraded fallback.
type FXSourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Currency       string        `mapstructure:"currency"`
	WindowDays     int           `mapstructure:"window_days"`
	FallbackRate   float64       `mapstructure:"fallback_rate"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// FreightSourceConfig covers the freight index provider.
type FreightSourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Symbol         string        `mapstructure:"symbol"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// ETLConfig tunes the transform stage.
type ETLConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// ServerConfig describes the query/trigger HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AlertingConfig defines failure notification routing.
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
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SUGARWATCH")
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
	v.SetDefault("app.name", "sugarwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.cron_spec", "0 2 * * *")
	v.SetDefault("scheduler.timezone", "Asia/Shanghai")
	v.SetDefault("scheduler.catchup_on_start", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x73756761))

	v.SetDefault("sources.sugar.base_url", "https://stock2.finance.sina.com.cn/futures/api")
	v.SetDefault("sources.sugar.symbol", "SR0")
	v.SetDefault("sources.sugar.request_timeout", "15s")
	v.SetDefault("sources.sugar.user_agent", "sugarwatch/1.0")

	v.SetDefault("sources.fx.base_url", "https://biz.finance.sina.com.cn/forex/api")
	v.SetDefault("sources.fx.currency", "美元")
	v.SetDefault("sources.fx.window_days", 60)
	v.SetDefault("sources.fx.fallback_rate", 7.0)
	v.SetDefault("sources.fx.request_timeout", "15s")
	v.SetDefault("sources.fx.user_agent", "sugarwatch/1.0")

	v.SetDefault("sources.freight.base_url", "https://interface.sina.cn/ftx/spot_goods")
	v.SetDefault("sources.freight.symbol", "波罗的海干散货指数")
	v.SetDefault("sources.freight.request_timeout", "15s")
	v.SetDefault("sources.freight.user_agent", "sugarwatch/1.0")

	v.SetDefault("etl.retention_days", 365)

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.run_migrations", true)
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
	if c.Scheduler.CronSpec == "" {
		return fmt.Errorf("scheduler.cron_spec must not be empty")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone invalid: %w", err)
	}
	if c.Sources.FX.WindowDays <= 0 {
		return fmt.Errorf("sources.fx.window_days must be greater than zero")
	}
	if c.Sources.FX.FallbackRate <= 0 {
		return fmt.Errorf("sources.fx.fallback_rate must be greater than zero")
	}
	if c.ETL.RetentionDays <= 0 {
		return fmt.Errorf("etl.retention_days must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
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

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// Location resolves the scheduler timezone. Validate guarantees it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
