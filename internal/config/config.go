package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"walletscope/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	RiskAPI  RiskAPIConfig  `mapstructure:"risk_api"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Alerting AlertingConfig `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LedgerConfig covers the transfer indexer and the optional EVM source.
type LedgerConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	MaxRetries         int           `mapstructure:"max_retries"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	UserAgent          string        `mapstructure:"user_agent"`
	TransferLimit      int           `mapstructure:"transfer_limit"`
	EVM                EVMConfig     `mapstructure:"evm"`
}

// EVMConfig 描述直接读取以太坊节点时的参数。
type EVMConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RPCURL         string        `mapstructure:"rpc_url"`
	Token          string        `mapstructure:"token"`
	BlockWindow    uint64        `mapstructure:"block_window"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Decimals       int32         `mapstructure:"decimals"`
}

// RiskAPIConfig captures external risk service connectivity.
type RiskAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AnalysisConfig exposes the heuristic knobs. The defaults come from field
// practice, not from a calibrated dataset; treat them as starting points.
type AnalysisConfig struct {
	OverlapThreshold    float64 `mapstructure:"overlap_threshold"`
	RelationFloor       float64 `mapstructure:"relation_floor"`
	Expand              bool    `mapstructure:"expand"`
	ExpansionBreadth    int     `mapstructure:"expansion_breadth"`
	ExpansionFetchLimit int     `mapstructure:"expansion_fetch_limit"`
	MaxCycleDepth       int     `mapstructure:"max_cycle_depth"`
}

// WatchConfig governs the periodic re-analysis loop.
type WatchConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	RunOnStart   bool          `mapstructure:"run_on_start"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	ScoreThreshold float64        `mapstructure:"score_threshold"`
	Channels       []string       `mapstructure:"channels"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WALLETSCOPE")
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
	v.SetDefault("app.name", "walletscope")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("ledger.request_timeout", "15s")
	v.SetDefault("ledger.min_request_interval", "200ms")
	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("ledger.backoff_base", "500ms")
	v.SetDefault("ledger.user_agent", "walletscope/1.0")
	v.SetDefault("ledger.transfer_limit", 100)
	v.SetDefault("ledger.evm.enabled", false)
	v.SetDefault("ledger.evm.block_window", 50000)
	v.SetDefault("ledger.evm.request_timeout", "30s")
	v.SetDefault("ledger.evm.decimals", 18)

	v.SetDefault("risk_api.request_timeout", "10s")
	v.SetDefault("risk_api.user_agent", "walletscope/1.0")

	v.SetDefault("analysis.overlap_threshold", 0.3)
	v.SetDefault("analysis.relation_floor", 0.1)
	v.SetDefault("analysis.expand", false)
	v.SetDefault("analysis.expansion_breadth", 5)
	v.SetDefault("analysis.expansion_fetch_limit", 50)
	v.SetDefault("analysis.max_cycle_depth", 8)

	v.SetDefault("watch.interval", "10m")
	v.SetDefault("watch.startup_delay", "0s")
	v.SetDefault("watch.run_on_start", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.score_threshold", 0.7)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
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
	if c.Ledger.TransferLimit <= 0 {
		return fmt.Errorf("ledger.transfer_limit must be greater than zero")
	}
	if c.Analysis.OverlapThreshold <= 0 || c.Analysis.OverlapThreshold >= 1 {
		return fmt.Errorf("analysis.overlap_threshold must be in (0,1)")
	}
	if c.Analysis.RelationFloor < 0 || c.Analysis.RelationFloor >= 1 {
		return fmt.Errorf("analysis.relation_floor must be in [0,1)")
	}
	if c.Analysis.ExpansionBreadth <= 0 {
		return fmt.Errorf("analysis.expansion_breadth must be greater than zero")
	}
	if c.Analysis.MaxCycleDepth < 3 {
		return fmt.Errorf("analysis.max_cycle_depth must be at least 3")
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be greater than zero")
	}
	if c.Alerting.ScoreThreshold < 0 || c.Alerting.ScoreThreshold > 1 {
		return fmt.Errorf("alerting.score_threshold must be in [0,1]")
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
