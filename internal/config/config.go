package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	PeopleSearch PeopleSearchConfig `yaml:"peoplesearch" mapstructure:"peoplesearch"`
	Suggest      SuggestConfig      `yaml:"suggest" mapstructure:"suggest"`
	PhoneIntel   PhoneIntelConfig   `yaml:"phoneintel" mapstructure:"phoneintel"`
	DNC          DNCConfig          `yaml:"dnc" mapstructure:"dnc"`
	Geo          GeoConfig          `yaml:"geo" mapstructure:"geo"`
	Governor     GovernorConfig     `yaml:"governor" mapstructure:"governor"`
	Validator    ValidatorConfig    `yaml:"validator" mapstructure:"validator"`
	Batch        BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PeopleSearchConfig holds people-data provider settings and the token chain.
type PeopleSearchConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	Token        string `yaml:"token" mapstructure:"token"`
	TokenFile    string `yaml:"token_file" mapstructure:"token_file"`
	RefreshToken string `yaml:"refresh_token" mapstructure:"refresh_token"`
	AccountID    string `yaml:"account_id" mapstructure:"account_id"`
	PageSize     int    `yaml:"page_size" mapstructure:"page_size"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SuggestConfig holds the location discovery provider settings.
type SuggestConfig struct {
	SuggestURL      string `yaml:"suggest_url" mapstructure:"suggest_url"`
	AutocompleteURL string `yaml:"autocomplete_url" mapstructure:"autocomplete_url"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PhoneIntelConfig holds phone line-type intelligence settings.
type PhoneIntelConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Key         string `yaml:"key" mapstructure:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// DNCConfig holds do-not-call registry settings.
type DNCConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Key         string `yaml:"key" mapstructure:"key"`
	AccountID   string `yaml:"account_id" mapstructure:"account_id"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GeoConfig configures the geo identifier store.
type GeoConfig struct {
	// SeedFile is an optional YAML file of extra static location
	// identifiers loaded on top of the built-in table.
	SeedFile string `yaml:"seed_file" mapstructure:"seed_file"`
}

// GovernorConfig configures admission control and throttling per provider.
// ThrottleTier sets the pacing tier for every provider; ThrottleOverrides
// maps a provider name to a different tier where one provider needs gentler
// or harder pacing than the rest.
type GovernorConfig struct {
	Caps              map[string]ProviderCaps `yaml:"caps" mapstructure:"caps"`
	Cooldown          CooldownConfig          `yaml:"cooldown" mapstructure:"cooldown"`
	ThrottleTier      string                  `yaml:"throttle_tier" mapstructure:"throttle_tier"`
	ThrottleOverrides map[string]string       `yaml:"throttle_overrides" mapstructure:"throttle_overrides"`
}

// ProviderCaps holds the daily and monthly request caps for one provider.
// A zero cap means unlimited.
type ProviderCaps struct {
	Daily   int `yaml:"daily" mapstructure:"daily"`
	Monthly int `yaml:"monthly" mapstructure:"monthly"`
}

// CooldownConfig configures the sliding error window that pauses a provider.
type CooldownConfig struct {
	ErrorThreshold int `yaml:"error_threshold" mapstructure:"error_threshold"`
	WindowMins     int `yaml:"window_mins" mapstructure:"window_mins"`
	PauseMins      int `yaml:"pause_mins" mapstructure:"pause_mins"`
}

// ValidatorConfig configures post-filter matching behavior.
type ValidatorConfig struct {
	AllowSubstring bool `yaml:"allow_substring" mapstructure:"allow_substring"`
	MinTokenLen    int  `yaml:"min_token_len" mapstructure:"min_token_len"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentLeads int `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
}

// ServerConfig configures the job-trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BRAINSCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "brainscraper.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_leads", 4)
	v.SetDefault("peoplesearch.page_size", 25)
	v.SetDefault("peoplesearch.timeout_secs", 30)
	v.SetDefault("peoplesearch.token_file", ".peoplesearch_token")
	v.SetDefault("suggest.timeout_secs", 10)
	v.SetDefault("phoneintel.timeout_secs", 15)
	v.SetDefault("dnc.timeout_secs", 15)
	v.SetDefault("governor.caps.peoplesearch.daily", 500)
	v.SetDefault("governor.caps.peoplesearch.monthly", 10000)
	v.SetDefault("governor.caps.phoneintel.daily", 1000)
	v.SetDefault("governor.caps.phoneintel.monthly", 20000)
	v.SetDefault("governor.caps.dnc.daily", 1000)
	v.SetDefault("governor.caps.dnc.monthly", 20000)
	v.SetDefault("governor.cooldown.error_threshold", 3)
	v.SetDefault("governor.cooldown.window_mins", 5)
	v.SetDefault("governor.cooldown.pause_mins", 30)
	v.SetDefault("governor.throttle_tier", "standard")
	v.SetDefault("validator.allow_substring", true)
	v.SetDefault("validator.min_token_len", 3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
