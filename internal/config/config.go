package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Nationalize   NationalizeConfig   `yaml:"nationalize" mapstructure:"nationalize"`
	RestCountries RestCountriesConfig `yaml:"restcountries" mapstructure:"restcountries"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Circuit       CircuitConfig       `yaml:"circuit" mapstructure:"circuit"`
	Auth          AuthConfig          `yaml:"auth" mapstructure:"auth"`
	Popular       PopularConfig       `yaml:"popular" mapstructure:"popular"`
	Lookup        LookupConfig        `yaml:"lookup" mapstructure:"lookup"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// NationalizeConfig holds nationality predictor settings.
type NationalizeConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Key         string  `yaml:"key" mapstructure:"key"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// RestCountriesConfig holds country metadata service settings.
type RestCountriesConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// CacheConfig configures the name freshness window and the in-process
// country cache.
type CacheConfig struct {
	FreshnessHours  int `yaml:"freshness_hours" mapstructure:"freshness_hours"`
	CountryTTLHours int `yaml:"country_ttl_hours" mapstructure:"country_ttl_hours"`
}

// CircuitConfig configures the per-upstream circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AuthConfig configures user tokens.
type AuthConfig struct {
	SigningKey      string `yaml:"signing_key" mapstructure:"signing_key"`
	Issuer          string `yaml:"issuer" mapstructure:"issuer"`
	AccessTTLMins   int    `yaml:"access_ttl_mins" mapstructure:"access_ttl_mins"`
	RefreshTTLHours int    `yaml:"refresh_ttl_hours" mapstructure:"refresh_ttl_hours"`
}

// PopularConfig configures the popular-names ranking.
type PopularConfig struct {
	Limit int `yaml:"limit" mapstructure:"limit"`
}

// LookupConfig configures the batch lookup command.
type LookupConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// FreshnessWindow returns the cache validity period for stored names.
func (c CacheConfig) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessHours) * time.Hour
}

// CountryTTL returns how long a country stays in the in-process cache.
func (c CacheConfig) CountryTTL() time.Duration {
	return time.Duration(c.CountryTTLHours) * time.Hour
}

// Timeout returns the per-call timeout for the predictor.
func (c NationalizeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Timeout returns the per-call timeout for the metadata service.
func (c RestCountriesConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("NAMECHECKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("nationalize.base_url", "https://api.nationalize.io")
	v.SetDefault("nationalize.key", "")
	v.SetDefault("nationalize.timeout_secs", 5)
	v.SetDefault("nationalize.rate_per_sec", 10)
	v.SetDefault("restcountries.base_url", "https://restcountries.com")
	v.SetDefault("restcountries.timeout_secs", 5)
	v.SetDefault("restcountries.rate_per_sec", 10)
	v.SetDefault("cache.freshness_hours", 24)
	v.SetDefault("cache.country_ttl_hours", 24)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.issuer", "namechecker")
	v.SetDefault("auth.access_ttl_mins", 5)
	v.SetDefault("auth.refresh_ttl_hours", 24)
	v.SetDefault("popular.limit", 5)
	v.SetDefault("lookup.max_concurrent", 4)

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

// Validate checks that the values required by the given mode are present.
// Mode "serve" additionally requires a token signing key.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url (NAMECHECKER_STORE_DATABASE_URL)")
		}
	case "sqlite":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}

	if c.Nationalize.BaseURL == "" {
		missing = append(missing, "nationalize.base_url")
	}
	if c.RestCountries.BaseURL == "" {
		missing = append(missing, "restcountries.base_url")
	}

	if mode == "serve" {
		if c.Auth.SigningKey == "" {
			missing = append(missing, "auth.signing_key (NAMECHECKER_AUTH_SIGNING_KEY)")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return eris.Errorf("config: invalid server port %d", c.Server.Port)
		}
	}

	if c.Cache.FreshnessHours <= 0 {
		return eris.Errorf("config: cache.freshness_hours must be positive, got %d", c.Cache.FreshnessHours)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required values for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
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
