// Package config loads litgate configuration from file, environment and
// defaults, in that order of increasing precedence for the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App     App     `mapstructure:"app"`
	Sources Sources `mapstructure:"sources"`
	Search  Search  `mapstructure:"search"`
	Cache   Cache   `mapstructure:"cache"`
	Output  Output  `mapstructure:"output"`
	Logging Logging `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// Sources holds per-upstream keys and rate overrides. A zero rate means
// the adapter default.
type Sources struct {
	ContactEmail    string                `mapstructure:"contact_email"`
	Timeout         string                `mapstructure:"timeout"`
	PubMed          PubMedConfig          `mapstructure:"pubmed"`
	Crossref        CrossrefConfig        `mapstructure:"crossref"`
	OpenAlex        OpenAlexConfig        `mapstructure:"openalex"`
	SemanticScholar SemanticScholarConfig `mapstructure:"semanticscholar"`
	CORE            COREConfig            `mapstructure:"core"`
}

// PubMedConfig holds NCBI E-utilities configuration
type PubMedConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// CrossrefConfig holds Crossref REST configuration
type CrossrefConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// OpenAlexConfig holds OpenAlex configuration
type OpenAlexConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// SemanticScholarConfig holds Semantic Scholar Graph API configuration
type SemanticScholarConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// COREConfig holds CORE v3 configuration
type COREConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
}

// Search holds one-shot search defaults
type Search struct {
	DefaultLimit        int    `mapstructure:"default_limit"`
	DefaultRanking      string `mapstructure:"default_ranking"`
	Enhance             bool   `mapstructure:"enhance"`
	CrossSearchFallback bool   `mapstructure:"cross_search_fallback"`
}

// Cache holds cache configuration
type Cache struct {
	Directory string    `mapstructure:"directory"`
	TTL       TTLConfig `mapstructure:"ttl"`
}

// TTLConfig holds TTL configuration per cached record type
type TTLConfig struct {
	Articles string `mapstructure:"articles"`
	Entities string `mapstructure:"entities"`
}

// Output holds output configuration
type Output struct {
	Format string `mapstructure:"format"`
}

// Logging holds logging configuration
type Logging struct {
	Level string `mapstructure:"level"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".litgate")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".litgate-cache")

	// Source defaults. NCBI allows 3 rps anonymously and 10 with a key;
	// the adapters apply that bump themselves when a key is present.
	viper.SetDefault("sources.timeout", "30s")
	viper.SetDefault("sources.pubmed.requests_per_second", 0)
	viper.SetDefault("sources.crossref.requests_per_second", 0)
	viper.SetDefault("sources.openalex.requests_per_second", 0)
	viper.SetDefault("sources.semanticscholar.requests_per_second", 0)
	viper.SetDefault("sources.core.requests_per_minute", 0)

	// Search defaults
	viper.SetDefault("search.default_limit", 20)
	viper.SetDefault("search.default_ranking", "balanced")
	viper.SetDefault("search.enhance", false)
	viper.SetDefault("search.cross_search_fallback", false)

	// Cache defaults
	viper.SetDefault("cache.directory", ".litgate-cache")
	viper.SetDefault("cache.ttl.articles", "168h")
	viper.SetDefault("cache.ttl.entities", "720h")

	// Output defaults
	viper.SetDefault("output.format", "table")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("sources.pubmed.api_key", []string{
		"NCBI_API_KEY",
		"PUBMED_API_KEY",
		"EUTILS_API_KEY",
	})

	bindEnvKeys("sources.core.api_key", []string{
		"CORE_API_KEY",
	})

	bindEnvKeys("sources.contact_email", []string{
		"LITGATE_CONTACT_EMAIL",
		"CONTACT_EMAIL",
	})
}

// bindEnvKeys binds a viper key to multiple possible environment variables
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			break
		}
	}
}

// postProcessConfig expands paths and normalizes values
func postProcessConfig(config *Config) error {
	config.App.DataDir = expandPath(config.App.DataDir)
	config.Cache.Directory = expandPath(config.Cache.Directory)
	if config.Cache.Directory == "" {
		config.Cache.Directory = config.App.DataDir
	}
	config.Logging.Level = strings.ToLower(config.Logging.Level)
	if config.App.Debug {
		config.Logging.Level = "debug"
	}
	return nil
}

// expandPath expands ~ to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// validateConfig checks configuration consistency
func validateConfig(config *Config) error {
	if config.Search.DefaultLimit < 1 || config.Search.DefaultLimit > 200 {
		return fmt.Errorf("search.default_limit must be between 1 and 200, got %d", config.Search.DefaultLimit)
	}
	switch config.Search.DefaultRanking {
	case "", "balanced", "default", "impact", "recency", "quality":
	default:
		return fmt.Errorf("unknown search.default_ranking %q", config.Search.DefaultRanking)
	}
	if _, err := parseDuration(config.Sources.Timeout, 30*time.Second); err != nil {
		return fmt.Errorf("invalid sources.timeout: %w", err)
	}
	if _, err := parseDuration(config.Cache.TTL.Articles, 0); err != nil {
		return fmt.Errorf("invalid cache.ttl.articles: %w", err)
	}
	if _, err := parseDuration(config.Cache.TTL.Entities, 0); err != nil {
		return fmt.Errorf("invalid cache.ttl.entities: %w", err)
	}
	return nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// SourceTimeout returns the parsed per-adapter timeout.
func (c *Config) SourceTimeout() time.Duration {
	d, err := parseDuration(c.Sources.Timeout, 30*time.Second)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ArticleTTL returns the parsed article cache TTL.
func (c *Config) ArticleTTL() time.Duration {
	d, err := parseDuration(c.Cache.TTL.Articles, 7*24*time.Hour)
	if err != nil || d <= 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// EntityTTL returns the parsed entity cache TTL.
func (c *Config) EntityTTL() time.Duration {
	d, err := parseDuration(c.Cache.TTL.Entities, 30*24*time.Hour)
	if err != nil || d <= 0 {
		return 30 * 24 * time.Hour
	}
	return d
}

// Convenience accessors

func GetApp() App         { return Get().App }
func GetSources() Sources { return Get().Sources }
func GetSearch() Search   { return Get().Search }
func GetCache() Cache     { return Get().Cache }
func GetLogging() Logging { return Get().Logging }

func GetCacheDirectory() string { return Get().Cache.Directory }
func IsDebugMode() bool         { return Get().App.Debug }

// Reset clears the global configuration (for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
