package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	Collector Collector `mapstructure:"collector"`
	Blogs     Blogs     `mapstructure:"blogs"`
	Crawler   Crawler   `mapstructure:"crawler"`
	Analyzer  Analyzer  `mapstructure:"analyzer"`
	Digest    Digest    `mapstructure:"digest"`
	Delivery  Delivery  `mapstructure:"delivery"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	LogLevel   string `mapstructure:"log_level"`
	ConfigFile string `mapstructure:"config_file"`
}

// Collector holds social post collector configuration
type Collector struct {
	BearerToken       string   `mapstructure:"bearer_token"`
	Accounts          []string `mapstructure:"accounts"`
	SeedKeywords      []string `mapstructure:"seed_keywords"`
	AccountFetchLimit int      `mapstructure:"account_fetch_limit"`
	KeywordFetchLimit int      `mapstructure:"keyword_fetch_limit"`
	TopPostsCount     int      `mapstructure:"top_posts_count"`
	Timeout           string   `mapstructure:"timeout"`
}

// Blogs holds blog/article collector configuration
type Blogs struct {
	Sites                []string `mapstructure:"sites"`
	MaxContentChars      int      `mapstructure:"max_content_chars"`
	MaxScrapeCandidates  int      `mapstructure:"max_scrape_candidates"`
	RequireDatedFallback bool     `mapstructure:"require_dated_fallback"`
	Timeout              string   `mapstructure:"timeout"`
}

// Crawler holds reference crawler configuration
type Crawler struct {
	GitHubToken    string `mapstructure:"github_token"`
	MaxPaperChars  int    `mapstructure:"max_paper_chars"`
	MaxReadmeChars int    `mapstructure:"max_readme_chars"`
	MaxPageChars   int    `mapstructure:"max_page_chars"`
	Timeout        string `mapstructure:"timeout"`
}

// Analyzer holds LLM synthesis configuration
type Analyzer struct {
	GeminiAPIKey    string  `mapstructure:"gemini_api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float32 `mapstructure:"temperature"`
	BatchSize       int     `mapstructure:"batch_size"`
	MaxRetries      int     `mapstructure:"max_retries"`
	NarrativeBudget int     `mapstructure:"narrative_budget"`
}

// Digest holds digest rendering configuration
type Digest struct {
	MaxChunkChars int `mapstructure:"max_chunk_chars"`
}

// Delivery holds chat delivery configuration
type Delivery struct {
	WebhookURL       string `mapstructure:"webhook_url"`
	Username         string `mapstructure:"username"`
	MaxEmbedsPerSend int    `mapstructure:"max_embeds_per_send"`
	MaxRetries       int    `mapstructure:"max_retries"`
	RetryDelay       string `mapstructure:"retry_delay"`
}

var globalConfig *Config

// Load loads the configuration from .env, the config file and the environment.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".morningbrief")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

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

// Reset clears the cached configuration. Intended for tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.log_level", "info")

	viper.SetDefault("collector.account_fetch_limit", 100)
	viper.SetDefault("collector.keyword_fetch_limit", 100)
	viper.SetDefault("collector.top_posts_count", 20)
	viper.SetDefault("collector.timeout", "30s")

	viper.SetDefault("blogs.max_content_chars", 3000)
	viper.SetDefault("blogs.max_scrape_candidates", 5)
	viper.SetDefault("blogs.require_dated_fallback", true)
	viper.SetDefault("blogs.timeout", "10s")

	viper.SetDefault("crawler.max_paper_chars", 2000)
	viper.SetDefault("crawler.max_readme_chars", 2000)
	viper.SetDefault("crawler.max_page_chars", 3000)
	viper.SetDefault("crawler.timeout", "10s")

	viper.SetDefault("analyzer.model", "gemini-flash-lite-latest")
	viper.SetDefault("analyzer.temperature", 0.3)
	viper.SetDefault("analyzer.batch_size", 10)
	viper.SetDefault("analyzer.max_retries", 2)
	viper.SetDefault("analyzer.narrative_budget", 3400)

	viper.SetDefault("digest.max_chunk_chars", 4096)

	viper.SetDefault("delivery.username", "Morning Brief")
	viper.SetDefault("delivery.max_embeds_per_send", 10)
	viper.SetDefault("delivery.max_retries", 3)
	viper.SetDefault("delivery.retry_delay", "2s")
}

// bindEnvironmentVariables binds credential environment variables
func bindEnvironmentVariables() {
	_ = viper.BindEnv("collector.bearer_token", "X_BEARER_TOKEN", "TWITTER_BEARER_TOKEN")
	_ = viper.BindEnv("analyzer.gemini_api_key", "GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY")
	_ = viper.BindEnv("crawler.github_token", "GITHUB_TOKEN")
	_ = viper.BindEnv("delivery.webhook_url", "DISCORD_WEBHOOK_URL")
}

// validateConfig checks limits that would otherwise fail deep inside a stage
func validateConfig(config *Config) error {
	if config.Analyzer.BatchSize < 1 {
		return fmt.Errorf("analyzer.batch_size must be at least 1, got %d", config.Analyzer.BatchSize)
	}
	if config.Digest.MaxChunkChars < 64 {
		return fmt.Errorf("digest.max_chunk_chars must be at least 64, got %d", config.Digest.MaxChunkChars)
	}
	if config.Delivery.MaxEmbedsPerSend < 1 {
		return fmt.Errorf("delivery.max_embeds_per_send must be at least 1, got %d", config.Delivery.MaxEmbedsPerSend)
	}
	return nil
}
