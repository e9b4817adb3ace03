// Package config loads run configuration from an optional YAML file with
// environment-variable overrides. Credentials are never read from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders Go duration syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Catalog configures the upstream parts catalog client. ClientID and
// ClientSecret come only from NEXAR_CLIENT_ID / NEXAR_CLIENT_SECRET.
type Catalog struct {
	BaseURL  string   `yaml:"base_url"`
	TokenURL string   `yaml:"token_url"`
	Timeout  Duration `yaml:"timeout"`

	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
}

// Pipeline configures one enrichment run.
type Pipeline struct {
	ChunkSize   int    `yaml:"chunk_size"`
	SearchLimit int    `yaml:"search_limit"`
	Currency    string `yaml:"currency"`

	MaxAttempts int      `yaml:"max_attempts"`
	Backoff     Duration `yaml:"backoff"`
	BackoffMax  Duration `yaml:"backoff_max"`

	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	AllowedSellers []string `yaml:"allowed_sellers"`
	PrefixFallback bool     `yaml:"prefix_fallback"`
}

// Rates configures the exchange-rate source and cache for short mode.
type Rates struct {
	Endpoint       string   `yaml:"endpoint"`
	Base           string   `yaml:"base"`
	Symbol         string   `yaml:"symbol"`
	TTL            Duration `yaml:"ttl"`
	RefreshTimeout Duration `yaml:"refresh_timeout"`

	// Fallback is served when no rate was ever fetched and the source is down.
	Fallback float64 `yaml:"fallback"`
}

// Jobs configures the async job manager.
type Jobs struct {
	Workers    int      `yaml:"workers"`
	QueueSize  int      `yaml:"queue_size"`
	JobTimeout Duration `yaml:"job_timeout"`
}

// Config is the full runtime configuration.
type Config struct {
	Catalog  Catalog  `yaml:"catalog"`
	Pipeline Pipeline `yaml:"pipeline"`
	Rates    Rates    `yaml:"rates"`
	Jobs     Jobs     `yaml:"jobs"`
}

// Default returns the configuration used when neither file nor environment
// overrides a value.
func Default() Config {
	return Config{
		Catalog: Catalog{
			BaseURL:  "https://api.nexar.com",
			TokenURL: "https://identity.nexar.com/connect/token",
			Timeout:  Duration(60 * time.Second),
		},
		Pipeline: Pipeline{
			ChunkSize:   15,
			SearchLimit: 50,
			Currency:    "USD",
			MaxAttempts: 3,
			Backoff:     Duration(1 * time.Second),
			BackoffMax:  Duration(30 * time.Second),
		},
		Rates: Rates{
			Endpoint:       "https://api.exchangerate.host",
			Base:           "USD",
			Symbol:         "RUB",
			TTL:            Duration(6 * time.Hour),
			RefreshTimeout: Duration(5 * time.Second),
			Fallback:       100,
		},
		Jobs: Jobs{
			Workers:    2,
			QueueSize:  64,
			JobTimeout: Duration(4 * time.Hour),
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// non-empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("CATALOG_BASE_URL", &c.Catalog.BaseURL)
	envString("CATALOG_TOKEN_URL", &c.Catalog.TokenURL)
	envString("NEXAR_CLIENT_ID", &c.Catalog.ClientID)
	envString("NEXAR_CLIENT_SECRET", &c.Catalog.ClientSecret)
	if err := envDuration("CATALOG_TIMEOUT", &c.Catalog.Timeout); err != nil {
		return err
	}

	if err := envInt("CHUNK_SIZE", &c.Pipeline.ChunkSize); err != nil {
		return err
	}
	if err := envInt("SEARCH_LIMIT", &c.Pipeline.SearchLimit); err != nil {
		return err
	}
	envString("CURRENCY", &c.Pipeline.Currency)
	if err := envInt("MAX_ATTEMPTS", &c.Pipeline.MaxAttempts); err != nil {
		return err
	}
	if err := envDuration("RETRY_BACKOFF", &c.Pipeline.Backoff); err != nil {
		return err
	}
	if err := envDuration("RETRY_BACKOFF_MAX", &c.Pipeline.BackoffMax); err != nil {
		return err
	}
	if err := envFloat("RATE_LIMIT_RPS", &c.Pipeline.RateLimitRPS); err != nil {
		return err
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_SELLERS")); v != "" {
		var sellers []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sellers = append(sellers, s)
			}
		}
		c.Pipeline.AllowedSellers = sellers
	}
	if err := envBool("PREFIX_FALLBACK", &c.Pipeline.PrefixFallback); err != nil {
		return err
	}

	envString("RATES_ENDPOINT", &c.Rates.Endpoint)
	envString("RATES_BASE", &c.Rates.Base)
	envString("RATES_SYMBOL", &c.Rates.Symbol)
	if err := envDuration("RATES_TTL", &c.Rates.TTL); err != nil {
		return err
	}
	if err := envDuration("RATES_REFRESH_TIMEOUT", &c.Rates.RefreshTimeout); err != nil {
		return err
	}
	if err := envFloat("RATES_FALLBACK", &c.Rates.Fallback); err != nil {
		return err
	}

	if err := envInt("JOB_WORKERS", &c.Jobs.Workers); err != nil {
		return err
	}
	if err := envInt("JOB_QUEUE_SIZE", &c.Jobs.QueueSize); err != nil {
		return err
	}
	return envDuration("JOB_TIMEOUT", &c.Jobs.JobTimeout)
}

func (c *Config) validate() error {
	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be positive")
	}
	if c.Pipeline.SearchLimit <= 0 {
		return fmt.Errorf("pipeline.search_limit must be positive")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.max_attempts must be positive")
	}
	if strings.TrimSpace(c.Catalog.BaseURL) == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	return nil
}

func envString(varName string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(varName)); v != "" {
		*dst = v
	}
}

func envInt(varName string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func envFloat(varName string, dst *float64) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func envBool(varName string, dst *bool) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = out
	return nil
}

func envDuration(varName string, dst *Duration) error {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	*dst = Duration(out)
	return nil
}
