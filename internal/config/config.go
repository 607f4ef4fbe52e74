package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Config holds application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Search    SearchConfig    `mapstructure:"search"`
	Devserver DevserverConfig `mapstructure:"devserver"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// APIConfig points the client at a backend.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SearchConfig tunes article autocomplete.
type SearchConfig struct {
	Debounce       time.Duration `mapstructure:"debounce"`
	Limit          int           `mapstructure:"limit"`
	Language       string        `mapstructure:"language"`
	MatchLateUnits bool          `mapstructure:"match_late_units"`
}

// DevserverConfig holds the development backend settings.
type DevserverConfig struct {
	Addr         string  `mapstructure:"addr"`
	DatabasePath string  `mapstructure:"database_path"`
	RateLimit    float64 `mapstructure:"rate_limit"`
	RateBurst    int     `mapstructure:"rate_burst"`
	Seed         bool    `mapstructure:"seed"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// TelemetryConfig enables OTLP trace export. An empty endpoint keeps
// tracing off.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load reads configuration from file and env. Env var overrides use prefix NEXD_.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("NEXD_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "nexd"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("NEXD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Search.Language = MatchLanguage(c.Search.Language)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.token", "me")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("search.debounce", 500*time.Millisecond)
	v.SetDefault("search.limit", 5)
	v.SetDefault("search.language", "de")
	v.SetDefault("search.match_late_units", false)
	v.SetDefault("devserver.addr", ":8080")
	v.SetDefault("devserver.database_path", filepath.Join(os.Getenv("HOME"), ".local", "share", "nexd", "devserver.db"))
	v.SetDefault("devserver.rate_limit", 20.0)
	v.SetDefault("devserver.rate_burst", 40)
	v.SetDefault("devserver.seed", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is empty"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout))
	}
	if c.Search.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("search.debounce must be positive, got %s", c.Search.Debounce))
	}
	if c.Search.Limit <= 0 {
		errs = append(errs, fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit))
	}
	if c.Devserver.RateLimit <= 0 || c.Devserver.RateBurst <= 0 {
		errs = append(errs, errors.New("devserver.rate_limit and devserver.rate_burst must be positive"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if e := c.Telemetry.Endpoint; e != "" {
		u, err := url.Parse(e)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("telemetry.endpoint must be an http(s) URL, got %q", e))
		}
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be within [0, 1], got %g", r))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := os.Getenv("NEXD_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "nexd", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.token", cfg.API.Token)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("search.debounce", cfg.Search.Debounce.String())
	v.Set("search.limit", cfg.Search.Limit)
	v.Set("search.language", cfg.Search.Language)
	v.Set("search.match_late_units", cfg.Search.MatchLateUnits)
	v.Set("devserver.addr", cfg.Devserver.Addr)
	v.Set("devserver.database_path", cfg.Devserver.DatabasePath)
	v.Set("devserver.rate_limit", cfg.Devserver.RateLimit)
	v.Set("devserver.rate_burst", cfg.Devserver.RateBurst)
	v.Set("devserver.seed", cfg.Devserver.Seed)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("log.file", cfg.Log.File)
	v.Set("telemetry.enabled", cfg.Telemetry.Enabled)
	v.Set("telemetry.endpoint", cfg.Telemetry.Endpoint)
	v.Set("telemetry.sample_ratio", cfg.Telemetry.SampleRatio)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

var languageMatcher = language.NewMatcher([]language.Tag{language.German, language.English})

// MatchLanguage maps a user-supplied language tag ("de-AT", "en_GB") to
// one the article catalog is kept in. Unknown tags fall back to German.
func MatchLanguage(tag string) string {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	parsed, err := language.Parse(tag)
	if err != nil {
		return "de"
	}
	_, idx, conf := languageMatcher.Match(parsed)
	if conf == language.No {
		return "de"
	}
	return []string{"de", "en"}[idx]
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the slog logger described by c. Output goes to c.File
// when set, else to fallback. The returned close function releases the
// file.
func NewLogger(c LogConfig, fallback io.Writer) (*slog.Logger, func() error, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	out, closeFn := fallback, func() error { return nil }
	if c.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("mkdir log dir: %w", err)
		}
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closeFn = f, f.Close
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if c.Format == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(h), closeFn, nil
}
