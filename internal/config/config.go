// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Provider names shared by the db, archive, and notify sections.
const (
	ProviderNone     = "none"
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
	ProviderLocal    = "local"
	ProviderGCS      = "gcs"
	ProviderPubSub   = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Source  SourceConfig  `mapstructure:"source"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// RequestTimeout caps a whole trigger request and must exceed the
	// largest chunk budget.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig holds the shared secret required by the trigger endpoints.
type AuthConfig struct {
	SharedSecret string `mapstructure:"shared_secret"`
}

// SourceConfig describes the calendar site.
type SourceConfig struct {
	// ListURL is the list page template; see crawler.Options.ListURL.
	ListURL    string `mapstructure:"list_url"`
	CursorUnit string `mapstructure:"cursor_unit"`
	PageStep   int    `mapstructure:"page_step"`
	// DetailBase resolves relative detail links. Defaults to the list URL.
	DetailBase string `mapstructure:"detail_base"`
}

// CrawlerConfig governs chunk execution.
type CrawlerConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	PageDelay         time.Duration `mapstructure:"page_delay"`
	DetailDelay       time.Duration `mapstructure:"detail_delay"`
	DefaultBudget     time.Duration `mapstructure:"default_budget"`
	MaxBudget         time.Duration `mapstructure:"max_budget"`
	MaxPagesPerChunk  int           `mapstructure:"max_pages_per_chunk"`
	ResumeBeforePages int           `mapstructure:"resume_before_pages"`
	CountryCode       string        `mapstructure:"country_code"`
	SportType         string        `mapstructure:"sport_type"`
	SlugWithCity      bool          `mapstructure:"slug_with_city"`
	MaxSlugAttempts   int           `mapstructure:"max_slug_attempts"`
}

// HTTPConfig configures the outbound page fetcher.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// DBConfig controls access to the event store.
type DBConfig struct {
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ArchiveConfig selects where fetched list pages are archived.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// NotifyConfig selects where edition notices are published.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from a local .env file, the optional config file at
// path, and RACECAL_* environment variables.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	v := viper.New()
	v.SetEnvPrefix("RACECAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.request_timeout", "90s")
	v.SetDefault("auth.shared_secret", "")
	v.SetDefault("source.list_url", "")
	v.SetDefault("source.cursor_unit", "page")
	v.SetDefault("source.page_step", 1)
	v.SetDefault("source.detail_base", "")
	v.SetDefault("crawler.user_agent", "racecal-crawler/1.0")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.page_delay", "800ms")
	v.SetDefault("crawler.detail_delay", "300ms")
	v.SetDefault("crawler.default_budget", "45s")
	v.SetDefault("crawler.max_budget", "55s")
	v.SetDefault("crawler.max_pages_per_chunk", 0)
	v.SetDefault("crawler.resume_before_pages", 2)
	v.SetDefault("crawler.country_code", "PL")
	v.SetDefault("crawler.sport_type", "running")
	v.SetDefault("crawler.slug_with_city", false)
	v.SetDefault("crawler.max_slug_attempts", 20)
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("db.provider", ProviderMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.auto_migrate", false)
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.base_dir", "data/pages")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("notify.provider", ProviderNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Crawler.DefaultBudget <= 0 {
		return fmt.Errorf("crawler.default_budget must be > 0")
	}
	if c.Crawler.MaxBudget < c.Crawler.DefaultBudget {
		return fmt.Errorf("crawler.max_budget must be >= crawler.default_budget")
	}
	if c.Server.RequestTimeout <= c.Crawler.MaxBudget {
		return fmt.Errorf("server.request_timeout must exceed crawler.max_budget")
	}
	if c.Crawler.MaxPagesPerChunk < 0 {
		return fmt.Errorf("crawler.max_pages_per_chunk must be >= 0")
	}
	if c.Crawler.ResumeBeforePages < 0 {
		return fmt.Errorf("crawler.resume_before_pages must be >= 0")
	}
	if c.Crawler.PageDelay < 0 || c.Crawler.DetailDelay < 0 {
		return fmt.Errorf("crawler delays must be >= 0")
	}
	switch c.Source.CursorUnit {
	case "page", "row":
	default:
		return fmt.Errorf("source.cursor_unit must be page or row, got %q", c.Source.CursorUnit)
	}
	if c.Source.PageStep <= 0 {
		return fmt.Errorf("source.page_step must be > 0")
	}

	switch c.DB.Provider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("unknown db.provider %q", c.DB.Provider)
	}

	switch c.Archive.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local provider")
		}
	case ProviderGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}

	switch c.Notify.Provider {
	case ProviderNone:
	case ProviderMemory:
		if c.Notify.Topic == "" {
			return fmt.Errorf("notify.topic is required when notifications are enabled")
		}
	case ProviderPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required for the pubsub provider")
		}
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	return nil
}

// ClampBudget resolves a requested budget against the configured default and
// ceiling. Non-positive requests get the default.
func (c Config) ClampBudget(requested time.Duration) time.Duration {
	if requested <= 0 {
		return c.Crawler.DefaultBudget
	}
	if requested > c.Crawler.MaxBudget {
		return c.Crawler.MaxBudget
	}
	return requested
}
