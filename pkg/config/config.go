// Package config loads runtime configuration from the environment and an
// optional .env / config.env file through viper. Values are read once and
// passed to constructors; nothing here is consulted after startup.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPortalBaseURL is the partner portal gateway.
const DefaultPortalBaseURL = "https://portalcorretor.icatuseguros.com.br/casadocorretorgateway/api"

// Config groups all settings.
type Config struct {
	Portal  PortalConfig
	DB      DBConfig
	Sync    SyncConfig
	Redis   RedisConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// PortalConfig configures the harvest side.
type PortalConfig struct {
	BaseURL         string
	Token           string
	CustomHeader    string
	MaxConcurrency  int
	CallTimeout     time.Duration
	FailureBackoff  time.Duration
	PendingPageSize int
	PendingMaxPages int
	DetailCacheTTL  time.Duration
	OutputDir       string
}

// DBConfig configures PostgreSQL. DatabaseURL wins over the discrete fields.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString returns DatabaseURL if set, otherwise DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN builds a postgres URL, escaping the credentials.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// SyncConfig configures the sync side.
type SyncConfig struct {
	TenantID           int64
	InsuranceCompanyID int64
	DownloadDir        string
	ProcessedDir       string
}

// RedisConfig is optional; an empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Pretty bool
	File   string
}

// MetricsConfig configures the optional /metrics listener.
type MetricsConfig struct {
	Addr string
}

// Load reads configuration. Environment variables take precedence over
// values from .env or config.env in the working directory.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetConfigName("config")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	callTimeout, err := getDuration(v, "PORTAL_CALL_TIMEOUT", 45*time.Second)
	if err != nil {
		return nil, err
	}
	backoff, err := getDuration(v, "PORTAL_FAILURE_BACKOFF", 2*time.Second)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getDuration(v, "DETAIL_CACHE_TTL", 0)
	if err != nil {
		return nil, err
	}

	downloadDir := getString(v, "SYNC_DOWNLOAD_DIR", "downloads")

	cfg := &Config{
		Portal: PortalConfig{
			BaseURL:         getString(v, "PORTAL_BASE_URL", DefaultPortalBaseURL),
			Token:           getString(v, "PORTAL_TOKEN", ""),
			CustomHeader:    getString(v, "PORTAL_CUSTOM_HEADER", "customHeader"),
			MaxConcurrency:  getInt(v, "PORTAL_MAX_CONCURRENCY", 20),
			CallTimeout:     callTimeout,
			FailureBackoff:  backoff,
			PendingPageSize: getInt(v, "PORTAL_PENDING_PAGE_SIZE", 100),
			PendingMaxPages: getInt(v, "PORTAL_PENDING_MAX_PAGES", 1000),
			DetailCacheTTL:  cacheTTL,
			OutputDir:       getString(v, "HARVEST_OUTPUT_DIR", downloadDir),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", getString(v, "DB_URL", "")),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "postgres"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		Sync: SyncConfig{
			TenantID:           int64(getInt(v, "SYNC_TENANT_ID", 20)),
			InsuranceCompanyID: int64(getInt(v, "SYNC_INSURANCE_COMPANY_ID", 44)),
			DownloadDir:        downloadDir,
			ProcessedDir:       getString(v, "SYNC_PROCESSED_DIR", downloadDir+"/processados"),
		},
		Redis: RedisConfig{
			Addr:     getString(v, "REDIS_ADDR", ""),
			Password: getString(v, "REDIS_PASSWORD", ""),
			DB:       getInt(v, "REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getString(v, "LOG_LEVEL", "info"),
			Pretty: getBool(v, "LOG_PRETTY", false),
			File:   getString(v, "LOG_FILE", ""),
		},
		Metrics: MetricsConfig{
			Addr: getString(v, "METRICS_ADDR", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Portal.MaxConcurrency < 1 {
		return fmt.Errorf("PORTAL_MAX_CONCURRENCY must be >= 1 (got %d)", c.Portal.MaxConcurrency)
	}
	if c.Portal.PendingPageSize < 1 {
		return fmt.Errorf("PORTAL_PENDING_PAGE_SIZE must be >= 1 (got %d)", c.Portal.PendingPageSize)
	}
	if c.Portal.PendingMaxPages < 1 {
		return fmt.Errorf("PORTAL_PENDING_MAX_PAGES must be >= 1 (got %d)", c.Portal.PendingMaxPages)
	}
	return nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if !v.IsSet(key) {
		return def
	}
	switch v.Get(key).(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return def
		}
		return n
	default:
		return v.GetInt(key)
	}
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if !v.IsSet(key) {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return def
	}
	return b
}

// getDuration accepts Go durations ("45s") or plain seconds ("45").
func getDuration(v *viper.Viper, key string, def time.Duration) (time.Duration, error) {
	if !v.IsSet(key) {
		return def, nil
	}
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
