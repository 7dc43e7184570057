package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen       = "127.0.0.1:8080"
	DefaultCatalogURL   = "https://courselistings.wpi.edu/assets/prod-data.json"
	DefaultCacheDir     = "./var/catalog-cache"
	DefaultRefreshCron  = "0 */6 * * *"
	DefaultCatalogTTL   = 360
	DefaultCalendarName = "Courses"
	DefaultMaxUploadMB  = 5
	DefaultLogLevel     = "info"
)

// Environment variables that override file values. A .env file in the
// working directory is loaded first, without overriding the real environment.
const (
	EnvListen     = "REGCAL_LISTEN"
	EnvCatalogURL = "REGCAL_CATALOG_URL"
	EnvCacheDir   = "REGCAL_CACHE_DIR"
	EnvRefresh    = "REGCAL_REFRESH"
	EnvTimezone   = "REGCAL_TIMEZONE"
	EnvLogLevel   = "REGCAL_LOG_LEVEL"
	EnvMaxUpload  = "REGCAL_MAX_UPLOAD_MB"
)

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the upload page and API.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// CatalogURL is the course listings feed endpoint.
	CatalogURL string `yaml:"catalog_url" json:"catalog_url" validate:"required,url"`

	// CacheDir holds the feed's HTTP cache. Empty disables it.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// RefreshCron is a cron schedule (e.g. "0 */6 * * *") for refreshing the
	// catalog in the background. "off" disables the background refresh.
	RefreshCron string `yaml:"refresh" json:"refresh" validate:"required"`

	// CatalogTTLMinutes is how long a catalog snapshot is served before a
	// request triggers a refetch.
	CatalogTTLMinutes int `yaml:"catalog_ttl_minutes" json:"catalog_ttl_minutes" validate:"gte=1"`

	// Timezone is the IANA zone whose wall clock event times are built in
	// (e.g. "America/New_York"). Empty means the process local zone.
	Timezone string `yaml:"timezone" json:"timezone" validate:"omitempty,timezone"`

	// CalendarName is written as X-WR-CALNAME.
	CalendarName string `yaml:"calendar_name" json:"calendar_name"`

	// MaxUploadMB bounds the uploaded spreadsheet size.
	MaxUploadMB int `yaml:"max_upload_mb" json:"max_upload_mb" validate:"gte=1,lte=100"`

	LogLevel  string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	LogPretty bool   `yaml:"log_pretty" json:"log_pretty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            DefaultListen,
		CatalogURL:        DefaultCatalogURL,
		CacheDir:          DefaultCacheDir,
		RefreshCron:       DefaultRefreshCron,
		CatalogTTLMinutes: DefaultCatalogTTL,
		Timezone:          "",
		CalendarName:      DefaultCalendarName,
		MaxUploadMB:       DefaultMaxUploadMB,
		LogLevel:          DefaultLogLevel,
	}
}

// Normalize fills in missing/zero values with defaults so partially
// filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.CatalogURL == "" {
		c.CatalogURL = DefaultCatalogURL
	}
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.CatalogTTLMinutes <= 0 {
		c.CatalogTTLMinutes = DefaultCatalogTTL
	}
	if c.CalendarName == "" {
		c.CalendarName = DefaultCalendarName
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = DefaultMaxUploadMB
	}
	// Unknown levels are left for Validate to reject.
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field formats after Normalize.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RefreshEnabled reports whether the background cron refresh should run.
func (c *Config) RefreshEnabled() bool {
	return !strings.EqualFold(strings.TrimSpace(c.RefreshCron), "off")
}

// ApplyEnv overlays REGCAL_* environment variables, loading .env first.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvCatalogURL); v != "" {
		c.CatalogURL = v
	}
	if v, ok := os.LookupEnv(EnvCacheDir); ok {
		c.CacheDir = v
	}
	if v := os.Getenv(EnvRefresh); v != "" {
		c.RefreshCron = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvMaxUpload); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxUpload, err)
		}
		c.MaxUploadMB = n
	}
	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there with
//     0600 permissions and returned.
//   - Otherwise the YAML is unmarshalled over the defaults and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Still usable in memory; the caller decides.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".regcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
