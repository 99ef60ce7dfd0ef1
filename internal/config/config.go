package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Profile     string            `mapstructure:"profile"`
	Display     DisplayConfig     `mapstructure:"display"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Server      ServerConfig      `mapstructure:"server"`
	Player      PlayerConfig      `mapstructure:"player"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// DisplayConfig identifies the display this device plays
type DisplayConfig struct {
	APIURL    string `mapstructure:"api_url"`    // signage API, e.g. https://signage.example.com
	ClientID  string `mapstructure:"client_id"`  // owning client (store)
	DisplayID string `mapstructure:"display_id"` // display to play
	Only      string `mapstructure:"only"`       // optional media filter pattern
}

// CacheConfig holds the local cache policy. Zero TTL/MaxSizeMB take the profile's values.
type CacheConfig struct {
	DataDir          string        `mapstructure:"data_dir"`
	TTL              time.Duration `mapstructure:"ttl"`
	MaxSizeMB        int64         `mapstructure:"max_size_mb"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBackoffBase time.Duration `mapstructure:"retry_backoff_base"`
	HotTTL           time.Duration `mapstructure:"hot_ttl"` // in-memory read layer, 0 disables
	HotMaxMB         int64         `mapstructure:"hot_max_mb"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
}

// SyncConfig holds background refresh scheduling
type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	FetchSpacing  time.Duration `mapstructure:"fetch_spacing"` // minimum gap between background fetches
}

// ServerConfig holds the loopback media server configuration
type ServerConfig struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PlayerConfig holds media player configuration
type PlayerConfig struct {
	Command    string   `mapstructure:"command"` // empty to auto-detect
	Args       []string `mapstructure:"args"`
	Fullscreen bool     `mapstructure:"fullscreen"`
	Headless   bool     `mapstructure:"headless"` // log slides instead of launching a player
}

// ObjectStoreConfig holds credentials for s3:// media URLs
type ObjectStoreConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Console    bool   `mapstructure:"console"` // also write to stderr
}

// Profile is a deployment preset for the cache policy
type Profile struct {
	TTL       time.Duration
	MaxSizeMB int64
}

// Profiles are the known deployment presets
var Profiles = map[string]Profile{
	"android-tv": {TTL: 30 * 24 * time.Hour, MaxSizeMB: 2048},
	"kiosk":      {TTL: 7 * 24 * time.Hour, MaxSizeMB: 500},
}

// DefaultProfile is used when none is configured
const DefaultProfile = "kiosk"

// flagKeys maps command-line flags to config keys
var flagKeys = map[string]string{
	"profile":  "profile",
	"api":      "display.api_url",
	"client":   "display.client_id",
	"display":  "display.display_id",
	"only":     "display.only",
	"data-dir": "cache.data_dir",
	"listen":   "server.listen",
	"player":   "player.command",
	"headless": "player.headless",
}

// envOnlyKeys have no default but must still be readable from the environment
var envOnlyKeys = []string{"cache.ttl", "cache.max_size_mb"}

// setDefaults registers the default configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", DefaultProfile)

	v.SetDefault("display.api_url", "")
	v.SetDefault("display.client_id", "")
	v.SetDefault("display.display_id", "")
	v.SetDefault("display.only", "")

	v.SetDefault("cache.data_dir", defaultDataPath())
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.retry_backoff_base", time.Second)
	v.SetDefault("cache.hot_ttl", 10*time.Minute)
	v.SetDefault("cache.hot_max_mb", 64)
	v.SetDefault("cache.fetch_timeout", 5*time.Minute)

	v.SetDefault("sync.interval", 30*time.Minute)
	v.SetDefault("sync.initial_delay", 5*time.Second)
	v.SetDefault("sync.probe_interval", 15*time.Second)
	v.SetDefault("sync.fetch_spacing", 2*time.Second)

	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("player.command", "")
	v.SetDefault("player.args", []string{})
	v.SetDefault("player.fullscreen", true)
	v.SetDefault("player.headless", false)

	v.SetDefault("object_store.endpoint", "")
	v.SetDefault("object_store.access_key", "")
	v.SetDefault("object_store.secret_key", "")
	v.SetDefault("object_store.region", "")
	v.SetDefault("object_store.use_ssl", true)

	v.SetDefault("logging.file", defaultLogPath())
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.max_size_mb", 20)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.console", false)
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "kiosk", "kiosk.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "kiosk", "kiosk.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "kiosk")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "kiosk")
	}
}

// defaultDataPath returns the default cache directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "kiosk", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "kiosk", "cache")
	}
}

// Load reads configuration from, lowest to highest priority: defaults, the config
// file, KIOSK_* environment variables and changed flags. configFile may be empty to
// search the default locations. flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides: KIOSK_CACHE_TTL, KIOSK_DISPLAY_API_URL, ...
	v.SetEnvPrefix("KIOSK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("error binding flag --%s: %w", name, err)
				}
			}
		}
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.applyProfile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyProfile fills cache limits the user left unset from the selected profile
func (c *Config) applyProfile() error {
	if c.Profile == "" {
		c.Profile = DefaultProfile
	}
	p, ok := Profiles[c.Profile]
	if !ok {
		return fmt.Errorf("unknown profile %q (want one of: android-tv, kiosk)", c.Profile)
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = p.TTL
	}
	if c.Cache.MaxSizeMB <= 0 {
		c.Cache.MaxSizeMB = p.MaxSizeMB
	}
	return nil
}

// MaxSizeBytes returns the cache budget in bytes
func (c *CacheConfig) MaxSizeBytes() int64 {
	return c.MaxSizeMB * 1024 * 1024
}

// BaseURL returns the URL the playback surface uses to reach the media server
func (s *ServerConfig) BaseURL() string {
	host := s.Listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return "http://" + host
}

// IsConfigured returns true if the display to play is known
func (c *Config) IsConfigured() bool {
	return c.Display.APIURL != "" && c.Display.ClientID != "" && c.Display.DisplayID != ""
}

// Save writes the display settings to the default config file, keeping
// whatever else the file already contains.
func Save(cfg *Config) error {
	configPath := defaultConfigPath()
	return SaveTo(cfg, filepath.Join(configPath, "config.yaml"))
}

// SaveTo writes the display settings to configFile
func SaveTo(cfg *Config, configFile string) error {
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Set fields individually to ensure correct key names (snake_case)
	v.Set("profile", cfg.Profile)
	v.Set("display.api_url", cfg.Display.APIURL)
	v.Set("display.client_id", cfg.Display.ClientID)
	v.Set("display.display_id", cfg.Display.DisplayID)

	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
