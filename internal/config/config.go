package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "PORTAL_CONFIG"

	defaultBotEmail = "dropbox-sync@sassh.system"
)

// Config holds every setting the portal commands need.
type Config struct {
	DataDir  string        `yaml:"dataDir"`
	LogLevel string        `yaml:"logLevel"`
	Dropbox  DropboxConfig `yaml:"dropbox"`
	Blob     BlobConfig    `yaml:"blob"`
	Sync     SyncConfig    `yaml:"sync"`
	Server   ServerConfig  `yaml:"server"`
}

// DropboxConfig describes the source folder tree and its credentials.
type DropboxConfig struct {
	AppKey          string        `yaml:"appKey"`
	AppSecret       string        `yaml:"appSecret"`
	RefreshToken    string        `yaml:"refreshToken"`
	AccessToken     string        `yaml:"accessToken"`
	RootPath        string        `yaml:"rootPath"`
	ExcludedFolders []string      `yaml:"excludedFolders"`
	TokenURL        string        `yaml:"tokenUrl"`
	APIURL          string        `yaml:"apiUrl"`
	ContentURL      string        `yaml:"contentUrl"`
	Timeout         time.Duration `yaml:"timeout"`
	ExpiryMargin    time.Duration `yaml:"expiryMargin"`
}

// BlobConfig selects the durable object store.
type BlobConfig struct {
	// Driver is "fs" or "vercel".
	Driver        string `yaml:"driver"`
	Dir           string `yaml:"dir"`
	PublicBaseURL string `yaml:"publicBaseUrl"`
	Token         string `yaml:"token"`
	APIURL        string `yaml:"apiUrl"`
}

// SyncConfig controls the folder sync run.
type SyncConfig struct {
	BotEmail    string        `yaml:"botEmail"`
	MaxDuration time.Duration `yaml:"maxDuration"`
	// Interval enables the in-process scheduler in serve mode when non-zero.
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          string `yaml:"port"`
	CronSecret    string `yaml:"cronSecret"`
	SyncAPISecret string `yaml:"syncApiSecret"`
}

// Load reads defaults, then the YAML file named by PORTAL_CONFIG, then .env and the environment.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			slog.Warn("config: falling back to defaults", "path", path, "error", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: cannot load .env", "error", err)
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.LogLevel, "LOG_LEVEL")

	setString(&c.Dropbox.AppKey, "DROPBOX_APP_KEY")
	setString(&c.Dropbox.AppSecret, "DROPBOX_APP_SECRET")
	setString(&c.Dropbox.RefreshToken, "DROPBOX_REFRESH_TOKEN")
	setString(&c.Dropbox.AccessToken, "DROPBOX_ACCESS_TOKEN")
	setString(&c.Dropbox.RootPath, "DROPBOX_ROOT_PATH")

	setString(&c.Blob.Driver, "BLOB_DRIVER")
	setString(&c.Blob.Token, "BLOB_READ_WRITE_TOKEN")
	setString(&c.Blob.PublicBaseURL, "PUBLIC_BASE_URL")

	setString(&c.Sync.BotEmail, "SYNC_BOT_EMAIL")
	setDuration(&c.Sync.Interval, "SYNC_INTERVAL")

	setString(&c.Server.Host, "HOST")
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.CronSecret, "CRON_SECRET")
	setString(&c.Server.SyncAPISecret, "SYNC_API_SECRET")
}

// BlobDir is where the fs driver writes objects, defaulting to DataDir/blobs.
func (c Config) BlobDir() string {
	if c.Blob.Dir != "" {
		return c.Blob.Dir
	}
	return filepath.Join(c.DataDir, "blobs")
}

// BlobBaseURL is the public prefix of fs driver URLs, defaulting to the serve address.
func (c Config) BlobBaseURL() string {
	if c.Blob.PublicBaseURL != "" {
		return strings.TrimRight(c.Blob.PublicBaseURL, "/")
	}
	return fmt.Sprintf("http://%s:%s/files", c.Server.Host, c.Server.Port)
}

// DBPath is the catalog database file.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "portal.db")
}

// IndexPath is the bleve index directory.
func (c Config) IndexPath() string {
	return filepath.Join(c.DataDir, "bleve")
}

// ValidateSync reports the settings a sync run cannot do without.
func (c Config) ValidateSync() error {
	var errs []error
	if c.Dropbox.AccessToken == "" {
		if c.Dropbox.RefreshToken == "" {
			errs = append(errs, errors.New("DROPBOX_REFRESH_TOKEN (or DROPBOX_ACCESS_TOKEN) is required"))
		}
		if c.Dropbox.RefreshToken != "" && (c.Dropbox.AppKey == "" || c.Dropbox.AppSecret == "") {
			errs = append(errs, errors.New("DROPBOX_APP_KEY and DROPBOX_APP_SECRET are required with a refresh token"))
		}
	}
	switch c.Blob.Driver {
	case "fs":
	case "vercel":
		if c.Blob.Token == "" {
			errs = append(errs, errors.New("BLOB_READ_WRITE_TOKEN is required for the vercel blob driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q (supported: fs, vercel)", c.Blob.Driver))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: ignoring invalid duration", "key", key, "value", v)
		return
	}
	*dst = d
}

func defaultConfig() Config {
	return Config{
		DataDir:  "./data",
		LogLevel: "info",
		Dropbox: DropboxConfig{
			ExcludedFolders: []string{"uploads"},
			TokenURL:        "https://api.dropbox.com/oauth2/token",
			APIURL:          "https://api.dropboxapi.com/2",
			ContentURL:      "https://content.dropboxapi.com/2",
			Timeout:         60 * time.Second,
			ExpiryMargin:    60 * time.Second,
		},
		Blob: BlobConfig{
			Driver: "fs",
			APIURL: "https://blob.vercel-storage.com",
		},
		Sync: SyncConfig{
			BotEmail:    defaultBotEmail,
			MaxDuration: 5 * time.Minute,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: "8080",
		},
	}
}
