// Package config loads site configuration from an optional .env file, an
// optional YAML file (CONFIG_PATH) and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const DevSecretKey = "dev-secret-change-me"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	StorageDisk = "disk"
	StorageR2   = "r2"

	SessionStoreFilesystem = "filesystem"
	SessionStoreCookie     = "cookie"

	FeedPublic  = "public"
	FeedMembers = "members"
)

type Config struct {
	Addr     string `yaml:"addr" env:"ADDR" env-default:":3000"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	SecretKey     string        `yaml:"secret_key" env:"SECRET_KEY" env-default:"dev-secret-change-me"`
	SessionStore  string        `yaml:"session_store" env:"SESSION_STORE" env-default:"filesystem"`
	SessionDir    string        `yaml:"session_dir" env:"SESSION_DIR" env-default:"./data/sessions"`
	SessionMaxAge time.Duration `yaml:"session_max_age" env:"SESSION_MAX_AGE" env-default:"720h"`
	SecureCookies bool          `yaml:"secure_cookies" env:"SECURE_COOKIES" env-default:"false"`

	Database struct {
		Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
		DSN    string `yaml:"dsn" env:"DSN" env-default:"./data/dsgnr.db"`
	} `yaml:"database"`

	Storage struct {
		Backend    string `yaml:"backend" env:"STORAGE" env-default:"disk"`
		ContentDir string `yaml:"content_dir" env:"CONTENT_DIR" env-default:"./uploads"`

		AccountID       string `yaml:"account_id" env:"ACCOUNT_ID"`
		AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
		AccessKeySecret string `yaml:"access_key_secret" env:"ACCESS_KEY_SECRET"`
		Bucket          string `yaml:"bucket" env:"BUCKET_NAME"`
	} `yaml:"storage"`

	Feed struct {
		Visibility      string `yaml:"visibility" env:"FEED_VISIBILITY" env-default:"members"`
		DisplayTimezone string `yaml:"display_timezone" env:"DISPLAY_TIMEZONE" env-default:"Asia/Kolkata"`
	} `yaml:"feed"`

	MaxUploadBytes     int64 `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"10485760"`
	RateLimitPerMinute int   `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"20"`

	Admin struct {
		Username string `yaml:"username" env:"ADMIN_USERNAME" env-default:"admin"`
		Password string `yaml:"password" env:"ADMIN_PASSWORD" env-default:"adminpass"`
	} `yaml:"admin"`

	OAuth struct {
		GoogleKey    string `yaml:"google_key" env:"GOOGLE_KEY"`
		GoogleSecret string `yaml:"google_secret" env:"GOOGLE_SECRET"`
		CallbackBase string `yaml:"callback_base" env:"OAUTH_CALLBACK_BASE" env-default:"http://localhost:3000"`
	} `yaml:"oauth"`
}

// Load reads .env (if present), then CONFIG_PATH (if set) and the
// environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Storage.Backend {
	case StorageDisk:
		if c.Storage.ContentDir == "" {
			return errors.New("CONTENT_DIR must be set")
		}
	case StorageR2:
		if c.Storage.AccountID == "" || c.Storage.Bucket == "" {
			return errors.New("ACCOUNT_ID and BUCKET_NAME are required for r2 storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage.Backend)
	}
	switch c.SessionStore {
	case SessionStoreFilesystem, SessionStoreCookie:
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}
	switch c.Feed.Visibility {
	case FeedPublic, FeedMembers:
	default:
		return fmt.Errorf("unknown FEED_VISIBILITY %q", c.Feed.Visibility)
	}
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY must be set")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

func (c *Config) UsesDevSecret() bool {
	return c.SecretKey == DevSecretKey
}

func (c *Config) PublicFeed() bool {
	return c.Feed.Visibility == FeedPublic
}

func (c *Config) OAuthEnabled() bool {
	return c.OAuth.GoogleKey != "" && c.OAuth.GoogleSecret != ""
}

// Location resolves DisplayTimezone, falling back to a fixed UTC+05:30 zone
// when the tz database is unavailable.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Feed.DisplayTimezone)
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}
