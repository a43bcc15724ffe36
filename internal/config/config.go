// Package config loads the editor configuration in layers: built-in defaults,
// then an optional YAML file, then PB_* environment variables. The merged
// result is validated before it is returned.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	SiteID      string            `yaml:"siteID" validate:"required"`
	Store       StoreConfig       `yaml:"store"`
	Editor      EditorConfig      `yaml:"editor"`
	Registry    RegistryConfig    `yaml:"registry"`
	Modules     ModulesConfig     `yaml:"modules"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Revisions   RevisionsConfig   `yaml:"revisions"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// StoreConfig selects the Page Store backend. DSN wins over the discrete
// connection fields when both are set.
type StoreConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=sqlite postgres mysql mongodb"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslMode"`
	// Token is handed to the Page Store with every call. When TokenSecret is
	// set the token is read from the secret backend on every call instead.
	Token         string `yaml:"token"`
	TokenSecret   string `yaml:"tokenSecret"`
	SecretBackend string `yaml:"secretBackend" validate:"oneof=env keychain"`
}

type EditorConfig struct {
	HistoryLimit  int           `yaml:"historyLimit" validate:"gte=1,lte=1000"`
	AutosaveDelay time.Duration `yaml:"autosaveDelay" validate:"gte=1ms"`
	SaveTimeout   time.Duration `yaml:"saveTimeout" validate:"gte=1ms"`
}

type RegistryConfig struct {
	// Path to a YAML block catalog. Empty uses the built-in one.
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type ModulesConfig struct {
	Enabled []string `yaml:"enabled"`
}

type PermissionsConfig struct {
	ReadOnly bool `yaml:"readOnly"`
}

type RevisionsConfig struct {
	Keep     int    `yaml:"keep" validate:"gte=0"`
	Schedule string `yaml:"schedule"`
}

// MetricsConfig exposes Prometheus metrics over HTTP. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		SiteID: "default",
		Store: StoreConfig{
			Driver:        "sqlite",
			DSN:           "pagebuilder.db",
			SecretBackend: "env",
		},
		Editor: EditorConfig{
			HistoryLimit:  40,
			AutosaveDelay: 30 * time.Second,
			SaveTimeout:   15 * time.Second,
		},
		Modules: ModulesConfig{
			Enabled: []string{"forms", "media", "maps", "embeds"},
		},
		Revisions: RevisionsConfig{
			Keep:     20,
			Schedule: "@every 1h",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. An empty path skips the file layer; a path
// that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := loadEnvironmentVariables(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// loadEnvironmentVariables overlays PB_* variables on cfg.
func loadEnvironmentVariables(cfg *Config) error {
	if val := os.Getenv("PB_SITE_ID"); val != "" {
		cfg.SiteID = val
	}

	if val := os.Getenv("PB_STORE_DRIVER"); val != "" {
		cfg.Store.Driver = val
	}
	if val := os.Getenv("PB_STORE_DSN"); val != "" {
		cfg.Store.DSN = val
	}
	if val := os.Getenv("PB_STORE_HOST"); val != "" {
		cfg.Store.Host = val
	}
	if val := os.Getenv("PB_STORE_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("PB_STORE_PORT: %w", err)
		}
		cfg.Store.Port = port
	}
	if val := os.Getenv("PB_STORE_USER"); val != "" {
		cfg.Store.User = val
	}
	if val := os.Getenv("PB_STORE_PASSWORD"); val != "" {
		cfg.Store.Password = val
	}
	if val := os.Getenv("PB_STORE_DATABASE"); val != "" {
		cfg.Store.Database = val
	}
	if val := os.Getenv("PB_STORE_TOKEN"); val != "" {
		cfg.Store.Token = val
	}
	if val := os.Getenv("PB_STORE_TOKEN_SECRET"); val != "" {
		cfg.Store.TokenSecret = val
	}
	if val := os.Getenv("PB_SECRET_BACKEND"); val != "" {
		cfg.Store.SecretBackend = val
	}

	if val := os.Getenv("PB_HISTORY_LIMIT"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("PB_HISTORY_LIMIT: %w", err)
		}
		cfg.Editor.HistoryLimit = n
	}
	if val := os.Getenv("PB_AUTOSAVE_DELAY"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("PB_AUTOSAVE_DELAY: %w", err)
		}
		cfg.Editor.AutosaveDelay = d
	}
	if val := os.Getenv("PB_SAVE_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("PB_SAVE_TIMEOUT: %w", err)
		}
		cfg.Editor.SaveTimeout = d
	}

	if val := os.Getenv("PB_REGISTRY_PATH"); val != "" {
		cfg.Registry.Path = val
	}
	if val := os.Getenv("PB_REGISTRY_WATCH"); val != "" {
		cfg.Registry.Watch = parseBool(val)
	}

	if val, ok := os.LookupEnv("PB_MODULES"); ok {
		cfg.Modules.Enabled = splitList(val)
	}
	if val := os.Getenv("PB_READ_ONLY"); val != "" {
		cfg.Permissions.ReadOnly = parseBool(val)
	}

	if val := os.Getenv("PB_LOG_LEVEL"); val != "" {
		cfg.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("PB_LOG_DEVELOPMENT"); val != "" {
		cfg.Log.Development = parseBool(val)
	}
	if val := os.Getenv("PB_METRICS_ADDR"); val != "" {
		cfg.Metrics.Addr = val
	}
	return nil
}

// Validate checks struct tags plus the rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Store.Driver != "sqlite" && c.Store.DSN == "" && c.Store.Host == "" {
		return errors.New("store: dsn or host is required for " + c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		return errors.New("store: dsn is required for sqlite")
	}
	if c.Store.Driver == "mongodb" && c.Store.Database == "" {
		return errors.New("store: database is required for mongodb")
	}
	if c.Revisions.Keep > 0 && c.Revisions.Schedule == "" {
		return errors.New("revisions: schedule is required when keep is set")
	}
	return nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
