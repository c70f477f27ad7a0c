package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort       = 3000
	defaultGraphURL   = "https://graph.facebook.com/v17.0"
	defaultSheetRange = "Leads!A1"
	defaultWALink     = "https://wa.me/34TU_NUMERO?text=Hola%20Joana"
	defaultLogLevel   = "info"
	defaultTimeout    = 10 * time.Second
)

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

// Config is read from an optional YAML file and then overridden by the
// environment. Secrets are normally provided only through the environment.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Meta       MetaConfig       `yaml:"meta"`
	Sheets     SheetsConfig     `yaml:"sheets"`
	Templates  TemplatesConfig  `yaml:"templates"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Links      LinksConfig      `yaml:"links"`
	Journal    JournalConfig    `yaml:"journal"`
	Options    Options          `yaml:"options"`
}

type ServerConfig struct {
	Port int `yaml:"port" env:"PORT"`
}

// MetaConfig holds the webhook and Graph API settings.
type MetaConfig struct {
	VerifyToken string        `yaml:"verify_token" env:"IG_VERIFY_TOKEN"`
	AppSecret   string        `yaml:"app_secret" env:"FB_APP_SECRET"` // Enables X-Hub-Signature-256 checks
	PageID      string        `yaml:"page_id" env:"FB_PAGE_ID"`
	AccessToken string        `yaml:"access_token" env:"PAGE_ACCESS_TOKEN"`
	GraphURL    string        `yaml:"graph_url" env:"GRAPH_API_URL"`
	Timeout     time.Duration `yaml:"timeout" env:"GRAPH_TIMEOUT"`
}

type SheetsConfig struct {
	SpreadsheetID     string `yaml:"spreadsheet_id" env:"GSHEET_ID"`
	Range             string `yaml:"range" env:"SHEET_RANGE"`
	CredentialsBase64 string `yaml:"credentials_base64" env:"GOOGLE_SERVICE_ACCOUNT_JSON_BASE64"`
}

type TemplatesConfig struct {
	BundleBase64 string `yaml:"bundle_base64" env:"TEMPLATES_JSON_BASE64"`
	// FallbackBucket defaults to the bundle's first declared bucket, or travel
	// for the built-in templates.
	FallbackBucket string `yaml:"fallback_bucket" env:"FALLBACK_BUCKET"`
	FollowUp       string `yaml:"follow_up" env:"FOLLOW_UP_TEXT"`
}

type ClassifierConfig struct {
	RulesFile string `yaml:"rules_file" env:"RULES_FILE"`
}

type LinksConfig struct {
	WhatsApp string `yaml:"whatsapp" env:"WA_LINK"`
	Form     string `yaml:"form" env:"FORM_LINK"`
}

// JournalConfig controls the local SQLite mirror of audit rows.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" env:"JOURNAL_ENABLED"`
	Path    string `yaml:"path" env:"JOURNAL_PATH"`
}

type Options struct {
	DryRun   bool   `yaml:"dry_run" env:"DRY_RUN"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment without overriding variables that are already set. Missing
// files are ignored; the names of loaded files are returned.
func LoadDotEnv(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var loaded []string
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return loaded, fmt.Errorf("failed to load %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

// Defaults returns a configuration holding only default values. Nothing is
// read from the environment.
func Defaults() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads path (when non-empty), applies environment overrides and fills
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := checkFilePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Meta.GraphURL == "" {
		c.Meta.GraphURL = defaultGraphURL
	}
	if c.Meta.Timeout == 0 {
		c.Meta.Timeout = defaultTimeout
	}
	if c.Sheets.Range == "" {
		c.Sheets.Range = defaultSheetRange
	}
	if c.Links.WhatsApp == "" {
		c.Links.WhatsApp = defaultWALink
	}
	if c.Options.LogLevel == "" {
		c.Options.LogLevel = defaultLogLevel
	}
	if c.Journal.Path != "" {
		c.Journal.Enabled = true
	}
}

// Save writes cfg as YAML with owner-only permissions.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// ValidateServe checks the settings the webhook server cannot run without.
// The audit sheet is optional: without it rows only reach the journal.
func (c *Config) ValidateServe() error {
	var missing []string
	if c.Meta.VerifyToken == "" {
		missing = append(missing, "IG_VERIFY_TOKEN")
	}
	if !c.Options.DryRun {
		if c.Meta.PageID == "" {
			missing = append(missing, "FB_PAGE_ID")
		}
		if c.Meta.AccessToken == "" {
			missing = append(missing, "PAGE_ACCESS_TOKEN")
		}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SheetsEnabled reports whether audit rows should go to the spreadsheet.
func (c *Config) SheetsEnabled() bool {
	return c.Sheets.SpreadsheetID != ""
}
