package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"coinsnap/internal/domain"
	"coinsnap/internal/infrastructure/db"
)

// ErrMissingConfig is returned when a required setting is absent.
var ErrMissingConfig = errors.New("missing required configuration")

const (
	DefaultAPIBaseURL     = "https://rest.coincap.io/v3"
	DefaultAssetLimit     = 2000
	DefaultRequestTimeout = 30 * time.Second
	DefaultRequestsPerSec = 2.0
	DefaultDatabasePath   = "crypto_data.db"
	DefaultTopSheetName   = "top_5_coins"
	DefaultRemainderSheet = "other_coins"
	DefaultLogLevel       = "info"

	configFileEnv = "COINSNAP_CONFIG"
	envFile       = ".env"
)

// Config is built once at startup and handed to every collaborator.
type Config struct {
	APIKey            string        `yaml:"-"`
	APIBaseURL        string        `yaml:"api_base_url"`
	AssetLimit        int           `yaml:"asset_limit"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`

	CredentialsPath    string `yaml:"credentials_path"`
	TopSheetName       string `yaml:"top_sheet_name"`
	RemainderSheetName string `yaml:"remainder_sheet_name"`

	// GoogleAPIEndpoint replaces the Drive and Sheets endpoints and disables
	// authentication. Meant for local emulators.
	GoogleAPIEndpoint string `yaml:"google_api_endpoint"`

	DB db.Config `yaml:"database"`

	MetricsTextfile string `yaml:"metrics_textfile"`

	FirebaseCredentialsPath string   `yaml:"firebase_credentials_path"`
	FirebaseCredentialsJSON string   `yaml:"-"`
	NotifyTokens            []string `yaml:"notify_device_tokens"`

	LogLevel string `yaml:"log_level"`
}

// Default returns a Config with every optional setting filled in.
func Default() Config {
	return Config{
		APIBaseURL:         DefaultAPIBaseURL,
		AssetLimit:         DefaultAssetLimit,
		RequestTimeout:     DefaultRequestTimeout,
		RequestsPerSecond:  DefaultRequestsPerSec,
		TopSheetName:       DefaultTopSheetName,
		RemainderSheetName: DefaultRemainderSheet,
		DB:                 db.DefaultConfig(DefaultDatabasePath),
		LogLevel:           DefaultLogLevel,
	}
}

// Load reads .env, the optional YAML file named by COINSNAP_CONFIG and the
// process environment, then validates the result.
func Load() (Config, error) {
	cfg, err := LoadUnvalidated()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without Validate, for commands that only touch the
// local store.
func LoadUnvalidated() (Config, error) {
	// Variables already present in the environment win over .env.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	return Resolve(os.Getenv)
}

// FromLookup builds a Config from defaults, the YAML file and getenv and
// validates it.
func FromLookup(getenv func(string) string) (Config, error) {
	cfg, err := Resolve(getenv)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Resolve layers defaults, the YAML file and getenv without validation.
func Resolve(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(getenv(configFileEnv)); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv(getenv)
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if v := env("COINCAP_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := env("COINCAP_BASE_URL"); v != "" {
		c.APIBaseURL = strings.TrimRight(v, "/")
	}
	if v := env("COINCAP_ASSET_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.AssetLimit = n
		}
	}
	if v := env("COINCAP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := env("COINCAP_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.RequestsPerSecond = f
		}
	}

	if v := env("GOOGLE_SHEETS_CREDENTIALS_PATH"); v != "" {
		c.CredentialsPath = v
	}
	if v := env("GOOGLE_API_ENDPOINT"); v != "" {
		c.GoogleAPIEndpoint = v
	}
	if v := env("TOP_SHEET_NAME"); v != "" {
		c.TopSheetName = v
	}
	if v := env("OTHER_SHEET_NAME"); v != "" {
		c.RemainderSheetName = v
	}

	if v := env("DATABASE_PATH"); v != "" {
		c.DB.Path = v
	}
	if v := env("DATABASE_URL"); v != "" {
		c.DB.URL = v
	}
	c.DB.ApplyEnv(getenv)

	if v := env("METRICS_TEXTFILE"); v != "" {
		c.MetricsTextfile = v
	}
	if v := env("FIREBASE_CREDENTIALS_PATH"); v != "" {
		c.FirebaseCredentialsPath = v
	}
	if v := env("FIREBASE_CREDENTIALS_JSON"); v != "" {
		c.FirebaseCredentialsJSON = v
	}
	if v := env("NOTIFY_DEVICE_TOKENS"); v != "" {
		c.NotifyTokens = splitList(v)
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the settings the pipeline cannot run without.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: COINCAP_API_KEY is not set", ErrMissingConfig)
	}
	if c.CredentialsPath == "" {
		return fmt.Errorf("%w: GOOGLE_SHEETS_CREDENTIALS_PATH is not set", ErrMissingConfig)
	}
	if _, err := os.Stat(c.CredentialsPath); err != nil {
		return fmt.Errorf("%w: credentials file %q: %v", ErrMissingConfig, c.CredentialsPath, err)
	}
	if c.TopSheetName == c.RemainderSheetName {
		return fmt.Errorf("top and remainder sheets must differ, both are %q", c.TopSheetName)
	}
	return nil
}

// SheetNames maps dataset names to spreadsheet names.
func (c Config) SheetNames() map[string]string {
	return map[string]string{
		domain.TopTierDataset:   c.TopSheetName,
		domain.RemainderDataset: c.RemainderSheetName,
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
