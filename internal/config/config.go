// Package config loads the service configuration from environment variables
// and an optional .env file, and decides which store mode to start in.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dvloznov/smartfinance/internal/store"
	"github.com/joho/godotenv"
)

// Banner texts shown when an integration is not configured.
const (
	BannerLocalMode     = "Offline demo mode: data is stored on this machine only and will not be saved to the cloud."
	BannerInvalidRemote = "Remote database configuration could not be parsed; running in offline demo mode."
	BannerNoAdviceKey   = "AI advice is unavailable: no generation API key is configured."
)

// Defaults.
const (
	DefaultAdviceModel           = "gemini-3-pro-preview"
	DefaultAdviceMaxTransactions = 20
	DefaultLocalDBPath           = "./data/smartfinance.db"
	DefaultPort                  = "8080"
	DefaultUserID                = "local-user"
	DefaultLogLevel              = "info"
)

// Config is the resolved service configuration.
type Config struct {
	// Mode is the store mode chosen at start.
	Mode store.Mode
	// Banners are informational notices about missing configuration.
	Banners []string

	Firebase FirebaseConfig
	Advice   AdviceConfig
	Local    LocalConfig
	Export   ExportConfig
	Server   ServerConfig
}

// FirebaseConfig holds the remote database settings. It is decoded from the
// FIREBASE_CONFIG JSON blob.
type FirebaseConfig struct {
	ProjectID       string `json:"projectId"`
	DatabaseID      string `json:"databaseId"`
	CredentialsFile string `json:"-"`
}

// AdviceConfig holds the generation API settings.
type AdviceConfig struct {
	APIKey          string
	Model           string
	MaxTransactions int
}

// LocalConfig holds the local store settings.
type LocalConfig struct {
	DBPath     string
	SeedWallet bool
}

// ExportConfig holds the export targets. Empty values disable a target.
type ExportConfig struct {
	GCSBucket  string
	BQProject  string
	BQDataset  string
	MaxRetries int
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	Port          string
	LogLevel      string
	DefaultUserID string
}

// Load reads configuration from the environment. It loads envPath when
// given, otherwise a .env in the working directory if one exists.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}
	return FromLookup(os.Getenv)
}

// FromLookup resolves the configuration from getenv.
func FromLookup(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	maxTx, err := parseIntEnv(get("ADVICE_MAX_TRANSACTIONS", ""), DefaultAdviceMaxTransactions)
	if err != nil {
		return nil, fmt.Errorf("invalid ADVICE_MAX_TRANSACTIONS: %w", err)
	}
	if maxTx <= 0 {
		return nil, fmt.Errorf("invalid ADVICE_MAX_TRANSACTIONS: must be positive, got %d", maxTx)
	}
	maxRetries, err := parseIntEnv(get("EXPORT_MAX_RETRIES", ""), 0)
	if err != nil {
		return nil, fmt.Errorf("invalid EXPORT_MAX_RETRIES: %w", err)
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("invalid EXPORT_MAX_RETRIES: must not be negative, got %d", maxRetries)
	}
	seed, err := parseBoolEnv(get("LOCAL_SEED_WALLET", ""), true)
	if err != nil {
		return nil, fmt.Errorf("invalid LOCAL_SEED_WALLET: %w", err)
	}

	cfg := &Config{
		Advice: AdviceConfig{
			APIKey:          get("GEMINI_API_KEY", get("API_KEY", "")),
			Model:           get("ADVICE_MODEL", DefaultAdviceModel),
			MaxTransactions: maxTx,
		},
		Local: LocalConfig{
			DBPath:     get("LOCAL_DB_PATH", DefaultLocalDBPath),
			SeedWallet: seed,
		},
		Export: ExportConfig{
			GCSBucket:  get("EXPORT_GCS_BUCKET", ""),
			BQProject:  get("EXPORT_BQ_PROJECT", ""),
			BQDataset:  get("EXPORT_BQ_DATASET", ""),
			MaxRetries: maxRetries,
		},
		Server: ServerConfig{
			Port:          get("PORT", DefaultPort),
			LogLevel:      get("LOG_LEVEL", DefaultLogLevel),
			DefaultUserID: get("DEFAULT_USER_ID", DefaultUserID),
		},
	}

	cfg.Mode = store.ModeLocal
	raw := get("FIREBASE_CONFIG", "")
	switch fb, err := ParseFirebaseConfig(raw); {
	case raw == "":
		cfg.Banners = append(cfg.Banners, BannerLocalMode)
	case err != nil:
		cfg.Banners = append(cfg.Banners, BannerInvalidRemote, BannerLocalMode)
	default:
		fb.CredentialsFile = get("FIREBASE_CREDENTIALS_FILE", "")
		cfg.Firebase = fb
		cfg.Mode = store.ModeRemote
	}

	if cfg.Advice.APIKey == "" {
		cfg.Banners = append(cfg.Banners, BannerNoAdviceKey)
	}

	return cfg, nil
}

// ParseFirebaseConfig decodes the FIREBASE_CONFIG JSON blob. A blob without
// a project id is rejected.
func ParseFirebaseConfig(raw string) (FirebaseConfig, error) {
	var fb FirebaseConfig
	if raw == "" {
		return fb, fmt.Errorf("firebase config is empty")
	}
	if err := json.Unmarshal([]byte(raw), &fb); err != nil {
		return FirebaseConfig{}, fmt.Errorf("decoding firebase config: %w", err)
	}
	if fb.ProjectID == "" {
		return FirebaseConfig{}, fmt.Errorf("firebase config has no projectId")
	}
	return fb, nil
}

// AdviceEnabled reports whether a generation API key is configured.
func (c *Config) AdviceEnabled() bool {
	return c.Advice.APIKey != ""
}

// GCSExportEnabled reports whether snapshot backups can be written.
func (c *Config) GCSExportEnabled() bool {
	return c.Export.GCSBucket != ""
}

// BigQueryExportEnabled reports whether analytics exports can be written.
func (c *Config) BigQueryExportEnabled() bool {
	return c.Export.BQProject != "" && c.Export.BQDataset != ""
}

func parseIntEnv(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	return strconv.Atoi(value)
}

func parseBoolEnv(value string, def bool) (bool, error) {
	if value == "" {
		return def, nil
	}
	return strconv.ParseBool(value)
}
