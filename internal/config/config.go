// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is shared by the daemon and the Cloud Function. Required values are
// not checked here; each client reports a missing value when first used.
type Config struct {
	WatchEmailAddress string `env:"WATCH_EMAIL_ADDRESS"`
	ProcessedLabel    string `env:"PROCESSED_LABEL" envDefault:"processed"`

	FileStoreBackend string `env:"FILE_STORE_BACKEND" envDefault:"drive"`
	RootFolderID     string `env:"GDRIVE_ROOT_FOLDER_ID"`
	GCSBucket        string `env:"GCS_BUCKET"`

	AIProvider       string        `env:"AI_PROVIDER" envDefault:"openrouter"`
	AIModel          string        `env:"AI_MODEL" envDefault:"google/gemini-2.0-flash-exp:free"`
	AIBaseURL        string        `env:"AI_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterAPIKey string        `env:"OPENROUTER_API_KEY"`
	AITimeout        time.Duration `env:"AI_TIMEOUT" envDefault:"60s"`

	LedgerBackend         string `env:"LEDGER_BACKEND" envDefault:"supabase"`
	SupabaseURL           string `env:"SUPABASE_URL"`
	SupabaseAnonKey       string `env:"SUPABASE_ANON_KEY"`
	SupabaseSourceColumns bool   `env:"SUPABASE_SOURCE_COLUMNS"`
	DatabaseURL           string `env:"DATABASE_URL"`

	CronSchedule string `env:"CRON_SCHEDULE" envDefault:"0 * * * *"`
	Port         string `env:"PORT" envDefault:"3000"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleTokenPath    string `env:"GOOGLE_TOKEN_PATH" envDefault:"tokens/google_token.json"`

	ProjectID           string `env:"PROJECT_ID"`
	VertexAIRegion      string `env:"VERTEX_AI_REGION" envDefault:"us-central1"`
	FirestoreCollection string `env:"FIRESTORE_COLLECTION" envDefault:"invoice_runs"`
	WorkflowID          string `env:"WORKFLOW_ID"`
	WorkflowLocation    string `env:"WORKFLOW_LOCATION" envDefault:"us-central1"`

	PdftotextBin string `env:"PDFTOTEXT_BIN"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Backend names.
const (
	FileStoreDrive = "drive"
	FileStoreGCS   = "gcs"

	AIProviderOpenRouter = "openrouter"
	AIProviderVertex     = "vertex"

	LedgerSupabase = "supabase"
	LedgerPostgres = "postgres"
)

// Load parses the environment into a Config and checks the backend choices.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validateBackends(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv populates target from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) validateBackends() error {
	switch c.FileStoreBackend {
	case FileStoreDrive, FileStoreGCS:
	default:
		return fmt.Errorf("unknown FILE_STORE_BACKEND %q", c.FileStoreBackend)
	}
	switch c.AIProvider {
	case AIProviderOpenRouter, AIProviderVertex:
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}
	switch c.LedgerBackend {
	case LedgerSupabase, LedgerPostgres:
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}
	return nil
}
