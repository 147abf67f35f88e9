package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for portal-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Identity provider configuration (invitations API + webhooks)
	Identity IdentityConfig `yaml:"identity"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Import pipeline configuration
	Imports ImportsConfig `yaml:"imports"`

	// Archive of raw uploaded import files (S3-compatible, optional)
	Archive ArchiveConfig `yaml:"archive"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without the identity provider.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// IdentityConfig holds identity-provider integration settings.
type IdentityConfig struct {
	// APIURL is the provider's REST API base URL.
	APIURL string `yaml:"api_url" env:"IDENTITY_API_URL" env-default:"https://api.identity.local"`

	// SecretKey authenticates server-to-provider calls (Bearer token).
	SecretKey string `yaml:"-" env:"IDENTITY_SECRET_KEY"` // Secret - not in YAML

	// WebhookSecret verifies signed webhook payloads from the provider.
	WebhookSecret string `yaml:"-" env:"IDENTITY_WEBHOOK_SECRET"` // Secret - not in YAML

	// InvitationTTLHours is how long provider invitations stay valid.
	InvitationTTLHours int `yaml:"invitation_ttl_hours" env:"IDENTITY_INVITATION_TTL_HOURS" env-default:"168"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"portal"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"portal_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ImportsConfig holds CSV/XLSX import pipeline settings.
// Size limits are enforced server-side; the UI limits are advisory only.
type ImportsConfig struct {
	WorkflowMaxBytes     int64 `yaml:"workflow_max_bytes" env:"IMPORT_WORKFLOW_MAX_BYTES" env-default:"8388608"`
	UserMaxBytes         int64 `yaml:"user_max_bytes" env:"IMPORT_USER_MAX_BYTES" env-default:"20971520"`
	BookWorkflowMaxBytes int64 `yaml:"book_workflow_max_bytes" env:"IMPORT_BOOK_WORKFLOW_MAX_BYTES" env-default:"20971520"`

	// InvitationBatchSize is the fan-out width for provider invitation calls.
	InvitationBatchSize int `yaml:"invitation_batch_size" env:"IMPORT_INVITATION_BATCH_SIZE" env-default:"10"`

	// SampleRows is how many input rows a preview echoes back for display.
	SampleRows int `yaml:"sample_rows" env:"IMPORT_SAMPLE_ROWS" env-default:"5"`
}

// ArchiveConfig holds S3-compatible storage settings for archiving the raw
// uploaded file of each committed import. Disabled when Bucket is empty.
type ArchiveConfig struct {
	Bucket          string `yaml:"bucket" env:"ARCHIVE_S3_BUCKET" env-default:""`
	Region          string `yaml:"region" env:"ARCHIVE_S3_REGION" env-default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"ARCHIVE_S3_ENDPOINT" env-default:""` // optional, for MinIO
	PathStyle       bool   `yaml:"path_style" env:"ARCHIVE_S3_PATH_STYLE" env-default:"false"`
	AccessKeyID     string `yaml:"-" env:"ARCHIVE_S3_ACCESS_KEY_ID"`     // Secret - not in YAML
	SecretAccessKey string `yaml:"-" env:"ARCHIVE_S3_SECRET_ACCESS_KEY"` // Secret - not in YAML
}

// Enabled reports whether import-file archiving is configured.
func (c *ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if cfg.Auth.EnableVerification && len(cfg.Auth.JWKSEndpoints) == 0 {
		return nil, fmt.Errorf("auth verification enabled but no JWKS endpoints configured")
	}

	return cfg, nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns a postgres:// connection URL for pgxpool.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// MaxBytesFor returns the upload size limit for an import kind.
func (c *ImportsConfig) MaxBytesFor(kind string) int64 {
	switch kind {
	case "workflows":
		return c.WorkflowMaxBytes
	case "book_workflows":
		return c.BookWorkflowMaxBytes
	default:
		return c.UserMaxBytes
	}
}
