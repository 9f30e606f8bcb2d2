package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ChainConfig holds the registry contract endpoint and signing settings.
type ChainConfig struct {
	RPCURL          string
	ChainID         int64
	PrivateKey      string
	ContractAddress string
	Confirmations   int
	PollInterval    time.Duration
	GasLimit        uint64
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
	URLExpiry     time.Duration
}

// GCSConfig holds settings for the Google Cloud Storage blob backend.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	PublicBaseURL   string
}

// DatabaseConfig holds PostgreSQL connection settings for the registration journal.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// Enabled reports whether a journal database was configured.
func (c DatabaseConfig) Enabled() bool { return c.Host != "" }

// RedisConfig holds settings for the registry record cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether a cache was configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// RegistrationConfig tunes the registration, verification and listing workflows.
type RegistrationConfig struct {
	MaxFileSize     int64
	ConfirmTimeout  time.Duration
	ListParallelism int
}

// ReconcileConfig tunes the background journal reconciler.
type ReconcileConfig struct {
	Interval      time.Duration
	OrphanAfter   time.Duration
	DeleteOrphans bool
	BatchSize     int
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level    string
	Timezone string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost      string
	Port         string
	BlobBackend  string
	CORSOrigins  []string
	Chain        ChainConfig
	MinIO        MinIOConfig
	GCS          GCSConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Registration RegistrationConfig
	Reconcile    ReconcileConfig
	Log          LogConfig
}

// DefaultMaxFileSize is the upload ceiling when MAX_FILE_SIZE is unset (10 MiB).
const DefaultMaxFileSize int64 = 10 << 20

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:     getEnv("APP_HOST", "localhost:8080"),
		Port:        getEnv("PORT", "8080"),
		BlobBackend: getEnv("BLOB_BACKEND", "minio"),
		CORSOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
		Chain: ChainConfig{
			RPCURL:          getEnv("CHAIN_RPC_URL", ""),
			ChainID:         getEnvInt64("CHAIN_ID", 0),
			PrivateKey:      getEnv("PRIVATE_KEY", ""),
			ContractAddress: getEnv("CONTRACT_ADDRESS", ""),
			Confirmations:   getEnvInt("CHAIN_CONFIRMATIONS", 1),
			PollInterval:    getEnvDuration("CHAIN_POLL_INTERVAL_MS", 2000, time.Millisecond),
			GasLimit:        uint64(getEnvInt64("CHAIN_GAS_LIMIT", 0)),
		},
		MinIO: MinIOConfig{
			Endpoint:      getEnv("MINIO_ENDPOINT", ""),
			AccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:     getEnv("MINIO_SECRET_KEY", ""),
			Bucket:        getEnv("MINIO_BUCKET", ""),
			Region:        getEnv("MINIO_REGION", "us-east-1"),
			UseSSL:        getEnvBool("MINIO_USE_SSL", false),
			PublicBaseURL: getEnv("BLOB_PUBLIC_BASE_URL", ""),
			URLExpiry:     getEnvDuration("BLOB_URL_EXPIRY_SEC", 604800, time.Second),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			PublicBaseURL:   getEnv("BLOB_PUBLIC_BASE_URL", ""),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_TTL_SEC", 3600, time.Second),
		},
		Registration: RegistrationConfig{
			MaxFileSize:     getEnvInt64("MAX_FILE_SIZE", DefaultMaxFileSize),
			ConfirmTimeout:  getEnvDuration("CONFIRM_TIMEOUT_SEC", 120, time.Second),
			ListParallelism: getEnvInt("LIST_PARALLELISM", 8),
		},
		Reconcile: ReconcileConfig{
			Interval:      getEnvDuration("RECONCILE_INTERVAL_SEC", 60, time.Second),
			OrphanAfter:   getEnvDuration("RECONCILE_ORPHAN_AFTER_SEC", 3600, time.Second),
			DeleteOrphans: getEnvBool("RECONCILE_DELETE_ORPHANS", false),
			BatchSize:     getEnvInt("RECONCILE_BATCH_SIZE", 100),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Timezone: getEnv("APP_TIMEZONE", "UTC"),
		},
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c LogConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration reads an integer count of unit; non-positive values fall back to def.
func getEnvDuration(key string, def int64, unit time.Duration) time.Duration {
	n := getEnvInt64(key, def)
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * unit
}
