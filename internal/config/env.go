package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
	Level         string
}

// ServerConfig defines the HTTP surface.
type ServerConfig struct {
	Port            string
	AllowedOrigins  []string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// WorkspaceConfig defines ordering defaults.
type WorkspaceConfig struct {
	SortMethod string // "date"|"name"|"number"
	Locale     string // collation locale for name sorting
}

// RenderConfig defines thumbnail rendering.
type RenderConfig struct {
	DPI     int
	Quality int
}

// StorageConfig defines where merge outputs go and how S3 is reached.
type StorageConfig struct {
	ResultDir       string
	ResultMaxAge    time.Duration
	// ImportRoot is the only directory path references may read from.
	// Empty disables path imports.
	ImportRoot      string
	S3Bucket        string
	S3Prefix        string
	S3Region        string
	AccessKeyID     string
	SecretAccessKey string
}

// RedisConfig defines the optional job status backend.
type RedisConfig struct {
	URL       string
	StatusTTL time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Server    ServerConfig
	Workspace WorkspaceConfig
	Render    RenderConfig
	Storage   StorageConfig
	Redis     RedisConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfmerger.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfmerger",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
		Level:         getEnv("AXIOM_LEVEL", "info"),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		AllowedOrigins:  parseList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		MaxUploadBytes:  parseInt64(getEnv("MAX_UPLOAD_BYTES", ""), 256<<20),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	cfg.Workspace = WorkspaceConfig{
		SortMethod: getEnv("DEFAULT_SORT", "date"),
		Locale:     getEnv("SORT_LOCALE", "en"),
	}

	cfg.Render = RenderConfig{
		DPI:     parseInt(getEnv("THUMBNAIL_DPI", "24"), 24),
		Quality: parseInt(getEnv("THUMBNAIL_QUALITY", "75"), 75),
	}

	cfg.Storage = StorageConfig{
		ResultDir:       getEnv("RESULT_DIR", "uploads/results"),
		ResultMaxAge:    parseDuration(getEnv("RESULT_MAX_AGE", "1h"), time.Hour),
		ImportRoot:      getEnv("IMPORT_ROOT", ""),
		S3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		S3Prefix:        getEnv("AWS_S3_PREFIX", "merged"),
		S3Region:        getEnv("AWS_REGION", ""),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}

	cfg.Redis = RedisConfig{
		URL:       getEnv("REDIS_URL", ""),
		StatusTTL: parseDuration(getEnv("STATUS_TTL", "24h"), 24*time.Hour),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
