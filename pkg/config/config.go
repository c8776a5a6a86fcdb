package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Workspace store backends.
const (
	WorkspaceStoreMemory = "memory"
	WorkspaceStoreRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Backend   BackendConfig
	Workspace WorkspaceConfig
	Downloads DownloadsConfig
	Exports   ExportsConfig
	Journal   JournalConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
}

// BackendConfig points at the external generation service.
type BackendConfig struct {
	BaseURL           string
	RequestTimeout    time.Duration
	GenerationTimeout time.Duration
}

// WorkspaceConfig controls where the studio keeps form and review state.
type WorkspaceConfig struct {
	Store string
	Key   string
	TTL   time.Duration
}

// DownloadsConfig controls the document downloader.
type DownloadsConfig struct {
	Dir     string
	TempDir string
}

// ExportsConfig controls local exports of the review.
type ExportsConfig struct {
	Dir             string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// JournalConfig toggles the download journal.
type JournalConfig struct {
	Enabled bool
}

type DatabaseConfig struct {
	URL          string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Backend = BackendConfig{
		BaseURL:           strings.TrimRight(strings.TrimSpace(v.GetString("BACKEND_BASE_URL")), "/"),
		RequestTimeout:    parseDuration(v.GetString("BACKEND_TIMEOUT"), 30*time.Second),
		GenerationTimeout: parseDuration(v.GetString("GENERATION_TIMEOUT"), 3*time.Minute),
	}

	store := strings.ToLower(strings.TrimSpace(v.GetString("WORKSPACE_STORE")))
	if store != WorkspaceStoreRedis {
		store = WorkspaceStoreMemory
	}
	cfg.Workspace = WorkspaceConfig{
		Store: store,
		Key:   v.GetString("WORKSPACE_KEY"),
		TTL:   parseDuration(v.GetString("WORKSPACE_TTL"), 12*time.Hour),
	}

	cfg.Downloads = DownloadsConfig{
		Dir:     v.GetString("DOWNLOADS_DIR"),
		TempDir: v.GetString("DOWNLOADS_TEMP_DIR"),
	}

	cfg.Exports = ExportsConfig{
		Dir:             v.GetString("EXPORTS_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
	}

	cfg.Journal = JournalConfig{Enabled: v.GetBool("ENABLE_DOWNLOAD_JOURNAL")}

	cfg.Database = DatabaseConfig{
		URL:          v.GetString("DATABASE_URL"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("BACKEND_BASE_URL", "http://localhost:5000")
	v.SetDefault("BACKEND_TIMEOUT", "30s")
	v.SetDefault("GENERATION_TIMEOUT", "3m")

	v.SetDefault("WORKSPACE_STORE", WorkspaceStoreMemory)
	v.SetDefault("WORKSPACE_KEY", "edugen:workspace")
	v.SetDefault("WORKSPACE_TTL", "12h")

	v.SetDefault("DOWNLOADS_DIR", "./downloads")
	v.SetDefault("DOWNLOADS_TEMP_DIR", "./downloads/.tmp")

	v.SetDefault("EXPORTS_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")

	v.SetDefault("ENABLE_DOWNLOAD_JOURNAL", false)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "edugen_studio")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 4)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// isMissingFile reports whether viper failed only because .env is absent;
// SetConfigFile bypasses the ConfigFileNotFoundError path.
func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
