// internal/pkg/config/config.go
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingRequiredConfig marks a required setting that was left empty.
var ErrMissingRequiredConfig = errors.New("missing required configuration")

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Asynq    AsynqConfig
	Storage  StorageConfig
	Imports  ImportConfig
	Security SecurityConfig
	Server   ServerConfig
	Secrets  SecretsConfig
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Version     string
	LogLevel    string
	LogFormat   string // json, text
	Debug       bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host               string `required:"true"`
	Port               string
	User               string
	Password           string
	Name               string `required:"true"`
	SSLMode            string
	MaxConnections     int32
	MinConnections     int32
	MaxConnLifetime    time.Duration
	MaxConnIdleTime    time.Duration
	HealthCheckPeriod  time.Duration
	ConnectTimeout     time.Duration
	EnableQueryLogging bool
	MigrateOnStart     bool
	MigrationRetries   int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         string
	Password     string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// CacheConfig controls the Redis read-through cache for reports.
type CacheConfig struct {
	Enabled   bool
	Namespace string
}

// AsynqConfig holds Asynq configuration
type AsynqConfig struct {
	Enabled         bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	Concurrency     int
	Queues          map[string]int // queue name -> priority
	StrictPriority  bool
	ShutdownTimeout time.Duration
	CleanupSchedule string
	RefreshSchedule string
}

// StorageConfig selects and configures object storage for exports and imports.
type StorageConfig struct {
	Driver          string // s3, local
	LocalPath       string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string // For MinIO in development
	UsePathStyle    bool   // For MinIO compatibility
	CreateBucket    bool
	PresignTTL      time.Duration
	ExportRetention time.Duration
}

// ImportConfig limits catalog spreadsheet uploads.
type ImportConfig struct {
	MaxUploadMB int
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	JWTSecret         string
	JWTIssuer         string
	JWTAudience       string
	JWTExpiration     time.Duration
	BcryptCost        int
	RateLimitRequests int
	RateLimitDuration time.Duration
	AllowedOrigins    []string
	SecureHeaders     bool
	RequestIDHeader   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string `required:"true"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	MaxHeaderBytes  int
	GracefulTimeout time.Duration
}

// SecretsConfig points at an external secret store that overrides credentials.
type SecretsConfig struct {
	Provider string // env, aws
	Name     string
	Region   string
}

// Load loads configuration from the environment, a .env file in development
// and, when configured, AWS Secrets Manager.
func Load(logger *slog.Logger) (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" || env == "local" {
		if err := godotenv.Load(); err != nil {
			logger.Warn("no .env file found, using environment variables",
				slog.String("error", err.Error()))
		} else {
			logger.Info(".env file loaded successfully")
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v, env)

	cfg := fromViper(v, env)

	if err := applySecrets(context.Background(), cfg, logger); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func fromViper(v *viper.Viper, env string) *Config {
	redis := RedisConfig{
		Host:         v.GetString("REDIS_HOST"),
		Port:         v.GetString("REDIS_PORT"),
		Password:     v.GetString("REDIS_PASSWORD"),
		DB:           v.GetInt("REDIS_DB"),
		MaxRetries:   v.GetInt("REDIS_MAX_RETRIES"),
		DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
		ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
		WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
		PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
		MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
	}

	return &Config{
		App: AppConfig{
			Name:        v.GetString("APP_NAME"),
			Environment: env,
			Version:     v.GetString("APP_VERSION"),
			LogLevel:    v.GetString("LOG_LEVEL"),
			LogFormat:   v.GetString("LOG_FORMAT"),
			Debug:       v.GetBool("APP_DEBUG"),
		},
		Database: DatabaseConfig{
			Host:               v.GetString("DB_HOST"),
			Port:               v.GetString("DB_PORT"),
			User:               v.GetString("DB_USER"),
			Password:           v.GetString("DB_PASSWORD"),
			Name:               v.GetString("DB_NAME"),
			SSLMode:            v.GetString("DB_SSL_MODE"),
			MaxConnections:     v.GetInt32("DB_MAX_CONNECTIONS"),
			MinConnections:     v.GetInt32("DB_MIN_CONNECTIONS"),
			MaxConnLifetime:    v.GetDuration("DB_CONNECTION_LIFETIME"),
			MaxConnIdleTime:    v.GetDuration("DB_IDLE_TIME"),
			HealthCheckPeriod:  v.GetDuration("DB_HEALTH_CHECK_PERIOD"),
			ConnectTimeout:     v.GetDuration("DB_CONNECT_TIMEOUT"),
			EnableQueryLogging: v.GetBool("DB_QUERY_LOGGING"),
			MigrateOnStart:     v.GetBool("DB_MIGRATE_ON_START"),
			MigrationRetries:   v.GetInt("DB_MIGRATION_RETRIES"),
		},
		Redis: redis,
		Cache: CacheConfig{
			Enabled:   v.GetBool("CACHE_ENABLED"),
			Namespace: v.GetString("CACHE_NAMESPACE"),
		},
		Asynq: AsynqConfig{
			Enabled:         v.GetBool("ASYNQ_ENABLED"),
			RedisAddr:       redis.Addr(),
			RedisPassword:   redis.Password,
			RedisDB:         v.GetInt("ASYNQ_REDIS_DB"),
			Concurrency:     v.GetInt("ASYNQ_CONCURRENCY"),
			Queues:          parseQueues(v.GetString("ASYNQ_QUEUES")),
			StrictPriority:  v.GetBool("ASYNQ_STRICT_PRIORITY"),
			ShutdownTimeout: v.GetDuration("ASYNQ_SHUTDOWN_TIMEOUT"),
			CleanupSchedule: v.GetString("ASYNQ_CLEANUP_SCHEDULE"),
			RefreshSchedule: v.GetString("ASYNQ_REFRESH_SCHEDULE"),
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
			LocalPath:       v.GetString("STORAGE_LOCAL_PATH"),
			Region:          v.GetString("AWS_REGION"),
			AccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
			Bucket:          v.GetString("AWS_S3_BUCKET"),
			Endpoint:        v.GetString("AWS_S3_ENDPOINT"),
			UsePathStyle:    v.GetBool("AWS_S3_PATH_STYLE"),
			CreateBucket:    v.GetBool("AWS_S3_CREATE_BUCKET"),
			PresignTTL:      v.GetDuration("STORAGE_PRESIGN_TTL"),
			ExportRetention: v.GetDuration("EXPORT_RETENTION"),
		},
		Imports: ImportConfig{
			MaxUploadMB: v.GetInt("IMPORT_MAX_SIZE_MB"),
		},
		Security: SecurityConfig{
			JWTSecret:         v.GetString("JWT_SECRET"),
			JWTIssuer:         v.GetString("JWT_ISSUER"),
			JWTAudience:       v.GetString("JWT_AUDIENCE"),
			JWTExpiration:     v.GetDuration("JWT_EXPIRATION"),
			BcryptCost:        v.GetInt("BCRYPT_COST"),
			RateLimitRequests: v.GetInt("RATE_LIMIT_REQUESTS"),
			RateLimitDuration: v.GetDuration("RATE_LIMIT_DURATION"),
			AllowedOrigins:    splitList(v.GetString("ALLOWED_ORIGINS")),
			SecureHeaders:     v.GetBool("SECURE_HEADERS"),
			RequestIDHeader:   v.GetString("REQUEST_ID_HEADER"),
		},
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetString("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			RequestTimeout:  v.GetDuration("SERVER_REQUEST_TIMEOUT"),
			MaxHeaderBytes:  v.GetInt("SERVER_MAX_HEADER_BYTES"),
			GracefulTimeout: v.GetDuration("SERVER_GRACEFUL_TIMEOUT"),
		},
		Secrets: SecretsConfig{
			Provider: strings.ToLower(v.GetString("SECRETS_PROVIDER")),
			Name:     v.GetString("SECRETS_NAME"),
			Region:   v.GetString("AWS_REGION"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	dev := env == "development" || env == "local"

	v.SetDefault("APP_NAME", "stockledger")
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("APP_DEBUG", dev)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "stockledger")
	v.SetDefault("DB_PASSWORD", "stockledger_dev")
	v.SetDefault("DB_NAME", "stockledger")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_CONNECTIONS", 25)
	v.SetDefault("DB_MIN_CONNECTIONS", 5)
	v.SetDefault("DB_CONNECTION_LIFETIME", time.Hour)
	v.SetDefault("DB_IDLE_TIME", 30*time.Minute)
	v.SetDefault("DB_HEALTH_CHECK_PERIOD", time.Minute)
	v.SetDefault("DB_CONNECT_TIMEOUT", 10*time.Second)
	v.SetDefault("DB_QUERY_LOGGING", false)
	v.SetDefault("DB_MIGRATE_ON_START", dev)
	v.SetDefault("DB_MIGRATION_RETRIES", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 2)

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_NAMESPACE", "stockledger")

	v.SetDefault("ASYNQ_ENABLED", true)
	v.SetDefault("ASYNQ_REDIS_DB", 1)
	v.SetDefault("ASYNQ_CONCURRENCY", 10)
	v.SetDefault("ASYNQ_QUEUES", "critical:6,default:3,low:1")
	v.SetDefault("ASYNQ_STRICT_PRIORITY", false)
	v.SetDefault("ASYNQ_SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("ASYNQ_CLEANUP_SCHEDULE", "@daily")
	v.SetDefault("ASYNQ_REFRESH_SCHEDULE", "@every 5m")

	v.SetDefault("STORAGE_DRIVER", "s3")
	v.SetDefault("STORAGE_LOCAL_PATH", "./data/objects")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("AWS_S3_BUCKET", "stockledger-exports")
	v.SetDefault("AWS_S3_ENDPOINT", "")
	v.SetDefault("AWS_S3_PATH_STYLE", dev)
	v.SetDefault("AWS_S3_CREATE_BUCKET", dev)
	v.SetDefault("STORAGE_PRESIGN_TTL", 15*time.Minute)
	v.SetDefault("EXPORT_RETENTION", 7*24*time.Hour)

	v.SetDefault("IMPORT_MAX_SIZE_MB", 20)

	v.SetDefault("JWT_SECRET", generateDefaultSecret(env))
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_EXPIRATION", 24*time.Hour)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_DURATION", time.Minute)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("SECURE_HEADERS", env == "production")
	v.SetDefault("REQUEST_ID_HEADER", "X-Request-ID")

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVER_REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_MAX_HEADER_BYTES", 1<<20) // 1 MB
	v.SetDefault("SERVER_GRACEFUL_TIMEOUT", 30*time.Second)

	v.SetDefault("SECRETS_PROVIDER", "env")
	v.SetDefault("SECRETS_NAME", "")
}

// Validate runs the basic checks, plus the production and security checks
// outside development.
func (c *Config) Validate() error {
	validators := []Validator{&BasicValidator{}}
	if c.IsProduction() {
		validators = append(validators, &ProductionValidator{}, &SecurityValidator{})
	}
	for _, v := range validators {
		if err := v.Validate(c); err != nil {
			return err
		}
	}
	return nil
}

// GetDatabaseURL returns the formatted database connection string
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the formatted server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "local"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseQueues(queuesStr string) map[string]int {
	queues := make(map[string]int)
	for _, pair := range strings.Split(queuesStr, ",") {
		parts := strings.Split(pair, ":")
		if len(parts) == 2 {
			name := strings.TrimSpace(parts[0])
			priority, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err == nil && name != "" {
				queues[name] = priority
			}
		}
	}
	if len(queues) == 0 {
		queues["default"] = 1
	}
	return queues
}

func generateDefaultSecret(env string) string {
	if env == "production" {
		return "" // Force error in production if not set
	}
	return "development-secret-change-in-production"
}
