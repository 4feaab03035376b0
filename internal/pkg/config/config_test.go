package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	cfg, err := Load(discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "stockledger", cfg.App.Name)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, int32(25), cfg.Database.MaxConnections)
	assert.Equal(t, time.Hour, cfg.Database.MaxConnLifetime)
	assert.Equal(t, "s3", cfg.Storage.Driver)
	assert.Equal(t, map[string]int{"critical": 6, "default": 3, "low": 1}, cfg.Asynq.Queues)
	assert.Equal(t, []string{"*"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddress())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_MAX_CONNECTIONS", "40")
	t.Setenv("SERVER_REQUEST_TIMEOUT", "5s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("STORAGE_DRIVER", "LOCAL")

	cfg, err := Load(discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, int32(40), cfg.Database.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Contains(t, cfg.GetDatabaseURL(), "@db.internal:5432/")
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load(discardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredConfig)
}

func validConfig() *Config {
	return &Config{
		App:      AppConfig{Environment: "production"},
		Database: DatabaseConfig{Host: "db", Name: "stock", Password: "pw", SSLMode: "require", MaxConnections: 10, MinConnections: 2},
		Redis:    RedisConfig{PoolSize: 10},
		Storage:  StorageConfig{Driver: "s3", Bucket: "exports"},
		Imports:  ImportConfig{MaxUploadMB: 20},
		Security: SecurityConfig{
			JWTSecret:         "0123456789abcdef0123456789abcdef",
			BcryptCost:        12,
			RateLimitRequests: 100,
			AllowedOrigins:    []string{"https://app.example"},
			SecureHeaders:     true,
		},
		Server: ServerConfig{Port: "8080"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid_production", mutate: func(*Config) {}},
		{name: "missing_database_host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: "Database.Host"},
		{name: "pool_bounds", mutate: func(c *Config) { c.Database.MinConnections = 20 }, wantErr: "max_connections"},
		{name: "unknown_storage_driver", mutate: func(c *Config) { c.Storage.Driver = "ftp" }, wantErr: "unknown storage driver"},
		{name: "ssl_disabled", mutate: func(c *Config) { c.Database.SSLMode = "disable" }, wantErr: "SSL"},
		{name: "local_storage_in_production", mutate: func(c *Config) {
			c.Storage.Driver = "local"
			c.Storage.LocalPath = "/tmp"
		}, wantErr: "local object storage"},
		{name: "short_jwt_secret", mutate: func(c *Config) { c.Security.JWTSecret = "short" }, wantErr: "32 characters"},
		{name: "wildcard_origin", mutate: func(c *Config) { c.Security.AllowedOrigins = []string{"*"} }, wantErr: "wildcard"},
		{name: "development_skips_production_checks", mutate: func(c *Config) {
			c.App.Environment = "development"
			c.Database.SSLMode = "disable"
			c.Security.JWTSecret = "short"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseQueues(t *testing.T) {
	assert.Equal(t, map[string]int{"critical": 6, "low": 1}, parseQueues("critical:6, low:1, broken, :3"))
	assert.Equal(t, map[string]int{"default": 1}, parseQueues(""))
}

type fakeSecrets struct {
	calls  int
	secret *string
	err    error
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.secret}, nil
}

func TestAWSSecretsManager_OverlayAndCache(t *testing.T) {
	client := &fakeSecrets{secret: aws.String(`{"DB_PASSWORD":"from-vault","JWT_SECRET":"jwt-from-vault"}`)}
	sm := NewAWSSecretsManagerWithClient(client, "stockledger/prod", discardLogger())
	cfg := validConfig()

	require.NoError(t, overlaySecrets(context.Background(), cfg, sm))
	assert.Equal(t, "from-vault", cfg.Database.Password)
	assert.Equal(t, "jwt-from-vault", cfg.Security.JWTSecret)

	val, err := sm.GetSecret(context.Background(), SecretDatabasePassword)
	require.NoError(t, err)
	assert.Equal(t, "from-vault", val)
	assert.Equal(t, 1, client.calls, "second read is served from cache")

	_, err = sm.GetSecret(context.Background(), "UNKNOWN")
	assert.Error(t, err)
}

func TestAWSSecretsManager_ClientError(t *testing.T) {
	sm := NewAWSSecretsManagerWithClient(&fakeSecrets{err: errors.New("access denied")}, "x", discardLogger())
	cfg := validConfig()

	err := overlaySecrets(context.Background(), cfg, sm)
	require.Error(t, err)
	assert.Equal(t, "pw", cfg.Database.Password)
}

func TestEnvSecretsManager(t *testing.T) {
	t.Setenv(SecretJWTSecret, "env-secret")
	sm := NewEnvSecretsManager()

	secrets, err := sm.GetSecrets(context.Background(), []string{SecretJWTSecret, "NOT_SET_ANYWHERE"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{SecretJWTSecret: "env-secret"}, secrets)
}
