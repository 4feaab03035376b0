// internal/pkg/config/secrets.go
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Secret keys that an external store may override.
const (
	SecretDatabasePassword = "DB_PASSWORD"
	SecretJWTSecret        = "JWT_SECRET"
)

// SecretsManager resolves credentials by key.
type SecretsManager interface {
	GetSecret(ctx context.Context, key string) (string, error)
	GetSecrets(ctx context.Context, keys []string) (map[string]string, error)
	RefreshSecrets(ctx context.Context) error
}

// SecretValueGetter is the part of the Secrets Manager client this package uses.
type SecretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager reads a JSON key/value secret from AWS Secrets Manager and
// caches it for a few minutes.
type AWSSecretsManager struct {
	client     SecretValueGetter
	secretName string
	cache      map[string]string
	cacheMu    sync.RWMutex
	lastFetch  time.Time
	ttl        time.Duration
	logger     *slog.Logger
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, region, secretName string, logger *slog.Logger) (*AWSSecretsManager, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewAWSSecretsManagerWithClient(secretsmanager.NewFromConfig(cfg), secretName, logger), nil
}

// NewAWSSecretsManagerWithClient wraps an existing client.
func NewAWSSecretsManagerWithClient(client SecretValueGetter, secretName string, logger *slog.Logger) *AWSSecretsManager {
	return &AWSSecretsManager{
		client:     client,
		secretName: secretName,
		cache:      make(map[string]string),
		ttl:        5 * time.Minute,
		logger:     logger,
	}
}

// GetSecret retrieves a single secret
func (sm *AWSSecretsManager) GetSecret(ctx context.Context, key string) (string, error) {
	secrets, err := sm.GetSecrets(ctx, []string{key})
	if err != nil {
		return "", err
	}

	val, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("secret key %s not found", key)
	}
	return val, nil
}

// GetSecrets retrieves multiple secrets. Keys missing from the secret are
// left out of the result.
func (sm *AWSSecretsManager) GetSecrets(ctx context.Context, keys []string) (map[string]string, error) {
	sm.cacheMu.RLock()
	if time.Since(sm.lastFetch) < sm.ttl && len(sm.cache) > 0 {
		cached := pick(sm.cache, keys)
		sm.cacheMu.RUnlock()
		if len(cached) == len(keys) {
			sm.logger.Debug("returning cached secrets")
			return cached, nil
		}
	} else {
		sm.cacheMu.RUnlock()
	}

	sm.logger.Info("fetching secrets from AWS Secrets Manager",
		slog.String("secret_name", sm.secretName))

	result, err := sm.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(sm.secretName),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret value: %w", err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", sm.secretName)
	}

	var secretData map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &secretData); err != nil {
		return nil, fmt.Errorf("failed to parse secret JSON: %w", err)
	}

	sm.cacheMu.Lock()
	sm.cache = secretData
	sm.lastFetch = time.Now()
	sm.cacheMu.Unlock()

	filtered := pick(secretData, keys)
	for _, key := range keys {
		if _, ok := filtered[key]; !ok {
			sm.logger.Warn("secret key not found in AWS Secrets Manager",
				slog.String("key", key))
		}
	}
	return filtered, nil
}

// RefreshSecrets drops the cache and fetches the secret again.
func (sm *AWSSecretsManager) RefreshSecrets(ctx context.Context) error {
	sm.cacheMu.Lock()
	sm.cache = make(map[string]string)
	sm.lastFetch = time.Time{}
	sm.cacheMu.Unlock()

	_, err := sm.GetSecrets(ctx, []string{})
	return err
}

func pick(src map[string]string, keys []string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := src[key]; ok {
			out[key] = val
		}
	}
	return out
}

// EnvSecretsManager implements secrets management using environment variables
type EnvSecretsManager struct{}

// NewEnvSecretsManager creates a new environment-based secrets manager
func NewEnvSecretsManager() *EnvSecretsManager {
	return &EnvSecretsManager{}
}

// GetSecret retrieves a secret from environment variables
func (em *EnvSecretsManager) GetSecret(ctx context.Context, key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("environment variable %s not set", key)
	}
	return val, nil
}

// GetSecrets retrieves multiple secrets from environment variables
func (em *EnvSecretsManager) GetSecrets(ctx context.Context, keys []string) (map[string]string, error) {
	secrets := make(map[string]string)
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			secrets[key] = val
		}
	}
	return secrets, nil
}

// RefreshSecrets is a no-op for environment variables
func (em *EnvSecretsManager) RefreshSecrets(ctx context.Context) error {
	return nil
}

// NewSecretsManager returns the manager selected by the config.
func NewSecretsManager(ctx context.Context, cfg SecretsConfig, logger *slog.Logger) (SecretsManager, error) {
	switch cfg.Provider {
	case "", "env":
		return NewEnvSecretsManager(), nil
	case "aws":
		if cfg.Name == "" {
			return nil, fmt.Errorf("%w: SECRETS_NAME", ErrMissingRequiredConfig)
		}
		return NewAWSSecretsManager(ctx, cfg.Region, cfg.Name, logger)
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Provider)
	}
}

func applySecrets(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if cfg.Secrets.Provider == "" || cfg.Secrets.Provider == "env" {
		return nil
	}

	sm, err := NewSecretsManager(ctx, cfg.Secrets, logger)
	if err != nil {
		return err
	}
	return overlaySecrets(ctx, cfg, sm)
}

// overlaySecrets replaces credentials with the values held by sm.
func overlaySecrets(ctx context.Context, cfg *Config, sm SecretsManager) error {
	secrets, err := sm.GetSecrets(ctx, []string{SecretDatabasePassword, SecretJWTSecret})
	if err != nil {
		return err
	}
	if v, ok := secrets[SecretDatabasePassword]; ok {
		cfg.Database.Password = v
	}
	if v, ok := secrets[SecretJWTSecret]; ok {
		cfg.Security.JWTSecret = v
	}
	return nil
}
