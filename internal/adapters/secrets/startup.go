package secrets

import (
	"context"
	"fmt"

	"github.com/kevin07696/settlement-service/internal/config"
	"go.uber.org/zap"
)

// ConfigFrom maps application configuration to a resolver configuration
func ConfigFrom(cfg *config.SecretsConfig) Config {
	return Config{
		Backend:   cfg.Backend,
		CacheTTL:  cfg.CacheTTL,
		LocalPath: cfg.LocalPath,
		AWS: AWSConfig{
			Region:   cfg.AWSRegion,
			Profile:  cfg.AWSProfile,
			Endpoint: cfg.AWSEndpoint,
		},
		Vault: VaultConfig{
			Address:   cfg.VaultAddr,
			Token:     cfg.VaultToken,
			Namespace: cfg.VaultNamespace,
			MountPath: cfg.VaultMount,
			KVVersion: cfg.VaultKVVersion,
		},
	}
}

// ResolveStartupSecrets replaces the database password and cron secret with the
// values stored at their configured paths. Without paths it does nothing.
func ResolveStartupSecrets(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Secrets.DBPasswordPath == "" && cfg.Secrets.CronSecretPath == "" {
		return nil
	}

	resolver, err := New(ctx, ConfigFrom(&cfg.Secrets), logger)
	if err != nil {
		return fmt.Errorf("init secret manager: %w", err)
	}
	return resolveInto(ctx, resolver, cfg, logger)
}

func resolveInto(ctx context.Context, resolver Resolver, cfg *config.Config, logger *zap.Logger) error {
	password, err := Lookup(ctx, resolver, cfg.Secrets.DBPasswordPath, cfg.Database.Password)
	if err != nil {
		return fmt.Errorf("database password: %w", err)
	}
	cronSecret, err := Lookup(ctx, resolver, cfg.Secrets.CronSecretPath, cfg.Cron.Secret)
	if err != nil {
		return fmt.Errorf("cron secret: %w", err)
	}
	cfg.Database.Password = password
	cfg.Cron.Secret = cronSecret

	logger.Info("Secrets resolved",
		zap.String("backend", cfg.Secrets.Backend),
		zap.Bool("db_password", cfg.Secrets.DBPasswordPath != ""),
		zap.Bool("cron_secret", cfg.Secrets.CronSecretPath != ""),
	)
	return nil
}
