package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for HashiCorp Vault
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Token for token authentication
	Token string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string
}

// logicalReader is the subset of vault's Logical client the resolver calls
type logicalReader interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// VaultResolver reads the "value" key of KV secrets
type VaultResolver struct {
	logical   logicalReader
	mountPath string
	kvV2      bool
	logger    *zap.Logger
}

// NewVaultResolver builds a token-authenticated Vault client
func NewVaultResolver(cfg VaultConfig, logger *zap.Logger) (*VaultResolver, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required for vault auth")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mountPath := cfg.MountPath
	if mountPath == "" {
		mountPath = "secret"
	}

	logger.Info("Vault resolver initialized",
		zap.String("address", cfg.Address),
		zap.String("mount_path", mountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return &VaultResolver{
		logical:   client.Logical(),
		mountPath: mountPath,
		kvV2:      cfg.KVVersion != "v1",
		logger:    logger,
	}, nil
}

// GetSecret reads mount/path (mount/data/path on KV v2)
func (r *VaultResolver) GetSecret(ctx context.Context, path string) (*Secret, error) {
	fullPath := fmt.Sprintf("%s/%s", r.mountPath, path)
	if r.kvV2 {
		fullPath = fmt.Sprintf("%s/data/%s", r.mountPath, path)
	}

	secret, err := r.logical.ReadWithContext(ctx, fullPath)
	if err != nil {
		r.logger.Error("Failed to retrieve secret from Vault",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}

	data := secret.Data
	version := "1"
	if r.kvV2 {
		inner, ok := secret.Data["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid secret format from Vault at %s", path)
		}
		data = inner
		if metadata, ok := secret.Data["metadata"].(map[string]interface{}); ok {
			if v, ok := metadata["version"].(json.Number); ok {
				version = v.String()
			}
		}
	}

	value, ok := data["value"].(string)
	if !ok || value == "" {
		return nil, fmt.Errorf("secret %s has no value key", path)
	}

	return &Secret{Value: value, Version: version}, nil
}
