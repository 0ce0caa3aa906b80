package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LocalResolver reads secrets from files under a base directory.
// WARNING: This is for development only. Use AWS Secrets Manager or Vault in production.
type LocalResolver struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalResolver creates a filesystem resolver
func NewLocalResolver(basePath string, logger *zap.Logger) *LocalResolver {
	return &LocalResolver{basePath: basePath, logger: logger}
}

// GetSecret reads basePath/path. Files may hold a plain value or {"value": "...", "version": "..."}.
func (r *LocalResolver) GetSecret(ctx context.Context, path string) (*Secret, error) {
	filePath := filepath.Join(r.basePath, filepath.Clean("/"+path))

	r.logger.Debug("Reading secret from filesystem", zap.String("path", path))

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var doc struct {
		Value   string `json:"value"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &doc); err == nil && doc.Value != "" {
		if doc.Version == "" {
			doc.Version = "v1"
		}
		return &Secret{Value: doc.Value, Version: doc.Version}, nil
	}

	return &Secret{Value: strings.TrimSpace(string(data)), Version: "v1"}, nil
}
