// Package config holds the configuration of named storage connections (the entries under
// surfin.storage).
package config

import (
	"fmt"

	configbinder "github.com/tigerroll/communes/pkg/batch/support/util/configbinder"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local" or "gcs"
	BucketName      string `yaml:"bucket_name"`      // default bucket; a subdirectory of BaseDir for local
	CredentialsFile string `yaml:"credentials_file"` // service account key for GCS, optional
	BaseDir         string `yaml:"base_dir"`         // root directory for local
}

// DecodeStorageConfig binds the raw configuration entry name from configs.
func DecodeStorageConfig(configs map[string]interface{}, name string) (StorageConfig, error) {
	var cfg StorageConfig
	raw, ok := configs[name]
	if !ok {
		return cfg, fmt.Errorf("storage configuration '%s' not found in surfin.storage", name)
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return cfg, fmt.Errorf("storage configuration '%s' is not a mapping (got %T)", name, raw)
	}
	if err := configbinder.BindProperties(props, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	if cfg.Type == "" {
		return cfg, fmt.Errorf("storage configuration '%s' has no type", name)
	}
	return cfg, nil
}
