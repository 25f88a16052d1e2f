package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags (`validate:"..."`) on the loaded
// configuration and cross-field invariants that tags can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if uint64(cfg.Cache.SoftLimit) > uint64(cfg.Cache.HardLimit) {
		return fmt.Errorf("cache.soft_limit (%s) must not exceed cache.hard_limit (%s)",
			cfg.Cache.SoftLimit, cfg.Cache.HardLimit)
	}

	if cfg.Replication.S3.Enabled && cfg.Replication.S3.Bucket == "" {
		return fmt.Errorf("replication.s3.bucket is required when replication.s3.enabled is true")
	}

	if _, err := os.Stat(cfg.Identity.PrivateKeyFile); err != nil {
		return fmt.Errorf("identity.private_key_file %q: %w", cfg.Identity.PrivateKeyFile, err)
	}

	return nil
}
