package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
//
// Returns an error describing the first validation failure.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if err := cfg.Layout.Validate(); err != nil {
		return fmt.Errorf("layout: %w", err)
	}

	// Files can only be striped into the pool this client serves
	if cfg.Layout.Pool != cfg.Objects.Pool {
		return fmt.Errorf("layout: pool %q is not the configured object pool %q",
			cfg.Layout.Pool, cfg.Objects.Pool)
	}

	if cfg.Objects.Type == "s3" {
		if bucket, _ := cfg.Objects.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("objects.s3: bucket is required")
		}
	}

	if cfg.Objects.Type == "filesystem" {
		if path, _ := cfg.Objects.Filesystem["path"].(string); path == "" {
			return fmt.Errorf("objects.filesystem: path is required")
		}
	}

	if cfg.Metadata.Type == "badger" {
		if path, _ := cfg.Metadata.Badger["db_path"].(string); path == "" {
			if inMemory, _ := cfg.Metadata.Badger["in_memory"].(bool); !inMemory {
				return fmt.Errorf("metadata.badger: db_path is required")
			}
		}
	}

	// Inode numbers restart with every volatile metadata store, so a
	// persistent pool would hand a new file the objects of an old one.
	if volatileMetadata(cfg) && cfg.Objects.Type != "memory" {
		return fmt.Errorf("metadata: volatile %s store cannot serve persistent %s objects",
			cfg.Metadata.Type, cfg.Objects.Type)
	}

	return nil
}

// volatileMetadata reports whether the metadata store loses its inodes on close.
func volatileMetadata(cfg *Config) bool {
	switch cfg.Metadata.Type {
	case "memory":
		return true
	case "badger":
		inMemory, _ := cfg.Metadata.Badger["in_memory"].(bool)
		return inMemory
	}
	return false
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
