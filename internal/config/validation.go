package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New()

// Validate checks struct tags, then the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if cfg.VFS.CopyChunk > cfg.VFS.RestoreLimit {
		return fmt.Errorf("vfs: copy_chunk (%d) exceeds restore_limit (%d)", cfg.VFS.CopyChunk, cfg.VFS.RestoreLimit)
	}
	if _, err := cfg.Fuse.DecodeOptions(); err != nil {
		return err
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// FuseOptions are the free-form mount options.
type FuseOptions struct {
	AllowOther bool   `mapstructure:"allow_other"`
	VolumeName string `mapstructure:"volume_name"`
}

// DecodeOptions decodes the free-form options map.
func (c FuseConfig) DecodeOptions() (FuseOptions, error) {
	var opts FuseOptions
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(c.Options); err != nil {
		return opts, fmt.Errorf("fuse.options: %w", err)
	}
	if len(md.Unused) > 0 {
		return opts, fmt.Errorf("fuse.options: unknown keys %v", md.Unused)
	}
	return opts, nil
}
