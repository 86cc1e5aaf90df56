package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the CLI configuration.
//
// Sources, highest precedence first:
//  1. Environment variables (GEOFS_*, e.g. GEOFS_LOGGING_LEVEL=DEBUG)
//  2. Configuration file (YAML)
//  3. Defaults
//
// The volume file is the only state the filesystem keeps; none of this is
// stored in it.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Volume  VolumeConfig  `mapstructure:"volume" yaml:"volume"`
	VFS     VFSConfig     `mapstructure:"vfs" yaml:"vfs"`
	Fuse    FuseConfig    `mapstructure:"fuse" yaml:"fuse"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is normalised to upper case by ApplyDefaults.
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// VolumeConfig names the default volume.
type VolumeConfig struct {
	// Path is used when a command gets no --volume flag.
	Path string `mapstructure:"path" yaml:"path"`

	// SizeMB is the size of volumes made by create.
	SizeMB int `mapstructure:"size_mb" yaml:"size_mb" validate:"gte=1"`
}

// VFSConfig holds the adapter limits.
type VFSConfig struct {
	MaxOpenFiles int `mapstructure:"max_open_files" yaml:"max_open_files" validate:"gte=1"`
	MaxMounts    int `mapstructure:"max_mounts" yaml:"max_mounts" validate:"gte=1"`
	RestoreLimit int `mapstructure:"restore_limit" yaml:"restore_limit" validate:"gte=1"`
	CopyChunk    int `mapstructure:"copy_chunk" yaml:"copy_chunk" validate:"gte=1"`
	SearchDepth  int `mapstructure:"search_depth" yaml:"search_depth" validate:"gte=1"`
}

// FuseConfig holds kernel mount settings.
type FuseConfig struct {
	FSName   string `mapstructure:"fsname" yaml:"fsname" validate:"required"`
	Subtype  string `mapstructure:"subtype" yaml:"subtype" validate:"required"`
	ReadOnly bool   `mapstructure:"read_only" yaml:"read_only"`

	// Options is decoded into FuseOptions by DecodeOptions.
	Options map[string]any `mapstructure:"options" yaml:"options"`
}

// Load loads configuration from file, environment, and defaults. An empty
// configPath searches the default location. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("GEOFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment variables only reach Unmarshal for keys viper knows about.
	d := Default()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("volume.path", d.Volume.Path)
	v.SetDefault("volume.size_mb", d.Volume.SizeMB)
	v.SetDefault("vfs.max_open_files", d.VFS.MaxOpenFiles)
	v.SetDefault("vfs.max_mounts", d.VFS.MaxMounts)
	v.SetDefault("vfs.restore_limit", d.VFS.RestoreLimit)
	v.SetDefault("vfs.copy_chunk", d.VFS.CopyChunk)
	v.SetDefault("vfs.search_depth", d.VFS.SearchDepth)
	v.SetDefault("fuse.fsname", d.Fuse.FSName)
	v.SetDefault("fuse.subtype", d.Fuse.Subtype)
	v.SetDefault("fuse.read_only", d.Fuse.ReadOnly)

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/geofs, falling back to ~/.config/geofs
// and then to the current directory.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "geofs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "geofs")
}

// DefaultConfigPath returns the file Load reads when given no path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
