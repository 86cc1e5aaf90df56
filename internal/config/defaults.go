package config

import (
	"strings"

	"github.com/dendrascience/geofs/vfs"
)

// DefaultVolumeSizeMB is the size of volumes made by create when neither the
// flag nor the configuration sets one.
const DefaultVolumeSizeMB = 64

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields. Explicit values are kept.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyVolumeDefaults(&cfg.Volume)
	applyVFSDefaults(&cfg.VFS)
	applyFuseDefaults(&cfg.Fuse)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyVolumeDefaults(cfg *VolumeConfig) {
	if cfg.SizeMB == 0 {
		cfg.SizeMB = DefaultVolumeSizeMB
	}
}

func applyVFSDefaults(cfg *VFSConfig) {
	if cfg.MaxOpenFiles == 0 {
		cfg.MaxOpenFiles = vfs.DefaultMaxOpenFiles
	}
	if cfg.MaxMounts == 0 {
		cfg.MaxMounts = vfs.DefaultMaxMounts
	}
	if cfg.RestoreLimit == 0 {
		cfg.RestoreLimit = vfs.DefaultRestoreLimit
	}
	if cfg.CopyChunk == 0 {
		cfg.CopyChunk = vfs.DefaultCopyChunk
	}
	if cfg.SearchDepth == 0 {
		cfg.SearchDepth = vfs.DefaultSearchDepth
	}
}

func applyFuseDefaults(cfg *FuseConfig) {
	if cfg.FSName == "" {
		cfg.FSName = "geofs"
	}
	if cfg.Subtype == "" {
		cfg.Subtype = "geofs"
	}
	if cfg.Options == nil {
		cfg.Options = make(map[string]any)
	}
}

// VFSOptions converts the adapter section. The logger is left for the
// caller.
func (c VFSConfig) VFSOptions() vfs.Options {
	return vfs.Options{
		MaxOpenFiles: c.MaxOpenFiles,
		MaxMounts:    c.MaxMounts,
		RestoreLimit: c.RestoreLimit,
		CopyChunk:    c.CopyChunk,
		SearchDepth:  c.SearchDepth,
	}
}
