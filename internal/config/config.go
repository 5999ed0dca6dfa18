// Package config handles configuration loading and validation for goodmerge.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"goodmerge/internal/audit"
)

// DefaultConfigFilename is the configuration file read when none is named.
const DefaultConfigFilename = "config.yaml"

// ConfigErrorType represents the type of configuration error.
type ConfigErrorType string

const (
	FileNotFound    ConfigErrorType = "FILE_NOT_FOUND"
	InvalidConfig   ConfigErrorType = "INVALID_CONFIG"
	ValidationError ConfigErrorType = "VALIDATION_ERROR"
)

// ConfigError represents an error that occurred during configuration loading.
type ConfigError struct {
	Type    ConfigErrorType
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	switch e.Type {
	case FileNotFound:
		if e.Message != "" {
			return fmt.Sprintf("configuration file not found: %s: %s", e.Path, e.Message)
		}
		return fmt.Sprintf("configuration file not found: %s", e.Path)
	case InvalidConfig:
		return fmt.Sprintf("invalid configuration file %s: %s", e.Path, e.Message)
	case ValidationError:
		return fmt.Sprintf("configuration validation error: %s", e.Message)
	default:
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
}

// WatchConfig holds the settings of watch mode.
type WatchConfig struct {
	DebounceSeconds   int      `yaml:"debounce_seconds"`
	StableThresholdMs int      `yaml:"stable_threshold_ms"`
	IgnorePatterns    []string `yaml:"ignore_patterns,omitempty"`
}

// Configuration holds all settings for goodmerge. Key names match the
// GoodMerge JSON configuration files, which YAML reads unchanged.
type Configuration struct {
	SourceFolder         string `yaml:"source_folder"`
	DestinationFolder    string `yaml:"destination_folder,omitempty"`
	PathXMDB             string `yaml:"path_xmdb,omitempty"`
	XMDBFilenameTemplate string `yaml:"xmdb_filename_template,omitempty"`
	XMDBType             string `yaml:"xmdb_type,omitempty"`
	CmdDecompress        string `yaml:"cmd_decompress,omitempty"`
	CmdCompress          string `yaml:"cmd_compress,omitempty"`
	Exclude              string `yaml:"exclude,omitempty"`
	PathFilelist         string `yaml:"path_filelist,omitempty"`
	DryRun               bool   `yaml:"dryrun,omitempty"`
	CompressedExtension  string `yaml:"compressed_extension,omitempty"`
	WorkingFolder        string `yaml:"working_folder,omitempty"`
	SymlinkPolicy        string `yaml:"symlink_policy,omitempty"`
	// ToolTimeout bounds each compressor or decompressor run ("10m"); zero is unlimited.
	ToolTimeout time.Duration `yaml:"tool_timeout,omitempty"`

	Audit *audit.Config `yaml:"audit,omitempty"`
	Watch *WatchConfig  `yaml:"watch,omitempty"`
}

// Default returns a configuration with every default applied and no folders.
func Default() *Configuration {
	c := &Configuration{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values with their defaults.
func (c *Configuration) ApplyDefaults() {
	if c.CmdDecompress == "" {
		c.CmdDecompress = "7z e -o{destination_folder} {source_file}"
	}
	if c.CmdCompress == "" {
		c.CmdCompress = "7z a {destination_file} {members}"
	}
	if c.CompressedExtension == "" {
		c.CompressedExtension = "7z"
	}
	c.CompressedExtension = strings.TrimPrefix(c.CompressedExtension, ".")
	if c.SymlinkPolicy == "" {
		c.SymlinkPolicy = "follow"
	}

	defaults := audit.DefaultConfig()
	if c.Audit == nil {
		c.Audit = &defaults
	} else {
		if c.Audit.LogDirectory == "" {
			c.Audit.LogDirectory = defaults.LogDirectory
		}
		if c.Audit.RotationSize == 0 {
			c.Audit.RotationSize = defaults.RotationSize
		}
	}

	if c.Watch == nil {
		c.Watch = &WatchConfig{}
	}
	if c.Watch.DebounceSeconds == 0 {
		c.Watch.DebounceSeconds = 2
	}
	if c.Watch.StableThresholdMs == 0 {
		c.Watch.StableThresholdMs = 1000
	}
}

// Validate checks the settings a run cannot start without.
func (c *Configuration) Validate() error {
	if c.SourceFolder == "" && c.PathFilelist == "" {
		return &ConfigError{
			Type:    ValidationError,
			Message: "source_folder or path_filelist is required",
		}
	}
	if strings.TrimSpace(c.CmdDecompress) == "" || strings.TrimSpace(c.CmdCompress) == "" {
		return &ConfigError{
			Type:    ValidationError,
			Message: "cmd_decompress and cmd_compress cannot be empty",
		}
	}
	if c.ToolTimeout < 0 {
		return &ConfigError{
			Type:    ValidationError,
			Message: "tool_timeout cannot be negative",
		}
	}
	return nil
}

// Listing reports whether the filename universe comes from a listing file.
// Listing runs only ever print the grouping.
func (c *Configuration) Listing() bool {
	return c.PathFilelist != ""
}

// ResolveRuleDatabase returns the rule database file to load, or "" when no
// rule database is configured. path_xmdb may name the file itself, or a
// folder in which xmdb_filename_template, with "{}" replaced by xmdb_type,
// names the file.
func (c *Configuration) ResolveRuleDatabase() (string, error) {
	if c.PathXMDB == "" {
		return "", nil
	}
	base := expandHome(c.PathXMDB)

	if info, err := os.Stat(base); err == nil && info.Mode().IsRegular() {
		return base, nil
	}

	if c.XMDBFilenameTemplate != "" && c.XMDBType != "" {
		name := c.XMDBFilenameTemplate
		for _, placeholder := range []string{"{}", "{0}", "{type}"} {
			name = strings.ReplaceAll(name, placeholder, c.XMDBType)
		}
		candidate := filepath.Join(base, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
		return "", &ConfigError{
			Type:    FileNotFound,
			Path:    candidate,
			Message: "rule database does not exist",
		}
	}

	return "", &ConfigError{
		Type:    ValidationError,
		Path:    base,
		Message: "insufficient settings to identify the rule database: path_xmdb is not a file and xmdb_filename_template or xmdb_type is missing",
	}
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Parse decodes configuration data. path is only used in error messages.
func Parse(data []byte, path string) (*Configuration, error) {
	var config Configuration
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, &ConfigError{
			Type:    InvalidConfig,
			Path:    path,
			Message: err.Error(),
		}
	}
	config.ApplyDefaults()
	return &config, nil
}

// Load reads and parses a configuration file from the given path. Both YAML
// and JSON files are accepted.
func Load(filePath string) (*Configuration, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigError{
				Type: FileNotFound,
				Path: filePath,
			}
		}
		return nil, &ConfigError{
			Type:    FileNotFound,
			Path:    filePath,
			Message: err.Error(),
		}
	}
	return Parse(data, filePath)
}

// LoadOrDefault loads the configuration file if it exists. A missing file is
// not an error: defaults are returned and a warning is logged, so everything
// can come from flags.
func LoadOrDefault(filePath string) (*Configuration, error) {
	config, err := Load(filePath)
	var configErr *ConfigError
	if errors.As(err, &configErr) && configErr.Type == FileNotFound && configErr.Message == "" {
		slog.Warn("configuration file does not exist, using defaults", "path", filePath)
		return Default(), nil
	}
	return config, err
}

// Save serializes and writes a configuration to the given path as YAML.
func Save(config *Configuration, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return &ConfigError{
			Type:    InvalidConfig,
			Path:    filePath,
			Message: err.Error(),
		}
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return &ConfigError{
			Type:    ValidationError,
			Message: fmt.Sprintf("failed to write configuration file: %s", err.Error()),
		}
	}
	return nil
}
