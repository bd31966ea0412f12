// Package config provides configuration management for the secrules
// toolkit using Viper for flexible configuration loading from files,
// environment variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with SECRULES_ prefix, validation, and security checks. It
// manages the root document, corpus scanning paths, preview server
// settings, and file watching options.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Root        string       `yaml:"root"`
	Docs        DocsConfig   `yaml:"docs"`
	Server      ServerConfig `yaml:"server"`
	Watch       WatchConfig  `yaml:"watch"`
	Log         LogConfig    `yaml:"log"`
	TargetRoots []string     `yaml:"-"` // CLI arguments, not from config file
}

type DocsConfig struct {
	BaseDir         string   `yaml:"base_dir"`
	ScanPaths       []string `yaml:"scan_paths"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	Open           bool     `yaml:"open"`
	NoOpen         bool     `yaml:"no-open"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Environment    string   `yaml:"environment"`
}

type WatchConfig struct {
	DebounceMs int      `yaml:"debounce_ms"`
	Paths      []string `yaml:"paths"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Handle underscore keys set via viper (workaround for viper key
	// matching on nested underscore names)
	if viper.IsSet("docs.base_dir") && config.Docs.BaseDir == "" {
		config.Docs.BaseDir = viper.GetString("docs.base_dir")
	}
	if viper.IsSet("docs.scan_paths") && len(config.Docs.ScanPaths) == 0 {
		scanPaths := viper.GetStringSlice("docs.scan_paths")
		if len(scanPaths) > 0 {
			config.Docs.ScanPaths = scanPaths
		}
	}
	if viper.IsSet("docs.exclude_patterns") && len(config.Docs.ExcludePatterns) == 0 {
		excludePatterns := viper.GetStringSlice("docs.exclude_patterns")
		if len(excludePatterns) > 0 {
			config.Docs.ExcludePatterns = excludePatterns
		}
	}
	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}
	if viper.IsSet("watch.debounce_ms") && config.Watch.DebounceMs == 0 {
		config.Watch.DebounceMs = viper.GetInt("watch.debounce_ms")
	}

	// Apply default values if not set
	if config.Root == "" {
		config.Root = "security-rules.md"
	}
	if len(config.Docs.ScanPaths) == 0 {
		config.Docs.ScanPaths = []string{"."}
	}
	if len(config.Docs.ExcludePatterns) == 0 {
		config.Docs.ExcludePatterns = []string{"*_draft.md", "node_modules", ".git"}
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}
	if config.Watch.DebounceMs == 0 {
		config.Watch.DebounceMs = 300
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	// Override no-open if explicitly set via flag
	if viper.IsSet("server.no-open") && viper.GetBool("server.no-open") {
		config.Server.Open = false
	}

	// Validate configuration values
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ResolvedBaseDir returns the directory references resolve against: the
// configured base directory, or the root document's directory when unset.
func (c *Config) ResolvedBaseDir() string {
	if c.Docs.BaseDir != "" {
		return c.Docs.BaseDir
	}
	return filepath.Dir(c.Root)
}

// Address returns the host:port the preview server binds to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateDocsConfig(&config.Docs); err != nil {
		return fmt.Errorf("docs config: %w", err)
	}

	if err := validateWatchConfig(&config.Watch); err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	if err := validateLogConfig(&config.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Validate port range (allow 0 for system-assigned ports in testing)
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	// Validate host
	if config.Host != "" {
		// Basic validation - no dangerous characters
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// validateDocsConfig validates corpus configuration values
func validateDocsConfig(config *DocsConfig) error {
	for _, path := range config.ScanPaths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid scan path '%s': %w", path, err)
		}
	}

	if config.BaseDir != "" {
		if err := validateChars(config.BaseDir); err != nil {
			return fmt.Errorf("invalid base_dir '%s': %w", config.BaseDir, err)
		}
	}

	return nil
}

// validateWatchConfig validates watch configuration values
func validateWatchConfig(config *WatchConfig) error {
	if config.DebounceMs < 0 {
		return fmt.Errorf("debounce_ms must not be negative: %d", config.DebounceMs)
	}

	for _, path := range config.Paths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid watch path '%s': %w", path, err)
		}
	}

	return nil
}

// validateLogConfig validates logging configuration values
func validateLogConfig(config *LogConfig) error {
	switch config.Format {
	case "", "text", "json":
		return nil
	}
	return fmt.Errorf("log format must be text or json: %s", config.Format)
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	// Clean the path
	cleanPath := filepath.Clean(path)

	// Reject path traversal attempts
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	return validateChars(cleanPath)
}

// validateChars rejects shell metacharacters in configured paths
func validateChars(path string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}
	return nil
}
