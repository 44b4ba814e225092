// Package config provides centralized configuration management for covidstat.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"path/filepath"
	"unicode/utf8"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Source     SourceConfig
	Output     OutputConfig
	Repository RepositoryConfig
	Commit     CommitConfig
	Catalog    CatalogConfig
	Pipeline   PipelineConfig
	Logging    LoggingConfig
}

// SourceConfig locates the upstream dataset working copy.
type SourceConfig struct {
	// Path is the local clone of the upstream repository (required)
	Path string `env:"SOURCE" envAlt:"SOURCE_PATH" required:"true"`

	// Subdir is the directory inside Path holding the CSV files (default: "COVID 19")
	Subdir string `env:"SOURCE_SUBDIR" default:"COVID 19"`

	// Delimiter is the single-character field separator (default: ",")
	Delimiter string `env:"SOURCE_DELIMITER" default:","`

	// Pull fetches the upstream changes before loading (default: true)
	Pull bool `env:"SOURCE_PULL" default:"true"`

	// Remote is the remote pulled from (default: origin)
	Remote string `env:"SOURCE_REMOTE" default:"origin"`
}

// OutputConfig holds where cube documents are written.
type OutputConfig struct {
	// Path is the output directory; relative paths are resolved against
	// the output repository when one is configured (default: data)
	Path string `env:"OUTPUT_PATH" default:"data"`
}

// RepositoryConfig holds the output repository settings.
type RepositoryConfig struct {
	// Path is the output working copy (required when Publish is set)
	Path string `env:"REPOSITORY" envAlt:"REPO_PATH"`

	// Publish commits the outputs after the run (default: true)
	Publish bool `env:"REPOSITORY_PUBLISH" default:"true"`

	// Remote is the remote pushed to (default: origin)
	Remote string `env:"REPOSITORY_REMOTE" default:"origin"`

	// Push pushes the commit after recording it (default: true)
	Push bool `env:"REPOSITORY_PUSH" default:"true"`
}

// CommitConfig holds the commit metadata of a publish.
type CommitConfig struct {
	Message     string `env:"COMMIT_MESSAGE" default:"Automatic update"`
	AuthorName  string `env:"COMMIT_AUTHOR_NAME" default:"covidstat"`
	AuthorEmail string `env:"COMMIT_AUTHOR_EMAIL" default:"covidstat@localhost"`
}

// CatalogConfig selects the artifact catalog.
type CatalogConfig struct {
	// File overrides the embedded catalog
	File string `env:"CATALOG_FILE"`

	// MetadataSource overrides the catalog's attribution string
	MetadataSource string `env:"METADATA_SOURCE"`
}

// PipelineConfig holds run behaviour.
type PipelineConfig struct {
	// ContinueOnError keeps building after an artifact fails (default: true)
	ContinueOnError bool `env:"PIPELINE_CONTINUE_ON_ERROR" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Dir returns the directory holding the CSV files.
func (c *SourceConfig) Dir() string {
	return filepath.Join(c.Path, c.Subdir)
}

// DelimiterRune returns the delimiter as a rune. Validate guarantees it is
// exactly one character.
func (c *SourceConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// OutputDir returns the directory outputs are written to.
func (c *Config) OutputDir() string {
	if filepath.IsAbs(c.Output.Path) || c.Repository.Path == "" {
		return c.Output.Path
	}
	return filepath.Join(c.Repository.Path, c.Output.Path)
}
