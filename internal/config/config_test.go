package config

import (
	"path/filepath"
	"strings"
	"testing"
)

// validConfig returns a config that passes Validate.
func validConfig() *Config {
	return &Config{
		Source:     SourceConfig{Path: "/data/upstream", Subdir: "COVID 19", Delimiter: ",", Pull: true, Remote: "origin"},
		Output:     OutputConfig{Path: "data"},
		Repository: RepositoryConfig{Path: "/data/site", Publish: true, Remote: "origin", Push: true},
		Commit:     CommitConfig{Message: "Automatic update", AuthorName: "covidstat", AuthorEmail: "covidstat@localhost"},
		Pipeline:   PipelineConfig{ContinueOnError: true},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SOURCE", "/data/upstream")
	t.Setenv("REPOSITORY", "/data/site")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Source.Subdir != "COVID 19" {
		t.Errorf("Source.Subdir = %q, want %q", cfg.Source.Subdir, "COVID 19")
	}
	if cfg.Source.Delimiter != "," {
		t.Errorf("Source.Delimiter = %q, want %q", cfg.Source.Delimiter, ",")
	}
	if !cfg.Source.Pull {
		t.Error("Source.Pull = false, want true")
	}
	if cfg.Output.Path != "data" {
		t.Errorf("Output.Path = %q, want %q", cfg.Output.Path, "data")
	}
	if !cfg.Repository.Publish || !cfg.Repository.Push {
		t.Error("Repository.Publish and Repository.Push should default to true")
	}
	if cfg.Commit.Message != "Automatic update" {
		t.Errorf("Commit.Message = %q, want %q", cfg.Commit.Message, "Automatic update")
	}
	if !cfg.Pipeline.ContinueOnError {
		t.Error("Pipeline.ContinueOnError = false, want true")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("SOURCE", "/data/upstream")
	t.Setenv("REPOSITORY_PUBLISH", "false")
	t.Setenv("SOURCE_DELIMITER", ";")
	t.Setenv("PIPELINE_CONTINUE_ON_ERROR", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Repository.Publish {
		t.Error("Repository.Publish = true, want false")
	}
	if cfg.Source.DelimiterRune() != ';' {
		t.Errorf("DelimiterRune() = %q, want ';'", cfg.Source.DelimiterRune())
	}
	if cfg.Pipeline.ContinueOnError {
		t.Error("Pipeline.ContinueOnError = true, want false")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	// REPO_PATH and SOURCE_PATH work as fallbacks
	t.Setenv("SOURCE_PATH", "/data/alt-upstream")
	t.Setenv("REPO_PATH", "/data/alt-site")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Source.Path != "/data/alt-upstream" {
		t.Errorf("Source.Path = %q, want %q", cfg.Source.Path, "/data/alt-upstream")
	}
	if cfg.Repository.Path != "/data/alt-site" {
		t.Errorf("Repository.Path = %q, want %q", cfg.Repository.Path, "/data/alt-site")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("SOURCE", "")
	t.Setenv("SOURCE_PATH", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing SOURCE")
	}
	if !strings.Contains(err.Error(), "SOURCE") {
		t.Errorf("error should mention SOURCE: %v", err)
	}
}

func TestLoad_InvalidBool(t *testing.T) {
	t.Setenv("SOURCE", "/data/upstream")
	t.Setenv("SOURCE_PULL", "sometimes")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for invalid boolean")
	}
	if !strings.Contains(err.Error(), "SOURCE_PULL") {
		t.Errorf("error should mention SOURCE_PULL: %v", err)
	}
}

func TestRead_DoesNotValidate(t *testing.T) {
	t.Setenv("SOURCE", "/data/upstream")
	t.Setenv("REPOSITORY", "")
	t.Setenv("REPO_PATH", "")

	cfg, err := Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error: publishing without REPOSITORY")
	}

	cfg.Repository.Publish = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after disabling publish error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty source", func(c *Config) { c.Source.Path = " " }, "SOURCE is required"},
		{"multi-char delimiter", func(c *Config) { c.Source.Delimiter = ";;" }, "SOURCE_DELIMITER"},
		{"quote delimiter", func(c *Config) { c.Source.Delimiter = `"` }, "SOURCE_DELIMITER"},
		{"tab delimiter", func(c *Config) { c.Source.Delimiter = "\t" }, ""},
		{"pull without remote", func(c *Config) { c.Source.Remote = "" }, "SOURCE_REMOTE"},
		{"no pull, no remote", func(c *Config) { c.Source.Pull = false; c.Source.Remote = "" }, ""},
		{"empty output", func(c *Config) { c.Output.Path = "" }, "OUTPUT_PATH"},
		{"publish without repository", func(c *Config) { c.Repository.Path = "" }, "REPOSITORY is required"},
		{"push without remote", func(c *Config) { c.Repository.Remote = "" }, "REPOSITORY_REMOTE"},
		{"commit message", func(c *Config) { c.Commit.Message = "" }, "COMMIT_MESSAGE"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %s: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ReportsAllFailures(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Path = ""
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"SOURCE", "LOG_LEVEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestPaths(t *testing.T) {
	cfg := validConfig()

	if got, want := cfg.Source.Dir(), filepath.Join("/data/upstream", "COVID 19"); got != want {
		t.Errorf("Source.Dir() = %q, want %q", got, want)
	}

	tests := []struct {
		repo, out, want string
	}{
		{"/data/site", "data", filepath.Join("/data/site", "data")},
		{"/data/site", "/srv/out", "/srv/out"},
		{"", "data", "data"},
	}
	for _, tt := range tests {
		cfg.Repository.Path = tt.repo
		cfg.Output.Path = tt.out
		if got := cfg.OutputDir(); got != tt.want {
			t.Errorf("OutputDir() with repo=%q, out=%q = %q, want %q", tt.repo, tt.out, got, tt.want)
		}
	}
}

func TestConfigString_MasksEmail(t *testing.T) {
	cfg := validConfig()
	cfg.Commit.AuthorEmail = "bot@secret.example"

	str := cfg.String()
	if strings.Contains(str, "secret.example") {
		t.Error("String() should mask the author email")
	}
	if !strings.Contains(str, "MASKED") {
		t.Error("String() should contain MASKED placeholder")
	}
}
