// Package config is a host-application option-layering collaborator:
// it demonstrates how a caller assembles the option map session.Open
// eventually receives, layering defaults, an optional YAML config
// file, and environment overrides with github.com/spf13/viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/spf13/viper"

	"github.com/clisession/clisession/internal/options"
)

// FileConfig is the on-disk/env-layered shape of session options.
type FileConfig struct {
	CLIPath         string   `mapstructure:"cli_path" yaml:"cli_path,omitempty"`
	Model           string   `mapstructure:"model" yaml:"model,omitempty"`
	SystemPrompt    string   `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	AllowedTools    []string `mapstructure:"allowed_tools" yaml:"allowed_tools,omitempty"`
	AddDirs         []string `mapstructure:"add_dirs" yaml:"add_dirs,omitempty"`
	PermissionMode  string   `mapstructure:"permission_mode" yaml:"permission_mode,omitempty"`
	QueryTimeoutSec float64  `mapstructure:"query_timeout_secs" yaml:"query_timeout_secs,omitempty"`
	ExtraArgs       []string `mapstructure:"extra_args" yaml:"extra_args,omitempty"`
	WorkDir         string   `mapstructure:"work_dir" yaml:"work_dir,omitempty"`
	MCPConfigPath   string   `mapstructure:"mcp_config_path" yaml:"mcp_config_path,omitempty"`
}

// GetConfigDir returns the XDG config directory for clisession.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config.
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "clisession"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "clisession"), nil
}

// GetConfigPath returns the path where config.yaml should live.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// defaults are the baseline values set before the config file and
// environment are layered on top.
func defaults() map[string]any {
	return map[string]any{
		"permission_mode":    "default",
		"query_timeout_secs": 300,
	}
}

// Load layers defaults, an optional config.yaml, and CLISESSION_*
// environment variables (e.g. CLISESSION_MODEL) into an options.Raw
// map ready for options.Validate. A missing config file is not an
// error; a malformed one is.
func Load() (options.Raw, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("config: get config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(".")
	v.SetEnvPrefix("CLISESSION")
	v.AutomaticEnv()
	// AutomaticEnv alone doesn't surface env-only values through
	// Unmarshal; each key needs an explicit binding.
	for key := range options.KnownKeys {
		if key == "resume_session_id" {
			continue // per-conversation, never sourced from the environment
		}
		v.BindEnv(key)
	}

	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return toRaw(cfg), nil
}

// Save writes cfg to config.yaml via yaml.v3, creating the config
// directory if needed. Round-trips cleanly through Load since both
// sides agree on the same struct tags.
func Save(cfg FileConfig) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	return nil
}

// toRaw projects FileConfig into the options.Raw shape options.Validate
// expects, omitting zero-valued fields so they don't shadow Session.Open
// call-site overrides layered on top of this map.
func toRaw(cfg FileConfig) options.Raw {
	raw := options.Raw{}
	if cfg.CLIPath != "" {
		raw["cli_path"] = cfg.CLIPath
	}
	if cfg.Model != "" {
		raw["model"] = cfg.Model
	}
	if cfg.SystemPrompt != "" {
		raw["system_prompt"] = cfg.SystemPrompt
	}
	if len(cfg.AllowedTools) > 0 {
		raw["allowed_tools"] = cfg.AllowedTools
	}
	if len(cfg.AddDirs) > 0 {
		raw["add_dirs"] = cfg.AddDirs
	}
	if cfg.PermissionMode != "" {
		raw["permission_mode"] = cfg.PermissionMode
	}
	if cfg.QueryTimeoutSec != 0 {
		raw["query_timeout_secs"] = cfg.QueryTimeoutSec
	}
	if len(cfg.ExtraArgs) > 0 {
		raw["extra_args"] = cfg.ExtraArgs
	}
	if cfg.WorkDir != "" {
		raw["work_dir"] = cfg.WorkDir
	}
	if cfg.MCPConfigPath != "" {
		raw["mcp_config_path"] = cfg.MCPConfigPath
	}
	return raw
}
