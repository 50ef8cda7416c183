// Package options implements option validation as an external
// collaborator: the Session constructor accepts an already-validated,
// already-merged map rather than owning a schema or a process-scoped
// singleton. This package is that boundary — callers build a Merged
// value here and hand its ToTransportConfig projection to session.Open,
// so no mutable global config ever lives inside the core.
package options

import (
	"fmt"
	"time"

	"github.com/clisession/clisession/internal/transport"
)

// KnownKeys are the option names Validate recognizes. Anything else is
// rejected with invalid_option.
var KnownKeys = map[string]bool{
	"cli_path":           true,
	"model":              true,
	"system_prompt":      true,
	"allowed_tools":      true,
	"add_dirs":           true,
	"permission_mode":    true,
	"resume_session_id":  true,
	"query_timeout_secs": true,
	"extra_args":         true,
	"work_dir":           true,
	"mcp_config_path":    true,
}

// InvalidOptionError is raised only at this validation boundary.
type InvalidOptionError struct{ Detail string }

func (e *InvalidOptionError) Error() string { return fmt.Sprintf("invalid_option: %s", e.Detail) }

var validPermissionModes = map[string]bool{
	string(validDefault):           true,
	string(validAcceptEdits):       true,
	string(validBypassPermissions): true,
	string(validPlan):              true,
	string(validDontAsk):           true,
	string(validDelegate):          true,
}

const (
	validDefault           = "default"
	validAcceptEdits       = "acceptEdits"
	validBypassPermissions = "bypassPermissions"
	validPlan              = "plan"
	validDontAsk           = "dontAsk"
	validDelegate          = "delegate"
)

// Raw is the untyped, freshly-loaded option map (e.g. straight off a
// YAML/viper unmarshal) before validation.
type Raw map[string]any

// Merged is the validated, already-merged configuration Validate
// produces. ToTransportConfig projects it into the transport.Config that
// session.Open takes.
type Merged struct {
	CLIPath         string
	Model           string
	SystemPrompt    string
	AllowedTools    []string
	AddDirs         []string
	PermissionMode  string
	ResumeSessionID string
	QueryTimeoutSec float64
	ExtraArgs       []string
	WorkDir         string
	// MCPConfigPath is the path an mcpdesc.Descriptor was already
	// serialized to by the caller; this package never constructs or
	// validates the descriptor itself, it only threads the path through.
	MCPConfigPath string
}

// Validate rejects unknown keys and malformed values, returning a Merged
// map ready for session.Open. It never mutates global state.
func Validate(raw Raw) (Merged, error) {
	for key := range raw {
		if !KnownKeys[key] {
			return Merged{}, &InvalidOptionError{Detail: fmt.Sprintf("unknown option %q", key)}
		}
	}

	m := Merged{}
	var err error
	if m.CLIPath, err = optString(raw, "cli_path"); err != nil {
		return Merged{}, err
	}
	if m.Model, err = optString(raw, "model"); err != nil {
		return Merged{}, err
	}
	if m.SystemPrompt, err = optString(raw, "system_prompt"); err != nil {
		return Merged{}, err
	}
	if m.ResumeSessionID, err = optString(raw, "resume_session_id"); err != nil {
		return Merged{}, err
	}
	if m.WorkDir, err = optString(raw, "work_dir"); err != nil {
		return Merged{}, err
	}
	if m.MCPConfigPath, err = optString(raw, "mcp_config_path"); err != nil {
		return Merged{}, err
	}
	if m.PermissionMode, err = optString(raw, "permission_mode"); err != nil {
		return Merged{}, err
	}
	if m.PermissionMode != "" && !validPermissionModes[m.PermissionMode] {
		return Merged{}, &InvalidOptionError{Detail: fmt.Sprintf("unknown permission_mode %q", m.PermissionMode)}
	}
	if m.AllowedTools, err = optStringSlice(raw, "allowed_tools"); err != nil {
		return Merged{}, err
	}
	if m.AddDirs, err = optStringSlice(raw, "add_dirs"); err != nil {
		return Merged{}, err
	}
	if m.ExtraArgs, err = optStringSlice(raw, "extra_args"); err != nil {
		return Merged{}, err
	}
	if v, ok := raw["query_timeout_secs"]; ok {
		f, ok := toFloat(v)
		if !ok {
			return Merged{}, &InvalidOptionError{Detail: "query_timeout_secs must be numeric"}
		}
		m.QueryTimeoutSec = f
	}
	return m, nil
}

// ToTransportConfig projects a Merged map into the transport.Config the
// Adapter expects. Per-query overrides still layer on top at call time.
func (m Merged) ToTransportConfig() transport.Config {
	return transport.Config{
		CLIPath:         m.CLIPath,
		Model:           m.Model,
		SystemPrompt:    m.SystemPrompt,
		AllowedTools:    m.AllowedTools,
		AddDirs:         m.AddDirs,
		PermissionMode:  m.PermissionMode,
		ResumeSessionID: m.ResumeSessionID,
		ExtraArgs:       m.ExtraArgs,
		WorkDir:         m.WorkDir,
		MCPConfigPath:   m.MCPConfigPath,
		QueryTimeout:    time.Duration(m.QueryTimeoutSec * float64(time.Second)),
	}
}

func optString(raw Raw, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &InvalidOptionError{Detail: fmt.Sprintf("%q must be a string", key)}
	}
	return s, nil
}

func optStringSlice(raw Raw, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok {
		return nil, nil
	}
	switch items := v.(type) {
	case []string:
		return items, nil
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, &InvalidOptionError{Detail: fmt.Sprintf("%q must be a list of strings", key)}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &InvalidOptionError{Detail: fmt.Sprintf("%q must be a list of strings", key)}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
