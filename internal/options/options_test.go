package options

import (
	"testing"
	"time"
)

func TestValidateRejectsUnknownKey(t *testing.T) {
	_, err := Validate(Raw{"bogus": 1})
	if _, ok := err.(*InvalidOptionError); !ok {
		t.Fatalf("expected InvalidOptionError, got %v", err)
	}
}

func TestValidateRejectsUnknownPermissionMode(t *testing.T) {
	_, err := Validate(Raw{"permission_mode": "yolo"})
	if _, ok := err.(*InvalidOptionError); !ok {
		t.Fatalf("expected InvalidOptionError, got %v", err)
	}
}

func TestValidateAcceptsAdditivePermissionModes(t *testing.T) {
	for _, mode := range []string{"dontAsk", "delegate"} {
		if _, err := Validate(Raw{"permission_mode": mode}); err != nil {
			t.Fatalf("expected %q to be accepted, got %v", mode, err)
		}
	}
}

func TestValidateCoercesJSONDecodedSlice(t *testing.T) {
	m, err := Validate(Raw{"allowed_tools": []any{"Read", "Write"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.AllowedTools) != 2 || m.AllowedTools[1] != "Write" {
		t.Fatalf("unexpected allowed tools: %+v", m.AllowedTools)
	}
}

func TestToTransportConfigProjectsFields(t *testing.T) {
	m, err := Validate(Raw{"model": "sonnet", "add_dirs": []any{"/a"}, "mcp_config_path": "/tmp/mcp.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := m.ToTransportConfig()
	if cfg.Model != "sonnet" || len(cfg.AddDirs) != 1 || cfg.AddDirs[0] != "/a" {
		t.Fatalf("unexpected transport config: %+v", cfg)
	}
	if cfg.MCPConfigPath != "/tmp/mcp.json" {
		t.Fatalf("expected mcp config path projected, got %q", cfg.MCPConfigPath)
	}
}

func TestToTransportConfigProjectsQueryTimeout(t *testing.T) {
	m, err := Validate(Raw{"query_timeout_secs": 90})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := m.ToTransportConfig()
	if cfg.QueryTimeout != 90*time.Second {
		t.Fatalf("expected 90s query timeout, got %v", cfg.QueryTimeout)
	}
}
