// Package mcpdesc represents an opaque MCP server descriptor: the
// Session only needs to pass a path along to the CLI's --mcp-config
// flag, never to speak the MCP wire protocol itself. This package owns
// the descriptor's shape and validation; the core only ever sees the
// serialized path it produces.
//
// Validate builds an actual mcp.CommandTransport for stdio servers so
// a malformed descriptor fails before the CLI subprocess ever starts,
// rather than surfacing as a mid-conversation connect failure.
package mcpdesc

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig describes a single MCP server entry, stdio or HTTP.
type ServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// TransportType returns the effective transport for this entry.
func (c ServerConfig) TransportType() string {
	if c.Type == "http" || c.URL != "" {
		return "http"
	}
	return "stdio"
}

// Descriptor is the full opaque MCP descriptor a Session can be given;
// the path WriteConfigFile returns is what a caller passes on as
// transport.Config.MCPConfigPath.
type Descriptor struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// Validate checks every entry is well-formed and, for stdio transports,
// that the command actually constructs a usable mcp.CommandTransport.
// It never dials out — no server is started or contacted.
func (d Descriptor) Validate() error {
	for name, cfg := range d.Servers {
		if err := cfg.validate(); err != nil {
			return fmt.Errorf("mcpdesc: server %q: %w", name, err)
		}
	}
	return nil
}

func (c ServerConfig) validate() error {
	switch c.TransportType() {
	case "http":
		if c.URL == "" {
			return fmt.Errorf("http transport requires url")
		}
		if c.Command != "" {
			return fmt.Errorf("cannot specify both url and command")
		}
	default:
		if c.Command == "" {
			return fmt.Errorf("stdio transport requires command")
		}
		if c.URL != "" {
			return fmt.Errorf("cannot specify both url and command")
		}
		if _, err := c.Transport(); err != nil {
			return err
		}
	}
	return nil
}

// Transport builds the mcp.CommandTransport a client would connect
// with. Descriptor validation calls this to fail fast on an
// unresolvable command; an MCP-aware caller embedding this module
// elsewhere can reuse it to actually dial the server.
func (c ServerConfig) Transport() (*mcp.CommandTransport, error) {
	if c.TransportType() != "stdio" {
		return nil, fmt.Errorf("transport() only applies to stdio servers")
	}
	path, err := exec.LookPath(c.Command)
	if err != nil {
		return nil, fmt.Errorf("resolve command %q: %w", c.Command, err)
	}
	cmd := exec.Command(path, c.Args...)
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

// WriteConfigFile validates the descriptor and serializes it to
// <dir>/mcp-config.json, returning the path to hand the CLI via
// --mcp-config. The caller owns cleanup of dir.
func (d Descriptor) WriteConfigFile(dir string) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	if len(d.Servers) == 0 {
		return "", nil
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("mcpdesc: marshal descriptor: %w", err)
	}

	path := filepath.Join(dir, "mcp-config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("mcpdesc: write config file: %w", err)
	}
	return path, nil
}
