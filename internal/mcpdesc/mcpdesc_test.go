package mcpdesc

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRejectsConflictingTransportFields(t *testing.T) {
	d := Descriptor{Servers: map[string]ServerConfig{
		"bad": {Command: "echo", URL: "http://example.com"},
	}}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for server with both command and url")
	}
}

func TestValidateRejectsUnresolvableCommand(t *testing.T) {
	d := Descriptor{Servers: map[string]ServerConfig{
		"bad": {Command: "definitely-not-a-real-binary-xyz"},
	}}
	if err := d.Validate(); err == nil {
		t.Fatal("expected error for unresolvable stdio command")
	}
}

func TestValidateAcceptsHTTPServer(t *testing.T) {
	d := Descriptor{Servers: map[string]ServerConfig{
		"remote": {Type: "http", URL: "https://example.com/mcp"},
	}}
	if err := d.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWriteConfigFileEmptyDescriptorWritesNothing(t *testing.T) {
	path, err := (Descriptor{}).WriteConfigFile(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Fatalf("expected empty path for empty descriptor, got %q", path)
	}
}

func TestWriteConfigFileSerializesServers(t *testing.T) {
	dir := t.TempDir()
	d := Descriptor{Servers: map[string]ServerConfig{
		"remote": {Type: "http", URL: "https://example.com/mcp"},
	}}
	path, err := d.WriteConfigFile(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != filepath.Join(dir, "mcp-config.json") {
		t.Fatalf("unexpected path: %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty config file")
	}
}
