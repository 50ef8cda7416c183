package discover

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write executable: %v", err)
	}
	return path
}

func TestFindOverridePathWins(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix executable bits assumed")
	}
	dir := t.TempDir()
	bin := writeExecutable(t, dir, "claude")

	got, err := Find(Options{OverridePath: bin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != bin {
		t.Fatalf("expected override path %q, got %q", bin, got)
	}
}

func TestFindOverridePathNotExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claude")
	if err := os.WriteFile(path, []byte("not executable"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := Find(Options{OverridePath: path}); err == nil {
		t.Fatal("expected error for non-executable override path")
	}
}

func TestFindSearchDirsGlob(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix executable bits assumed")
	}
	root := t.TempDir()
	versionDir := filepath.Join(root, "claude-cli", "2.3.0", "bin")
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	bin := writeExecutable(t, versionDir, "claude-tool")

	got, err := Find(Options{BinaryName: "claude-tool", SearchDirs: []string{root}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != bin {
		t.Fatalf("expected %q, got %q", bin, got)
	}
}

func TestFindReturnsNotFound(t *testing.T) {
	_, err := Find(Options{BinaryName: "definitely-not-a-real-binary-xyz", SearchDirs: []string{t.TempDir()}})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
