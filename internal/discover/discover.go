// Package discover resolves the vendor CLI binary path: the Session
// transport only needs a resolved executable path, never an opinion on
// where the CLI lives or how it got installed.
//
// Resolution order mirrors how a shell would find the binary, with one
// addition for layouts PATH doesn't cover (versioned install dirs,
// nvm-style shims): an explicit override always wins, then PATH, then a
// doublestar glob search over a list of candidate directories.
package discover

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotFound is returned when no candidate resolves to an executable file.
var ErrNotFound = fmt.Errorf("discover: CLI binary not found")

// Options controls how Find locates the CLI binary.
type Options struct {
	// OverridePath, if set, is used as-is after verifying it is an
	// executable regular file. Takes precedence over everything else.
	OverridePath string

	// BinaryName is the executable to look for on PATH, e.g. "claude".
	BinaryName string

	// SearchDirs are additional directories to glob when PATH lookup
	// fails, e.g. "/home/me/.local/share" for versioned installs.
	// Each entry is matched with doublestar.Glob against BinaryName
	// joined as "<dir>/**/" + BinaryName, rooted at "/"; "~" is not
	// expanded.
	SearchDirs []string
}

// Find resolves the CLI binary path per Options, returning ErrNotFound
// if no candidate exists or is executable.
func Find(opts Options) (string, error) {
	if opts.OverridePath != "" {
		if err := checkExecutable(opts.OverridePath); err != nil {
			return "", fmt.Errorf("discover: override path %q: %w", opts.OverridePath, err)
		}
		return opts.OverridePath, nil
	}

	name := opts.BinaryName
	if name == "" {
		name = "claude"
	}

	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}

	candidates, err := globCandidates(opts.SearchDirs, name)
	if err != nil {
		return "", err
	}
	for _, c := range candidates {
		if checkExecutable(c) == nil {
			return c, nil
		}
	}

	return "", ErrNotFound
}

// globCandidates expands each search directory with a recursive glob
// for name, returning matches sorted so the newest-looking path is
// tried first (lexicographic descending favors higher version
// numbers in directory names like "claude-cli/2.3.0/bin").
func globCandidates(dirs []string, name string) ([]string, error) {
	var all []string
	for _, dir := range dirs {
		pattern := filepath.ToSlash(filepath.Join(dir, "**", name))
		matches, err := doublestar.Glob(os.DirFS("/"), trimLeadingSlash(pattern))
		if err != nil {
			return nil, fmt.Errorf("discover: glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			all = append(all, "/"+m)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(all)))
	return all, nil
}

func trimLeadingSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("is a directory")
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("not executable")
	}
	return nil
}
