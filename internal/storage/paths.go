package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NormalizePath converts a path to the absolute, cleaned, separator-consistent
// form used as the identity of a file. A leading "~" expands to the home
// directory.
func NormalizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if filepath.Separator == '/' {
		path = strings.ReplaceAll(path, `\`, "/")
	} else {
		path = filepath.FromSlash(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// IsSubPath reports whether child equals parent or lies beneath it. Both
// arguments are expected to be normalized.
func IsSubPath(child, parent string) bool {
	if child == parent {
		return true
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
