// utils/path.go - Path handling utilities
package utils

import (
	"fmt"
	"os"
	"strings"
)

// EnsureDir creates the directory if missing and verifies it is writable.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", path)
	}
	return nil
}

// SanitizeSegment strips path separators and traversal sequences from a
// single path segment destined for the library layout.
func SanitizeSegment(name string) string {
	cleaned := strings.ReplaceAll(name, "..", "")
	cleaned = strings.ReplaceAll(cleaned, "/", "_")
	cleaned = strings.ReplaceAll(cleaned, "\\", "_")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "component"
	}
	return cleaned
}

// SanitizeBaseName keeps alphanumerics and a small set of filename-safe runes,
// mapping whitespace to underscores.
func SanitizeBaseName(name string) string {
	var sb strings.Builder
	for _, ch := range strings.TrimSpace(name) {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			sb.WriteRune(ch)
		case ch == '-' || ch == '_' || ch == '~' || ch == '.' || ch == '+':
			sb.WriteRune(ch)
		case ch == ' ' || ch == '\t':
			sb.WriteRune('_')
		}
	}
	return strings.Trim(sb.String(), "-_")
}
