// Package security checks request-supplied names before they touch the
// filesystem.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a name resolves outside its directory.
var ErrPathTraversal = errors.New("path escapes its directory")

// ResolveWithin joins name onto dir and returns the result, rejecting
// names that are absolute or climb out of dir. Symlinks inside dir are
// followed when they exist; a link pointing outside dir is rejected too.
func ResolveWithin(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	path := filepath.Join(absDir, name)
	if !within(absDir, path) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}

	// Compare canonical forms so a symlinked dir still matches itself.
	realDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return path, nil
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path, nil
	}
	if !within(realDir, realPath) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return path, nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// SanitizeFilename keeps ASCII letters, digits, dot, underscore and dash
// and folds every other run of characters into one underscore. The
// result is at most 128 bytes; an empty input gives "unnamed".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "unnamed"
	}
	return out
}
