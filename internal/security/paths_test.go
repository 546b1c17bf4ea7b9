package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWithin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	tests := []struct {
		name string
		ok   bool
	}{
		{"a.png", true},
		{"missing.png", true},
		{"sub/b.png", true},
		{"sub/../a.png", true},
		{"../a.png", false},
		{"sub/../../a.png", false},
		{"/etc/passwd", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := ResolveWithin(dir, tt.name)
			if !tt.ok {
				require.ErrorIs(t, err, ErrPathTraversal)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.name), path)
		})
	}
}

func TestResolveWithinRejectsEscapingSymlink(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644))
	if err := os.Symlink(filepath.Join(outside, "secret"), filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := ResolveWithin(dir, "link")
	require.ErrorIs(t, err, ErrPathTraversal)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"gnss.dat":         "gnss.dat",
		"my log (1).bin":   "my_log_1_.bin",
		"../../etc/passwd": "_.._etc_passwd",
		"":                 "unnamed",
		"...":              "unnamed",
		"日本語.txt":          "_.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}
