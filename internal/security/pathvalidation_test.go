package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "recordings")
	outside := filepath.Join(tmp, "outside")
	require.NoError(t, os.MkdirAll(safe, 0755))
	require.NoError(t, os.MkdirAll(outside, 0755))
	require.NoError(t, os.Symlink(outside, filepath.Join(safe, "link")))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safe, "pHistBytes_1.bin"), false},
		{"nested new path", filepath.Join(safe, "session", "index.bin"), false},
		{"dir itself", safe, false},
		{"dot dot", filepath.Join(safe, "..", "outside", "x.bin"), true},
		{"relative escape", "../../../etc/passwd", true},
		{"symlink out", filepath.Join(safe, "link", "x.bin"), true},
		{"new file under symlink", filepath.Join(safe, "link", "new", "x.bin"), true},
		{"sibling prefix", safe + "-evil/x.bin", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, safe)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPathEscape)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(safe, "x"), filepath.Join(tmp, "missing")))
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	assert.NoError(t, ValidatePathWithinAllowedDirs(filepath.Join(b, "out.jsonl"), []string{a, b}))
	assert.ErrorIs(t, ValidatePathWithinAllowedDirs("/etc/passwd", []string{a, b}), ErrPathEscape)
	assert.Error(t, ValidatePathWithinAllowedDirs(filepath.Join(a, "x"), nil))
}

func TestValidateOutputPath(t *testing.T) {
	assert.NoError(t, ValidateOutputPath(filepath.Join(os.TempDir(), "frames.cbor")))
	assert.NoError(t, ValidateOutputPath("frames.jsonl"))
	assert.Error(t, ValidateOutputPath("/etc/frames.jsonl"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"xWR6843":            "xWR6843",
		"":                   "unknown",
		"../../etc":          "etc",
		"people counting #2": "people_counting_2",
		"a//b":               "a_b",
		"___":                "unknown",
		"vital_signs-v1.cfg": "vital_signs-v1.cfg",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
	assert.Len(t, SanitizeFilename(strings.Repeat("a", 300)), 128)
}
