package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInputFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "cv.json")
	require.NoError(t, os.WriteFile(file, []byte(`{}`), 0600))

	assert.NoError(t, ValidateInputFile(file))
	assert.ErrorContains(t, ValidateInputFile(""), "filename cannot be empty")
	assert.ErrorContains(t, ValidateInputFile(filepath.Join(dir, "missing.json")), "file does not exist")
	assert.ErrorContains(t, ValidateInputFile(dir), "path is a directory")
}

func TestValidateOutputFileCreatesDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, ValidateOutputFile(target))
	assert.DirExists(t, filepath.Dir(target))
	assert.NoError(t, ValidateOutputFile(""))
}

func TestIsJSONFile(t *testing.T) {
	tests := map[string]bool{
		"cv.json":  true,
		"CV.JSON":  true,
		"cv.jsonc": true,
		"cv.md":    false,
		"cv":       false,
	}
	for name, want := range tests {
		assert.Equal(t, want, IsJSONFile(name), name)
	}
}

func TestFileSize(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cv.json")
	require.NoError(t, os.WriteFile(file, []byte("12345"), 0600))

	size, err := FileSize(file)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = FileSize(file + ".missing")
	assert.Error(t, err)
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.0 KB", FormatFileSize(1024))
	assert.Equal(t, "1.5 MB", FormatFileSize(1024*1024*3/2))
}
