package updater

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPythonAppVersionJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte(`{"full_version": "1.2.3-beta.1"}`), 0o644))

	assert.Equal(t, "1.2.3-beta.1", ReadPythonAppVersion(dir))
}

func TestReadPythonAppVersionLegacyPlainText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte("2.0.0\n"), 0o644))

	assert.Equal(t, "2.0.0", ReadPythonAppVersion(dir))
}

func TestReadPythonAppVersionMissingFile(t *testing.T) {
	assert.Equal(t, "unknown", ReadPythonAppVersion(t.TempDir()))
}

func TestReadContainerVersion(t *testing.T) {
	dir := t.TempDir()
	compose := `
services:
  scheduler:
    image: ghcr.io/example/dunebugger-scheduler:1.4.0
  other:
    image: ghcr.io/example/other:latest
`
	path := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, os.WriteFile(path, []byte(compose), 0o644))

	assert.Equal(t, "1.4.0", ReadContainerVersion(path, "scheduler"))
	assert.Equal(t, "unknown", ReadContainerVersion(path, "missing"))
}

func TestReadContainerVersionMissingFile(t *testing.T) {
	assert.Equal(t, "unknown", ReadContainerVersion(filepath.Join(t.TempDir(), "nope.yml"), "scheduler"))
}
