package updater

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadPythonAppVersion reads the VERSION file written by a Python-app
// sibling component, supporting both the JSON {"full_version": ...} format
// and the legacy single-line plain version string.
func ReadPythonAppVersion(installPath string) string {
	data, err := os.ReadFile(filepath.Join(installPath, "VERSION"))
	if err != nil {
		return "unknown"
	}
	content := strings.TrimSpace(string(data))

	var parsed struct {
		FullVersion string `json:"full_version"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err == nil && parsed.FullVersion != "" {
		return parsed.FullVersion
	}
	return content
}

type composeFile struct {
	Services map[string]struct {
		Image string `yaml:"image"`
	} `yaml:"services"`
}

// ReadContainerVersion reads the image tag for serviceName out of a
// docker-compose.yml mounted at composePath.
func ReadContainerVersion(composePath, serviceName string) string {
	data, err := os.ReadFile(composePath)
	if err != nil {
		return "unknown"
	}

	var compose composeFile
	if err := yaml.Unmarshal(data, &compose); err != nil {
		return "unknown"
	}

	svc, ok := compose.Services[serviceName]
	if !ok || svc.Image == "" {
		return "unknown"
	}

	if i := strings.LastIndex(svc.Image, ":"); i >= 0 {
		return svc.Image[i+1:]
	}
	return "latest"
}
