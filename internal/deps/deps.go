// Package deps probes the optional external pieces the daemon can use at
// runtime: the accelerated helper binary and the DRM sysfs tree backing GPU
// detection. Nothing here is required for the daemon to run; missing pieces
// only steer negotiation toward the built-in fallback.
package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"typetrace/internal/config"
)

// Requirement defines an optional runtime dependency.
type Requirement struct {
	Name        string
	Path        string
	Description string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements builds the probe list for the given configuration.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "accelerated helper",
			Path:        cfg.Backend.HelperPath,
			Description: "native helper process for memory and compute operations",
		},
		{
			Name:        "drm sysfs",
			Path:        "/sys/class/drm",
			Description: "kernel DRM device tree used for GPU detection",
		},
	}
}

// Check evaluates the provided requirements and reports availability.
func Check(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		path := strings.TrimSpace(req.Path)
		status := Status{
			Name:        req.Name,
			Path:        path,
			Description: strings.TrimSpace(req.Description),
		}
		if path == "" {
			status.Detail = "path not configured"
			results = append(results, status)
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			status.Detail = fmt.Sprintf("%q not found", path)
			results = append(results, status)
			continue
		}
		if info.IsDir() {
			status.Available = true
			results = append(results, status)
			continue
		}
		if err := unix.Access(path, unix.X_OK); err != nil {
			status.Detail = fmt.Sprintf("%q is not executable", filepath.Base(path))
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// HelperAvailable reports whether the configured helper binary exists and is
// executable.
func HelperAvailable(cfg *config.Config) bool {
	for _, status := range Check(Requirements(cfg)) {
		if status.Name == "accelerated helper" {
			return status.Available
		}
	}
	return false
}
