package gpu

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const defaultDRMRoot = "/sys/class/drm"

var cardPattern = regexp.MustCompile(`^card[0-9]+$`)

// Prober scans sysfs for DRM render devices.
type Prober struct {
	root string
}

// NewProber returns a Prober scanning the standard sysfs location.
func NewProber() *Prober {
	return &Prober{root: defaultDRMRoot}
}

// NewProberAt returns a Prober scanning an alternate root. Used in tests.
func NewProberAt(root string) *Prober {
	return &Prober{root: root}
}

// Probe scans for DRM cards and summarizes the first one found. A missing or
// unreadable sysfs yields Available=false with the failure recorded in
// ProbeError, never an error return; absence of a GPU is a normal state.
func (p *Prober) Probe() Info {
	info := Info{ProbedAt: time.Now()}

	entries, err := os.ReadDir(p.root)
	if err != nil {
		info.ProbeError = err.Error()
		return info
	}

	for _, entry := range entries {
		if !cardPattern.MatchString(entry.Name()) {
			continue
		}
		info.DeviceCount++
		if info.Available {
			continue
		}

		cardPath := filepath.Join(p.root, entry.Name())
		info.Available = true
		info.Vendor = vendorName(readSysfsValue(filepath.Join(cardPath, "device", "vendor")))
		info.Device = readSysfsValue(filepath.Join(cardPath, "device", "device"))
		info.DriverHint = driverName(filepath.Join(cardPath, "device", "driver"))
	}

	return info
}

func readSysfsValue(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func vendorName(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return ""
	}
	if name, ok := vendorNames[id]; ok {
		return name
	}
	return id
}

// driverName resolves the driver symlink basename, e.g. "i915" or "amdgpu".
func driverName(link string) string {
	target, err := os.Readlink(link)
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}
