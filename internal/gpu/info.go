// Package gpu discovers graphics hardware through sysfs and keeps the
// discovered capability record fresh via udev hotplug events. The record is
// diagnostic only; the backend decides separately whether an accelerated
// compute path exists.
package gpu

import "time"

// Info describes the most capable graphics device visible to the process.
type Info struct {
	Available    bool      `json:"available"`
	Vendor       string    `json:"vendor"`
	Device       string    `json:"device"`
	DriverHint   string    `json:"driver_hint"`
	DeviceCount  int       `json:"device_count"`
	ProbedAt     time.Time `json:"probed_at"`
	ProbeError   string    `json:"probe_error,omitempty"`
}

// Known PCI vendor ids, as exposed by /sys/class/drm/cardN/device/vendor.
var vendorNames = map[string]string{
	"0x10de": "NVIDIA",
	"0x1002": "AMD",
	"0x8086": "Intel",
	"0x1af4": "Red Hat (virtio)",
	"0x15ad": "VMware",
}
