package config

import (
	"fmt"
	"strings"
)

const (
	DeviceCPU = "cpu"
	DeviceGPU = "gpu"
	DeviceNPU = "npu"
)

// Devices lists the context device classes in probe order.
var Devices = []string{DeviceCPU, DeviceGPU, DeviceNPU}

// NormalizeDevice lower-cases and validates a device class. Empty selects cpu.
func NormalizeDevice(raw string) (string, error) {
	device := strings.ToLower(strings.TrimSpace(raw))
	if device == "" {
		return DeviceCPU, nil
	}

	switch device {
	case DeviceCPU, DeviceGPU, DeviceNPU:
		return device, nil
	default:
		return "", fmt.Errorf("invalid device %q (expected %s|%s|%s)", raw, DeviceCPU, DeviceGPU, DeviceNPU)
	}
}
