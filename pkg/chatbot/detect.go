// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package chatbot

import (
	"bytes"
	"os"

	"github.com/jllopis/neuralchat/pkg/config"
)

// DeviceDetector picks a concrete device for device=auto.
type DeviceDetector interface {
	DetectDevice() string
}

// BackendDetector picks a concrete backend for backend=auto, given the
// concrete device.
type BackendDetector interface {
	DetectBackend(device string) string
}

// DeviceDetectorFunc adapts a function to DeviceDetector.
type DeviceDetectorFunc func() string

func (f DeviceDetectorFunc) DetectDevice() string { return f() }

// BackendDetectorFunc adapts a function to BackendDetector.
type BackendDetectorFunc func(device string) string

func (f BackendDetectorFunc) DetectBackend(device string) string { return f(device) }

// HostDetector inspects device nodes and CPU vendor of the local machine.
// Root is prefixed to every inspected path.
type HostDetector struct {
	Root string
}

func (h HostDetector) exists(path string) bool {
	_, err := os.Stat(h.Root + path)
	return err == nil
}

// DetectDevice returns cuda for NVIDIA GPUs, hpu for Gaudi accelerators,
// xpu for Intel GPUs with a level-zero runtime and cpu otherwise.
func (h HostDetector) DetectDevice() string {
	switch {
	case h.exists("/dev/nvidia0") || h.exists("/proc/driver/nvidia/version"):
		return config.DeviceCUDA
	case h.exists("/dev/accel/accel0") || h.exists("/dev/hl0"):
		return config.DeviceHPU
	case h.exists("/dev/dri/renderD128") && h.exists("/usr/lib/x86_64-linux-gnu/libze_loader.so.1"):
		return config.DeviceXPU
	default:
		return config.DeviceCPU
	}
}

// DetectBackend returns ipex on Intel CPUs and XPUs, torch otherwise.
func (h HostDetector) DetectBackend(device string) string {
	switch device {
	case config.DeviceXPU:
		return config.BackendIPEX
	case config.DeviceCPU:
		data, err := os.ReadFile(h.Root + "/proc/cpuinfo")
		if err == nil && bytes.Contains(data, []byte("GenuineIntel")) {
			return config.BackendIPEX
		}
	}
	return config.BackendTorch
}
