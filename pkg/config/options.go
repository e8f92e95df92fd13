// Copyright 2026 © The NeuralChat Authors
// SPDX-License-Identifier: Apache-2.0

package config

import "strings"

const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceGPU  = "gpu"
	DeviceXPU  = "xpu"
	DeviceHPU  = "hpu"
	DeviceCUDA = "cuda"
)

const (
	BackendAuto  = "auto"
	BackendTorch = "torch"
	BackendIPEX  = "ipex"
	BackendITREX = "itrex"
)

const (
	AudioEnglish = "english"
	AudioChinese = "chinese"
)

// Enum is a closed list of valid values for one configuration field.
type Enum struct {
	Field  string
	Values []string
}

var (
	Devices   = Enum{Field: "device", Values: []string{DeviceAuto, DeviceCPU, DeviceGPU, DeviceXPU, DeviceHPU, DeviceCUDA}}
	Backends  = Enum{Field: "backend", Values: []string{BackendAuto, BackendTorch, BackendIPEX, BackendITREX}}
	AudioLang = Enum{Field: "audio_lang", Values: []string{AudioEnglish, AudioChinese}}
)

// Normalize lower-cases and trims v. Comparison against the set is
// case-insensitive.
func Normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Contains reports whether v (normalized) is a member of the set.
func (e Enum) Contains(v string) bool {
	v = Normalize(v)
	for _, candidate := range e.Values {
		if candidate == v {
			return true
		}
	}
	return false
}

// Concrete reports whether v is a member other than "auto".
func (e Enum) Concrete(v string) bool {
	return e.Contains(v) && Normalize(v) != "auto"
}

func (e Enum) String() string {
	return strings.Join(e.Values, ", ")
}
