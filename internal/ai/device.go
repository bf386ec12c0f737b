package ai

import (
	"os"
	"strings"
)

// Device is the compute target the model is placed on.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// gpuProbe reports whether an accelerator is visible to this process.
var gpuProbe = func() bool {
	if v := strings.TrimSpace(os.Getenv("CUDA_VISIBLE_DEVICES")); v != "" && v != "-1" {
		return true
	}
	_, err := os.Stat("/dev/nvidia0")
	return err == nil
}

// ResolveDevice picks the accelerator when requested or detected, else the CPU.
func ResolveDevice(requested string) Device {
	switch strings.ToLower(requested) {
	case "cuda", "gpu":
		return DeviceCUDA
	case "cpu":
		return DeviceCPU
	}
	if gpuProbe() {
		return DeviceCUDA
	}
	return DeviceCPU
}

// DType is the weight precision used on the device.
func (d Device) DType() string {
	if d == DeviceCUDA {
		return "float16"
	}
	return "float32"
}
