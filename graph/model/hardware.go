package model

import (
	"os"
	"runtime"
	"strings"
)

// HardwareType classifies the accelerator available to this process.
type HardwareType string

const (
	HardwareCPUOnly    HardwareType = "CPU_ONLY"
	HardwareGPUCUDA    HardwareType = "GPU_CUDA"
	HardwareGPUGeneral HardwareType = "GPU_GENERAL"
	HardwareNPUApple   HardwareType = "NPU_APPLE"
	HardwareNPUIntel   HardwareType = "NPU_INTEL"
)

// ParseHardwareType accepts a case-insensitive hardware type name.
func ParseHardwareType(s string) (HardwareType, bool) {
	hw := HardwareType(strings.ToUpper(strings.TrimSpace(s)))
	switch hw {
	case HardwareCPUOnly, HardwareGPUCUDA, HardwareGPUGeneral, HardwareNPUApple, HardwareNPUIntel:
		return hw, true
	}
	return "", false
}

// Hardware profiles.
const (
	ProfileLight        = "Light"
	ProfileMedium       = "Medium"
	ProfileHeavy        = "Heavy"
	ProfileNPUOptimized = "NPU-optimized"

	// ProfileAuto asks the profiler to detect the profile.
	ProfileAuto = "auto"
)

// HardwareProfiler classifies the host. Both answers can be pinned.
type HardwareProfiler struct {
	// Profile, when set and not "auto", is returned by DetectProfile as is.
	Profile string

	// Type, when set, is returned by Detect as is.
	Type HardwareType

	// Probes. Nil fields use the host.
	NumCPU   func() int
	GOOS     string
	GOARCH   string
	FileStat func(string) (os.FileInfo, error)
	Getenv   func(string) string
}

func (p *HardwareProfiler) numCPU() int {
	if p.NumCPU != nil {
		return p.NumCPU()
	}
	return runtime.NumCPU()
}

func (p *HardwareProfiler) goos() string {
	if p.GOOS != "" {
		return p.GOOS
	}
	return runtime.GOOS
}

func (p *HardwareProfiler) goarch() string {
	if p.GOARCH != "" {
		return p.GOARCH
	}
	return runtime.GOARCH
}

func (p *HardwareProfiler) exists(path string) bool {
	stat := p.FileStat
	if stat == nil {
		stat = os.Stat
	}
	_, err := stat(path)
	return err == nil
}

func (p *HardwareProfiler) getenv(key string) string {
	if p.Getenv != nil {
		return p.Getenv(key)
	}
	return os.Getenv(key)
}

// Detect returns the hardware type, checked in priority order: CUDA GPU,
// Apple NPU, Intel NPU, any GPU, CPU only.
func (p *HardwareProfiler) Detect() HardwareType {
	if p.Type != "" {
		return p.Type
	}
	if p.exists("/proc/driver/nvidia/version") {
		return HardwareGPUCUDA
	}
	if cuda := p.getenv("CUDA_VISIBLE_DEVICES"); cuda != "" && cuda != "-1" {
		return HardwareGPUCUDA
	}
	if p.goos() == "darwin" && p.goarch() == "arm64" {
		return HardwareNPUApple
	}
	if p.exists("/dev/accel/accel0") {
		return HardwareNPUIntel
	}
	if p.exists("/dev/dri/renderD128") {
		return HardwareGPUGeneral
	}
	return HardwareCPUOnly
}

// DetectProfile returns the hardware profile. NPUs get NPU-optimized;
// otherwise the logical CPU count decides: 16+ Heavy, 8+ Medium, else
// Light.
func (p *HardwareProfiler) DetectProfile() string {
	if p.Profile != "" && !strings.EqualFold(p.Profile, ProfileAuto) {
		return p.Profile
	}
	switch p.Detect() {
	case HardwareNPUApple, HardwareNPUIntel:
		return ProfileNPUOptimized
	}
	switch n := p.numCPU(); {
	case n >= 16:
		return ProfileHeavy
	case n >= 8:
		return ProfileMedium
	default:
		return ProfileLight
	}
}
