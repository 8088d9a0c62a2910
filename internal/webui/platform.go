// Package webui installs and updates a text-generation-webui checkout: the
// local model server docqa's openai provider talks to.
package webui

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Platform describes the host the web UI is installed on.
type Platform struct {
	OS   string // runtime.GOOS
	Arch string // runtime.GOARCH
	AVX2 bool
	AMX  bool
}

// Detect inspects the running host.
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
		AVX2: cpuid.CPU.Supports(cpuid.AVX2),
		AMX:  cpuid.CPU.Supports(cpuid.AMXTILE),
	}
}

func (p Platform) IsLinux() bool   { return p.OS == "linux" }
func (p Platform) IsWindows() bool { return p.OS == "windows" }
func (p Platform) IsMacOS() bool   { return p.OS == "darwin" }
func (p Platform) IsX86_64() bool  { return p.Arch == "amd64" }
