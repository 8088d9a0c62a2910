package webui

import (
	"strings"
)

// TorchFlavor is the build variant encoded in a torch version string,
// e.g. 2.1.0+cu118, 2.0.1+rocm5.4.2, 2.0.1a0+cxx11.abi or 2.0.1+cpu.
type TorchFlavor struct {
	CUDA    bool
	CUDA118 bool
	CUDA117 bool
	ROCm    bool
	Intel   bool
	CPU     bool
}

func ParseTorchFlavor(version string) TorchFlavor {
	return TorchFlavor{
		CUDA:    strings.Contains(version, "+cu"),
		CUDA118: strings.Contains(version, "+cu118"),
		CUDA117: strings.Contains(version, "+cu117"),
		ROCm:    strings.Contains(version, "+rocm"),
		Intel:   strings.Contains(version, "+cxx11"),
		CPU:     strings.Contains(version, "+cpu"),
	}
}

// RequirementsFile picks the web UI requirements file for a torch build and host.
func RequirementsFile(f TorchFlavor, p Platform) string {
	switch {
	case f.ROCm:
		if p.AVX2 {
			return "requirements_amd.txt"
		}
		return "requirements_amd_noavx2.txt"
	case f.CPU:
		if p.AVX2 {
			return "requirements_cpu_only.txt"
		}
		return "requirements_cpu_only_noavx2.txt"
	case p.IsMacOS():
		if p.IsX86_64() {
			return "requirements_apple_intel.txt"
		}
		return "requirements_apple_silicon.txt"
	case p.AVX2:
		return "requirements.txt"
	default:
		return "requirements_noavx2.txt"
	}
}

// RewriteRequirements pins wheel URLs to the installed CUDA version.
func RewriteRequirements(lines []string, f TorchFlavor, p Platform) []string {
	out := make([]string, 0, len(lines))
	for _, req := range lines {
		switch {
		case f.CUDA117:
			req = strings.NewReplacer("+cu121", "+cu117", "+cu122", "+cu117", "torch2.1", "torch2.0").Replace(req)
		case f.CUDA118:
			req = strings.NewReplacer("+cu121", "+cu118", "+cu122", "+cu118").Replace(req)
		}
		// no flash-attention wheels on Windows for CUDA 11
		if p.IsWindows() && (f.CUDA117 || f.CUDA118) && strings.Contains(req, "bdashore3/flash-attention") {
			continue
		}
		out = append(out, req)
	}
	return out
}

// GitPackages returns the package names of git+ requirements.
func GitPackages(lines []string) []string {
	var names []string
	for _, req := range lines {
		if !strings.HasPrefix(req, "git+") {
			continue
		}
		url := strings.TrimPrefix(req, "git+")
		name := url[strings.LastIndex(url, "/")+1:]
		name, _, _ = strings.Cut(name, "@")
		names = append(names, strings.TrimSuffix(name, ".git"))
	}
	return names
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "yes", "y", "true", "1", "t", "on":
		return true
	}
	return false
}

func falsy(v string) bool {
	switch strings.ToLower(v) {
	case "no", "n", "false", "0", "f", "off":
		return true
	}
	return false
}
