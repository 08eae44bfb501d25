package snfix_test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildEntrySharedLib builds testdata/go/entry, a payload exporting the
// default entry point, as a Linux shared object that writes "ok" to
// markerPath when called.
func buildEntrySharedLib(t *testing.T, outDir string, goarch string, markerPath string) string {
	t.Helper()

	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not found in PATH")
	}

	outputPath := filepath.Join(outDir, fmt.Sprintf("entry_go_linux-%s.so", goarch))
	sourcePath := "./testdata/go/entry"

	args := []string{
		"build",
		"-buildmode=c-shared",
		"-trimpath",
		"-ldflags", "-X main.markerPath="+markerPath,
		"-o", outputPath,
		sourcePath,
	}

	baseEnv := overrideEnv(os.Environ(), map[string]string{
		"GOOS":        "linux",
		"GOARCH":      goarch,
		"CGO_ENABLED": "1",
		"GOCACHE":     filepath.Join(os.TempDir(), "snfix-go-build-cache"),
	})

	var out []byte
	if _, err := exec.LookPath("zig"); err == nil {
		cmd := exec.Command("go", args...)
		cc := "zig cc"
		cxx := "zig c++"
		if target, ok := zigTargetFor(goarch); ok {
			cc = "zig cc -target " + target
			cxx = "zig c++ -target " + target
		}
		cmd.Env = overrideEnv(baseEnv, map[string]string{
			"CC":  cc,
			"CXX": cxx,
		})
		out, err = cmd.CombinedOutput()
		if err == nil {
			_ = os.Remove(strings.TrimSuffix(outputPath, ".so") + ".h")
			return outputPath
		}
		t.Logf("go build with zig cc failed for linux/%s, retrying with default compiler: %v\n%s", goarch, err, out)
	}

	cmd := exec.Command("go", args...)
	cmd.Env = baseEnv
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Skipf("build go shared lib for linux/%s: %v\n%s", goarch, err, out)
	}

	_ = os.Remove(strings.TrimSuffix(outputPath, ".so") + ".h")
	return outputPath
}

func zigTargetFor(goarch string) (string, bool) {
	switch goarch {
	case "386":
		return "x86-linux-gnu", true
	case "amd64":
		return "x86_64-linux-gnu", true
	case "arm":
		return "arm-linux-gnueabihf", true
	case "arm64":
		return "aarch64-linux-gnu", true
	default:
		return "", false
	}
}

func overrideEnv(base []string, overrides map[string]string) []string {
	block := make(map[string]struct{}, len(overrides))
	for key := range overrides {
		block[key] = struct{}{}
	}

	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		eq := strings.IndexByte(kv, '=')
		if eq <= 0 {
			continue
		}
		if _, drop := block[kv[:eq]]; drop {
			continue
		}
		out = append(out, kv)
	}

	for key, value := range overrides {
		out = append(out, key+"="+value)
	}
	return out
}
