package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sliverarmory/snfix/hook"
	"github.com/sliverarmory/snfix/sysprop"
)

var (
	buildPropPath string
	propSets      []string
)

// loadArea builds the property area from --build-prop and --set.
func loadArea() (*sysprop.Area, error) {
	area := sysprop.NewArea()
	if buildPropPath != "" {
		if err := area.LoadFile(buildPropPath); err != nil {
			return nil, err
		}
	}
	for _, kv := range propSets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, want name=value", kv)
		}
		area.Set(name, value)
	}
	return area, nil
}

func printProps(w io.Writer, area *sysprop.Area, names []string) {
	if len(names) == 0 {
		names = area.Names()
	}
	for _, name := range names {
		value, ok := area.Get(name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "[%s]: [%s]\n", name, value)
	}
}

// selfResolver only searches the running executable, which is where the
// property read entry point lives.
func selfResolver() hook.Resolver {
	exe, err := os.Executable()
	if err != nil {
		return hook.ELFResolver{}
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return hook.ELFResolver{Match: func(path string) bool {
		return path == exe
	}}
}
