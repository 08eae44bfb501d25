package sysprop

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Load reads build.prop formatted properties from r into the area.
// Comments, blank lines, import directives and lines without '=' are
// skipped, as init does.
func (a *Area) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "import ") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		a.Set(name, strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("sysprop: scan properties: %w", err)
	}
	return nil
}

// LoadFile reads a build.prop file into the area.
func (a *Area) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("sysprop: %w", err)
	}
	defer f.Close()

	if err := a.Load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
