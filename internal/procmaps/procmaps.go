// Package procmaps parses the memory map of the current process.
package procmaps

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Entry is one file-backed line of /proc/<pid>/maps.
type Entry struct {
	Start  uintptr
	End    uintptr
	Offset uintptr
	Perms  string
	Path   string
}

// Executable reports whether the mapping is mapped with execute permission.
func (e Entry) Executable() bool {
	return strings.Contains(e.Perms, "x")
}

// Self reads the mappings of the calling process.
func Self() ([]Entry, error) {
	return ReadFile("/proc/self/maps")
}

func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse returns the file-backed mappings found in r. Anonymous and pseudo
// mappings ([stack], [vdso], ...) are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		entry, ok := parseLine(scanner.Text())
		if ok {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan maps: %w", err)
	}
	return entries, nil
}

func parseLine(line string) (Entry, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 6 {
		return Entry{}, false
	}

	rangeParts := strings.SplitN(fields[0], "-", 2)
	if len(rangeParts) != 2 {
		return Entry{}, false
	}
	start, startErr := parseHex(rangeParts[0])
	end, endErr := parseHex(rangeParts[1])
	offset, offsetErr := parseHex(fields[2])
	if startErr != nil || endErr != nil || offsetErr != nil {
		return Entry{}, false
	}

	path := strings.Join(fields[5:], " ")
	path = strings.TrimSuffix(path, " (deleted)")
	if !strings.HasPrefix(path, "/") {
		return Entry{}, false
	}

	return Entry{
		Start:  start,
		End:    end,
		Offset: offset,
		Perms:  fields[1],
		Path:   path,
	}, true
}

func parseHex(s string) (uintptr, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex string %q", s)
	}
	return uintptr(v), nil
}
