// Package elfsym resolves symbols of ELF objects mapped into the current
// process to their runtime addresses.
package elfsym

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sliverarmory/snfix/internal/procmaps"
)

var ErrNotFound = errors.New("symbol not found")

// Object is one ELF file mapped into the process.
type Object struct {
	Path string
	// Base is the address the file's first page is mapped at.
	Base uintptr
}

// Objects groups mappings by backing file, in map order.
func Objects(entries []procmaps.Entry) []Object {
	index := make(map[string]int, len(entries))
	var objects []Object
	for _, entry := range entries {
		i, seen := index[entry.Path]
		if !seen {
			index[entry.Path] = len(objects)
			objects = append(objects, Object{Path: entry.Path, Base: entry.Start - entry.Offset})
			continue
		}
		if entry.Offset == 0 {
			objects[i].Base = entry.Start
		}
	}
	return objects
}

// Resolve searches every object accepted by match for name and returns the
// first runtime address found. A nil match accepts all objects.
func Resolve(entries []procmaps.Entry, name string, match func(path string) bool) (uintptr, string, error) {
	for _, object := range Objects(entries) {
		if match != nil && !match(object.Path) {
			continue
		}
		addr, err := object.Symbol(name)
		if err == nil {
			return addr, object.Path, nil
		}
	}
	return 0, "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

// Symbol returns the runtime address of name inside the object.
func (object Object) Symbol(name string) (uintptr, error) {
	f, err := elf.Open(object.Path)
	if err != nil {
		return 0, fmt.Errorf("open elf %s: %w", object.Path, err)
	}
	defer f.Close()

	value, err := SymbolValue(f, name)
	if err != nil {
		return 0, fmt.Errorf("%s in %s: %w", name, object.Path, err)
	}
	return object.Base - loadVaddr(f) + uintptr(value), nil
}

// SymbolValue looks name up in the dynamic symbol table and then in the
// static one. Versioned names (name@VERSION) match too.
func SymbolValue(f *elf.File, name string) (uint64, error) {
	if syms, err := f.DynamicSymbols(); err == nil {
		if value, ok := matchSymbol(syms, name); ok {
			return value, nil
		}
	}
	if syms, err := f.Symbols(); err == nil {
		if value, ok := matchSymbol(syms, name); ok {
			return value, nil
		}
	}
	return 0, ErrNotFound
}

func matchSymbol(symbols []elf.Symbol, want string) (uint64, bool) {
	for _, s := range symbols {
		if s.Value == 0 {
			continue
		}
		if s.Name == want || strings.HasPrefix(s.Name, want+"@") {
			return s.Value, true
		}
	}
	return 0, false
}

// loadVaddr is the page-aligned virtual address of the lowest PT_LOAD
// segment: zero for position independent objects, the link address for
// ET_EXEC images.
func loadVaddr(f *elf.File) uintptr {
	pageMask := uint64(os.Getpagesize() - 1)
	lowest := ^uint64(0)
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_LOAD && prog.Vaddr < lowest {
			lowest = prog.Vaddr
		}
	}
	if lowest == ^uint64(0) {
		return 0
	}
	return uintptr(lowest &^ pageMask)
}
