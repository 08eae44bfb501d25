package hook

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/sliverarmory/snfix/internal/elfsym"
	"github.com/sliverarmory/snfix/internal/procmaps"
)

var ErrSymbolNotFound = errors.New("hook: symbol not found")

// Resolver maps a symbol name to the entry point it names in the running
// process.
type Resolver interface {
	Resolve(name string) (unsafe.Pointer, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (unsafe.Pointer, error)

func (f ResolverFunc) Resolve(name string) (unsafe.Pointer, error) {
	return f(name)
}

var registry sync.Map

// Register publishes a Go function slot under name. Registered slots are
// found by ELFResolver even when the binary carries no static symbol table.
func Register(name string, slot unsafe.Pointer) {
	if slot == nil {
		panic("hook: Register of nil slot " + name)
	}
	registry.Store(name, slot)
}

// Registered returns the slot published under name.
func Registered(name string) (unsafe.Pointer, bool) {
	v, ok := registry.Load(name)
	if !ok {
		return nil, false
	}
	return v.(unsafe.Pointer), true
}

// ELFResolver looks symbols up among the registered slots and then in the
// ELF objects currently mapped into the process, in map order.
type ELFResolver struct {
	// Match restricts the ELF search to objects whose path it accepts. Nil
	// searches everything, which is slow on processes with many libraries.
	Match func(path string) bool

	maps func() ([]procmaps.Entry, error)
}

func (r ELFResolver) Resolve(name string) (unsafe.Pointer, error) {
	if slot, ok := Registered(name); ok {
		return slot, nil
	}

	maps := r.maps
	if maps == nil {
		maps = procmaps.Self
	}
	entries, err := maps()
	if err != nil {
		return nil, fmt.Errorf("hook: read process maps: %w", err)
	}

	addr, _, err := elfsym.Resolve(entries, name, r.Match)
	if err != nil {
		if errors.Is(err, elfsym.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
		}
		return nil, err
	}
	// addr lies in a mapped image, outside the Go heap.
	return unsafe.Pointer(addr), nil
}
